// Copyright 2024 The Armored Witness Bootloader authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bootlog provides the default boot log, used when the trace
// subsystem is not compiled in.
package bootlog

import (
	"fmt"
	"strings"

	"k8s.io/klog/v2"
)

// Logger emits boot log records through klog.
type Logger struct {
	prefix string
}

// New returns a boot logger which prepends prefix to every record.
func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

func (l *Logger) format(format string, args ...any) string {
	return l.prefix + strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

// Infof emits an informational record.
func (l *Logger) Infof(format string, args ...any) {
	klog.InfoDepth(1, l.format(format, args...))
}

// Errorf emits an error record.
func (l *Logger) Errorf(format string, args ...any) {
	klog.ErrorDepth(1, l.format(format, args...))
}

// Flush flushes all pending klog I/O.
func (l *Logger) Flush() {
	klog.Flush()
}

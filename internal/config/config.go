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

// Package config holds the build-time configuration of the bootloader.
//
// Each setting is a constant selected with a Go build tag:
//
//	embedded_crypto      embedded crypto backend (default: platform backend)
//	application_hooks    stop in the board loop hook on failure (default: terminate)
//	trace                enable the trace subsystem
//	log_bootloader_only  restrict trace output to bootloader groups
package config

import (
	"fmt"

	"github.com/transparency-dev/armored-witness-bootloader/internal/trace"
)

// TraceLevel is the maximum trace level emitted when Trace is enabled.
const TraceLevel = trace.LevelInfo

// String returns a one line description of the build configuration.
func String() string {
	return fmt.Sprintf("crypto:%v policy:%v trace:%v bootloader_only:%v", CryptoBackend, Policy, Trace, BootloaderOnlyLog)
}

// NewTracer returns the trace subsystem configured for this build, or nil if
// tracing is disabled.
func NewTracer() *trace.Tracer {
	if !Trace {
		return nil
	}

	t := trace.New(TraceLevel)

	if BootloaderOnlyLog {
		t.SetIncludeFilters(trace.BootloaderGroups)
	}

	return t
}

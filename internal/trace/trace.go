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

// Package trace implements the diagnostic trace subsystem used during early
// boot.
//
// Trace records belong to a group (e.g. "BL" for the boot sequencer) and are
// emitted as single lines on the sink established with Init:
//
//	[INFO][BL  ]: Starting bootloader
//
// Records emitted before Init, below the configured level, or for groups
// excluded by SetIncludeFilters are discarded. The tracer is meant for the
// single threaded boot path and is not safe for concurrent use.
package trace

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Level represents a trace record severity.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERR "
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DBG "
	}

	return "????"
}

// BootloaderGroups lists the trace groups emitted by the bootloader itself.
const BootloaderGroups = "MCUb,BL"

// Tracer represents a trace subsystem instance.
type Tracer struct {
	out      *lineBuffer
	maxLevel Level
	include  map[string]bool
}

// New returns a tracer emitting records up to maxLevel, the tracer discards
// all records until Init is called.
func New(maxLevel Level) *Tracer {
	return &Tracer{
		maxLevel: maxLevel,
	}
}

// Init establishes the trace sink.
func (t *Tracer) Init(w io.Writer) error {
	if w == nil {
		return errors.New("missing trace output")
	}

	t.out = &lineBuffer{out: w}

	return nil
}

// SetIncludeFilters restricts trace output to the comma separated list of
// groups, an empty list removes any restriction.
func (t *Tracer) SetIncludeFilters(groups string) {
	t.include = nil

	for _, g := range strings.Split(groups, ",") {
		if g = strings.TrimSpace(g); len(g) == 0 {
			continue
		}

		if t.include == nil {
			t.include = make(map[string]bool)
		}

		t.include[g] = true
	}
}

// Flush writes any buffered trace output to the sink.
func (t *Tracer) Flush() error {
	if t.out == nil {
		return nil
	}

	return t.out.flush()
}

// Group returns a handle to emit records within a trace group.
func (t *Tracer) Group(name string) *Group {
	return &Group{
		tracer: t,
		name:   name,
	}
}

func (t *Tracer) enabled(group string, l Level) bool {
	if t.out == nil || l > t.maxLevel {
		return false
	}

	return t.include == nil || t.include[group]
}

func (t *Tracer) emit(group string, l Level, format string, args ...any) {
	if !t.enabled(group, l) {
		return
	}

	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")

	// trace output failures are never propagated
	_, _ = fmt.Fprintf(t.out, "[%s][%-4s]: %s\n", l, group, msg)
}

// Group represents a trace group.
type Group struct {
	tracer *Tracer
	name   string
}

// Debugf emits a debug record.
func (g *Group) Debugf(format string, args ...any) {
	g.tracer.emit(g.name, LevelDebug, format, args...)
}

// Infof emits an informational record.
func (g *Group) Infof(format string, args ...any) {
	g.tracer.emit(g.name, LevelInfo, format, args...)
}

// Warnf emits a warning record.
func (g *Group) Warnf(format string, args ...any) {
	g.tracer.emit(g.name, LevelWarn, format, args...)
}

// Errorf emits an error record.
func (g *Group) Errorf(format string, args ...any) {
	g.tracer.emit(g.name, LevelError, format, args...)
}

// Flush writes any buffered output of the underlying tracer.
func (g *Group) Flush() {
	_ = g.tracer.Flush()
}

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

// Package backend models the cryptographic backend bring-up performed before
// any image is trusted.
//
// Exactly one backend variant is compiled into a bootloader build:
//
//   - Platform: a platform setup routine, backed by hardware or a TLS-style
//     library, which can fail. Failure means image trust cannot be
//     established and is always fatal.
//   - Embedded: a lightweight signature verification library which needs no
//     entropy, its bring-up only installs a deterministic stub RNG and cannot
//     fail.
//
// Backend is a closed set, only the variants defined in this package
// implement it.
package backend

import (
	"io"
)

// Kind identifies a backend variant.
type Kind int

const (
	Platform Kind = iota
	Embedded
)

func (k Kind) String() string {
	switch k {
	case Platform:
		return "platform"
	case Embedded:
		return "embedded"
	}

	return "unknown"
}

// Backend represents the crypto backend selected at build time.
type Backend interface {
	// Kind returns the backend variant.
	Kind() Kind

	sealed()
}

// PlatformContext is the initialization context handed to the platform setup
// routine. It is owned by the backend rather than the caller, and is never
// released as the bootloader never returns.
type PlatformContext struct {
	// Initialized is set once Setup has returned successfully.
	Initialized bool
	// Data is available to the setup routine for its own state.
	Data any
}

// PlatformBackend represents the platform setup variant.
type PlatformBackend struct {
	// Setup performs the platform setup, a non-zero status indicates
	// failure. A nil Setup requires no platform setup.
	Setup func(ctx *PlatformContext) int

	ctx PlatformContext
}

// Kind returns Platform.
func (b *PlatformBackend) Kind() Kind {
	return Platform
}

func (b *PlatformBackend) sealed() {}

// Init runs the platform setup routine with the backend owned context and
// returns its status unmodified.
func (b *PlatformBackend) Init() (rc int) {
	if b.Setup != nil {
		if rc = b.Setup(&b.ctx); rc != 0 {
			return
		}
	}

	b.ctx.Initialized = true

	return
}

// Context returns the backend owned initialization context.
func (b *PlatformBackend) Context() *PlatformContext {
	return &b.ctx
}

// EmbeddedBackend represents the lightweight embedded variant.
type EmbeddedBackend struct {
	// SetRNG receives the stub random number source the embedded library
	// must use.
	SetRNG func(rng io.Reader)
}

// Kind returns Embedded.
func (b *EmbeddedBackend) Kind() Kind {
	return Embedded
}

func (b *EmbeddedBackend) sealed() {}

// Install hands StubRNG to the embedded library.
func (b *EmbeddedBackend) Install() {
	if b.SetRNG != nil {
		b.SetRNG(StubRNG)
	}
}

// StubRNG is a deterministic random number source which only returns zeros,
// signature verification does not require entropy.
var StubRNG io.Reader = zeroReader{}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

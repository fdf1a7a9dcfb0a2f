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

// Package sequencer implements the secure boot sequence executed once at
// power-on:
//
//  1. diagnostics bring-up (debug hook and trace subsystem)
//  2. crypto backend bring-up
//  3. target bring-up
//  4. image location through the image-trust engine
//  5. transfer of control to the located image
//
// The sequence runs on a single goroutine, never revisits a stage and never
// returns: it ends by jumping to the application, terminating the boot
// attempt, or stopping in the board loop hook.
package sequencer

import (
	"errors"
	"fmt"

	"github.com/transparency-dev/armored-witness-bootloader/internal/backend"
	"github.com/transparency-dev/armored-witness-bootloader/internal/bootlog"
)

// StatusBadResponse is the failure status used when the image-trust engine
// reports success without a usable image.
const StatusBadResponse = -1

// FailurePolicy defines the reaction to target bring-up and image location
// failures.
type FailurePolicy int

const (
	// TerminateOnFailure logs an error and exits with the failure status.
	TerminateOnFailure FailurePolicy = iota
	// LoopOnFailure hands control to the board TargetLoop hook.
	LoopOnFailure
)

func (p FailurePolicy) String() string {
	switch p {
	case TerminateOnFailure:
		return "terminate"
	case LoopOnFailure:
		return "loop"
	}

	return fmt.Sprintf("FailurePolicy(%d)", int(p))
}

// Config holds the collaborators of a boot sequence.
type Config struct {
	// Hooks are the board override points, DefaultHooks when nil.
	Hooks Hooks
	// Crypto is the crypto backend compiled into the build.
	Crypto backend.Backend
	// Locator is the image-trust engine.
	Locator Locator
	// Platform provides the terminal primitives.
	Platform Platform
	// Policy is the failure policy compiled into the build.
	Policy FailurePolicy
	// Log is the boot log sink, a klog backed logger when nil.
	Log Logger
	// Trace, when set, brings up the trace subsystem during diagnostics
	// bring-up. Its failure does not affect the boot sequence.
	Trace func() error
}

// Sequencer represents a boot sequence.
type Sequencer struct {
	hooks    Hooks
	crypto   backend.Backend
	locator  Locator
	platform Platform
	policy   FailurePolicy
	log      Logger
	trace    func() error

	started bool
}

// New returns a boot sequence for the given configuration.
func New(cfg Config) (*Sequencer, error) {
	switch {
	case cfg.Crypto == nil:
		return nil, errors.New("missing crypto backend")
	case cfg.Locator == nil:
		return nil, errors.New("missing image locator")
	case cfg.Platform == nil:
		return nil, errors.New("missing platform")
	case cfg.Policy != TerminateOnFailure && cfg.Policy != LoopOnFailure:
		return nil, fmt.Errorf("invalid failure policy %v", cfg.Policy)
	}

	s := &Sequencer{
		hooks:    cfg.Hooks,
		crypto:   cfg.Crypto,
		locator:  cfg.Locator,
		platform: cfg.Platform,
		policy:   cfg.Policy,
		log:      cfg.Log,
		trace:    cfg.Trace,
	}

	if s.hooks == nil {
		s.hooks = DefaultHooks{}
	}

	if s.log == nil {
		s.log = bootlog.New("")
	}

	return s, nil
}

// Boot runs the boot sequence, it never returns.
//
// Boot panics if invoked more than once, or if any of the platform
// primitives returns.
func (s *Sequencer) Boot() {
	if s.started {
		panic("boot sequence already started")
	}

	s.started = true

	s.diagnostics()
	s.log.Infof("Starting bootloader")

	s.cryptoInit()

	if rc := s.hooks.TargetInit(); rc != 0 {
		s.fail(rc, fmt.Sprintf("Failed to initialize target, error: %d", rc))
	}

	var rsp Response

	if rc := s.locator.Locate(&rsp); rc != 0 {
		s.fail(rc, fmt.Sprintf("Failed to locate firmware image, error: %d", rc))
	}

	addr, ok := rsp.JumpAddress()

	if !ok {
		s.fail(StatusBadResponse, fmt.Sprintf("Failed to locate firmware image, error: %d", StatusBadResponse))
	}

	s.start(addr)
}

func (s *Sequencer) diagnostics() {
	// debug hook failures are not observable
	_ = s.hooks.TargetDebugInit()

	if s.trace == nil {
		return
	}

	if err := s.trace(); err != nil {
		s.log.Errorf("Trace setup failed, %v", err)
	}
}

func (s *Sequencer) cryptoInit() {
	switch b := s.crypto.(type) {
	case *backend.PlatformBackend:
		if rc := b.Init(); rc != 0 {
			// no fallback can apply without a working trust root
			s.log.Errorf("Failed to setup crypto backend, error: %d", rc)
			s.exit(rc)
		}
	case *backend.EmbeddedBackend:
		b.Install()
	default:
		panic(fmt.Sprintf("unsupported crypto backend %T", s.crypto))
	}
}

// fail applies the failure policy, it is shared by every policy gated
// failure point and never returns.
func (s *Sequencer) fail(rc int, reason string) {
	switch s.policy {
	case LoopOnFailure:
		s.log.Infof("Boot process stopped, %s", reason)
		s.log.Flush()
		_ = s.hooks.TargetLoop()
		s.platform.Halt()
		panic("platform halt returned")
	default:
		s.log.Errorf("%s", reason)
		s.exit(rc)
	}
}

func (s *Sequencer) exit(rc int) {
	s.log.Flush()
	s.platform.Exit(rc)
	panic("platform exit returned")
}

func (s *Sequencer) start(addr uint32) {
	// the trailing newline and flush ensure the last record is out
	// before the application takes over the stack
	s.log.Infof("Booting firmware image at %#x\n", addr)
	s.log.Flush()

	_ = s.hooks.TargetLEDOff()

	s.platform.StartApplication(addr)
	panic("application start returned")
}

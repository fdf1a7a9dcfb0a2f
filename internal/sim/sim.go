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

// Package sim runs the boot sequence on the host.
//
// The simulated platform records every hook, engine and platform call and
// unwinds the sequencer stack when a non-returning primitive (application
// start, exit, halt) is reached, so that a full power-on sequence can be
// observed and asserted upon.
package sim

import (
	"errors"
	"fmt"

	"github.com/transparency-dev/armored-witness-bootloader/sequencer"
)

// Outcome represents how a simulated boot ended.
type Outcome int

const (
	// Jumped means control was transferred to the application.
	Jumped Outcome = iota
	// Exited means the boot attempt terminated with a status code.
	Exited
	// Halted means the boot process stopped awaiting a reset.
	Halted
)

func (o Outcome) String() string {
	switch o {
	case Jumped:
		return "jumped"
	case Exited:
		return "exited"
	case Halted:
		return "halted"
	}

	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Call names recorded in Result.Calls.
const (
	CallTargetDebugInit  = "TargetDebugInit"
	CallTargetInit       = "TargetInit"
	CallTargetLoop       = "TargetLoop"
	CallTargetLEDOff     = "TargetLEDOff"
	CallLocate           = "Locate"
	CallStartApplication = "StartApplication"
	CallExit             = "Exit"
	CallHalt             = "Halt"
)

// Result represents a simulated boot run.
type Result struct {
	Outcome Outcome
	// Code is the exit status, valid for Exited.
	Code int
	// Address is the application entry point, valid for Jumped.
	Address uint32
	// Calls lists the hook, engine and platform calls in order.
	Calls []string
}

// Called returns the number of times a call was recorded.
func (r *Result) Called(name string) (n int) {
	for _, c := range r.Calls {
		if c == name {
			n++
		}
	}

	return
}

// divergence unwinds the sequencer once a terminal primitive is reached.
type divergence struct{}

type recorder struct {
	res     *Result
	hooks   sequencer.Hooks
	locator sequencer.Locator
}

func (r *recorder) record(name string) {
	r.res.Calls = append(r.res.Calls, name)
}

func (r *recorder) TargetInit() int {
	r.record(CallTargetInit)
	return r.hooks.TargetInit()
}

func (r *recorder) TargetLoop() int {
	r.record(CallTargetLoop)
	return r.hooks.TargetLoop()
}

func (r *recorder) TargetDebugInit() int {
	r.record(CallTargetDebugInit)
	return r.hooks.TargetDebugInit()
}

func (r *recorder) TargetLEDOff() int {
	r.record(CallTargetLEDOff)
	return r.hooks.TargetLEDOff()
}

func (r *recorder) Locate(rsp *sequencer.Response) int {
	r.record(CallLocate)
	return r.locator.Locate(rsp)
}

func (r *recorder) StartApplication(addr uint32) {
	r.record(CallStartApplication)
	r.res.Outcome = Jumped
	r.res.Address = addr
	panic(divergence{})
}

func (r *recorder) Exit(code int) {
	r.record(CallExit)
	r.res.Outcome = Exited
	r.res.Code = code
	panic(divergence{})
}

func (r *recorder) Halt() {
	r.record(CallHalt)
	r.res.Outcome = Halted
	panic(divergence{})
}

// Run executes a boot sequence with the given configuration, replacing its
// platform with the simulated one.
//
// Panics not originating from a terminal primitive are propagated.
func Run(cfg sequencer.Config) (res *Result, err error) {
	res = &Result{}

	r := &recorder{
		res:     res,
		hooks:   cfg.Hooks,
		locator: cfg.Locator,
	}

	if r.hooks == nil {
		r.hooks = sequencer.DefaultHooks{}
	}

	cfg.Hooks = r
	cfg.Platform = r

	if cfg.Locator != nil {
		cfg.Locator = r
	}

	s, err := sequencer.New(cfg)

	if err != nil {
		return nil, err
	}

	defer func() {
		if v := recover(); v != nil {
			if _, ok := v.(divergence); !ok {
				panic(v)
			}
		}
	}()

	s.Boot()

	return nil, errors.New("boot sequence returned")
}

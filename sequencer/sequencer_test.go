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

package sequencer_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/transparency-dev/armored-witness-bootloader/internal/backend"
	"github.com/transparency-dev/armored-witness-bootloader/internal/image"
	"github.com/transparency-dev/armored-witness-bootloader/internal/sim"
	"github.com/transparency-dev/armored-witness-bootloader/sequencer"
)

// events collects log records and calls in a single ordered list.
type events []string

func (e *events) add(format string, args ...any) {
	*e = append(*e, fmt.Sprintf(format, args...))
}

type fakeLog struct {
	ev *events
}

func (l fakeLog) Infof(format string, args ...any) {
	l.ev.add("info: "+strings.TrimRight(format, "\n"), args...)
}

func (l fakeLog) Errorf(format string, args ...any) {
	l.ev.add("error: "+format, args...)
}

func (l fakeLog) Flush() {
	l.ev.add("flush")
}

// fakeHooks returns configurable status codes.
type fakeHooks struct {
	sequencer.DefaultHooks

	initRC int
}

func (h fakeHooks) TargetInit() int {
	return h.initRC
}

func locator(rc int, offset uint32, headerSize uint16) sequencer.Locator {
	return sequencer.LocatorFunc(func(rsp *sequencer.Response) int {
		if rc != 0 {
			return rc
		}
		rsp.ImageOffset = offset
		rsp.Header = &image.Header{Magic: image.Magic, HeaderSize: headerSize}
		return 0
	})
}

func platformCrypto(rc int) backend.Backend {
	return &backend.PlatformBackend{
		Setup: func(*backend.PlatformContext) int { return rc },
	}
}

func quietLog() sequencer.Logger {
	return fakeLog{ev: &events{}}
}

func TestJumpAddress(t *testing.T) {
	res, err := sim.Run(sequencer.Config{
		Crypto:  platformCrypto(0),
		Locator: locator(0, 0x1000, 0x200),
		Log:     quietLog(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got, want := res.Outcome, sim.Jumped; got != want {
		t.Fatalf("Got outcome %v, want %v", got, want)
	}

	if got, want := res.Address, uint32(0x1200); got != want {
		t.Fatalf("Got address %#x, want %#x", got, want)
	}

	want := []string{
		sim.CallTargetDebugInit,
		sim.CallTargetInit,
		sim.CallLocate,
		sim.CallTargetLEDOff,
		sim.CallStartApplication,
	}

	if diff := cmp.Diff(want, res.Calls); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

func TestFailurePolicyIsSharedAcrossCallSites(t *testing.T) {
	const rc = 7

	sites := map[string]sequencer.Config{
		"target init": {
			Hooks:   fakeHooks{initRC: rc},
			Locator: locator(0, 0x1000, 0x200),
		},
		"image location": {
			Locator: locator(rc, 0, 0),
		},
	}

	for _, policy := range []sequencer.FailurePolicy{sequencer.TerminateOnFailure, sequencer.LoopOnFailure} {
		t.Run(policy.String(), func(t *testing.T) {
			results := map[string]*sim.Result{}

			for site, cfg := range sites {
				cfg.Policy = policy
				cfg.Crypto = platformCrypto(0)
				cfg.Log = quietLog()

				res, err := sim.Run(cfg)
				if err != nil {
					t.Fatalf("%s: Run: %v", site, err)
				}

				if got := res.Called(sim.CallStartApplication); got != 0 {
					t.Fatalf("%s: application started %d times after failure", site, got)
				}

				results[site] = res
			}

			a, b := results["target init"], results["image location"]

			if a.Outcome != b.Outcome || a.Code != b.Code {
				t.Fatalf("Policy differs by call site: target init %v/%d, image location %v/%d", a.Outcome, a.Code, b.Outcome, b.Code)
			}

			if got, want := a.Called(sim.CallTargetLoop), b.Called(sim.CallTargetLoop); got != want {
				t.Fatalf("TargetLoop calls differ by call site: %d vs %d", got, want)
			}

			switch policy {
			case sequencer.TerminateOnFailure:
				if a.Outcome != sim.Exited || a.Code != rc {
					t.Fatalf("Got %v/%d, want %v/%d", a.Outcome, a.Code, sim.Exited, rc)
				}
			case sequencer.LoopOnFailure:
				if a.Outcome != sim.Halted || a.Called(sim.CallTargetLoop) != 1 {
					t.Fatalf("Got %v with %d loop calls, want %v with 1", a.Outcome, a.Called(sim.CallTargetLoop), sim.Halted)
				}
			}
		})
	}
}

func TestPlatformCryptoFailureIsFatal(t *testing.T) {
	const rc = -0x7080

	for _, policy := range []sequencer.FailurePolicy{sequencer.TerminateOnFailure, sequencer.LoopOnFailure} {
		t.Run(policy.String(), func(t *testing.T) {
			ev := &events{}

			res, err := sim.Run(sequencer.Config{
				Crypto:  platformCrypto(rc),
				Locator: locator(0, 0x1000, 0x200),
				Policy:  policy,
				Log:     fakeLog{ev: ev},
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			if res.Outcome != sim.Exited || res.Code != rc {
				t.Fatalf("Got %v/%d, want %v/%d", res.Outcome, res.Code, sim.Exited, rc)
			}

			for _, c := range []string{sim.CallTargetInit, sim.CallTargetLoop, sim.CallLocate, sim.CallStartApplication} {
				if n := res.Called(c); n != 0 {
					t.Errorf("%s called %d times after crypto failure", c, n)
				}
			}

			want := fmt.Sprintf("error: Failed to setup crypto backend, error: %d", rc)
			if !contains(*ev, want) {
				t.Errorf("Log %q does not contain %q", *ev, want)
			}
		})
	}
}

func TestEmbeddedCrypto(t *testing.T) {
	var rngs []io.Reader

	res, err := sim.Run(sequencer.Config{
		Crypto: &backend.EmbeddedBackend{
			SetRNG: func(r io.Reader) { rngs = append(rngs, r) },
		},
		Locator: locator(0, 0x1000, 0x200),
		Log:     quietLog(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Outcome != sim.Jumped {
		t.Fatalf("Got outcome %v, want %v", res.Outcome, sim.Jumped)
	}

	if len(rngs) != 1 || rngs[0] != backend.StubRNG {
		t.Fatalf("Got RNG installs %v, want only the stub RNG", rngs)
	}
}

func TestLoopPolicyDoesNotFallThrough(t *testing.T) {
	res, err := sim.Run(sequencer.Config{
		Hooks:   fakeHooks{initRC: 1},
		Crypto:  platformCrypto(0),
		Locator: locator(0, 0x1000, 0x200),
		Policy:  sequencer.LoopOnFailure,
		Log:     quietLog(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		sim.CallTargetDebugInit,
		sim.CallTargetInit,
		sim.CallTargetLoop,
		sim.CallHalt,
	}

	if diff := cmp.Diff(want, res.Calls); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

func TestTerminatePolicyExitCodeUnmodified(t *testing.T) {
	for _, rc := range []int{1, -1, 255, -0x13579} {
		t.Run(fmt.Sprint(rc), func(t *testing.T) {
			res, err := sim.Run(sequencer.Config{
				Hooks:   fakeHooks{initRC: rc},
				Crypto:  platformCrypto(0),
				Locator: locator(0, 0x1000, 0x200),
				Policy:  sequencer.TerminateOnFailure,
				Log:     quietLog(),
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			if res.Outcome != sim.Exited || res.Code != rc {
				t.Fatalf("Got %v/%d, want %v/%d", res.Outcome, res.Code, sim.Exited, rc)
			}

			if n := res.Called(sim.CallLocate); n != 0 {
				t.Fatalf("Locate called %d times after target failure", n)
			}
		})
	}
}

func TestBadResponse(t *testing.T) {
	for _, test := range []struct {
		name string
		loc  sequencer.Locator
	}{
		{
			name: "missing header",
			loc: sequencer.LocatorFunc(func(rsp *sequencer.Response) int {
				rsp.ImageOffset = 0x1000
				return 0
			}),
		}, {
			name: "address overflow",
			loc:  locator(0, 0xffffff00, 0x200),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			res, err := sim.Run(sequencer.Config{
				Crypto:  platformCrypto(0),
				Locator: test.loc,
				Log:     quietLog(),
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			if res.Outcome != sim.Exited || res.Code != sequencer.StatusBadResponse {
				t.Fatalf("Got %v/%d, want %v/%d", res.Outcome, res.Code, sim.Exited, sequencer.StatusBadResponse)
			}
		})
	}
}

func TestTraceFailureIgnored(t *testing.T) {
	traced := 0
	ev := &events{}

	res, err := sim.Run(sequencer.Config{
		Crypto:  platformCrypto(0),
		Locator: locator(0, 0x1000, 0x200),
		Log:     fakeLog{ev: ev},
		Trace: func() error {
			traced++
			return errors.New("no console")
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if traced != 1 {
		t.Fatalf("Trace setup called %d times, want 1", traced)
	}

	if res.Outcome != sim.Jumped {
		t.Fatalf("Got outcome %v, want %v", res.Outcome, sim.Jumped)
	}

	if len(*ev) == 0 || (*ev)[0] != "error: Trace setup failed, no console" {
		t.Fatalf("Got log %q, want trace failure recorded first", *ev)
	}
}

func TestLEDOffFailureIgnored(t *testing.T) {
	res, err := sim.Run(sequencer.Config{
		Hooks:   ledHooks{},
		Crypto:  platformCrypto(0),
		Locator: locator(0, 0x1000, 0x200),
		Log:     quietLog(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Outcome != sim.Jumped || res.Address != 0x1200 {
		t.Fatalf("Got %v at %#x, want %v at 0x1200", res.Outcome, res.Address, sim.Jumped)
	}
}

type ledHooks struct {
	sequencer.DefaultHooks
}

func (ledHooks) TargetLEDOff() int {
	return 1
}

// orderedPlatform records platform calls into the shared events list.
type orderedPlatform struct {
	ev *events
}

type stop struct{}

func (p orderedPlatform) StartApplication(addr uint32) {
	p.ev.add("start %#x", addr)
	panic(stop{})
}

func (p orderedPlatform) Exit(code int) {
	p.ev.add("exit %d", code)
	panic(stop{})
}

func (p orderedPlatform) Halt() {
	p.ev.add("halt")
	panic(stop{})
}

type orderedHooks struct {
	sequencer.DefaultHooks

	ev *events
}

func (h orderedHooks) TargetLEDOff() int {
	h.ev.add("led off")
	return 0
}

func boot(t *testing.T, s *sequencer.Sequencer) {
	t.Helper()

	defer func() {
		if v := recover(); v != nil {
			if _, ok := v.(stop); !ok {
				panic(v)
			}
		}
	}()

	s.Boot()
	t.Fatal("Boot returned")
}

func TestFinalRecordFlushedBeforeTransfer(t *testing.T) {
	ev := &events{}

	s, err := sequencer.New(sequencer.Config{
		Hooks:    orderedHooks{ev: ev},
		Crypto:   platformCrypto(0),
		Locator:  locator(0, 0x1000, 0x200),
		Platform: orderedPlatform{ev: ev},
		Log:      fakeLog{ev: ev},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	boot(t, s)

	want := []string{
		"info: Starting bootloader",
		"info: Booting firmware image at 0x1200",
		"flush",
		"led off",
		"start 0x1200",
	}

	if diff := cmp.Diff(want, []string(*ev)); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

func TestLoopPolicyLogsAndStops(t *testing.T) {
	ev := &events{}

	s, err := sequencer.New(sequencer.Config{
		Crypto:   platformCrypto(0),
		Locator:  locator(3, 0, 0),
		Platform: orderedPlatform{ev: ev},
		Policy:   sequencer.LoopOnFailure,
		Log:      fakeLog{ev: ev},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	boot(t, s)

	want := []string{
		"info: Starting bootloader",
		"info: Boot process stopped, Failed to locate firmware image, error: 3",
		"flush",
		"halt",
	}

	if diff := cmp.Diff(want, []string(*ev)); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

type returningPlatform struct{}

func (returningPlatform) StartApplication(uint32) {}
func (returningPlatform) Exit(int)                {}
func (returningPlatform) Halt()                   {}

func TestReturningPrimitivesPanic(t *testing.T) {
	for _, test := range []struct {
		name string
		cfg  sequencer.Config
	}{
		{
			name: "start",
			cfg:  sequencer.Config{Locator: locator(0, 0x1000, 0x200)},
		}, {
			name: "exit",
			cfg:  sequencer.Config{Locator: locator(1, 0, 0)},
		}, {
			name: "halt",
			cfg:  sequencer.Config{Locator: locator(1, 0, 0), Policy: sequencer.LoopOnFailure},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			cfg := test.cfg
			cfg.Crypto = platformCrypto(0)
			cfg.Platform = returningPlatform{}
			cfg.Log = quietLog()

			s, err := sequencer.New(cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			defer func() {
				if recover() == nil {
					t.Fatal("Expected panic")
				}
			}()

			s.Boot()
		})
	}
}

func TestBootRunsOnce(t *testing.T) {
	s, err := sequencer.New(sequencer.Config{
		Crypto:   platformCrypto(0),
		Locator:  locator(0, 0x1000, 0x200),
		Platform: orderedPlatform{ev: &events{}},
		Log:      quietLog(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	boot(t, s)

	defer func() {
		v := recover()
		if v == nil {
			t.Fatal("Expected panic on second boot")
		}
		if _, ok := v.(stop); ok {
			t.Fatal("Second boot reached the platform")
		}
	}()

	s.Boot()
}

func TestNewValidation(t *testing.T) {
	for _, test := range []struct {
		name string
		cfg  sequencer.Config
	}{
		{
			name: "missing crypto",
			cfg:  sequencer.Config{Locator: locator(0, 0, 0), Platform: returningPlatform{}},
		}, {
			name: "missing locator",
			cfg:  sequencer.Config{Crypto: platformCrypto(0), Platform: returningPlatform{}},
		}, {
			name: "missing platform",
			cfg:  sequencer.Config{Crypto: platformCrypto(0), Locator: locator(0, 0, 0)},
		}, {
			name: "invalid policy",
			cfg:  sequencer.Config{Crypto: platformCrypto(0), Locator: locator(0, 0, 0), Platform: returningPlatform{}, Policy: 2},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := sequencer.New(test.cfg); err == nil {
				t.Fatal("Expected error")
			}
		})
	}
}

func contains(ev []string, s string) bool {
	for _, e := range ev {
		if e == s {
			return true
		}
	}

	return false
}

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

//go:build !tamago

// The bootsim tool runs the boot sequence on the host, against either a
// fake image-trust engine or a firmware image verified with the
// firmware transparency engine, and reports how the boot ended.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/coreos/go-semver/semver"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-witness-bootloader/internal/backend"
	"github.com/transparency-dev/armored-witness-bootloader/internal/config"
	"github.com/transparency-dev/armored-witness-bootloader/internal/image"
	"github.com/transparency-dev/armored-witness-bootloader/internal/sim"
	"github.com/transparency-dev/armored-witness-bootloader/internal/storage"
	"github.com/transparency-dev/armored-witness-bootloader/internal/trace"
	"github.com/transparency-dev/armored-witness-bootloader/internal/trust"
	"github.com/transparency-dev/armored-witness-bootloader/sequencer"
)

const (
	// slotOffset is the storage offset of the simulated image slot.
	slotOffset = 0x10000
	// loadAddr is the simulated application load address.
	loadAddr = 0x80000000
)

var (
	policy    = flag.String("policy", config.Policy.String(), "Failure policy: terminate or loop.")
	crypto    = flag.String("crypto", config.CryptoBackend.String(), "Crypto backend: platform or embedded.")
	cryptoRC  = flag.Int("crypto_rc", 0, "Status returned by the platform crypto backend setup.")
	targetRC  = flag.Int("target_rc", 0, "Status returned by the target init hook.")
	locateRC  = flag.Int("locate_rc", 0, "Status returned by the fake image-trust engine.")
	offset    = flag.Uint("image_offset", 0x1000, "Image offset reported by the fake image-trust engine.")
	hdrSize   = flag.Uint("header_size", image.DefaultHeaderSize, "Header size reported by the fake image-trust engine.")
	traceOut  = flag.Bool("trace", config.Trace, "Emit boot records through the trace subsystem.")
	blOnly    = flag.Bool("bootloader_only", config.BootloaderOnlyLog, "Restrict trace output to bootloader groups.")
	imageFile = flag.String("image", "", "Firmware image to boot, replaces the fake image-trust engine.")

	logOrigin          = flag.String("log_origin", "", "FT log origin string.")
	logPubKeyFile      = flag.String("log_pubkey_file", "", "File containing the FT log's public key in Note verifier format.")
	manifestPubKeyFile = flag.String("manifest_pubkey_file", "", "File containing a Note verifier string to verify manifest signatures.")
	component          = flag.String("component", "", "Expected manifest component, any if empty.")
	minVersion         = flag.String("min_version", "", "Minimum accepted firmware version.")
)

// options holds the simulation settings.
type options struct {
	policy     string
	crypto     string
	cryptoRC   int
	targetRC   int
	locateRC   int
	offset     uint
	headerSize uint
	trace      bool
	blOnly     bool
	image      string

	logOrigin          string
	logPubKeyFile      string
	manifestPubKeyFile string
	component          string
	minVersion         string
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	code, err := run(options{
		policy:             *policy,
		crypto:             *crypto,
		cryptoRC:           *cryptoRC,
		targetRC:           *targetRC,
		locateRC:           *locateRC,
		offset:             *offset,
		headerSize:         *hdrSize,
		trace:              *traceOut,
		blOnly:             *blOnly,
		image:              *imageFile,
		logOrigin:          *logOrigin,
		logPubKeyFile:      *logPubKeyFile,
		manifestPubKeyFile: *manifestPubKeyFile,
		component:          *component,
		minVersion:         *minVersion,
	}, os.Stdout)
	if err != nil {
		klog.Exitf("Simulation failed: %v", err)
	}

	klog.Flush()
	os.Exit(code)
}

// run simulates a boot attempt, reports its outcome to w and returns the
// process exit status: 1 when the boot attempt terminated with a failure
// status, 0 otherwise.
func run(o options, w io.Writer) (int, error) {
	p, err := parsePolicy(o.policy)
	if err != nil {
		return 0, err
	}

	b, err := newCrypto(o.crypto, o.cryptoRC)
	if err != nil {
		return 0, err
	}

	l, err := newLocator(o)
	if err != nil {
		return 0, err
	}

	cfg := sequencer.Config{
		Hooks:   &hooks{initRC: o.targetRC},
		Crypto:  b,
		Locator: l,
		Policy:  p,
	}

	if o.trace {
		t := trace.New(config.TraceLevel)

		if o.blOnly {
			t.SetIncludeFilters(trace.BootloaderGroups)
		}

		cfg.Trace = func() error {
			return t.Init(os.Stderr)
		}
		cfg.Log = t.Group("BL")
	}

	res, err := sim.Run(cfg)
	if err != nil {
		return 0, err
	}

	klog.Infof("Calls: %s", strings.Join(res.Calls, " -> "))

	switch res.Outcome {
	case sim.Jumped:
		fmt.Fprintf(w, "jumped %#x\n", res.Address)
	case sim.Exited:
		fmt.Fprintf(w, "exited %d\n", res.Code)
	case sim.Halted:
		fmt.Fprintf(w, "halted\n")
	}

	if res.Outcome == sim.Exited && res.Code != 0 {
		return 1, nil
	}

	return 0, nil
}

type hooks struct {
	sequencer.DefaultHooks

	initRC int
}

func (h *hooks) TargetInit() int {
	return h.initRC
}

func parsePolicy(s string) (sequencer.FailurePolicy, error) {
	for _, p := range []sequencer.FailurePolicy{sequencer.TerminateOnFailure, sequencer.LoopOnFailure} {
		if p.String() == s {
			return p, nil
		}
	}

	return 0, fmt.Errorf("unknown failure policy %q", s)
}

func newCrypto(s string, rc int) (backend.Backend, error) {
	switch s {
	case backend.Platform.String():
		return &backend.PlatformBackend{
			Setup: func(*backend.PlatformContext) int { return rc },
		}, nil
	case backend.Embedded.String():
		return &backend.EmbeddedBackend{
			SetRNG: func(io.Reader) {
				klog.V(1).Info("Stub RNG installed")
			},
		}, nil
	}

	return nil, fmt.Errorf("unknown crypto backend %q", s)
}

func newLocator(o options) (sequencer.Locator, error) {
	if len(o.image) == 0 {
		if o.headerSize > 0xffff {
			return nil, fmt.Errorf("header size %#x too large", o.headerSize)
		}

		if o.offset > 0xffffffff {
			return nil, fmt.Errorf("image offset %#x too large", o.offset)
		}

		return sequencer.LocatorFunc(func(rsp *sequencer.Response) int {
			if o.locateRC != 0 {
				return o.locateRC
			}

			rsp.ImageOffset = uint32(o.offset)
			rsp.Header = &image.Header{
				Magic:      image.Magic,
				HeaderSize: uint16(o.headerSize),
			}

			return 0
		}), nil
	}

	img, err := os.ReadFile(o.image)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %q: %v", o.image, err)
	}

	blocks := (slotOffset+len(img))/storage.ExpectedBlockSize + 1
	card := storage.NewMemCard(blocks)

	if err := storage.Flash(card, img, slotOffset/storage.ExpectedBlockSize); err != nil {
		return nil, fmt.Errorf("failed to load image: %v", err)
	}

	e := &trust.Engine{
		Card: card,
		Slots: []trust.Slot{
			{Offset: slotOffset, Size: card.Info().Capacity() - slotOffset, Address: loadAddr},
		},
		Stager: &trust.BufferStager{
			Start: loadAddr,
			Buf:   make([]byte, len(img)),
		},
	}

	e.LogOrigin = o.logOrigin
	e.Component = o.component

	if e.LogVerifier, err = readVerifier(o.logPubKeyFile, "log"); err != nil {
		return nil, err
	}

	v, err := readVerifier(o.manifestPubKeyFile, "manifest")
	if err != nil {
		return nil, err
	}
	e.ManifestVerifiers = []note.Verifier{v}

	if len(o.minVersion) > 0 {
		if e.MinVersion, err = semver.NewVersion(o.minVersion); err != nil {
			return nil, fmt.Errorf("invalid minimum version %q: %v", o.minVersion, err)
		}
	}

	return e, nil
}

func readVerifier(p string, thing string) (note.Verifier, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("missing %s pub key file", thing)
	}

	vs, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s pub key file %q: %v", thing, p, err)
	}

	v, err := note.NewVerifier(strings.TrimSpace(string(vs)))
	if err != nil {
		return nil, fmt.Errorf("invalid %s note verifier string %q: %v", thing, vs, err)
	}

	return v, nil
}

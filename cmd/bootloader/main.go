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

//go:build tamago

// The bootloader program runs on the USB armory Mk II, it selects the first
// firmware image backed by a valid firmware transparency proof bundle and
// transfers control to it.
package main

import (
	"flag"
	"runtime"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-witness-bootloader/internal/config"
	"github.com/transparency-dev/armored-witness-bootloader/sequencer"
)

// initialized at compile time (see Makefile)
var (
	Build    string
	Revision string

	// firmware transparency trust anchors
	LogOrigin         string
	LogPublicKey      string
	ManifestPublicKey string
	// MinVersion is the lowest firmware version accepted, empty for none.
	MinVersion string
)

func main() {
	klog.InitFlags(nil)
	flag.Set("logtostderr", "true")
	flag.Parse()

	klog.Infof("%s/%s (%s) • bootloader • %s %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version(),
		Revision, Build)

	klog.Infof("build configuration %s", config.String())

	b := &board{
		card: storageCard(),
	}

	cfg := sequencer.Config{
		Hooks:    b,
		Crypto:   cryptoBackend(),
		Locator:  imageEngine(b.card),
		Platform: armory{},
		Policy:   config.Policy,
	}

	if tracer := config.NewTracer(); tracer != nil {
		cfg.Trace = func() error {
			return tracer.Init(console{})
		}
		cfg.Log = tracer.Group("BL")
	}

	s, err := sequencer.New(cfg)

	if err != nil {
		klog.Exitf("invalid boot configuration, %v", err)
	}

	// never returns
	s.Boot()
}

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

package main

import (
	"runtime"
	"time"

	"k8s.io/klog/v2"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/transparency-dev/armored-witness-bootloader/internal/storage"
	"github.com/transparency-dev/armored-witness-bootloader/internal/trust"
	"github.com/transparency-dev/armored-witness-bootloader/sequencer"
)

// blinkInterval is the white LED toggle period while the boot process is
// stopped.
const blinkInterval = 100 * time.Millisecond

// board implements the USB armory Mk II boot hooks.
type board struct {
	sequencer.DefaultHooks

	card storage.Card
}

// TargetInit raises the CPU frequency and probes the internal storage.
func (b *board) TargetInit() int {
	if !imx6ul.Native {
		return 0
	}

	if err := imx6ul.SetARMFreq(imx6ul.Freq792); err != nil {
		klog.Errorf("could not set CPU frequency, %v", err)
		return trust.StatusBadStatus
	}

	if err := b.card.Detect(); err != nil {
		klog.Errorf("could not detect storage, %v", err)
		return trust.StatusFlash
	}

	info := b.card.Info()

	if info.BlockSize != storage.ExpectedBlockSize {
		klog.Errorf("unexpected storage block size %d", info.BlockSize)
		return trust.StatusFlash
	}

	klog.V(2).Infof("storage detected, %d blocks", info.Blocks)

	return 0
}

// TargetDebugInit lights the white LED as boot indicator.
func (b *board) TargetDebugInit() int {
	if err := usbarmory.LED("white", true); err != nil {
		return 1
	}

	return 0
}

// TargetLoop blinks the white LED until the next reset.
func (b *board) TargetLoop() int {
	var on bool

	for {
		on = !on
		usbarmory.LED("white", on)

		runtime.Gosched()
		time.Sleep(blinkInterval)
	}
}

// TargetLEDOff turns off all LEDs.
func (b *board) TargetLEDOff() int {
	rc := 0

	for _, led := range []string{"blue", "white"} {
		if err := usbarmory.LED(led, false); err != nil {
			rc = 1
		}
	}

	return rc
}

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
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/usbarmory/tamago/arm"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
)

// defined in boot.s
func exec(addr uint32)
func svc()

// armory implements the terminal boot primitives.
type armory struct{}

// StartApplication jumps to addr from supervisor mode, with caches flushed
// and disabled.
func (armory) StartApplication(addr uint32) {
	arm.SystemExceptionHandler = func(n int) {
		if n != arm.SUPERVISOR {
			panic("unhandled exception")
		}

		// RNGB driver doesn't play well with previous initializations
		imx6ul.RNGB.Reset()

		imx6ul.ARM.FlushDataCache()
		imx6ul.ARM.DisableCache()

		exec(addr)
	}

	svc()
}

// Exit terminates the bootloader.
func (armory) Exit(code int) {
	klog.Flush()
	os.Exit(code)
}

// Halt idles until the next reset.
func (armory) Halt() {
	for {
		time.Sleep(time.Second)
	}
}

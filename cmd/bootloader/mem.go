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
	_ "unsafe"

	"github.com/usbarmory/tamago/dma"

	"github.com/transparency-dev/armored-witness-bootloader/internal/trust"
)

const (
	// application image
	appStart = 0x80000000
	appSize  = 0x10000000 // 256MB

	// bootloader
	bootStart = 0x90000000
	bootSize  = 0x08000000 // 128MB

	// bootloader DMA
	dmaStart = 0x98000000
	dmaSize  = 0x02000000 // 32MB
)

//go:linkname ramStart runtime.ramStart
var ramStart uint32 = bootStart

//go:linkname ramSize runtime.ramSize
var ramSize uint32 = bootSize

var appRegion *dma.Region

func init() {
	appRegion, _ = dma.NewRegion(appStart, appSize, false)
	dma.Init(dmaStart, dmaSize)
}

// appStager returns a stager copying verified images to the application
// memory region.
func appStager() trust.Stager {
	addr, buf := appRegion.Reserve(appSize, 0)

	return &trust.BufferStager{
		Start: uint32(addr),
		Buf:   buf,
	}
}

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
	"crypto/rand"
	"io"

	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/transparency-dev/armored-witness-bootloader/internal/backend"
	"github.com/transparency-dev/armored-witness-bootloader/internal/config"
)

// cryptoBackend returns the crypto backend selected at compile time.
func cryptoBackend() backend.Backend {
	switch config.CryptoBackend {
	case backend.Embedded:
		return &backend.EmbeddedBackend{
			SetRNG: func(rng io.Reader) {
				rand.Reader = rng
			},
		}
	default:
		return &backend.PlatformBackend{
			Setup: setupDCP,
		}
	}
}

// setupDCP initializes the i.MX6UL Data Co-Processor, which is not
// available under emulation.
func setupDCP(ctx *backend.PlatformContext) int {
	if !imx6ul.Native {
		return 0
	}

	imx6ul.DCP.Init()
	ctx.Data = imx6ul.DCP

	return 0
}

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
	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
	"github.com/usbarmory/tamago/soc/nxp/usdhc"

	"github.com/transparency-dev/armored-witness-bootloader/internal/storage"
)

const (
	// emulatedBlocks defines the size of the in-memory storage used under
	// emulation.
	emulatedBlocks = int64(64<<20) / storage.ExpectedBlockSize
)

// mmcCard adapts the uSDHC driver to storage.Card.
type mmcCard struct {
	*usdhc.USDHC
}

// Info returns information about the MMC card.
func (c mmcCard) Info() storage.CardInfo {
	info := c.USDHC.Info()

	return storage.CardInfo{
		BlockSize: info.BlockSize,
		Blocks:    info.Blocks,
	}
}

// storageCard returns the internal eMMC when running on real hardware, or an
// empty in-memory device under emulation.
func storageCard() storage.Card {
	if imx6ul.Native {
		return mmcCard{usbarmory.MMC}
	}

	return storage.NewMemCard(int(emulatedBlocks))
}

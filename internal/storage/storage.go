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

// Package storage provides the block storage abstraction used to read boot
// slots, along with an in-memory implementation for tests and simulation.
package storage

import (
	"fmt"

	"k8s.io/klog/v2"
)

const (
	// ExpectedBlockSize is the expected size of a storage block in bytes.
	ExpectedBlockSize = 512
	batchSize         = 2048
)

// CardInfo holds information about the underlying storage.
type CardInfo struct {
	// BlockSize is the size in bytes of a single block.
	BlockSize int
	// Blocks is the number of blocks available.
	Blocks int
}

// Capacity returns the storage size in bytes.
func (i CardInfo) Capacity() int64 {
	return int64(i.BlockSize) * int64(i.Blocks)
}

// Card mostly mirrors the public API of the TamaGo usdhc.USDHC driver,
// allowing substitutions for testing.
type Card interface {
	// Read reads size bytes at offset from the underlying storage.
	Read(offset int64, size int64) ([]byte, error)
	// WriteBlocks writes data at sector lba onwards on the underlying storage.
	WriteBlocks(lba int, data []byte) error
	// Info returns information about the underlying storage.
	Info() CardInfo
	// Detect causes the underlying storage to probe itself.
	Detect() error
}

// Flash writes a buffer to storage starting at block lba.
//
// The buffer is padded with zeros to ensure full blocks are written.
func Flash(card Card, buf []byte, lba int) (err error) {
	blockSize := card.Info().BlockSize
	if blockSize != ExpectedBlockSize {
		return fmt.Errorf("h/w invariant error - expected block size %d, found %d", ExpectedBlockSize, blockSize)
	}

	if rem := len(buf) % blockSize; rem > 0 {
		padded := make([]byte, len(buf)+blockSize-rem)
		copy(padded, buf)
		buf = padded
	}

	blocks := len(buf) / blockSize
	batch := batchSize

	// write in batch to limit DMA requirements
	for i := 0; i < blocks; i += batch {
		if i+batch > blocks {
			batch = blocks - i
		}

		start := i * blockSize
		end := start + blockSize*batch

		if err = card.WriteBlocks(lba+i, buf[start:end]); err != nil {
			return
		}

		klog.V(2).Infof("flashed %d/%d blocks", i+batch, blocks)
	}

	return
}

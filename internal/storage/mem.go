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

package storage

import (
	"errors"
	"fmt"
)

// MemCard is an in-memory storage device.
//
// Rather than allocating a slab of RAM to emulate the entire device, it
// uses a map internally to associate block sized slices with sector numbers,
// unwritten blocks read as zeros.
type MemCard struct {
	info CardInfo
	mem  map[int64][]byte

	// ReadErr, when set, is returned by every Read.
	ReadErr error
	// Reads counts Read invocations.
	Reads int
}

// NewMemCard creates a new in-memory block device.
func NewMemCard(numBlocks int) *MemCard {
	return &MemCard{
		mem: make(map[int64][]byte),
		info: CardInfo{
			BlockSize: ExpectedBlockSize,
			Blocks:    numBlocks,
		},
	}
}

// Read returns size bytes at offset in the in-memory storage, reads past the
// end of storage are truncated.
func (c *MemCard) Read(offset int64, size int64) ([]byte, error) {
	c.Reads++

	if c.ReadErr != nil {
		return nil, c.ReadErr
	}

	bs := int64(c.info.BlockSize)
	l := c.info.Capacity()

	switch {
	case offset < 0 || size < 0:
		return nil, errors.New("invalid read arguments")
	case offset >= l:
		return nil, fmt.Errorf("offset (%d) past end of storage (%d)", offset, l)
	case offset+size > l:
		size = l - offset
	}

	r := make([]byte, size)

	for pos := int64(0); pos < size; {
		lba := (offset + pos) / bs
		off := (offset + pos) % bs
		n := int64(copy(r[pos:], blockOrZero(c.mem[lba], bs)[off:]))
		pos += n
	}

	return r, nil
}

func blockOrZero(b []byte, bs int64) []byte {
	if b == nil {
		return make([]byte, bs)
	}

	return b
}

// WriteBlocks writes b at sector lba onwards, padding the final block with
// zeros if required.
func (c *MemCard) WriteBlocks(lba int, b []byte) error {
	bs := int64(c.info.BlockSize)

	if l := c.info.Blocks; lba < 0 || lba >= l {
		return fmt.Errorf("lba (%d) >= device blocks (%d)", lba, l)
	}

	if r := int64(len(b)) % bs; r != 0 {
		b = append(b, make([]byte, bs-r)...)
	}

	if end := int64(lba) + int64(len(b))/bs; end > int64(c.info.Blocks) {
		return fmt.Errorf("write of %d blocks at lba %d exceeds device blocks (%d)", int64(len(b))/bs, lba, c.info.Blocks)
	}

	for i, rem := int64(0), int64(len(b)); rem > 0; i, rem = i+1, rem-bs {
		buf := make([]byte, bs)
		copy(buf, b[i*bs:])
		c.mem[int64(lba)+i] = buf
	}

	return nil
}

// Info returns the in-memory storage geometry.
func (c *MemCard) Info() CardInfo {
	return c.info
}

// Detect is a no-op for in-memory storage.
func (c *MemCard) Detect() error {
	return nil
}

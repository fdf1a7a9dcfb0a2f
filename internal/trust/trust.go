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

// Package trust implements a firmware transparency image-trust engine.
//
// The engine scans the configured storage slots in order and selects the
// first image whose firmware transparency proof bundle, carried in the image
// TLV trailer, verifies against the compiled-in trust anchors.
package trust

import (
	"encoding/binary"
	"errors"
	"math"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-witness-bootloader/internal/image"
	"github.com/transparency-dev/armored-witness-bootloader/internal/storage"
	"github.com/transparency-dev/armored-witness-bootloader/sequencer"
)

// Slot represents a firmware image location.
type Slot struct {
	// Offset is the image byte offset on the storage device.
	Offset int64
	// Size is the maximum image size, including header and trailer.
	Size int64
	// Address is the image start address once staged for execution.
	Address uint32
}

// Stager represents the mechanism used to prepare a verified image for
// execution at a given address.
type Stager interface {
	Stage(addr uint32, img []byte) error
}

// Engine represents the image-trust engine.
type Engine struct {
	Verifier

	// Card is the storage device holding the image slots.
	Card storage.Card
	// Slots lists the image slots in boot preference order.
	Slots []Slot
	// Stager, when set, stages the selected image before it is reported.
	Stager Stager
}

// Locate implements sequencer.Locator, it returns 0 when a trusted image has
// been selected and staged, or the status of the last slot failure
// otherwise.
func (e *Engine) Locate(rsp *sequencer.Response) int {
	h, slot, err := e.Select()

	if err != nil {
		klog.Errorf("no trusted image found, %v", err)
		return Status(err)
	}

	rsp.ImageOffset = slot.Address
	rsp.Header = h

	return 0
}

// Select returns the header and slot of the first trusted image that could
// be staged, a staging failure moves on to the next slot.
func (e *Engine) Select() (h *image.Header, slot Slot, err error) {
	if e.Card == nil || len(e.Slots) == 0 {
		return nil, slot, errorf(StatusBadArgs, "no image slots configured")
	}

	for i, s := range e.Slots {
		var img []byte

		if img, err = e.load(s); err == nil {
			h, _, err = e.Verify(img)
		}

		if err != nil {
			klog.Warningf("slot %d at %#x rejected, %v", i, s.Offset, err)
			continue
		}

		klog.Infof("slot %d at %#x verified (version %v)", i, s.Offset, h.Version)

		if e.Stager != nil {
			if err = e.Stager.Stage(s.Address, img); err != nil {
				err = errorf(StatusFlash, "could not stage image, %w", err)
				klog.Warningf("slot %d at %#x not staged, %v", i, s.Offset, err)
				continue
			}
		}

		return h, s, nil
	}

	return nil, slot, err
}

// load reads a complete image (header, payload and trailer) from a slot.
func (e *Engine) load(s Slot) (img []byte, err error) {
	if s.Offset < 0 || s.Size < image.HeaderLength || uint64(s.Address)+uint64(s.Size) > math.MaxUint32+1 {
		return nil, errorf(StatusBadArgs, "invalid slot %+v", s)
	}

	if end := s.Offset + s.Size; end < s.Offset || end > e.Card.Info().Capacity() {
		return nil, errorf(StatusBadArgs, "slot %+v exceeds storage capacity", s)
	}

	buf, err := e.Card.Read(s.Offset, image.HeaderLength)

	if err != nil {
		return nil, errorf(StatusFlash, "could not read header, %w", err)
	}

	h, err := image.ParseHeader(buf)

	if err != nil {
		return nil, errorf(StatusBadImage, "%w", err)
	}

	// header and payload, followed by the TLV info header
	size := h.TrailerOffset() + image.TLVInfoLength

	if size > s.Size {
		return nil, errorf(StatusBadImage, "image size %d exceeds slot size %d", size, s.Size)
	}

	if img, err = e.Card.Read(s.Offset, size); err != nil {
		return nil, errorf(StatusFlash, "could not read image, %w", err)
	}

	if size, err = trailerEnd(h, img); err != nil {
		return nil, errorf(StatusBadImage, "%w", err)
	}

	if size > s.Size {
		return nil, errorf(StatusBadImage, "image size %d exceeds slot size %d", size, s.Size)
	}

	if img, err = e.Card.Read(s.Offset, size); err != nil {
		return nil, errorf(StatusFlash, "could not read image, %w", err)
	}

	return
}

func trailerEnd(h *image.Header, buf []byte) (int64, error) {
	off := h.TrailerOffset()

	if int64(len(buf)) < off+image.TLVInfoLength {
		return 0, errors.New("short read")
	}

	total := int64(binary.LittleEndian.Uint16(buf[off+2:]))

	return off + total, nil
}

// Status returns the boot status code carried by err, or StatusBadImage
// when err carries none.
func Status(err error) int {
	var e *Error

	if errors.As(err, &e) {
		return e.Status
	}

	return StatusBadImage
}

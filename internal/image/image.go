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

// Package image implements the on-storage format of bootable firmware
// images: a fixed header, the executable payload and a TLV trailer carrying
// integrity and firmware transparency artefacts.
//
//	+-----------------+ offset 0
//	| Header          | HeaderLength bytes, padded to HeaderSize
//	+-----------------+ HeaderSize
//	| Payload         | ImageSize bytes
//	+-----------------+ HeaderSize + ImageSize
//	| TLV info + TLVs | TLVTotal bytes
//	+-----------------+
package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/coreos/go-semver/semver"
)

const (
	// Magic identifies a valid image header.
	Magic = 0x96f3b83d
	// HeaderLength is the length of the encoded Header structure.
	HeaderLength = 32
	// DefaultHeaderSize is the header size (including padding) used when
	// building images, the application entry point follows it.
	DefaultHeaderSize = 0x200
)

// Header represents a firmware image header.
type Header struct {
	Magic    uint32
	LoadAddr uint32
	// HeaderSize is the size of the header including padding, the payload
	// starts immediately after it.
	HeaderSize uint16
	// ProtectTLVSize is the size of the protected TLV area, always 0 for
	// images built by this package.
	ProtectTLVSize uint16
	// ImageSize is the payload size.
	ImageSize uint32
	Flags     uint32
	Version   Version
	Pad       uint32
}

// Version represents the firmware version as encoded in the image header.
type Version struct {
	Major    uint8
	Minor    uint8
	Revision uint16
	BuildNum uint32
}

// Semver returns the header version in semantic version format, the build
// number (if any) is carried as build metadata.
func (v Version) Semver() *semver.Version {
	sv := &semver.Version{
		Major: int64(v.Major),
		Minor: int64(v.Minor),
		Patch: int64(v.Revision),
	}

	if v.BuildNum != 0 {
		sv.Metadata = strconv.FormatUint(uint64(v.BuildNum), 10)
	}

	return sv
}

func (v Version) String() string {
	return v.Semver().String()
}

// ParseVersion converts a semantic version string into the header version
// representation.
func ParseVersion(s string) (v Version, err error) {
	sv, err := semver.NewVersion(s)

	if err != nil {
		return
	}

	if sv.Major > 0xff || sv.Minor > 0xff || sv.Patch > 0xffff || sv.Major < 0 || sv.Minor < 0 || sv.Patch < 0 {
		return v, fmt.Errorf("version %s out of range", s)
	}

	v = Version{
		Major:    uint8(sv.Major),
		Minor:    uint8(sv.Minor),
		Revision: uint16(sv.Patch),
	}

	if len(sv.Metadata) > 0 {
		n, err := strconv.ParseUint(sv.Metadata, 10, 32)

		if err != nil {
			return v, fmt.Errorf("invalid build number %q, %v", sv.Metadata, err)
		}

		v.BuildNum = uint32(n)
	}

	return
}

// FormatError is returned when an image does not respect the expected
// format.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "invalid image format: " + e.Reason
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// ParseHeader decodes and validates an image header from the start of buf.
func ParseHeader(buf []byte) (h *Header, err error) {
	if len(buf) < HeaderLength {
		return nil, formatErrorf("header too short (%d bytes)", len(buf))
	}

	h = &Header{}

	if err = binary.Read(bytes.NewReader(buf[:HeaderLength]), binary.LittleEndian, h); err != nil {
		return nil, err
	}

	if h.Magic != Magic {
		return nil, formatErrorf("bad magic %#x", h.Magic)
	}

	if h.HeaderSize < HeaderLength {
		return nil, formatErrorf("header size %d smaller than header", h.HeaderSize)
	}

	if h.ProtectTLVSize != 0 {
		return nil, formatErrorf("protected TLVs are not supported")
	}

	return
}

// Bytes converts the header to its encoded form, padded to HeaderSize.
func (h *Header) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, h)

	if pad := int(h.HeaderSize) - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}

	return buf.Bytes()
}

// PayloadOffset returns the offset, relative to the image start, of the
// first payload byte.
func (h *Header) PayloadOffset() int64 {
	return int64(h.HeaderSize)
}

// TrailerOffset returns the offset, relative to the image start, of the TLV
// info header.
func (h *Header) TrailerOffset() int64 {
	return int64(h.HeaderSize) + int64(h.ImageSize)
}

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

package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

const (
	// TLVInfoMagic identifies the (unprotected) TLV trailer.
	TLVInfoMagic = 0x6907
	// TLVInfoLength is the length of the TLV info header.
	TLVInfoLength = 4
	// tlvEntryLength is the length of each TLV type/length prefix.
	tlvEntryLength = 4
)

// TLV types
const (
	// SHA-256 of header and payload
	TLVSHA256 = 0x10
	// signed firmware release manifest (note format)
	TLVManifest = 0xa0
	// log checkpoint committing to the manifest (note format)
	TLVCheckpoint = 0xa1
	// manifest leaf index, uint64 little endian
	TLVLogIndex = 0xa2
	// JSON encoded inclusion proof hashes
	TLVInclusionProof = 0xa3
)

// TLV represents a single trailer entry.
type TLV struct {
	Type  uint16
	Value []byte
}

// Trailer represents the decoded TLV trailer of an image.
type Trailer struct {
	TLVs []TLV
}

// Find returns the value of the first entry of the given type.
func (t *Trailer) Find(kind uint16) ([]byte, bool) {
	for _, tlv := range t.TLVs {
		if tlv.Type == kind {
			return tlv.Value, true
		}
	}

	return nil, false
}

// ProofBundle returns the firmware transparency artefacts carried in the
// trailer.
func (t *Trailer) ProofBundle() (pb *ProofBundle, err error) {
	pb = &ProofBundle{}

	var ok bool

	if pb.Manifest, ok = t.Find(TLVManifest); !ok {
		return nil, formatErrorf("missing manifest")
	}

	if pb.Checkpoint, ok = t.Find(TLVCheckpoint); !ok {
		return nil, formatErrorf("missing checkpoint")
	}

	idx, ok := t.Find(TLVLogIndex)

	if !ok || len(idx) != 8 {
		return nil, formatErrorf("missing or invalid log index")
	}

	pb.LogIndex = binary.LittleEndian.Uint64(idx)

	if proof, ok := t.Find(TLVInclusionProof); ok {
		if err = json.Unmarshal(proof, &pb.InclusionProof); err != nil {
			return nil, formatErrorf("invalid inclusion proof, %v", err)
		}
	}

	return
}

// ParseTrailer decodes a TLV trailer, buf must start with the TLV info
// header and can extend past the trailer end.
func ParseTrailer(buf []byte) (t *Trailer, err error) {
	if len(buf) < TLVInfoLength {
		return nil, formatErrorf("trailer too short (%d bytes)", len(buf))
	}

	magic := binary.LittleEndian.Uint16(buf[0:2])
	total := int(binary.LittleEndian.Uint16(buf[2:4]))

	if magic != TLVInfoMagic {
		return nil, formatErrorf("bad TLV magic %#x", magic)
	}

	if total < TLVInfoLength || total > len(buf) {
		return nil, formatErrorf("invalid TLV area length %d", total)
	}

	t = &Trailer{}

	for off := TLVInfoLength; off < total; {
		if off+tlvEntryLength > total {
			return nil, formatErrorf("truncated TLV at %d", off)
		}

		kind := binary.LittleEndian.Uint16(buf[off:])
		length := int(binary.LittleEndian.Uint16(buf[off+2:]))
		off += tlvEntryLength

		if off+length > total {
			return nil, formatErrorf("TLV %#x overflows trailer", kind)
		}

		t.TLVs = append(t.TLVs, TLV{
			Type:  kind,
			Value: buf[off : off+length],
		})

		off += length
	}

	return
}

// Bytes converts the trailer to its encoded form.
func (t *Trailer) Bytes() ([]byte, error) {
	total := TLVInfoLength

	for _, tlv := range t.TLVs {
		if len(tlv.Value) > 0xffff {
			return nil, fmt.Errorf("TLV %#x too large (%d bytes)", tlv.Type, len(tlv.Value))
		}

		total += tlvEntryLength + len(tlv.Value)
	}

	if total > 0xffff {
		return nil, fmt.Errorf("TLV area too large (%d bytes)", total)
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint16(TLVInfoMagic))
	binary.Write(buf, binary.LittleEndian, uint16(total))

	for _, tlv := range t.TLVs {
		binary.Write(buf, binary.LittleEndian, tlv.Type)
		binary.Write(buf, binary.LittleEndian, uint16(len(tlv.Value)))
		buf.Write(tlv.Value)
	}

	return buf.Bytes(), nil
}

// ProofBundle represents the firmware transparency artefacts required to
// establish trust in an image.
type ProofBundle struct {
	// Checkpoint is the log checkpoint committing to Manifest.
	Checkpoint []byte
	// LogIndex is the position of Manifest in the log.
	LogIndex uint64
	// InclusionProof proves that Manifest is the leaf at LogIndex in the
	// log committed to by Checkpoint.
	InclusionProof [][]byte
	// Manifest is the signed firmware release statement.
	Manifest []byte
}

// Digest returns the SHA-256 of the header and payload of an encoded image.
func Digest(h *Header, img []byte) ([]byte, error) {
	end := h.TrailerOffset()

	if int64(len(img)) < end {
		return nil, formatErrorf("image too short (%d < %d bytes)", len(img), end)
	}

	sum := sha256.Sum256(img[:end])

	return sum[:], nil
}

// Build assembles a bootable image from its header fields, payload and proof
// bundle. The header ImageSize is set from the payload length.
func Build(h Header, payload []byte, pb *ProofBundle) ([]byte, error) {
	h.Magic = Magic

	if h.HeaderSize == 0 {
		h.HeaderSize = DefaultHeaderSize
	}

	if h.HeaderSize < HeaderLength {
		return nil, fmt.Errorf("header size %d smaller than header", h.HeaderSize)
	}

	h.ImageSize = uint32(len(payload))

	img := append(h.Bytes(), payload...)

	digest, err := Digest(&h, img)

	if err != nil {
		return nil, err
	}

	t := &Trailer{
		TLVs: []TLV{
			{Type: TLVSHA256, Value: digest},
		},
	}

	if pb != nil {
		idx := make([]byte, 8)
		binary.LittleEndian.PutUint64(idx, pb.LogIndex)

		proof, err := json.Marshal(pb.InclusionProof)

		if err != nil {
			return nil, err
		}

		t.TLVs = append(t.TLVs,
			TLV{Type: TLVManifest, Value: pb.Manifest},
			TLV{Type: TLVCheckpoint, Value: pb.Checkpoint},
			TLV{Type: TLVLogIndex, Value: idx},
			TLV{Type: TLVInclusionProof, Value: proof},
		)
	}

	trailer, err := t.Bytes()

	if err != nil {
		return nil, err
	}

	return append(img, trailer...), nil
}

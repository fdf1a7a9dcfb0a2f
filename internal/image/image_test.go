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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseHeader(t *testing.T) {
	valid := Header{
		Magic:      Magic,
		LoadAddr:   0x90000000,
		HeaderSize: 0x200,
		ImageSize:  1234,
		Version:    Version{Major: 1, Minor: 2, Revision: 3, BuildNum: 4},
	}

	for _, test := range []struct {
		name    string
		buf     func() []byte
		want    *Header
		wantErr bool
	}{
		{
			name: "valid",
			buf:  valid.Bytes,
			want: &valid,
		}, {
			name: "short",
			buf: func() []byte {
				return valid.Bytes()[:HeaderLength-1]
			},
			wantErr: true,
		}, {
			name: "bad magic",
			buf: func() []byte {
				b := valid.Bytes()
				b[0] ^= 0xff
				return b
			},
			wantErr: true,
		}, {
			name: "header size too small",
			buf: func() []byte {
				h := valid
				h.HeaderSize = HeaderLength - 1
				return h.Bytes()
			},
			wantErr: true,
		}, {
			name: "protected TLVs",
			buf: func() []byte {
				h := valid
				h.ProtectTLVSize = 16
				return h.Bytes()
			},
			wantErr: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			h, err := ParseHeader(test.buf())
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Got %v, wantErr %t", err, test.wantErr)
			}
			if test.wantErr {
				var fe *FormatError
				if !errors.As(err, &fe) {
					t.Fatalf("Got error %v, want FormatError", err)
				}
				return
			}
			if diff := cmp.Diff(test.want, h); diff != "" {
				t.Fatalf("Got diff: %s", diff)
			}
		})
	}
}

func TestHeaderBytesPadding(t *testing.T) {
	h := &Header{Magic: Magic, HeaderSize: 0x200}

	if got, want := len(h.Bytes()), 0x200; got != want {
		t.Fatalf("Got %d bytes, want %d", got, want)
	}

	if got, want := binary.LittleEndian.Uint16(h.Bytes()[8:10]), uint16(0x200); got != want {
		t.Fatalf("Got header size field %#x, want %#x", got, want)
	}
}

func TestVersion(t *testing.T) {
	for _, test := range []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "1.2.3", want: Version{Major: 1, Minor: 2, Revision: 3}},
		{in: "1.2.3+42", want: Version{Major: 1, Minor: 2, Revision: 3, BuildNum: 42}},
		{in: "256.0.0", wantErr: true},
		{in: "1.0.65536", wantErr: true},
		{in: "1.0.0+abc", wantErr: true},
		{in: "banana", wantErr: true},
	} {
		t.Run(test.in, func(t *testing.T) {
			v, err := ParseVersion(test.in)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Got %v, wantErr %t", err, test.wantErr)
			}
			if test.wantErr {
				return
			}
			if v != test.want {
				t.Fatalf("Got %+v, want %+v", v, test.want)
			}
			if got := v.String(); got != test.in {
				t.Fatalf("Got %q, want %q", got, test.in)
			}
		})
	}
}

func TestBuildAndParse(t *testing.T) {
	payload := bytes.Repeat([]byte{0xaa}, 1000)
	pb := &ProofBundle{
		Checkpoint:     []byte("checkpoint"),
		LogIndex:       7,
		InclusionProof: [][]byte{{1, 2, 3}, {4, 5, 6}},
		Manifest:       []byte("manifest"),
	}

	img, err := Build(Header{Version: Version{Major: 1}}, payload, pb)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	h, err := ParseHeader(img)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}

	if got, want := h.HeaderSize, uint16(DefaultHeaderSize); got != want {
		t.Errorf("Got header size %#x, want %#x", got, want)
	}

	if got, want := img[h.PayloadOffset():h.TrailerOffset()], payload; !bytes.Equal(got, want) {
		t.Errorf("Payload mismatch")
	}

	tr, err := ParseTrailer(img[h.TrailerOffset():])
	if err != nil {
		t.Fatalf("ParseTrailer: %v", err)
	}

	sum := sha256.Sum256(img[:h.TrailerOffset()])
	if got, ok := tr.Find(TLVSHA256); !ok || !bytes.Equal(got, sum[:]) {
		t.Errorf("Got digest %x, want %x", got, sum)
	}

	gotPB, err := tr.ProofBundle()
	if err != nil {
		t.Fatalf("ProofBundle: %v", err)
	}

	if diff := cmp.Diff(pb, gotPB); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

func TestParseTrailerErrors(t *testing.T) {
	good, err := (&Trailer{TLVs: []TLV{{Type: TLVSHA256, Value: []byte{1, 2}}}}).Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	for _, test := range []struct {
		name string
		buf  []byte
	}{
		{name: "short", buf: good[:2]},
		{name: "bad magic", buf: append([]byte{0, 0}, good[2:]...)},
		{name: "length past buffer", buf: good[:len(good)-1]},
		{name: "truncated entry", buf: []byte{0x07, 0x69, 6, 0, 0x10, 0}},
		{name: "entry overflow", buf: []byte{0x07, 0x69, 9, 0, 0x10, 0, 9, 0, 1}},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseTrailer(test.buf); err == nil {
				t.Fatal("Expected error, got none")
			}
		})
	}
}

func TestProofBundleMissing(t *testing.T) {
	tr := &Trailer{TLVs: []TLV{{Type: TLVSHA256, Value: []byte{1}}}}

	if _, err := tr.ProofBundle(); err == nil {
		t.Fatal("Expected error for trailer without proof bundle")
	}
}

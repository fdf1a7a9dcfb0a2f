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

package trust

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/coreos/go-semver/semver"
	"github.com/transparency-dev/armored-witness-common/release/firmware"
	"github.com/transparency-dev/armored-witness-common/release/firmware/ftlog"
	"golang.org/x/mod/sumdb/note"

	"github.com/transparency-dev/armored-witness-bootloader/internal/image"
)

// manifestSchemaVersion is the FirmwareRelease schema version of manifests
// created by NewManifest.
const manifestSchemaVersion = 1

// NewManifest returns the release statement for an encoded image, the
// firmware digest covers the image header and payload.
func NewManifest(component string, img []byte) (*ftlog.FirmwareRelease, error) {
	h, err := image.ParseHeader(img)

	if err != nil {
		return nil, err
	}

	digest, err := image.Digest(h, img)

	if err != nil {
		return nil, err
	}

	return &ftlog.FirmwareRelease{
		SchemaVersion: manifestSchemaVersion,
		Component:     component,
		Git: ftlog.Git{
			TagName: *h.Version.Semver(),
		},
		Output: ftlog.Output{
			FirmwareDigestSha256: digest,
		},
	}, nil
}

// ManifestText returns a release statement in note text format, ready to be
// signed.
func ManifestText(m *ftlog.FirmwareRelease) ([]byte, error) {
	buf, err := json.Marshal(m)

	if err != nil {
		return nil, err
	}

	return append(buf, '\n'), nil
}

// Verifier holds the trust anchors required to verify an image.
type Verifier struct {
	// LogOrigin is the expected firmware transparency log origin.
	LogOrigin string
	// LogVerifier verifies firmware transparency log checkpoints.
	LogVerifier note.Verifier
	// ManifestVerifiers verify firmware release manifests, every one of
	// them must have signed the manifest.
	ManifestVerifiers []note.Verifier
	// Component, when set, is the expected manifest component.
	Component string
	// MinVersion, when set, is the minimum acceptable firmware version.
	MinVersion *semver.Version
}

// Verify validates an encoded image against the verifier trust anchors:
//
//   - image digest matches the SHA-256 TLV
//   - proof bundle verifies as a firmware release (log checkpoint, manifest
//     signatures, inclusion proof and firmware digest)
//   - manifest component and version describe this image
//   - image version is not below MinVersion
//
// On failure an *Error carrying the appropriate status is returned.
func (v *Verifier) Verify(img []byte) (h *image.Header, m *ftlog.FirmwareRelease, err error) {
	if h, err = image.ParseHeader(img); err != nil {
		return nil, nil, errorf(StatusBadImage, "invalid header, %w", err)
	}

	digest, err := image.Digest(h, img)

	if err != nil {
		return nil, nil, errorf(StatusBadImage, "%w", err)
	}

	t, err := image.ParseTrailer(img[h.TrailerOffset():])

	if err != nil {
		return nil, nil, errorf(StatusBadImage, "invalid trailer, %w", err)
	}

	if sum, ok := t.Find(image.TLVSHA256); !ok || !bytes.Equal(sum, digest) {
		return nil, nil, errorf(StatusBadImage, "image digest mismatch")
	}

	pb, err := t.ProofBundle()

	if err != nil {
		return nil, nil, errorf(StatusBadImage, "%w", err)
	}

	if m, err = v.verifyBundle(pb, img[:h.TrailerOffset()]); err != nil {
		return nil, nil, errorf(StatusBadImage, "%w", err)
	}

	if len(v.Component) > 0 && m.Component != v.Component {
		return nil, nil, errorf(StatusBadImage, "manifest component %q, expected %q", m.Component, v.Component)
	}

	hv := h.Version.Semver()

	if !m.Git.TagName.Equal(*hv) {
		return nil, nil, errorf(StatusBadVersion, "manifest version %v does not match image version %v", m.Git.TagName, hv)
	}

	if v.MinVersion != nil && hv.LessThan(*v.MinVersion) {
		return nil, nil, errorf(StatusBadVersion, "image version %v below minimum %v", hv, v.MinVersion)
	}

	return
}

func (v *Verifier) verifyBundle(pb *image.ProofBundle, fw []byte) (*ftlog.FirmwareRelease, error) {
	if v.LogVerifier == nil || len(v.ManifestVerifiers) == 0 {
		return nil, errors.New("missing trust anchors")
	}

	bv := firmware.BundleVerifier{
		LogOrigin:         v.LogOrigin,
		LogVerifer:        v.LogVerifier,
		ManifestVerifiers: v.ManifestVerifiers,
	}

	return bv.Verify(firmware.Bundle{
		Checkpoint:     pb.Checkpoint,
		Index:          pb.LogIndex,
		InclusionProof: pb.InclusionProof,
		Manifest:       pb.Manifest,
		Firmware:       fw,
	})
}

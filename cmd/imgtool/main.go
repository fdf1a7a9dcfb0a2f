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

//go:build !tamago

// The imgtool tool wraps a firmware payload into a bootable image.
//
// Images are built in two steps: first the release manifest for the payload
// is printed (-print_manifest), then once the signed manifest has been
// integrated in the firmware transparency log the image is assembled with
// its proof bundle, read from files or fetched from the log, and
// optionally verified.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/transparency-dev/armored-witness-common/release/firmware/ftlog"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-witness-bootloader/internal/image"
	"github.com/transparency-dev/armored-witness-bootloader/internal/trust"
)

var (
	payloadFile   = flag.String("payload", "", "Firmware payload to wrap.")
	outputFile    = flag.String("output", "", "File to write the image to.")
	version       = flag.String("version", "0.0.0", "Firmware version, in semantic version format.")
	loadAddr      = flag.Uint("load_addr", 0, "Image load address recorded in the header.")
	headerSize    = flag.Uint("header_size", image.DefaultHeaderSize, "Header size, the payload starts at this offset.")
	component     = flag.String("component", ftlog.ComponentOS, "Firmware component name.")
	printManifest = flag.Bool("print_manifest", false, "Print the unsigned release manifest and exit.")

	manifestFile       = flag.String("manifest_file", "", "Signed release manifest.")
	checkpointFile     = flag.String("checkpoint_file", "", "Signed FT log checkpoint committing to the manifest.")
	inclusionProofFile = flag.String("inclusion_proof_file", "", "JSON list of inclusion proof hashes.")
	logIndex           = flag.Uint64("log_index", 0, "Index of the manifest in the FT log.")
	logURL             = flag.String("log_url", "", "Base URL of the FT log, replaces the checkpoint, index and proof flags.")

	logOrigin          = flag.String("log_origin", "", "FT log origin string, enables verification of the built image.")
	logPubKeyFile      = flag.String("log_pubkey_file", "", "File containing the FT log's public key in Note verifier format.")
	manifestPubKeyFile = flag.String("manifest_pubkey_file", "", "File containing a Note verifier string to verify manifest signatures.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	payload, err := os.ReadFile(*payloadFile)
	if err != nil {
		klog.Exitf("Failed to read payload %q: %v", *payloadFile, err)
	}

	v, err := image.ParseVersion(*version)
	if err != nil {
		klog.Exitf("Invalid version %q: %v", *version, err)
	}

	if *headerSize > 0xffff {
		klog.Exitf("Header size %#x too large", *headerSize)
	}

	h := image.Header{
		LoadAddr:   uint32(*loadAddr),
		HeaderSize: uint16(*headerSize),
		Version:    v,
	}

	if *printManifest {
		text, err := releaseManifest(h, payload, *component)
		if err != nil {
			klog.Exitf("Failed to create manifest: %v", err)
		}

		os.Stdout.Write(text)
		return
	}

	manifest := readOrDie(*manifestFile, "manifest")

	var pb *image.ProofBundle

	if len(*logURL) > 0 {
		lv := verifierOrDie(*logPubKeyFile, "log")

		if pb, err = fetchProofBundle(context.Background(), *logURL, *logOrigin, lv, manifest); err != nil {
			klog.Exitf("Failed to fetch proof bundle: %v", err)
		}
	} else {
		pb = &image.ProofBundle{
			Manifest:   manifest,
			Checkpoint: readOrDie(*checkpointFile, "checkpoint"),
			LogIndex:   *logIndex,
		}

		if len(*inclusionProofFile) > 0 {
			if err := json.Unmarshal(readOrDie(*inclusionProofFile, "inclusion proof"), &pb.InclusionProof); err != nil {
				klog.Exitf("Invalid inclusion proof: %v", err)
			}
		}
	}

	var verifier *trust.Verifier

	if len(*logOrigin) > 0 {
		verifier = &trust.Verifier{
			LogOrigin:         *logOrigin,
			LogVerifier:       verifierOrDie(*logPubKeyFile, "log"),
			ManifestVerifiers: []note.Verifier{verifierOrDie(*manifestPubKeyFile, "manifest")},
			Component:         *component,
		}
	}

	img, err := buildImage(h, payload, pb, verifier)
	if err != nil {
		klog.Exitf("Failed to build image: %v", err)
	}

	if err := os.WriteFile(*outputFile, img, 0o644); err != nil {
		klog.Exitf("WriteFile: %v", err)
	}

	klog.Infof("Wrote %d bytes of image to %q", len(img), *outputFile)
}

// releaseManifest returns the unsigned release manifest text for payload.
func releaseManifest(h image.Header, payload []byte, component string) ([]byte, error) {
	unsigned, err := image.Build(h, payload, nil)
	if err != nil {
		return nil, err
	}

	m, err := trust.NewManifest(component, unsigned)
	if err != nil {
		return nil, err
	}

	return trust.ManifestText(m)
}

// buildImage assembles the image with its proof bundle, when v is set the
// image is verified before being returned.
func buildImage(h image.Header, payload []byte, pb *image.ProofBundle, v *trust.Verifier) ([]byte, error) {
	img, err := image.Build(h, payload, pb)
	if err != nil {
		return nil, err
	}

	if v == nil {
		return img, nil
	}

	_, m, err := v.Verify(img)
	if err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}
	klog.Infof("Verified %s %v", m.Component, m.Git.TagName)

	return img, nil
}

func readOrDie(p string, thing string) []byte {
	b, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read %s %q: %v", thing, p, err)
	}
	return b
}

func verifierOrDie(p string, thing string) note.Verifier {
	vs := readOrDie(p, thing+" pub key file")
	v, err := note.NewVerifier(strings.TrimSpace(string(vs)))
	if err != nil {
		klog.Exitf("Invalid %s note verifier string %q: %v", thing, vs, err)
	}
	return v
}

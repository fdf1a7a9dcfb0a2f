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
	"github.com/coreos/go-semver/semver"
	"github.com/transparency-dev/armored-witness-common/release/firmware/ftlog"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-witness-bootloader/internal/storage"
	"github.com/transparency-dev/armored-witness-bootloader/internal/trust"
)

const (
	// expected manifest component
	component = ftlog.ComponentOS

	primaryBlock   = 0x5000
	secondaryBlock = 0x15000
	slotSize       = 0x2000000 // 32MB
)

var slots = []trust.Slot{
	{Offset: primaryBlock * storage.ExpectedBlockSize, Size: slotSize, Address: appStart},
	{Offset: secondaryBlock * storage.ExpectedBlockSize, Size: slotSize, Address: appStart},
}

// imageEngine returns the image-trust engine configured with the compiled-in
// trust anchors.
//
// Invalid anchors are reported and left unset, in which case no image can be
// trusted and image location fails.
func imageEngine(card storage.Card) *trust.Engine {
	e := &trust.Engine{
		Card:   card,
		Slots:  slots,
		Stager: appStager(),
	}

	e.LogOrigin = LogOrigin
	e.Component = component

	if v, err := note.NewVerifier(LogPublicKey); err != nil {
		klog.Errorf("invalid log public key, %v", err)
	} else {
		e.LogVerifier = v
	}

	if v, err := note.NewVerifier(ManifestPublicKey); err != nil {
		klog.Errorf("invalid manifest public key, %v", err)
	} else {
		e.ManifestVerifiers = []note.Verifier{v}
	}

	if len(MinVersion) > 0 {
		if v, err := semver.NewVersion(MinVersion); err != nil {
			klog.Errorf("invalid minimum version, %v", err)
		} else {
			e.MinVersion = v
		}
	}

	return e
}

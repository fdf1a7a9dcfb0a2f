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

package config

import (
	"strings"
	"testing"

	"github.com/transparency-dev/armored-witness-bootloader/internal/backend"
	"github.com/transparency-dev/armored-witness-bootloader/sequencer"
)

func TestDefaults(t *testing.T) {
	// tests run without build tags
	if CryptoBackend != backend.Platform {
		t.Errorf("Got crypto backend %v, want %v", CryptoBackend, backend.Platform)
	}

	if Policy != sequencer.TerminateOnFailure {
		t.Errorf("Got policy %v, want %v", Policy, sequencer.TerminateOnFailure)
	}

	if Trace {
		t.Error("Trace enabled by default")
	}

	if NewTracer() != nil {
		t.Error("Got tracer with tracing disabled")
	}
}

func TestString(t *testing.T) {
	s := String()

	for _, want := range []string{"crypto:", "policy:terminate", "trace:false"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q does not contain %q", s, want)
		}
	}
}

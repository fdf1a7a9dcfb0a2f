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
	"fmt"
)

// BufferStager stages images into a memory buffer mapped at Start.
type BufferStager struct {
	// Start is the address of the first buffer byte.
	Start uint32
	// Buf is the staging memory.
	Buf []byte
}

// Stage copies img at addr.
func (s *BufferStager) Stage(addr uint32, img []byte) error {
	if addr < s.Start {
		return fmt.Errorf("address %#x below staging area start %#x", addr, s.Start)
	}

	off := uint64(addr - s.Start)

	if off+uint64(len(img)) > uint64(len(s.Buf)) {
		return fmt.Errorf("image at %#x (%d bytes) exceeds staging area", addr, len(img))
	}

	copy(s.Buf[off:], img)

	return nil
}

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

package sequencer

import (
	"github.com/transparency-dev/armored-witness-bootloader/internal/image"
)

// Hooks represents the board support override points invoked during the
// boot sequence, each returns 0 on success.
//
// Boards embed DefaultHooks and override only what they need.
type Hooks interface {
	// TargetInit performs board specific setup (clocks, peripherals,
	// storage, watchdog).
	TargetInit() int
	// TargetLoop is invoked when the boot process is stopped under the
	// LoopOnFailure policy, it is not expected to return.
	TargetLoop() int
	// TargetDebugInit performs early debug and trace setup.
	TargetDebugInit() int
	// TargetLEDOff turns off any boot indicator before the application
	// starts.
	TargetLEDOff() int
}

// DefaultHooks implements Hooks with no-op operations returning success.
type DefaultHooks struct{}

func (DefaultHooks) TargetInit() int      { return 0 }
func (DefaultHooks) TargetLoop() int      { return 0 }
func (DefaultHooks) TargetDebugInit() int { return 0 }
func (DefaultHooks) TargetLEDOff() int    { return 0 }

// Platform represents the primitives through which the boot sequence ends,
// none of them is expected to return.
type Platform interface {
	// StartApplication transfers execution to the application entry point
	// at addr.
	StartApplication(addr uint32)
	// Exit terminates the boot attempt with the given status code.
	Exit(code int)
	// Halt stops execution until the next hardware reset.
	Halt()
}

// Locator represents the image-trust engine, which locates and validates
// the image to boot.
type Locator interface {
	// Locate fills rsp with the selected image and returns 0, or returns a
	// non-zero status if no trusted image could be found.
	Locate(rsp *Response) int
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(rsp *Response) int

// Locate calls f(rsp).
func (f LocatorFunc) Locate(rsp *Response) int {
	return f(rsp)
}

// Response represents the image selected by the image-trust engine.
type Response struct {
	// ImageOffset is the byte offset of the selected image within its
	// region.
	ImageOffset uint32
	// Header is the selected image header.
	Header *image.Header
}

// JumpAddress returns the application entry point, which immediately
// follows the image header.
func (r *Response) JumpAddress() (addr uint32, ok bool) {
	if r.Header == nil {
		return 0, false
	}

	addr = r.ImageOffset + uint32(r.Header.HeaderSize)

	return addr, addr >= r.ImageOffset
}

// Logger represents the boot log sink.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
	// Flush writes out any buffered record.
	Flush()
}

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
	_ "unsafe"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
)

//go:linkname printk runtime.printk
func printk(c byte) {
	usbarmory.UART2.Tx(c)
}

// console writes to the serial console.
type console struct{}

func (console) Write(p []byte) (int, error) {
	for _, c := range p {
		printk(c)
	}

	return len(p), nil
}

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

// Status codes reported to the boot sequence, they match the MCUboot
// bootloader error codes.
const (
	StatusFlash      = 1
	StatusFile       = 2
	StatusBadImage   = 3
	StatusBadVector  = 4
	StatusBadStatus  = 5
	StatusNoMem      = 6
	StatusBadArgs    = 7
	StatusBadVersion = 8
)

// Error represents an image location failure.
type Error struct {
	// Status is the boot status code for the failure.
	Status int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (status %d)", e.Err, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(status int, format string, args ...any) error {
	return &Error{
		Status: status,
		Err:    fmt.Errorf(format, args...),
	}
}

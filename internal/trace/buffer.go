// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package trace

import (
	"bytes"
	"io"
)

const (
	outputLimit = 1024
	flushChr    = 0x0a // \n
)

// lineBuffer accumulates trace output and writes it to the underlying sink
// one line at a time, or when outputLimit is exceeded.
type lineBuffer struct {
	buf bytes.Buffer
	out io.Writer
}

func (l *lineBuffer) Write(p []byte) (n int, err error) {
	for _, c := range p {
		if err = l.writeByte(c); err != nil {
			return
		}

		n++
	}

	return
}

func (l *lineBuffer) writeByte(c byte) (err error) {
	l.buf.WriteByte(c)

	if c == flushChr || l.buf.Len() > outputLimit {
		err = l.flush()
	}

	return
}

func (l *lineBuffer) flush() (err error) {
	if l.buf.Len() == 0 {
		return
	}

	_, err = l.out.Write(l.buf.Bytes())
	l.buf.Reset()

	return
}

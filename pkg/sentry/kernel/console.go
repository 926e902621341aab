// Copyright 2026 The gVisor Authors.
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

package kernel

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"teachos.dev/teachos/pkg/sync"
)

// Console is the machine's character device. Every write is delivered to the
// output in one piece, so output of concurrent processes never interleaves
// within a write.
type Console struct {
	outMu sync.Mutex
	out   io.Writer

	inMu sync.Mutex
	in   io.Reader
}

// NewConsole returns a console writing to out and reading from in. in may be
// nil, in which case reads return no data.
func NewConsole(out io.Writer, in io.Reader) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{out: out, in: in}
}

// Write writes p as a single operation.
func (c *Console) Write(p []byte) (int, error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.out.Write(p)
}

// Printf formats and writes a message as a single operation.
func (c *Console) Printf(format string, v ...any) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, format, v...)
	c.Write(buf.Bytes())
}

// Read reads up to len(p) bytes of input. End of input yields 0 bytes and
// no error.
func (c *Console) Read(p []byte) (int, error) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	if c.in == nil {
		return 0, nil
	}
	n, err := io.ReadFull(c.in, p)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return n, err
}

package uart

import (
	"bytes"
	"strings"
)

// Mem is an in-memory Port, for tests and examples. Input is scripted up
// front (or appended via Feed), output accumulates in a buffer holding the
// exact wire bytes, CR+LF included.
//
// Mem is not safe for concurrent use; under the cooperative model only one
// logical control flow touches the console at a time.
type Mem struct {
	in  []byte
	out bytes.Buffer
}

// NewMem creates a Mem with the given scripted input.
func NewMem(input string) *Mem {
	return &Mem{in: []byte(input)}
}

// Feed appends further scripted input.
func (m *Mem) Feed(input string) {
	m.in = append(m.in, input...)
}

// Putc implements Port.
func (m *Mem) Putc(c byte) {
	if c == '\n' {
		m.out.WriteByte('\r')
	}
	m.out.WriteByte(c)
}

// Getc implements Port. Reading past the end of the scripted input is a test
// bug, and panics.
func (m *Mem) Getc() byte {
	if len(m.in) == 0 {
		panic(`uart: mem: read past end of scripted input`)
	}
	c := m.in[0]
	m.in = m.in[1:]
	return c
}

// HasChar implements Port.
func (m *Mem) HasChar() bool {
	return len(m.in) != 0
}

// Output returns the raw wire bytes transmitted so far.
func (m *Mem) Output() string {
	return m.out.String()
}

// Transcript returns the transmitted output with CR+LF normalized back to
// '\n', which is the form the kernel's observable transcripts are specified
// in.
func (m *Mem) Transcript() string {
	return strings.ReplaceAll(m.out.String(), "\r\n", "\n")
}

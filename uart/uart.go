// Package uart models the byte-level console device the kernel talks to.
//
// The kernel core never touches a terminal directly; everything user-visible
// flows through a Port, one byte at a time. Writing '\n' emits CR+LF on the
// wire, matching the usual serial console convention.
package uart

import (
	"io"
)

// Port is the byte-level console device interface.
//
// Putc and Getc block until the device is able to transmit or has a byte
// available, respectively. HasChar is the non-blocking readiness probe used
// by the host loop to decide whether to run a scheduler tick instead of
// reading.
type Port interface {
	// Putc transmits a single byte. Writing '\n' emits CR+LF.
	Putc(c byte)
	// Getc blocks until a byte is available, then returns it.
	Getc() byte
	// HasChar reports whether a byte is available without blocking.
	HasChar() bool
}

// Puts transmits each byte of s via p.Putc.
func Puts(p Port, s string) {
	for i := 0; i < len(s); i++ {
		p.Putc(s[i])
	}
}

// Writer adapts a Port to io.Writer, for handing the console to fmt style
// consumers. Writes never fail.
func Writer(p Port) io.Writer {
	return portWriter{p}
}

type portWriter struct {
	p Port
}

func (w portWriter) Write(b []byte) (int, error) {
	for _, c := range b {
		w.p.Putc(c)
	}
	return len(b), nil
}

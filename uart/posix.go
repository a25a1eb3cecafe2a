//go:build unix

package uart

import (
	"os"
	"syscall"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
)

// Posix is a Port over the controlling terminal, in raw mode. It is the
// console device used by cmd/tinykern.
//
// The terminal is switched to raw mode on Open (no echo, no line buffering;
// ISIG is left enabled so Ctrl-C still works) and restored on Close.
type Posix struct {
	fd    int
	saved unix.Termios
}

// OpenPosix opens /dev/tty (falling back to stdin when unavailable) and
// switches it to raw mode.
func OpenPosix() (*Posix, error) {
	fd, err := syscall.Open("/dev/tty", syscall.O_RDWR, 0)
	if os.IsNotExist(err) {
		fd = syscall.Stdin
	} else if err != nil {
		return nil, err
	}
	p := &Posix{fd: fd}
	saved, err := termios.Tcgetattr(uintptr(fd))
	if err != nil {
		_ = syscall.Close(fd)
		return nil, err
	}
	p.saved = *saved
	raw := *saved
	raw.Iflag &^= unix.BRKINT | unix.ICRNL | unix.INPCK | unix.ISTRIP | unix.IXON
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.IEXTEN
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := termios.Tcsetattr(uintptr(fd), termios.TCSANOW, &raw); err != nil {
		_ = syscall.Close(fd)
		return nil, err
	}
	return p, nil
}

// Close restores the terminal mode and closes the descriptor.
func (p *Posix) Close() error {
	saved := p.saved
	if err := termios.Tcsetattr(uintptr(p.fd), termios.TCSANOW, &saved); err != nil {
		_ = syscall.Close(p.fd)
		return err
	}
	return syscall.Close(p.fd)
}

// Putc implements Port.
func (p *Posix) Putc(c byte) {
	if c == '\n' {
		p.writeByte('\r')
	}
	p.writeByte(c)
}

func (p *Posix) writeByte(c byte) {
	buf := [1]byte{c}
	for {
		if _, err := syscall.Write(p.fd, buf[:]); err != syscall.EINTR {
			return
		}
	}
}

// Getc implements Port.
func (p *Posix) Getc() byte {
	var buf [1]byte
	for {
		n, err := syscall.Read(p.fd, buf[:])
		if n == 1 {
			return buf[0]
		}
		if err == syscall.EINTR || err == syscall.EAGAIN {
			continue
		}
		// EOF or a dead terminal reads as EOT; the shell exits on it.
		return 0x04
	}
}

// HasChar implements Port.
func (p *Posix) HasChar() bool {
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	return err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0
}

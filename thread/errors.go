package thread

import (
	"errors"
)

var (
	// ErrTableFull is returned by Spawn when every thread slot is occupied.
	ErrTableFull = errors.New("thread: thread table full")

	// ErrNoSuchThread is returned by Kill for an unknown thread id.
	ErrNoSuchThread = errors.New("thread: no such thread")
)

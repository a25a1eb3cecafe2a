// Package ksync provides synchronization primitives for cooperative threads:
// a mutex, a counting semaphore, and a generation-based barrier.
//
// All primitives block by repeatedly yielding, not by parking on a wait
// queue. This is correct under the cooperative model: every read-modify-write
// between two yield points is atomic with respect to other threads, because
// no other thread runs in the interval. Wakeup order is whatever the
// scheduler's round-robin produces.
package ksync

import (
	"errors"

	"github.com/joeycumines/go-tinykern/thread"
)

// Yielder is the scheduler surface the primitives block on. Only Yield is
// required; Current is used for advisory mutex ownership.
type Yielder interface {
	Yield()
	Current() thread.TID
}

// ErrWouldBlock is returned by Mutex.TryLock when the mutex is held.
var ErrWouldBlock = errors.New("ksync: would block")

// Mutex is a cooperative spin-yield mutex. Not reentrant. The owner field is
// advisory only: Unlock performs no ownership check, and unlocking a mutex
// the caller does not hold is undefined.
type Mutex struct {
	y      Yielder
	locked bool
	owner  thread.TID
}

// NewMutex creates an unlocked Mutex bound to y.
func NewMutex(y Yielder) *Mutex {
	if y == nil {
		panic(`ksync: nil yielder`)
	}
	return &Mutex{y: y}
}

// Lock acquires the mutex, yielding until it is free.
func (m *Mutex) Lock() {
	for m.locked {
		m.y.Yield()
	}
	m.locked = true
	m.owner = m.y.Current()
}

// TryLock acquires the mutex if it is free, returning ErrWouldBlock
// otherwise.
func (m *Mutex) TryLock() error {
	if m.locked {
		return ErrWouldBlock
	}
	m.locked = true
	m.owner = m.y.Current()
	return nil
}

// Unlock releases the mutex unconditionally.
func (m *Mutex) Unlock() {
	m.locked = false
	m.owner = 0
}

// Owner returns the advisory owner TID, 0 when unlocked or host-held.
func (m *Mutex) Owner() thread.TID {
	return m.owner
}

// Semaphore is a cooperative counting semaphore.
type Semaphore struct {
	y     Yielder
	count int
}

// NewSemaphore creates a Semaphore with the given initial count.
func NewSemaphore(y Yielder, initial int) *Semaphore {
	if y == nil {
		panic(`ksync: nil yielder`)
	}
	return &Semaphore{y: y, count: initial}
}

// Wait yields until the count is positive, then decrements it.
func (s *Semaphore) Wait() {
	for s.count <= 0 {
		s.y.Yield()
	}
	s.count--
}

// Post increments the count.
func (s *Semaphore) Post() {
	s.count++
}

// Count returns the current count.
func (s *Semaphore) Count() int {
	return s.count
}

// Barrier releases waiters in parties of a fixed size. Arrivals in the
// current generation are counted; the arrival that completes the party
// resets the count and advances the generation, releasing the rest. The
// generation counter lets a late riser distinguish its rendezvous from a
// subsequent one.
type Barrier struct {
	y          Yielder
	needed     int
	count      int
	generation int
}

// NewBarrier creates a Barrier for parties of size needed; values < 1 are
// coerced to 1.
func NewBarrier(y Yielder, needed int) *Barrier {
	if y == nil {
		panic(`ksync: nil yielder`)
	}
	b := &Barrier{y: y}
	b.Init(needed)
	return b
}

// Init resets the barrier for parties of size needed; values < 1 are coerced
// to 1. Init must not be called while threads wait on the barrier.
func (b *Barrier) Init(needed int) {
	if needed < 1 {
		needed = 1
	}
	b.needed = needed
	b.count = 0
	b.generation = 0
}

// Wait blocks until the current party is complete.
func (b *Barrier) Wait() {
	myGen := b.generation
	b.count++
	if b.count >= b.needed {
		b.count = 0
		b.generation++
		return
	}
	for b.generation == myGen {
		b.y.Yield()
	}
}

// Generation returns the current generation counter.
func (b *Barrier) Generation() int {
	return b.generation
}

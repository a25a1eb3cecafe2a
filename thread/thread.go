// Package thread implements the cooperative scheduler: a fixed-size table of
// threads multiplexed over one flow of control, with explicit yield points
// and a tick-driven host loop.
//
// Each thread is a goroutine gated by an unbuffered resume channel (see
// execContext); a context switch hands the channel token to the target and
// parks the caller, so exactly one goroutine in the kernel is ever runnable.
// Between two suspension points every memory effect of the running thread is
// therefore visible to whichever thread runs next, with no locking.
//
// The host ("main") context is whichever goroutine drives Tick. Tick may park
// its caller mid-call while threads run, returning only once control is
// handed back; callers just see a Tick call that took a while.
package thread

import (
	"fmt"
	"io"

	"github.com/joeycumines/logiface"
)

const (
	// MaxThreads is the number of thread slots.
	MaxThreads = 16
	// MaxName is the maximum thread name length in bytes; longer names are
	// truncated by Spawn.
	MaxName = 15
)

// TID identifies a thread. TIDs are handed out monotonically and never
// reused; 0 means "no thread".
type TID int

// Func is a thread entry function. It is invoked exactly once, on the
// thread's own context, the first time the thread is scheduled.
type Func func(arg any)

type slot struct {
	used       bool
	id         TID
	name       string
	state      State
	sleepTicks int
	fn         Func
	arg        any
	ctx        execContext
}

// Info is a point-in-time snapshot of an occupied thread slot.
type Info struct {
	ID         TID
	Name       string
	State      State
	SleepTicks int
}

// Config models optional configuration, for New.
type Config struct {
	// Logger receives scheduler diagnostics (spawn, trampoline entry, exit,
	// kill, reap).
	// May be nil, which disables logging.
	Logger *logiface.Logger[logiface.Event]
}

// Scheduler owns the thread table and the host context. Instances must be
// created with New, and must not be copied.
//
// Scheduler is deliberately not safe for use from multiple OS-level
// flows of control: the cooperative model assumes a single host loop.
type Scheduler struct {
	_ [0]func() // prevent copying

	threads   [MaxThreads]slot
	cur       int // index of the running slot, -1 for host
	nextTID   TID
	host      execContext
	mainSaved bool
	logger    *logiface.Logger[logiface.Event]
}

// New creates a Scheduler. The provided config may be nil.
func New(config *Config) *Scheduler {
	s := &Scheduler{
		cur:     -1,
		nextTID: 1,
		host:    newExecContext(),
	}
	if config != nil {
		s.logger = config.Logger
	}
	return s
}

// Spawn allocates a thread slot and prepares it so the first schedule enters
// fn(arg) via the trampoline. The thread starts Ready; it does not run until
// the scheduler elects it. Returns ErrTableFull when no slot is free, with no
// partial state.
func (s *Scheduler) Spawn(fn Func, arg any, name string) (TID, error) {
	for i := range s.threads {
		t := &s.threads[i]
		if t.used {
			continue
		}
		if len(name) > MaxName {
			name = name[:MaxName]
		}
		*t = slot{
			used:  true,
			id:    s.nextTID,
			name:  name,
			state: StateReady,
			fn:    fn,
			arg:   arg,
			ctx:   newExecContext(),
		}
		s.nextTID++
		go s.trampoline(t)
		s.logger.Debug().
			Int("tid", int(t.id)).
			Str("name", t.name).
			Log("thread spawned")
		return t.id, nil
	}
	return 0, ErrTableFull
}

// trampoline is the fixed entry stub for a fresh thread: it parks until the
// first schedule, calls the entry function, and routes the return through the
// exit path. It also recovers the kill unwind.
func (s *Scheduler) trampoline(t *slot) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		k, ok := r.(killed)
		if !ok {
			panic(r)
		}
		s.reap(t, k.ack)
	}()
	t.ctx.park()
	s.logger.Debug().
		Int("tid", int(t.id)).
		Str("name", t.name).
		Log("trampoline enter")
	if t.fn != nil {
		t.fn(t.arg)
	}
	s.exit()
}

// reap finalizes a killed thread from its own goroutine: free the slot, then
// either acknowledge the killer (who holds control) or, for a self-kill, hand
// control onward exit-style.
func (s *Scheduler) reap(t *slot, ack chan struct{}) {
	idx := s.index(t)
	self := s.cur == idx
	s.freeSlot(idx)
	if ack != nil {
		close(ack)
		return
	}
	if !self {
		return
	}
	s.cur = -1
	if next := s.nextReady(idx); next >= 0 {
		s.cur = next
		s.threads[next].state = StateRunning
		s.threads[next].ctx.dispatch()
		return
	}
	if s.mainSaved {
		s.mainSaved = false
		s.host.dispatch()
		return
	}
	panic(`thread: killed current thread with no saved host context`)
}

// Yield cooperatively gives up the flow of control. The next Ready thread in
// round-robin order after the caller's slot runs; with none Ready, control
// returns to the host if it is suspended, else Yield returns immediately.
// Yield from the host context (no running thread) enters the first Ready
// thread, suspending the host.
func (s *Scheduler) Yield() {
	old := s.cur
	next := s.nextReady(old)
	if next >= 0 {
		if old == -1 {
			// yielding from the host into a thread
			s.cur = next
			s.threads[next].state = StateRunning
			s.mainSaved = true
			s.switchContext(&s.host, &s.threads[next].ctx)
			return
		}
		prev := &s.threads[old]
		if prev.state == StateRunning {
			prev.state = StateReady
		}
		s.cur = next
		s.threads[next].state = StateRunning
		s.switchContext(&prev.ctx, &s.threads[next].ctx)
		return
	}
	if old != -1 && s.mainSaved {
		prev := &s.threads[old]
		if prev.state == StateRunning {
			prev.state = StateReady
		}
		s.cur = -1
		s.mainSaved = false
		s.switchContext(&prev.ctx, &s.host)
		return
	}
	// Nothing to switch to: the caller is the sole runnable flow.
}

// Sleep marks the caller Sleeping for n scheduler ticks and yields. n <= 0 is
// equivalent to Yield. Sleep with n > 0 from the host context returns
// immediately without yielding.
func (s *Scheduler) Sleep(n int) {
	if n <= 0 {
		s.Yield()
		return
	}
	if s.cur < 0 {
		return
	}
	t := &s.threads[s.cur]
	t.state = StateSleeping
	t.sleepTicks = n
	s.Yield()
}

// Tick advances the scheduler: wake expired sleepers, reap Finished slots,
// and, when no thread is running, elect the first Ready slot in table order
// and switch into it. Called by the host loop when idle. Tick may suspend its
// caller while threads run; it returns once control is handed back to the
// host.
func (s *Scheduler) Tick() {
	for i := range s.threads {
		t := &s.threads[i]
		if t.used && t.state == StateSleeping {
			if t.sleepTicks > 0 {
				t.sleepTicks--
			}
			if t.sleepTicks <= 0 {
				t.state = StateReady
			}
		}
	}

	if s.cur == -1 {
		for i := range s.threads {
			if s.threads[i].used && s.threads[i].state == StateFinished {
				s.logger.Debug().
					Int("tid", int(s.threads[i].id)).
					Log("reaped finished thread")
				s.freeSlot(i)
			}
		}
		for i := range s.threads {
			t := &s.threads[i]
			if t.used && t.state == StateReady {
				s.cur = i
				t.state = StateRunning
				if !s.mainSaved {
					s.mainSaved = true
					s.switchContext(&s.host, &t.ctx)
				} else {
					// Host context already saved: switch from a throwaway
					// save area. Control does not return here.
					discard := newExecContext()
					s.switchContext(&discard, &t.ctx)
				}
				break
			}
		}
		return
	}

	// A slot is nominally running while the host holds control; tolerate the
	// finished case by freeing it, mirroring the source behavior.
	t := &s.threads[s.cur]
	if t.state == StateFinished {
		s.freeSlot(s.cur)
		s.cur = -1
		s.mainSaved = false
	}
}

// Kill frees the slot of the given thread unconditionally. Locks the victim
// holds stay held. Killing the calling thread terminates it immediately (Kill
// does not return in that case). Returns ErrNoSuchThread for unknown ids.
func (s *Scheduler) Kill(tid TID) error {
	idx := s.findByTID(tid)
	if idx < 0 {
		return ErrNoSuchThread
	}
	s.logger.Debug().
		Int("tid", int(tid)).
		Log("killing thread")
	if idx == s.cur {
		// The victim is the caller; unwind through the trampoline.
		panic(killed{})
	}
	t := &s.threads[idx]
	if t.state == StateFinished {
		// Goroutine already gone; just free the slot.
		s.freeSlot(idx)
		return nil
	}
	// The victim is parked; wake it for unwinding and wait until its
	// goroutine is gone, keeping the single flow of control.
	<-t.ctx.dispatchKill()
	return nil
}

// exit marks the caller Finished and hands control to the next Ready thread,
// or back to the host. The slot is reaped by a later Tick. exit is reached
// via the trampoline, both for entry functions that return and for threads
// that end early.
func (s *Scheduler) exit() {
	if s.cur == -1 {
		panic(`thread: exit with no current thread`)
	}
	prev := s.cur
	t := &s.threads[prev]
	t.state = StateFinished
	s.logger.Debug().
		Int("tid", int(t.id)).
		Str("name", t.name).
		Log("thread exit")
	if next := s.nextReady(prev); next >= 0 {
		s.cur = next
		s.threads[next].state = StateRunning
		s.threads[next].ctx.dispatch()
		return
	}
	s.cur = -1
	if s.mainSaved {
		s.mainSaved = false
		s.host.dispatch()
		return
	}
	panic(`thread: exit with no runnable thread and no saved host context`)
}

// switchContext saves the caller into old and resumes next. It is the only
// place where thread-of-control changes; all other code observes context
// switches as ordinary function returns.
func (s *Scheduler) switchContext(old, next *execContext) {
	next.resume <- resumeAction{}
	old.park()
}

// nextReady returns the index of the first used+Ready slot strictly after
// from in round-robin order, or -1. from may be -1 (host), which scans from
// slot 0.
func (s *Scheduler) nextReady(from int) int {
	for i := 1; i <= MaxThreads; i++ {
		idx := (from + i + MaxThreads) % MaxThreads
		if s.threads[idx].used && s.threads[idx].state == StateReady {
			return idx
		}
	}
	return -1
}

func (s *Scheduler) findByTID(tid TID) int {
	for i := range s.threads {
		if s.threads[i].used && s.threads[i].id == tid {
			return i
		}
	}
	return -1
}

func (s *Scheduler) index(t *slot) int {
	for i := range s.threads {
		if &s.threads[i] == t {
			return i
		}
	}
	panic(`thread: slot not in table`)
}

func (s *Scheduler) freeSlot(idx int) {
	s.threads[idx] = slot{}
}

// Current returns the TID of the running thread, or 0 when execution is in
// the host context.
func (s *Scheduler) Current() TID {
	if s.cur < 0 {
		return 0
	}
	return s.threads[s.cur].id
}

// Snapshot returns the occupied thread slots in table order.
func (s *Scheduler) Snapshot() []Info {
	var out []Info
	for i := range s.threads {
		t := &s.threads[i]
		if t.used {
			out = append(out, Info{ID: t.id, Name: t.name, State: t.state, SleepTicks: t.sleepTicks})
		}
	}
	return out
}

// List writes the `ps` listing to w.
func (s *Scheduler) List(w io.Writer) {
	fmt.Fprintf(w, "threads:\n")
	for _, t := range s.Snapshot() {
		fmt.Fprintf(w, " id:%d name:%s state:%s", t.ID, t.Name, t.State)
		if t.State == StateSleeping {
			fmt.Fprintf(w, " ticks:%d", t.SleepTicks)
		}
		fmt.Fprintf(w, "\n")
	}
}

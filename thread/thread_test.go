package thread

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireQuiescent asserts the host-context invariant: while the host holds
// control, no slot is Running.
func requireQuiescent(t *testing.T, s *Scheduler) {
	t.Helper()
	for _, info := range s.Snapshot() {
		require.NotEqual(t, StateRunning, info.State, "slot %d running while host holds control", info.ID)
	}
}

func TestSpawnRunsEntryExactlyOnce(t *testing.T) {
	s := New(nil)
	var calls int
	var got any
	tid, err := s.Spawn(func(arg any) {
		calls++
		got = arg
	}, "payload", "once")
	require.NoError(t, err)
	require.Equal(t, TID(1), tid)
	require.Zero(t, calls, "entry must not run before scheduling")

	for i := 0; i < 4; i++ {
		s.Tick()
		requireQuiescent(t, s)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, "payload", got)
	assert.Empty(t, s.Snapshot(), "finished slot must be reaped")
}

func TestSpawnTableFull(t *testing.T) {
	s := New(nil)
	for i := 0; i < MaxThreads; i++ {
		_, err := s.Spawn(func(any) {}, nil, fmt.Sprintf("t%d", i))
		require.NoError(t, err)
	}
	_, err := s.Spawn(func(any) {}, nil, "overflow")
	require.ErrorIs(t, err, ErrTableFull)
	require.Len(t, s.Snapshot(), MaxThreads, "failed spawn must not leave partial state")

	// drain
	for i := 0; i < 3; i++ {
		s.Tick()
	}
	assert.Empty(t, s.Snapshot())
}

func TestTIDsMonotonicNeverReused(t *testing.T) {
	s := New(nil)
	tid1, err := s.Spawn(func(any) {}, nil, "a")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		s.Tick()
	}
	tid2, err := s.Spawn(func(any) {}, nil, "b")
	require.NoError(t, err)
	assert.Greater(t, tid2, tid1)
	for i := 0; i < 3; i++ {
		s.Tick()
	}
}

func TestNameTruncated(t *testing.T) {
	s := New(nil)
	_, err := s.Spawn(func(any) {}, nil, strings.Repeat("x", 40))
	require.NoError(t, err)
	info := s.Snapshot()
	require.Len(t, info, 1)
	assert.Equal(t, strings.Repeat("x", MaxName), info[0].Name)
	for i := 0; i < 3; i++ {
		s.Tick()
	}
}

// TestInterleave is the pinger/counter scenario: two threads alternating on
// Yield produce a strictly interleaved transcript.
func TestInterleave(t *testing.T) {
	s := New(nil)
	var buf bytes.Buffer
	_, err := s.Spawn(func(any) {
		for i := 0; i < 3; i++ {
			fmt.Fprintf(&buf, "[ping]\n")
			s.Yield()
		}
	}, nil, "ping")
	require.NoError(t, err)
	_, err = s.Spawn(func(any) {
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(&buf, "[count] %d\n", i)
			s.Yield()
		}
	}, nil, "count")
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		s.Tick()
		requireQuiescent(t, s)
	}
	assert.Equal(t,
		"[ping]\n[count] 1\n[ping]\n[count] 2\n[ping]\n[count] 3\n",
		buf.String())
	assert.Empty(t, s.Snapshot())
}

// TestYieldSoleThread verifies the law that a yield with no other Ready
// thread simply resumes the caller: control bounces through the host, and the
// thread continues where it left off on the next tick.
func TestYieldSoleThread(t *testing.T) {
	s := New(nil)
	var buf bytes.Buffer
	_, err := s.Spawn(func(any) {
		fmt.Fprintf(&buf, "A")
		s.Yield()
		fmt.Fprintf(&buf, "B")
	}, nil, "solo")
	require.NoError(t, err)

	s.Tick()
	assert.Equal(t, "A", buf.String())
	s.Tick()
	assert.Equal(t, "AB", buf.String())
	s.Tick()
	assert.Empty(t, s.Snapshot())
}

func TestSleepZeroIsYield(t *testing.T) {
	s := New(nil)
	var buf bytes.Buffer
	_, err := s.Spawn(func(any) {
		fmt.Fprintf(&buf, "A")
		s.Sleep(0)
		fmt.Fprintf(&buf, "B")
	}, nil, "z")
	require.NoError(t, err)

	s.Tick()
	assert.Equal(t, "A", buf.String())
	info := s.Snapshot()
	require.Len(t, info, 1)
	assert.Equal(t, StateReady, info[0].State, "Sleep(0) must not sleep")
	s.Tick()
	assert.Equal(t, "AB", buf.String())
	s.Tick()
}

// TestSleepOrdering staggers three workers with Sleep(1+id); they resume on
// successive ticks, in id order.
func TestSleepOrdering(t *testing.T) {
	s := New(nil)
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		id := i
		_, err := s.Spawn(func(any) {
			s.Sleep(1 + id)
			fmt.Fprintf(&buf, "resume %d\n", id)
		}, nil, fmt.Sprintf("w%d", id))
		require.NoError(t, err)
	}

	s.Tick() // all three run up to their Sleep
	assert.Empty(t, buf.String())
	for _, info := range s.Snapshot() {
		assert.Equal(t, StateSleeping, info.State)
		assert.Positive(t, info.SleepTicks)
	}

	s.Tick()
	assert.Equal(t, "resume 0\n", buf.String())
	s.Tick()
	assert.Equal(t, "resume 0\nresume 1\n", buf.String())
	s.Tick()
	assert.Equal(t, "resume 0\nresume 1\nresume 2\n", buf.String())
	s.Tick()
	assert.Empty(t, s.Snapshot())
}

func TestYieldFromHost(t *testing.T) {
	s := New(nil)
	var buf bytes.Buffer
	_, err := s.Spawn(func(any) {
		fmt.Fprintf(&buf, "thread\n")
	}, nil, "t")
	require.NoError(t, err)

	// Yield from the host context enters the first Ready thread directly.
	s.Yield()
	assert.Equal(t, "thread\n", buf.String())
	requireQuiescent(t, s)
	s.Tick()
	assert.Empty(t, s.Snapshot())
}

func TestYieldFromHostNoReady(t *testing.T) {
	s := New(nil)
	s.Yield() // must return immediately
	assert.Zero(t, s.Current())
}

func TestKillParkedThread(t *testing.T) {
	s := New(nil)
	var rounds int
	tid, err := s.Spawn(func(any) {
		for {
			rounds++
			s.Yield()
		}
	}, nil, "spin")
	require.NoError(t, err)

	s.Tick()
	require.Equal(t, 1, rounds)
	require.NoError(t, s.Kill(tid))
	assert.Empty(t, s.Snapshot())
	require.ErrorIs(t, s.Kill(tid), ErrNoSuchThread)

	// the table keeps working after a kill
	s.Tick()
	_, err = s.Spawn(func(any) {}, nil, "after")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		s.Tick()
	}
}

func TestKillNeverScheduledThread(t *testing.T) {
	s := New(nil)
	var ran bool
	tid, err := s.Spawn(func(any) { ran = true }, nil, "cold")
	require.NoError(t, err)
	require.NoError(t, s.Kill(tid))
	assert.False(t, ran, "killed-before-first-run thread must not run")
	assert.Empty(t, s.Snapshot())
}

func TestKillSleepingThread(t *testing.T) {
	s := New(nil)
	tid, err := s.Spawn(func(any) {
		s.Sleep(100)
	}, nil, "sleeper")
	require.NoError(t, err)
	s.Tick()
	require.NoError(t, s.Kill(tid))
	assert.Empty(t, s.Snapshot())
}

func TestKillSelf(t *testing.T) {
	s := New(nil)
	var after bool
	_, err := s.Spawn(func(any) {
		_ = s.Kill(s.Current())
		after = true // must be unreachable
	}, nil, "seppuku")
	require.NoError(t, err)
	s.Tick()
	assert.False(t, after, "self-kill must not return")
	assert.Empty(t, s.Snapshot())
	assert.Zero(t, s.Current())
}

func TestKillUnknownTID(t *testing.T) {
	s := New(nil)
	require.ErrorIs(t, s.Kill(42), ErrNoSuchThread)
}

// TestKillRunsDeferredCleanup verifies a killed thread's deferred functions
// run during the unwind.
func TestKillRunsDeferredCleanup(t *testing.T) {
	s := New(nil)
	var cleaned bool
	tid, err := s.Spawn(func(any) {
		defer func() { cleaned = true }()
		for {
			s.Yield()
		}
	}, nil, "guarded")
	require.NoError(t, err)
	s.Tick()
	require.NoError(t, s.Kill(tid))
	assert.True(t, cleaned)
}

func TestSpawnFromThread(t *testing.T) {
	s := New(nil)
	var buf bytes.Buffer
	_, err := s.Spawn(func(any) {
		fmt.Fprintf(&buf, "parent\n")
		_, err := s.Spawn(func(any) {
			fmt.Fprintf(&buf, "child\n")
		}, nil, "child")
		if err != nil {
			panic(err)
		}
		s.Yield()
		fmt.Fprintf(&buf, "parent again\n")
	}, nil, "parent")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s.Tick()
	}
	assert.Equal(t, "parent\nchild\nparent again\n", buf.String())
	assert.Empty(t, s.Snapshot())
}

func TestCurrent(t *testing.T) {
	s := New(nil)
	require.Zero(t, s.Current())
	var seen TID
	tid, err := s.Spawn(func(any) {
		seen = s.Current()
	}, nil, "self")
	require.NoError(t, err)
	s.Tick()
	assert.Equal(t, tid, seen)
	assert.Zero(t, s.Current())
	s.Tick()
}

func TestListFormat(t *testing.T) {
	s := New(nil)
	_, err := s.Spawn(func(any) { s.Sleep(7) }, nil, "napper")
	require.NoError(t, err)
	_, err = s.Spawn(func(any) {
		for {
			s.Yield()
		}
	}, nil, "spinner")
	require.NoError(t, err)
	s.Tick()

	var buf bytes.Buffer
	s.List(&buf)
	assert.Equal(t,
		"threads:\n id:1 name:napper state:sleep ticks:7\n id:2 name:spinner state:ready\n",
		buf.String())

	require.NoError(t, s.Kill(2))
	for i := 0; i < 10; i++ {
		s.Tick()
	}
}

// TestFinishedReapedByNextIdleTick pins the reaping bound: a Finished slot is
// freed by the end of the next tick that observes no Running thread.
func TestFinishedReapedByNextIdleTick(t *testing.T) {
	s := New(nil)
	_, err := s.Spawn(func(any) {}, nil, "quick")
	require.NoError(t, err)
	s.Tick() // runs to completion; slot Finished
	if info := s.Snapshot(); len(info) != 0 {
		require.Len(t, info, 1)
		require.Equal(t, StateFinished, info[0].State)
		s.Tick()
	}
	assert.Empty(t, s.Snapshot())
}

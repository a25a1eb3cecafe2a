package apps

import (
	"fmt"

	"github.com/joeycumines/go-tinykern/ksync"
	"github.com/joeycumines/go-tinykern/prog"
)

func appHello(e *Env, _ any) {
	fmt.Fprintf(e.Out, "[app:hello] Hello from built-in app!\n")
}

func appEcho(e *Env, _ any) {
	fmt.Fprintf(e.Out, "[app:echo] echoing... done\n")
}

func appSum(e *Env, _ any) {
	var s int
	for i := 1; i <= 10; i++ {
		s += i
	}
	fmt.Fprintf(e.Out, "sum=%d\n", s)
}

// appPinger prints ping then yields, giving other threads a chance between
// rounds.
func appPinger(e *Env, _ any) {
	for i := 0; i < 20; i++ {
		fmt.Fprintf(e.Out, "[app:pinger] ping\n")
		e.Sched.Yield()
	}
	fmt.Fprintf(e.Out, "[app:pinger] done\n")
}

func appCounter(e *Env, _ any) {
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(e.Out, "[app:counter] %d\n", i)
		e.Sched.Yield()
	}
	fmt.Fprintf(e.Out, "[app:counter] done\n")
}

// ring is the shared state of the producer/consumer demo: a 4-slot ring
// guarded by a mutex, with counting semaphores for items and spaces.
type ring struct {
	slots  [4]byte
	head   int
	tail   int
	lock   *ksync.Mutex
	items  *ksync.Semaphore
	spaces *ksync.Semaphore
}

func appSyncDemo(e *Env, _ any) {
	r := &ring{}
	r.lock = ksync.NewMutex(e.Sched)
	r.items = ksync.NewSemaphore(e.Sched, 0)
	r.spaces = ksync.NewSemaphore(e.Sched, len(r.slots))
	_, _ = e.Sched.Spawn(func(any) { producer(e, r) }, nil, "producer")
	_, _ = e.Sched.Spawn(func(any) { consumer(e, r) }, nil, "consumer")
	fmt.Fprintf(e.Out, "[app:syncdemo] spawned producer/consumer\n")
}

func producer(e *Env, r *ring) {
	payload := []byte{'A', 'B', 'C', 'D', 'E', 'F'}
	for _, c := range payload {
		r.spaces.Wait()
		r.lock.Lock()
		r.slots[r.tail] = c
		r.tail = (r.tail + 1) % len(r.slots)
		r.lock.Unlock()
		r.items.Post()
		fmt.Fprintf(e.Out, "[producer] queued item\n")
		e.Sched.Yield()
	}
	fmt.Fprintf(e.Out, "[producer] done\n")
}

func consumer(e *Env, r *ring) {
	for i := 0; i < 6; i++ {
		r.items.Wait()
		r.lock.Lock()
		item := r.slots[r.head]
		r.head = (r.head + 1) % len(r.slots)
		r.lock.Unlock()
		r.spaces.Post()
		fmt.Fprintf(e.Out, "[consumer] got %c\n", item)
		e.Sched.Yield()
	}
	fmt.Fprintf(e.Out, "[consumer] done\n")
}

func appFSDemo(e *Env, _ any) {
	_ = e.FS.WriteFile("hello.txt", []byte("hi-from-fs"))
	if data, err := e.FS.ReadFile("hello.txt"); err == nil {
		fmt.Fprintf(e.Out, "[app:fs] read back: %s\n", data)
	}
}

func appProgDemo(e *Env, _ any) {
	const script = "print script boot;write note hi!;read note;spawn pinger;yield;print bye;exit"
	_ = e.Progs.Load("script1", script, prog.CapUART|prog.CapFSWrite|prog.CapFSRead|prog.CapSpawn)
	_, _ = e.Progs.Run("script1")
}

// appSleepers staggers three workers with different sleep durations, so they
// wake on successive ticks.
func appSleepers(e *Env, _ any) {
	for i := 0; i < 3; i++ {
		id := i
		_, _ = e.Sched.Spawn(func(any) { sleepyWorker(e, id) }, nil, "sleepy")
	}
	fmt.Fprintf(e.Out, "[app:sleepers] spawned sleepy threads\n")
}

func sleepyWorker(e *Env, id int) {
	for round := 0; round < 3; round++ {
		fmt.Fprintf(e.Out, "[sleepy %d] round %d\n", id, round)
		e.Sched.Sleep(1 + id)
	}
	fmt.Fprintf(e.Out, "[sleepy] done\n")
}

func appBarrierDemo(e *Env, _ any) {
	b := ksync.NewBarrier(e.Sched, 3)
	for i := 0; i < 3; i++ {
		id := i
		_, _ = e.Sched.Spawn(func(any) { barrierWorker(e, b, id) }, nil, fmt.Sprintf("bar%d", id))
	}
	fmt.Fprintf(e.Out, "[app:barrier] 3 workers waiting on barrier\n")
}

func barrierWorker(e *Env, b *ksync.Barrier, id int) {
	for step := 0; step < 3; step++ {
		fmt.Fprintf(e.Out, "[barrier worker %d] step %d\n", id, step)
		b.Wait()
	}
	fmt.Fprintf(e.Out, "[barrier worker] done\n")
}

func appProgFileDemo(e *Env, _ any) {
	_ = e.FS.WriteFile("fileprog.txt", []byte("print from-file;yield;spawn counter;exit"))
	_ = e.Progs.LoadFile("fileprog", "fileprog.txt", prog.CapUART|prog.CapSpawn)
	_, _ = e.Progs.Run("fileprog")
}

// Package apps holds the built-in demonstration apps: small entry functions
// exercising the scheduler, the sync primitives, the filesystem, and the
// program layer, spawned by name from the shell or from a script's spawn
// verb.
package apps

import (
	"fmt"
	"io"

	"github.com/joeycumines/logiface"

	"github.com/joeycumines/go-tinykern/memfs"
	"github.com/joeycumines/go-tinykern/prog"
	"github.com/joeycumines/go-tinykern/thread"
)

// ErrNotFound aliases the program layer's sentinel: unknown app name.
var ErrNotFound = prog.ErrNotFound

// Env bundles the collaborators the apps run against.
type Env struct {
	Sched  *thread.Scheduler
	FS     *memfs.FS
	Progs  *prog.Store
	Out    io.Writer
	Logger *logiface.Logger[logiface.Event]
}

type entry struct {
	name string
	fn   func(e *Env, arg any)
}

// registry is the fixed app table. Each app is a function that returns; apps
// that want background work spawn further threads themselves.
var registry = []entry{
	{"hello", appHello},
	{"echo", appEcho},
	{"sum", appSum},
	{"pinger", appPinger},
	{"counter", appCounter},
	{"sync", appSyncDemo},
	{"fs-demo", appFSDemo},
	{"prog-demo", appProgDemo},
	{"sleepers", appSleepers},
	{"barrier", appBarrierDemo},
	{"prog-file", appProgFileDemo},
}

func find(name string) *entry {
	for i := range registry {
		if registry[i].name == name {
			return &registry[i]
		}
	}
	return nil
}

// List writes the app listing to w.
func (e *Env) List(w io.Writer) {
	fmt.Fprintf(w, "apps:\n")
	for i := range registry {
		fmt.Fprintf(w, " - %s\n", registry[i].name)
	}
}

// Run executes the named app directly in the caller's context.
func (e *Env) Run(name string) error {
	app := find(name)
	if app == nil {
		return ErrNotFound
	}
	fmt.Fprintf(e.Out, "starting app: %s\n", name)
	app.fn(e, nil)
	fmt.Fprintf(e.Out, "app finished: %s\n", name)
	return nil
}

// Spawn launches the named app as a cooperative thread. Spawn itself is
// silent; callers wanting feedback (the shell) report the returned TID. Env
// satisfies prog.Spawner, backing the spawn verb.
func (e *Env) Spawn(name string) (thread.TID, error) {
	app := find(name)
	if app == nil {
		return 0, ErrNotFound
	}
	tid, err := e.Sched.Spawn(func(arg any) { app.fn(e, arg) }, nil, name)
	if err != nil {
		return 0, err
	}
	e.Logger.Debug().
		Str("app", name).
		Int("tid", int(tid)).
		Log("app spawned")
	return tid, nil
}

var _ prog.Spawner = (*Env)(nil)

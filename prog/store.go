// Package prog implements the capability-scoped program layer: a fixed-size
// store of named scripts with capability bits, and an interpreter that runs
// each script as a cooperative thread, gating every privileged verb on the
// program's capabilities.
package prog

import (
	"errors"
	"fmt"
	"io"

	"github.com/joeycumines/logiface"

	"github.com/joeycumines/go-tinykern/thread"
)

const (
	// MaxPrograms is the number of store slots.
	MaxPrograms = 8
	// MaxName is the maximum program name length in bytes.
	MaxName = 15
	// MaxScript is the maximum script length in bytes.
	MaxScript = 256
)

var (
	// ErrTableFull is returned by Load when no slot is free and no entry
	// matches the name.
	ErrTableFull = errors.New("prog: program table full")
	// ErrNotFound is returned for unknown program names.
	ErrNotFound = errors.New("prog: no such program")
	// ErrBusy is returned by Drop while interpreter threads spawned from the
	// entry are still live.
	ErrBusy = errors.New("prog: program in use")
)

// FileSystem is the filesystem surface the store consumes, for LoadFile and
// Save and for the read/write verbs.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

// Spawner launches a named app as a thread; it backs the spawn verb.
type Spawner interface {
	Spawn(name string) (thread.TID, error)
}

type program struct {
	used   bool
	name   string
	script string
	caps   Caps
	refs   int // live interpreter threads over this slot
}

// Config models the collaborators a Store needs, for NewStore.
type Config struct {
	// Scheduler runs interpreter threads. Required.
	Scheduler *thread.Scheduler
	// FS backs LoadFile/Save and the read/write verbs. Required.
	FS FileSystem
	// Out receives program output (the UART). Required.
	Out io.Writer
	// Spawner backs the spawn verb. May be nil, in which case spawn fails
	// silently.
	Spawner Spawner
	// Logger receives interpreter diagnostics. May be nil.
	Logger *logiface.Logger[logiface.Event]
}

// Store is the fixed-capacity program table. Slots never move while live
// interpreter threads reference them. Instances must be created with
// NewStore, and must not be copied.
type Store struct {
	_ [0]func() // prevent copying

	progs   [MaxPrograms]program
	sched   *thread.Scheduler
	fs      FileSystem
	out     io.Writer
	spawner Spawner
	logger  *logiface.Logger[logiface.Event]
}

// NewStore creates an empty Store. A panic will occur if a required
// collaborator is missing.
func NewStore(config *Config) *Store {
	if config == nil || config.Scheduler == nil {
		panic(`prog: nil scheduler`)
	}
	if config.FS == nil {
		panic(`prog: nil filesystem`)
	}
	if config.Out == nil {
		panic(`prog: nil output`)
	}
	return &Store{
		sched:   config.Scheduler,
		fs:      config.FS,
		out:     config.Out,
		spawner: config.Spawner,
		logger:  config.Logger,
	}
}

func (x *Store) find(name string) int {
	for i := range x.progs {
		if x.progs[i].used && x.progs[i].name == name {
			return i
		}
	}
	return -1
}

// Load installs a program, overwriting an existing entry with the same name
// or occupying a free slot. Overlong names and scripts are truncated to their
// slot sizes.
func (x *Store) Load(name, script string, caps Caps) error {
	if len(name) > MaxName {
		name = name[:MaxName]
	}
	if len(script) > MaxScript {
		script = script[:MaxScript]
	}
	idx := x.find(name)
	if idx < 0 {
		for i := range x.progs {
			if !x.progs[i].used {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return ErrTableFull
	}
	p := &x.progs[idx]
	p.used = true
	p.name = name
	p.script = script
	p.caps = caps
	x.logger.Debug().
		Str("name", name).
		Int("caps", int(caps)).
		Log("program loaded")
	return nil
}

// LoadFile reads file from the filesystem (bounded to script size) and
// delegates to Load.
func (x *Store) LoadFile(name, file string, caps Caps) error {
	data, err := x.fs.ReadFile(file)
	if err != nil {
		return err
	}
	return x.Load(name, string(data), caps)
}

// Drop removes the named program. Dropping a program whose interpreter
// threads are still live fails with ErrBusy; the slot must not be reused
// while a thread references it.
func (x *Store) Drop(name string) error {
	idx := x.find(name)
	if idx < 0 {
		return ErrNotFound
	}
	if x.progs[idx].refs > 0 {
		return ErrBusy
	}
	x.progs[idx] = program{}
	return nil
}

// Save writes the named program's script bytes to file.
func (x *Store) Save(name, file string) error {
	idx := x.find(name)
	if idx < 0 {
		return ErrNotFound
	}
	return x.fs.WriteFile(file, []byte(x.progs[idx].script))
}

// Run spawns an interpreter thread over the named program. The thread holds
// a stable reference into the store slot for its lifetime.
func (x *Store) Run(name string) (thread.TID, error) {
	idx := x.find(name)
	if idx < 0 {
		return 0, ErrNotFound
	}
	return x.spawn(&x.progs[idx])
}

// RunAll spawns one interpreter thread per occupied entry, returning the
// number started. An empty store is ErrNotFound.
func (x *Store) RunAll() (int, error) {
	var started int
	for i := range x.progs {
		if x.progs[i].used {
			if _, err := x.spawn(&x.progs[i]); err != nil {
				return started, err
			}
			started++
		}
	}
	if started == 0 {
		return 0, ErrNotFound
	}
	return started, nil
}

func (x *Store) spawn(p *program) (thread.TID, error) {
	p.refs++
	tid, err := x.sched.Spawn(x.interpret, p, p.name)
	if err != nil {
		p.refs--
		return 0, err
	}
	return tid, nil
}

// List writes the program listing to w, one ` - name caps:N` line per entry
// in slot order.
func (x *Store) List(w io.Writer) {
	fmt.Fprintf(w, "user progs:\n")
	for i := range x.progs {
		if x.progs[i].used {
			fmt.Fprintf(w, " - %s caps:%d\n", x.progs[i].name, int(x.progs[i].caps))
		}
	}
}

// Len returns the number of programs present.
func (x *Store) Len() int {
	var n int
	for i := range x.progs {
		if x.progs[i].used {
			n++
		}
	}
	return n
}

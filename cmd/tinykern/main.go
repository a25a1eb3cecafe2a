//go:build unix

// Command tinykern runs the cooperative kernel on the controlling terminal:
// the terminal is the UART, the shell is the host loop, and background
// threads run between keystrokes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/joeycumines/go-tinykern/apps"
	"github.com/joeycumines/go-tinykern/memfs"
	"github.com/joeycumines/go-tinykern/prog"
	"github.com/joeycumines/go-tinykern/shell"
	"github.com/joeycumines/go-tinykern/thread"
	"github.com/joeycumines/go-tinykern/uart"
)

func main() {
	logLevel := flag.String("log-level", "none", "diagnostic log level: none, info, or debug (JSON on stderr)")
	flag.Parse()

	logger := newLogger(*logLevel)

	port, err := uart.OpenPosix()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tinykern: open console: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = port.Close()
	}()

	sched := thread.New(&thread.Config{Logger: logger})
	fs := memfs.New()
	env := &apps.Env{
		Sched:  sched,
		FS:     fs,
		Out:    uart.Writer(port),
		Logger: logger,
	}
	progs := prog.NewStore(&prog.Config{
		Scheduler: sched,
		FS:        fs,
		Out:       uart.Writer(port),
		Spawner:   env,
		Logger:    logger,
	})
	env.Progs = progs

	sh := shell.New(&shell.Config{
		Port:      port,
		Scheduler: sched,
		FS:        fs,
		Progs:     progs,
		Apps:      env,
		Logger:    logger,
	})
	sh.Run()
}

// newLogger builds the diagnostics logger: stumpy JSON on stderr, colorable
// when stderr is a terminal. Level "none" disables logging entirely.
func newLogger(level string) *logiface.Logger[logiface.Event] {
	var lvl logiface.Level
	switch level {
	case "debug":
		lvl = logiface.LevelDebug
	case "info":
		lvl = logiface.LevelInformational
	case "none", "":
		return nil
	default:
		fmt.Fprintf(os.Stderr, "tinykern: unknown log level %q\n", level)
		os.Exit(2)
	}
	w := os.Stderr
	out := stumpy.WithWriter(w)
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		out = stumpy.WithWriter(colorable.NewColorable(w))
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(out),
		stumpy.L.WithLevel(lvl),
	).Logger()
}

// Package shell implements the interactive console: a line-buffered command
// loop on the UART that drives the scheduler whenever no input is pending.
package shell

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joeycumines/logiface"
	"github.com/mattn/go-runewidth"

	"github.com/joeycumines/go-tinykern/apps"
	"github.com/joeycumines/go-tinykern/memfs"
	"github.com/joeycumines/go-tinykern/prog"
	"github.com/joeycumines/go-tinykern/thread"
	"github.com/joeycumines/go-tinykern/uart"
)

// maxLine bounds the input line length in bytes; further input is dropped.
const maxLine = 80

// Config models the collaborators a Shell needs, for New.
type Config struct {
	// Port is the console device. Required.
	Port uart.Port
	// Scheduler is ticked while idle. Required.
	Scheduler *thread.Scheduler
	// FS backs the fs commands. Required.
	FS *memfs.FS
	// Progs backs the prog commands. Required.
	Progs *prog.Store
	// Apps backs run/ls. Required.
	Apps *apps.Env
	// Logger receives shell diagnostics. May be nil.
	Logger *logiface.Logger[logiface.Event]
}

// Shell is the interactive console loop. Instances must be created with New.
type Shell struct {
	port   uart.Port
	out    io.Writer
	sched  *thread.Scheduler
	fs     *memfs.FS
	progs  *prog.Store
	apps   *apps.Env
	logger *logiface.Logger[logiface.Event]
}

// New creates a Shell. A panic will occur if a required collaborator is
// missing.
func New(config *Config) *Shell {
	if config == nil || config.Port == nil {
		panic(`shell: nil port`)
	}
	if config.Scheduler == nil || config.FS == nil || config.Progs == nil || config.Apps == nil {
		panic(`shell: missing collaborator`)
	}
	return &Shell{
		port:   config.Port,
		out:    uart.Writer(config.Port),
		sched:  config.Scheduler,
		fs:     config.FS,
		progs:  config.Progs,
		apps:   config.Apps,
		logger: config.Logger,
	}
}

// Run enters the console loop, returning when the stop command (or an EOT
// byte, for terminal devices) is received. While no input byte is pending the
// scheduler is ticked, so background threads make progress between
// keystrokes.
func (sh *Shell) Run() {
	uart.Puts(sh.port, "tiny-shell: type 'help' or 'stop'\n")
	var line []byte
	uart.Puts(sh.port, "$ ")
	for {
		if !sh.port.HasChar() {
			sh.tick()
		}
		c := sh.port.Getc()
		if c == '\r' {
			c = '\n'
		}
		switch {
		case c == 0x04: // EOT: same as stop
			uart.Puts(sh.port, "\n")
			sh.stopMessage()
			return
		case c == '\n':
			uart.Puts(sh.port, "\n")
			if len(line) > 0 {
				if !sh.dispatch(string(line)) {
					return
				}
				line = line[:0]
			}
			uart.Puts(sh.port, "$ ")
		case c == 8 || c == 127: // backspace
			if len(line) > 0 {
				r, size := utf8.DecodeLastRune(line)
				line = line[:len(line)-size]
				for i := 0; i < runewidth.RuneWidth(r); i++ {
					uart.Puts(sh.port, "\b \b")
				}
			}
		default:
			if len(line) < maxLine {
				line = append(line, c)
				sh.port.Putc(c)
			}
		}
	}
}

// tick drives the scheduler from the idle loop. The scheduler may suspend the
// host here while threads run; when tick returns, control is back in the
// shell with its frame intact.
func (sh *Shell) tick() {
	sh.sched.Tick()
}

func (sh *Shell) stopMessage() {
	uart.Puts(sh.port, "stopping kernel - halting now.\n")
}

// dispatch handles one input line, returning false on stop.
func (sh *Shell) dispatch(line string) bool {
	sh.logger.Debug().
		Str("line", line).
		Log("shell command")
	cmd, rest := cutWord(line)
	switch cmd {
	case "help":
		uart.Puts(sh.port, "commands: help stop ls run <app> ps kill <tid>\n")
		uart.Puts(sh.port, "          fs ... (ls/read/write/rm/format)\n")
		uart.Puts(sh.port, "          prog ... (ls/runall/load/loadfile/save/run/drop)\n")
	case "run":
		name, _ := cutWord(rest)
		if tid, err := sh.apps.Spawn(name); err != nil {
			uart.Puts(sh.port, "no such app\n")
		} else {
			fmt.Fprintf(sh.out, "spawned %s tid:%d\n", name, tid)
		}
	case "ls", "apps":
		sh.apps.List(sh.out)
	case "ps":
		sh.sched.List(sh.out)
	case "fs":
		sh.handleFS(rest)
	case "prog":
		sh.handleProg(rest)
	case "kill":
		arg, _ := cutWord(rest)
		tid, err := strconv.Atoi(arg)
		if err != nil || sh.sched.Kill(thread.TID(tid)) != nil {
			uart.Puts(sh.port, "no such tid\n")
		}
	case "stop":
		sh.stopMessage()
		return false
	default:
		uart.Puts(sh.port, "unknown\n")
	}
	return true
}

func (sh *Shell) handleFS(args string) {
	sub, rest := cutWord(args)
	switch sub {
	case "ls":
		sh.fs.List(sh.out)
	case "format":
		sh.fs.Format()
		uart.Puts(sh.port, "fs formatted\n")
	case "read":
		name, _ := cutWord(rest)
		if data, err := sh.fs.ReadFile(name); err == nil {
			fmt.Fprintf(sh.out, "%s\n", data)
		} else {
			uart.Puts(sh.port, "fs read failed\n")
		}
	case "write":
		name, data := cutWord(rest)
		if name != "" && sh.fs.WriteFile(name, []byte(data)) == nil {
			fmt.Fprintf(sh.out, "fs wrote %s\n", name)
		} else {
			uart.Puts(sh.port, "fs write failed\n")
		}
	case "rm":
		name, _ := cutWord(rest)
		if sh.fs.Remove(name) == nil {
			uart.Puts(sh.port, "fs removed\n")
		} else {
			uart.Puts(sh.port, "fs rm failed\n")
		}
	default:
		uart.Puts(sh.port, "fs usage: fs ls|format|read <f>|write <f> <data>|rm <f>\n")
	}
}

func (sh *Shell) handleProg(args string) {
	sub, rest := cutWord(args)
	switch sub {
	case "ls":
		sh.progs.List(sh.out)
	case "runall":
		if _, err := sh.progs.RunAll(); err != nil {
			uart.Puts(sh.port, "no progs\n")
		}
	case "run":
		name, _ := cutWord(rest)
		if _, err := sh.progs.Run(name); err != nil {
			uart.Puts(sh.port, "no such prog\n")
		}
	case "drop":
		name, _ := cutWord(rest)
		if sh.progs.Drop(name) == nil {
			uart.Puts(sh.port, "prog dropped\n")
		} else {
			uart.Puts(sh.port, "prog drop failed\n")
		}
	case "load":
		name, rest2 := cutWord(rest)
		capsWord, script := cutWord(rest2)
		caps := parseCaps(capsWord)
		if name != "" && sh.progs.Load(name, script, caps) == nil {
			uart.Puts(sh.port, "prog loaded\n")
		} else {
			uart.Puts(sh.port, "prog load failed\n")
		}
	case "loadfile":
		name, rest2 := cutWord(rest)
		capsWord, rest3 := cutWord(rest2)
		file, _ := cutWord(rest3)
		caps := parseCaps(capsWord)
		if name != "" && sh.progs.LoadFile(name, file, caps) == nil {
			uart.Puts(sh.port, "prog loaded from file\n")
		} else {
			uart.Puts(sh.port, "prog loadfile failed\n")
		}
	case "save":
		name, rest2 := cutWord(rest)
		file, _ := cutWord(rest2)
		if sh.progs.Save(name, file) == nil {
			uart.Puts(sh.port, "prog saved\n")
		} else {
			uart.Puts(sh.port, "prog save failed\n")
		}
	default:
		uart.Puts(sh.port, "prog usage: prog ls|runall|load <name> <caps> <script>|loadfile <name> <caps> <file>|run <name>|drop <name>|save <name> <file>\n")
	}
}

// cutWord splits off the first space-delimited word, returning it and the
// remainder with leading spaces trimmed. The remainder keeps interior spacing
// intact, for script and data tails.
func cutWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], strings.TrimLeft(s[i:], " ")
	}
	return s, ""
}

// parseCaps parses the decimal capability bitmask; malformed input is 0 (no
// capabilities).
func parseCaps(s string) prog.Caps {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return prog.Caps(n)
}

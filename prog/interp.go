package prog

import (
	"fmt"
	"strconv"
)

// isSpace reports the inter-token whitespace set. Statement separators (';')
// are not whitespace.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// cursor is a byte cursor over a script. Tokens are maximal non-empty runs of
// bytes outside the whitespace set and ';'.
type cursor struct {
	s   string
	pos int
}

func (c *cursor) eof() bool {
	return c.pos >= len(c.s)
}

func (c *cursor) skipSpace() {
	for !c.eof() && isSpace(c.s[c.pos]) {
		c.pos++
	}
}

// word returns the next token, skipping leading whitespace. Empty at a ';' or
// end of input.
func (c *cursor) word() string {
	c.skipSpace()
	start := c.pos
	for !c.eof() && !isSpace(c.s[c.pos]) && c.s[c.pos] != ';' {
		c.pos++
	}
	return c.s[start:c.pos]
}

// rest returns the remainder of the statement as a single byte string, after
// skipping one run of inter-token whitespace. Embedded spaces are preserved.
func (c *cursor) rest() string {
	c.skipSpace()
	start := c.pos
	for !c.eof() && c.s[c.pos] != ';' {
		c.pos++
	}
	return c.s[start:c.pos]
}

// skipStatement advances to the next ';' (or end of input) without consuming
// it, discarding the current statement's remaining tokens.
func (c *cursor) skipStatement() {
	for !c.eof() && c.s[c.pos] != ';' {
		c.pos++
	}
}

func (c *cursor) skipSeparators() {
	for !c.eof() && c.s[c.pos] == ';' {
		c.pos++
	}
}

// interpret is the entry function of an interpreter thread. Its argument is a
// stable reference into the store slot; the reference count taken by Run is
// released when the thread ends, including when it is killed mid-script (the
// unwind runs deferred functions).
func (x *Store) interpret(arg any) {
	p := arg.(*program)
	defer func() {
		p.refs--
	}()
	fmt.Fprintf(x.out, "[prog:%s] start\n", p.name)
	c := cursor{s: p.script}
	for {
		c.skipSpace()
		if c.eof() {
			break
		}
		verb := c.word()
		if verb == "" {
			// empty statement (stray separators)
			c.skipSeparators()
			continue
		}
		if !x.step(p, &c, verb) {
			break
		}
		c.skipSeparators()
	}
	fmt.Fprintf(x.out, "[prog:%s] exit\n", p.name)
}

// step executes one statement, returning false on the exit verb. Privileged
// verbs check the program's capabilities before any side effect; a denial
// consumes the rest of the statement, so argument tokens are never reparsed
// as verbs.
func (x *Store) step(p *program, c *cursor, verb string) bool {
	switch verb {
	case "print":
		if !p.caps.Has(CapUART) {
			x.deny(p, verb, c)
			return true
		}
		fmt.Fprintf(x.out, "[prog:%s] %s\n", p.name, c.rest())

	case "yield":
		x.sched.Yield()

	case "sleep":
		n, err := strconv.Atoi(c.word())
		if err != nil || n <= 0 {
			n = 1
		}
		x.sched.Sleep(n)

	case "spawn":
		if !p.caps.Has(CapSpawn) {
			x.deny(p, verb, c)
			return true
		}
		name := c.word()
		if x.spawner == nil {
			break
		}
		if _, err := x.spawner.Spawn(name); err != nil {
			x.logger.Debug().
				Str("prog", p.name).
				Str("app", name).
				Err(err).
				Log("spawn verb failed")
		}

	case "write":
		if !p.caps.Has(CapFSWrite) {
			x.deny(p, verb, c)
			return true
		}
		name := c.word()
		data := c.rest()
		if err := x.fs.WriteFile(name, []byte(data)); err == nil {
			fmt.Fprintf(x.out, "[prog:%s] wrote %s\n", p.name, name)
		} else {
			fmt.Fprintf(x.out, "[prog:%s] write fail\n", p.name)
		}

	case "read":
		if !p.caps.Has(CapFSRead) {
			x.deny(p, verb, c)
			return true
		}
		name := c.word()
		if data, err := x.fs.ReadFile(name); err == nil {
			fmt.Fprintf(x.out, "[prog:%s] %s\n", p.name, data)
		} else {
			fmt.Fprintf(x.out, "[prog:%s] read fail\n", p.name)
		}

	case "exit":
		return false

	default:
		fmt.Fprintf(x.out, "[prog:%s] unknown cmd\n", p.name)
		c.skipStatement()
	}
	return true
}

func (x *Store) deny(p *program, verb string, c *cursor) {
	fmt.Fprintf(x.out, "[deny] %s\n", verb)
	x.logger.Info().
		Str("prog", p.name).
		Str("verb", verb).
		Int("caps", int(p.caps)).
		Log("capability denied")
	c.skipStatement()
}

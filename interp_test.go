package main

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// machine is a reference interpreter for both trees. The tape is sparse and
// unbounded in both directions so that programs walking off the left edge
// still have a well defined result to compare.
type machine struct {
	cell  CellSize
	tape  map[int64]uint64
	ptr   int64
	in    []byte
	out   []byte
	steps int
	limit int
}

var errStepLimit = errors.New("step limit reached")

func newMachine(cell CellSize, input string, limit int) *machine {
	return &machine{cell: cell, tape: make(map[int64]uint64), in: []byte(input), limit: limit}
}

func (m *machine) step() error {
	m.steps++
	if m.steps > m.limit {
		return errStepLimit
	}
	return nil
}

func (m *machine) get() uint64 {
	return m.tape[m.ptr]
}

func (m *machine) setAt(p int64, v uint64) {
	v &= m.cell.Mask()
	if v == 0 {
		delete(m.tape, p)
		return
	}
	m.tape[p] = v
}

func (m *machine) add(delta int64) {
	m.setAt(m.ptr, m.get()+uint64(delta))
}

// read follows getchar: the next byte, or -1 at end of input
func (m *machine) read() {
	if len(m.in) == 0 {
		m.setAt(m.ptr, m.cell.Mask())
		return
	}
	m.setAt(m.ptr, uint64(m.in[0]))
	m.in = m.in[1:]
}

// print follows putchar: only the low byte reaches the output
func (m *machine) print() {
	m.out = append(m.out, byte(m.get()))
}

func (m *machine) runCommands(program []Command) error {
	for _, c := range program {
		if err := m.step(); err != nil {
			return err
		}
		switch c := c.(type) {
		case AddCmd:
			m.add(int64(c.Count))
		case SubCmd:
			m.add(-int64(c.Count))
		case LeftCmd:
			m.ptr -= int64(c.Count)
		case RightCmd:
			m.ptr += int64(c.Count)
		case ReadCmd:
			m.read()
		case PrintCmd:
			m.print()
		case LoopCmd:
			for m.get() != 0 {
				if err := m.runCommands(c.Body); err != nil {
					return err
				}
				if err := m.step(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *machine) runFolded(program []Folded) error {
	for _, n := range program {
		if err := m.step(); err != nil {
			return err
		}
		switch n := n.(type) {
		case AddOp:
			m.add(n.Delta)
		case MoveOp:
			m.ptr += n.Delta
		case SetZeroOp:
			m.setAt(m.ptr, 0)
		case MoveValueOp:
			v := m.get()
			target := m.ptr + n.Offset
			m.setAt(target, m.tape[target]+v*uint64(n.Multiplier))
			m.setAt(m.ptr, 0)
		case ReadOp:
			m.read()
		case PrintOp:
			m.print()
		case LoopOp:
			for m.get() != 0 {
				if err := m.runFolded(n.Body); err != nil {
					return err
				}
				if err := m.step(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// sameState reports whether two machines ended with the same observable state
func sameState(t *testing.T, want, got *machine, msgAndArgs ...interface{}) {
	t.Helper()
	require.Equal(t, string(want.out), string(got.out), msgAndArgs...)
	require.Equal(t, want.ptr, got.ptr, msgAndArgs...)
	require.Equal(t, want.tape, got.tape, msgAndArgs...)
}

// interpret runs source verbatim, the way the language defines it
func interpret(t *testing.T, src string, cell CellSize, input string, limit int) (*machine, error) {
	t.Helper()
	program, err := Parse(Filter([]byte(src)), ParseVerbatim)
	require.NoError(t, err)
	m := newMachine(cell, input, limit)
	return m, m.runCommands(program)
}

// idioms are the loop shapes the optimizer looks for, plus near misses
var idioms = []string{
	"[-]", "[--]", "[+]", "[->+<]", "[>+<-]", "[->>+++<<]", "[-<<->>]",
	"[->+>+<<]", "[[-]]", "[-<+>]", "[<->-]",
}

// randomProgram generates a balanced program with no empty loops
func randomProgram(r *rand.Rand, depth, length int) string {
	var sb strings.Builder
	n := 1 + r.Intn(length)
	for i := 0; i < n; i++ {
		switch k := r.Intn(20); {
		case k < 6:
			sb.WriteString(strings.Repeat("+", 1+r.Intn(4)))
		case k < 9:
			sb.WriteString(strings.Repeat("-", 1+r.Intn(4)))
		case k < 12:
			sb.WriteString(strings.Repeat(">", 1+r.Intn(3)))
		case k < 14:
			sb.WriteString(strings.Repeat("<", 1+r.Intn(3)))
		case k < 15:
			sb.WriteByte('.')
		case k < 16:
			sb.WriteByte(',')
		case k < 18:
			sb.WriteString(idioms[r.Intn(len(idioms))])
		default:
			if depth > 0 {
				sb.WriteByte('[')
				sb.WriteString(randomProgram(r, depth-1, length/2+1))
				sb.WriteByte(']')
			} else {
				sb.WriteByte('-')
			}
		}
	}
	return sb.String()
}

func TestInterpreterHelloWorld(t *testing.T) {
	m, err := interpret(t, helloWorld, CellI8, "", 100000)
	require.NoError(t, err)
	require.Equal(t, "Hello World!\n", string(m.out))
}

func TestInterpreterWrapsAtCellWidth(t *testing.T) {
	m, err := interpret(t, "-", CellU8, "", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(0xFF), m.get())

	m, err = interpret(t, "-", CellU64, "", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), m.get())

	m, err = interpret(t, ",", CellI16, "", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(0xFFFF), m.get(), "EOF is -1 truncated to the cell")
}

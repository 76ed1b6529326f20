package main

import (
	"fmt"
	"strings"
)

// AST Nodes
type Node interface {
	String() string
}

// Command is a node of the raw tree, exactly as parsed.
// String() renders the node back to source text.
type Command interface {
	Node
	commandNode()
}

type AddCmd struct{ Count int }

func (c AddCmd) String() string { return strings.Repeat("+", c.Count) }
func (c AddCmd) commandNode()   {}

type SubCmd struct{ Count int }

func (c SubCmd) String() string { return strings.Repeat("-", c.Count) }
func (c SubCmd) commandNode()   {}

type LeftCmd struct{ Count int }

func (c LeftCmd) String() string { return strings.Repeat("<", c.Count) }
func (c LeftCmd) commandNode()   {}

type RightCmd struct{ Count int }

func (c RightCmd) String() string { return strings.Repeat(">", c.Count) }
func (c RightCmd) commandNode()   {}

type LoopCmd struct{ Body []Command }

func (c LoopCmd) String() string { return "[" + Serialize(c.Body) + "]" }
func (c LoopCmd) commandNode()   {}

type ReadCmd struct{}

func (ReadCmd) String() string { return "," }
func (ReadCmd) commandNode()   {}

type PrintCmd struct{}

func (PrintCmd) String() string { return "." }
func (PrintCmd) commandNode()   {}

// Serialize renders a raw tree back to the command characters it was parsed from
func Serialize(program []Command) string {
	var out strings.Builder
	for _, c := range program {
		out.WriteString(c.String())
	}
	return out.String()
}

// Folded is a node of the signed-delta tree that lowering produces and the
// optimizer rewrites. SetZeroOp and MoveValueOp only exist after optimization.
type Folded interface {
	Node
	foldedNode()
}

type AddOp struct{ Delta int64 }

func (o AddOp) String() string { return fmt.Sprintf("Add(%d)", o.Delta) }
func (o AddOp) foldedNode()    {}

type MoveOp struct{ Delta int64 }

func (o MoveOp) String() string { return fmt.Sprintf("Move(%d)", o.Delta) }
func (o MoveOp) foldedNode()    {}

type LoopOp struct{ Body []Folded }

func (o LoopOp) String() string { return "Loop" + FormatTree(o.Body) }
func (o LoopOp) foldedNode()    {}

type PrintOp struct{}

func (PrintOp) String() string { return "Print" }
func (PrintOp) foldedNode()    {}

type ReadOp struct{}

func (ReadOp) String() string { return "Read" }
func (ReadOp) foldedNode()    {}

type SetZeroOp struct{}

func (SetZeroOp) String() string { return "SetZero" }
func (SetZeroOp) foldedNode()    {}

// MoveValueOp adds the current cell times Multiplier to the cell at Offset,
// then clears the current cell.
type MoveValueOp struct {
	Offset     int64
	Multiplier int64
}

func (o MoveValueOp) String() string {
	return fmt.Sprintf("MoveValue{offset:%d, multiplier:%d}", o.Offset, o.Multiplier)
}
func (o MoveValueOp) foldedNode() {}

// FormatTree renders a folded sequence on one line, e.g. [Move(2), Add(3)]
func FormatTree(program []Folded) string {
	parts := make([]string, len(program))
	for i, n := range program {
		parts[i] = n.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// DumpTree renders a folded sequence one node per line, indenting loop bodies
func DumpTree(program []Folded) string {
	var out strings.Builder
	dumpTree(&out, program, 0)
	return out.String()
}

func dumpTree(out *strings.Builder, program []Folded, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range program {
		if loop, ok := n.(LoopOp); ok {
			out.WriteString(indent + "Loop\n")
			dumpTree(out, loop.Body, depth+1)
			continue
		}
		out.WriteString(indent + n.String() + "\n")
	}
}

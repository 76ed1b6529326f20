package main

import (
	"fmt"
	"io"
	"log"
)

// Emitter is the contract between the generator and a backend: one method per
// semantic action on the tape, plus labels and branches for loops. Backends
// decide the representation (machine code, assembly text, ...).
//
// The tape is Config.TapeCells cells of Config.Cell each. Every backend keeps
// a single pointer into it; Move is the only operation that changes the
// pointer, and none of them checks bounds.
type Emitter interface {
	// Prologue allocates the zeroed tape and points the pointer at its origin
	Prologue()
	// Add adds delta to the current cell, wrapping at the cell width
	Add(delta int64)
	// Move advances the pointer by delta cells. Unchecked: leaving the tape
	// is undefined behaviour, exactly as in the source language.
	Move(delta int64)
	// SetZero stores 0 in the current cell
	SetZero()
	// MoveValue adds current*multiplier to the cell at offset, then clears the current cell
	MoveValue(offset, multiplier int64)
	// Read stores one character from getchar in the current cell
	Read()
	// Print passes the current cell to putchar
	Print()

	// Label starts the block called name
	Label(name string)
	// Jump transfers control to the block called name
	Jump(name string)
	// BranchNonZero tests the current cell and continues at body if it is
	// non-zero, else at end. The next Label is always body.
	BranchNonZero(body, end string)

	// Epilogue frees the tape and returns 0 from main
	Epilogue()
	// Finish returns the finished artifact
	Finish() ([]byte, error)
}

// NewEmitter creates the backend for the configured target and artifact kind
func NewEmitter(cfg Config, sourceName string) (Emitter, error) {
	t := cfg.Target
	switch t.Arch {
	case ArchAMD64, ArchARM64:
	default:
		return nil, &BackendError{Target: hostArchOS(), Reason: "no code generator for this architecture; pass --arch amd64 or --arch arm64"}
	}
	switch cfg.Emit {
	case EmitObject:
		if !t.IsELF() {
			return nil, &BackendError{Target: t.String(), Reason: "no object writer for " + t.OS + " (only ELF targets are supported)"}
		}
		if t.Arch == ArchARM64 {
			return NewARM64CodeGen(cfg.Cell, cfg.TapeCells, sourceName), nil
		}
		return NewX86_64CodeGen(cfg.Cell, cfg.TapeCells, sourceName), nil
	case EmitAssembly:
		if t.Arch != ArchAMD64 {
			return nil, &BackendError{Target: t.String(), Reason: "assembly output is only available for amd64"}
		}
		return NewAsmWriter(cfg.Cell, cfg.TapeCells, sourceName), nil
	default:
		return nil, &BackendError{Target: t.String(), Reason: fmt.Sprintf("emit kind %s has no code generator", cfg.Emit)}
	}
}

// Generator walks an optimized tree once and drives an Emitter. Its state is
// local to one compilation.
type Generator struct {
	emit      Emitter
	loopCount int
	log       *log.Logger
}

func NewGenerator(e Emitter, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Generator{emit: e, log: logger}
}

// Generate emits the whole program: allocate the tape, run the program, free the tape
func (g *Generator) Generate(program []Folded) ([]byte, error) {
	g.emit.Prologue()
	g.block(program)
	g.emit.Epilogue()
	g.log.Printf("   generated %d loop(s)", g.loopCount)
	return g.emit.Finish()
}

func (g *Generator) block(program []Folded) {
	for _, n := range program {
		g.node(n)
	}
}

func (g *Generator) node(n Folded) {
	switch n := n.(type) {
	case AddOp:
		g.emit.Add(n.Delta)
	case MoveOp:
		g.emit.Move(n.Delta)
	case SetZeroOp:
		g.emit.SetZero()
	case MoveValueOp:
		g.emit.MoveValue(n.Offset, n.Multiplier)
	case ReadOp:
		g.emit.Read()
	case PrintOp:
		g.emit.Print()
	case LoopOp:
		g.loop(n.Body)
	default:
		panic("generate: unknown node " + n.String())
	}
}

// loop lowers a pre-test loop to three blocks:
//
//	loop_start_N: if cell == 0 goto loop_end_N
//	loop_body_N:  body; goto loop_start_N
//	loop_end_N:
func (g *Generator) loop(body []Folded) {
	n := g.loopCount
	g.loopCount++
	start := fmt.Sprintf("loop_start_%d", n)
	bodyLabel := fmt.Sprintf("loop_body_%d", n)
	end := fmt.Sprintf("loop_end_%d", n)

	g.emit.Jump(start)
	g.emit.Label(start)
	g.emit.BranchNonZero(bodyLabel, end)
	g.emit.Label(bodyLabel)
	g.block(body)
	g.emit.Jump(start)
	g.emit.Label(end)
}

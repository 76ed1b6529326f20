package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Compiler runs the whole pipeline for one configuration:
// filter, parse, lower, optimize, generate. A Compiler may be shared by
// concurrent compilations; all per-program state is created per call.
type Compiler struct {
	cfg Config
	log *log.Logger
}

// NewCompiler returns a compiler that traces its stages to logw when
// cfg.Verbose is set
func NewCompiler(cfg Config, logw io.Writer) *Compiler {
	if !cfg.Verbose || logw == nil {
		logw = io.Discard
	}
	return &Compiler{cfg: cfg, log: log.New(logw, "", 0)}
}

// Tree runs the front half of the pipeline and returns the tree handed to
// the code generator
func (c *Compiler) Tree(src []byte, name string) ([]Folded, error) {
	c.log.Printf("-> Filtering %s", name)
	source := Filter(src)
	c.log.Printf("   %d command characters of %d bytes", len(source.Code), len(src))

	mode := ParseModeFor(c.cfg.Opt)
	c.log.Printf("-> Parsing (%s)", mode)
	program, err := Parse(source, mode)
	if err != nil {
		return nil, err
	}

	c.log.Println("-> Lowering")
	tree := Lower(program)

	if c.cfg.Opt.Rewrite() {
		c.log.Println("-> Optimizing")
		opt := NewOptimizer()
		tree = opt.Run(tree)
		c.log.Printf("   %d SetZero, %d MoveValue, %d loop(s) kept",
			opt.Stats.SetZero, opt.Stats.MoveValue, opt.Stats.Loops)
	}
	return tree, nil
}

// Compile turns source text into the configured artifact
func (c *Compiler) Compile(src []byte, name string) ([]byte, error) {
	tree, err := c.Tree(src, name)
	if err != nil {
		return nil, err
	}
	if c.cfg.Emit == EmitTree {
		return []byte(DumpTree(tree)), nil
	}

	emitter, err := NewEmitter(c.cfg, name)
	if err != nil {
		return nil, err
	}
	c.log.Printf("-> Generating %s for %s (%s cells, %d of them)", c.cfg.Emit, c.cfg.Target, c.cfg.Cell, c.cfg.TapeCells)
	return NewGenerator(emitter, c.log).Generate(tree)
}

// CompileFile compiles the file at in and writes the artifact to out.
// Parse errors carry a snippet of the offending source.
func (c *Compiler) CompileFile(in, out string) error {
	src, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", in, err)
	}
	data, err := c.Compile(src, filepath.Base(in))
	if err != nil {
		return fmt.Errorf("%s: %w", in, WrapErrorWithSource(err, src))
	}
	if err := writeFileAtomic(out, data); err != nil {
		return &EmitError{Path: out, Err: err}
	}
	c.log.Printf("-> Wrote %s: %s", c.cfg.Emit, out)
	return nil
}

// writeFileAtomic writes data next to path and renames it into place, so a
// failed write never leaves a truncated file at path
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

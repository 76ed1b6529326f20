// Completion: 100% - Utility module complete
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// cli.go - command-line interface for bfc
//
// Subcommands:
// - bfc <file.bf>... (shorthand for build)
// - bfc build <file.bf>... (compile to object files)
// - bfc help
// - bfc version

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

const usageText = `Usage: bfc [build] [flags] <file.bf> [more.bf ...]
       bfc help | version

Flags:
  -o, --output FILE   output path (default "a.out"; <name>%[1]s for each of several inputs)
  -O, --opt LEVEL     Off | Normal | Max (default Normal)
  -c, --cell TYPE     I8 | I16 | I32 | I64 | U8 | U16 | U32 | U64 (default I64)
      --tape N        tape cells (default 30000)
      --arch ARCH     amd64 | arm64 (default: this machine)
      --emit KIND     obj | asm | tree (default obj)
  -j, --jobs N        parallel compilations for several inputs (default: number of CPUs)
  -v, --verbose       trace the compiler stages on stderr

Defaults can be set with BFC_OUTPUT, BFC_OPT, BFC_CELL, BFC_TAPE, BFC_ARCH,
BFC_EMIT, BFC_JOBS and BFC_VERBOSE.
`

// job is one input and the path its artifact is written to
type job struct {
	in  string
	out string
}

// RunCLI runs bfc with args (not including the program name) and returns the
// process exit code
func RunCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintf(stderr, usageText, ".o")
		return exitConfig
	}

	switch args[0] {
	case "help", "-h", "--help":
		fmt.Fprintf(stdout, usageText, ".o")
		return exitOK
	case "version", "--version", "-V":
		fmt.Fprintln(stdout, versionString)
		return exitOK
	case "build":
		args = args[1:]
	}

	cfg, jobs, err := parseBuildArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(stdout, usageText, cfg.Emit.Ext())
		return exitOK
	}
	if err != nil {
		return reportError(stderr, err)
	}

	if cfg.Verbose {
		fmt.Fprintf(stderr, "----=[ %s ]=----\n", versionString)
	}
	c := NewCompiler(cfg, stderr)
	if err := compileAll(context.Background(), c, jobs, cfg.Jobs); err != nil {
		return reportError(stderr, err)
	}
	return exitOK
}

func reportError(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "bfc: %v\n", err)
	var ce *ConfigError
	if errors.As(err, &ce) {
		return exitConfig
	}
	return exitFailure
}

// parseBuildArgs layers flags over the environment defaults and pairs each
// input with its output path. Flags and file names may be interleaved.
func parseBuildArgs(args []string, stderr io.Writer) (Config, []job, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return cfg, nil, err
	}

	fs := flag.NewFlagSet("bfc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {}

	var (
		output = cfg.Output
		opt    = cfg.Opt.String()
		cell   = cfg.Cell.String()
		emit   = cfg.Emit.String()
		arch   string
	)
	fs.StringVar(&output, "o", output, "output path")
	fs.StringVar(&output, "output", output, "output path")
	fs.StringVar(&opt, "O", opt, "optimization level")
	fs.StringVar(&opt, "opt", opt, "optimization level")
	fs.StringVar(&cell, "c", cell, "cell type")
	fs.StringVar(&cell, "cell", cell, "cell type")
	fs.IntVar(&cfg.TapeCells, "tape", cfg.TapeCells, "tape cells")
	fs.StringVar(&arch, "arch", "", "target architecture")
	fs.StringVar(&emit, "emit", emit, "artifact kind")
	fs.IntVar(&cfg.Jobs, "j", cfg.Jobs, "parallel compilations")
	fs.IntVar(&cfg.Jobs, "jobs", cfg.Jobs, "parallel compilations")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "verbose")

	var inputs []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return cfg, nil, err
			}
			return cfg, nil, &ConfigError{Option: "flags", Value: strings.Join(args, " "), Reason: err.Error()}
		}
		if fs.NArg() == 0 {
			break
		}
		inputs = append(inputs, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	if cfg.Opt, err = ParseOptimizationLevel(opt); err != nil {
		return cfg, nil, err
	}
	if cfg.Cell, err = ParseCellSize(cell); err != nil {
		return cfg, nil, err
	}
	if cfg.Emit, err = ParseEmitKind(emit); err != nil {
		return cfg, nil, err
	}
	if arch != "" {
		a, err := ParseArch(arch)
		if err != nil {
			return cfg, nil, err
		}
		cfg.Target = Target{Arch: a, OS: hostOS()}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = runtime.NumCPU()
	}

	explicitOutput := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "o" || f.Name == "output" {
			explicitOutput = true
		}
	})

	switch {
	case len(inputs) == 0:
		return cfg, nil, &ConfigError{Option: "input", Reason: "no source files given"}
	case len(inputs) == 1:
		cfg.Output = output
		return cfg, []job{{in: inputs[0], out: output}}, nil
	case explicitOutput:
		return cfg, nil, &ConfigError{Option: "output", Value: output, Reason: "cannot name a single output for several inputs"}
	}

	jobs := make([]job, len(inputs))
	seen := make(map[string]string, len(inputs))
	for i, in := range inputs {
		out := strings.TrimSuffix(in, filepath.Ext(in)) + cfg.Emit.Ext()
		if prev, ok := seen[out]; ok {
			return cfg, nil, &ConfigError{Option: "input", Value: in, Reason: "writes the same output as " + prev}
		}
		seen[out] = in
		jobs[i] = job{in: in, out: out}
	}
	return cfg, jobs, nil
}

// compileAll compiles the jobs on at most limit goroutines. Once one fails, jobs
// that have not started yet are skipped. Every failure is returned.
func compileAll(ctx context.Context, c *Compiler, jobs []job, limit int) error {
	eg, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, j := range jobs {
		j := j
		eg.Go(func() error {
			if ctx.Err() != nil {
				c.log.Printf("-> Skipping %s", j.in)
				return nil
			}
			if err := c.CompileFile(j.in, j.out); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	eg.Wait()
	return errors.Join(errs...)
}

package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"
)

// OptimizationLevel selects how much work is done between parsing and code generation.
//
//	Off    verbatim parse, no tree rewrite
//	Normal run-length parse, no tree rewrite
//	Max    run-length parse and the loop idiom rewrite
type OptimizationLevel int

const (
	OptOff OptimizationLevel = iota
	OptNormal
	OptMax
)

var legalOptLevels = []string{"Off", "Normal", "Max"}

func (o OptimizationLevel) String() string {
	if o < 0 || int(o) >= len(legalOptLevels) {
		return "unknown"
	}
	return legalOptLevels[o]
}

// ParseOptimizationLevel reads one of Off, Normal or Max (case insensitive)
func ParseOptimizationLevel(s string) (OptimizationLevel, error) {
	for i, name := range legalOptLevels {
		if strings.EqualFold(s, name) {
			return OptimizationLevel(i), nil
		}
	}
	return -1, &ConfigError{Option: "optimisation level", Value: s, Legal: legalOptLevels}
}

// RunLength reports whether the parser should coalesce runs at this level
func (o OptimizationLevel) RunLength() bool {
	return o >= OptNormal
}

// Rewrite reports whether the loop idiom rewrite runs at this level
func (o OptimizationLevel) Rewrite() bool {
	return o >= OptMax
}

// CellSize is the integer type of one tape cell
type CellSize int

const (
	CellI8 CellSize = iota
	CellI16
	CellI32
	CellI64
	CellU8
	CellU16
	CellU32
	CellU64
)

var legalCellSizes = []string{"I8", "I16", "I32", "I64", "U8", "U16", "U32", "U64"}

func (c CellSize) String() string {
	if c < 0 || int(c) >= len(legalCellSizes) {
		return "unknown"
	}
	return legalCellSizes[c]
}

// ParseCellSize reads one of I8, I16, I32, I64, U8, U16, U32, U64 (case insensitive)
func ParseCellSize(s string) (CellSize, error) {
	for i, name := range legalCellSizes {
		if strings.EqualFold(s, name) {
			return CellSize(i), nil
		}
	}
	return -1, &ConfigError{Option: "cell size", Value: s, Legal: legalCellSizes}
}

// Bytes is the width of one cell in memory
func (c CellSize) Bytes() int {
	switch c {
	case CellI8, CellU8:
		return 1
	case CellI16, CellU16:
		return 2
	case CellI32, CellU32:
		return 4
	default:
		return 8
	}
}

func (c CellSize) Bits() uint {
	return uint(c.Bytes()) * 8
}

func (c CellSize) Signed() bool {
	return c <= CellI64
}

// Mask keeps the low Bits() bits of a value
func (c CellSize) Mask() uint64 {
	if c.Bits() == 64 {
		return math.MaxUint64
	}
	return 1<<c.Bits() - 1
}

// Wrap reduces v modulo 2^Bits() and returns it as a signed value of the cell width
func (c CellSize) Wrap(v int64) int64 {
	shift := 64 - c.Bits()
	return v << shift >> shift
}

// EmitKind is the artifact a compilation produces
type EmitKind int

const (
	EmitObject EmitKind = iota
	EmitAssembly
	EmitTree
)

var legalEmitKinds = []string{"obj", "asm", "tree"}

func (k EmitKind) String() string {
	if k < 0 || int(k) >= len(legalEmitKinds) {
		return "unknown"
	}
	return legalEmitKinds[k]
}

// Ext is the file extension used when output names are derived from inputs
func (k EmitKind) Ext() string {
	switch k {
	case EmitAssembly:
		return ".s"
	case EmitTree:
		return ".tree"
	default:
		return ".o"
	}
}

func ParseEmitKind(s string) (EmitKind, error) {
	for i, name := range legalEmitKinds {
		if strings.EqualFold(s, name) {
			return EmitKind(i), nil
		}
	}
	return -1, &ConfigError{Option: "emit kind", Value: s, Legal: legalEmitKinds}
}

const (
	defaultOutput    = "a.out"
	defaultTapeCells = 30000
)

// Config is everything one compilation needs to know besides the source
type Config struct {
	Output    string
	Opt       OptimizationLevel
	Cell      CellSize
	TapeCells int
	Target    Target
	Emit      EmitKind
	Verbose   bool
	Jobs      int
}

// ConfigFromEnv builds the default configuration, letting BFC_* environment
// variables override the built-in defaults. Flags are applied on top by the CLI.
func ConfigFromEnv() (Config, error) {
	// The environment is cached on first read, so pick up later changes
	env.Load()
	cfg := Config{
		Output: env.Str("BFC_OUTPUT", defaultOutput),
	}
	var err error
	if cfg.TapeCells, err = envInt("BFC_TAPE", "tape", defaultTapeCells); err != nil {
		return cfg, err
	}
	if cfg.Jobs, err = envInt("BFC_JOBS", "jobs", 0); err != nil {
		return cfg, err
	}
	if s := env.Str("BFC_VERBOSE"); s != "" {
		if cfg.Verbose, err = strconv.ParseBool(s); err != nil {
			return cfg, &ConfigError{Option: "verbose", Value: s, Reason: "expected a boolean"}
		}
	}
	if cfg.Opt, err = ParseOptimizationLevel(env.Str("BFC_OPT", "Normal")); err != nil {
		return cfg, err
	}
	if cfg.Cell, err = ParseCellSize(env.Str("BFC_CELL", "I64")); err != nil {
		return cfg, err
	}
	if cfg.Emit, err = ParseEmitKind(env.Str("BFC_EMIT", "obj")); err != nil {
		return cfg, err
	}
	if name := env.Str("BFC_ARCH"); name != "" {
		arch, err := ParseArch(name)
		if err != nil {
			return cfg, err
		}
		cfg.Target = Target{Arch: arch, OS: hostOS()}
	} else if cfg.Target, err = DefaultTarget(); err != nil {
		// An explicit --arch may still rescue this, so only the emitter reports it
		cfg.Target = Target{Arch: -1, OS: hostOS()}
	}
	return cfg, nil
}

// envInt reads an integer variable, keeping def when it is unset
func envInt(name, option string, def int) (int, error) {
	s := strings.TrimSpace(env.Str(name))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, &ConfigError{Option: option, Value: s, Reason: "expected an integer"}
	}
	return n, nil
}

// Validate checks the values that have no closed set of their own
func (cfg Config) Validate() error {
	if cfg.TapeCells < 1 || cfg.TapeCells > math.MaxInt32 {
		return &ConfigError{
			Option: "tape",
			Value:  strconv.Itoa(cfg.TapeCells),
			Reason: "must be between 1 and " + strconv.Itoa(math.MaxInt32) + " cells",
		}
	}
	if cfg.Jobs < 0 {
		return &ConfigError{Option: "jobs", Value: strconv.Itoa(cfg.Jobs), Reason: "must not be negative"}
	}
	return nil
}

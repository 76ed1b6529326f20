package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// helloWorld prints "Hello World!\n" with any cell type
const helloWorld = `++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++.`

// RunResult holds the result of running a compiled program
type RunResult struct {
	Stdout   string
	ExitCode int
}

// hostConfig returns the default configuration for the machine running the
// tests, skipping the test if objects cannot be linked and run here
func hostConfig(t *testing.T) Config {
	t.Helper()
	target, err := DefaultTarget()
	if err != nil {
		t.Skipf("no native code generator: %v", err)
	}
	if !target.IsELF() {
		t.Skipf("objects are not linkable on %s", target)
	}
	if _, err := exec.LookPath("cc"); err != nil {
		t.Skip("cc not found in PATH")
	}
	return Config{
		Output:    defaultOutput,
		Opt:       OptNormal,
		Cell:      CellI64,
		TapeCells: defaultTapeCells,
		Target:    target,
		Emit:      EmitObject,
	}
}

// runProgram compiles source with cfg, links it with cc and runs it with stdin as input
func runProgram(t *testing.T, cfg Config, source, stdin string) RunResult {
	t.Helper()

	tmpDir := t.TempDir()
	srcFile := filepath.Join(tmpDir, "prog.bf")
	objFile := filepath.Join(tmpDir, "prog.o")
	exeFile := filepath.Join(tmpDir, "prog")

	if err := os.WriteFile(srcFile, []byte(source), 0o644); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}
	if err := NewCompiler(cfg, nil).CompileFile(srcFile, objFile); err != nil {
		t.Fatalf("Compilation failed: %v", err)
	}

	link := exec.Command("cc", "-o", exeFile, objFile)
	if out, err := link.CombinedOutput(); err != nil {
		t.Fatalf("Linking failed: %v\n%s", err, out)
	}

	var stdout bytes.Buffer
	cmd := exec.Command(exeFile)
	cmd.Stdin = bytes.NewBufferString(stdin)
	cmd.Stdout = &stdout
	result := RunResult{}
	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			t.Fatalf("Failed to run %s: %v", exeFile, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	result.Stdout = stdout.String()
	return result
}

// expectOutput checks if the stdout matches expected output
func (r RunResult) expectOutput(t *testing.T, expected string) {
	t.Helper()
	if r.Stdout != expected {
		t.Errorf("Output mismatch:\nExpected: %q\nGot:      %q", expected, r.Stdout)
	}
}

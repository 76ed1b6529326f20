package main

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError is an invalid option value, reported before any source is read
type ConfigError struct {
	Option string
	Value  string
	Legal  []string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" && e.Value == "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Option, e.Reason)
	}
	if e.Reason != "" {
		return fmt.Sprintf("configuration error: %s %q: %s", e.Option, e.Value, e.Reason)
	}
	return fmt.Sprintf("configuration error: no %s <%s>. Available values: [%s]",
		e.Option, e.Value, strings.Join(e.Legal, ", "))
}

// ParseError is a malformed program. Line and Col are 1-based positions in the
// unfiltered source; they are zero when the program is empty.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return "parse error: " + e.Msg
	}
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// BackendError means no code generator could be set up for the target
type BackendError struct {
	Target string
	Reason string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error (%s): %s", e.Target, e.Reason)
}

// EmitError means the generated artifact could not be written
type EmitError struct {
	Path string
	Err  error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit error: %s: %v", e.Path, e.Err)
}

func (e *EmitError) Unwrap() error {
	return e.Err
}

// WrapErrorWithSource appends a caret snippet to parse errors, pointing at the
// offending character in src. Other errors are returned unchanged.
func WrapErrorWithSource(err error, src []byte) error {
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line == 0 {
		return err
	}
	return fmt.Errorf("%w\n\n%s", err, renderSnippet(string(src), pe.Line, pe.Col))
}

func renderSnippet(src string, line, col int) string {
	lines := strings.Split(src, "\n")
	if line > len(lines) {
		line = len(lines)
	}
	var b strings.Builder
	width := len(fmt.Sprint(line + 1))
	from := line - 1
	if from < 1 {
		from = 1
	}
	to := line + 1
	if to > len(lines) {
		to = len(lines)
	}
	for n := from; n <= to; n++ {
		text := strings.TrimRight(lines[n-1], "\r")
		fmt.Fprintf(&b, "%*d | %s\n", width, n, text)
		if n == line {
			fmt.Fprintf(&b, "%*s | %s^\n", width, "", strings.Repeat(" ", col-1))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

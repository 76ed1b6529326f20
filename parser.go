package main

import "fmt"

// ParseMode selects how runs of identical commands are accumulated
type ParseMode int

const (
	// ParseVerbatim produces one node, count 1, per command character
	ParseVerbatim ParseMode = iota
	// ParseRunLength coalesces consecutive identical + - < > into one counted node
	ParseRunLength
)

func (m ParseMode) String() string {
	if m == ParseRunLength {
		return "run-length"
	}
	return "verbatim"
}

// ParseModeFor returns the parse mode an optimization level calls for
func ParseModeFor(opt OptimizationLevel) ParseMode {
	if opt.RunLength() {
		return ParseRunLength
	}
	return ParseVerbatim
}

// Parser turns a filtered source into a raw command tree.
//
//	program := command+
//	command := '+' | '-' | '<' | '>' | '.' | ',' | '[' program ']'
//
// The whole input must be consumed; there is no partial result.
type Parser struct {
	src  Source
	pos  int
	mode ParseMode
}

func NewParser(src Source, mode ParseMode) *Parser {
	return &Parser{src: src, mode: mode}
}

// Parse is a shorthand for NewParser(src, mode).Parse()
func Parse(src Source, mode ParseMode) ([]Command, error) {
	return NewParser(src, mode).Parse()
}

func (p *Parser) Parse() ([]Command, error) {
	if len(p.src.Code) == 0 {
		return nil, &ParseError{Msg: "empty program: no command characters found"}
	}
	program, err := p.program()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.src.Code) {
		// program() only stops early on a closing bracket
		return nil, p.errorAt(p.pos, "unmatched ']': could not parse the whole file")
	}
	return program, nil
}

func (p *Parser) errorAt(i int, format string, args ...interface{}) *ParseError {
	pos := p.src.at(i)
	return &ParseError{Line: pos.Line, Col: pos.Col, Msg: fmt.Sprintf(format, args...)}
}

// program parses commands until the input ends or a ']' is reached
func (p *Parser) program() ([]Command, error) {
	var commands []Command
	code := p.src.Code
	for p.pos < len(code) {
		c := code[p.pos]
		switch c {
		case ']':
			return commands, nil
		case '[':
			loop, err := p.loop()
			if err != nil {
				return nil, err
			}
			commands = append(commands, loop)
		case '.':
			p.pos++
			commands = append(commands, PrintCmd{})
		case ',':
			p.pos++
			commands = append(commands, ReadCmd{})
		default:
			commands = append(commands, p.run(c))
		}
	}
	return commands, nil
}

func (p *Parser) loop() (Command, error) {
	open := p.pos
	p.pos++
	body, err := p.program()
	if err != nil {
		return nil, err
	}
	if p.pos >= len(p.src.Code) {
		return nil, p.errorAt(open, "unmatched '[': loop is never closed")
	}
	if len(body) == 0 {
		return nil, p.errorAt(open, "empty loop: '[' must contain at least one command")
	}
	p.pos++ // ']'
	return LoopCmd{Body: body}, nil
}

// run consumes one + - < > character, or the whole run of it in run-length mode
func (p *Parser) run(c byte) Command {
	n := 1
	p.pos++
	if p.mode == ParseRunLength {
		for p.pos < len(p.src.Code) && p.src.Code[p.pos] == c {
			n++
			p.pos++
		}
	}
	switch c {
	case '+':
		return AddCmd{Count: n}
	case '-':
		return SubCmd{Count: n}
	case '<':
		return LeftCmd{Count: n}
	default:
		return RightCmd{Count: n}
	}
}

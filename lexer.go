package main

import (
	"strings"
	"unicode/utf8"
)

// The eight command characters. Everything else in a source file is a comment.
const commandChars = "+-<>[].,"

func isCommand(c byte) bool {
	return strings.IndexByte(commandChars, c) >= 0
}

// Position is a 1-based line and column in the unfiltered source
type Position struct {
	Line int
	Col  int
}

// Source is a filtered program: only command characters, each one paired with
// where it was found in the source text.
type Source struct {
	Code []byte
	Pos  []Position
}

// Filter strips every character that is not one of the eight commands
func Filter(src []byte) Source {
	var s Source
	line, col := 1, 1
	for i := 0; i < len(src); {
		c := src[i]
		if isCommand(c) {
			s.Code = append(s.Code, c)
			s.Pos = append(s.Pos, Position{Line: line, Col: col})
		}
		// columns count runes, so a multi-byte comment character is one column
		_, size := utf8.DecodeRune(src[i:])
		i += size
		if c == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return s
}

func (s Source) String() string {
	return string(s.Code)
}

// at returns the source position of the i'th command character
func (s Source) at(i int) Position {
	if i >= 0 && i < len(s.Pos) {
		return s.Pos[i]
	}
	return Position{}
}

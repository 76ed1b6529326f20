package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// fixupKind selects how a label reference is patched once the label is known
type fixupKind int

const (
	fixupRel32    fixupKind = iota // x86-64 rel32, relative to the end of the field
	fixupBranch26                  // AArch64 B imm26, relative to the instruction
)

type fixup struct {
	pos   int
	label string
	kind  fixupKind
}

// Relocation is a reference from .text to an external symbol, resolved by the linker
type Relocation struct {
	Offset uint64
	Symbol string
	Type   uint32
	Addend int64
}

// Out collects machine code for one function, together with its local labels,
// pending label references and external relocations.
type Out struct {
	buf     bytes.Buffer
	labels  map[string]int
	fixups  []fixup
	relocs  []Relocation
	pending string
	jump    func(label string)
	err     error
}

func newOut(jump func(label string)) *Out {
	return &Out{
		labels: make(map[string]int),
		jump:   jump,
	}
}

// flushJump materializes a deferred unconditional jump before anything else is written
func (o *Out) flushJump() {
	if o.pending == "" {
		return
	}
	label := o.pending
	o.pending = ""
	o.jump(label)
}

// DeferJump records an unconditional jump. It is only written out if the next
// thing emitted is not the target label itself.
func (o *Out) DeferJump(label string) {
	o.flushJump()
	o.pending = label
}

func (o *Out) Write(b byte) int {
	o.flushJump()
	o.buf.WriteByte(b)
	return 1
}

func (o *Out) WriteN(b byte, n int) int {
	for i := 0; i < n; i++ {
		o.Write(b)
	}
	return n
}

func (o *Out) WriteBytes(bs []byte) int {
	o.flushJump()
	o.buf.Write(bs)
	return len(bs)
}

func (o *Out) WriteUnsigned(i uint32) int {
	o.flushJump()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], i)
	o.buf.Write(b[:])
	return 4
}

func (o *Out) Write8u(v uint64) int {
	o.flushJump()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	o.buf.Write(b[:])
	return 8
}

// Len is the current offset in the text section
func (o *Out) Len() int {
	return o.buf.Len()
}

// Mark writes out any deferred jump and returns the offset the next
// instruction will be placed at
func (o *Out) Mark() int {
	o.flushJump()
	return o.buf.Len()
}

// MarkLabel binds name to the current position. A deferred jump to exactly
// this label is dropped, since control falls through to it anyway.
func (o *Out) MarkLabel(name string) {
	if o.pending == name {
		o.pending = ""
	}
	o.flushJump()
	if _, ok := o.labels[name]; ok {
		o.fail(fmt.Errorf("label %s defined twice", name))
		return
	}
	o.labels[name] = o.buf.Len()
}

// Ref records that the field at pos must be patched to reach label
func (o *Out) Ref(pos int, label string, kind fixupKind) {
	o.fixups = append(o.fixups, fixup{pos: pos, label: label, kind: kind})
}

// Reloc records a call to an external symbol at pos
func (o *Out) Reloc(pos int, symbol string, typ uint32, addend int64) {
	o.relocs = append(o.relocs, Relocation{
		Offset: uint64(pos),
		Symbol: symbol,
		Type:   typ,
		Addend: addend,
	})
}

func (o *Out) fail(err error) {
	if o.err == nil {
		o.err = err
	}
}

// Resolve patches every label reference and returns the finished code
func (o *Out) Resolve() ([]byte, []Relocation, error) {
	o.flushJump()
	if o.err != nil {
		return nil, nil, o.err
	}
	code := o.buf.Bytes()
	for _, f := range o.fixups {
		target, ok := o.labels[f.label]
		if !ok {
			return nil, nil, fmt.Errorf("undefined label %s", f.label)
		}
		switch f.kind {
		case fixupRel32:
			rel := int64(target) - int64(f.pos+4)
			if rel < -0x80000000 || rel > 0x7FFFFFFF {
				return nil, nil, fmt.Errorf("jump to %s out of rel32 range: %d", f.label, rel)
			}
			binary.LittleEndian.PutUint32(code[f.pos:], uint32(int32(rel)))
		case fixupBranch26:
			rel := (int64(target) - int64(f.pos)) >> 2
			if rel < -0x2000000 || rel >= 0x2000000 {
				return nil, nil, fmt.Errorf("branch to %s out of imm26 range: %d", f.label, rel)
			}
			instr := binary.LittleEndian.Uint32(code[f.pos:])
			instr = (instr &^ 0x03FFFFFF) | (uint32(rel) & 0x03FFFFFF)
			binary.LittleEndian.PutUint32(code[f.pos:], instr)
		}
	}
	return code, o.relocs, nil
}

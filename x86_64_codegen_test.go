package main

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// x86Bytes runs f on a fresh x86-64 generator and returns the resolved code
func x86Bytes(t *testing.T, cell CellSize, f func(x *X86_64CodeGen)) ([]byte, []Relocation) {
	t.Helper()
	x := NewX86_64CodeGen(cell, 30000, "test.bf")
	f(x)
	code, relocs, err := x.out.Resolve()
	require.NoError(t, err)
	return code, relocs
}

func TestX86Add(t *testing.T) {
	tests := []struct {
		name  string
		cell  CellSize
		delta int64
		want  []byte
	}{
		{"u8", CellU8, 3, []byte{0x80, 0x03, 0x03}},
		{"i8 negative", CellI8, -1, []byte{0x80, 0x03, 0xFF}},
		{"u8 wraps to nothing", CellU8, 256, []byte{}},
		{"u8 wraps", CellU8, 257, []byte{0x80, 0x03, 0x01}},
		{"i16", CellI16, -2, []byte{0x66, 0x81, 0x03, 0xFE, 0xFF}},
		{"u32", CellU32, 5, []byte{0x81, 0x03, 0x05, 0x00, 0x00, 0x00}},
		{"i64", CellI64, 5, []byte{0x48, 0x81, 0x03, 0x05, 0x00, 0x00, 0x00}},
		{"i64 large", CellI64, 1 << 40, []byte{
			0x48, 0xB8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00,
			0x48, 0x01, 0x03,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := x86Bytes(t, tt.cell, func(x *X86_64CodeGen) { x.Add(tt.delta) })
			assert.Equal(t, tt.want, append([]byte{}, code...))
		})
	}
}

func TestX86Move(t *testing.T) {
	code, _ := x86Bytes(t, CellI64, func(x *X86_64CodeGen) { x.Move(2) })
	assert.Equal(t, []byte{0x48, 0x81, 0xC3, 0x10, 0x00, 0x00, 0x00}, code, "scaled by 8 bytes")

	code, _ = x86Bytes(t, CellU8, func(x *X86_64CodeGen) { x.Move(-1) })
	assert.Equal(t, []byte{0x48, 0x81, 0xC3, 0xFF, 0xFF, 0xFF, 0xFF}, code)

	code, _ = x86Bytes(t, CellU16, func(x *X86_64CodeGen) { x.Move(1 << 31) })
	assert.Equal(t, []byte{
		0x48, 0xB8, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
		0x48, 0x01, 0xC3,
	}, code)
}

func TestX86SetZero(t *testing.T) {
	tests := map[CellSize][]byte{
		CellI8:  {0xC6, 0x03, 0x00},
		CellU16: {0x66, 0xC7, 0x03, 0x00, 0x00},
		CellI32: {0xC7, 0x03, 0x00, 0x00, 0x00, 0x00},
		CellU64: {0x48, 0xC7, 0x03, 0x00, 0x00, 0x00, 0x00},
	}
	for cell, want := range tests {
		code, _ := x86Bytes(t, cell, func(x *X86_64CodeGen) { x.SetZero() })
		assert.Equal(t, want, code, cell.String())
	}
}

func TestX86MoveValue(t *testing.T) {
	code, _ := x86Bytes(t, CellU8, func(x *X86_64CodeGen) { x.MoveValue(1, 1) })
	assert.Equal(t, []byte{
		0x0F, 0xB6, 0x03, // movzx eax, byte [rbx]
		0x00, 0x83, 0x01, 0x00, 0x00, 0x00, // add [rbx+1], al
		0xC6, 0x03, 0x00, // mov byte [rbx], 0
	}, code)

	code, _ = x86Bytes(t, CellI64, func(x *X86_64CodeGen) { x.MoveValue(-2, 3) })
	assert.Equal(t, []byte{
		0x48, 0x8B, 0x03, // mov rax, [rbx]
		0x48, 0x69, 0xC0, 0x03, 0x00, 0x00, 0x00, // imul rax, rax, 3
		0x48, 0x01, 0x83, 0xF0, 0xFF, 0xFF, 0xFF, // add [rbx-16], rax
		0x48, 0xC7, 0x03, 0x00, 0x00, 0x00, 0x00, // mov qword [rbx], 0
	}, code)

	code, _ = x86Bytes(t, CellU8, func(x *X86_64CodeGen) { x.MoveValue(1, 256) })
	assert.Equal(t, []byte{0xC6, 0x03, 0x00}, code, "a multiplier of zero only clears")
}

func TestX86ReadPrint(t *testing.T) {
	code, relocs := x86Bytes(t, CellI8, func(x *X86_64CodeGen) { x.Read() })
	assert.Equal(t, []byte{0xE8, 0, 0, 0, 0, 0x88, 0x03}, code)
	require.Len(t, relocs, 1)
	assert.Equal(t, Relocation{Offset: 1, Symbol: "getchar", Type: uint32(elf.R_X86_64_PLT32), Addend: -4}, relocs[0])

	code, _ = x86Bytes(t, CellU64, func(x *X86_64CodeGen) { x.Read() })
	assert.Equal(t, []byte{0xE8, 0, 0, 0, 0, 0x48, 0x98, 0x48, 0x89, 0x03}, code)

	code, relocs = x86Bytes(t, CellI8, func(x *X86_64CodeGen) { x.Print() })
	assert.Equal(t, []byte{0x0F, 0xBE, 0x3B, 0xE8, 0, 0, 0, 0}, code)
	assert.Equal(t, "putchar", relocs[0].Symbol)
	assert.Equal(t, uint64(4), relocs[0].Offset)

	code, _ = x86Bytes(t, CellU8, func(x *X86_64CodeGen) { x.Print() })
	assert.Equal(t, []byte{0x0F, 0xB6, 0x3B}, code[:3])
}

// A loop lowers to cmp/je, the body, and a jmp back. The jump into the
// loop head is dropped since the head follows it directly.
func TestX86Loop(t *testing.T) {
	code, _ := x86Bytes(t, CellU8, func(x *X86_64CodeGen) {
		x.Jump("start")
		x.Label("start")
		x.BranchNonZero("body", "end")
		x.Label("body")
		x.Add(-1)
		x.Jump("start")
		x.Label("end")
	})
	assert.Equal(t, []byte{
		0x80, 0x3B, 0x00, // cmp byte [rbx], 0
		0x0F, 0x84, 0x08, 0x00, 0x00, 0x00, // je end
		0x80, 0x03, 0xFF, // add byte [rbx], -1
		0xE9, 0xEF, 0xFF, 0xFF, 0xFF, // jmp start
	}, code)
}

func TestX86DuplicateLabel(t *testing.T) {
	x := NewX86_64CodeGen(CellU8, 1, "dup.bf")
	x.Label("a")
	x.Label("a")
	_, _, err := x.out.Resolve()
	assert.Error(t, err)
}

func TestX86UndefinedLabel(t *testing.T) {
	x := NewX86_64CodeGen(CellU8, 1, "undef.bf")
	x.BranchNonZero("body", "nowhere")
	_, err := x.Finish()
	assert.ErrorContains(t, err, "nowhere")
}

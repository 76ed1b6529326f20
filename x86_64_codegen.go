package main

import (
	"debug/elf"
	"encoding/binary"
	"math"
)

// X86_64CodeGen emits x86-64 machine code for the System V ABI.
//
//	rbx  tape pointer
//	r12  tape base, kept for free()
//	rax, rcx  scratch
type X86_64CodeGen struct {
	out    *Out
	cell   CellSize
	tape   int
	source string
}

func NewX86_64CodeGen(cell CellSize, tapeCells int, sourceName string) *X86_64CodeGen {
	x := &X86_64CodeGen{cell: cell, tape: tapeCells, source: sourceName}
	x.out = newOut(x.jmp)
	return x
}

func (x *X86_64CodeGen) emit(bs ...byte) {
	x.out.WriteBytes(bs)
}

func (x *X86_64CodeGen) imm32(v int32) {
	x.out.WriteUnsigned(uint32(v))
}

func fitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

// callSymbol emits call rel32 with a PLT relocation for symbol
func (x *X86_64CodeGen) callSymbol(symbol string) {
	x.emit(0xE8)
	pos := x.out.Mark()
	x.imm32(0)
	x.out.Reloc(pos, symbol, uint32(elf.R_X86_64_PLT32), -4)
}

func (x *X86_64CodeGen) jmp(label string) {
	x.emit(0xE9)
	pos := x.out.Mark()
	x.imm32(0)
	x.out.Ref(pos, label, fixupRel32)
}

// movabs emits mov r64, imm64 for rax (0) or rcx (1)
func (x *X86_64CodeGen) movabs(reg byte, v int64) {
	x.emit(0x48, 0xB8+reg)
	x.out.Write8u(uint64(v))
}

func (x *X86_64CodeGen) Prologue() {
	x.emit(0x53)                   // push rbx
	x.emit(0x41, 0x54)             // push r12
	x.emit(0x48, 0x83, 0xEC, 0x08) // sub rsp, 8
	x.emit(0xBF)                   // mov edi, cells
	x.imm32(int32(x.tape))
	x.emit(0xBE) // mov esi, width
	x.imm32(int32(x.cell.Bytes()))
	x.callSymbol("calloc")
	x.emit(0x48, 0x89, 0xC3) // mov rbx, rax
	x.emit(0x49, 0x89, 0xC4) // mov r12, rax
}

func (x *X86_64CodeGen) Epilogue() {
	x.emit(0x4C, 0x89, 0xE7) // mov rdi, r12
	x.callSymbol("free")
	x.emit(0x31, 0xC0)             // xor eax, eax
	x.emit(0x48, 0x83, 0xC4, 0x08) // add rsp, 8
	x.emit(0x41, 0x5C)             // pop r12
	x.emit(0x5B)                   // pop rbx
	x.emit(0xC3)                   // ret
}

// Add adds delta to [rbx], truncated to the cell width
func (x *X86_64CodeGen) Add(delta int64) {
	d := x.cell.Wrap(delta)
	if d == 0 {
		return
	}
	switch x.cell.Bytes() {
	case 1:
		x.emit(0x80, 0x03, byte(d)) // add byte [rbx], imm8
	case 2:
		x.emit(0x66, 0x81, 0x03) // add word [rbx], imm16
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(d))
		x.emit(b[:]...)
	case 4:
		x.emit(0x81, 0x03) // add dword [rbx], imm32
		x.imm32(int32(d))
	default:
		if fitsInt32(d) {
			x.emit(0x48, 0x81, 0x03) // add qword [rbx], imm32
			x.imm32(int32(d))
			return
		}
		x.movabs(0, d)
		x.emit(0x48, 0x01, 0x03) // add [rbx], rax
	}
}

// Move adds delta cells to rbx
func (x *X86_64CodeGen) Move(delta int64) {
	bytes := delta * int64(x.cell.Bytes())
	if bytes == 0 {
		return
	}
	if fitsInt32(bytes) {
		x.emit(0x48, 0x81, 0xC3) // add rbx, imm32
		x.imm32(int32(bytes))
		return
	}
	x.movabs(0, bytes)
	x.emit(0x48, 0x01, 0xC3) // add rbx, rax
}

func (x *X86_64CodeGen) SetZero() {
	switch x.cell.Bytes() {
	case 1:
		x.emit(0xC6, 0x03, 0x00) // mov byte [rbx], 0
	case 2:
		x.emit(0x66, 0xC7, 0x03, 0x00, 0x00) // mov word [rbx], 0
	case 4:
		x.emit(0xC7, 0x03) // mov dword [rbx], 0
		x.imm32(0)
	default:
		x.emit(0x48, 0xC7, 0x03) // mov qword [rbx], 0
		x.imm32(0)
	}
}

// MoveValue adds [rbx]*multiplier to [rbx+offset] and clears [rbx]
func (x *X86_64CodeGen) MoveValue(offset, multiplier int64) {
	m := x.cell.Wrap(multiplier)
	if m != 0 {
		// rax = [rbx], zero extended
		switch x.cell.Bytes() {
		case 1:
			x.emit(0x0F, 0xB6, 0x03) // movzx eax, byte [rbx]
		case 2:
			x.emit(0x0F, 0xB7, 0x03) // movzx eax, word [rbx]
		case 4:
			x.emit(0x8B, 0x03) // mov eax, [rbx]
		default:
			x.emit(0x48, 0x8B, 0x03) // mov rax, [rbx]
		}

		switch {
		case m == 1:
		case fitsInt32(m):
			x.emit(0x48, 0x69, 0xC0) // imul rax, rax, imm32
			x.imm32(int32(m))
		default:
			x.movabs(1, m)
			x.emit(0x48, 0x0F, 0xAF, 0xC1) // imul rax, rcx
		}

		disp := offset * int64(x.cell.Bytes())
		if fitsInt32(disp) {
			// add [rbx+disp32], al/ax/eax/rax
			x.emit(x.sizePrefix(0x01)...)
			x.emit(0x83)
			x.imm32(int32(disp))
		} else {
			// add [rbx+rcx], al/ax/eax/rax
			x.movabs(1, disp)
			x.emit(x.sizePrefix(0x01)...)
			x.emit(0x04, 0x0B)
		}
	}
	x.SetZero()
}

// sizePrefix returns the prefix and opcode of an r/m, reg instruction for
// the cell width. op is the 16/32/64-bit opcode; the 8-bit form is op-1.
func (x *X86_64CodeGen) sizePrefix(op byte) []byte {
	switch x.cell.Bytes() {
	case 1:
		return []byte{op - 1}
	case 2:
		return []byte{0x66, op}
	case 4:
		return []byte{op}
	default:
		return []byte{0x48, op}
	}
}

// Read stores getchar() in [rbx]. EOF (-1) is stored truncated to the cell width.
func (x *X86_64CodeGen) Read() {
	x.callSymbol("getchar")
	if x.cell.Bytes() == 8 {
		x.emit(0x48, 0x98) // cdqe
	}
	// mov [rbx], al/ax/eax/rax
	x.emit(x.sizePrefix(0x89)...)
	x.emit(0x03)
}

// Print passes [rbx] to putchar, extended to int by the cell's signedness
func (x *X86_64CodeGen) Print() {
	signed := x.cell.Signed()
	switch x.cell.Bytes() {
	case 1:
		if signed {
			x.emit(0x0F, 0xBE, 0x3B) // movsx edi, byte [rbx]
		} else {
			x.emit(0x0F, 0xB6, 0x3B) // movzx edi, byte [rbx]
		}
	case 2:
		if signed {
			x.emit(0x0F, 0xBF, 0x3B) // movsx edi, word [rbx]
		} else {
			x.emit(0x0F, 0xB7, 0x3B) // movzx edi, word [rbx]
		}
	default:
		x.emit(0x8B, 0x3B) // mov edi, [rbx]
	}
	x.callSymbol("putchar")
}

func (x *X86_64CodeGen) Label(name string) {
	x.out.MarkLabel(name)
}

func (x *X86_64CodeGen) Jump(name string) {
	x.out.DeferJump(name)
}

// BranchNonZero falls through to body when [rbx] != 0
func (x *X86_64CodeGen) BranchNonZero(body, end string) {
	switch x.cell.Bytes() {
	case 1:
		x.emit(0x80, 0x3B, 0x00) // cmp byte [rbx], 0
	case 2:
		x.emit(0x66, 0x83, 0x3B, 0x00) // cmp word [rbx], 0
	case 4:
		x.emit(0x83, 0x3B, 0x00) // cmp dword [rbx], 0
	default:
		x.emit(0x48, 0x83, 0x3B, 0x00) // cmp qword [rbx], 0
	}
	x.emit(0x0F, 0x84) // je end
	pos := x.out.Mark()
	x.imm32(0)
	x.out.Ref(pos, end, fixupRel32)
}

func (x *X86_64CodeGen) Finish() ([]byte, error) {
	text, relocs, err := x.out.Resolve()
	if err != nil {
		return nil, err
	}
	return WriteObject(elf.EM_X86_64, text, relocs, "main", x.source)
}

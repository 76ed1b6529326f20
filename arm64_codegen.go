package main

import (
	"debug/elf"
)

// ARM64 registers used by the generated main
const (
	a64X0  = 0
	a64X1  = 1
	a64X9  = 9 // scratch: current cell
	a64X10 = 10
	a64X11 = 11
	a64X12 = 12
	a64X19 = 19 // tape pointer
	a64X20 = 20 // tape base
	a64ZR  = 31
)

// ARM64CodeGen emits AArch64 machine code for the AAPCS64 ABI
type ARM64CodeGen struct {
	out    *Out
	cell   CellSize
	tape   int
	source string
}

func NewARM64CodeGen(cell CellSize, tapeCells int, sourceName string) *ARM64CodeGen {
	a := &ARM64CodeGen{cell: cell, tape: tapeCells, source: sourceName}
	a.out = newOut(a.b)
	return a
}

func (a *ARM64CodeGen) encodeInstr(instr uint32) {
	a.out.WriteUnsigned(instr)
}

// bl emits a call to symbol, resolved by the linker
func (a *ARM64CodeGen) bl(symbol string) {
	pos := a.out.Mark()
	a.encodeInstr(0x94000000)
	a.out.Reloc(pos, symbol, uint32(elf.R_AARCH64_CALL26), 0)
}

func (a *ARM64CodeGen) b(label string) {
	pos := a.out.Mark()
	a.encodeInstr(0x14000000)
	a.out.Ref(pos, label, fixupBranch26)
}

// movImm loads a 64-bit constant with MOVZ and as many MOVK as needed
func (a *ARM64CodeGen) movImm(rd uint32, v uint64) {
	a.encodeInstr(0xD2800000 | uint32(v&0xFFFF)<<5 | rd) // movz rd, #imm16
	for hw := uint32(1); hw < 4; hw++ {
		chunk := uint32(v>>(16*hw)) & 0xFFFF
		if chunk != 0 {
			a.encodeInstr(0xF2800000 | hw<<21 | chunk<<5 | rd) // movk rd, #imm16, lsl #16*hw
		}
	}
}

// addImm emits rd = rn + imm, using a scratch register when imm does not fit in 12 bits
func (a *ARM64CodeGen) addImm(rd, rn uint32, imm int64) {
	switch {
	case imm >= 0 && imm < 4096:
		a.encodeInstr(0x91000000 | uint32(imm)<<10 | rn<<5 | rd) // add rd, rn, #imm
	case imm < 0 && imm > -4096:
		a.encodeInstr(0xD1000000 | uint32(-imm)<<10 | rn<<5 | rd) // sub rd, rn, #imm
	default:
		a.movImm(a64X10, uint64(imm))
		a.addReg(rd, rn, a64X10)
	}
}

func (a *ARM64CodeGen) addReg(rd, rn, rm uint32) {
	a.encodeInstr(0x8B000000 | rm<<16 | rn<<5 | rd) // add rd, rn, rm
}

// load zero-extends the cell at [rn] into rt
func (a *ARM64CodeGen) load(rt, rn uint32) {
	var op uint32
	switch a.cell.Bytes() {
	case 1:
		op = 0x39400000 // ldrb
	case 2:
		op = 0x79400000 // ldrh
	case 4:
		op = 0xB9400000 // ldr w
	default:
		op = 0xF9400000 // ldr x
	}
	a.encodeInstr(op | rn<<5 | rt)
}

// store writes the low cell-width bits of rt to [rn]
func (a *ARM64CodeGen) store(rt, rn uint32) {
	var op uint32
	switch a.cell.Bytes() {
	case 1:
		op = 0x39000000 // strb
	case 2:
		op = 0x79000000 // strh
	case 4:
		op = 0xB9000000 // str w
	default:
		op = 0xF9000000 // str x
	}
	a.encodeInstr(op | rn<<5 | rt)
}

func (a *ARM64CodeGen) Prologue() {
	a.encodeInstr(0xA9BE7BFD) // stp x29, x30, [sp, #-32]!
	a.encodeInstr(0xA90153F3) // stp x19, x20, [sp, #16]
	a.encodeInstr(0x910003FD) // mov x29, sp
	a.movImm(a64X0, uint64(a.tape))
	a.movImm(a64X1, uint64(a.cell.Bytes()))
	a.bl("calloc")
	a.encodeInstr(0xAA0003F3) // mov x19, x0
	a.encodeInstr(0xAA0003F4) // mov x20, x0
}

func (a *ARM64CodeGen) Epilogue() {
	a.encodeInstr(0xAA1403E0) // mov x0, x20
	a.bl("free")
	a.encodeInstr(0x52800000) // mov w0, #0
	a.encodeInstr(0xA94153F3) // ldp x19, x20, [sp, #16]
	a.encodeInstr(0xA8C27BFD) // ldp x29, x30, [sp], #32
	a.encodeInstr(0xD65F03C0) // ret
}

func (a *ARM64CodeGen) Add(delta int64) {
	d := a.cell.Wrap(delta)
	if d == 0 {
		return
	}
	a.load(a64X9, a64X19)
	a.addImm(a64X9, a64X9, d)
	a.store(a64X9, a64X19)
}

func (a *ARM64CodeGen) Move(delta int64) {
	bytes := delta * int64(a.cell.Bytes())
	if bytes == 0 {
		return
	}
	a.addImm(a64X19, a64X19, bytes)
}

func (a *ARM64CodeGen) SetZero() {
	a.store(a64ZR, a64X19)
}

// MoveValue adds [x19]*multiplier to [x19+offset] and clears [x19]
func (a *ARM64CodeGen) MoveValue(offset, multiplier int64) {
	m := a.cell.Wrap(multiplier)
	if m != 0 {
		a.load(a64X9, a64X19)
		if m != 1 {
			a.movImm(a64X10, uint64(m))
			a.encodeInstr(0x9B0A7D29) // mul x9, x9, x10
		}
		a.addImm(a64X11, a64X19, offset*int64(a.cell.Bytes()))
		a.load(a64X12, a64X11)
		a.addReg(a64X12, a64X12, a64X9)
		a.store(a64X12, a64X11)
	}
	a.SetZero()
}

// Read stores getchar() in [x19]. EOF (-1) is stored truncated to the cell width.
func (a *ARM64CodeGen) Read() {
	a.bl("getchar")
	if a.cell.Bytes() == 8 {
		a.encodeInstr(0x93407C00) // sxtw x0, w0
	}
	a.store(a64X0, a64X19)
}

// Print passes [x19] to putchar, extended to int by the cell's signedness
func (a *ARM64CodeGen) Print() {
	switch {
	case a.cell.Bytes() == 1 && a.cell.Signed():
		a.encodeInstr(0x39C00000 | a64X19<<5 | a64X0) // ldrsb w0, [x19]
	case a.cell.Bytes() == 2 && a.cell.Signed():
		a.encodeInstr(0x79C00000 | a64X19<<5 | a64X0) // ldrsh w0, [x19]
	case a.cell.Bytes() == 8:
		a.encodeInstr(0xB9400000 | a64X19<<5 | a64X0) // ldr w0, [x19]
	default:
		a.load(a64X0, a64X19)
	}
	a.bl("putchar")
}

func (a *ARM64CodeGen) Label(name string) {
	a.out.MarkLabel(name)
}

func (a *ARM64CodeGen) Jump(name string) {
	a.out.DeferJump(name)
}

// BranchNonZero skips over the branch to end when [x19] != 0
func (a *ARM64CodeGen) BranchNonZero(body, end string) {
	a.load(a64X9, a64X19)
	a.encodeInstr(0xB5000049) // cbnz x9, #8
	a.b(end)
}

func (a *ARM64CodeGen) Finish() ([]byte, error) {
	text, relocs, err := a.out.Resolve()
	if err != nil {
		return nil, err
	}
	return WriteObject(elf.EM_AARCH64, text, relocs, "main", a.source)
}

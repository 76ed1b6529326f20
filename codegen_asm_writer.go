package main

import (
	"fmt"
	"strconv"
	"strings"
)

// AsmWriter emits GNU assembler source (Intel syntax) for x86-64. The
// instructions are the ones X86_64CodeGen encodes, so `cc file.s` yields an
// equivalent program.
type AsmWriter struct {
	sb      strings.Builder
	cell    CellSize
	tape    int
	source  string
	pending string
	labels  map[string]bool
	err     error
}

func NewAsmWriter(cell CellSize, tapeCells int, sourceName string) *AsmWriter {
	return &AsmWriter{cell: cell, tape: tapeCells, source: sourceName, labels: make(map[string]bool)}
}

func (w *AsmWriter) flushJump() {
	if w.pending == "" {
		return
	}
	label := w.pending
	w.pending = ""
	w.ins("jmp .L%s", label)
}

func (w *AsmWriter) ins(format string, args ...interface{}) {
	w.flushJump()
	w.sb.WriteString("\t")
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteString("\n")
}

// ptr is the operand size keyword for one cell
func (w *AsmWriter) ptr() string {
	switch w.cell.Bytes() {
	case 1:
		return "BYTE PTR"
	case 2:
		return "WORD PTR"
	case 4:
		return "DWORD PTR"
	default:
		return "QWORD PTR"
	}
}

// acc is the part of rax that holds one cell
func (w *AsmWriter) acc() string {
	switch w.cell.Bytes() {
	case 1:
		return "al"
	case 2:
		return "ax"
	case 4:
		return "eax"
	default:
		return "rax"
	}
}

func memOperand(disp int64) string {
	switch {
	case disp == 0:
		return "[rbx]"
	case disp < 0:
		return "[rbx-" + strconv.FormatUint(uint64(-disp), 10) + "]"
	default:
		return "[rbx+" + strconv.FormatInt(disp, 10) + "]"
	}
}

func (w *AsmWriter) Prologue() {
	fmt.Fprintf(&w.sb, "\t.file\t%q\n", w.source)
	w.sb.WriteString("\t.intel_syntax noprefix\n")
	w.sb.WriteString("\t.text\n")
	w.sb.WriteString("\t.globl\tmain\n")
	w.sb.WriteString("\t.type\tmain, @function\n")
	w.sb.WriteString("main:\n")
	w.ins("push rbx")
	w.ins("push r12")
	w.ins("sub rsp, 8")
	w.ins("mov edi, %d", w.tape)
	w.ins("mov esi, %d", w.cell.Bytes())
	w.ins("call calloc@PLT")
	w.ins("mov rbx, rax")
	w.ins("mov r12, rax")
}

func (w *AsmWriter) Epilogue() {
	w.ins("mov rdi, r12")
	w.ins("call free@PLT")
	w.ins("xor eax, eax")
	w.ins("add rsp, 8")
	w.ins("pop r12")
	w.ins("pop rbx")
	w.ins("ret")
	w.sb.WriteString("\t.size\tmain, .-main\n")
	w.sb.WriteString("\t.section\t.note.GNU-stack,\"\",@progbits\n")
}

func (w *AsmWriter) Add(delta int64) {
	d := w.cell.Wrap(delta)
	if d == 0 {
		return
	}
	if fitsInt32(d) {
		w.ins("add %s [rbx], %d", w.ptr(), d)
		return
	}
	w.ins("movabs rax, %d", d)
	w.ins("add QWORD PTR [rbx], rax")
}

func (w *AsmWriter) Move(delta int64) {
	bytes := delta * int64(w.cell.Bytes())
	if bytes == 0 {
		return
	}
	if fitsInt32(bytes) {
		w.ins("add rbx, %d", bytes)
		return
	}
	w.ins("movabs rax, %d", bytes)
	w.ins("add rbx, rax")
}

func (w *AsmWriter) SetZero() {
	w.ins("mov %s [rbx], 0", w.ptr())
}

func (w *AsmWriter) MoveValue(offset, multiplier int64) {
	m := w.cell.Wrap(multiplier)
	if m != 0 {
		switch w.cell.Bytes() {
		case 1, 2:
			w.ins("movzx eax, %s [rbx]", w.ptr())
		case 4:
			w.ins("mov eax, DWORD PTR [rbx]")
		default:
			w.ins("mov rax, QWORD PTR [rbx]")
		}
		switch {
		case m == 1:
		case fitsInt32(m):
			w.ins("imul rax, rax, %d", m)
		default:
			w.ins("movabs rcx, %d", m)
			w.ins("imul rax, rcx")
		}
		disp := offset * int64(w.cell.Bytes())
		if fitsInt32(disp) {
			w.ins("add %s %s, %s", w.ptr(), memOperand(disp), w.acc())
		} else {
			w.ins("movabs rcx, %d", disp)
			w.ins("add %s [rbx+rcx], %s", w.ptr(), w.acc())
		}
	}
	w.SetZero()
}

func (w *AsmWriter) Read() {
	w.ins("call getchar@PLT")
	if w.cell.Bytes() == 8 {
		w.ins("cdqe")
	}
	w.ins("mov %s [rbx], %s", w.ptr(), w.acc())
}

func (w *AsmWriter) Print() {
	switch w.cell.Bytes() {
	case 1, 2:
		if w.cell.Signed() {
			w.ins("movsx edi, %s [rbx]", w.ptr())
		} else {
			w.ins("movzx edi, %s [rbx]", w.ptr())
		}
	default:
		w.ins("mov edi, DWORD PTR [rbx]")
	}
	w.ins("call putchar@PLT")
}

func (w *AsmWriter) Label(name string) {
	if w.pending == name {
		w.pending = ""
	}
	w.flushJump()
	if w.labels[name] {
		if w.err == nil {
			w.err = fmt.Errorf("label %s defined twice", name)
		}
		return
	}
	w.labels[name] = true
	w.sb.WriteString(".L" + name + ":\n")
}

func (w *AsmWriter) Jump(name string) {
	w.flushJump()
	w.pending = name
}

func (w *AsmWriter) BranchNonZero(body, end string) {
	w.ins("cmp %s [rbx], 0", w.ptr())
	w.ins("je .L%s", end)
}

func (w *AsmWriter) Finish() ([]byte, error) {
	w.flushJump()
	if w.err != nil {
		return nil, w.err
	}
	return []byte(w.sb.String()), nil
}

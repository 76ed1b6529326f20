package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// Section indices of the relocatable object, in file order
const (
	shNull = iota
	shText
	shRelaText
	shSymtab
	shStrtab
	shShstrtab
	shNoteStack
	shCount
)

// stringTable builds a NUL separated ELF string table
type stringTable struct {
	buf     bytes.Buffer
	offsets map[string]uint32
}

func newStringTable() *stringTable {
	st := &stringTable{offsets: make(map[string]uint32)}
	st.buf.WriteByte(0)
	st.offsets[""] = 0
	return st
}

func (st *stringTable) add(s string) uint32 {
	if off, ok := st.offsets[s]; ok {
		return off
	}
	off := uint32(st.buf.Len())
	st.buf.WriteString(s)
	st.buf.WriteByte(0)
	st.offsets[s] = off
	return off
}

func align(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// WriteObject wraps the code of one function in an ELF64 relocatable object.
// The function is exported as entry (e.g. "main"); every symbol referenced by
// relocs becomes an undefined global for the linker to resolve.
func WriteObject(machine elf.Machine, text []byte, relocs []Relocation, entry, sourceName string) ([]byte, error) {
	if len(text) == 0 {
		return nil, fmt.Errorf("no code to write")
	}

	strtab := newStringTable()
	shstrtab := newStringTable()

	// Locals first: null, file, .text section. Globals start at index 3.
	syms := []elf.Sym64{
		{},
		{
			Name:  strtab.add(sourceName),
			Info:  elf.ST_INFO(elf.STB_LOCAL, elf.STT_FILE),
			Shndx: uint16(elf.SHN_ABS),
		},
		{
			Info:  elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION),
			Shndx: shText,
		},
	}
	firstGlobal := uint32(len(syms))
	syms = append(syms, elf.Sym64{
		Name:  strtab.add(entry),
		Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
		Shndx: shText,
		Size:  uint64(len(text)),
	})

	symIndex := make(map[string]uint32)
	var rela bytes.Buffer
	for _, r := range relocs {
		idx, ok := symIndex[r.Symbol]
		if !ok {
			idx = uint32(len(syms))
			syms = append(syms, elf.Sym64{
				Name: strtab.add(r.Symbol),
				Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE),
			})
			symIndex[r.Symbol] = idx
		}
		if r.Offset+4 > uint64(len(text)) {
			return nil, fmt.Errorf("relocation for %s at 0x%x is outside .text", r.Symbol, r.Offset)
		}
		binary.Write(&rela, binary.LittleEndian, elf.Rela64{
			Off:    r.Offset,
			Info:   elf.R_INFO(idx, r.Type),
			Addend: r.Addend,
		})
	}

	var symtab bytes.Buffer
	for _, s := range syms {
		binary.Write(&symtab, binary.LittleEndian, s)
	}

	names := [shCount]uint32{
		shText:      shstrtab.add(".text"),
		shRelaText:  shstrtab.add(".rela.text"),
		shSymtab:    shstrtab.add(".symtab"),
		shStrtab:    shstrtab.add(".strtab"),
		shShstrtab:  shstrtab.add(".shstrtab"),
		shNoteStack: shstrtab.add(".note.GNU-stack"),
	}

	// File layout: header, .text, .rela.text, .symtab, .strtab, .shstrtab, section headers
	const headerSize = 64
	textOff := align(headerSize, 16)
	relaOff := align(textOff+len(text), 8)
	symtabOff := align(relaOff+rela.Len(), 8)
	strtabOff := symtabOff + symtab.Len()
	shstrtabOff := strtabOff + strtab.buf.Len()
	shOff := align(shstrtabOff+shstrtab.buf.Len(), 8)

	sections := [shCount]elf.Section64{
		shText: {
			Name:      names[shText],
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Off:       uint64(textOff),
			Size:      uint64(len(text)),
			Addralign: 16,
		},
		shRelaText: {
			Name:      names[shRelaText],
			Type:      uint32(elf.SHT_RELA),
			Flags:     uint64(elf.SHF_INFO_LINK),
			Off:       uint64(relaOff),
			Size:      uint64(rela.Len()),
			Link:      shSymtab,
			Info:      shText,
			Addralign: 8,
			Entsize:   24,
		},
		shSymtab: {
			Name:      names[shSymtab],
			Type:      uint32(elf.SHT_SYMTAB),
			Off:       uint64(symtabOff),
			Size:      uint64(symtab.Len()),
			Link:      shStrtab,
			Info:      firstGlobal,
			Addralign: 8,
			Entsize:   24,
		},
		shStrtab: {
			Name:      names[shStrtab],
			Type:      uint32(elf.SHT_STRTAB),
			Off:       uint64(strtabOff),
			Size:      uint64(strtab.buf.Len()),
			Addralign: 1,
		},
		shShstrtab: {
			Name:      names[shShstrtab],
			Type:      uint32(elf.SHT_STRTAB),
			Off:       uint64(shstrtabOff),
			Size:      uint64(shstrtab.buf.Len()),
			Addralign: 1,
		},
		shNoteStack: {
			Name:      names[shNoteStack],
			Type:      uint32(elf.SHT_PROGBITS),
			Off:       uint64(shOff),
			Addralign: 1,
		},
	}

	hdr := elf.Header64{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     uint64(shOff),
		Ehsize:    headerSize,
		Shentsize: 64,
		Shnum:     shCount,
		Shstrndx:  shShstrtab,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	var out bytes.Buffer
	pad := func(to int) {
		for out.Len() < to {
			out.WriteByte(0)
		}
	}
	binary.Write(&out, binary.LittleEndian, hdr)
	pad(textOff)
	out.Write(text)
	pad(relaOff)
	out.Write(rela.Bytes())
	pad(symtabOff)
	out.Write(symtab.Bytes())
	out.Write(strtab.buf.Bytes())
	out.Write(shstrtab.buf.Bytes())
	pad(shOff)
	for _, sh := range sections {
		binary.Write(&out, binary.LittleEndian, sh)
	}
	return out.Bytes(), nil
}

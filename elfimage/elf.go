/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package elfimage wraps a linked link.Image in a minimal ELF64
// executable: one PT_LOAD segment holding the raw big-endian
// instruction stream, e_entry pointing at the bootloader,
// and a .symtab/.strtab/.shstrtab layout listing every compiled
// method's base offset as a global STT_FUNC symbol. This is packaging
// only — elfimage never interprets or executes the stream it wraps.
package elfimage

import (
	"encoding/binary"

	"github.com/opencell/spejit/isa"
	"github.com/opencell/spejit/link"
)

const (
	elfHeaderSize = 64
	phdrSize      = 56
	shdrEntrySize = 64
	symEntrySize  = 24
)

// Options controls placement of the loaded segment. BaseAddr is the
// virtual address the loader maps the PT_LOAD segment's first byte
// to; it has no relation to the SPE's own local-store addressing,
// which is always zero-based — this is purely an ELF container
// convention so generic tooling (readelf, objdump) can inspect the
// image.
type Options struct {
	BaseAddr uint64
}

// DefaultOptions picks a conventional base address for a freshly
// linked image with no preferred load address of its own.
func DefaultOptions() Options {
	return Options{BaseAddr: 0x400000}
}

type symEntry struct {
	nameOff int
	value   uint64
	size    uint64
}

func putU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// Build serializes img as a minimal ELF64 executable, trimmed to this
// module's simpler needs: no .rodata/.data, since the SPE instruction
// stream carries no separate constant pool, and e_machine left at
// EM_NONE since SPE has no registered ELF machine constant of its
// own — this image is a transport container for the host-side
// loader, not something the host CPU itself ever executes directly.
func Build(img *link.Image, opts Options) []byte {
	words := img.Buffer.Words()
	textSize := len(words) * isa.InstructionSize

	headerTotal := elfHeaderSize + phdrSize
	textOffset := (headerTotal + 15) &^ 15
	loadedSize := textOffset + textSize

	textVAddr := opts.BaseAddr + uint64(textOffset)
	entryAddr := textVAddr + uint64(isa.BootloaderStartOffset)

	var strtab []byte
	strtab = append(strtab, 0)

	var syms []symEntry
	offsets := img.Methods()
	for i, m := range offsets {
		nameOff := len(strtab)
		strtab = append(strtab, []byte(m.Name)...)
		strtab = append(strtab, 0)

		var size uint64
		if i+1 < len(offsets) {
			size = uint64((offsets[i+1].Offset - m.Offset) * isa.InstructionSize)
		} else {
			size = uint64(textSize - m.Offset*isa.InstructionSize)
		}
		syms = append(syms, symEntry{
			nameOff: nameOff,
			value:   textVAddr + uint64(m.Offset*isa.InstructionSize),
			size:    size,
		})
	}

	symtabSize := (1 + len(syms)) * symEntrySize
	symtab := make([]byte, symtabSize)
	for i, s := range syms {
		off := (i + 1) * symEntrySize
		putU32(symtab[off:], uint32(s.nameOff))
		symtab[off+4] = 0x12 // STT_FUNC | STB_GLOBAL<<4
		symtab[off+5] = 0
		putU16(symtab[off+6:], 1) // .text section index
		putU64(symtab[off+8:], s.value)
		putU64(symtab[off+16:], s.size)
	}

	shstrtab := []byte("\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00")
	shNameText := 1
	shNameSymtab := 7
	shNameStrtab := 15
	shNameShstrtab := 23

	symtabOffset := loadedSize
	strtabOffset := symtabOffset + symtabSize
	shstrtabOffset := strtabOffset + len(strtab)
	shdrOffset := shstrtabOffset + len(shstrtab)

	shdrTableCount := 5 // NULL, .text, .symtab, .strtab, .shstrtab
	totalSize := shdrOffset + shdrTableCount*shdrEntrySize

	elf := make([]byte, totalSize)

	elf[0], elf[1], elf[2], elf[3] = 0x7f, 'E', 'L', 'F'
	elf[4] = 2 // ELFCLASS64
	elf[5] = 1 // ELFDATA2LSB; the payload itself is big-endian SPE code, the ELF container is not
	elf[6] = 1 // EV_CURRENT
	elf[7] = 0 // ELFOSABI_NONE
	putU16(elf[16:], 2) // e_type: ET_EXEC
	putU16(elf[18:], 0) // e_machine: EM_NONE, this is a custom SPE loader's input, not a hosted ELF
	putU32(elf[20:], 1)
	putU64(elf[24:], entryAddr)
	putU64(elf[32:], uint64(elfHeaderSize))
	putU64(elf[40:], uint64(shdrOffset))
	putU32(elf[48:], 0)
	putU16(elf[52:], uint16(elfHeaderSize))
	putU16(elf[54:], uint16(phdrSize))
	putU16(elf[56:], 1)
	putU16(elf[58:], uint16(shdrEntrySize))
	putU16(elf[60:], uint16(shdrTableCount))
	putU16(elf[62:], 4) // e_shstrndx

	phdr := elf[elfHeaderSize:]
	putU32(phdr[0:], 1) // PT_LOAD
	putU32(phdr[4:], 5) // PF_R|PF_X
	putU64(phdr[8:], 0)
	putU64(phdr[16:], opts.BaseAddr)
	putU64(phdr[24:], opts.BaseAddr)
	putU64(phdr[32:], uint64(loadedSize))
	putU64(phdr[40:], uint64(loadedSize))
	putU64(phdr[48:], 0x1000)

	text := elf[textOffset:]
	for i, w := range words {
		binary.BigEndian.PutUint32(text[i*isa.InstructionSize:], uint32(w))
	}
	copy(elf[symtabOffset:], symtab)
	copy(elf[strtabOffset:], strtab)
	copy(elf[shstrtabOffset:], shstrtab)

	shdr := elf[shdrOffset:]

	s := shdr[1*shdrEntrySize:]
	putU32(s[0:], uint32(shNameText))
	putU32(s[4:], 1) // SHT_PROGBITS
	putU64(s[8:], 6) // SHF_ALLOC|SHF_EXECINSTR
	putU64(s[16:], textVAddr)
	putU64(s[24:], uint64(textOffset))
	putU64(s[32:], uint64(textSize))
	putU64(s[48:], uint64(isa.InstructionSize))

	s = shdr[2*shdrEntrySize:]
	putU32(s[0:], uint32(shNameSymtab))
	putU32(s[4:], 2) // SHT_SYMTAB
	putU64(s[24:], uint64(symtabOffset))
	putU64(s[32:], uint64(symtabSize))
	putU32(s[40:], 3) // sh_link: .strtab index
	putU32(s[44:], 1)
	putU64(s[48:], 8)
	putU64(s[56:], uint64(symEntrySize))

	s = shdr[3*shdrEntrySize:]
	putU32(s[0:], uint32(shNameStrtab))
	putU32(s[4:], 3) // SHT_STRTAB
	putU64(s[24:], uint64(strtabOffset))
	putU64(s[32:], uint64(len(strtab)))
	putU64(s[48:], 1)

	s = shdr[4*shdrEntrySize:]
	putU32(s[0:], uint32(shNameShstrtab))
	putU32(s[4:], 3) // SHT_STRTAB
	putU64(s[24:], uint64(shstrtabOffset))
	putU64(s[32:], uint64(len(shstrtab)))
	putU64(s[48:], 1)

	return elf
}

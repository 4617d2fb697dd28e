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

// Package codegen holds the core of the JIT: InstructionBuffer, the
// OpCodeMapper translation table, and the MethodCompiler that drives
// one IR method through them.
package codegen

import (
	"encoding/binary"
	"io"

	"github.com/opencell/spejit/isa"
)

// InstructionBuffer is a growable, append-only sequence of encoded SPE
// instructions with byte addresses implied by position. Modeled on the
// teacher's JITWriter (scm/jit_writer.go): a flat buffer plus in-place
// patching, minus the mmap/executable-memory machinery this module has
// no use for (it only ever produces a byte stream for an external
// loader, never executes the code itself).
type InstructionBuffer struct {
	words []isa.Instruction
}

// Append adds one instruction and returns its index.
func (b *InstructionBuffer) Append(instr isa.Instruction) int {
	b.words = append(b.words, instr)
	return len(b.words) - 1
}

// Len returns the number of instructions currently in the buffer.
func (b *InstructionBuffer) Len() int {
	return len(b.words)
}

// At returns the instruction at idx.
func (b *InstructionBuffer) At(idx int) isa.Instruction {
	return b.words[idx]
}

// Patch overwrites a previously appended instruction in place.
func (b *InstructionBuffer) Patch(idx int, instr isa.Instruction) {
	b.words[idx] = instr
}

// Words exposes the underlying slice read-only, for the linker's final
// concatenation pass.
func (b *InstructionBuffer) Words() []isa.Instruction {
	return b.words
}

// Serialize writes every instruction as four big-endian bytes,
// regardless of host byte order: SPE is big-endian.
func (b *InstructionBuffer) Serialize(w io.Writer) error {
	buf := make([]byte, 4)
	for _, instr := range b.words {
		binary.BigEndian.PutUint32(buf, uint32(instr))
		if _, err := w.Write(buf); err != nil {
			return &StreamWriteFailure{Cause: err}
		}
	}
	return nil
}

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

package link

import (
	"github.com/opencell/spejit/codegen"
	"github.com/opencell/spejit/isa"
)

// bootloaderLayout records the one instruction the Linker still owes a
// patch once the call handler and entry method offsets are known.
type bootloaderLayout struct {
	branchAndLinkIdx int
}

// loadConst32 emits the same high/low-word positioning sequence
// codegen's translateLdcI8 uses for building an arbitrary 32-bit
// constant into dst, via ila (zero-extended 16-bit), shlqi (position
// the high half), and or (merge in the low half).
func loadConst32(buf *codegen.InstructionBuffer, dst, tmp isa.Reg, v int32) {
	hi := (v >> 16) & 0xFFFF
	lo := v & 0xFFFF
	buf.Append(isa.EncodeRI16(isa.OpILA, dst, hi))
	buf.Append(isa.EncodeRI10(isa.OpSHLQI, dst, dst, 16))
	buf.Append(isa.EncodeRI16(isa.OpILA, tmp, lo))
	buf.Append(isa.Encode(isa.OpOR, dst, dst, tmp))
}

// emitBootloader appends the fixed hand-written bootloader to buf: it
// sets SP, reads the 16-byte argument descriptor as one quadword,
// copies each argument into its ABI register through a self-modifying
// load whose target-register field advances every iteration, restores
// that instruction's original form once the loop ends so a second
// invocation behaves identically (the "idempotent bootloader" law),
// and finally branches-and-links to the entry method at a
// displacement the Linker patches in once it knows where the call
// handler and the entry method land.
//
// This stand-in ISA's stqd is treated as addressing one instruction
// word rather than enforcing true quadword-store alignment, the same
// simplification isa/opcodes.go's own package doc already takes for
// the rest of this encoding: "a minimal, internally-consistent
// stand-in, not a full SPU ISA."
func emitBootloader(buf *codegen.InstructionBuffer) bootloaderLayout {
	zb := isa.Scratch(0)
	work := isa.Scratch(1) // holds the header quadword, then (after extraction) the saved original self-mod word
	cnt := isa.Scratch(2)
	ptr := isa.Scratch(3)
	tmp := isa.Scratch(4)

	buf.Append(isa.EncodeRI16(isa.OpIL, zb, 0))

	loadConst32(buf, isa.RegSP, tmp, int32(isa.StackInitialValue))

	buf.Append(isa.EncodeRI10(isa.OpLQD, work, zb, 0))
	buf.Append(isa.EncodeRI10(isa.OpROTQBYI, cnt, work, 1)) // word[1]: argument count
	buf.Append(isa.EncodeRI10(isa.OpROTQBYI, ptr, work, 2)) // word[2]: argument vector pointer

	selfModWord := isa.EncodeRI10(isa.OpLQD, isa.ArgBase, ptr, 0)
	loopStart := buf.Len()
	brzIdx := buf.Append(isa.EncodeRI16(isa.OpBRZ, cnt, 0)) // patched below once loopEnd is known
	selfModIdx := buf.Append(selfModWord)

	// Save the pristine word before the first modification so the
	// post-loop restore has something to write back.
	loadConst32(buf, work, tmp, int32(selfModWord))

	buf.Append(isa.EncodeRI10(isa.OpAI, ptr, ptr, 1))
	buf.Append(isa.EncodeRI10(isa.OpAI, cnt, cnt, -1))

	// Advance the self-modifying instruction's target-register field:
	// reload its current word, increment the low 7 bits (RT occupies
	// bits 0-6), write it back in place.
	buf.Append(isa.EncodeRI10(isa.OpLQD, tmp, zb, int32(selfModIdx)))
	buf.Append(isa.EncodeRI10(isa.OpAI, tmp, tmp, 1))
	buf.Append(isa.EncodeRI10(isa.OpSTQD, tmp, zb, int32(selfModIdx)))

	backEdge := buf.Append(isa.EncodeRI16(isa.OpBR, 0, 0))
	buf.Patch(backEdge, buf.At(backEdge).WithImm16(int32(loopStart-backEdge)))

	loopEnd := buf.Len()
	buf.Patch(brzIdx, buf.At(brzIdx).WithImm16(int32(loopEnd-brzIdx)))

	// Restore the original RT=ArgBase form so re-entering the
	// bootloader a second time starts the loop from the same state.
	buf.Append(isa.EncodeRI10(isa.OpSTQD, work, zb, int32(selfModIdx)))

	brslIdx := buf.Append(isa.EncodeRI16(isa.OpBRSL, isa.RegLR, 0))

	return bootloaderLayout{branchAndLinkIdx: brslIdx}
}

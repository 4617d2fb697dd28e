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

package codegen

import (
	"github.com/opencell/spejit/ir"
	"github.com/opencell/spejit/isa"
)

const maxPreservedRegisters = isa.MaxPreservedForLocalsArgs

// Mapper is the OpCodeMapper: it holds the CompiledMethod currently
// being built and exposes one translation operation per supported CIL
// opcode: post-order recursive dispatch through a table of small
// closures, each consuming already-translated
// children and pushing a result descriptor — generalized here from "one
// expression, result in RAX/RBX" to "one IR method, virtual stack
// mapped onto SPE registers 80-127".
type Mapper struct {
	method *CompiledMethod
}

// NewMapper binds a Mapper to the CompiledMethod it will emit into.
func NewMapper(m *CompiledMethod) *Mapper {
	return &Mapper{method: m}
}

// AllocateStackSlot returns the virtual-stack depth index the next
// Push would occupy, without changing the depth.
func (mp *Mapper) AllocateStackSlot() int {
	return mp.method.depth
}

// pushDepth advances the virtual stack by one slot and records the new
// peak in MaxStackDepth on every push.
func (mp *Mapper) pushDepth() isa.Reg {
	window := mp.method.LocalsArgsWindow()
	if window+mp.method.depth+1 > isa.MaxLVRegisters {
		panic(&TooManyRegisters{Method: mp.method.Source.Name, Locals: mp.method.Source.NumLocals(), Args: mp.method.Source.NumParams()})
	}
	reg := isa.LV(window + mp.method.depth)
	mp.method.depth++
	if mp.method.depth+window > mp.method.MaxStackDepth {
		mp.method.MaxStackDepth = mp.method.depth + window
	}
	return reg
}

// popDepth retreats the virtual stack by one slot and returns the
// register the popped value lived in.
func (mp *Mapper) popDepth() isa.Reg {
	window := mp.method.LocalsArgsWindow()
	mp.method.depth--
	return isa.LV(window + mp.method.depth)
}

// StackReg returns the physical register for virtual stack slot i
// (0-based, 0 = bottom of the virtual stack, not the current top).
func (mp *Mapper) StackReg(i int) isa.Reg {
	return isa.LV(mp.method.LocalsArgsWindow() + i)
}

// PushStack emits a store-quadword-displaced of reg at the current
// *real* stack depth (SP-relative spill area) and increments the
// spill-depth counter. This is distinct from the virtual operand stack
// above: it is the mechanism MethodCompiler uses to preserve permanent
// registers across the frame.
func (mp *Mapper) PushStack(slot int, reg isa.Reg) {
	mp.method.Buffer.Append(isa.EncodeRI10(isa.OpSTQD, reg, isa.RegSP, int32(slot)))
}

// PopStack emits the symmetric load for PushStack.
func (mp *Mapper) PopStack(slot int, reg isa.Reg) {
	mp.method.Buffer.Append(isa.EncodeRI10(isa.OpLQD, reg, isa.RegSP, int32(slot)))
}

// CopyRegister emits an `lr` (register move).
func (mp *Mapper) CopyRegister(dst, src isa.Reg) {
	if dst == src {
		return
	}
	mp.method.Buffer.Append(isa.Encode(isa.OpLR, dst, src, 0))
}

// ClearRegister emits an immediate-load-zero.
func (mp *Mapper) ClearRegister(reg isa.Reg) {
	mp.method.Buffer.Append(isa.EncodeRI16(isa.OpIL, reg, 0))
}

// scratch returns the i-th scratch register (_TMP0.._TMP4); scratch
// never carries a value across opcode-translation boundaries, so
// callers never need to free it explicitly — every opcode translation
// starts with a clean scratch pool.
func (mp *Mapper) scratch(i int) isa.Reg {
	return isa.Scratch(i)
}

// opKind distinguishes opcodes that leave a result on the virtual stack
// from ones that don't; MethodCompiler.emit uses it to decide whether
// to allocate a destination slot before calling the translator.
type opKind int

const (
	kindValue opKind = iota // pushes exactly one result register
	kindVoid                // pushes nothing (ret, stloc, branches, pop, call-as-statement)
)

// opFunc is the explicit per-opcode translator signature: given the
// already-translated argument registers (one per Children entry, in
// order) and, for kindValue opcodes, the destination register the
// caller has already reserved on the virtual stack, emit the SPE
// instructions implementing instr. Explicit per-opcode registration,
// not reflection-based table construction, is the right shape for a
// systems language; opcodeTable (optable.go) is that registration.
type opFunc func(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg)

// temp reserves one virtual-stack slot for scratch use that must
// survive across several instructions within a single opcode
// translation (e.g. the lane temporaries of the 64-bit multiply
// pyramid), and returns the register backing it. Paired temps must be
// released with releaseTemp in reverse order of acquisition.
func (mp *Mapper) temp() isa.Reg {
	return mp.pushDepth()
}

// releaseTemp gives back the most recently acquired temp.
func (mp *Mapper) releaseTemp() {
	mp.popDepth()
}

// emitALU emits a register-register ALU instruction op rt,ra,rb.
func (mp *Mapper) emitALU(op isa.Opcode, rt, ra, rb isa.Reg) {
	mp.method.Buffer.Append(isa.Encode(op, rt, ra, rb))
}

// emitALUI emits a register-immediate ALU instruction op rt,ra,I10.
func (mp *Mapper) emitALUI(op isa.Opcode, rt, ra isa.Reg, imm int32) {
	mp.method.Buffer.Append(isa.EncodeRI10(op, rt, ra, imm))
}

// loadImmediate loads a sign-extended 16-bit immediate into dst. CIL
// constants wider than 16 bits are built up with a shift-and-or
// sequence by the caller (translateLdcI4/translateLdcI8).
func (mp *Mapper) loadImmediate(dst isa.Reg, imm16 int32) {
	mp.method.Buffer.Append(isa.EncodeRI16(isa.OpIL, dst, imm16))
}

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
	"github.com/launix-de/NonLockingReadMap"

	"github.com/opencell/spejit/ir"
	"github.com/opencell/spejit/isa"
)

// opEntry is the table row NonLockingReadMap stores: the opcode it's
// keyed on, its kind, and its translator. Built once at package init
// and never mutated again, so every compiling goroutine shares the
// same read-only table with no lock contention. NonLockingReadMap is
// chosen over a plain map for exactly this access pattern: lookups
// never block on a writer, and there are no writers once init()
// returns.
type opEntry struct {
	op   ir.Opcode
	kind opKind
	fn   opFunc
}

func (e opEntry) GetKey() ir.Opcode { return e.op }
func (e opEntry) ComputeSize() uint { return 0 }

var opcodeTable NonLockingReadMap.NonLockingReadMap[opEntry, ir.Opcode]

func register(op ir.Opcode, kind opKind, fn opFunc) {
	opcodeTable.Set(&opEntry{op: op, kind: kind, fn: fn})
}

func lookupOpcode(op ir.Opcode) (*opEntry, bool) {
	e := opcodeTable.Get(op)
	if e == nil {
		return nil, false
	}
	return e, true
}

func init() {
	opcodeTable = NonLockingReadMap.New[opEntry, ir.Opcode]()

	register(ir.OpNop, kindVoid, translateNop)
	register(ir.OpLdArg, kindValue, translateLdArg)
	register(ir.OpLdLoc, kindValue, translateLdLoc)
	register(ir.OpStLoc, kindVoid, translateStLoc)
	register(ir.OpLdcI4, kindValue, translateLdcI4)
	register(ir.OpLdcI8, kindValue, translateLdcI8)
	register(ir.OpAdd, kindValue, translateAdd)
	register(ir.OpAdd64, kindValue, translateAdd)
	register(ir.OpSub, kindValue, translateSub)
	register(ir.OpMul, kindValue, translateMul32)
	register(ir.OpMul64, kindValue, translateMul64)
	register(ir.OpAnd, kindValue, translateAnd)
	register(ir.OpOr, kindValue, translateOr)
	register(ir.OpXor, kindValue, translateXor)
	register(ir.OpNeg, kindValue, translateNeg)
	register(ir.OpNot, kindValue, translateNot)
	register(ir.OpCeq, kindValue, translateCeq)
	register(ir.OpCgt, kindValue, translateCgt)
	register(ir.OpClt, kindValue, translateClt)
	register(ir.OpPop, kindVoid, translatePop)
	register(ir.OpBr, kindVoid, translateBr)
	register(ir.OpBrtrue, kindVoid, translateBrtrue)
	register(ir.OpBrfalse, kindVoid, translateBrfalse)
	register(ir.OpCall, kindValue, translateCall)
	register(ir.OpRet, kindVoid, translateRet)
	register(ir.OpRetVal, kindVoid, translateRetVal)
}

func translateNop(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
}

// translateLdArg copies the already-prologue-copied argument register
// into the destination stack slot. Argument i lives at isa.LV(locals+i)
// once the prologue's copy-in phase has run.
func translateLdArg(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	src := isa.LV(mp.method.Source.NumLocals() + instr.Index)
	mp.CopyRegister(dst, src)
}

func translateLdLoc(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	src := isa.LV(instr.Index)
	mp.CopyRegister(dst, src)
}

// translateStLoc is kindVoid: its one child's value is already sitting
// in args[0] (a virtual-stack register that emit is about to pop), so
// the translation is a single copy into the local's permanent slot.
func translateStLoc(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	local := isa.LV(instr.Index)
	mp.CopyRegister(local, args[0])
}

// loadConst32 builds an arbitrary 32-bit constant with an il/ila pair
// when it doesn't fit the 16-bit signed immediate field directly,
// synthesizing it with a shift-and-or sequence.
func (mp *Mapper) loadConst32(dst isa.Reg, v int32) {
	if isa.Fits16(v) {
		mp.loadImmediate(dst, v)
		return
	}
	lo := v & 0xFFFF
	hi := (v >> 16) & 0xFFFF
	mp.method.Buffer.Append(isa.EncodeRI16(isa.OpILA, dst, hi))
	t := mp.temp()
	mp.method.Buffer.Append(isa.EncodeRI10(isa.OpROTLI, dst, dst, 16))
	mp.method.Buffer.Append(isa.EncodeRI16(isa.OpILA, t, lo))
	mp.emitALU(isa.OpOR, dst, dst, t)
	mp.releaseTemp()
}

func translateLdcI4(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.loadConst32(dst, int32(instr.Const))
}

// translateLdcI8 builds the 64-bit constant as two 32-bit halves: the
// high half is positioned with shlqi (whole-register-granularity
// shift, unlike shli's per-lane scope) and or'd together with the low
// half.
func translateLdcI8(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	v := instr.Const
	lo := int32(v)
	hi := int32(v >> 32)
	mp.loadConst32(dst, hi)
	mp.emitALUI(isa.OpSHLQI, dst, dst, 32)
	t := mp.temp()
	mp.loadConst32(t, lo)
	mp.emitALU(isa.OpOR, dst, dst, t)
	mp.releaseTemp()
}

func translateAdd(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.emitALU(isa.OpA, dst, args[0], args[1])
}

func translateSub(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	// isa.OpSF computes rt = rb - ra, so swap operands for args[0]-args[1].
	mp.emitALU(isa.OpSF, dst, args[1], args[0])
}

func translateAnd(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.emitALU(isa.OpAND, dst, args[0], args[1])
}

func translateOr(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.emitALU(isa.OpOR, dst, args[0], args[1])
}

func translateXor(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.emitALU(isa.OpXOR, dst, args[0], args[1])
}

func translateNeg(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	// 0 - a, via sf with ra=args[0] (subtrahend) and rb=0.
	zero := mp.temp()
	mp.loadImmediate(zero, 0)
	mp.emitALU(isa.OpSF, dst, args[0], zero)
	mp.releaseTemp()
}

func translateNot(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.method.Buffer.Append(isa.Encode(isa.OpNOT, dst, args[0], 0))
}

func translateCeq(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.emitALU(isa.OpCEQ, dst, args[0], args[1])
}

func translateCgt(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.emitALU(isa.OpCGT, dst, args[0], args[1])
}

// translateClt has no dedicated comparison instruction; cgt with
// operands swapped is the standard SPU idiom (there is no "less-than"
// opcode any more than there's a native 64-bit multiply).
func translateClt(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.emitALU(isa.OpCGT, dst, args[1], args[0])
}

// translatePop discards its child's value; the value was already
// materialized into args[0] by the post-order walk and emit pops the
// virtual-stack slot back for it, so there is nothing left to emit.
func translatePop(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
}

// translateBr records nothing itself; MethodCompiler.emit appends the
// branchFixup entry because it alone knows the instruction's final
// buffer index at emission time. The translator only needs to emit the
// placeholder instruction with a zero immediate, patched later.
func translateBr(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.method.Buffer.Append(isa.EncodeRI16(isa.OpBR, 0, 0))
}

func translateBrtrue(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.method.Buffer.Append(isa.EncodeRI16(isa.OpBRNZ, args[0], 0))
}

func translateBrfalse(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.method.Buffer.Append(isa.EncodeRI16(isa.OpBRZ, args[0], 0))
}

// calleeIdentityReg is the scratch register the linker's call handler
// reads to resolve a call's target, by encoding the callee identity in
// a neighbouring register load. It is never a permanent register,
// consistent with scratch registers never carrying a value across a
// translation boundary except across this one call-site pair of
// instructions.
var calleeIdentityReg = isa.Scratch(4)

// translateCall emits the placeholder brsl the linker rewrites to
// target the call handler, immediately followed by a load of the
// callee's method token into calleeIdentityReg.
// MethodCompiler.emit records the callFixup against the brsl's own
// index, since only it knows this call's final buffer index, and the
// brsl is always the first instruction this translator emits.
// Arguments are expected to already sit in the argument registers by
// convention of the IR producer (out of scope here); this translator
// only emits the control-transfer, the identity load, and the
// link-save.
func translateCall(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.method.Buffer.Append(isa.EncodeRI16(isa.OpBRSL, isa.RegLR, 0))
	mp.loadConst32(calleeIdentityReg, int32(instr.Callee))
	mp.CopyRegister(dst, isa.Arg(0))
}

func translateRet(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	// MethodCompiler's epilogue synthesis handles the actual return
	// sequence (restore permanent registers, reload LR, bi LR); a bare
	// ret in the body falls through to it directly, so nothing is
	// emitted here for the common case of ret-as-the-last-instruction.
}

func translateRetVal(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	mp.CopyRegister(isa.Arg(0), args[0])
}

// translateMul32 implements 32x32->32 truncating multiplication from
// 16x16->32 partial products, the standard technique on ISAs (the real
// Cell SPU among them) whose native multiplier only covers 16-bit
// lanes: split each operand into low/high half-words, form the three
// partial products that can affect the low 32 bits, shift the
// cross-terms into position, and add. The high*high term is dropped
// entirely since it only ever contributes to bits 32 and above.
func translateMul32(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	// args[0]/args[1] live in virtual-stack registers that emit has
	// already freed by the time this translator runs; the very next
	// temp() (or dst itself) can land on the same register. Copy both
	// operands into scratch, which temp() never allocates from,
	// before touching either with a write.
	a, b := mp.scratch(0), mp.scratch(1)
	mp.CopyRegister(a, args[0])
	mp.CopyRegister(b, args[1])

	mask := mp.temp()
	mp.loadConst32(mask, 0xFFFF)

	aLo := mp.temp()
	aHi := mp.temp()
	bLo := mp.temp()
	bHi := mp.temp()
	mp.emitALU(isa.OpAND, aLo, a, mask)
	mp.emitALUI(isa.OpROTLI, aHi, a, 16)
	mp.emitALU(isa.OpAND, aHi, aHi, mask)
	mp.emitALU(isa.OpAND, bLo, b, mask)
	mp.emitALUI(isa.OpROTLI, bHi, b, 16)
	mp.emitALU(isa.OpAND, bHi, bHi, mask)

	p0 := mp.temp()
	p1 := mp.temp()
	p2 := mp.temp()
	mp.emitALU(isa.OpMPYU16, p0, aLo, bLo)
	mp.emitALU(isa.OpMPYU16, p1, aLo, bHi)
	mp.emitALUI(isa.OpSHLI, p1, p1, 16)
	mp.emitALU(isa.OpMPYU16, p2, aHi, bLo)
	mp.emitALUI(isa.OpSHLI, p2, p2, 16)

	mp.emitALU(isa.OpA, dst, p0, p1)
	mp.emitALU(isa.OpA, dst, dst, p2)

	for i := 0; i < 8; i++ {
		mp.releaseTemp()
	}
}

// translateMul64 implements 64x64->64 truncating multiplication as the
// four-lane 16-bit partial-product pyramid: each 64-bit operand is
// split into four 16-bit lanes (a0 the lowest, a3 the highest), every
// pairwise product ai*bj that lands at least partly below bit 64 is
// formed, shifted into its lane position, and summed; carries produced
// past bit 63 are discarded exactly like a native 64-bit multiplier's
// would be, which is what gives this the same wraparound semantics as
// Mul32 one tier up (test vectors 0xFFFFFFFFFFFFFFFF*2 =
// 0xFFFFFFFFFFFFFFFE and 0x100000000*0x100000000 = 0 both exercise the
// discard of out-of-range carries).
func translateMul64(mp *Mapper, instr *ir.Instruction, args []isa.Reg, dst isa.Reg) {
	// Same aliasing hazard as translateMul32: copy both operands into
	// scratch before any temp() allocation can clobber their original
	// virtual-stack registers.
	a, b := mp.scratch(0), mp.scratch(1)
	mp.CopyRegister(a, args[0])
	mp.CopyRegister(b, args[1])

	mask := mp.temp()
	mp.loadConst32(mask, 0xFFFF)

	lanes := func(v isa.Reg) [4]isa.Reg {
		var out [4]isa.Reg
		for i := 0; i < 4; i++ {
			out[i] = mp.temp()
			if i == 0 {
				mp.emitALU(isa.OpAND, out[i], v, mask)
			} else {
				mp.emitALUI(isa.OpROTLI, out[i], v, int32(16*i))
				mp.emitALU(isa.OpAND, out[i], out[i], mask)
			}
		}
		return out
	}

	aLanes := lanes(a)
	bLanes := lanes(b)

	acc := mp.temp()
	mp.loadImmediate(acc, 0)
	partial := mp.temp()

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			shift := 16 * (i + j)
			if shift >= 64 {
				continue // contributes only at or past bit 64, discarded
			}
			mp.emitALU(isa.OpMPYU16, partial, aLanes[i], bLanes[j])
			if shift > 0 {
				// shli only shifts within a 32-bit lane; a partial
				// product destined for bit 32 or beyond needs the
				// whole-register shlqi instead.
				if shift < 32 {
					mp.emitALUI(isa.OpSHLI, partial, partial, int32(shift))
				} else {
					mp.emitALUI(isa.OpSHLQI, partial, partial, int32(shift))
				}
			}
			mp.emitALU(isa.OpA, acc, acc, partial)
		}
	}
	mp.CopyRegister(dst, acc)

	mp.releaseTemp() // partial
	mp.releaseTemp() // acc
	for i := 0; i < 4; i++ {
		mp.releaseTemp() // bLanes[3-i]
	}
	for i := 0; i < 4; i++ {
		mp.releaseTemp() // aLanes[3-i]
	}
	mp.releaseTemp() // mask
}

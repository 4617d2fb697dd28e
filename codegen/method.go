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

// MethodCompiler drives one ir.Method through prologue synthesis, body
// translation, epilogue synthesis, and fixup resolution. It owns no
// state of its own beyond the CompiledMethod/Mapper pair it is
// currently working on: one call in, one fully-formed artifact (or an
// error) out, no leftover state between calls.
type MethodCompiler struct{}

// NewMethodCompiler returns a ready MethodCompiler. It carries no
// configuration today; the constructor exists so callers don't depend
// on the zero value staying meaningful if that changes.
func NewMethodCompiler() *MethodCompiler {
	return &MethodCompiler{}
}

// CompileMethod translates m into a CompiledMethod, or returns the
// first compile-time error encountered; there is no partial output on
// error — callers must discard the returned CompiledMethod whenever
// err != nil.
func (mc *MethodCompiler) CompileMethod(m *ir.Method) (*CompiledMethod, error) {
	window := m.NumLocals() + m.NumParams()
	if window > maxPreservedRegisters {
		return nil, &TooManyRegisters{Method: m.Name, Locals: m.NumLocals(), Args: m.NumParams()}
	}

	cm := &CompiledMethod{
		Source:   m,
		offsetOf: make(map[*ir.Instruction]int),
		// emitPrologue always spills the locals+args window plus the two
		// frame-header slots (saved LR, saved SP) before the body runs a
		// single opcode; patchFrameSize must never carve a frame smaller
		// than that, even for a body that never pushes a virtual-stack
		// value. pushDepth only ever raises this from here on.
		MaxStackDepth: window + 2,
	}
	mp := NewMapper(cm)

	mc.emitPrologue(cm, mp, window)
	mc.emitArgumentCopyIn(cm, mp, m)

	for _, stmt := range m.Body {
		if _, err := mc.emit(cm, mp, stmt); err != nil {
			return nil, err
		}
	}

	mc.emitEpilogue(cm, mp, window)
	mc.patchFrameSize(cm)

	if err := mc.resolveBranchFixups(cm); err != nil {
		return nil, err
	}
	return cm, nil
}

// emitPrologue synthesizes the frame setup: save the caller's link
// register, carve out the frame by decrementing SP, save the caller's
// SP, then preserve every permanent register the body is about to
// start using as locals+args storage. The SP-related immediates are
// placeholders; their final values depend on MaxStackDepth, known
// only after the body has been translated.
func (mc *MethodCompiler) emitPrologue(cm *CompiledMethod, mp *Mapper, window int) {
	cm.Buffer.Append(isa.EncodeRI10(isa.OpSTQD, isa.RegLR, isa.RegSP, 1))

	cm.prologueSaveSPIdx = cm.Buffer.Append(isa.EncodeRI10(isa.OpSTQD, isa.RegSP, isa.RegSP, 0))
	cm.prologueAdjustSPIdx = cm.Buffer.Append(isa.EncodeRI10(isa.OpAI, isa.RegSP, isa.RegSP, 0))

	for i := 0; i < window; i++ {
		mp.PushStack(i+2, isa.LV(i))
	}
	for i, local := range cm.Source.Locals {
		if local.ZeroInit {
			mp.ClearRegister(isa.LV(i))
		}
	}
}

// emitArgumentCopyIn copies each incoming argument from its ABI slot
// into the method's permanent local-variable-space register: argument
// i lives in isa.LV(locals+i) for the rest of the method body.
func (mc *MethodCompiler) emitArgumentCopyIn(cm *CompiledMethod, mp *Mapper, m *ir.Method) {
	locals := m.NumLocals()
	for i := range m.Params {
		mp.CopyRegister(isa.LV(locals+i), isa.Arg(i))
	}
}

// emitEpilogue restores every permanent register the prologue saved,
// in reverse order, grows SP back up by the frame size (another
// placeholder, patched alongside the prologue's), reloads the caller's
// LR, and branches back indirectly through it.
func (mc *MethodCompiler) emitEpilogue(cm *CompiledMethod, mp *Mapper, window int) {
	for i := window - 1; i >= 0; i-- {
		mp.PopStack(i+2, isa.LV(i))
	}
	cm.epilogueAdjustSPIdx = cm.Buffer.Append(isa.EncodeRI10(isa.OpAI, isa.RegSP, isa.RegSP, 0))
	cm.Buffer.Append(isa.EncodeRI10(isa.OpLQD, isa.RegLR, isa.RegSP, 1))
	cm.Buffer.Append(isa.Encode(isa.OpBI, 0, isa.RegLR, 0))
}

// patchFrameSize rewrites the three SP-related placeholders the
// prologue and epilogue left behind, now that MaxStackDepth is final.
// Displacements are expressed in 16-byte
// register units; the 10-bit immediate field truncates anything
// outside [-512,511], which a frame this small never reaches in
// practice but which Fits10/WithImm10 enforce unconditionally anyway.
func (mc *MethodCompiler) patchFrameSize(cm *CompiledMethod) {
	d := cm.MaxStackDepth

	saveSPDisp := -(d * isa.RegisterSize / 4)
	cm.Buffer.Patch(cm.prologueSaveSPIdx, cm.Buffer.At(cm.prologueSaveSPIdx).WithImm10(int32(saveSPDisp)))

	spDecrement := -(d * isa.RegisterSize)
	cm.Buffer.Patch(cm.prologueAdjustSPIdx, cm.Buffer.At(cm.prologueAdjustSPIdx).WithImm10(int32(spDecrement)))

	spIncrement := d * isa.RegisterSize / 4
	cm.Buffer.Patch(cm.epilogueAdjustSPIdx, cm.Buffer.At(cm.epilogueAdjustSPIdx).WithImm10(int32(spIncrement)))
}

// emit translates one IR instruction: its children first (post-order),
// then instr itself, bracketed by the virtual
// operand-stack bookkeeping the children's results and this node's own
// result occupy. Returns the register holding instr's result, or 0 for
// a kindVoid opcode.
func (mc *MethodCompiler) emit(cm *CompiledMethod, mp *Mapper, instr *ir.Instruction) (isa.Reg, error) {
	args := make([]isa.Reg, len(instr.Children))
	for i, child := range instr.Children {
		r, err := mc.emit(cm, mp, child)
		if err != nil {
			return 0, err
		}
		args[i] = r
	}
	for range instr.Children {
		mp.popDepth()
	}

	entry, ok := lookupOpcode(instr.Op)
	if !ok {
		return 0, &UnknownOpcode{Method: cm.Source.Name, Op: instr.Op}
	}

	cm.offsetOf[instr] = cm.Buffer.Len()

	var dst isa.Reg
	var tooMany *TooManyRegisters
	func() {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(*TooManyRegisters); ok {
					tooMany = err
					return
				}
				panic(r)
			}
		}()
		if entry.kind == kindValue {
			dst = mp.pushDepth()
		}
		entry.fn(mp, instr, args, dst)
	}()
	if tooMany != nil {
		return 0, tooMany
	}

	// The branch/call instruction itself is always the first word its
	// translator emits, which is exactly what offsetOf[instr] recorded
	// above — so that's the fixup site, not wherever the buffer ends up
	// after any trailing bookkeeping instructions (e.g. translateCall's
	// post-call result copy).
	if instr.Op == ir.OpBr || instr.Op == ir.OpBrtrue || instr.Op == ir.OpBrfalse {
		cm.branchFixups = append(cm.branchFixups, branchFixup{Site: cm.offsetOf[instr], Target: instr.Target})
	}
	if instr.Op == ir.OpCall {
		cm.callFixups = append(cm.callFixups, callFixup{Site: cm.offsetOf[instr], Callee: instr.Callee})
	}

	return dst, nil
}

// resolveBranchFixups patches every recorded branch's 16-bit immediate
// field with the signed instruction-unit displacement from the branch
// site to its target's recorded offset. A target instruction that
// never received an offset (a branch to IR the walk never reached) is
// a malformed-IR condition distinct from an
// out-of-range displacement, reported as UnresolvedBranchTarget.
func (mc *MethodCompiler) resolveBranchFixups(cm *CompiledMethod) error {
	for _, fx := range cm.branchFixups {
		targetOffset, ok := cm.offsetOf[fx.Target]
		if !ok {
			return &UnresolvedBranchTarget{Method: cm.Source.Name}
		}
		disp := targetOffset - fx.Site
		if !isa.Fits16(int32(disp)) {
			return &BranchOutOfRange{
				Method:       cm.Source.Name,
				SourceOffset: fx.Site,
				TargetOffset: targetOffset,
				Displacement: disp,
			}
		}
		cm.Buffer.Patch(fx.Site, cm.Buffer.At(fx.Site).WithImm16(int32(disp)))
	}
	return nil
}

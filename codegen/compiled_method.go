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

import "github.com/opencell/spejit/ir"

// callFixup records a pending inter-method call: the call's SPE
// instruction index and the callee's identity, resolved later by the
// linker.
type callFixup struct {
	Site   int
	Callee ir.MethodToken
}

// branchFixup records a pending intra-method branch: the branch's SPE
// instruction index and the IR instruction it targets, resolved by
// MethodCompiler.EndFunction once every IR instruction has an offset.
type branchFixup struct {
	Site   int
	Target *ir.Instruction
}

// CompiledMethod is the ordered SPE instruction sequence produced for
// one IR method, plus the bookkeeping MethodCompiler needs to finish
// the job and the linker needs to link it.
type CompiledMethod struct {
	Source *ir.Method
	Buffer InstructionBuffer

	// offsetOf maps IR instruction identity to the index of its first
	// emitted SPE instruction, used for branch-target resolution.
	offsetOf map[*ir.Instruction]int

	branchFixups []branchFixup
	callFixups   []callFixup

	// MaxStackDepth is the peak virtual-stack height observed during
	// translation (locals + args + virtual operand stack), used to
	// size the frame.
	MaxStackDepth int

	// depth is the current virtual operand-stack height; stack slot i
	// lives in isa.LV(locals+args+i).
	depth int

	// prologue/epilogue placeholder indices, patched once
	// MaxStackDepth is final.
	prologueSaveSPIdx int
	prologueAdjustSPIdx int
	epilogueAdjustSPIdx int
}

// CallFixups exposes the pending call fixups to the linker.
func (m *CompiledMethod) CallFixups() []callFixup { return m.callFixups }

// Depth returns the current virtual operand-stack height.
func (m *CompiledMethod) Depth() int { return m.depth }

// LocalsArgsWindow returns the number of permanent registers consumed
// by locals+args, i.e. the base virtual-stack-slot index.
func (m *CompiledMethod) LocalsArgsWindow() int {
	return m.Source.NumLocals() + m.Source.NumParams()
}

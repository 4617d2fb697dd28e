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
	"testing"

	"github.com/opencell/spejit/ir"
	"github.com/opencell/spejit/isa"
)

func leaf(op ir.Opcode) *ir.Instruction { return &ir.Instruction{Op: op} }

// TestCompileEmptyMethodShape exercises the minimal method (no locals,
// no args, a bare ret): the six prologue/epilogue instructions for
// this case (save LR, save SP, decrement SP, increment SP, reload LR,
// indirect branch), with no register
// preservation in between since the window is zero.
func TestCompileEmptyMethodShape(t *testing.T) {
	m := &ir.Method{
		Name: "Empty",
		Body: []*ir.Instruction{{Op: ir.OpRet}},
	}
	cm, err := NewMethodCompiler().CompileMethod(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cm.Buffer.Len() != 6 {
		t.Fatalf("expected 6 instructions for an empty method, got %d", cm.Buffer.Len())
	}
	ops := []isa.Opcode{isa.OpSTQD, isa.OpSTQD, isa.OpAI, isa.OpAI, isa.OpLQD, isa.OpBI}
	for i, want := range ops {
		if got := cm.Buffer.At(i).Opcode(); got != want {
			t.Fatalf("instruction %d: got opcode %s, want %s", i, got, want)
		}
	}
}

// TestCompileAddTwoArguments covers the two-argument add scenario:
// retval(add(ldarg 0, ldarg 1)). Expects the add to land before the
// epilogue and the result to end up copied into the return register.
func TestCompileAddTwoArguments(t *testing.T) {
	m := &ir.Method{
		Name:   "AddArgs",
		Params: []ir.Param{{Name: "a"}, {Name: "b"}},
		Body: []*ir.Instruction{{
			Op: ir.OpRetVal,
			Children: []*ir.Instruction{{
				Op:       ir.OpAdd,
				Children: []*ir.Instruction{{Op: ir.OpLdArg, Index: 0}, {Op: ir.OpLdArg, Index: 1}},
			}},
		}},
	}
	cm, err := NewMethodCompiler().CompileMethod(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for i := 0; i < cm.Buffer.Len(); i++ {
		if cm.Buffer.At(i).Opcode() == isa.OpA {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected an `a` instruction somewhere in the compiled body")
	}
}

// TestCompileMul64PartialProducts checks that the 64-bit multiply
// translator emits at least one mpyu16 per nonzero-shift lane pair
// (16 total pairs, minus the three whose combined shift is >= 64), and
// that it runs to completion without panicking on register pressure.
func TestCompileMul64PartialProducts(t *testing.T) {
	m := &ir.Method{
		Name:   "Mul64",
		Params: []ir.Param{{Name: "a", Width64: true}, {Name: "b", Width64: true}},
		Body: []*ir.Instruction{{
			Op: ir.OpRetVal,
			Children: []*ir.Instruction{{
				Op:       ir.OpMul64,
				Children: []*ir.Instruction{{Op: ir.OpLdArg, Index: 0}, {Op: ir.OpLdArg, Index: 1}},
			}},
		}},
	}
	cm, err := NewMethodCompiler().CompileMethod(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for i := 0; i < cm.Buffer.Len(); i++ {
		if cm.Buffer.At(i).Opcode() == isa.OpMPYU16 {
			count++
		}
	}
	if count != 10 {
		t.Fatalf("expected 10 partial products (16 lane pairs minus the 6 whose shift is >= 64 bits), got %d", count)
	}
}

// TestCompileMul32PreservesOperandRegisters guards against the
// operand-aliasing hazard that emit's pop-before-translate sequencing
// creates: once mul32's children are popped off the virtual stack,
// their registers are free for reuse by dst or by the translator's own
// temp() calls, so a naive reader of args[0]/args[1] risks having one
// operand clobbered by the translator's own scratch math before it is
// fully consumed. Checks that the translator's opening move is copying
// both operands into two distinct registers, before any other write
// can land on the registers the children vacated.
func TestCompileMul32PreservesOperandRegisters(t *testing.T) {
	mul := &ir.Instruction{
		Op:       ir.OpMul,
		Children: []*ir.Instruction{{Op: ir.OpLdArg, Index: 0}, {Op: ir.OpLdArg, Index: 1}},
	}
	ret := &ir.Instruction{Op: ir.OpRetVal, Children: []*ir.Instruction{mul}}
	m := &ir.Method{
		Name:   "Mul32",
		Params: []ir.Param{{Name: "a"}, {Name: "b"}},
		Body:   []*ir.Instruction{ret},
	}
	cm, err := NewMethodCompiler().CompileMethod(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// offsetOf[mul] is where translateMul32's own instructions start.
	// Both ldarg children push their copy of the argument onto the
	// virtual stack before mul32 runs, landing in LV(window) and
	// LV(window+1) — exactly the registers emit's pop-before-translate
	// sequencing frees and hands right back out to dst/temp(), so the
	// very first thing mul32 emits must be copying both out before
	// anything (dst, its mask temp) can land on and overwrite one of
	// them.
	start := cm.offsetOf[mul]
	window := cm.LocalsArgsWindow()
	argA, argB := isa.LV(window), isa.LV(window+1)

	first, second := cm.Buffer.At(start), cm.Buffer.At(start+1)
	if first.Opcode() != isa.OpLR || second.Opcode() != isa.OpLR {
		t.Fatalf("expected mul32 to open with two `lr` copies, got %s then %s", first.Opcode(), second.Opcode())
	}
	gotSources := map[isa.Reg]bool{first.RA(): true, second.RA(): true}
	if !gotSources[argA] || !gotSources[argB] {
		t.Fatalf("expected the opening copies to read from %d and %d, got %d and %d", argA, argB, first.RA(), second.RA())
	}
	if first.RT() == second.RT() {
		t.Fatalf("both operands were copied into the same register %d, one copy overwrote the other", first.RT())
	}
}

// TestCompileVoidBodySeedsMaxStackDepth covers a method with locals and
// args but a body that never pushes a virtual-stack value (stloc/ret
// only): MaxStackDepth must still reflect the locals+args window
// emitPrologue spills into frame slots 2..window+1, not the zero value
// pushDepth would otherwise leave it at.
func TestCompileVoidBodySeedsMaxStackDepth(t *testing.T) {
	m := &ir.Method{
		Name:   "VoidBody",
		Params: []ir.Param{{Name: "a"}},
		Locals: []ir.Local{{Name: "v"}},
		Body:   []*ir.Instruction{{Op: ir.OpRet}},
	}
	cm, err := NewMethodCompiler().CompileMethod(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	window := cm.LocalsArgsWindow()
	if cm.MaxStackDepth < window+2 {
		t.Fatalf("expected MaxStackDepth >= %d (window+2), got %d", window+2, cm.MaxStackDepth)
	}
}

// TestCompileTooManyLocalsFails covers the TooManyRegisters scenario:
// a method whose locals+args exceeds the 47-register preserved window
// must fail before emitting anything.
func TestCompileTooManyLocalsFails(t *testing.T) {
	locals := make([]ir.Local, 48)
	for i := range locals {
		locals[i] = ir.Local{Name: "v"}
	}
	m := &ir.Method{Name: "TooBig", Locals: locals, Body: []*ir.Instruction{{Op: ir.OpRet}}}
	_, err := NewMethodCompiler().CompileMethod(m)
	if err == nil {
		t.Fatalf("expected TooManyRegisters, got nil")
	}
	if _, ok := err.(*TooManyRegisters); !ok {
		t.Fatalf("expected *TooManyRegisters, got %T (%v)", err, err)
	}
}

// TestCompileUnknownOpcodeFails covers the UnknownOpcode scenario.
func TestCompileUnknownOpcodeFails(t *testing.T) {
	m := &ir.Method{Name: "Bogus", Body: []*ir.Instruction{leaf(ir.Opcode("sprinkle"))}}
	_, err := NewMethodCompiler().CompileMethod(m)
	if err == nil {
		t.Fatalf("expected UnknownOpcode, got nil")
	}
	if uo, ok := err.(*UnknownOpcode); !ok {
		t.Fatalf("expected *UnknownOpcode, got %T (%v)", err, err)
	} else if uo.Op != ir.Opcode("sprinkle") {
		t.Fatalf("expected Op %q, got %q", "sprinkle", uo.Op)
	}
}

// TestResolveBranchFixupsPatchesForwardBranch checks that a forward
// conditional branch's immediate ends up as the correct signed
// instruction-unit displacement once its target has been translated.
func TestResolveBranchFixupsPatchesForwardBranch(t *testing.T) {
	target := &ir.Instruction{Op: ir.OpRet}
	cond := &ir.Instruction{Op: ir.OpLdcI4, Const: 1}
	branch := &ir.Instruction{Op: ir.OpBrtrue, Children: []*ir.Instruction{cond}, Target: target}
	m := &ir.Method{Name: "Fwd", Body: []*ir.Instruction{branch, target}}

	cm, err := NewMethodCompiler().CompileMethod(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	site := cm.offsetOf[branch]
	want := cm.offsetOf[target] - site
	if got := int(cm.Buffer.At(site).Imm16()); got != want {
		t.Fatalf("branch displacement: got %d, want %d", got, want)
	}
}

// TestResolveBranchFixupsUnresolvedTarget covers malformed IR: a branch
// whose target instruction is never reachable from Body.
func TestResolveBranchFixupsUnresolvedTarget(t *testing.T) {
	target := &ir.Instruction{Op: ir.OpRet} // never placed into Body
	branch := &ir.Instruction{Op: ir.OpBr, Target: target}
	m := &ir.Method{Name: "Dangling", Body: []*ir.Instruction{branch}}

	_, err := NewMethodCompiler().CompileMethod(m)
	if _, ok := err.(*UnresolvedBranchTarget); !ok {
		t.Fatalf("expected *UnresolvedBranchTarget, got %T (%v)", err, err)
	}
}

// TestCallFixupsRecordCallee checks that a call instruction leaves
// exactly one callFixup with the right callee token.
func TestCallFixupsRecordCallee(t *testing.T) {
	call := &ir.Instruction{Op: ir.OpCall, Callee: ir.MethodToken(42)}
	m := &ir.Method{Name: "Caller", Body: []*ir.Instruction{{Op: ir.OpRetVal, Children: []*ir.Instruction{call}}}}

	cm, err := NewMethodCompiler().CompileMethod(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixups := cm.CallFixups()
	if len(fixups) != 1 {
		t.Fatalf("expected 1 call fixup, got %d", len(fixups))
	}
	if fixups[0].Callee != ir.MethodToken(42) {
		t.Fatalf("expected callee token 42, got %d", fixups[0].Callee)
	}
	if cm.Buffer.At(fixups[0].Site).Opcode() != isa.OpBRSL {
		t.Fatalf("call fixup site does not point at a brsl instruction")
	}
}

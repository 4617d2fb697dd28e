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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/opencell/spejit/codegen"
	"github.com/opencell/spejit/ir"
	"github.com/opencell/spejit/isa"
)

func compileOrFatal(t *testing.T, m *ir.Method) *codegen.CompiledMethod {
	t.Helper()
	cm, err := codegen.NewMethodCompiler().CompileMethod(m)
	if err != nil {
		t.Fatalf("unexpected compile error for %q: %v", m.Name, err)
	}
	return cm
}

func TestLinkReservesHeaderAndEmitsBootloaderFirst(t *testing.T) {
	a := &ir.Method{Name: "A", Token: 1, Body: []*ir.Instruction{{Op: ir.OpRet}}}
	cmA := compileOrFatal(t, a)

	img, err := NewLinker().Link([]*codegen.CompiledMethod{cmA})
	if err != nil {
		t.Fatalf("unexpected link error: %v", err)
	}
	if img.Buffer.Len() < 4 {
		t.Fatalf("image too short to contain the reserved header")
	}
	if img.Buffer.At(0).Opcode() != isa.OpTrap {
		t.Fatalf("expected slot 0 to be a trap, got %s", img.Buffer.At(0).Opcode())
	}
	if isa.BootloaderStartOffset != 16 {
		t.Fatalf("internal: BootloaderStartOffset drifted from its documented value")
	}
}

func TestLinkTwoMethodImageWiresCallThroughHandler(t *testing.T) {
	call := &ir.Instruction{Op: ir.OpCall, Callee: ir.MethodToken(2)}
	a := &ir.Method{Name: "A", Token: 1, Body: []*ir.Instruction{{Op: ir.OpRetVal, Children: []*ir.Instruction{call}}}}
	b := &ir.Method{Name: "B", Token: 2, Body: []*ir.Instruction{
		{Op: ir.OpRetVal, Children: []*ir.Instruction{{Op: ir.OpLdcI4, Const: 5}}},
	}}
	cmA := compileOrFatal(t, a)
	cmB := compileOrFatal(t, b)

	img, err := NewLinker().Link([]*codegen.CompiledMethod{cmA, cmB})
	if err != nil {
		t.Fatalf("unexpected link error: %v", err)
	}

	// The bootloader's only brsl is its final entry branch; its
	// resolved displacement must point at A's base offset, the first
	// input method.
	var bootloaderBrsl int = -1
	for i := 0; i < img.CallHandlerOffset; i++ {
		if img.Buffer.At(i).Opcode() == isa.OpBRSL {
			bootloaderBrsl = i
		}
	}
	if bootloaderBrsl < 0 {
		t.Fatalf("expected exactly one brsl in the bootloader region")
	}
	wantDisp := int32((img.EntryOffset - img.CallHandlerOffset) + 2)
	if got := img.Buffer.At(bootloaderBrsl).Imm16(); got != wantDisp {
		t.Fatalf("bootloader entry displacement = %d, want %d", got, wantDisp)
	}

	aOffset, ok := img.MethodIndex.Get(methodOffset{Offset: img.EntryOffset})
	if !ok || aOffset.Token != 1 {
		t.Fatalf("expected method A indexed at EntryOffset, got %#v ok=%v", aOffset, ok)
	}

	fixups := cmA.CallFixups()
	if len(fixups) != 1 {
		t.Fatalf("expected 1 call fixup in A, got %d", len(fixups))
	}
	site := img.EntryOffset + fixups[0].Site
	wantCallDisp := int32(img.CallHandlerOffset - site)
	if got := img.Buffer.At(site).Imm16(); got != wantCallDisp {
		t.Fatalf("call-site displacement = %d, want %d", got, wantCallDisp)
	}
	if img.Buffer.At(site).Opcode() != isa.OpBRSL {
		t.Fatalf("expected the patched call site to still be a brsl")
	}
}

// TestBootloaderRestoresSelfModifyingWord checks the "idempotent
// bootloader" law structurally: the self-modifying lqd
// that copies arguments into their ABI registers must be written back
// to its pristine RT=ArgBase form before the bootloader falls through
// to brsl, so a second invocation of the same image starts its copy
// loop from the same state as the first.
func TestBootloaderRestoresSelfModifyingWord(t *testing.T) {
	a := &ir.Method{Name: "A", Token: 1, Body: []*ir.Instruction{{Op: ir.OpRet}}}
	cmA := compileOrFatal(t, a)
	img, err := NewLinker().Link([]*codegen.CompiledMethod{cmA})
	if err != nil {
		t.Fatalf("unexpected link error: %v", err)
	}

	selfModIdx := -1
	for i := 0; i < img.CallHandlerOffset; i++ {
		instr := img.Buffer.At(i)
		if instr.Opcode() == isa.OpLQD && instr.RT() == isa.ArgBase {
			selfModIdx = i
			break
		}
	}
	if selfModIdx < 0 {
		t.Fatalf("expected a self-modifying lqd targeting ArgBase in the bootloader")
	}
	pristine := img.Buffer.At(selfModIdx)

	restoreIdx := -1
	brslIdx := -1
	for i := 0; i < img.CallHandlerOffset; i++ {
		if img.Buffer.At(i).Opcode() == isa.OpBRSL {
			brslIdx = i
		}
	}
	if brslIdx < 0 {
		t.Fatalf("expected the bootloader's entry brsl")
	}
	for i := brslIdx - 1; i >= 0; i-- {
		instr := img.Buffer.At(i)
		if instr.Opcode() == isa.OpSTQD && instr.Imm10() == int32(selfModIdx) {
			restoreIdx = i
			break
		}
	}
	if restoreIdx < 0 {
		t.Fatalf("expected a stqd writing back to the self-modifying slot before brsl")
	}

	// The value stqd writes back is built by loadConst32 right after
	// the self-modifying lqd is first emitted, before anything in the
	// loop can have mutated it, so it must equal the pristine word.
	restoreSrc := img.Buffer.At(restoreIdx).RT()
	loadedVal, ok := decodeLoadConst32(&img.Buffer, selfModIdx+1, restoreSrc)
	if !ok {
		t.Fatalf("expected a loadConst32 sequence building the restore value right after the self-modifying lqd")
	}
	if loadedVal != uint32(pristine) {
		t.Fatalf("restore value %#x does not reproduce the pristine self-modifying word %#x", loadedVal, uint32(pristine))
	}
}

// decodeLoadConst32 recognizes the ila/shlqi/ila/or sequence
// loadConst32 emits into dst starting at idx, and returns the 32-bit
// constant it builds.
func decodeLoadConst32(buf *codegen.InstructionBuffer, idx int, dst isa.Reg) (uint32, bool) {
	if idx+3 >= buf.Len() {
		return 0, false
	}
	ila1 := buf.At(idx)
	shl := buf.At(idx + 1)
	ila2 := buf.At(idx + 2)
	or := buf.At(idx + 3)
	if ila1.Opcode() != isa.OpILA || ila1.RT() != dst {
		return 0, false
	}
	if shl.Opcode() != isa.OpSHLQI || shl.RT() != dst || shl.RA() != dst {
		return 0, false
	}
	if ila2.Opcode() != isa.OpILA {
		return 0, false
	}
	if or.Opcode() != isa.OpOR || or.RT() != dst || or.RA() != dst || or.RB() != ila2.RT() {
		return 0, false
	}
	hi := uint32(ila1.Imm16()) & 0xFFFF
	lo := uint32(ila2.Imm16()) & 0xFFFF
	return hi<<16 | lo, true
}

func TestLinkMissingCalleeFails(t *testing.T) {
	call := &ir.Instruction{Op: ir.OpCall, Callee: ir.MethodToken(99)}
	a := &ir.Method{Name: "A", Token: 1, Body: []*ir.Instruction{{Op: ir.OpRetVal, Children: []*ir.Instruction{call}}}}
	cmA := compileOrFatal(t, a)

	_, err := NewLinker().Link([]*codegen.CompiledMethod{cmA})
	if err == nil {
		t.Fatalf("expected an error for a call to a method not in the linked set")
	}
	var missing *codegen.MissingCallee
	if !asMissingCallee(err, &missing) {
		t.Fatalf("expected *codegen.MissingCallee, got %T: %v", err, err)
	}
	if missing.Callee != 99 {
		t.Fatalf("expected callee token 99, got %d", missing.Callee)
	}
}

func asMissingCallee(err error, out **codegen.MissingCallee) bool {
	if mc, ok := err.(*codegen.MissingCallee); ok {
		*out = mc
		return true
	}
	return false
}

func TestWriteRawRoundTripsBigEndian(t *testing.T) {
	a := &ir.Method{Name: "A", Token: 1, Body: []*ir.Instruction{{Op: ir.OpRet}}}
	cmA := compileOrFatal(t, a)
	img, err := NewLinker().Link([]*codegen.CompiledMethod{cmA})
	if err != nil {
		t.Fatalf("unexpected link error: %v", err)
	}

	var out bytes.Buffer
	if err := img.WriteRaw(&out); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	words := img.Buffer.Words()
	if out.Len() != len(words)*isa.InstructionSize {
		t.Fatalf("serialized length = %d, want %d", out.Len(), len(words)*isa.InstructionSize)
	}
	raw := out.Bytes()
	for i, w := range words {
		got := binary.BigEndian.Uint32(raw[i*4 : i*4+4])
		if got != uint32(w) {
			t.Fatalf("word %d = 0x%08x, want 0x%08x", i, got, uint32(w))
		}
	}
}

func TestWriteDisassemblyMarksFunctionEntries(t *testing.T) {
	a := &ir.Method{Name: "Answer", Token: 1, Body: []*ir.Instruction{{Op: ir.OpRet}}}
	cmA := compileOrFatal(t, a)
	img, err := NewLinker().Link([]*codegen.CompiledMethod{cmA})
	if err != nil {
		t.Fatalf("unexpected link error: %v", err)
	}

	var out bytes.Buffer
	if err := img.WriteDisassembly(&out); err != nil {
		t.Fatalf("unexpected disassembly error: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("# Function entry: Answer")) {
		t.Fatalf("expected a Function entry marker for Answer, got:\n%s", out.String())
	}
}

func TestWriteConcurrentProducesIdenticalRawBytes(t *testing.T) {
	a := &ir.Method{Name: "A", Token: 1, Body: []*ir.Instruction{{Op: ir.OpRet}}}
	cmA := compileOrFatal(t, a)
	img, err := NewLinker().Link([]*codegen.CompiledMethod{cmA})
	if err != nil {
		t.Fatalf("unexpected link error: %v", err)
	}

	var sequential, concurrentRaw, concurrentDisasm bytes.Buffer
	if err := img.WriteRaw(&sequential); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := img.WriteConcurrent(&concurrentRaw, &concurrentDisasm); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(sequential.Bytes(), concurrentRaw.Bytes()) {
		t.Fatalf("concurrent raw output diverged from the sequential pass")
	}
	if concurrentDisasm.Len() == 0 {
		t.Fatalf("expected the disassembly sink to have received output")
	}
}

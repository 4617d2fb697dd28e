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

// Package link assembles the bootloader, call handler, and every
// compiled method into one final SPE instruction image: it computes
// method base offsets, patches the bootloader's entry branch and
// every inter-method call site, and serializes the result big-endian,
// optionally alongside a disassembly text sink.
package link

import (
	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/opencell/spejit/codegen"
	"github.com/opencell/spejit/ir"
	"github.com/opencell/spejit/isa"
)

// methodOffset is one entry of the base-offset index, ordered by
// offset so "which method owns this instruction" is an O(log n)
// range lookup rather than a linear scan.
type methodOffset struct {
	Offset int
	Name   string
	Token  ir.MethodToken
}

func lessByOffset(a, b methodOffset) bool { return a.Offset < b.Offset }

// Image is the fully linked, immutable instruction stream plus the
// bookkeeping needed to serialize it.
type Image struct {
	Buffer            codegen.InstructionBuffer
	MethodIndex       *btree.BTreeG[methodOffset]
	EntryOffset       int
	CallHandlerOffset int
	BuildID           uuid.UUID
}

// MethodAt returns the method whose code contains instruction index
// pc, the greatest indexed base offset not exceeding pc.
func (img *Image) MethodAt(pc int) (methodOffset, bool) {
	var found methodOffset
	ok := false
	img.MethodIndex.DescendLessOrEqual(methodOffset{Offset: pc}, func(mo methodOffset) bool {
		found = mo
		ok = true
		return false
	})
	return found, ok
}

// MethodSymbol is the exported view of one indexed method base offset,
// for consumers outside this package (elfimage's symbol table, a
// future debugger) that cannot name the unexported methodOffset type
// btree.BTreeG's iterator callbacks require.
type MethodSymbol struct {
	Offset int
	Name   string
	Token  ir.MethodToken
}

// Methods returns every indexed method in ascending offset order.
func (img *Image) Methods() []MethodSymbol {
	out := make([]MethodSymbol, 0, img.MethodIndex.Len())
	img.MethodIndex.Ascend(func(mo methodOffset) bool {
		out = append(out, MethodSymbol{Offset: mo.Offset, Name: mo.Name, Token: mo.Token})
		return true
	})
	return out
}

// Linker assembles an ordered set of CompiledMethods into one Image.
// The first method in input order is the program entry point.
type Linker struct{}

// NewLinker returns a ready Linker. It carries no configuration of
// its own; one Link call produces one fully-formed Image or an error,
// the same "no leftover state between calls" contract
// codegen.MethodCompiler follows.
func NewLinker() *Linker { return &Linker{} }

// Link performs the seven-step assembly: reserve the header, emit the
// bootloader and call handler, lay out each method in order, index
// their base offsets, patch every branch and call-site fixup, and
// hand back the finished Image.
func (lk *Linker) Link(methods []*codegen.CompiledMethod) (*Image, error) {
	img := &Image{
		MethodIndex: btree.NewG[methodOffset](8, lessByOffset),
		BuildID:     uuid.New(),
	}

	// Reserved header: trap, argument count, argument pointer,
	// padding. The count and pointer words hold host-supplied data,
	// not instructions — the host overwrites them before
	// execution — so they're reserved as bare zero words rather than
	// any particular encoded opcode.
	img.Buffer.Append(isa.Encode(isa.OpTrap, 0, 0, 0))
	img.Buffer.Append(isa.Instruction(0))
	img.Buffer.Append(isa.Instruction(0))
	img.Buffer.Append(isa.Instruction(0))

	layout := emitBootloader(&img.Buffer)

	img.CallHandlerOffset = img.Buffer.Len()
	img.Buffer.Append(isa.Encode(isa.OpStop, 0, 0, 0))

	entryFunctionOffset := img.Buffer.Len()
	img.EntryOffset = entryFunctionOffset

	entryDisp := (entryFunctionOffset - img.CallHandlerOffset) + 2
	if !isa.Fits16(int32(entryDisp)) {
		return nil, &codegen.BranchOutOfRange{
			Method:       "<bootloader>",
			SourceOffset: layout.branchAndLinkIdx,
			TargetOffset: entryFunctionOffset,
			Displacement: entryDisp,
		}
	}
	img.Buffer.Patch(layout.branchAndLinkIdx, img.Buffer.At(layout.branchAndLinkIdx).WithImm16(int32(entryDisp)))

	baseOffsets := make(map[ir.MethodToken]int, len(methods))
	methodBase := make([]int, len(methods))
	for i, cm := range methods {
		base := img.Buffer.Len()
		methodBase[i] = base
		baseOffsets[cm.Source.Token] = base
		img.MethodIndex.ReplaceOrInsert(methodOffset{Offset: base, Name: cm.Source.Name, Token: cm.Source.Token})
		for _, w := range cm.Buffer.Words() {
			img.Buffer.Append(w)
		}
	}

	for i, cm := range methods {
		base := methodBase[i]
		for _, fx := range cm.CallFixups() {
			if _, ok := baseOffsets[fx.Callee]; !ok {
				return nil, &codegen.MissingCallee{Caller: cm.Source.Name, Callee: fx.Callee}
			}
			site := base + fx.Site
			disp := img.CallHandlerOffset - site
			if !isa.Fits16(int32(disp)) {
				return nil, &codegen.BranchOutOfRange{
					Method:       cm.Source.Name,
					SourceOffset: site,
					TargetOffset: img.CallHandlerOffset,
					Displacement: disp,
				}
			}
			img.Buffer.Patch(site, img.Buffer.At(site).WithImm16(int32(disp)))
		}
	}

	return img, nil
}

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

package ir

// Opcode identifies a CIL instruction. Only the subset the code
// generator's OpCodeMapper table (package codegen) actually translates
// is enumerated; an IR tree may reference an opcode this package does
// not know, in which case the mapper reports UnknownOpcode at compile
// time rather than at parse time.
type Opcode string

const (
	OpNop      Opcode = "nop"
	OpLdArg    Opcode = "ldarg"    // Operand: argument index
	OpLdLoc    Opcode = "ldloc"    // Operand: local index
	OpStLoc    Opcode = "stloc"    // Operand: local index; Children[0] = value
	OpLdcI4    Opcode = "ldc.i4"   // Operand: int32 constant
	OpLdcI8    Opcode = "ldc.i8"   // Operand: int64 constant
	OpAdd      Opcode = "add"      // Children[0]+Children[1]
	OpAdd64    Opcode = "add64"    // 64-bit add; operand fits one 128-bit register, so this is the same add as OpAdd
	OpSub      Opcode = "sub"
	OpMul      Opcode = "mul"      // 32-bit multiply
	OpMul64    Opcode = "mul64"    // 64-bit multiply, four-lane 16-bit partial-product expansion
	OpAnd      Opcode = "and"
	OpOr       Opcode = "or"
	OpXor      Opcode = "xor"
	OpNeg      Opcode = "neg"      // Children[0]
	OpNot      Opcode = "not"      // Children[0]
	OpCeq      Opcode = "ceq"
	OpCgt      Opcode = "cgt"
	OpClt      Opcode = "clt"
	OpPop      Opcode = "pop"      // Children[0]; discards
	OpBr       Opcode = "br"       // Operand: *Instruction (unconditional branch target)
	OpBrtrue   Opcode = "brtrue"   // Children[0]; Operand: target
	OpBrfalse  Opcode = "brfalse"  // Children[0]; Operand: target
	OpCall     Opcode = "call"     // Children = arguments; Operand: MethodToken
	OpRet      Opcode = "ret"      // no children: void return
	OpRetVal   Opcode = "retval"   // Children[0]: return value
)

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

package isa

import "fmt"

// Disassemble renders a single instruction's mnemonic form, one line,
// no trailing newline. Used by the linker's optional disassembly sink.
func Disassemble(instr Instruction) string {
	op := instr.Opcode()
	switch op {
	case OpStop, OpTrap:
		return op.String()
	case OpLR, OpNOT:
		return fmt.Sprintf("%s $%d,$%d", op, instr.RT(), instr.RA())
	case OpIL, OpILA:
		return fmt.Sprintf("%s $%d,%d", op, instr.RT(), instr.Imm16())
	case OpA, OpSF, OpAND, OpOR, OpXOR, OpCEQ, OpCGT, OpMPYU16:
		return fmt.Sprintf("%s $%d,$%d,$%d", op, instr.RT(), instr.RA(), instr.RB())
	case OpAI, OpROTLI, OpSHLI, OpSHLQI, OpROTQBYI:
		return fmt.Sprintf("%s $%d,$%d,%d", op, instr.RT(), instr.RA(), instr.Imm10())
	case OpLQD, OpSTQD:
		return fmt.Sprintf("%s $%d,%d($%d)", op, instr.RT(), instr.Imm10(), instr.RA())
	case OpBR, OpBRA, OpBRSL:
		return fmt.Sprintf("%s %d", op, instr.Imm16())
	case OpBRZ, OpBRNZ:
		return fmt.Sprintf("%s $%d,%d", op, instr.RT(), instr.Imm16())
	case OpBI:
		return fmt.Sprintf("%s $%d", op, instr.RA())
	case OpBISL:
		return fmt.Sprintf("%s $%d,$%d", op, instr.RT(), instr.RA())
	default:
		return fmt.Sprintf("unknown 0x%08x", uint32(instr))
	}
}

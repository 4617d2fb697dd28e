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

// Opcode is the 8-bit SPE native opcode field. Only the subset of the
// real Cell SPU instruction set the code generator actually emits is
// enumerated, so this is a minimal, internally-consistent stand-in,
// not a full SPU ISA.
type Opcode uint8

const (
	OpStop   Opcode = iota // stop execution
	OpLR                   // lr rt,ra       : rt = ra            (register move)
	OpIL                   // il rt,I16      : rt = sext16(I16)    (immediate load)
	OpILA                  // ila rt,I16     : rt = zext16(I16)    (unsigned immediate load)
	OpA                    // a rt,ra,rb     : rt = ra + rb
	OpAI                   // ai rt,ra,I10   : rt = ra + sext10(I10)
	OpSF                   // sf rt,ra,rb    : rt = rb - ra
	OpAND                  // and rt,ra,rb
	OpOR                   // or rt,ra,rb
	OpXOR                  // xor rt,ra,rb
	OpNOT                  // not rt,ra      : rt = ^ra (RB field ignored)
	OpCEQ                  // ceq rt,ra,rb   : rt = (ra == rb) ? -1 : 0
	OpCGT                  // cgt rt,ra,rb   : rt = (ra >  rb) ? -1 : 0
	OpMPYU16               // mpyu16 rt,ra,rb: rt = (uint32)ra * (uint32)rb, 16-bit lanes
	OpROTLI                // rotli rt,ra,I10: rt = rotate-left(ra, I10 mod 32), used for <<16 lane shifts
	OpSHLI                 // shli rt,ra,I10 : rt = ra << I10 (logical, discards carry out of bit 31)
	OpSHLQI                // shlqi rt,ra,I10: rt = ra << I10, whole-register granularity (I10 in bits, 0-127), used to position a word into a wider quadword-held scalar
	OpROTQBYI              // rotqbyi rt,ra,I10: rt = ra rotated so that 32-bit word I10 of a loaded quadword lands in the preferred (scalar) slot; I10 counts 4-byte words, not bytes
	OpLQD                  // lqd rt,ra,I10  : rt = [SP(ra) + I10*16]  (load quadword displaced)
	OpSTQD                 // stqd rt,ra,I10 : [SP(ra) + I10*16] = rt  (store quadword displaced)
	OpBR                   // br I16         : pc += I16 (instruction units)
	OpBRA                  // bra I16        : pc = I16 (absolute, instruction units)
	OpBRZ                  // brz rt,I16     : if rt == 0 then pc += I16
	OpBRNZ                 // brnz rt,I16    : if rt != 0 then pc += I16
	OpBRSL                 // brsl rt,I16    : rt = pc+1; pc += I16  (branch relative, set link)
	OpBI                   // bi ra          : pc = ra (indirect branch, used to return via LR)
	OpBISL                 // bisl rt,ra     : rt = pc+1; pc = ra    (indirect call)
	OpTrap                 // trap           : reserved null-pointer canary (slot 0 of the image)
)

var mnemonics = map[Opcode]string{
	OpStop:   "stop",
	OpLR:     "lr",
	OpIL:     "il",
	OpILA:    "ila",
	OpA:      "a",
	OpAI:     "ai",
	OpSF:     "sf",
	OpAND:    "and",
	OpOR:     "or",
	OpXOR:    "xor",
	OpNOT:    "not",
	OpCEQ:    "ceq",
	OpCGT:    "cgt",
	OpMPYU16: "mpyu16",
	OpROTLI:  "rotli",
	OpSHLI:   "shli",
	OpSHLQI:  "shlqi",
	OpROTQBYI: "rotqbyi",
	OpLQD:    "lqd",
	OpSTQD:   "stqd",
	OpBR:     "br",
	OpBRA:    "bra",
	OpBRZ:    "brz",
	OpBRNZ:   "brnz",
	OpBRSL:   "brsl",
	OpBI:     "bi",
	OpBISL:   "bisl",
	OpTrap:   "trap",
}

// String renders the opcode's mnemonic, used by the disassembly sink.
func (op Opcode) String() string {
	if m, ok := mnemonics[op]; ok {
		return m
	}
	return "unknown"
}

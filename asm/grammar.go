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

// Package asm is a small, line-oriented textual syntax for CIL-like
// method bodies, parsed with github.com/launix-de/go-packrat
// combinators. It exists so the CLI and the test suite can construct
// ir.Method values from readable source text instead of hand-building
// trees; it is not a redefinition of the real CIL producer's contract.
package asm

import (
	packrat "github.com/launix-de/go-packrat/v2"
)

// atom is a thin helper around
// packrat.NewAtomParser(literal, caseInsensitive, skipWhitespace),
// always case-sensitive with whitespace skipping on.
func atom(literal string) packrat.Parser {
	return packrat.NewAtomParser(literal, false, true)
}

var (
	identParser = packrat.NewRegexParser(`[A-Za-z_][A-Za-z0-9_]*`, false, true)
	numberParser = packrat.NewRegexParser(`-?[0-9]+`, false, true)
	boolParser = packrat.NewRegexParser(`true|false`, false, true)

	// dotIndexed matches ldarg.N / ldloc.N / stloc.N as one token; the
	// opcode and its inline index are split apart in build.go once the
	// grammar has matched, rather than being two separate grammar rules,
	// since the dot is not itself a token boundary elsewhere in the
	// syntax.
	dotIndexed = packrat.NewRegexParser(`(ldarg|ldloc|stloc)\.[0-9]+`, false, true)

	ldcI4Line = packrat.NewAndParser(atom("ldc.i4"), numberParser)
	ldcI8Line = packrat.NewAndParser(atom("ldc.i8"), numberParser)
	callLine  = packrat.NewAndParser(atom("call"), numberParser)
	brLine    = packrat.NewAndParser(
		packrat.NewOrParser(atom("brtrue"), atom("brfalse"), atom("br")),
		identParser,
	)

	// bareOpcodeLine covers every opcode with no operand at all. Order
	// matters in the alternation: add64 before add, mul64 before mul, so
	// the longer keyword is tried first.
	bareOpcodeLine = packrat.NewRegexParser(
		`add64|add|sub|mul64|mul|and|or|xor|neg|not|ceq|cgt|clt|pop|retval|ret|nop`,
		false, true,
	)

	labelLine = packrat.NewAndParser(identParser, atom(":"))

	instrLine = packrat.NewOrParser(labelLine, dotIndexed, ldcI4Line, ldcI8Line, callLine, brLine, bareOpcodeLine)

	header = packrat.NewAndParser(
		atom("method"), identParser, numberParser,
		atom("locals="), numberParser,
		atom("args="), numberParser,
		atom("zeroinit="), boolParser,
		atom("{"),
	)

	program = packrat.NewAndParser(header, packrat.NewKleeneParser(instrLine, packrat.NewEmptyParser()), atom("}"))
)

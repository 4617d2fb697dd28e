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

package asm

import "fmt"

// ParseError wraps a grammar-level failure from go-packrat (a method
// text that doesn't match the cilasm grammar at all) or a semantic
// failure the stack-simulation pass detects (an operand that doesn't
// parse as a number, an opcode the stack discipline can't balance).
// This is distinct from codegen's compile-time error taxonomy: asm's
// only job is to produce a well-formed ir.Method tree or fail
// outright; it performs no optimization and no validation beyond
// parse errors.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("asm: %s", e.Message)
}

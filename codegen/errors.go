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
	"fmt"

	"github.com/opencell/spejit/ir"
)

// All compile-time failures are distinct struct types implementing
// error, so callers can errors.As to the specific kind rather than
// string-matching a sentinel.

// UnknownOpcode reports a CIL opcode the translation table has no
// entry for.
type UnknownOpcode struct {
	Method string
	Op     ir.Opcode
}

func (e *UnknownOpcode) Error() string {
	return fmt.Sprintf("codegen: method %q uses unknown opcode %q", e.Method, e.Op)
}

// TooManyRegisters reports locals+args exceeding the preserved-register
// window (MAX_LV_REGISTERS = 47).
type TooManyRegisters struct {
	Method string
	Locals int
	Args   int
}

func (e *TooManyRegisters) Error() string {
	return fmt.Sprintf("codegen: method %q needs %d locals + %d args, exceeds the %d-register preserved window",
		e.Method, e.Locals, e.Args, maxPreservedRegisters)
}

// BranchOutOfRange reports a computed branch displacement that does
// not fit the 16-bit immediate field.
type BranchOutOfRange struct {
	Method           string
	SourceOffset     int
	TargetOffset     int
	Displacement     int
}

func (e *BranchOutOfRange) Error() string {
	return fmt.Sprintf("codegen: method %q branch at instruction %d to instruction %d has out-of-range displacement %d",
		e.Method, e.SourceOffset, e.TargetOffset, e.Displacement)
}

// UnresolvedBranchTarget reports a branch fixup whose target IR
// instruction was never emitted: malformed IR with a forward branch
// to a never-emitted target.
type UnresolvedBranchTarget struct {
	Method string
}

func (e *UnresolvedBranchTarget) Error() string {
	return fmt.Sprintf("codegen: method %q has a branch fixup whose target instruction was never emitted", e.Method)
}

// MissingCallee reports a call fixup whose callee is not present in
// the linker's input set (raised by package link, defined here so it
// sits alongside the rest of the taxonomy).
type MissingCallee struct {
	Caller string
	Callee ir.MethodToken
}

func (e *MissingCallee) Error() string {
	return fmt.Sprintf("codegen: method %q calls unresolved method token %d", e.Caller, e.Callee)
}

// StreamWriteFailure wraps an error from the output sink unchanged.
type StreamWriteFailure struct {
	Cause error
}

func (e *StreamWriteFailure) Error() string {
	return fmt.Sprintf("codegen: stream write failed: %v", e.Cause)
}

func (e *StreamWriteFailure) Unwrap() error { return e.Cause }

// TextSerializationFailure wraps an error from the disassembly text
// sink unchanged.
type TextSerializationFailure struct {
	Cause error
}

func (e *TextSerializationFailure) Error() string {
	return fmt.Sprintf("codegen: text serialization failed: %v", e.Cause)
}

func (e *TextSerializationFailure) Unwrap() error { return e.Cause }

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

import (
	"fmt"
	"strconv"
	"strings"

	packrat "github.com/launix-de/go-packrat/v2"

	"github.com/opencell/spejit/ir"
)

// Parse reads one cilasm method source and returns its ir.Method tree.
// Grounded on scm/packrat.go's ScmParser.Execute: build a Scanner with
// the library's own whitespace/comment skipper, run Parse against the
// root grammar rule, then walk the resulting Node tree into the target
// shape — here ir.Method instead of Scmer.
func Parse(source string) (*ir.Method, error) {
	scanner := packrat.NewScanner(source, packrat.SkipWhitespaceAndCommentsRegex)
	node, err := packrat.Parse(program, scanner)
	if err != nil {
		return nil, &ParseError{Message: err.Error()}
	}
	return build(node)
}

func build(progNode *packrat.Node) (*ir.Method, error) {
	header := progNode.Children[0]
	name := header.Children[1].Matched
	token, err := strconv.ParseUint(header.Children[2].Matched, 10, 32)
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid method token %q: %v", header.Children[2].Matched, err)}
	}
	numLocals, err := strconv.Atoi(header.Children[4].Matched)
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid locals count %q: %v", header.Children[4].Matched, err)}
	}
	numArgs, err := strconv.Atoi(header.Children[6].Matched)
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid args count %q: %v", header.Children[6].Matched, err)}
	}
	zeroInit := header.Children[8].Matched == "true"

	m := &ir.Method{
		Name:  name,
		Token: ir.MethodToken(token),
	}
	for i := 0; i < numLocals; i++ {
		m.Locals = append(m.Locals, ir.Local{Name: fmt.Sprintf("local%d", i), ZeroInit: zeroInit})
	}
	for i := 0; i < numArgs; i++ {
		m.Params = append(m.Params, ir.Param{Name: fmt.Sprintf("arg%d", i)})
	}

	b := &builder{labels: make(map[string]*ir.Instruction), pendingTarget: make(map[*ir.Instruction]string)}

	kleene := progNode.Children[1]
	for i := 0; i < len(kleene.Children); i += 2 {
		if err := b.step(kleene.Children[i]); err != nil {
			return nil, err
		}
	}
	if len(b.stack) != 0 {
		return nil, &ParseError{Message: fmt.Sprintf("method %q leaves %d value(s) on the stack with no consumer", name, len(b.stack))}
	}

	for instr, label := range b.pendingTarget {
		target, ok := b.labels[label]
		if !ok {
			return nil, &ParseError{Message: fmt.Sprintf("method %q branches to undefined label %q", name, label)}
		}
		instr.Target = target
	}

	m.Body = b.body
	return m, nil
}

// builder carries the stack-simulation state across the flat
// instruction stream: a virtual stack of not-yet-consumed
// value-producing nodes, the ordered list of root ("sink")
// instructions that becomes Method.Body, and label bookkeeping for
// forward and backward branches alike: operand-producing instructions
// are still the preceding lines on the implicit stack.
type builder struct {
	stack         []*ir.Instruction
	body          []*ir.Instruction
	labels        map[string]*ir.Instruction
	pendingLabel  string
	pendingTarget map[*ir.Instruction]string
}

func (b *builder) push(instr *ir.Instruction) {
	if b.pendingLabel != "" {
		b.labels[b.pendingLabel] = instr
		b.pendingLabel = ""
	}
	b.stack = append(b.stack, instr)
}

func (b *builder) sink(instr *ir.Instruction) {
	if b.pendingLabel != "" {
		b.labels[b.pendingLabel] = instr
		b.pendingLabel = ""
	}
	b.body = append(b.body, instr)
}

func (b *builder) pop1() (*ir.Instruction, error) {
	if len(b.stack) < 1 {
		return nil, &ParseError{Message: "opcode needs a value on the stack, but the stack is empty"}
	}
	v := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return v, nil
}

func (b *builder) pop2() (*ir.Instruction, *ir.Instruction, error) {
	if len(b.stack) < 2 {
		return nil, nil, &ParseError{Message: "opcode needs two values on the stack, but fewer are available"}
	}
	rhs := b.stack[len(b.stack)-1]
	lhs := b.stack[len(b.stack)-2]
	b.stack = b.stack[:len(b.stack)-2]
	return lhs, rhs, nil
}

// step processes one instrLine match: the OrParser wrapper node whose
// single child's Parser identity tells us which grammar alternative
// fired.
func (b *builder) step(wrapped *packrat.Node) error {
	alt := wrapped.Children[0]
	switch alt.Parser {
	case labelLine:
		b.pendingLabel = alt.Children[0].Matched
		return nil
	case dotIndexed:
		return b.dotIndexed(alt.Matched)
	case ldcI4Line:
		return b.ldc(alt, false)
	case ldcI8Line:
		return b.ldc(alt, true)
	case callLine:
		n, err := strconv.ParseUint(alt.Children[1].Matched, 10, 32)
		if err != nil {
			return &ParseError{Message: fmt.Sprintf("invalid call token %q: %v", alt.Children[1].Matched, err)}
		}
		b.push(&ir.Instruction{Op: ir.OpCall, Callee: ir.MethodToken(n)})
		return nil
	case brLine:
		return b.branch(alt)
	case bareOpcodeLine:
		return b.bare(alt.Matched)
	}
	return &ParseError{Message: "internal: unrecognized grammar alternative"}
}

func (b *builder) dotIndexed(matched string) error {
	parts := strings.SplitN(matched, ".", 2)
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return &ParseError{Message: fmt.Sprintf("invalid index in %q: %v", matched, err)}
	}
	switch parts[0] {
	case "ldarg":
		b.push(&ir.Instruction{Op: ir.OpLdArg, Index: idx})
	case "ldloc":
		b.push(&ir.Instruction{Op: ir.OpLdLoc, Index: idx})
	case "stloc":
		v, err := b.pop1()
		if err != nil {
			return err
		}
		b.sink(&ir.Instruction{Op: ir.OpStLoc, Index: idx, Children: []*ir.Instruction{v}})
	}
	return nil
}

func (b *builder) ldc(alt *packrat.Node, wide bool) error {
	n, err := strconv.ParseInt(alt.Children[1].Matched, 10, 64)
	if err != nil {
		return &ParseError{Message: fmt.Sprintf("invalid constant %q: %v", alt.Children[1].Matched, err)}
	}
	if wide {
		b.push(&ir.Instruction{Op: ir.OpLdcI8, Const: n})
	} else {
		b.push(&ir.Instruction{Op: ir.OpLdcI4, Const: n})
	}
	return nil
}

func (b *builder) branch(alt *packrat.Node) error {
	mnemonicNode := alt.Children[0].Children[0]
	label := alt.Children[1].Matched
	var instr *ir.Instruction
	switch mnemonicNode.Matched {
	case "br":
		instr = &ir.Instruction{Op: ir.OpBr}
	case "brtrue":
		v, err := b.pop1()
		if err != nil {
			return err
		}
		instr = &ir.Instruction{Op: ir.OpBrtrue, Children: []*ir.Instruction{v}}
	case "brfalse":
		v, err := b.pop1()
		if err != nil {
			return err
		}
		instr = &ir.Instruction{Op: ir.OpBrfalse, Children: []*ir.Instruction{v}}
	default:
		return &ParseError{Message: fmt.Sprintf("internal: unrecognized branch mnemonic %q", mnemonicNode.Matched)}
	}
	b.pendingTarget[instr] = label
	b.sink(instr)
	return nil
}

func (b *builder) bare(mnemonic string) error {
	switch mnemonic {
	case "nop":
		b.sink(&ir.Instruction{Op: ir.OpNop})
	case "ret":
		b.sink(&ir.Instruction{Op: ir.OpRet})
	case "pop":
		v, err := b.pop1()
		if err != nil {
			return err
		}
		b.sink(&ir.Instruction{Op: ir.OpPop, Children: []*ir.Instruction{v}})
	case "retval":
		v, err := b.pop1()
		if err != nil {
			return err
		}
		b.sink(&ir.Instruction{Op: ir.OpRetVal, Children: []*ir.Instruction{v}})
	case "neg", "not":
		v, err := b.pop1()
		if err != nil {
			return err
		}
		op := ir.OpNeg
		if mnemonic == "not" {
			op = ir.OpNot
		}
		b.push(&ir.Instruction{Op: op, Children: []*ir.Instruction{v}})
	default:
		lhs, rhs, err := b.pop2()
		if err != nil {
			return err
		}
		op, ok := binaryOpcodes[mnemonic]
		if !ok {
			return &ParseError{Message: fmt.Sprintf("internal: unrecognized opcode %q", mnemonic)}
		}
		b.push(&ir.Instruction{Op: op, Children: []*ir.Instruction{lhs, rhs}})
	}
	return nil
}

var binaryOpcodes = map[string]ir.Opcode{
	"add":   ir.OpAdd,
	"add64": ir.OpAdd64,
	"sub":   ir.OpSub,
	"mul":   ir.OpMul,
	"mul64": ir.OpMul64,
	"and":   ir.OpAnd,
	"or":    ir.OpOr,
	"xor":   ir.OpXor,
	"ceq":   ir.OpCeq,
	"cgt":   ir.OpCgt,
	"clt":   ir.OpClt,
}

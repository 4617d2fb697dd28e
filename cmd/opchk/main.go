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
/*
	opchk statically audits two opcode tables against their own enums:
	package codegen's register() calls against package ir's CIL-like
	Opcode constants, and package isa's mnemonics disassembly map
	against its own native Opcode constants. It never runs or imports
	the module under audit as a program, only reads its syntax tree, so
	it stays accurate even while the code generator is mid-change and
	does not yet build.
*/
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"os"

	"golang.org/x/tools/go/packages"
)

func main() {
	dir := "."
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Dir:  dir,
	}
	pkgs, err := packages.Load(cfg, "./ir", "./codegen", "./isa")
	if err != nil {
		fmt.Fprintln(os.Stderr, "opchk: loading packages:", err)
		os.Exit(1)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}

	var irPkg, codegenPkg, isaPkg *packages.Package
	for _, p := range pkgs {
		switch {
		case hasSuffix(p.PkgPath, "/ir") || p.PkgPath == "ir":
			irPkg = p
		case hasSuffix(p.PkgPath, "/codegen") || p.PkgPath == "codegen":
			codegenPkg = p
		case hasSuffix(p.PkgPath, "/isa") || p.PkgPath == "isa":
			isaPkg = p
		}
	}
	if irPkg == nil || codegenPkg == nil || isaPkg == nil {
		fmt.Fprintln(os.Stderr, "opchk: could not resolve the ir, codegen, and isa packages")
		os.Exit(1)
	}

	clean := true

	declared := constOpcodes(irPkg, "Opcode")
	registered := registeredOpcodes(codegenPkg)
	for op := range declared {
		if !registered[op] {
			fmt.Printf("opchk: ir.%s has no codegen.register() call\n", op)
			clean = false
		}
	}
	for op := range registered {
		if !declared[op] {
			fmt.Printf("opchk: codegen registers %q, which ir/opcode.go does not declare\n", op)
			clean = false
		}
	}

	native := constOpcodes(isaPkg, "Opcode")
	mnemonicked := mnemonicKeys(isaPkg)
	for op := range native {
		if !mnemonicked[op] {
			fmt.Printf("opchk: isa.%s has no entry in the mnemonics table\n", op)
			clean = false
		}
	}
	for op := range mnemonicked {
		if !native[op] {
			fmt.Printf("opchk: mnemonics table references %q, which isa/opcodes.go does not declare\n", op)
			clean = false
		}
	}

	if clean {
		fmt.Printf("opchk: %d CIL opcodes, %d SPE opcodes, all covered\n", len(declared), len(native))
		return
	}
	os.Exit(1)
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// constOpcodes walks every `const (...)` block in pkg and returns the
// set of declared identifiers typed typeName. ir/opcode.go repeats the
// type on every line ("Name Opcode = \"value\""); isa/opcodes.go's
// iota block states it once and lets every following ValueSpec in the
// same GenDecl inherit it implicitly, so the type carries forward
// across specs within one const(...) block until a spec states its
// own.
func constOpcodes(pkg *packages.Package, typeName string) map[string]bool {
	out := make(map[string]bool)
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.CONST {
				continue
			}
			active := false
			for _, spec := range gen.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				if ident, ok := vs.Type.(*ast.Ident); ok {
					active = ident.Name == typeName
				}
				if !active {
					continue
				}
				for _, name := range vs.Names {
					if name.Name != "_" {
						out[name.Name] = true
					}
				}
			}
		}
	}
	return out
}

// mnemonicKeys walks the composite literal assigned to the package
// isa variable named "mnemonics" and returns the set of its key
// identifiers (e.g. "OpStop").
func mnemonicKeys(pkg *packages.Package) map[string]bool {
	out := make(map[string]bool)
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.VAR {
				continue
			}
			for _, spec := range gen.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok || len(vs.Names) != 1 || vs.Names[0].Name != "mnemonics" {
					continue
				}
				for _, value := range vs.Values {
					lit, ok := value.(*ast.CompositeLit)
					if !ok {
						continue
					}
					for _, elt := range lit.Elts {
						kv, ok := elt.(*ast.KeyValueExpr)
						if !ok {
							continue
						}
						if ident, ok := kv.Key.(*ast.Ident); ok {
							out[ident.Name] = true
						}
					}
				}
			}
		}
	}
	return out
}

// registeredOpcodes walks every call expression in package codegen
// whose callee is named "register" and whose first argument is a
// selector of the form ir.<Name>, returning the set of <Name>s.
func registeredOpcodes(pkg *packages.Package) map[string]bool {
	out := make(map[string]bool)
	for _, file := range pkg.Syntax {
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			fnIdent, ok := call.Fun.(*ast.Ident)
			if !ok || fnIdent.Name != "register" {
				return true
			}
			if len(call.Args) == 0 {
				return true
			}
			sel, ok := call.Args[0].(*ast.SelectorExpr)
			if !ok {
				return true
			}
			pkgIdent, ok := sel.X.(*ast.Ident)
			if !ok || pkgIdent.Name != "ir" {
				return true
			}
			out[sel.Sel.Name] = true
			return true
		})
	}
	return out
}

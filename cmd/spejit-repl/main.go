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
	spejit-repl is an interactive cilasm shell: type one "method ... { ...
	}" block at a time, it gets compiled, linked alone, and disassembled
	back at you.
*/
package main

import (
	"bytes"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dc0d/onexit"

	"github.com/opencell/spejit/asm"
	"github.com/opencell/spejit/codegen"
	"github.com/opencell/spejit/link"
)

const newprompt = "\033[32mcilasm>\033[0m "
const contprompt = "\033[32m   ...>\033[0m "
const resultprompt = "\033[31m=\033[0m "

func main() {
	fmt.Print(`spejit-repl Copyright (C) 2024-2026   Carl-Philip Hänsch
    Type a "method Name <token> locals=N args=N zeroinit=bool { ... }"
    block. The shell waits for matching braces before compiling it.

`)

	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".spejit-repl-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()
	onexit.Register(func() { l.Close() })

	var pending strings.Builder
	braces := 0
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if pending.Len() == 0 {
				break
			}
			pending.Reset()
			braces = 0
			l.SetPrompt(newprompt)
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}

		pending.WriteString(line)
		pending.WriteByte('\n')
		braces += strings.Count(line, "{") - strings.Count(line, "}")

		if strings.TrimSpace(line) == "" && braces <= 0 {
			pending.Reset()
			braces = 0
			continue
		}
		if braces > 0 {
			l.SetPrompt(contprompt)
			continue
		}

		source := pending.String()
		pending.Reset()
		l.SetPrompt(newprompt)
		runOne(source)
	}
}

// runOne compiles and links a single method in isolation and prints
// its disassembly, wrapped the same anti-panic one-shot-eval way an
// interactive shell should be: a bad block should never take the
// shell down with it.
func runOne(source string) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Println("panic:", r, string(debug.Stack()))
		}
	}()

	method, err := asm.Parse(source)
	if err != nil {
		fmt.Println("parse error:", err)
		return
	}
	cm, err := codegen.NewMethodCompiler().CompileMethod(method)
	if err != nil {
		fmt.Println("compile error:", err)
		return
	}
	img, err := link.NewLinker().Link([]*codegen.CompiledMethod{cm})
	if err != nil {
		fmt.Println("link error:", err)
		return
	}

	var b bytes.Buffer
	if err := img.WriteDisassembly(&b); err != nil {
		fmt.Println("disassembly error:", err)
		return
	}
	fmt.Print(resultprompt)
	fmt.Println(b.String())
}

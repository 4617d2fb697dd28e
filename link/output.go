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

package link

import (
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/opencell/spejit/codegen"
	"github.com/opencell/spejit/isa"
)

// WriteRaw serializes the image as a contiguous big-endian stream of
// 32-bit words.
func (img *Image) WriteRaw(w io.Writer) error {
	return img.Buffer.Serialize(w)
}

// WriteDisassembly writes one mnemonic per line, preceded by a
// "# Function entry" marker at every recorded method base offset.
func (img *Image) WriteDisassembly(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# build %s\n", img.BuildID); err != nil {
		return &codegen.TextSerializationFailure{Cause: err}
	}
	markers := make(map[int]methodOffset)
	img.MethodIndex.Ascend(func(mo methodOffset) bool {
		markers[mo.Offset] = mo
		return true
	})
	words := img.Buffer.Words()
	for i, instr := range words {
		if mo, ok := markers[i]; ok {
			if _, err := fmt.Fprintf(w, "# Function entry: %s (token %d)\n", mo.Name, mo.Token); err != nil {
				return &codegen.TextSerializationFailure{Cause: err}
			}
		}
		if _, err := fmt.Fprintln(w, isa.Disassemble(instr)); err != nil {
			return &codegen.TextSerializationFailure{Cause: err}
		}
	}
	return nil
}

// WriteConcurrent runs the raw-stream serialize pass and the
// disassembly-text pass concurrently: both are independent read-only
// passes over the same frozen buffer once every fixup has been
// resolved, so there is
// nothing to synchronize between them beyond waiting for both to
// finish. disasm may be nil to skip that sink entirely.
func (img *Image) WriteConcurrent(raw, disasm io.Writer) error {
	var g errgroup.Group
	g.Go(func() error {
		return img.WriteRaw(raw)
	})
	if disasm != nil {
		g.Go(func() error {
			return img.WriteDisassembly(disasm)
		})
	}
	return g.Wait()
}

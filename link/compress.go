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
	"bytes"
	"fmt"
	"io"

	"github.com/docker/go-units"
	"github.com/pierrec/lz4/v4"

	"github.com/opencell/spejit/codegen"
)

// WriteCompressed wraps the raw big-endian stream in an LZ4 frame
// before writing to w, a transport convenience for shipping images to
// the SPE loader; the uncompressed stream remains the canonical input to
// elfimage. It returns a human-readable summary of the raw size, the
// compressed size, and the fraction of the 256 KB local-store budget
// the raw image would occupy.
func (img *Image) WriteCompressed(w io.Writer) (string, error) {
	var raw bytes.Buffer
	if err := img.WriteRaw(&raw); err != nil {
		return "", err
	}

	var compressed bytes.Buffer
	zw := lz4.NewWriter(&compressed)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return "", &codegen.StreamWriteFailure{Cause: err}
	}
	if err := zw.Close(); err != nil {
		return "", &codegen.StreamWriteFailure{Cause: err}
	}

	if _, err := w.Write(compressed.Bytes()); err != nil {
		return "", &codegen.StreamWriteFailure{Cause: err}
	}

	rawSize, compressedSize := raw.Len(), compressed.Len()
	ratio := float64(compressedSize) / float64(rawSize) * 100
	return fmt.Sprintf("%s raw -> %s compressed (%.1f%%, %s of 256 KB local store)",
		units.BytesSize(float64(rawSize)),
		units.BytesSize(float64(compressedSize)),
		ratio,
		units.BytesSize(float64(rawSize)),
	), nil
}

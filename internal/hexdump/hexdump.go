// Package hexdump displays raw bytes of HDF5 files for debugging.
package hexdump

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// BytesPerLine is the number of bytes shown on each dump line.
const BytesPerLine = 16

// Result describes what Dump actually wrote.
type Result struct {
	FileSize int64
	Offset   int64
	Written  int
	// Truncated is set when fewer bytes than requested were available.
	Truncated bool
}

// DumpFile writes length bytes of the file at path starting at offset.
func DumpFile(w io.Writer, path string, offset int64, length int) (Result, error) {
	//nolint:gosec // G304: dumping a user-chosen file is the point of the tool
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	}

	return Dump(w, f, fi.Size(), offset, length)
}

// Dump writes a hex dump of length bytes of r, which holds size bytes,
// starting at offset. Lines show the offset, sixteen hex bytes split in two
// groups of eight and an ASCII gutter.
func Dump(w io.Writer, r io.ReaderAt, size, offset int64, length int) (Result, error) {
	if offset < 0 || offset >= size {
		return Result{}, fmt.Errorf("invalid offset: %d (file size: %d)", offset, size)
	}
	if length < 1 {
		return Result{}, fmt.Errorf("invalid length: %d", length)
	}

	res := Result{FileSize: size, Offset: offset}
	readLength := int64(length)
	if remaining := size - offset; readLength > remaining {
		readLength = remaining
		res.Truncated = true
	}

	buf := make([]byte, readLength)
	n, err := r.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return res, fmt.Errorf("read error after %d of %d bytes: %w", n, readLength, err)
	}
	res.Written = n

	for i := 0; i < n; i += BytesPerLine {
		if err := writeLine(w, offset+int64(i), buf[i:min(i+BytesPerLine, n)]); err != nil {
			return res, err
		}
	}
	return res, nil
}

func writeLine(w io.Writer, offset int64, chunk []byte) error {
	line := make([]byte, 0, 80)
	line = fmt.Appendf(line, "%08x: ", offset)
	for j := 0; j < BytesPerLine; j++ {
		if j < len(chunk) {
			line = fmt.Appendf(line, "%02x ", chunk[j])
		} else {
			line = append(line, "   "...)
		}
		if j == 7 {
			line = append(line, ' ')
		}
	}
	line = append(line, " |"...)
	for _, b := range chunk {
		if b >= 32 && b <= 126 {
			line = append(line, b)
		} else {
			line = append(line, '.')
		}
	}
	line = append(line, "|\n"...)

	_, err := w.Write(line)
	return err
}

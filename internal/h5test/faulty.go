package h5test

import (
	"errors"
	"io"
)

// ErrInjected is returned by FaultyReader for reads it is told to fail.
var ErrInjected = errors.New("h5test: injected read failure")

// FaultyReader is an io.ReaderAt over a file image that fails every read
// touching FailAt. Reads past the end return io.EOF like bytes.Reader.
type FaultyReader struct {
	Data   []byte
	FailAt uint64
}

// ReadAt implements io.ReaderAt.
func (r *FaultyReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("h5test: negative offset")
	}
	//nolint:gosec // G115: off is non-negative
	if start := uint64(off); r.FailAt >= start && r.FailAt < start+uint64(len(p)) {
		return 0, ErrInjected
	}
	if off >= int64(len(r.Data)) {
		return 0, io.EOF
	}

	n := copy(p, r.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Package utils provides utility functions for the HDF5 reader.
package utils

import "sync"

// maxPooledBuffer keeps oversized one-off buffers out of the pool.
const maxPooledBuffer = 64 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

// GetBuffer returns a byte slice of length size from the pool.
// The contents are not zeroed.
func GetBuffer(size int) []byte {
	buf := bufferPool.Get().([]byte)
	if cap(buf) < size {
		bufferPool.Put(buf[:0]) //nolint:staticcheck // SA6002: slice header copy is fine for sync.Pool
		return make([]byte, size)
	}
	return buf[:size]
}

// ReleaseBuffer returns a buffer to the pool.
// Callers must not retain buf after releasing it.
func ReleaseBuffer(buf []byte) {
	if cap(buf) > maxPooledBuffer {
		return
	}
	//nolint:staticcheck // SA6002: slice descriptor copy is acceptable for sync.Pool
	bufferPool.Put(buf[:0])
}

package utils

import (
	"fmt"
	"math"
)

// SafeAdd adds two uint64 values and returns the result if no overflow occurs.
func SafeAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("addition overflow: %d + %d exceeds uint64 max", a, b)
	}
	return a + b, nil
}

// ValidateBufferSize validates that a buffer size is within reasonable limits.
func ValidateBufferSize(size, maxSize uint64, description string) error {
	if size == 0 {
		return fmt.Errorf("%s: size cannot be zero", description)
	}

	if size > maxSize {
		return fmt.Errorf("%s: size %d exceeds maximum %d", description, size, maxSize)
	}

	return nil
}

// Buffer size limits applied to metadata read from untrusted files.
const (
	// MaxMetadataBlock limits a single heap block or B-tree node to 64MB.
	MaxMetadataBlock = 64 * 1024 * 1024

	// MaxLocalHeap limits the data segment of a local heap to 16MB.
	MaxLocalHeap = 16 * 1024 * 1024

	// MaxHeaderMessages bounds the number of messages in one object header.
	MaxHeaderMessages = 1 << 16
)

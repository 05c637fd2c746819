package utils

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// ReadUint decodes an unsigned integer of 1 to 8 bytes.
// Widths other than 1, 2, 4 and 8 are assembled byte by byte.
func ReadUint(data []byte, size int, order binary.ByteOrder) uint64 {
	if size > len(data) {
		size = len(data)
	}

	switch size {
	case 0:
		return 0
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(order.Uint16(data[:2]))
	case 4:
		return uint64(order.Uint32(data[:4]))
	case 8:
		return order.Uint64(data[:8])
	}

	var val uint64
	if order == binary.BigEndian {
		for i := 0; i < size; i++ {
			val = val<<8 | uint64(data[i])
		}
		return val
	}
	for i := size - 1; i >= 0; i-- {
		val = val<<8 | uint64(data[i])
	}
	return val
}

// IsUndefinedAddress reports whether addr is the all-ones "undefined
// address" for the given offset width.
func IsUndefinedAddress(addr uint64, size uint8) bool {
	if size == 0 || size >= 8 {
		return addr == ^uint64(0)
	}
	return addr == (uint64(1)<<(8*uint(size)))-1
}

// ValidSize reports whether size is a legal width for file offsets and lengths.
func ValidSize(size uint8) bool {
	switch size {
	case 2, 4, 8:
		return true
	default:
		return false
	}
}

// Log2Floor returns floor(log2(v)), or 0 for v == 0.
func Log2Floor(v uint64) uint {
	if v == 0 {
		return 0
	}
	//nolint:gosec // G115: bits.Len64 is at most 64
	return uint(bits.Len64(v) - 1)
}

// LimitEncodeSize returns the number of bytes needed to encode v.
// It mirrors the library's H5VM_limit_enc_size.
func LimitEncodeSize(v uint64) uint8 {
	//nolint:gosec // G115: result is at most 9
	return uint8(Log2Floor(v)/8 + 1)
}

// CheckPowerOfTwo returns an error unless v is a non-zero power of two.
func CheckPowerOfTwo(what string, v uint64) error {
	if v == 0 || v&(v-1) != 0 {
		return fmt.Errorf("%s %d is not a power of two", what, v)
	}
	return nil
}

package utils

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadUint(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	tests := []struct {
		name  string
		size  int
		order binary.ByteOrder
		want  uint64
	}{
		{"zero width", 0, binary.LittleEndian, 0},
		{"1 byte", 1, binary.LittleEndian, 0x01},
		{"2 bytes LE", 2, binary.LittleEndian, 0x0201},
		{"2 bytes BE", 2, binary.BigEndian, 0x0102},
		{"3 bytes LE", 3, binary.LittleEndian, 0x030201},
		{"3 bytes BE", 3, binary.BigEndian, 0x010203},
		{"4 bytes LE", 4, binary.LittleEndian, 0x04030201},
		{"5 bytes LE", 5, binary.LittleEndian, 0x0504030201},
		{"7 bytes BE", 7, binary.BigEndian, 0x01020304050607},
		{"8 bytes LE", 8, binary.LittleEndian, 0x0807060504030201},
		{"8 bytes BE", 8, binary.BigEndian, 0x0102030405060708},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ReadUint(data, tt.size, tt.order))
		})
	}
}

func TestReadUint_ShortData(t *testing.T) {
	// Widths beyond the data are clamped to what is available.
	require.Equal(t, uint64(0x0201), ReadUint([]byte{0x01, 0x02}, 4, binary.LittleEndian))
	require.Equal(t, uint64(0), ReadUint(nil, 8, binary.LittleEndian))
}

func TestIsUndefinedAddress(t *testing.T) {
	tests := []struct {
		addr uint64
		size uint8
		want bool
	}{
		{0xFFFF, 2, true},
		{0xFFFE, 2, false},
		{0xFFFFFFFF, 4, true},
		{0xFFFF, 4, false},
		{^uint64(0), 8, true},
		{0xFFFFFFFF, 8, false},
		{^uint64(0), 0, true},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, IsUndefinedAddress(tt.addr, tt.size), "addr 0x%X size %d", tt.addr, tt.size)
	}
}

func TestValidSize(t *testing.T) {
	for _, size := range []uint8{2, 4, 8} {
		require.True(t, ValidSize(size), "size %d", size)
	}
	for _, size := range []uint8{0, 1, 3, 16} {
		require.False(t, ValidSize(size), "size %d", size)
	}
}

func TestLog2Floor(t *testing.T) {
	tests := []struct {
		v    uint64
		want uint
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 1}, {512, 9}, {1023, 9}, {1 << 40, 40}, {^uint64(0), 63},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Log2Floor(tt.v), "v=%d", tt.v)
	}
}

func TestLimitEncodeSize(t *testing.T) {
	tests := []struct {
		v    uint64
		want uint8
	}{
		{1, 1}, {255, 1}, {256, 2}, {4096, 2}, {65535, 2}, {65536, 3}, {1 << 32, 5},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, LimitEncodeSize(tt.v), "v=%d", tt.v)
	}
}

func TestCheckPowerOfTwo(t *testing.T) {
	require.NoError(t, CheckPowerOfTwo("block size", 1))
	require.NoError(t, CheckPowerOfTwo("block size", 4096))
	require.EqualError(t, CheckPowerOfTwo("block size", 0), "block size 0 is not a power of two")
	require.EqualError(t, CheckPowerOfTwo("block size", 1000), "block size 1000 is not a power of two")
}

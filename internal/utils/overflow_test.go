package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeAdd(t *testing.T) {
	tests := []struct {
		name    string
		a, b    uint64
		want    uint64
		wantErr bool
	}{
		{name: "small", a: 2, b: 3, want: 5},
		{name: "zero", a: 0, b: 0, want: 0},
		{name: "exactly max", a: math.MaxUint64 - 1, b: 1, want: math.MaxUint64},
		{name: "overflow", a: math.MaxUint64, b: 1, wantErr: true},
		{name: "large overflow", a: 1 << 63, b: 1 << 63, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeAdd(tt.a, tt.b)
			if tt.wantErr {
				require.ErrorContains(t, err, "addition overflow")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestValidateBufferSize(t *testing.T) {
	tests := []struct {
		name    string
		size    uint64
		wantErr string
	}{
		{name: "within limit", size: 1024},
		{name: "at limit", size: MaxMetadataBlock},
		{name: "zero", size: 0, wantErr: "heap block: size cannot be zero"},
		{name: "over limit", size: MaxMetadataBlock + 1, wantErr: "heap block: size 67108865 exceeds maximum 67108864"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBufferSize(tt.size, MaxMetadataBlock, "heap block")
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tt.wantErr)
		})
	}
}

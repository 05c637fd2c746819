package hexdump

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	data := []byte("\x89HDF\r\n\x1a\n\x00\x00\x00\x00\x00\x08\x08\x00abc")

	tests := []struct {
		name      string
		offset    int64
		length    int
		want      string
		truncated bool
	}{
		{
			name:   "full line and partial line",
			offset: 0,
			length: 19,
			want: "00000000: 89 48 44 46 0d 0a 1a 0a  00 00 00 00 00 08 08 00  |.HDF............|\n" +
				"00000010: 61 62 63                                          |abc|\n",
		},
		{
			name:   "offset inside file",
			offset: 1,
			length: 3,
			want:   "00000001: 48 44 46                                          |HDF|\n",
		},
		{
			name:      "length past end is clipped",
			offset:    16,
			length:    100,
			want:      "00000010: 61 62 63                                          |abc|\n",
			truncated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			res, err := Dump(&out, bytes.NewReader(data), int64(len(data)), tt.offset, tt.length)
			require.NoError(t, err)
			require.Equal(t, tt.want, out.String())
			require.Equal(t, tt.truncated, res.Truncated)
			require.Equal(t, int64(len(data)), res.FileSize)
		})
	}
}

func TestDump_InvalidArguments(t *testing.T) {
	data := make([]byte, 32)

	tests := []struct {
		name   string
		offset int64
		length int
	}{
		{"negative offset", -1, 16},
		{"offset at end", 32, 16},
		{"zero length", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := Dump(&out, bytes.NewReader(data), int64(len(data)), tt.offset, tt.length)
			require.Error(t, err)
			require.Zero(t, out.Len())
		})
	}
}

func TestDumpFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	var out bytes.Buffer
	res, err := DumpFile(&out, path, 2, 4)
	require.NoError(t, err)
	require.Equal(t, 4, res.Written)
	require.Contains(t, out.String(), "|2345|")

	_, err = DumpFile(&out, filepath.Join(t.TempDir(), "missing.bin"), 0, 4)
	require.Error(t, err)
}

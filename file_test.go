package h5iterate

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5iterate/internal/h5test"
)

// TestOpenFile tests basic file opening functionality.
func TestOpenFile(t *testing.T) {
	v2 := h5test.New()
	v2.SuperblockV2(2, v2.CompactGroup(h5test.CompactOptions{}))

	v3 := h5test.New()
	v3.SuperblockV2(3, v3.CompactGroup(h5test.CompactOptions{}))

	notHDF5 := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(notHDF5, bytes.Repeat([]byte("not hdf5 "), 200), 0o600))

	tests := []struct {
		name        string
		filepath    string
		wantErr     error
		wantVersion uint8
	}{
		{
			name:        "version 0 superblock",
			filepath:    h5test.IterateExample().WriteFile(t, "v0.h5"),
			wantVersion: 0,
		},
		{
			name:        "version 2 superblock",
			filepath:    v2.WriteFile(t, "v2.h5"),
			wantVersion: 2,
		},
		{
			name:        "version 3 superblock",
			filepath:    v3.WriteFile(t, "v3.h5"),
			wantVersion: 3,
		},
		{
			name:     "non-existent file",
			filepath: filepath.Join(t.TempDir(), "does_not_exist.h5"),
			wantErr:  os.ErrNotExist,
		},
		{
			name:     "not an HDF5 file",
			filepath: notHDF5,
			wantErr:  ErrNotHDF5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := Open(tt.filepath)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, file)
				return
			}

			require.NoError(t, err)
			defer func() { _ = file.Close() }()

			require.Equal(t, tt.wantVersion, file.SuperblockVersion())
			require.Equal(t, tt.filepath, file.Name())
		})
	}
}

func TestOpenReader_UserBlock(t *testing.T) {
	image := h5test.IterateExample().Bytes()

	for _, n := range []int{512, 1024, 4096} {
		data := h5test.WithUserBlock(image, n)
		file, err := OpenReader(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err, "user block %d", n)

		members, err := mustRoot(t, file).Members(IndexName)
		require.NoError(t, err)
		require.Len(t, members, 4)
		require.Equal(t, ObjectTypeDataset, members[0].Type)
		require.NoError(t, file.Close())
	}
}

func TestOpenReader_Truncated(t *testing.T) {
	image := h5test.IterateExample().Bytes()

	tests := []struct {
		name string
		size int
	}{
		{name: "signature only", size: 8},
		{name: "partial superblock", size: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := image[:tt.size]
			file, err := OpenReader(bytes.NewReader(data), int64(len(data)))
			require.Error(t, err)
			require.Nil(t, file)
		})
	}
}

// TestFileClose ensures files can be closed without error.
func TestFileClose(t *testing.T) {
	file, err := Open(h5test.IterateExample().WriteFile(t, "close.h5"))
	require.NoError(t, err)

	root := mustRoot(t, file)

	require.NoError(t, file.Close())
	// Second close should also work (idempotent).
	require.NoError(t, file.Close())

	_, err = file.Root()
	require.ErrorIs(t, err, ErrClosed)
	_, err = file.OpenGroup("/G1")
	require.ErrorIs(t, err, ErrClosed)
	_, err = root.Members(IndexName)
	require.ErrorIs(t, err, ErrClosed)
}

type closeRecorder struct {
	*bytes.Reader
	closed int
	err    error
}

func (c *closeRecorder) Close() error {
	c.closed++
	return c.err
}

func TestOpenReader_ClosesReader(t *testing.T) {
	image := h5test.IterateExample().Bytes()
	errClose := errors.New("close failed")
	rc := &closeRecorder{Reader: bytes.NewReader(image), err: errClose}

	file, err := OpenReader(rc, int64(len(image)))
	require.NoError(t, err)
	require.Empty(t, file.Name())

	require.ErrorIs(t, file.Close(), errClose)
	require.NoError(t, file.Close())
	require.Equal(t, 1, rc.closed)
}

func TestOpenGroup(t *testing.T) {
	file := openImage(t, h5test.IterateExample())

	tests := []struct {
		name     string
		path     string
		wantPath string
		wantErr  error
	}{
		{name: "root", path: "/", wantPath: "/"},
		{name: "absolute", path: "/G1", wantPath: "/G1"},
		{name: "relative", path: "G1", wantPath: "/G1"},
		{name: "redundant separators", path: "//./G1/", wantPath: "/G1"},
		{name: "missing", path: "/G2", wantErr: ErrNotFound},
		{name: "dataset", path: "/DS1", wantErr: ErrNotGroup},
		{name: "through a dataset", path: "/DS1/x", wantErr: ErrNotGroup},
		{name: "soft link to dataset", path: "/L1", wantErr: ErrNotGroup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := file.OpenGroup(tt.path)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantPath, g.Path())
		})
	}
}

func mustRoot(t *testing.T, file *File) *Group {
	t.Helper()
	root, err := file.Root()
	require.NoError(t, err)
	return root
}

func openImage(t *testing.T, b *h5test.Builder) *File {
	t.Helper()
	image := b.Bytes()
	file, err := OpenReader(bytes.NewReader(image), int64(len(image)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })
	return file
}

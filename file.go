// Package h5iterate is a pure Go reader for HDF5 group metadata.
// It opens HDF5 files read-only, enumerates the members of a group and
// classifies each member as a group, dataset or named datatype.
//
// Groups in every on-disk form are supported: symbol table groups of
// version 0 and 1 superblocks, compact link message groups, and dense
// groups indexed by a version 2 B-tree over a fractal heap.
package h5iterate

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/utils"
)

// Errors returned at the package boundary. Match them with errors.Is.
var (
	ErrNotHDF5                 = errors.New("not an HDF5 file")
	ErrNotFound                = errors.New("object not found")
	ErrNotGroup                = errors.New("object is not a group")
	ErrCreationOrderNotTracked = errors.New("group does not track link creation order")
	ErrClosed                  = errors.New("file already closed")
)

// File represents an open HDF5 file.
type File struct {
	name   string
	closer io.Closer
	// r addresses the file from its HDF5 base, past any user block.
	r    io.ReaderAt
	size int64
	sb   *core.Superblock

	headers map[uint64]*core.ObjectHeader
}

// Open opens an HDF5 file for reading and returns a File handle.
func Open(filename string) (*File, error) {
	//nolint:gosec // G304: User-provided filename is intentional for HDF5 file library
	f, err := os.Open(filename)
	if err != nil {
		return nil, utils.WrapError("file open failed", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, utils.WrapError("file stat failed", err)
	}

	file, err := newFile(f, fi.Size(), filename)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	file.closer = f
	return file, nil
}

// OpenReader reads an HDF5 file from r, which holds size bytes. Closing
// the returned File closes r when r implements io.Closer.
func OpenReader(r io.ReaderAt, size int64) (*File, error) {
	file, err := newFile(r, size, "")
	if err != nil {
		return nil, err
	}
	if c, ok := r.(io.Closer); ok {
		file.closer = c
	}
	return file, nil
}

func newFile(r io.ReaderAt, size int64, name string) (*File, error) {
	base, err := core.FindSignature(r, size)
	if errors.Is(err, core.ErrSignatureNotFound) {
		return nil, ErrNotHDF5
	}
	if err != nil {
		return nil, err
	}

	section := io.NewSectionReader(r, base, size-base)
	sb, err := core.ReadSuperblock(section)
	if err != nil {
		return nil, utils.WrapError("superblock read failed", err)
	}

	//nolint:gosec // G115: File size is always positive, safe to convert int64 to uint64
	if sb.RootGroup >= uint64(section.Size()) {
		return nil, fmt.Errorf("root group address 0x%X beyond file size %d", sb.RootGroup, section.Size())
	}

	return &File{
		name:    name,
		r:       section,
		size:    section.Size(),
		sb:      sb,
		headers: make(map[uint64]*core.ObjectHeader),
	}, nil
}

// Close closes the HDF5 file and releases associated resources.
// It is safe to call Close multiple times.
func (f *File) Close() error {
	if f.r == nil {
		return nil // Already closed.
	}
	f.r = nil
	f.headers = nil

	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}

// Name returns the path the file was opened from, or "" for OpenReader.
func (f *File) Name() string {
	return f.name
}

// SuperblockVersion returns the HDF5 superblock format version (0 to 3).
func (f *File) SuperblockVersion() uint8 {
	return f.sb.Version
}

// Root returns the root group of the file.
func (f *File) Root() (*Group, error) {
	if f.r == nil {
		return nil, ErrClosed
	}
	return f.loadGroup("/", f.sb.RootGroup)
}

// OpenGroup opens the group at path. Paths are absolute or relative to
// the root group; soft links along the way are followed.
func (f *File) OpenGroup(path string) (*Group, error) {
	if f.r == nil {
		return nil, ErrClosed
	}

	addr, err := f.resolvePath(f.sb.RootGroup, path, 0)
	if err != nil {
		return nil, fmt.Errorf("open group %q: %w", path, err)
	}
	g, err := f.loadGroup(cleanPath(path), addr)
	if err != nil {
		return nil, fmt.Errorf("open group %q: %w", path, err)
	}
	return g, nil
}

// header reads the object header at address, caching the result for the
// lifetime of the file handle.
func (f *File) header(address uint64) (*core.ObjectHeader, error) {
	if f.r == nil {
		return nil, ErrClosed
	}
	if h, ok := f.headers[address]; ok {
		return h, nil
	}
	//nolint:gosec // G115: File size is always positive, safe to convert int64 to uint64
	if address >= uint64(f.size) {
		return nil, fmt.Errorf("object header address 0x%X beyond file size %d", address, f.size)
	}

	h, err := core.ReadObjectHeader(f.r, address, f.sb)
	if err != nil {
		return nil, err
	}
	f.headers[address] = h
	return h, nil
}

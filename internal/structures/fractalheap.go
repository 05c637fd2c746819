package structures

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/utils"
)

// Fractal heap block signatures.
const (
	FractalHeapSignature   = "FRHP"
	DirectBlockSignature   = "FHDB"
	IndirectBlockSignature = "FHIB"
)

// FractalHeap is a read-only view of an HDF5 fractal heap. Dense groups
// store their encoded link messages in one, addressed by heap IDs taken
// from the group's v2 B-tree name index.
//
// Managed objects are found by walking the doubling table from the root
// block, which is either a direct block or an indirect block of any depth.
// Tiny objects are decoded from the heap ID itself. Huge objects and
// filtered heaps are rejected.
type FractalHeap struct {
	Header     *FractalHeapHeader
	reader     io.ReaderAt
	sb         *core.Superblock
	headerAddr uint64
}

// FractalHeapHeader represents the fractal heap header structure.
type FractalHeapHeader struct {
	Version      uint8
	HeapIDLen    uint16
	IOFiltersLen uint16
	Flags        uint8

	MaxManagedObjSize uint32

	NextHugeObjID    uint64
	HugeObjBTreeAddr uint64

	FreeSpaceAmount      uint64
	FreeSpaceSectionAddr uint64

	ManagedObjSpaceSize  uint64
	ManagedObjAllocSize  uint64
	ManagedObjIterOffset uint64
	ManagedObjCount      uint64
	HugeObjSize          uint64
	HugeObjCount         uint64
	TinyObjSize          uint64
	TinyObjCount         uint64

	// Doubling table parameters.
	TableWidth            uint16
	StartingBlockSize     uint64
	MaxDirectBlockSize    uint64
	MaxHeapSize           uint16 // log2 of the heap's address space
	StartRootIndirectRows uint16
	RootBlockAddr         uint64
	CurrentRowCount       uint16 // 0 when the root is a direct block

	// Derived, not stored on disk.
	HeapOffsetSize       uint8
	HeapLengthSize       uint8
	ChecksumDirectBlocks bool
	MaxDirectRows        uint
}

// HeapIDType identifies the type of heap object.
type HeapIDType uint8

const (
	// HeapIDTypeManaged - Managed object stored in fractal heap blocks.
	HeapIDTypeManaged HeapIDType = 0x00
	// HeapIDTypeHuge - Huge object stored in file directly.
	HeapIDTypeHuge HeapIDType = 0x10
	// HeapIDTypeTiny - Tiny object stored in heap ID directly.
	HeapIDTypeTiny HeapIDType = 0x20
)

const fractalHeapFlagChecksumDirect = 0x02

// OpenFractalHeap opens and parses the fractal heap header at address.
func OpenFractalHeap(r io.ReaderAt, address uint64, sb *core.Superblock) (*FractalHeap, error) {
	if sb.IsUndefined(address) || address == 0 {
		return nil, fmt.Errorf("invalid fractal heap address: 0x%X", address)
	}

	header, err := parseFractalHeapHeader(r, address, sb)
	if err != nil {
		return nil, utils.WrapError("failed to parse fractal heap header", err)
	}

	return &FractalHeap{
		Header:     header,
		reader:     r,
		sb:         sb,
		headerAddr: address,
	}, nil
}

// parseFractalHeapHeader reads and parses the fractal heap header.
//
// Layout: signature (4), version (1), heap ID length (2), I/O filter
// length (2), flags (1), max managed object size (4), then size and
// address fields for huge objects, free space and statistics, then the
// doubling table (width, starting and max direct block sizes, max heap
// size, starting root rows, root block address, current root rows),
// optional filter information and a checksum.
//
//nolint:funlen // field-by-field decode of the heap header
func parseFractalHeapHeader(r io.ReaderAt, address uint64, sb *core.Superblock) (*FractalHeapHeader, error) {
	sizeofSize := int(sb.LengthSize)
	sizeofAddr := int(sb.OffsetSize)
	headerSize := 22 + 12*sizeofSize + 3*sizeofAddr

	buf := make([]byte, headerSize+4)
	//nolint:gosec // G115: uint64 to int64 conversion safe for file offsets
	if _, err := r.ReadAt(buf, int64(address)); err != nil {
		return nil, fmt.Errorf("failed to read fractal heap header: %w", err)
	}

	if sig := string(buf[0:4]); sig != FractalHeapSignature {
		return nil, fmt.Errorf("invalid fractal heap signature: %q (expected FRHP)", sig)
	}

	h := &FractalHeapHeader{Version: buf[4]}
	if h.Version != 0 {
		return nil, fmt.Errorf("unsupported fractal heap version: %d", h.Version)
	}

	le := sb.Endianness
	offset := 5
	size := func() uint64 {
		v := sb.DecodeLength(buf[offset:])
		offset += sizeofSize
		return v
	}
	addr := func() uint64 {
		v := sb.DecodeAddress(buf[offset:])
		offset += sizeofAddr
		return v
	}
	u16 := func() uint16 {
		v := le.Uint16(buf[offset : offset+2])
		offset += 2
		return v
	}

	h.HeapIDLen = u16()
	h.IOFiltersLen = u16()
	h.Flags = buf[offset]
	offset++
	h.MaxManagedObjSize = le.Uint32(buf[offset : offset+4])
	offset += 4

	h.NextHugeObjID = size()
	h.HugeObjBTreeAddr = addr()
	h.FreeSpaceAmount = size()
	h.FreeSpaceSectionAddr = addr()
	h.ManagedObjSpaceSize = size()
	h.ManagedObjAllocSize = size()
	h.ManagedObjIterOffset = size()
	h.ManagedObjCount = size()
	h.HugeObjSize = size()
	h.HugeObjCount = size()
	h.TinyObjSize = size()
	h.TinyObjCount = size()

	h.TableWidth = u16()
	h.StartingBlockSize = size()
	h.MaxDirectBlockSize = size()
	h.MaxHeapSize = u16()
	h.StartRootIndirectRows = u16()
	h.RootBlockAddr = addr()
	h.CurrentRowCount = u16()

	if h.IOFiltersLen > 0 {
		return nil, errors.New("filtered fractal heaps are not supported")
	}

	stored := le.Uint32(buf[offset : offset+4])
	if err := utils.VerifyChecksum("fractal heap header", address, buf[:offset], stored); err != nil {
		return nil, err
	}

	if h.TableWidth == 0 {
		return nil, errors.New("fractal heap table width is zero")
	}
	if err := utils.CheckPowerOfTwo("starting block size", h.StartingBlockSize); err != nil {
		return nil, err
	}
	if err := utils.CheckPowerOfTwo("max direct block size", h.MaxDirectBlockSize); err != nil {
		return nil, err
	}
	if h.MaxDirectBlockSize < h.StartingBlockSize || h.MaxDirectBlockSize > utils.MaxMetadataBlock {
		return nil, fmt.Errorf("invalid max direct block size: %d", h.MaxDirectBlockSize)
	}
	if h.MaxHeapSize == 0 || h.MaxHeapSize > 64 {
		return nil, fmt.Errorf("invalid max heap size: %d bits", h.MaxHeapSize)
	}

	h.ChecksumDirectBlocks = h.Flags&fractalHeapFlagChecksumDirect != 0

	//nolint:gosec // G115: MaxHeapSize <= 64
	h.HeapOffsetSize = uint8((h.MaxHeapSize + 7) / 8)

	//nolint:gosec // G115: log2 of a 64-bit value is at most 63
	maxDirBlockOffsetSize := uint8((utils.Log2Floor(h.MaxDirectBlockSize) + 7) / 8)
	h.HeapLengthSize = min(maxDirBlockOffsetSize, utils.LimitEncodeSize(uint64(h.MaxManagedObjSize)))

	h.MaxDirectRows = utils.Log2Floor(h.MaxDirectBlockSize) - utils.Log2Floor(h.StartingBlockSize) + 2

	return h, nil
}

// ReadObject reads an object from the fractal heap given its heap ID.
func (fh *FractalHeap) ReadObject(heapID []byte) ([]byte, error) {
	if len(heapID) < 1 {
		return nil, fmt.Errorf("heap ID too short: %d bytes", len(heapID))
	}

	flags := heapID[0]
	if version := (flags & 0xC0) >> 6; version != 0 {
		return nil, fmt.Errorf("unsupported heap ID version: %d", version)
	}

	switch idType := HeapIDType(flags & 0x30); idType {
	case HeapIDTypeManaged:
		return fh.readManagedObject(heapID)
	case HeapIDTypeTiny:
		return fh.readTinyObject(heapID)
	case HeapIDTypeHuge:
		return nil, errors.New("huge fractal heap objects are not supported")
	default:
		return nil, fmt.Errorf("unsupported heap ID type: 0x%02X", uint8(idType))
	}
}

// readTinyObject decodes an object stored inside the heap ID. Heap IDs
// longer than 18 bytes use a 12-bit length spread over two bytes.
func (fh *FractalHeap) readTinyObject(heapID []byte) ([]byte, error) {
	var length, start int
	if fh.Header.HeapIDLen > 18 {
		if len(heapID) < 2 {
			return nil, errors.New("tiny heap ID too short")
		}
		length = (int(heapID[0]&0x0F)<<8 | int(heapID[1])) + 1
		start = 2
	} else {
		length = int(heapID[0]&0x0F) + 1
		start = 1
	}

	if start+length > len(heapID) {
		return nil, fmt.Errorf("tiny object length %d exceeds heap ID", length)
	}

	data := make([]byte, length)
	copy(data, heapID[start:start+length])
	return data, nil
}

// readManagedObject reads a managed object addressed by offset and length
// in the heap's linear address space.
func (fh *FractalHeap) readManagedObject(heapID []byte) ([]byte, error) {
	offSize := int(fh.Header.HeapOffsetSize)
	lenSize := int(fh.Header.HeapLengthSize)
	if len(heapID) < 1+offSize+lenSize {
		return nil, fmt.Errorf("heap ID too short for managed object: %d bytes (need %d)",
			len(heapID), 1+offSize+lenSize)
	}

	objOffset := utils.ReadUint(heapID[1:], offSize, fh.sb.Endianness)
	objLength := utils.ReadUint(heapID[1+offSize:], lenSize, fh.sb.Endianness)
	if objLength == 0 {
		return nil, errors.New("managed object has zero length")
	}

	block, err := fh.locateDirectBlock(objOffset)
	if err != nil {
		return nil, err
	}

	data, err := fh.readDirectBlock(block)
	if err != nil {
		return nil, utils.WrapError("failed to read direct block", err)
	}

	// Objects are addressed from the start of the block, header included.
	rel := objOffset - block.offset
	if rel < uint64(fh.directBlockHeaderSize()) || rel+objLength > uint64(len(data)) {
		return nil, fmt.Errorf("object at heap offset 0x%X (length %d) outside direct block at 0x%X",
			objOffset, objLength, block.address)
	}

	obj := make([]byte, objLength)
	copy(obj, data[rel:rel+objLength])
	return obj, nil
}

// directBlockHeaderSize is the size of the direct block prefix, checksum
// included when direct blocks are checksummed.
func (fh *FractalHeap) directBlockHeaderSize() int {
	size := 5 + int(fh.sb.OffsetSize) + int(fh.Header.HeapOffsetSize)
	if fh.Header.ChecksumDirectBlocks {
		size += 4
	}
	return size
}

// readDirectBlock reads and validates a direct block, returning its whole
// image.
func (fh *FractalHeap) readDirectBlock(block blockRef) ([]byte, error) {
	if fh.sb.IsUndefined(block.address) || block.address == 0 {
		return nil, fmt.Errorf("invalid direct block address: 0x%X", block.address)
	}

	buf := make([]byte, block.size)
	//nolint:gosec // G115: uint64 to int64 conversion safe for file offsets
	if _, err := fh.reader.ReadAt(buf, int64(block.address)); err != nil {
		return nil, err
	}

	if sig := string(buf[0:4]); sig != DirectBlockSignature {
		return nil, fmt.Errorf("invalid direct block signature: %q (expected FHDB)", sig)
	}
	if buf[4] != 0 {
		return nil, fmt.Errorf("unsupported direct block version: %d", buf[4])
	}

	pos := 5
	if owner := fh.sb.DecodeAddress(buf[pos:]); owner != fh.headerAddr {
		return nil, fmt.Errorf("direct block heap header address mismatch: 0x%X (expected 0x%X)",
			owner, fh.headerAddr)
	}
	pos += int(fh.sb.OffsetSize)

	blockOffset := utils.ReadUint(buf[pos:], int(fh.Header.HeapOffsetSize), fh.sb.Endianness)
	if blockOffset != block.offset {
		return nil, fmt.Errorf("direct block offset 0x%X, expected 0x%X", blockOffset, block.offset)
	}
	pos += int(fh.Header.HeapOffsetSize)

	if fh.Header.ChecksumDirectBlocks {
		// The checksum covers the whole block with its own field zeroed.
		stored := fh.sb.Endianness.Uint32(buf[pos : pos+4])
		image := make([]byte, len(buf))
		copy(image, buf)
		clear(image[pos : pos+4])
		if err := utils.VerifyChecksum("fractal heap direct block", block.address, image, stored); err != nil {
			return nil, err
		}
	}

	return buf, nil
}

package structures

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/utils"
)

// LocalHeapSignature is the 4-byte signature of a local heap header.
const LocalHeapSignature = "HEAP"

// LocalHeap represents an HDF5 local heap for storing short strings.
// Symbol table groups keep their link names and soft link values here.
//
// Format:
//
//	Header:
//	  - Signature: "HEAP" (4 bytes)
//	  - Version: 0 (1 byte)
//	  - Reserved: 0 (3 bytes)
//	  - Data segment size (lengthSize bytes)
//	  - Offset to head of free list (lengthSize bytes)
//	  - Data segment address (offsetSize bytes)
//	Data segment:
//	  - Null-terminated strings, stored sequentially
type LocalHeap struct {
	Address            uint64
	DataSegmentAddress uint64
	FreeListHead       uint64
	Data               []byte
}

// LoadLocalHeap loads a local heap from the specified file address.
func LoadLocalHeap(r io.ReaderAt, address uint64, sb *core.Superblock) (*LocalHeap, error) {
	if sb.IsUndefined(address) {
		return nil, errors.New("local heap address is undefined")
	}

	headerSize := 8 + int(sb.LengthSize)*2 + int(sb.OffsetSize)

	headerBuf := utils.GetBuffer(headerSize)
	defer utils.ReleaseBuffer(headerBuf)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(headerBuf, int64(address)); err != nil {
		return nil, utils.WrapError("local heap header read failed", err)
	}

	if string(headerBuf[0:4]) != LocalHeapSignature {
		return nil, fmt.Errorf("invalid local heap signature at 0x%X: %q", address, headerBuf[0:4])
	}
	if headerBuf[4] != 0 {
		return nil, fmt.Errorf("unsupported local heap version: %d", headerBuf[4])
	}

	pos := 8
	dataSegmentSize := sb.DecodeLength(headerBuf[pos:])
	pos += int(sb.LengthSize)
	freeList := sb.DecodeLength(headerBuf[pos:])
	pos += int(sb.LengthSize)
	dataSegmentAddr := sb.DecodeAddress(headerBuf[pos:])

	if err := utils.ValidateBufferSize(dataSegmentSize, utils.MaxLocalHeap, "local heap data segment"); err != nil {
		return nil, err
	}

	heap := &LocalHeap{
		Address:            address,
		DataSegmentAddress: dataSegmentAddr,
		FreeListHead:       freeList,
		Data:               make([]byte, dataSegmentSize),
	}

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(heap.Data, int64(dataSegmentAddr)); err != nil {
		return nil, utils.WrapError("local heap data read failed", err)
	}

	return heap, nil
}

// GetString retrieves a null-terminated string from the heap at the given
// offset into the data segment.
func (h *LocalHeap) GetString(offset uint64) (string, error) {
	if offset >= uint64(len(h.Data)) {
		return "", fmt.Errorf("offset %d beyond heap data (%d bytes)", offset, len(h.Data))
	}

	end := offset
	for end < uint64(len(h.Data)) && h.Data[end] != 0 {
		end++
	}

	if end >= uint64(len(h.Data)) {
		return "", errors.New("string not null-terminated")
	}

	return string(h.Data[offset:end]), nil
}

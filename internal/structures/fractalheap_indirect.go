// Copyright (c) 2025 SciGo HDF5 Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package structures

import (
	"fmt"

	"github.com/scigolib/h5iterate/internal/utils"
)

// maxIndirectDepth bounds descent through nested indirect blocks.
const maxIndirectDepth = 32

// IndirectBlock represents a fractal heap indirect block.
//
// On-Disk Format:
//   - Signature: "FHIB" (4 bytes)
//   - Version: 0 (1 byte)
//   - Heap Header Address (sizeof_addr bytes)
//   - Block Offset (heap_off_size bytes)
//   - Child Block Addresses (nrows × width entries, sizeof_addr each)
//   - Checksum (4 bytes)
//
// The first MaxDirectRows rows point at direct blocks, any further rows
// at child indirect blocks. Unallocated children hold the undefined
// address.
type IndirectBlock struct {
	Address     uint64
	BlockOffset uint64
	NumRows     uint
	Entries     []uint64
}

// blockRef locates one direct block in the heap's address space.
type blockRef struct {
	address uint64
	offset  uint64 // heap offset of the block's first byte
	size    uint64
}

// rowBlockSize returns the size of each block in row r of the doubling
// table. Rows 0 and 1 both hold starting-size blocks.
func (h *FractalHeapHeader) rowBlockSize(r uint) uint64 {
	if r == 0 {
		return h.StartingBlockSize
	}
	return h.StartingBlockSize << (r - 1)
}

// rowOffset returns the heap offset of row r relative to the start of the
// indirect block that contains it.
func (h *FractalHeapHeader) rowOffset(r uint) uint64 {
	if r == 0 {
		return 0
	}
	return uint64(h.TableWidth) * h.StartingBlockSize << (r - 1)
}

// childIndirectRows returns the number of rows of a child indirect block
// that sits in a row with the given block size.
func (h *FractalHeapHeader) childIndirectRows(rowSize uint64) uint {
	return utils.Log2Floor(rowSize) - (utils.Log2Floor(h.StartingBlockSize) + utils.Log2Floor(uint64(h.TableWidth))) + 1
}

// ParseIndirectBlock reads an indirect block with nrows rows.
func (fh *FractalHeap) ParseIndirectBlock(address uint64, nrows uint) (*IndirectBlock, error) {
	if fh.sb.IsUndefined(address) || address == 0 {
		return nil, fmt.Errorf("invalid indirect block address: 0x%X", address)
	}

	sizeofAddr := int(fh.sb.OffsetSize)
	offSize := int(fh.Header.HeapOffsetSize)
	numEntries := int(nrows) * int(fh.Header.TableWidth)
	headerSize := 5 + sizeofAddr + offSize
	totalSize := headerSize + numEntries*sizeofAddr + 4

	if err := utils.ValidateBufferSize(uint64(totalSize), utils.MaxMetadataBlock, "indirect block"); err != nil { //nolint:gosec // G115: positive
		return nil, err
	}

	buf := make([]byte, totalSize)
	//nolint:gosec // G115: uint64 to int64 conversion safe for file offsets
	if _, err := fh.reader.ReadAt(buf, int64(address)); err != nil {
		return nil, fmt.Errorf("failed to read indirect block: %w", err)
	}

	if sig := string(buf[0:4]); sig != IndirectBlockSignature {
		return nil, fmt.Errorf("invalid indirect block signature: %q (expected FHIB)", sig)
	}
	if buf[4] != 0 {
		return nil, fmt.Errorf("unsupported indirect block version: %d", buf[4])
	}

	checksumPos := totalSize - 4
	stored := fh.sb.Endianness.Uint32(buf[checksumPos:])
	if err := utils.VerifyChecksum("fractal heap indirect block", address, buf[:checksumPos], stored); err != nil {
		return nil, err
	}

	pos := 5
	if owner := fh.sb.DecodeAddress(buf[pos:]); owner != fh.headerAddr {
		return nil, fmt.Errorf("indirect block heap header address mismatch: 0x%X (expected 0x%X)",
			owner, fh.headerAddr)
	}
	pos += sizeofAddr

	iblock := &IndirectBlock{
		Address:     address,
		BlockOffset: utils.ReadUint(buf[pos:], offSize, fh.sb.Endianness),
		NumRows:     nrows,
		Entries:     make([]uint64, numEntries),
	}
	pos += offSize

	for i := range iblock.Entries {
		iblock.Entries[i] = fh.sb.DecodeAddress(buf[pos:])
		pos += sizeofAddr
	}

	return iblock, nil
}

// locateDirectBlock finds the direct block holding the given heap offset.
func (fh *FractalHeap) locateDirectBlock(heapOffset uint64) (blockRef, error) {
	h := fh.Header

	if h.CurrentRowCount == 0 {
		if heapOffset >= h.StartingBlockSize {
			return blockRef{}, fmt.Errorf("heap offset 0x%X beyond root direct block", heapOffset)
		}
		return blockRef{address: h.RootBlockAddr, offset: 0, size: h.StartingBlockSize}, nil
	}

	address := h.RootBlockAddr
	nrows := uint(h.CurrentRowCount)
	var blockOffset uint64

	for depth := 0; depth < maxIndirectDepth; depth++ {
		iblock, err := fh.ParseIndirectBlock(address, nrows)
		if err != nil {
			return blockRef{}, err
		}
		if iblock.BlockOffset != blockOffset {
			return blockRef{}, fmt.Errorf("indirect block offset 0x%X, expected 0x%X", iblock.BlockOffset, blockOffset)
		}

		rel := heapOffset - blockOffset
		row, col, ok := fh.findRow(rel, nrows)
		if !ok {
			return blockRef{}, fmt.Errorf("heap offset 0x%X beyond indirect block at 0x%X", heapOffset, address)
		}

		rowSize := h.rowBlockSize(row)
		child := iblock.Entries[row*uint(h.TableWidth)+col]
		childOffset := blockOffset + h.rowOffset(row) + uint64(col)*rowSize
		if fh.sb.IsUndefined(child) || child == 0 {
			return blockRef{}, fmt.Errorf("heap offset 0x%X is in an unallocated block", heapOffset)
		}

		if row < h.MaxDirectRows {
			return blockRef{address: child, offset: childOffset, size: rowSize}, nil
		}

		address = child
		blockOffset = childOffset
		nrows = h.childIndirectRows(rowSize)
	}

	return blockRef{}, fmt.Errorf("fractal heap indirect blocks nested deeper than %d", maxIndirectDepth)
}

// findRow maps an offset relative to an indirect block onto a row and
// column of its doubling table.
func (fh *FractalHeap) findRow(rel uint64, nrows uint) (row, col uint, ok bool) {
	h := fh.Header
	for r := uint(0); r < nrows; r++ {
		size := h.rowBlockSize(r)
		start := h.rowOffset(r)
		span := uint64(h.TableWidth) * size
		if rel >= start && rel < start+span {
			return r, uint((rel - start) / size), true
		}
	}
	return 0, 0, false
}

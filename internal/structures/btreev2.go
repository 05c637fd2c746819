// Copyright (c) 2025 SciGo HDF5 Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package structures

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/utils"
)

// B-tree v2 constants.
const (
	BTreeV2HeaderSignature   = "BTHD" // B-tree v2 header signature
	BTreeV2LeafSignature     = "BTLF" // B-tree v2 leaf node signature
	BTreeV2InternalSignature = "BTIN" // B-tree v2 internal node signature

	BTreeV2TypeLinkNameIndex     = uint8(5) // Link name index of a dense group
	BTreeV2TypeLinkCreationIndex = uint8(6) // Creation order index of a dense group

	// Signature, version, type and checksum.
	btreeV2NodePrefixSize = 10
)

// BTreeV2Header represents B-tree v2 header structure.
//
// Format:
//   - Signature: "BTHD" (4 bytes)
//   - Version: 0 (1 byte)
//   - Type (1 byte)
//   - Node Size (4 bytes)
//   - Record Size (2 bytes)
//   - Depth (2 bytes)
//   - Split Percent (1 byte)
//   - Merge Percent (1 byte)
//   - Root Node Address (offsetSize bytes)
//   - Number of Records in Root (2 bytes)
//   - Total Records (lengthSize bytes)
//   - Checksum (4 bytes)
type BTreeV2Header struct {
	Version        uint8
	Type           uint8
	NodeSize       uint32
	RecordSize     uint16
	Depth          uint16
	SplitPercent   uint8
	MergePercent   uint8
	RootNodeAddr   uint64
	NumRecordsRoot uint16
	TotalRecords   uint64
}

// btreeV2NodeInfo holds the per-depth sizes derived from the header.
type btreeV2NodeInfo struct {
	maxRecords        uint64
	cumMaxRecords     uint64
	cumMaxRecordsSize int
}

// BTreeV2 is a read-only view of a version 2 B-tree.
type BTreeV2 struct {
	Header *BTreeV2Header

	reader   io.ReaderAt
	sb       *core.Superblock
	nodeInfo []btreeV2NodeInfo
	// Width of the child record count in internal node pointers.
	maxRecordsSize int
}

// OpenBTreeV2 reads the B-tree v2 header at address.
func OpenBTreeV2(r io.ReaderAt, address uint64, sb *core.Superblock) (*BTreeV2, error) {
	if sb.IsUndefined(address) || address == 0 {
		return nil, fmt.Errorf("invalid B-tree v2 address: 0x%X", address)
	}

	header, err := readBTreeV2Header(r, address, sb)
	if err != nil {
		return nil, err
	}

	bt := &BTreeV2{Header: header, reader: r, sb: sb}
	if err := bt.computeNodeInfo(); err != nil {
		return nil, err
	}
	return bt, nil
}

// readBTreeV2Header reads and validates the header.
func readBTreeV2Header(r io.ReaderAt, address uint64, sb *core.Superblock) (*BTreeV2Header, error) {
	size := 4 + 1 + 1 + 4 + 2 + 2 + 1 + 1 + int(sb.OffsetSize) + 2 + int(sb.LengthSize) + 4

	buf := utils.GetBuffer(size)
	defer utils.ReleaseBuffer(buf)

	//nolint:gosec // G115: address conversion, valid for file I/O
	if _, err := r.ReadAt(buf, int64(address)); err != nil {
		return nil, fmt.Errorf("failed to read B-tree header at 0x%X: %w", address, err)
	}

	if sig := string(buf[0:4]); sig != BTreeV2HeaderSignature {
		return nil, fmt.Errorf("invalid B-tree header signature: got %q, want %q", sig, BTreeV2HeaderSignature)
	}

	le := sb.Endianness
	h := &BTreeV2Header{
		Version:      buf[4],
		Type:         buf[5],
		NodeSize:     le.Uint32(buf[6:10]),
		RecordSize:   le.Uint16(buf[10:12]),
		Depth:        le.Uint16(buf[12:14]),
		SplitPercent: buf[14],
		MergePercent: buf[15],
	}
	if h.Version != 0 {
		return nil, fmt.Errorf("unsupported B-tree version: %d", h.Version)
	}

	offset := 16
	h.RootNodeAddr = sb.DecodeAddress(buf[offset:])
	offset += int(sb.OffsetSize)
	h.NumRecordsRoot = le.Uint16(buf[offset : offset+2])
	offset += 2
	h.TotalRecords = sb.DecodeLength(buf[offset:])
	offset += int(sb.LengthSize)

	stored := le.Uint32(buf[offset : offset+4])
	if err := utils.VerifyChecksum("B-tree v2 header", address, buf[:offset], stored); err != nil {
		return nil, err
	}

	if h.RecordSize == 0 {
		return nil, errors.New("B-tree v2 record size is zero")
	}
	if int(h.NodeSize) <= btreeV2NodePrefixSize+int(h.RecordSize) || h.NodeSize > utils.MaxMetadataBlock {
		return nil, fmt.Errorf("invalid B-tree v2 node size: %d", h.NodeSize)
	}

	return h, nil
}

// computeNodeInfo derives the record capacity of nodes at each depth.
func (bt *BTreeV2) computeNodeInfo() error {
	h := bt.Header
	bt.nodeInfo = make([]btreeV2NodeInfo, int(h.Depth)+1)

	leafMax := uint64(int(h.NodeSize)-btreeV2NodePrefixSize) / uint64(h.RecordSize)
	bt.nodeInfo[0] = btreeV2NodeInfo{maxRecords: leafMax, cumMaxRecords: leafMax}
	bt.maxRecordsSize = int(utils.LimitEncodeSize(leafMax))

	for d := 1; d <= int(h.Depth); d++ {
		ptrSize := bt.pointerSize(d)
		avail := int(h.NodeSize) - btreeV2NodePrefixSize - ptrSize
		if avail <= 0 {
			return fmt.Errorf("B-tree v2 node size %d too small for depth %d", h.NodeSize, d)
		}
		maxRec := uint64(avail / (int(h.RecordSize) + ptrSize)) //nolint:gosec // G115: positive
		if maxRec == 0 {
			return fmt.Errorf("B-tree v2 node size %d too small for depth %d", h.NodeSize, d)
		}
		prev := bt.nodeInfo[d-1].cumMaxRecords
		cum := (maxRec+1)*prev + maxRec
		bt.nodeInfo[d] = btreeV2NodeInfo{
			maxRecords:        maxRec,
			cumMaxRecords:     cum,
			cumMaxRecordsSize: int(utils.LimitEncodeSize(cum)),
		}
	}
	return nil
}

// pointerSize returns the size of a child pointer in an internal node at
// depth d: address, child record count and, below depth 1, the child's
// total record count.
func (bt *BTreeV2) pointerSize(d int) int {
	size := int(bt.sb.OffsetSize) + bt.maxRecordsSize
	if d > 1 {
		size += bt.nodeInfo[d-1].cumMaxRecordsSize
	}
	return size
}

// VisitRecords calls visit for every record in key order. Records are
// slices into a buffer owned by the caller's visit call only; copy them to
// retain them.
func (bt *BTreeV2) VisitRecords(visit func(record []byte) error) error {
	h := bt.Header
	if h.TotalRecords == 0 || bt.sb.IsUndefined(h.RootNodeAddr) {
		return nil
	}
	return bt.visitNode(h.RootNodeAddr, int(h.Depth), int(h.NumRecordsRoot), visit)
}

// visitNode walks the node at address holding nrec records.
func (bt *BTreeV2) visitNode(address uint64, depth, nrec int, visit func([]byte) error) error {
	if uint64(nrec) > bt.nodeInfo[depth].maxRecords { //nolint:gosec // G115: non-negative
		return fmt.Errorf("B-tree v2 node at 0x%X claims %d records (max %d)",
			address, nrec, bt.nodeInfo[depth].maxRecords)
	}

	buf := make([]byte, bt.Header.NodeSize)
	//nolint:gosec // G115: address conversion, valid for file I/O
	if _, err := bt.reader.ReadAt(buf, int64(address)); err != nil {
		return fmt.Errorf("failed to read B-tree node at 0x%X: %w", address, err)
	}

	wantSig := BTreeV2LeafSignature
	if depth > 0 {
		wantSig = BTreeV2InternalSignature
	}
	if sig := string(buf[0:4]); sig != wantSig {
		return fmt.Errorf("invalid B-tree node signature at 0x%X: got %q, want %q", address, sig, wantSig)
	}
	if buf[4] != 0 {
		return fmt.Errorf("unsupported B-tree node version: %d", buf[4])
	}
	if buf[5] != bt.Header.Type {
		return fmt.Errorf("B-tree node type %d does not match header type %d", buf[5], bt.Header.Type)
	}

	recSize := int(bt.Header.RecordSize)
	records := buf[6 : 6+nrec*recSize]
	end := 6 + nrec*recSize
	if depth > 0 {
		end += (nrec + 1) * bt.pointerSize(depth)
	}
	if end+4 > len(buf) {
		return fmt.Errorf("B-tree node at 0x%X overflows node size", address)
	}

	stored := bt.sb.Endianness.Uint32(buf[end : end+4])
	if err := utils.VerifyChecksum("B-tree v2 node", address, buf[:end], stored); err != nil {
		return err
	}

	if depth == 0 {
		for i := 0; i < nrec; i++ {
			if err := visit(records[i*recSize : (i+1)*recSize]); err != nil {
				return err
			}
		}
		return nil
	}

	pos := 6 + nrec*recSize
	for i := 0; i <= nrec; i++ {
		childAddr := bt.sb.DecodeAddress(buf[pos:])
		pos += int(bt.sb.OffsetSize)
		childRecs := utils.ReadUint(buf[pos:], bt.maxRecordsSize, bt.sb.Endianness)
		pos += bt.maxRecordsSize
		if depth > 1 {
			pos += bt.nodeInfo[depth-1].cumMaxRecordsSize
		}

		//nolint:gosec // G115: bounded by node capacity check in the child
		if err := bt.visitNode(childAddr, depth-1, int(childRecs), visit); err != nil {
			return err
		}
		if i < nrec {
			if err := visit(records[i*recSize : (i+1)*recSize]); err != nil {
				return err
			}
		}
	}

	return nil
}

// LinkNameRecord is a record of a dense group's link name index: the
// lookup3 hash of the link name and the fractal heap ID of the encoded
// link message.
type LinkNameRecord struct {
	NameHash uint32
	HeapID   []byte
}

// LinkNameRecords returns every record of a link name index.
func (bt *BTreeV2) LinkNameRecords() ([]LinkNameRecord, error) {
	if bt.Header.Type != BTreeV2TypeLinkNameIndex {
		return nil, fmt.Errorf("B-tree type %d is not a link name index", bt.Header.Type)
	}
	if bt.Header.RecordSize <= 4 {
		return nil, fmt.Errorf("link name record size %d too small", bt.Header.RecordSize)
	}

	var out []LinkNameRecord
	err := bt.VisitRecords(func(rec []byte) error {
		id := make([]byte, len(rec)-4)
		copy(id, rec[4:])
		out = append(out, LinkNameRecord{
			NameHash: bt.sb.Endianness.Uint32(rec[0:4]),
			HeapID:   id,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LinkNameHash returns the hash stored in link name index records.
func LinkNameHash(name string) uint32 {
	return utils.Lookup3([]byte(name), 0)
}

package core

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// LinkInfoMessage represents the Link Info message (HDF5 message type 0x0002).
// Groups created with the "new style" storage carry one. It tells whether
// links live in the object header (compact) or in a fractal heap indexed by
// v2 B-trees (dense), and whether creation order is tracked.
//
// Format:
//   - Version (1 byte): Always 0
//   - Flags (1 byte): Bit 0 = track creation order, Bit 1 = index creation order
//   - Max Creation Order (8 bytes, optional): Present if bit 0 of flags is set
//   - Fractal Heap Address (offsetSize bytes): Undefined for compact storage
//   - Name B-tree v2 Address (offsetSize bytes)
//   - Creation Order B-tree v2 Address (offsetSize bytes, optional): Present if bit 1 of flags is set
type LinkInfoMessage struct {
	Version uint8
	Flags   uint8

	// MaxCreationOrder is the highest creation order value handed out so far.
	MaxCreationOrder int64

	FractalHeapAddress        uint64
	NameBTreeAddress          uint64
	CreationOrderBTreeAddress uint64

	undefined uint64
}

// Flags for LinkInfoMessage.
const (
	LinkInfoTrackCreationOrder uint8 = 0x01
	LinkInfoIndexCreationOrder uint8 = 0x02
)

// HasCreationOrderTracking returns true if creation order is tracked.
func (lim *LinkInfoMessage) HasCreationOrderTracking() bool {
	return (lim.Flags & LinkInfoTrackCreationOrder) != 0
}

// HasCreationOrderIndex returns true if creation order is indexed.
func (lim *LinkInfoMessage) HasCreationOrderIndex() bool {
	return (lim.Flags & LinkInfoIndexCreationOrder) != 0
}

// IsDense reports whether links are stored in a fractal heap rather than
// as link messages in the object header.
func (lim *LinkInfoMessage) IsDense() bool {
	return lim.FractalHeapAddress != lim.undefined && lim.FractalHeapAddress != 0
}

// ParseLinkInfoMessage parses Link Info message from header message data.
func ParseLinkInfoMessage(data []byte, sb *Superblock) (*LinkInfoMessage, error) {
	if len(data) < 2 {
		return nil, errors.New("link info message too short (need at least 2 bytes for version and flags)")
	}

	lim := &LinkInfoMessage{
		Version:   data[0],
		Flags:     data[1],
		undefined: sb.UndefinedAddress(),
	}
	offset := 2

	if lim.Version != 0 {
		return nil, fmt.Errorf("unsupported link info version: %d (only version 0 is supported)", lim.Version)
	}

	const validFlagsMask = LinkInfoTrackCreationOrder | LinkInfoIndexCreationOrder
	if lim.Flags&^validFlagsMask != 0 {
		return nil, fmt.Errorf("invalid link info flags: 0x%02X (reserved bits set)", lim.Flags)
	}

	if lim.HasCreationOrderTracking() {
		if len(data) < offset+8 {
			return nil, errors.New("link info message truncated (missing max creation order)")
		}
		//nolint:gosec // G115: validated non-negative below
		lim.MaxCreationOrder = int64(binary.LittleEndian.Uint64(data[offset : offset+8]))
		if lim.MaxCreationOrder < 0 {
			return nil, fmt.Errorf("invalid max creation order value: %d (must be >= 0)", lim.MaxCreationOrder)
		}
		offset += 8
	}

	addrSize := int(sb.OffsetSize)
	need := offset + 2*addrSize
	if lim.HasCreationOrderIndex() {
		need += addrSize
	}
	if len(data) < need {
		return nil, fmt.Errorf("link info message truncated: need %d bytes, have %d", need, len(data))
	}

	lim.FractalHeapAddress = sb.DecodeAddress(data[offset:])
	offset += addrSize
	lim.NameBTreeAddress = sb.DecodeAddress(data[offset:])
	offset += addrSize

	lim.CreationOrderBTreeAddress = lim.undefined
	if lim.HasCreationOrderIndex() {
		lim.CreationOrderBTreeAddress = sb.DecodeAddress(data[offset:])
	}

	return lim, nil
}

// SymbolTableMessage represents the Symbol Table message (type 0x0011)
// carried by "old style" groups: the root of the v1 B-tree indexing the
// group's symbol table nodes and the local heap holding link names.
type SymbolTableMessage struct {
	BTreeAddress uint64
	HeapAddress  uint64
}

// ParseSymbolTableMessage parses a Symbol Table message.
func ParseSymbolTableMessage(data []byte, sb *Superblock) (*SymbolTableMessage, error) {
	need := 2 * int(sb.OffsetSize)
	if len(data) < need {
		return nil, fmt.Errorf("symbol table message too short: need %d bytes, have %d", need, len(data))
	}
	return &SymbolTableMessage{
		BTreeAddress: sb.DecodeAddress(data),
		HeapAddress:  sb.DecodeAddress(data[sb.OffsetSize:]),
	}, nil
}

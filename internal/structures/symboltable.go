package structures

import (
	"fmt"
	"io"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/utils"
)

// SymbolTableSignature is the 4-byte signature for symbol table nodes.
const SymbolTableSignature = "SNOD"

// Cache type constants for symbol table entries.
const (
	// CacheTypeNone indicates no cached information.
	CacheTypeNone uint32 = 0
	// CacheTypeSymbolTable indicates cached symbol table addresses (H5G_CACHED_STAB).
	CacheTypeSymbolTable uint32 = 1
	// CacheTypeSoftLink indicates a soft link (H5G_CACHED_SLINK).
	// The object address is undefined and the link value lives in the
	// local heap at CachedSoftLinkOffset.
	CacheTypeSoftLink uint32 = 2
)

// SymbolTableEntry represents a single entry in a symbol table node.
// Entry format:
//   - Link Name Offset (offsetSize bytes): Offset into local heap for link name
//   - Object Header Address (offsetSize bytes)
//   - Cache Type (4 bytes)
//   - Reserved (4 bytes)
//   - Scratch-pad Space (16 bytes):
//   - For CacheType=1: B-tree address + heap address
//   - For CacheType=2: soft link value offset (4 bytes) into local heap
type SymbolTableEntry struct {
	LinkNameOffset uint64
	ObjectAddress  uint64
	CacheType      uint32

	CachedBTreeAddr uint64
	CachedHeapAddr  uint64

	CachedSoftLinkOffset uint32
}

// IsSoftLink returns true if this entry represents a soft link.
func (e *SymbolTableEntry) IsSoftLink() bool {
	return e.CacheType == CacheTypeSoftLink
}

// SymbolTableNode represents a Symbol Table Node (SNOD structure).
type SymbolTableNode struct {
	Version    uint8
	NumSymbols uint16
	Entries    []SymbolTableEntry
}

// symbolTableEntrySize is the on-disk size of one entry.
func symbolTableEntrySize(sb *core.Superblock) int {
	return int(sb.OffsetSize)*2 + 4 + 4 + 16
}

// ParseSymbolTableNode parses a Symbol Table Node (SNOD).
// Format:
// - 4 bytes: Signature ("SNOD").
// - 1 byte: Version (1).
// - 1 byte: Reserved (0).
// - 2 bytes: Number of symbols.
// - Then symbol table entries follow.
func ParseSymbolTableNode(r io.ReaderAt, address uint64, sb *core.Superblock) (*SymbolTableNode, error) {
	header := utils.GetBuffer(8)
	defer utils.ReleaseBuffer(header)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(header, int64(address)); err != nil {
		return nil, utils.WrapError("SNOD header read failed", err)
	}

	if sig := string(header[0:4]); sig != SymbolTableSignature {
		return nil, fmt.Errorf("invalid SNOD signature at 0x%X: %q", address, sig)
	}

	version := header[4]
	if version != 1 {
		return nil, fmt.Errorf("unsupported SNOD version: %d", version)
	}

	numSymbols := sb.Endianness.Uint16(header[6:8])
	node := &SymbolTableNode{
		Version:    version,
		NumSymbols: numSymbols,
		Entries:    make([]SymbolTableEntry, 0, numSymbols),
	}
	if numSymbols == 0 {
		return node, nil
	}

	entrySize := symbolTableEntrySize(sb)
	data := make([]byte, int(numSymbols)*entrySize)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(data, int64(address)+8); err != nil {
		return nil, utils.WrapError("SNOD entries read failed", err)
	}

	for i := 0; i < int(numSymbols); i++ {
		node.Entries = append(node.Entries, decodeSymbolTableEntry(data[i*entrySize:], sb))
	}

	return node, nil
}

// decodeSymbolTableEntry decodes one entry from data.
func decodeSymbolTableEntry(data []byte, sb *core.Superblock) SymbolTableEntry {
	offsetSize := int(sb.OffsetSize)
	pos := 0

	entry := SymbolTableEntry{}
	entry.LinkNameOffset = sb.DecodeAddress(data[pos:])
	pos += offsetSize
	entry.ObjectAddress = sb.DecodeAddress(data[pos:])
	pos += offsetSize
	entry.CacheType = sb.Endianness.Uint32(data[pos : pos+4])
	pos += 8 // Cache type and reserved.

	switch entry.CacheType {
	case CacheTypeSymbolTable:
		entry.CachedBTreeAddr = sb.DecodeAddress(data[pos:])
		entry.CachedHeapAddr = sb.DecodeAddress(data[pos+offsetSize:])
	case CacheTypeSoftLink:
		entry.CachedSoftLinkOffset = sb.Endianness.Uint32(data[pos : pos+4])
	}

	return entry
}

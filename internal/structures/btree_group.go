// Package structures provides parsers for HDF5 internal data structures.
package structures

import (
	"fmt"
	"io"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/utils"
)

// BTreeV1Signature is the signature of a version 1 B-tree node.
const BTreeV1Signature = "TREE"

// btreeV1GroupNode is the node type of B-trees indexing group symbol tables.
const btreeV1GroupNode = 0

// maxBTreeDepth bounds recursion through malformed or cyclic trees.
const maxBTreeDepth = 64

// BTreeNodeV1 represents a version 1 B-tree node for group symbol tables.
//
// Format:
//   - 4 bytes: Signature ("TREE")
//   - 1 byte: Node type (0 = group B-tree)
//   - 1 byte: Node level (0 = leaf, 1+ = internal)
//   - 2 bytes: Number of entries used
//   - offsetSize bytes: Left sibling address
//   - offsetSize bytes: Right sibling address
//   - Then keys and children interleaved: Key[0], Child[0], ..., Child[N-1], Key[N]
//
// Group keys are heap offsets of lengthSize bytes. Children of leaf nodes
// are symbol table node addresses; children of internal nodes are B-tree
// nodes one level down.
type BTreeNodeV1 struct {
	Address       uint64
	NodeType      uint8
	NodeLevel     uint8
	EntriesUsed   uint16
	LeftSibling   uint64
	RightSibling  uint64
	Keys          []uint64
	ChildPointers []uint64
}

// ReadBTreeNodeV1 reads a single group B-tree node.
func ReadBTreeNodeV1(r io.ReaderAt, address uint64, sb *core.Superblock) (*BTreeNodeV1, error) {
	offsetSize := int(sb.OffsetSize)
	lengthSize := int(sb.LengthSize)
	headerSize := 8 + 2*offsetSize

	header := utils.GetBuffer(headerSize)
	defer utils.ReleaseBuffer(header)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(header, int64(address)); err != nil {
		return nil, utils.WrapError("B-tree node header read failed", err)
	}

	if sig := string(header[0:4]); sig != BTreeV1Signature {
		return nil, fmt.Errorf("invalid B-tree signature at 0x%X: %q (expected TREE)", address, sig)
	}

	node := &BTreeNodeV1{
		Address:      address,
		NodeType:     header[4],
		NodeLevel:    header[5],
		EntriesUsed:  sb.Endianness.Uint16(header[6:8]),
		LeftSibling:  sb.DecodeAddress(header[8:]),
		RightSibling: sb.DecodeAddress(header[8+offsetSize:]),
	}

	if node.NodeType != btreeV1GroupNode {
		return nil, fmt.Errorf("expected group B-tree (type 0), got type %d", node.NodeType)
	}

	if node.EntriesUsed == 0 {
		return node, nil
	}

	n := int(node.EntriesUsed)
	data := make([]byte, n*(lengthSize+offsetSize)+lengthSize)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(data, int64(address)+int64(headerSize)); err != nil {
		return nil, utils.WrapError("B-tree data read failed", err)
	}

	node.Keys = make([]uint64, 0, n+1)
	node.ChildPointers = make([]uint64, 0, n)
	pos := 0
	for i := 0; i < n; i++ {
		node.Keys = append(node.Keys, sb.DecodeLength(data[pos:]))
		pos += lengthSize
		node.ChildPointers = append(node.ChildPointers, sb.DecodeAddress(data[pos:]))
		pos += offsetSize
	}
	node.Keys = append(node.Keys, sb.DecodeLength(data[pos:]))

	return node, nil
}

// ReadGroupBTreeEntries walks a group B-tree from its root and returns the
// symbol table entries of every symbol table node, in key order.
func ReadGroupBTreeEntries(r io.ReaderAt, address uint64, sb *core.Superblock) ([]SymbolTableEntry, error) {
	var entries []SymbolTableEntry
	err := walkGroupBTree(r, address, sb, -1, 0, func(e SymbolTableEntry) {
		entries = append(entries, e)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// walkGroupBTree visits the subtree rooted at address. wantLevel is the
// level the parent expects this node to have, or -1 for the root.
func walkGroupBTree(r io.ReaderAt, address uint64, sb *core.Superblock, wantLevel, depth int, visit func(SymbolTableEntry)) error {
	if depth > maxBTreeDepth {
		return fmt.Errorf("B-tree deeper than %d levels", maxBTreeDepth)
	}

	node, err := ReadBTreeNodeV1(r, address, sb)
	if err != nil {
		return err
	}
	if wantLevel >= 0 && int(node.NodeLevel) != wantLevel {
		return fmt.Errorf("B-tree node at 0x%X has level %d, expected %d", address, node.NodeLevel, wantLevel)
	}

	for _, child := range node.ChildPointers {
		if sb.IsUndefined(child) {
			continue
		}

		if node.NodeLevel > 0 {
			if err := walkGroupBTree(r, child, sb, int(node.NodeLevel)-1, depth+1, visit); err != nil {
				return err
			}
			continue
		}

		snod, err := ParseSymbolTableNode(r, child, sb)
		if err != nil {
			return utils.WrapError("symbol table node read failed", err)
		}
		for _, entry := range snod.Entries {
			visit(entry)
		}
	}

	return nil
}

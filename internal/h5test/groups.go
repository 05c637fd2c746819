package h5test

import (
	"slices"
	"strings"
)

// Link describes one link of a synthesized group.
type Link struct {
	Name string

	// Address is the target of a hard link.
	Address uint64
	// Soft is the target path of a soft link.
	Soft string
	// ExternalFile and ExternalPath make an external link.
	ExternalFile string
	ExternalPath string

	// CreationOrder is stored when TrackOrder is set.
	CreationOrder int64
	TrackOrder    bool
}

// Hard returns a hard link.
func Hard(name string, address uint64) Link {
	return Link{Name: name, Address: address}
}

// Soft returns a soft link.
func Soft(name, target string) Link {
	return Link{Name: name, Soft: target}
}

// External returns an external link.
func External(name, file, path string) Link {
	return Link{Name: name, ExternalFile: file, ExternalPath: path}
}

func (l Link) linkType() byte {
	switch {
	case l.ExternalFile != "":
		return 64
	case l.Soft != "":
		return 1
	default:
		return 0
	}
}

// Encode returns the link message encoding of l.
func (l Link) Encode() []byte {
	var flags byte
	if len(l.Name) > 255 {
		flags |= 0x01
	}
	lt := l.linkType()
	if lt != 0 {
		flags |= 0x08
	}
	if l.TrackOrder {
		flags |= 0x04
	}

	data := []byte{1, flags}
	if lt != 0 {
		data = append(data, lt)
	}
	if l.TrackOrder {
		data = le.AppendUint64(data, uint64(l.CreationOrder)) //nolint:gosec // G115: test values are non-negative
	}
	if flags&0x01 != 0 {
		data = le.AppendUint16(data, uint16(len(l.Name))) //nolint:gosec // G115: test sizes are small
	} else {
		data = append(data, byte(len(l.Name)))
	}
	data = append(data, l.Name...)

	switch lt {
	case 0:
		data = le.AppendUint64(data, l.Address)
	case 1:
		data = le.AppendUint16(data, uint16(len(l.Soft))) //nolint:gosec // G115: test sizes are small
		data = append(data, l.Soft...)
	default:
		value := []byte{0}
		value = append(value, l.ExternalFile...)
		value = append(value, 0)
		value = append(value, l.ExternalPath...)
		value = append(value, 0)
		data = le.AppendUint16(data, uint16(len(value))) //nolint:gosec // G115: test sizes are small
		data = append(data, value...)
	}
	return data
}

// Message returns l as a link header message.
func (l Link) Message() Message {
	return Message{Type: MsgLink, CreationOrder: uint16(l.CreationOrder), Data: l.Encode()} //nolint:gosec // G115: small
}

// SymbolTableOptions controls symbol table group layout.
type SymbolTableOptions struct {
	// EntriesPerNode caps the entries of each symbol table node (default 8).
	EntriesPerNode int
	// Fanout caps the children of each B-tree node (default 16).
	Fanout int
}

// SymbolTable holds the addresses of a symbol table group.
type SymbolTable struct {
	Header uint64
	BTree  uint64
	Heap   uint64
}

// SymbolTableGroup appends a symbol table group holding links. Only hard
// and soft links can be stored.
func (b *Builder) SymbolTableGroup(opts SymbolTableOptions, links ...Link) SymbolTable {
	st := b.symbolTable(opts, links)
	st.Header = b.ObjectHeaderV1(SymbolTableMessage(st.BTree, st.Heap))
	return st
}

// symbolTable writes the local heap, symbol table nodes and B-tree.
func (b *Builder) symbolTable(opts SymbolTableOptions, links []Link) SymbolTable {
	if opts.EntriesPerNode <= 0 {
		opts.EntriesPerNode = 8
	}
	if opts.Fanout <= 0 {
		opts.Fanout = 16
	}

	sorted := slices.Clone(links)
	slices.SortFunc(sorted, func(a, c Link) int { return strings.Compare(a.Name, c.Name) })

	// Local heap data: the empty string at offset 0, then names and soft
	// link values, each padded to 8 bytes.
	data := make([]byte, 8)
	addString := func(s string) uint64 {
		off := uint64(len(data))
		data = append(data, pad8(append([]byte(s), 0))...)
		return off
	}
	nameOffsets := make([]uint64, len(sorted))
	softOffsets := make([]uint64, len(sorted))
	for i, l := range sorted {
		nameOffsets[i] = addString(l.Name)
		if l.Soft != "" {
			softOffsets[i] = addString(l.Soft)
		}
	}

	dataAddr := b.Put(data)
	heap := []byte("HEAP")
	heap = append(heap, 0, 0, 0, 0)
	heap = le.AppendUint64(heap, uint64(len(data)))
	heap = le.AppendUint64(heap, Undefined)
	heap = le.AppendUint64(heap, dataAddr)
	heapAddr := b.Put(heap)

	// Symbol table nodes, each keyed by the name offset of its last entry.
	type child struct {
		addr uint64
		key  uint64
	}
	var leaves []child
	for start := 0; start < len(sorted); start += opts.EntriesPerNode {
		end := min(start+opts.EntriesPerNode, len(sorted))
		node := []byte("SNOD")
		node = append(node, 1, 0)
		node = le.AppendUint16(node, uint16(end-start)) //nolint:gosec // G115: test sizes are small
		for i := start; i < end; i++ {
			l := sorted[i]
			node = le.AppendUint64(node, nameOffsets[i])
			if l.Soft != "" {
				node = le.AppendUint64(node, Undefined)
				node = le.AppendUint32(node, 2)
				node = le.AppendUint32(node, 0)
				node = le.AppendUint32(node, uint32(softOffsets[i])) //nolint:gosec // G115: test sizes are small
				node = append(node, make([]byte, 12)...)
			} else {
				node = le.AppendUint64(node, l.Address)
				node = le.AppendUint32(node, 0)
				node = le.AppendUint32(node, 0)
				node = append(node, make([]byte, 16)...)
			}
		}
		leaves = append(leaves, child{addr: b.Put(node), key: nameOffsets[end-1]})
	}

	// B-tree levels, built bottom-up until one root remains.
	level := 0
	nodes := leaves
	for {
		var parents []child
		for start := 0; start < len(nodes) || (start == 0 && len(nodes) == 0); start += opts.Fanout {
			end := min(start+opts.Fanout, len(nodes))
			tree := []byte("TREE")
			tree = append(tree, 0, byte(level))
			tree = le.AppendUint16(tree, uint16(end-start)) //nolint:gosec // G115: test sizes are small
			tree = le.AppendUint64(tree, Undefined)
			tree = le.AppendUint64(tree, Undefined)
			tree = le.AppendUint64(tree, 0)
			var last uint64
			for _, c := range nodes[start:end] {
				tree = le.AppendUint64(tree, c.addr)
				tree = le.AppendUint64(tree, c.key)
				last = c.key
			}
			parents = append(parents, child{addr: b.Put(tree), key: last})
			if len(nodes) == 0 {
				break
			}
		}
		if len(parents) == 1 {
			return SymbolTable{BTree: parents[0].addr, Heap: heapAddr}
		}
		nodes = parents
		level++
	}
}

// CompactOptions controls compact group layout.
type CompactOptions struct {
	// TrackOrder records link creation order in the link info message.
	TrackOrder bool
	// V1Header writes a version 1 object header instead of version 2.
	V1Header bool
	// NoLinkInfo omits the link info and group info messages.
	NoLinkInfo bool
}

// CompactGroup appends a group storing links as header messages.
func (b *Builder) CompactGroup(opts CompactOptions, links ...Link) uint64 {
	var msgs []Message
	if !opts.NoLinkInfo {
		msgs = append(msgs,
			LinkInfoMessage(opts.TrackOrder, int64(len(links)), Undefined, Undefined),
			GroupInfoMessage())
	}
	for i, l := range links {
		if opts.TrackOrder && !l.TrackOrder {
			l.TrackOrder = true
			l.CreationOrder = int64(i)
		}
		msgs = append(msgs, l.Message())
	}

	if opts.V1Header {
		return b.ObjectHeaderV1(msgs...)
	}
	return b.ObjectHeaderV2(V2Options{}, msgs...)
}

package structures

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/h5test"
)

func testSuperblock() *core.Superblock {
	return &core.Superblock{OffsetSize: 8, LengthSize: 8, Endianness: binary.LittleEndian}
}

// entryNames resolves the link names of entries through heap.
func entryNames(t *testing.T, heap *LocalHeap, entries []SymbolTableEntry) []string {
	t.Helper()
	names := make([]string, len(entries))
	for i, e := range entries {
		name, err := heap.GetString(e.LinkNameOffset)
		require.NoError(t, err)
		names[i] = name
	}
	return names
}

func TestReadGroupBTreeEntries(t *testing.T) {
	tests := []struct {
		name  string
		opts  h5test.SymbolTableOptions
		links int
	}{
		{"single node", h5test.SymbolTableOptions{}, 5},
		{"several leaves", h5test.SymbolTableOptions{EntriesPerNode: 3}, 10},
		{"multi-level", h5test.SymbolTableOptions{EntriesPerNode: 2, Fanout: 2}, 17},
		{"empty", h5test.SymbolTableOptions{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := h5test.New()
			target := b.Dataset()

			var links []h5test.Link
			var want []string
			for i := tt.links - 1; i >= 0; i-- {
				name := fmt.Sprintf("obj%02d", i)
				links = append(links, h5test.Hard(name, target))
			}
			for i := 0; i < tt.links; i++ {
				want = append(want, fmt.Sprintf("obj%02d", i))
			}
			st := b.SymbolTableGroup(tt.opts, links...)

			r := bytes.NewReader(b.Bytes())
			sb := testSuperblock()

			entries, err := ReadGroupBTreeEntries(r, st.BTree, sb)
			require.NoError(t, err)
			require.Len(t, entries, tt.links)

			heap, err := LoadLocalHeap(r, st.Heap, sb)
			require.NoError(t, err)
			if tt.links == 0 {
				require.Empty(t, entries)
				return
			}
			require.Equal(t, want, entryNames(t, heap, entries))
			for _, e := range entries {
				require.Equal(t, target, e.ObjectAddress)
				require.False(t, e.IsSoftLink())
			}
		})
	}
}

func TestReadGroupBTreeEntries_SoftLink(t *testing.T) {
	b := h5test.New()
	st := b.SymbolTableGroup(h5test.SymbolTableOptions{},
		h5test.Hard("data", b.Dataset()),
		h5test.Soft("link", "/data"),
	)
	r := bytes.NewReader(b.Bytes())
	sb := testSuperblock()

	entries, err := ReadGroupBTreeEntries(r, st.BTree, sb)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	heap, err := LoadLocalHeap(r, st.Heap, sb)
	require.NoError(t, err)

	soft := entries[1]
	require.True(t, soft.IsSoftLink())
	require.Equal(t, CacheTypeSoftLink, soft.CacheType)
	require.True(t, sb.IsUndefined(soft.ObjectAddress))

	target, err := heap.GetString(uint64(soft.CachedSoftLinkOffset))
	require.NoError(t, err)
	require.Equal(t, "/data", target)
}

func TestReadBTreeNodeV1(t *testing.T) {
	b := h5test.New()
	st := b.SymbolTableGroup(h5test.SymbolTableOptions{EntriesPerNode: 2},
		h5test.Hard("a", 0x100), h5test.Hard("b", 0x100), h5test.Hard("c", 0x100),
	)
	sb := testSuperblock()

	node, err := ReadBTreeNodeV1(bytes.NewReader(b.Bytes()), st.BTree, sb)
	require.NoError(t, err)
	require.Equal(t, st.BTree, node.Address)
	require.Equal(t, uint8(0), node.NodeType)
	require.Equal(t, uint8(0), node.NodeLevel)
	require.Equal(t, uint16(2), node.EntriesUsed)
	require.Len(t, node.ChildPointers, 2)
	require.Len(t, node.Keys, 3)
	require.True(t, sb.IsUndefined(node.LeftSibling))
	require.True(t, sb.IsUndefined(node.RightSibling))
}

// firstSymbolTableNode follows the first child pointer of each B-tree
// node down to a symbol table node.
func firstSymbolTableNode(image []byte, node uint64) uint64 {
	for {
		// Header of 24 bytes, then the first key.
		child := binary.LittleEndian.Uint64(image[node+24+8:])
		if image[node+5] == 0 {
			return child
		}
		node = child
	}
}

func TestReadGroupBTreeEntries_Errors(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(image []byte, st h5test.SymbolTable)
		address func(st h5test.SymbolTable) uint64
		wantErr string
	}{
		{
			name:    "not a B-tree",
			address: func(st h5test.SymbolTable) uint64 { return st.Heap },
			wantErr: "invalid B-tree signature",
		},
		{
			name:    "wrong node type",
			corrupt: func(image []byte, st h5test.SymbolTable) { image[st.BTree+4] = 1 },
			wantErr: "expected group B-tree",
		},
		{
			name: "bad symbol table node",
			corrupt: func(image []byte, st h5test.SymbolTable) {
				copy(image[firstSymbolTableNode(image, st.BTree):], "XXXX")
			},
			wantErr: "invalid SNOD signature",
		},
		{
			name: "unsupported symbol table node version",
			corrupt: func(image []byte, st h5test.SymbolTable) {
				image[firstSymbolTableNode(image, st.BTree)+4] = 2
			},
			wantErr: "unsupported SNOD version: 2",
		},
		{
			name: "child level mismatch",
			corrupt: func(image []byte, st h5test.SymbolTable) {
				// Claim the root is two levels above its leaves.
				image[st.BTree+5]++
			},
			wantErr: "expected 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := h5test.New()
			st := b.SymbolTableGroup(h5test.SymbolTableOptions{EntriesPerNode: 2, Fanout: 2},
				h5test.Hard("a", 0x100), h5test.Hard("b", 0x100), h5test.Hard("c", 0x100),
				h5test.Hard("d", 0x100), h5test.Hard("e", 0x100),
			)
			image := b.Bytes()
			if tt.corrupt != nil {
				tt.corrupt(image, st)
			}
			addr := st.BTree
			if tt.address != nil {
				addr = tt.address(st)
			}

			_, err := ReadGroupBTreeEntries(bytes.NewReader(image), addr, testSuperblock())
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadLocalHeap(t *testing.T) {
	b := h5test.New()
	st := b.SymbolTableGroup(h5test.SymbolTableOptions{}, h5test.Hard("name", 0x100))
	image := b.Bytes()
	sb := testSuperblock()

	heap, err := LoadLocalHeap(bytes.NewReader(image), st.Heap, sb)
	require.NoError(t, err)
	require.Equal(t, st.Heap, heap.Address)
	require.Len(t, heap.Data, 16)

	s, err := heap.GetString(0)
	require.NoError(t, err)
	require.Empty(t, s)

	s, err = heap.GetString(8)
	require.NoError(t, err)
	require.Equal(t, "name", s)

	_, err = heap.GetString(16)
	require.ErrorContains(t, err, "beyond heap data")

	_, err = LoadLocalHeap(bytes.NewReader(image), h5test.Undefined, sb)
	require.ErrorContains(t, err, "undefined")

	_, err = LoadLocalHeap(bytes.NewReader(image), st.BTree, sb)
	require.ErrorContains(t, err, "invalid local heap signature")

	image[st.Heap+4] = 1
	_, err = LoadLocalHeap(bytes.NewReader(image), st.Heap, sb)
	require.ErrorContains(t, err, "unsupported local heap version: 1")
}

func TestLocalHeapGetString_Unterminated(t *testing.T) {
	heap := &LocalHeap{Data: []byte("abc")}
	_, err := heap.GetString(1)
	require.ErrorContains(t, err, "not null-terminated")
}

package h5iterate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5iterate/internal/h5test"
)

// ignoreAddress compares members by name and classification only.
var ignoreAddress = cmpopts.IgnoreFields(MemberInfo{}, "Address")

func member(name string, typ ObjectType, lt LinkType) MemberInfo {
	return MemberInfo{Name: name, Type: typ, LinkType: lt}
}

func requireMembers(t *testing.T, want, got []MemberInfo) {
	t.Helper()
	if diff := cmp.Diff(want, got, ignoreAddress); diff != "" {
		t.Fatalf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupMembers_IterateExample(t *testing.T) {
	b := h5test.IterateExample()
	file := openImage(t, b)

	members, err := mustRoot(t, file).Members(IndexName)
	require.NoError(t, err)

	requireMembers(t, []MemberInfo{
		member("DS1", ObjectTypeDataset, LinkHard),
		member("DT1", ObjectTypeNamedDatatype, LinkHard),
		member("G1", ObjectTypeGroup, LinkHard),
		member("L1", ObjectTypeDataset, LinkSoft),
	}, members)

	// The soft link resolves to the object DS1 names.
	require.Equal(t, members[0].Address, members[3].Address)
	require.NotEqual(t, UndefinedAddress, members[0].Address)
}

// storageForms builds the same set of links in every group storage form.
func storageForms(links func(b *h5test.Builder) []h5test.Link) map[string]*h5test.Builder {
	forms := map[string]*h5test.Builder{}

	b := h5test.New()
	st := b.SymbolTableGroup(h5test.SymbolTableOptions{}, links(b)...)
	b.SuperblockV0(st.Header, st.BTree, st.Heap)
	forms["symbol table"] = b

	b = h5test.New()
	st = b.SymbolTableGroup(h5test.SymbolTableOptions{EntriesPerNode: 2, Fanout: 2}, links(b)...)
	b.SuperblockV0(st.Header, h5test.Undefined, h5test.Undefined)
	forms["multi-level symbol table"] = b

	b = h5test.New()
	b.SuperblockV2(2, b.CompactGroup(h5test.CompactOptions{}, links(b)...))
	forms["compact"] = b

	b = h5test.New()
	b.SuperblockV2(2, b.CompactGroup(h5test.CompactOptions{V1Header: true}, links(b)...))
	forms["compact v1 header"] = b

	b = h5test.New()
	b.SuperblockV2(2, b.CompactGroup(h5test.CompactOptions{NoLinkInfo: true}, links(b)...))
	forms["link messages only"] = b

	b = h5test.New()
	b.SuperblockV2(3, b.DenseGroup(h5test.DenseOptions{}, links(b)...).Header)
	forms["dense"] = b

	return forms
}

func TestGroupMembers_StorageForms(t *testing.T) {
	links := func(b *h5test.Builder) []h5test.Link {
		sub := b.CompactGroup(h5test.CompactOptions{})
		return []h5test.Link{
			h5test.Hard("temperature", b.Dataset(10, 10)),
			h5test.Hard("Pressure", b.Dataset(3)),
			h5test.Hard("units", b.NamedDatatype()),
			h5test.Hard("run1", sub),
			h5test.Hard("blob", b.UnknownObject()),
			h5test.Soft("latest", "run1"),
			h5test.Soft("broken", "/no/such/object"),
		}
	}

	want := []MemberInfo{
		member("Pressure", ObjectTypeDataset, LinkHard),
		member("blob", ObjectTypeUnknown, LinkHard),
		member("broken", ObjectTypeUnknown, LinkSoft),
		member("latest", ObjectTypeGroup, LinkSoft),
		member("run1", ObjectTypeGroup, LinkHard),
		member("temperature", ObjectTypeDataset, LinkHard),
		member("units", ObjectTypeNamedDatatype, LinkHard),
	}

	for name, b := range storageForms(links) {
		t.Run(name, func(t *testing.T) {
			file := openImage(t, b)
			root := mustRoot(t, file)

			n, err := root.NumMembers()
			require.NoError(t, err)
			require.Equal(t, len(want), n)

			members, err := root.Members(IndexName)
			require.NoError(t, err)
			requireMembers(t, want, members)
			require.Equal(t, UndefinedAddress, members[2].Address)
			require.Equal(t, members[4].Address, members[3].Address)
		})
	}
}

func TestGroupMembers_Empty(t *testing.T) {
	links := func(*h5test.Builder) []h5test.Link { return nil }

	forms := storageForms(links)
	// Without a link info message an empty header has nothing marking it
	// as a group.
	delete(forms, "link messages only")

	for name, b := range forms {
		t.Run(name, func(t *testing.T) {
			file := openImage(t, b)
			root := mustRoot(t, file)

			n, err := root.NumMembers()
			require.NoError(t, err)
			require.Zero(t, n)

			members, err := root.Members(IndexName)
			require.NoError(t, err)
			require.Empty(t, members)
		})
	}
}

func TestGroupMembers_ExternalAndUserDefined(t *testing.T) {
	b := h5test.New()
	root := b.CompactGroup(h5test.CompactOptions{},
		h5test.External("remote", "other.h5", "/data"),
		h5test.Hard("local", b.Dataset()),
	)
	b.SuperblockV2(2, root)

	members, err := mustRoot(t, openImage(t, b)).Members(IndexName)
	require.NoError(t, err)
	requireMembers(t, []MemberInfo{
		member("local", ObjectTypeDataset, LinkHard),
		member("remote", ObjectTypeUnknown, LinkExternal),
	}, members)
	require.Equal(t, UndefinedAddress, members[1].Address)
}

func TestGroupMembers_CreationOrder(t *testing.T) {
	names := []string{"zulu", "alpha", "mike", "bravo"}
	build := func(dense bool) *h5test.Builder {
		b := h5test.New()
		links := make([]h5test.Link, len(names))
		for i, n := range names {
			links[i] = h5test.Hard(n, b.Dataset())
		}
		if dense {
			b.SuperblockV2(2, b.DenseGroup(h5test.DenseOptions{TrackOrder: true}, links...).Header)
		} else {
			b.SuperblockV2(2, b.CompactGroup(h5test.CompactOptions{TrackOrder: true}, links...))
		}
		return b
	}

	tests := []struct {
		name  string
		dense bool
	}{
		{name: "compact", dense: false},
		{name: "dense", dense: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := mustRoot(t, openImage(t, build(tt.dense)))

			byCreation, err := root.Members(IndexCreationOrder)
			require.NoError(t, err)
			got := make([]string, len(byCreation))
			for i, m := range byCreation {
				got[i] = m.Name
			}
			require.Equal(t, names, got)

			byName, err := root.Members(IndexName)
			require.NoError(t, err)
			got = got[:0]
			for _, m := range byName {
				got = append(got, m.Name)
			}
			require.Equal(t, []string{"alpha", "bravo", "mike", "zulu"}, got)
		})
	}
}

func TestGroupMembers_CreationOrderNotTracked(t *testing.T) {
	tests := []struct {
		name  string
		build func() *h5test.Builder
	}{
		{name: "symbol table", build: h5test.IterateExample},
		{
			name: "compact without tracking",
			build: func() *h5test.Builder {
				b := h5test.New()
				b.SuperblockV2(2, b.CompactGroup(h5test.CompactOptions{}, h5test.Hard("a", b.Dataset())))
				return b
			},
		},
		{
			name: "dense without tracking",
			build: func() *h5test.Builder {
				b := h5test.New()
				b.SuperblockV2(2, b.DenseGroup(h5test.DenseOptions{}, h5test.Hard("a", b.Dataset())).Header)
				return b
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mustRoot(t, openImage(t, tt.build())).Members(IndexCreationOrder)
			require.ErrorIs(t, err, ErrCreationOrderNotTracked)
		})
	}
}

func TestGroupMembers_UnknownIndex(t *testing.T) {
	_, err := mustRoot(t, openImage(t, h5test.IterateExample())).Members(IndexType(7))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown index type")
}

func TestGroupIterate_StopsOnError(t *testing.T) {
	root := mustRoot(t, openImage(t, h5test.IterateExample()))
	errStop := errors.New("stop")

	var seen []string
	err := root.Iterate(IndexName, func(m MemberInfo) error {
		seen = append(seen, m.Name)
		if m.Name == "DT1" {
			return errStop
		}
		return nil
	})
	require.Same(t, errStop, err)
	require.Equal(t, []string{"DS1", "DT1"}, seen)
}

func TestGroupMembers_DenseHeapLayouts(t *testing.T) {
	tests := []struct {
		name   string
		count  int
		layout h5test.HeapLayout
		node   int
	}{
		{
			name:   "root direct block",
			count:  8,
			layout: h5test.DefaultHeapLayout,
		},
		{
			name:   "checksummed direct blocks",
			count:  8,
			layout: h5test.HeapLayout{Width: 4, StartBlock: 1024, MaxDirectBlock: 65536, ChecksumDirect: true},
		},
		{
			name:   "root indirect block",
			count:  60,
			layout: h5test.HeapLayout{Width: 2, StartBlock: 256, MaxDirectBlock: 1024, RootRows: 4},
		},
		{
			name:   "nested indirect blocks",
			count:  120,
			layout: h5test.HeapLayout{Width: 2, StartBlock: 256, MaxDirectBlock: 512, RootRows: 5},
		},
		{
			name:   "deep name index",
			count:  300,
			layout: h5test.HeapLayout{Width: 4, StartBlock: 4096, MaxDirectBlock: 65536, RootRows: 4},
			node:   128,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := h5test.New()
			ds := b.Dataset()
			links := make([]h5test.Link, tt.count)
			want := make([]MemberInfo, tt.count)
			for i := range links {
				name := fmt.Sprintf("member_%04d", i)
				links[i] = h5test.Hard(name, ds)
				want[i] = member(name, ObjectTypeDataset, LinkHard)
			}
			dense := b.DenseGroup(h5test.DenseOptions{Heap: tt.layout, NodeSize: tt.node}, links...)
			b.SuperblockV2(2, dense.Header)

			members, err := mustRoot(t, openImage(t, b)).Members(IndexName)
			require.NoError(t, err)
			requireMembers(t, want, members)
		})
	}
}

func TestGroupMembers_NestedGroups(t *testing.T) {
	b := h5test.New()
	leaf := b.DenseGroup(h5test.DenseOptions{}, h5test.Hard("data", b.Dataset()))
	mid := b.CompactGroup(h5test.CompactOptions{}, h5test.Hard("leaf", leaf.Header))
	st := b.SymbolTableGroup(h5test.SymbolTableOptions{}, h5test.Hard("mid", mid))
	b.SuperblockV0(st.Header, st.BTree, st.Heap)
	file := openImage(t, b)

	g, err := file.OpenGroup("/mid/leaf")
	require.NoError(t, err)
	require.Equal(t, leaf.Header, g.Address())

	members, err := g.Members(IndexName)
	require.NoError(t, err)
	requireMembers(t, []MemberInfo{member("data", ObjectTypeDataset, LinkHard)}, members)
}

func TestGroupMembers_ContinuedHeaders(t *testing.T) {
	b := h5test.New()
	ds := b.Dataset()

	v1 := b.ObjectHeaderV1Continued(
		[]h5test.Message{h5test.LinkInfoMessage(false, 0, h5test.Undefined, h5test.Undefined)},
		[]h5test.Message{h5test.Hard("one", ds).Message(), h5test.Hard("two", ds).Message()},
	)
	v2 := b.ObjectHeaderV2(h5test.V2Options{
		TrackOrder: true,
		Times:      true,
		Continued:  []h5test.Message{h5test.Hard("three", ds).Message()},
	}, h5test.LinkInfoMessage(false, 0, h5test.Undefined, h5test.Undefined), h5test.Hard("v1", v1).Message())
	b.SuperblockV2(2, v2)
	file := openImage(t, b)

	members, err := mustRoot(t, file).Members(IndexName)
	require.NoError(t, err)
	requireMembers(t, []MemberInfo{
		member("three", ObjectTypeDataset, LinkHard),
		member("v1", ObjectTypeGroup, LinkHard),
	}, members)

	g, err := file.OpenGroup("v1")
	require.NoError(t, err)
	members, err = g.Members(IndexName)
	require.NoError(t, err)
	requireMembers(t, []MemberInfo{
		member("one", ObjectTypeDataset, LinkHard),
		member("two", ObjectTypeDataset, LinkHard),
	}, members)
}

func TestGroupMembers_CorruptDenseIndex(t *testing.T) {
	b := h5test.New()
	ds := b.Dataset()
	heap, ids := b.FractalHeap(h5test.DefaultHeapLayout, [][]byte{h5test.Hard("real", ds).Encode()})

	// Name index record whose hash belongs to another name.
	rec := append(le32(0x12345678), ids[0]...)
	index := b.BTreeV2(5, 512, [][]byte{rec})
	header := b.ObjectHeaderV2(h5test.V2Options{},
		h5test.LinkInfoMessage(false, 1, heap, index), h5test.GroupInfoMessage())
	b.SuperblockV2(2, header)

	_, err := mustRoot(t, openImage(t, b)).Members(IndexName)
	require.Error(t, err)
	require.Contains(t, err.Error(), "name index hash")
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestGroupMembers_ReadFailure(t *testing.T) {
	b := h5test.New()
	b.Alloc(128) // keep the dataset header clear of the superblock read
	ds := b.Dataset()
	root := b.CompactGroup(h5test.CompactOptions{}, h5test.Hard("a", b.NamedDatatype()), h5test.Hard("b", ds))
	b.SuperblockV2(2, root)
	image := b.Bytes()

	file, err := OpenReader(&h5test.FaultyReader{Data: image, FailAt: ds + 2}, int64(len(image)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	var seen []string
	err = mustRoot(t, file).Iterate(IndexName, func(m MemberInfo) error {
		seen = append(seen, m.Name)
		return nil
	})
	require.ErrorIs(t, err, h5test.ErrInjected)
	require.ErrorContains(t, err, `member "b"`)
	require.Equal(t, []string{"a"}, seen)
}

package h5iterate

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/structures"
	"github.com/scigolib/h5iterate/internal/utils"
)

// Group represents an HDF5 group.
type Group struct {
	file    *File
	path    string
	address uint64
	header  *core.ObjectHeader
}

// link is one entry of a group's link table before classification.
type link struct {
	name          string
	linkType      LinkType
	address       uint64 // hard links only
	target        string // soft links only
	creationOrder int64
	orderValid    bool
}

// groupLinks holds a group's links and whether creation order is known.
type groupLinks struct {
	links        []link
	orderTracked bool
}

func (f *File) loadGroup(path string, address uint64) (*Group, error) {
	header, err := f.header(address)
	if err != nil {
		return nil, utils.WrapError("group header read failed", err)
	}
	if header.Type != core.ObjectTypeGroup && !f.isRootSymbolTable(address) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotGroup)
	}
	return &Group{file: f, path: path, address: address, header: header}, nil
}

// isRootSymbolTable reports whether address is a root group whose symbol
// table is known only from the superblock's cached entry.
func (f *File) isRootSymbolTable(address uint64) bool {
	return address == f.sb.RootGroup && !f.sb.IsUndefined(f.sb.RootBTree) && !f.sb.IsUndefined(f.sb.RootHeap)
}

// Path returns the path the group was opened by.
func (g *Group) Path() string {
	return g.path
}

// Address returns the address of the group's object header.
func (g *Group) Address() uint64 {
	return g.address
}

// NumMembers returns the number of links in the group.
func (g *Group) NumMembers() (int, error) {
	gl, err := g.file.readLinks(g.address, g.header)
	if err != nil {
		return 0, err
	}
	return len(gl.links), nil
}

// Members returns every member of the group in the order selected by
// index, with each member's object type resolved.
func (g *Group) Members(index IndexType) ([]MemberInfo, error) {
	var members []MemberInfo
	err := g.Iterate(index, func(m MemberInfo) error {
		members = append(members, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Iterate calls fn for each member of the group in the order selected by
// index. Iteration stops at the first error returned by fn, which is then
// returned unchanged.
func (g *Group) Iterate(index IndexType, fn func(MemberInfo) error) error {
	if g.file.r == nil {
		return ErrClosed
	}

	gl, err := g.file.readLinks(g.address, g.header)
	if err != nil {
		return err
	}

	links, err := orderLinks(gl, index)
	if err != nil {
		return fmt.Errorf("%s: %w", g.path, err)
	}

	for _, l := range links {
		m, err := g.file.classify(g.address, l)
		if err != nil {
			return fmt.Errorf("member %q: %w", l.name, err)
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

// orderLinks returns the links sorted for index.
func orderLinks(gl *groupLinks, index IndexType) ([]link, error) {
	links := slices.Clone(gl.links)

	switch index {
	case IndexName:
		slices.SortFunc(links, func(a, b link) int {
			return cmp.Compare(a.name, b.name)
		})
	case IndexCreationOrder:
		if !gl.orderTracked {
			return nil, ErrCreationOrderNotTracked
		}
		for _, l := range links {
			if !l.orderValid {
				return nil, fmt.Errorf("link %q has no creation order: %w", l.name, ErrCreationOrderNotTracked)
			}
		}
		slices.SortStableFunc(links, func(a, b link) int {
			return cmp.Compare(a.creationOrder, b.creationOrder)
		})
	default:
		return nil, fmt.Errorf("unknown index type %d", int(index))
	}

	return links, nil
}

// readLinks collects the links of the group whose header is at address,
// whichever storage form the group uses.
func (f *File) readLinks(address uint64, header *core.ObjectHeader) (*groupLinks, error) {
	if msg := header.Find(core.MsgSymbolTable); msg != nil {
		stab, err := core.ParseSymbolTableMessage(msg.Data, f.sb)
		if err != nil {
			return nil, utils.WrapError("symbol table message parse failed", err)
		}
		return f.readSymbolTableLinks(stab.BTreeAddress, stab.HeapAddress)
	}

	if msg := header.Find(core.MsgLinkInfo); msg != nil {
		linfo, err := core.ParseLinkInfoMessage(msg.Data, f.sb)
		if err != nil {
			return nil, utils.WrapError("link info message parse failed", err)
		}
		var gl *groupLinks
		if linfo.IsDense() {
			gl, err = f.readDenseLinks(linfo.FractalHeapAddress, linfo.NameBTreeAddress)
		} else {
			gl, err = f.readCompactLinks(header)
		}
		if err != nil {
			return nil, err
		}
		gl.orderTracked = linfo.HasCreationOrderTracking()
		return gl, nil
	}

	if header.Has(core.MsgLinkMessage) {
		return f.readCompactLinks(header)
	}

	if f.isRootSymbolTable(address) {
		return f.readSymbolTableLinks(f.sb.RootBTree, f.sb.RootHeap)
	}

	return nil, ErrNotGroup
}

// readSymbolTableLinks reads the links of a symbol table group.
func (f *File) readSymbolTableLinks(btreeAddr, heapAddr uint64) (*groupLinks, error) {
	heap, err := structures.LoadLocalHeap(f.r, heapAddr, f.sb)
	if err != nil {
		return nil, utils.WrapError("local heap load failed", err)
	}

	entries, err := structures.ReadGroupBTreeEntries(f.r, btreeAddr, f.sb)
	if err != nil {
		return nil, utils.WrapError("group B-tree read failed", err)
	}

	gl := &groupLinks{links: make([]link, 0, len(entries))}
	for _, entry := range entries {
		name, err := heap.GetString(entry.LinkNameOffset)
		if err != nil {
			return nil, utils.WrapError("link name read failed", err)
		}

		if entry.IsSoftLink() {
			target, err := heap.GetString(uint64(entry.CachedSoftLinkOffset))
			if err != nil {
				return nil, utils.WrapError("soft link value read failed", err)
			}
			gl.links = append(gl.links, link{name: name, linkType: LinkSoft, target: target})
			continue
		}

		gl.links = append(gl.links, link{name: name, linkType: LinkHard, address: entry.ObjectAddress})
	}
	return gl, nil
}

// readCompactLinks reads link messages stored in the group's header.
func (f *File) readCompactLinks(header *core.ObjectHeader) (*groupLinks, error) {
	msgs := header.FindAll(core.MsgLinkMessage)
	gl := &groupLinks{links: make([]link, 0, len(msgs))}
	for _, msg := range msgs {
		lm, err := structures.ParseLinkMessage(msg.Data, f.sb)
		if err != nil {
			return nil, utils.WrapError("link message parse failed", err)
		}
		gl.links = append(gl.links, linkFromMessage(lm))
	}
	return gl, nil
}

// readDenseLinks reads the link messages of a dense group through its
// name index.
func (f *File) readDenseLinks(heapAddr, nameIndexAddr uint64) (*groupLinks, error) {
	heap, err := structures.OpenFractalHeap(f.r, heapAddr, f.sb)
	if err != nil {
		return nil, utils.WrapError("link heap open failed", err)
	}

	bt, err := structures.OpenBTreeV2(f.r, nameIndexAddr, f.sb)
	if err != nil {
		return nil, utils.WrapError("link name index open failed", err)
	}

	records, err := bt.LinkNameRecords()
	if err != nil {
		return nil, utils.WrapError("link name index read failed", err)
	}

	gl := &groupLinks{links: make([]link, 0, len(records))}
	for _, rec := range records {
		data, err := heap.ReadObject(rec.HeapID)
		if err != nil {
			return nil, utils.WrapError("link heap object read failed", err)
		}
		lm, err := structures.ParseLinkMessage(data, f.sb)
		if err != nil {
			return nil, utils.WrapError("link message parse failed", err)
		}
		if structures.LinkNameHash(lm.Name) != rec.NameHash {
			return nil, fmt.Errorf("link %q does not match its name index hash 0x%08X", lm.Name, rec.NameHash)
		}
		gl.links = append(gl.links, linkFromMessage(lm))
	}
	return gl, nil
}

func linkFromMessage(lm *structures.LinkMessage) link {
	l := link{
		name:          lm.Name,
		linkType:      linkTypeFromStructures(lm.Type),
		creationOrder: lm.CreationOrder,
		orderValid:    lm.CreationOrderValid,
	}
	switch {
	case lm.IsHardLink():
		l.address = lm.ObjectAddress
	case lm.IsSoftLink():
		l.target = lm.TargetPath
	}
	return l
}

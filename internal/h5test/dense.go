package h5test

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/scigolib/h5iterate/internal/utils"
)

// HeapLayout describes the doubling table of a synthesized fractal heap.
type HeapLayout struct {
	Width          int
	StartBlock     uint64
	MaxDirectBlock uint64
	// RootRows is 0 for a root direct block, otherwise the number of rows
	// of the root indirect block.
	RootRows       int
	ChecksumDirect bool
}

// DefaultHeapLayout is a heap with a single root direct block.
var DefaultHeapLayout = HeapLayout{Width: 4, StartBlock: 1024, MaxDirectBlock: 65536}

// DenseOptions controls dense group layout.
type DenseOptions struct {
	Heap HeapLayout
	// NodeSize of the v2 B-tree name index (default 512).
	NodeSize int
	// TrackOrder records link creation order.
	TrackOrder bool
}

// Dense holds the addresses of a dense group.
type Dense struct {
	Header    uint64
	Heap      uint64
	NameIndex uint64
}

const (
	heapMaxSizeBits = 32
	heapOffsetSize  = 4
	heapIDLen       = 7
	maxManagedObj   = 4096
	nameRecordSize  = 4 + heapIDLen
)

// DenseGroup appends a group whose links live in a fractal heap indexed
// by a v2 B-tree on link name hashes.
func (b *Builder) DenseGroup(opts DenseOptions, links ...Link) Dense {
	if opts.Heap.Width == 0 {
		opts.Heap = DefaultHeapLayout
	}
	if opts.NodeSize == 0 {
		opts.NodeSize = 512
	}

	objects := make([][]byte, len(links))
	for i, l := range links {
		if opts.TrackOrder && !l.TrackOrder {
			l.TrackOrder = true
			l.CreationOrder = int64(i)
		}
		objects[i] = l.Encode()
	}

	heapAddr, ids := b.FractalHeap(opts.Heap, objects)

	records := make([][]byte, len(links))
	for i, l := range links {
		rec := le.AppendUint32(nil, utils.Lookup3([]byte(l.Name), 0))
		records[i] = append(rec, ids[i]...)
	}
	slices.SortStableFunc(records, func(a, c []byte) int {
		ha, hc := le.Uint32(a), le.Uint32(c)
		switch {
		case ha < hc:
			return -1
		case ha > hc:
			return 1
		default:
			return 0
		}
	})
	btree := b.BTreeV2(5, opts.NodeSize, records)

	header := b.ObjectHeaderV2(V2Options{},
		LinkInfoMessage(opts.TrackOrder, int64(len(links)), heapAddr, btree),
		GroupInfoMessage())
	return Dense{Header: header, Heap: heapAddr, NameIndex: btree}
}

// heapBuild carries state while placing objects into heap blocks.
type heapBuild struct {
	b          *Builder
	layout     HeapLayout
	headerAddr uint64
	objects    [][]byte
	ids        [][]byte
	next       int
	maxDirect  int
	lengthSize int
}

// FractalHeap appends a fractal heap holding objects, placed in heap
// address order, and returns the heap header address and one managed
// heap ID per object.
func (b *Builder) FractalHeap(layout HeapLayout, objects [][]byte) (uint64, [][]byte) {
	headerSize := 22 + 12*LengthSize + 3*OffsetSize + 4
	hb := &heapBuild{
		b:          b,
		layout:     layout,
		headerAddr: b.Alloc(headerSize),
		objects:    objects,
		ids:        make([][]byte, len(objects)),
		maxDirect:  log2(layout.MaxDirectBlock) - log2(layout.StartBlock) + 2,
	}
	hb.lengthSize = min((log2(layout.MaxDirectBlock)+7)/8, log2(maxManagedObj)/8+1)

	var root uint64
	if layout.RootRows == 0 {
		root = hb.directBlock(0, layout.StartBlock)
	} else {
		root = hb.indirectBlock(0, layout.RootRows)
	}
	if hb.next < len(objects) {
		panic(fmt.Sprintf("h5test: fractal heap holds %d of %d objects", hb.next, len(objects)))
	}

	var managed uint64
	for _, o := range objects {
		managed += uint64(len(o))
	}

	flags := byte(0)
	if layout.ChecksumDirect {
		flags = 0x02
	}
	h := []byte("FRHP")
	h = append(h, 0)
	h = le.AppendUint16(h, heapIDLen)
	h = le.AppendUint16(h, 0)
	h = append(h, flags)
	h = le.AppendUint32(h, maxManagedObj)
	h = le.AppendUint64(h, 0)         // next huge object ID
	h = le.AppendUint64(h, Undefined) // huge object B-tree
	h = le.AppendUint64(h, 0)         // free space
	h = le.AppendUint64(h, Undefined) // free space manager
	h = le.AppendUint64(h, managed)
	h = le.AppendUint64(h, managed)
	h = le.AppendUint64(h, 0)
	h = le.AppendUint64(h, uint64(len(objects)))
	h = le.AppendUint64(h, 0) // huge size
	h = le.AppendUint64(h, 0) // huge count
	h = le.AppendUint64(h, 0) // tiny size
	h = le.AppendUint64(h, 0) // tiny count
	h = le.AppendUint16(h, uint16(layout.Width)) //nolint:gosec // G115: test sizes are small
	h = le.AppendUint64(h, layout.StartBlock)
	h = le.AppendUint64(h, layout.MaxDirectBlock)
	h = le.AppendUint16(h, heapMaxSizeBits)
	h = le.AppendUint16(h, uint16(max(layout.RootRows, 1))) //nolint:gosec // G115: test sizes are small
	h = le.AppendUint64(h, root)
	h = le.AppendUint16(h, uint16(layout.RootRows)) //nolint:gosec // G115: test sizes are small
	h = le.AppendUint32(h, utils.Lookup3(h, 0))
	b.WriteAt(hb.headerAddr, h)

	return hb.headerAddr, hb.ids
}

func (hb *heapBuild) rowSize(r int) uint64 {
	if r == 0 {
		return hb.layout.StartBlock
	}
	return hb.layout.StartBlock << (r - 1)
}

func (hb *heapBuild) rowOffset(r int) uint64 {
	if r == 0 {
		return 0
	}
	return uint64(hb.layout.Width) * hb.layout.StartBlock << (r - 1) //nolint:gosec // G115: positive
}

// directBlock writes a direct block at heap offset off, filling it with
// as many of the remaining objects as fit.
func (hb *heapBuild) directBlock(off, size uint64) uint64 {
	block := make([]byte, size)
	copy(block, "FHDB")
	pos := 5
	le.PutUint64(block[pos:], hb.headerAddr)
	pos += OffsetSize
	le.PutUint32(block[pos:], uint32(off)) //nolint:gosec // G115: heap offsets fit 32 bits
	pos += heapOffsetSize
	checksumPos := pos
	if hb.layout.ChecksumDirect {
		pos += 4
	}

	for hb.next < len(hb.objects) && pos+len(hb.objects[hb.next]) <= len(block) {
		obj := hb.objects[hb.next]
		copy(block[pos:], obj)
		id := []byte{0}
		id = le.AppendUint32(id, uint32(off)+uint32(pos)) //nolint:gosec // G115: heap offsets fit 32 bits
		id = appendUint(id, uint64(len(obj)), hb.lengthSize)
		for len(id) < heapIDLen {
			id = append(id, 0)
		}
		hb.ids[hb.next] = id
		hb.next++
		pos += len(obj)
	}

	if hb.layout.ChecksumDirect {
		le.PutUint32(block[checksumPos:], utils.Lookup3(block, 0))
	}
	return hb.b.Put(block)
}

// indirectBlock writes an indirect block with nrows rows at heap offset
// off. Children past the last object are left unallocated.
func (hb *heapBuild) indirectBlock(off uint64, nrows int) uint64 {
	width := hb.layout.Width
	children := make([]uint64, nrows*width)
	for r := 0; r < nrows; r++ {
		size := hb.rowSize(r)
		for c := 0; c < width; c++ {
			children[r*width+c] = Undefined
			if hb.next >= len(hb.objects) {
				continue
			}
			childOff := off + hb.rowOffset(r) + uint64(c)*size //nolint:gosec // G115: positive
			if r < hb.maxDirect {
				children[r*width+c] = hb.directBlock(childOff, size)
			} else {
				rows := log2(size) - (log2(hb.layout.StartBlock) + log2(uint64(width))) + 1 //nolint:gosec // G115: positive
				children[r*width+c] = hb.indirectBlock(childOff, rows)
			}
		}
	}

	block := []byte("FHIB")
	block = append(block, 0)
	block = le.AppendUint64(block, hb.headerAddr)
	block = le.AppendUint32(block, uint32(off)) //nolint:gosec // G115: heap offsets fit 32 bits
	for _, c := range children {
		block = le.AppendUint64(block, c)
	}
	block = le.AppendUint32(block, utils.Lookup3(block, 0))
	return hb.b.Put(block)
}

// BTreeV2 appends a v2 B-tree of the given type holding records, which
// must already be in key order, and returns its header address.
func (b *Builder) BTreeV2(treeType byte, nodeSize int, records [][]byte) uint64 {
	recSize := nameRecordSize
	if len(records) > 0 {
		recSize = len(records[0])
	}
	bt := newBTreeV2Build(b, treeType, nodeSize, recSize)

	depth := 0
	for bt.cum[depth] < uint64(len(records)) {
		depth++
		bt.grow(depth)
	}

	root := Undefined
	if len(records) > 0 {
		root = bt.node(records, depth)
	}

	h := []byte("BTHD")
	h = append(h, 0, treeType)
	h = le.AppendUint32(h, uint32(nodeSize)) //nolint:gosec // G115: test sizes are small
	h = le.AppendUint16(h, uint16(recSize))  //nolint:gosec // G115: test sizes are small
	h = le.AppendUint16(h, uint16(depth))    //nolint:gosec // G115: test sizes are small
	h = append(h, 100, 40)
	h = le.AppendUint64(h, root)
	h = le.AppendUint16(h, uint16(bt.rootRecords)) //nolint:gosec // G115: test sizes are small
	h = le.AppendUint64(h, uint64(len(records)))
	h = le.AppendUint32(h, utils.Lookup3(h, 0))
	return b.Put(h)
}

type btreeV2Build struct {
	b        *Builder
	treeType byte
	nodeSize int
	recSize  int

	maxRec      []uint64
	cum         []uint64
	cumSize     []int
	maxRecSize  int
	rootRecords int
}

func newBTreeV2Build(b *Builder, treeType byte, nodeSize, recSize int) *btreeV2Build {
	leafMax := uint64((nodeSize - 10) / recSize) //nolint:gosec // G115: positive
	return &btreeV2Build{
		b:          b,
		treeType:   treeType,
		nodeSize:   nodeSize,
		recSize:    recSize,
		maxRec:     []uint64{leafMax},
		cum:        []uint64{leafMax},
		cumSize:    []int{0},
		maxRecSize: log2(leafMax)/8 + 1,
	}
}

func (bt *btreeV2Build) ptrSize(d int) int {
	size := OffsetSize + bt.maxRecSize
	if d > 1 {
		size += bt.cumSize[d-1]
	}
	return size
}

// grow computes node capacities for depth d.
func (bt *btreeV2Build) grow(d int) {
	ptr := bt.ptrSize(d)
	maxRec := uint64((bt.nodeSize - 10 - ptr) / (bt.recSize + ptr)) //nolint:gosec // G115: positive
	if maxRec == 0 {
		panic("h5test: B-tree node size too small")
	}
	cum := (maxRec+1)*bt.cum[d-1] + maxRec
	bt.maxRec = append(bt.maxRec, maxRec)
	bt.cum = append(bt.cum, cum)
	bt.cumSize = append(bt.cumSize, log2(cum)/8+1)
}

// node writes the subtree of the given depth holding records.
func (bt *btreeV2Build) node(records [][]byte, depth int) uint64 {
	bt.rootRecords = len(records)
	buf := make([]byte, bt.nodeSize)

	if depth == 0 {
		copy(buf, "BTLF")
		buf[5] = bt.treeType
		pos := 6
		for _, r := range records {
			pos += copy(buf[pos:], r)
		}
		le.PutUint32(buf[pos:], utils.Lookup3(buf[:pos], 0))
		return bt.b.Put(buf)
	}

	// Split into the fewest children that fit, separated by one record each.
	n := len(records)
	childCap := bt.cum[depth-1]
	m := (uint64(n) + 1 + childCap) / (childCap + 1) //nolint:gosec // G115: positive
	m = max(m, 1)
	per := (uint64(n) - (m - 1)) / m //nolint:gosec // G115: positive
	extra := (uint64(n) - (m - 1)) % m

	type ptr struct {
		addr  uint64
		nrec  int
		total int
	}
	var ptrs []ptr
	var seps [][]byte
	start := 0
	for i := uint64(0); i < m; i++ {
		size := int(per) //nolint:gosec // G115: small
		if i < extra {
			size++
		}
		child := records[start : start+size]
		addr := bt.node(child, depth-1)
		ptrs = append(ptrs, ptr{addr: addr, nrec: bt.rootRecords, total: len(child)})
		start += size
		if i < m-1 {
			seps = append(seps, records[start])
			start++
		}
	}
	bt.rootRecords = len(seps)

	copy(buf, "BTIN")
	buf[5] = bt.treeType
	pos := 6
	for _, s := range seps {
		pos += copy(buf[pos:], s)
	}
	for _, p := range ptrs {
		le.PutUint64(buf[pos:], p.addr)
		pos += OffsetSize
		putUint(buf[pos:], uint64(p.nrec), bt.maxRecSize) //nolint:gosec // G115: positive
		pos += bt.maxRecSize
		if depth > 1 {
			putUint(buf[pos:], uint64(p.total), bt.cumSize[depth-1]) //nolint:gosec // G115: positive
			pos += bt.cumSize[depth-1]
		}
	}
	le.PutUint32(buf[pos:], utils.Lookup3(buf[:pos], 0))
	return bt.b.Put(buf)
}

func log2(v uint64) int {
	return bits.Len64(v) - 1
}

func appendUint(buf []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

func putUint(buf []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

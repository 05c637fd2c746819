// Package h5test synthesizes HDF5 files in memory for tests.
//
// Files use 8-byte offsets and lengths and little-endian metadata. The
// superblock is written last, by Bytes, so that it can record the final
// end-of-file address.
package h5test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/scigolib/h5iterate/internal/utils"
)

// Field widths used by every synthesized file.
const (
	OffsetSize = 8
	LengthSize = 8
)

// Undefined is the undefined address for 8-byte offsets.
const Undefined = ^uint64(0)

// superblockReserve is large enough for a version 0 superblock with
// 8-byte fields, the largest layout written.
const superblockReserve = 96

// Header message types.
const (
	MsgDataspace    uint16 = 0x0001
	MsgLinkInfo     uint16 = 0x0002
	MsgDatatype     uint16 = 0x0003
	MsgLink         uint16 = 0x0006
	MsgLayout       uint16 = 0x0008
	MsgGroupInfo    uint16 = 0x000A
	MsgComment      uint16 = 0x000D
	MsgContinuation uint16 = 0x0010
	MsgSymbolTable  uint16 = 0x0011
)

var le = binary.LittleEndian

// Builder lays out an HDF5 file. Structures are appended at 8-byte
// aligned addresses.
type Builder struct {
	buf []byte

	sbVersion int // -1 until a superblock is chosen
	root      uint64
	rootBTree uint64
	rootHeap  uint64
}

// New returns a Builder with space reserved for the superblock.
func New() *Builder {
	return &Builder{buf: make([]byte, superblockReserve), sbVersion: -1}
}

// Alloc reserves n zeroed bytes and returns their address.
func (b *Builder) Alloc(n int) uint64 {
	for len(b.buf)%8 != 0 {
		b.buf = append(b.buf, 0)
	}
	addr := uint64(len(b.buf))
	b.buf = append(b.buf, make([]byte, n)...)
	return addr
}

// WriteAt copies data to address.
func (b *Builder) WriteAt(address uint64, data []byte) {
	copy(b.buf[address:], data)
}

// Put appends data and returns its address.
func (b *Builder) Put(data []byte) uint64 {
	addr := b.Alloc(len(data))
	b.WriteAt(addr, data)
	return addr
}

// SuperblockV0 selects a version 0 superblock whose root symbol table
// entry points at root and caches btree and heap. Pass Undefined for
// both when the root header carries its own symbol table message.
func (b *Builder) SuperblockV0(root, btree, heap uint64) {
	b.sbVersion = 0
	b.root, b.rootBTree, b.rootHeap = root, btree, heap
}

// SuperblockV2 selects a version 2 or 3 superblock.
func (b *Builder) SuperblockV2(version int, root uint64) {
	b.sbVersion = version
	b.root = root
}

// Bytes returns the file image with its superblock written.
func (b *Builder) Bytes() []byte {
	out := slices.Clone(b.buf)
	eof := uint64(len(out))

	switch b.sbVersion {
	case 0:
		sb := make([]byte, 0, superblockReserve)
		sb = append(sb, "\x89HDF\r\n\x1a\n"...)
		sb = append(sb, 0, 0, 0, 0, 0, OffsetSize, LengthSize, 0)
		sb = le.AppendUint16(sb, 4)  // group leaf K
		sb = le.AppendUint16(sb, 16) // group internal K
		sb = le.AppendUint32(sb, 0)  // consistency flags
		sb = le.AppendUint64(sb, 0)  // base address
		sb = le.AppendUint64(sb, Undefined)
		sb = le.AppendUint64(sb, eof)
		sb = le.AppendUint64(sb, Undefined)
		// Root group symbol table entry.
		sb = le.AppendUint64(sb, 0)
		sb = le.AppendUint64(sb, b.root)
		if b.rootBTree != Undefined {
			sb = le.AppendUint32(sb, 1)
			sb = le.AppendUint32(sb, 0)
			sb = le.AppendUint64(sb, b.rootBTree)
			sb = le.AppendUint64(sb, b.rootHeap)
		} else {
			sb = le.AppendUint32(sb, 0)
			sb = append(sb, make([]byte, 4+16)...)
		}
		copy(out, sb)
	case 2, 3:
		sb := make([]byte, 0, 48)
		sb = append(sb, "\x89HDF\r\n\x1a\n"...)
		sb = append(sb, byte(b.sbVersion), OffsetSize, LengthSize, 0)
		sb = le.AppendUint64(sb, 0)
		sb = le.AppendUint64(sb, Undefined)
		sb = le.AppendUint64(sb, eof)
		sb = le.AppendUint64(sb, b.root)
		sb = le.AppendUint32(sb, utils.Lookup3(sb, 0))
		copy(out, sb)
	}

	return out
}

// Reader returns a reader over Bytes.
func (b *Builder) Reader() *bytes.Reader {
	return bytes.NewReader(b.Bytes())
}

// WriteFile writes the file image to name inside a test temp directory
// and returns its path.
func (b *Builder) WriteFile(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b.Bytes(), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// WithUserBlock prefixes image with a user block of n bytes.
func WithUserBlock(image []byte, n int) []byte {
	out := make([]byte, n, n+len(image))
	copy(out, "user block")
	return append(out, image...)
}

// Message is an object header message.
type Message struct {
	Type          uint16
	Flags         uint8
	CreationOrder uint16
	Data          []byte
}

// ObjectHeaderV1 appends a version 1 object header holding msgs.
func (b *Builder) ObjectHeaderV1(msgs ...Message) uint64 {
	chunk := encodeV1Messages(msgs)

	hdr := make([]byte, 16, 16+len(chunk))
	hdr[0] = 1
	le.PutUint16(hdr[2:], uint16(len(msgs))) //nolint:gosec // G115: test sizes are small
	le.PutUint32(hdr[4:], 1)
	le.PutUint32(hdr[8:], uint32(len(chunk))) //nolint:gosec // G115: test sizes are small
	return b.Put(append(hdr, chunk...))
}

// ObjectHeaderV1Continued appends a version 1 object header holding first
// and a continuation block holding rest.
func (b *Builder) ObjectHeaderV1Continued(first, rest []Message) uint64 {
	cont := encodeV1Messages(rest)
	contAddr := b.Put(cont)
	all := append(slices.Clone(first), ContinuationMessage(contAddr, uint64(len(cont))))

	chunk := encodeV1Messages(all)
	hdr := make([]byte, 16, 16+len(chunk))
	hdr[0] = 1
	le.PutUint16(hdr[2:], uint16(len(all)+len(rest))) //nolint:gosec // G115: test sizes are small
	le.PutUint32(hdr[4:], 1)
	le.PutUint32(hdr[8:], uint32(len(chunk))) //nolint:gosec // G115: test sizes are small
	return b.Put(append(hdr, chunk...))
}

func encodeV1Messages(msgs []Message) []byte {
	var chunk []byte
	for _, m := range msgs {
		data := pad8(m.Data)
		chunk = le.AppendUint16(chunk, m.Type)
		chunk = le.AppendUint16(chunk, uint16(len(data))) //nolint:gosec // G115: test sizes are small
		chunk = append(chunk, m.Flags, 0, 0, 0)
		chunk = append(chunk, data...)
	}
	return chunk
}

func pad8(data []byte) []byte {
	out := slices.Clone(data)
	for len(out)%8 != 0 {
		out = append(out, 0)
	}
	return out
}

// V2Options controls version 2 object header layout.
type V2Options struct {
	// TrackOrder stores a creation order index with every message.
	TrackOrder bool
	// Times stores the four object timestamps.
	Times bool
	// Continued messages go into an OCHK continuation chunk.
	Continued []Message
}

// ObjectHeaderV2 appends a version 2 object header holding msgs.
func (b *Builder) ObjectHeaderV2(opts V2Options, msgs ...Message) uint64 {
	if len(opts.Continued) > 0 {
		cont := append([]byte("OCHK"), encodeV2Messages(opts.Continued, opts.TrackOrder)...)
		cont = le.AppendUint32(cont, utils.Lookup3(cont, 0))
		contAddr := b.Put(cont)
		msgs = append(slices.Clone(msgs), ContinuationMessage(contAddr, uint64(len(cont))))
	}

	body := encodeV2Messages(msgs, opts.TrackOrder)

	flags := byte(0x02) // 4-byte chunk size
	if opts.TrackOrder {
		flags |= 0x04
	}
	if opts.Times {
		flags |= 0x20
	}

	hdr := []byte("OHDR")
	hdr = append(hdr, 2, flags)
	if opts.Times {
		for i := 0; i < 4; i++ {
			hdr = le.AppendUint32(hdr, 1700000000)
		}
	}
	hdr = le.AppendUint32(hdr, uint32(len(body))) //nolint:gosec // G115: test sizes are small
	hdr = append(hdr, body...)
	hdr = le.AppendUint32(hdr, utils.Lookup3(hdr, 0))
	return b.Put(hdr)
}

func encodeV2Messages(msgs []Message, trackOrder bool) []byte {
	var body []byte
	for _, m := range msgs {
		body = append(body, byte(m.Type))
		body = le.AppendUint16(body, uint16(len(m.Data))) //nolint:gosec // G115: test sizes are small
		body = append(body, m.Flags)
		if trackOrder {
			body = le.AppendUint16(body, m.CreationOrder)
		}
		body = append(body, m.Data...)
	}
	return body
}

// ContinuationMessage points at a continuation block.
func ContinuationMessage(address, length uint64) Message {
	data := le.AppendUint64(nil, address)
	data = le.AppendUint64(data, length)
	return Message{Type: MsgContinuation, Data: data}
}

// DataspaceMessage is a version 1 simple dataspace with the given
// dimensions.
func DataspaceMessage(dims ...uint64) Message {
	data := []byte{1, byte(len(dims)), 0, 0, 0, 0, 0, 0}
	for _, d := range dims {
		data = le.AppendUint64(data, d)
	}
	return Message{Type: MsgDataspace, Data: data}
}

// DatatypeMessage is a 32-bit little-endian signed integer type.
func DatatypeMessage() Message {
	data := []byte{0x10, 0x08, 0, 0}
	data = le.AppendUint32(data, 4)
	data = le.AppendUint16(data, 0)
	data = le.AppendUint16(data, 32)
	return Message{Type: MsgDatatype, Data: data}
}

// LayoutMessage is a version 3 contiguous layout with undefined storage.
func LayoutMessage() Message {
	data := []byte{3, 1}
	data = le.AppendUint64(data, Undefined)
	data = le.AppendUint64(data, 0)
	return Message{Type: MsgLayout, Data: data}
}

// CommentMessage is an object comment, which says nothing about the
// object's class.
func CommentMessage(text string) Message {
	return Message{Type: MsgComment, Data: append([]byte(text), 0)}
}

// SymbolTableMessage points at a group's v1 B-tree and local heap.
func SymbolTableMessage(btree, heap uint64) Message {
	data := le.AppendUint64(nil, btree)
	data = le.AppendUint64(data, heap)
	return Message{Type: MsgSymbolTable, Data: data}
}

// LinkInfoMessage describes compact (heap Undefined) or dense link
// storage.
func LinkInfoMessage(trackOrder bool, maxOrder int64, heap, nameIndex uint64) Message {
	data := []byte{0, 0}
	if trackOrder {
		data[1] = 0x01
		data = le.AppendUint64(data, uint64(maxOrder)) //nolint:gosec // G115: test values are non-negative
	}
	data = le.AppendUint64(data, heap)
	data = le.AppendUint64(data, nameIndex)
	return Message{Type: MsgLinkInfo, Data: data}
}

// GroupInfoMessage is an empty version 0 group info message.
func GroupInfoMessage() Message {
	return Message{Type: MsgGroupInfo, Data: []byte{0, 0}}
}

// Dataset appends a dataset object header.
func (b *Builder) Dataset(dims ...uint64) uint64 {
	if len(dims) == 0 {
		dims = []uint64{4}
	}
	return b.ObjectHeaderV1(DataspaceMessage(dims...), DatatypeMessage(), LayoutMessage())
}

// NamedDatatype appends a committed datatype object header.
func (b *Builder) NamedDatatype() uint64 {
	return b.ObjectHeaderV1(DatatypeMessage())
}

// UnknownObject appends an object header matching no object class.
func (b *Builder) UnknownObject() uint64 {
	return b.ObjectHeaderV1(CommentMessage("neither group nor dataset"))
}

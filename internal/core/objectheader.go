package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5iterate/internal/utils"
)

// ObjectType identifies the type of HDF5 object (group, dataset, datatype).
type ObjectType uint8

// Object type constants identify different HDF5 object types.
const (
	ObjectTypeGroup ObjectType = iota
	ObjectTypeDataset
	ObjectTypeDatatype
	ObjectTypeUnknown
)

// String returns the object type name.
func (t ObjectType) String() string {
	switch t {
	case ObjectTypeGroup:
		return "group"
	case ObjectTypeDataset:
		return "dataset"
	case ObjectTypeDatatype:
		return "datatype"
	default:
		return "unknown"
	}
}

// ObjectHeader represents an HDF5 object header containing metadata messages.
type ObjectHeader struct {
	Address  uint64
	Version  uint8
	Flags    uint8
	Type     ObjectType
	Messages []*HeaderMessage
}

// HeaderMessage represents a single message within an object header.
type HeaderMessage struct {
	Type          MessageType
	Flags         uint8
	CreationOrder uint16
	Offset        uint64
	Data          []byte
}

// MessageType identifies the type of message in an object header.
type MessageType uint16

// Message type constants identify different types of header messages.
const (
	MsgNil            MessageType = 0x0000
	MsgDataspace      MessageType = 0x0001
	MsgLinkInfo       MessageType = 0x0002
	MsgDatatype       MessageType = 0x0003
	MsgFillValueOld   MessageType = 0x0004
	MsgFillValue      MessageType = 0x0005
	MsgLinkMessage    MessageType = 0x0006
	MsgDataLayout     MessageType = 0x0008
	MsgGroupInfo      MessageType = 0x000A
	MsgFilterPipeline MessageType = 0x000B
	MsgAttribute      MessageType = 0x000C
	MsgComment        MessageType = 0x000D
	MsgAttributeInfo  MessageType = 0x000F
	MsgContinuation   MessageType = 0x0010
	MsgSymbolTable    MessageType = 0x0011
)

// Object header v2 prefix flags.
const (
	hdrChunk0SizeMask   = 0x03
	hdrAttrCrtTracked   = 0x04
	hdrAttrPhaseChange  = 0x10
	hdrStoreTimes       = 0x20
	hdrUnknownFlagsMask = 0xC0
)

// maxContinuations bounds how many continuation chunks one header may chain.
const maxContinuations = 4096

// ReadObjectHeader reads and parses an HDF5 object header from the specified address.
// It supports both version 1 and version 2 object header formats.
func ReadObjectHeader(r io.ReaderAt, address uint64, sb *Superblock) (*ObjectHeader, error) {
	if sb.IsUndefined(address) {
		return nil, errors.New("object header address is undefined")
	}

	prefix := utils.GetBuffer(8)
	defer utils.ReleaseBuffer(prefix)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(prefix, int64(address)); err != nil {
		return nil, utils.WrapError("object header read failed", err)
	}

	header := &ObjectHeader{Address: address}

	var err error
	switch {
	case string(prefix[0:4]) == "OHDR":
		header.Version = prefix[4]
		header.Flags = prefix[5]
		if header.Version != 2 {
			return nil, fmt.Errorf("unsupported object header version: %d", header.Version)
		}
		header.Messages, err = parseV2Header(r, address, header.Flags, sb)
		if err != nil {
			return nil, utils.WrapError("v2 header parse failed", err)
		}
	case prefix[0] == 1:
		header.Version = 1
		header.Messages, err = parseV1Header(r, address, sb)
		if err != nil {
			return nil, utils.WrapError("v1 header parse failed", err)
		}
	default:
		return nil, fmt.Errorf("invalid object header signature at 0x%X: % x", address, prefix[0:4])
	}

	header.Type = determineObjectType(header.Messages)

	return header, nil
}

// Has reports whether the header carries at least one message of type t.
func (h *ObjectHeader) Has(t MessageType) bool {
	return h.Find(t) != nil
}

// Find returns the first message of type t, or nil.
func (h *ObjectHeader) Find(t MessageType) *HeaderMessage {
	for _, msg := range h.Messages {
		if msg.Type == t {
			return msg
		}
	}
	return nil
}

// FindAll returns every message of type t in header order.
func (h *ObjectHeader) FindAll(t MessageType) []*HeaderMessage {
	var out []*HeaderMessage
	for _, msg := range h.Messages {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

// determineObjectType classifies an object by the messages it carries.
// Classes are tested group first, then dataset, then named datatype.
func determineObjectType(messages []*HeaderMessage) ObjectType {
	present := make(map[MessageType]bool, len(messages))
	for _, msg := range messages {
		present[msg.Type] = true
	}

	switch {
	case present[MsgSymbolTable], present[MsgLinkInfo], present[MsgLinkMessage]:
		return ObjectTypeGroup
	case present[MsgDataLayout], present[MsgDataspace] && present[MsgDatatype]:
		return ObjectTypeDataset
	case present[MsgDatatype]:
		return ObjectTypeDatatype
	default:
		return ObjectTypeUnknown
	}
}

// continuationInfo holds information about a continuation block.
type continuationInfo struct {
	Address uint64
	Size    uint64
}

// parseContinuationMessage extracts address and size from continuation message data.
// Format: address (OffsetSize bytes) followed by length (LengthSize bytes).
func parseContinuationMessage(data []byte, sb *Superblock) (continuationInfo, error) {
	minSize := int(sb.OffsetSize) + int(sb.LengthSize)
	if len(data) < minSize {
		return continuationInfo{}, fmt.Errorf("continuation message too small: need %d bytes, got %d", minSize, len(data))
	}

	cont := continuationInfo{
		Address: sb.DecodeAddress(data),
		Size:    sb.DecodeLength(data[sb.OffsetSize:]),
	}

	if cont.Size == 0 {
		return continuationInfo{}, errors.New("invalid continuation block size: 0")
	}
	if sb.IsUndefined(cont.Address) {
		return continuationInfo{}, errors.New("continuation block address is undefined")
	}
	if err := utils.ValidateBufferSize(cont.Size, utils.MaxMetadataBlock, "continuation block"); err != nil {
		return continuationInfo{}, err
	}

	return cont, nil
}

// readBlock reads size bytes at address.
func readBlock(r io.ReaderAt, address, size uint64) ([]byte, error) {
	if err := utils.ValidateBufferSize(size, utils.MaxMetadataBlock, "object header chunk"); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(buf, int64(address)); err != nil {
		return nil, err
	}
	return buf, nil
}

// followContinuations parses continuation chunks breadth-first using parse
// for each chunk, guarding against cycles.
func followContinuations(
	messages []*HeaderMessage,
	sb *Superblock,
	parse func(cont continuationInfo) ([]*HeaderMessage, error),
) ([]*HeaderMessage, error) {
	visited := make(map[uint64]bool)
	queue := findContinuations(messages, sb)

	for len(queue) > 0 {
		cont := queue[0]
		queue = queue[1:]

		if visited[cont.Address] {
			return nil, fmt.Errorf("continuation cycle at 0x%X", cont.Address)
		}
		visited[cont.Address] = true
		if len(visited) > maxContinuations {
			return nil, errors.New("too many continuation blocks")
		}

		contMessages, err := parse(cont)
		if err != nil {
			return nil, utils.WrapError("continuation block parse failed", err)
		}
		messages = append(messages, contMessages...)
		queue = append(queue, findContinuations(contMessages, sb)...)
	}

	return messages, nil
}

// findContinuations extracts continuation block information from messages.
func findContinuations(messages []*HeaderMessage, sb *Superblock) []continuationInfo {
	var continuations []continuationInfo
	for _, msg := range messages {
		if msg.Type != MsgContinuation {
			continue
		}
		cont, err := parseContinuationMessage(msg.Data, sb)
		if err != nil {
			// Skip invalid continuation messages.
			continue
		}
		continuations = append(continuations, cont)
	}
	return continuations
}

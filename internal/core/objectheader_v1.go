package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5iterate/internal/utils"
)

// v1PrefixSize is the 12-byte v1 prefix padded to an 8-byte boundary.
const v1PrefixSize = 16

// parseV1Header parses a version 1 object header.
// V1 format (no "OHDR" signature):
// - Byte 0: Version (1).
// - Byte 1: Reserved (0).
// - Bytes 2-3: Total number of header messages, across all chunks.
// - Bytes 4-7: Object reference count.
// - Bytes 8-11: Size of the first chunk's message data.
// - Bytes 12-15: Padding to 8-byte boundary.
// - Then messages follow.
//
// Each message:
// - Bytes 0-1: Message type.
// - Bytes 2-3: Message data size (a multiple of 8).
// - Byte 4: Message flags.
// - Bytes 5-7: Reserved.
// - Then message data.
//
// Continuation blocks hold further messages with the same layout and no prefix.
func parseV1Header(r io.ReaderAt, headerAddr uint64, sb *Superblock) ([]*HeaderMessage, error) {
	prefix := utils.GetBuffer(v1PrefixSize)
	defer utils.ReleaseBuffer(prefix)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(prefix, int64(headerAddr)); err != nil {
		return nil, utils.WrapError("v1 header read failed", err)
	}

	if prefix[0] != 1 {
		return nil, fmt.Errorf("invalid v1 header version: %d", prefix[0])
	}

	numMessages := int(sb.Endianness.Uint16(prefix[2:4]))
	chunkSize := uint64(sb.Endianness.Uint32(prefix[8:12]))

	var messages []*HeaderMessage
	if chunkSize > 0 {
		chunk, err := readBlock(r, headerAddr+v1PrefixSize, chunkSize)
		if err != nil {
			return nil, utils.WrapError("v1 header chunk read failed", err)
		}
		messages, err = parseV1Messages(chunk, headerAddr+v1PrefixSize, sb)
		if err != nil {
			return nil, err
		}
	}

	messages, err := followContinuations(messages, sb, func(cont continuationInfo) ([]*HeaderMessage, error) {
		chunk, err := readBlock(r, cont.Address, cont.Size)
		if err != nil {
			return nil, err
		}
		return parseV1Messages(chunk, cont.Address, sb)
	})
	if err != nil {
		return nil, err
	}

	// Null messages are not returned, so the count is an upper bound.
	if len(messages) > numMessages && numMessages > 0 {
		return nil, fmt.Errorf("v1 header at 0x%X holds %d messages, prefix declares %d",
			headerAddr, len(messages), numMessages)
	}

	return messages, nil
}

// parseV1Messages parses the messages in one v1 chunk located at base.
func parseV1Messages(chunk []byte, base uint64, sb *Superblock) ([]*HeaderMessage, error) {
	var messages []*HeaderMessage
	pos := 0

	for pos+8 <= len(chunk) {
		msgType := MessageType(sb.Endianness.Uint16(chunk[pos : pos+2]))
		msgSize := int(sb.Endianness.Uint16(chunk[pos+2 : pos+4]))
		msgFlags := chunk[pos+4]

		dataStart := pos + 8
		if dataStart+msgSize > len(chunk) {
			return nil, errors.New("v1 message extends beyond chunk")
		}

		if msgType != MsgNil {
			data := make([]byte, msgSize)
			copy(data, chunk[dataStart:dataStart+msgSize])
			messages = append(messages, &HeaderMessage{
				Type:   msgType,
				Flags:  msgFlags,
				Offset: base + uint64(pos), //nolint:gosec // G115: pos is non-negative
				Data:   data,
			})
		}

		// Messages are 8-byte aligned in v1.
		next := dataStart + msgSize
		if rem := next % 8; rem != 0 {
			next += 8 - rem
		}
		pos = next

		if len(messages) > utils.MaxHeaderMessages {
			return nil, errors.New("too many header messages")
		}
	}

	return messages, nil
}

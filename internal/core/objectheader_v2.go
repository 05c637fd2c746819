package core

import (
	"fmt"
	"io"

	"github.com/scigolib/h5iterate/internal/utils"
)

// Continuation chunk signature for v2 object headers.
const continuationSignature = "OCHK"

// parseV2Header parses a version 2 object header:
//
//	"OHDR" (4), version (1), flags (1)
//	access/modification/change/birth times (16, if flags bit 5)
//	max compact / min dense attribute counts (4, if flags bit 4)
//	size of chunk 0 (1, 2, 4 or 8 bytes, flags bits 0-1)
//	messages and gap
//	checksum (4) over everything from the signature on
//
// Each message is type (1), size (2), flags (1), creation order (2, if
// flags bit 2) and data. Continuation chunks start with "OCHK" and end
// with their own checksum.
func parseV2Header(r io.ReaderAt, headerAddr uint64, flags uint8, sb *Superblock) ([]*HeaderMessage, error) {
	if flags&hdrUnknownFlagsMask != 0 {
		return nil, fmt.Errorf("unknown object header flags: 0x%02X", flags)
	}

	prefixSize := 6
	if flags&hdrStoreTimes != 0 {
		prefixSize += 16
	}
	if flags&hdrAttrPhaseChange != 0 {
		prefixSize += 4
	}
	sizeFieldBytes := 1 << (flags & hdrChunk0SizeMask)

	sizeBuf := utils.GetBuffer(sizeFieldBytes)
	defer utils.ReleaseBuffer(sizeBuf)

	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(sizeBuf, int64(headerAddr)+int64(prefixSize)); err != nil {
		return nil, utils.WrapError("chunk size read failed", err)
	}
	chunkSize := utils.ReadUint(sizeBuf, sizeFieldBytes, sb.Endianness)

	// The whole first chunk: prefix, size field, messages and checksum.
	//nolint:gosec // G115: prefix and field sizes are small constants
	dataStart := uint64(prefixSize + sizeFieldBytes)
	total, err := utils.SafeAdd(dataStart+4, chunkSize)
	if err != nil {
		return nil, err
	}
	block, err := readBlock(r, headerAddr, total)
	if err != nil {
		return nil, utils.WrapError("object header chunk read failed", err)
	}

	if err := verifyTrailingChecksum("object header", headerAddr, block, sb); err != nil {
		return nil, err
	}

	trackOrder := flags&hdrAttrCrtTracked != 0
	messages, err := parseV2Messages(block[dataStart:total-4], headerAddr+dataStart, trackOrder, sb)
	if err != nil {
		return nil, err
	}

	return followContinuations(messages, sb, func(cont continuationInfo) ([]*HeaderMessage, error) {
		if cont.Size < uint64(len(continuationSignature))+4 {
			return nil, fmt.Errorf("continuation chunk too small: %d bytes", cont.Size)
		}
		chunk, err := readBlock(r, cont.Address, cont.Size)
		if err != nil {
			return nil, err
		}
		if string(chunk[:4]) != continuationSignature {
			return nil, fmt.Errorf("invalid continuation signature at 0x%X: %q", cont.Address, chunk[:4])
		}
		if err := verifyTrailingChecksum("object header continuation", cont.Address, chunk, sb); err != nil {
			return nil, err
		}
		return parseV2Messages(chunk[4:len(chunk)-4], cont.Address+4, trackOrder, sb)
	})
}

// parseV2Messages parses v2 messages from a chunk body located at base.
// A remainder smaller than a message header is a gap and is skipped.
func parseV2Messages(body []byte, base uint64, trackOrder bool, sb *Superblock) ([]*HeaderMessage, error) {
	headerSize := 4
	if trackOrder {
		headerSize += 2
	}

	var messages []*HeaderMessage
	pos := 0
	for pos+headerSize <= len(body) {
		msgType := MessageType(body[pos])
		msgSize := int(sb.Endianness.Uint16(body[pos+1 : pos+3]))
		msgFlags := body[pos+3]

		var order uint16
		if trackOrder {
			order = sb.Endianness.Uint16(body[pos+4 : pos+6])
		}

		dataStart := pos + headerSize
		if dataStart+msgSize > len(body) {
			return nil, fmt.Errorf("message type 0x%04X extends beyond chunk", uint16(msgType))
		}

		if msgType != MsgNil {
			data := make([]byte, msgSize)
			copy(data, body[dataStart:dataStart+msgSize])
			messages = append(messages, &HeaderMessage{
				Type:          msgType,
				Flags:         msgFlags,
				CreationOrder: order,
				Offset:        base + uint64(pos), //nolint:gosec // G115: pos is non-negative
				Data:          data,
			})
		}

		pos = dataStart + msgSize
	}

	return messages, nil
}

// verifyTrailingChecksum checks the lookup3 checksum stored in the last
// four bytes of block against the bytes before it.
func verifyTrailingChecksum(structure string, address uint64, block []byte, sb *Superblock) error {
	n := len(block)
	stored := sb.Endianness.Uint32(block[n-4:])
	return utils.VerifyChecksum(structure, address, block[:n-4], stored)
}

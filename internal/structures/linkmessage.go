package structures

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/scigolib/h5iterate/internal/core"
)

// LinkType represents the type of link.
type LinkType uint8

// Link type constants define different kinds of links between HDF5 objects.
const (
	LinkTypeHard     LinkType = 0  // Hard link (object address).
	LinkTypeSoft     LinkType = 1  // Soft link (path string).
	LinkTypeExternal LinkType = 64 // External link (file name and path).
)

// LinkMessage represents an HDF5 Link message (type 6).
// Dense groups store the same encoding as fractal heap objects.
type LinkMessage struct {
	Version            uint8
	Flags              uint8
	Type               LinkType
	Name               string
	CreationOrder      int64
	CreationOrderValid bool
	CharacterSet       uint8

	// For hard links.
	ObjectAddress uint64

	// For soft links.
	TargetPath string

	// For external links.
	ExternalFile string
	ExternalPath string

	// For other user-defined links, the raw link value.
	UserData []byte
}

// Link message flag bits.
const (
	flagNameSize0          = 0x00 // Name size: 1 byte.
	flagNameSize1          = 0x01 // Name size: 2 bytes.
	flagNameSize2          = 0x02 // Name size: 4 bytes.
	flagNameSize3          = 0x03 // Name size: 8 bytes.
	flagNameSizeMask       = 0x03 // Mask for name size bits.
	flagStoreCreationOrder = 0x04 // Store creation order.
	flagStoreLinkType      = 0x08 // Store link type.
	flagStoreCharset       = 0x10 // Store character set.
	flagsKnownMask         = 0x1F
)

var errLinkTruncated = errors.New("link message truncated")

// ParseLinkMessage parses a Link message from raw data.
//
//nolint:funlen // field-by-field decode of the link message layout
func ParseLinkMessage(data []byte, sb *core.Superblock) (*LinkMessage, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("link message too short: %d bytes", len(data))
	}

	msg := &LinkMessage{
		Version: data[0],
		Flags:   data[1],
		Type:    LinkTypeHard,
	}
	current := 2

	if msg.Version != 1 {
		return nil, fmt.Errorf("unsupported link message version: %d", msg.Version)
	}
	if msg.Flags&^flagsKnownMask != 0 {
		return nil, fmt.Errorf("unknown link message flags: 0x%02X", msg.Flags)
	}

	need := func(n int) error {
		if current+n > len(data) {
			return errLinkTruncated
		}
		return nil
	}

	if msg.Flags&flagStoreLinkType != 0 {
		if err := need(1); err != nil {
			return nil, fmt.Errorf("reading link type: %w", err)
		}
		msg.Type = LinkType(data[current])
		current++
	}

	if msg.Flags&flagStoreCreationOrder != 0 {
		if err := need(8); err != nil {
			return nil, fmt.Errorf("reading creation order: %w", err)
		}
		//nolint:gosec // G115: HDF5 binary format requires uint64 to int64 conversion
		msg.CreationOrder = int64(binary.LittleEndian.Uint64(data[current : current+8]))
		msg.CreationOrderValid = true
		current += 8
	}

	if msg.Flags&flagStoreCharset != 0 {
		if err := need(1); err != nil {
			return nil, fmt.Errorf("reading charset: %w", err)
		}
		msg.CharacterSet = data[current]
		current++
	}

	// Name length is 1, 2, 4 or 8 bytes wide depending on flags bits 0-1.
	nameFieldSize := 1 << (msg.Flags & flagNameSizeMask)
	if err := need(nameFieldSize); err != nil {
		return nil, fmt.Errorf("reading name length: %w", err)
	}
	var nameLen uint64
	switch nameFieldSize {
	case 1:
		nameLen = uint64(data[current])
	case 2:
		nameLen = uint64(binary.LittleEndian.Uint16(data[current:]))
	case 4:
		nameLen = uint64(binary.LittleEndian.Uint32(data[current:]))
	default:
		nameLen = binary.LittleEndian.Uint64(data[current:])
	}
	current += nameFieldSize

	if nameLen == 0 {
		return nil, errors.New("invalid name length: 0")
	}
	if nameLen > uint64(len(data)-current) {
		return nil, fmt.Errorf("unexpected end of data reading name (need %d bytes, have %d)",
			nameLen, len(data)-current)
	}
	msg.Name = string(data[current : current+int(nameLen)]) //nolint:gosec // G115: bounded above
	current += int(nameLen)                                //nolint:gosec // G115: bounded above

	switch msg.Type {
	case LinkTypeHard:
		if err := need(int(sb.OffsetSize)); err != nil {
			return nil, fmt.Errorf("reading object address: %w", err)
		}
		msg.ObjectAddress = sb.DecodeAddress(data[current:])

	case LinkTypeSoft:
		value, err := readLinkValue(data, current)
		if err != nil {
			return nil, fmt.Errorf("reading soft link value: %w", err)
		}
		if len(value) == 0 {
			return nil, errors.New("invalid soft link length: 0")
		}
		msg.TargetPath = string(value)

	default:
		value, err := readLinkValue(data, current)
		if err != nil {
			return nil, fmt.Errorf("reading user-defined link value: %w", err)
		}
		msg.UserData = value
		if msg.Type == LinkTypeExternal {
			msg.ExternalFile, msg.ExternalPath, err = parseExternalLinkValue(value)
			if err != nil {
				return nil, err
			}
		}
	}

	return msg, nil
}

// readLinkValue reads a 2-byte length followed by that many bytes.
func readLinkValue(data []byte, current int) ([]byte, error) {
	if current+2 > len(data) {
		return nil, errLinkTruncated
	}
	n := int(binary.LittleEndian.Uint16(data[current : current+2]))
	current += 2
	if current+n > len(data) {
		return nil, errLinkTruncated
	}
	return data[current : current+n], nil
}

// parseExternalLinkValue splits an external link value: one version/flags
// byte, then the NUL-terminated file name and object path.
func parseExternalLinkValue(value []byte) (file, path string, err error) {
	if len(value) < 1 {
		return "", "", errors.New("external link value is empty")
	}
	if version := value[0] >> 4; version != 0 {
		return "", "", fmt.Errorf("unsupported external link version: %d", version)
	}

	parts := bytes.SplitN(value[1:], []byte{0}, 3)
	if len(parts) < 2 {
		return "", "", errors.New("external link value is not NUL-terminated")
	}
	return string(parts[0]), string(parts[1]), nil
}

// IsHardLink returns true if this is a hard link.
func (lm *LinkMessage) IsHardLink() bool {
	return lm.Type == LinkTypeHard
}

// IsSoftLink returns true if this is a soft link.
func (lm *LinkMessage) IsSoftLink() bool {
	return lm.Type == LinkTypeSoft
}

// IsExternalLink returns true if this is an external link.
func (lm *LinkMessage) IsExternalLink() bool {
	return lm.Type == LinkTypeExternal
}

// String returns a string representation of the link.
func (lm *LinkMessage) String() string {
	switch lm.Type {
	case LinkTypeHard:
		return fmt.Sprintf("Hard link '%s' -> address 0x%x", lm.Name, lm.ObjectAddress)
	case LinkTypeSoft:
		return fmt.Sprintf("Soft link '%s' -> '%s'", lm.Name, lm.TargetPath)
	case LinkTypeExternal:
		return fmt.Sprintf("External link '%s' -> '%s:%s'", lm.Name, lm.ExternalFile, lm.ExternalPath)
	default:
		return fmt.Sprintf("Link '%s' (type %d)", lm.Name, lm.Type)
	}
}

// Package core decodes the HDF5 superblock, object headers and the header
// messages that identify groups, datasets and named datatypes.
package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/h5iterate/internal/utils"
)

// HDF5 file signature and supported superblock versions.
const (
	Signature = "\x89HDF\r\n\x1a\n"
	Version0  = 0
	Version1  = 1
	Version2  = 2
	Version3  = 3
)

// ErrSignatureNotFound is returned when no HDF5 signature exists at any of
// the offsets a superblock may start at.
var ErrSignatureNotFound = errors.New("HDF5 signature not found")

// Superblock represents the HDF5 file superblock containing file-level metadata.
type Superblock struct {
	Version        uint8
	OffsetSize     uint8
	LengthSize     uint8
	GroupLeafK     uint16
	GroupInternalK uint16
	BaseAddress    uint64
	EOFAddress     uint64
	SuperExtension uint64
	DriverInfo     uint64
	Endianness     binary.ByteOrder

	// RootGroup is the address of the root group's object header.
	RootGroup uint64

	// RootBTree and RootHeap are the symbol table addresses cached in the
	// root group's symbol table entry (versions 0 and 1 only).
	RootBTree uint64
	RootHeap  uint64
}

// FindSignature searches for the HDF5 signature at offset 0 and then at
// every power of two from 512 up to size. The returned offset is the base
// of all addresses in the file.
func FindSignature(r io.ReaderAt, size int64) (int64, error) {
	buf := utils.GetBuffer(len(Signature))
	defer utils.ReleaseBuffer(buf)

	for off := int64(0); off+int64(len(Signature)) <= size; {
		if _, err := r.ReadAt(buf, off); err != nil {
			return 0, utils.WrapError("signature read failed", err)
		}
		if string(buf) == Signature {
			return off, nil
		}

		if off == 0 {
			off = 512
		} else {
			off *= 2
		}
	}

	return 0, ErrSignatureNotFound
}

// ReadSuperblock reads and parses the superblock at offset 0 of r.
// It supports versions 0 through 3 of the superblock format.
func ReadSuperblock(r io.ReaderAt) (*Superblock, error) {
	buf := make([]byte, 128)

	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, utils.WrapError("superblock read failed", err)
	}
	buf = buf[:n]
	if n < 48 {
		return nil, errors.New("file too small to contain a superblock")
	}

	if string(buf[:8]) != Signature {
		return nil, errors.New("invalid HDF5 signature")
	}

	sb := &Superblock{
		Version:    buf[8],
		Endianness: binary.LittleEndian,
	}

	switch sb.Version {
	case Version0, Version1:
		err = sb.decodeV0(buf)
	case Version2, Version3:
		err = sb.decodeV2(buf)
	default:
		return nil, fmt.Errorf("unsupported superblock version: %d", sb.Version)
	}
	if err != nil {
		return nil, err
	}

	if sb.IsUndefined(sb.RootGroup) {
		return nil, errors.New("root group address is undefined")
	}

	return sb, nil
}

// decodeV0 parses the version 0 and 1 layout:
//
//	Bytes 0-7:   Signature
//	Byte 8:      Superblock version
//	Bytes 9-12:  Free-space, root symbol table, reserved, shared header versions
//	Byte 13:     Size of offsets
//	Byte 14:     Size of lengths
//	Bytes 16-19: Group leaf and internal node K
//	Bytes 20-23: File consistency flags
//	Bytes 24-27: Indexed storage K and reserved (version 1 only)
//	Then:        Base, free-space info, end-of-file and driver info addresses
//	Then:        Root group symbol table entry
func (sb *Superblock) decodeV0(buf []byte) error {
	sb.OffsetSize = buf[13]
	sb.LengthSize = buf[14]
	if !utils.ValidSize(sb.OffsetSize) || !utils.ValidSize(sb.LengthSize) {
		return fmt.Errorf("invalid sizes for version %d: offset=%d, length=%d",
			sb.Version, sb.OffsetSize, sb.LengthSize)
	}

	sb.GroupLeafK = sb.Endianness.Uint16(buf[16:18])
	sb.GroupInternalK = sb.Endianness.Uint16(buf[18:20])

	pos := 24
	if sb.Version == Version1 {
		pos = 28
	}

	offsetSize := int(sb.OffsetSize)
	// Four addresses plus the root entry: name offset, header address,
	// cache type, reserved, and a 16-byte scratch pad.
	need := pos + 4*offsetSize + 2*offsetSize + 8 + 16
	if len(buf) < need {
		return fmt.Errorf("superblock truncated: need %d bytes, have %d", need, len(buf))
	}

	sb.BaseAddress = sb.DecodeAddress(buf[pos:])
	pos += offsetSize
	pos += offsetSize // Global free-space index, unused by readers.
	sb.EOFAddress = sb.DecodeAddress(buf[pos:])
	pos += offsetSize
	sb.DriverInfo = sb.DecodeAddress(buf[pos:])
	pos += offsetSize

	// Root group symbol table entry.
	pos += offsetSize // Link name offset, always 0 for the root.
	sb.RootGroup = sb.DecodeAddress(buf[pos:])
	pos += offsetSize
	cacheType := sb.Endianness.Uint32(buf[pos : pos+4])
	pos += 8

	sb.RootBTree = sb.UndefinedAddress()
	sb.RootHeap = sb.UndefinedAddress()
	if cacheType == 1 {
		sb.RootBTree = sb.DecodeAddress(buf[pos:])
		sb.RootHeap = sb.DecodeAddress(buf[pos+offsetSize:])
	}

	return nil
}

// decodeV2 parses the version 2 and 3 layout:
//
//	Bytes 0-7: Signature
//	Byte 8:    Superblock version
//	Byte 9:    Size of offsets
//	Byte 10:   Size of lengths
//	Byte 11:   File consistency flags
//	Then:      Base, superblock extension, end-of-file and root group addresses
//	Then:      Checksum over all preceding bytes
func (sb *Superblock) decodeV2(buf []byte) error {
	sb.OffsetSize = buf[9]
	sb.LengthSize = buf[10]
	if !utils.ValidSize(sb.OffsetSize) || !utils.ValidSize(sb.LengthSize) {
		return fmt.Errorf("invalid sizes for version %d: offset=%d, length=%d",
			sb.Version, sb.OffsetSize, sb.LengthSize)
	}

	offsetSize := int(sb.OffsetSize)
	end := 12 + 4*offsetSize
	if len(buf) < end+4 {
		return fmt.Errorf("superblock truncated: need %d bytes, have %d", end+4, len(buf))
	}

	stored := sb.Endianness.Uint32(buf[end : end+4])
	if err := utils.VerifyChecksum("superblock", 0, buf[:end], stored); err != nil {
		return err
	}

	pos := 12
	sb.BaseAddress = sb.DecodeAddress(buf[pos:])
	pos += offsetSize
	sb.SuperExtension = sb.DecodeAddress(buf[pos:])
	pos += offsetSize
	sb.EOFAddress = sb.DecodeAddress(buf[pos:])
	pos += offsetSize
	sb.RootGroup = sb.DecodeAddress(buf[pos:])

	sb.RootBTree = sb.UndefinedAddress()
	sb.RootHeap = sb.UndefinedAddress()
	sb.DriverInfo = sb.UndefinedAddress()

	return nil
}

// DecodeAddress decodes a file address of OffsetSize bytes.
func (sb *Superblock) DecodeAddress(data []byte) uint64 {
	return utils.ReadUint(data, int(sb.OffsetSize), sb.Endianness)
}

// DecodeLength decodes a length field of LengthSize bytes.
func (sb *Superblock) DecodeLength(data []byte) uint64 {
	return utils.ReadUint(data, int(sb.LengthSize), sb.Endianness)
}

// UndefinedAddress returns the all-ones address for this file's offset width.
func (sb *Superblock) UndefinedAddress() uint64 {
	if sb.OffsetSize >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * uint(sb.OffsetSize))) - 1
}

// IsUndefined reports whether addr is the undefined address.
func (sb *Superblock) IsUndefined(addr uint64) bool {
	return utils.IsUndefinedAddress(addr, sb.OffsetSize)
}

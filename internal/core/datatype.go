package core

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DatatypeClass represents HDF5 datatype class.
type DatatypeClass uint8

// Datatype class constants.
const (
	DatatypeFixed     DatatypeClass = 0  // Fixed-point (integers).
	DatatypeFloat     DatatypeClass = 1  // Floating-point.
	DatatypeTime      DatatypeClass = 2  // Time.
	DatatypeString    DatatypeClass = 3  // String.
	DatatypeBitfield  DatatypeClass = 4  // Bitfield.
	DatatypeOpaque    DatatypeClass = 5  // Opaque.
	DatatypeCompound  DatatypeClass = 6  // Compound.
	DatatypeReference DatatypeClass = 7  // Reference.
	DatatypeEnum      DatatypeClass = 8  // Enumerated.
	DatatypeVarLen    DatatypeClass = 9  // Variable-length.
	DatatypeArray     DatatypeClass = 10 // Array.
	DatatypeComplex   DatatypeClass = 11 // Complex.
)

var datatypeClassNames = [...]string{
	DatatypeFixed:     "integer",
	DatatypeFloat:     "float",
	DatatypeTime:      "time",
	DatatypeString:    "string",
	DatatypeBitfield:  "bitfield",
	DatatypeOpaque:    "opaque",
	DatatypeCompound:  "compound",
	DatatypeReference: "reference",
	DatatypeEnum:      "enum",
	DatatypeVarLen:    "vlen",
	DatatypeArray:     "array",
	DatatypeComplex:   "complex",
}

// String returns the lower-case class name.
func (c DatatypeClass) String() string {
	if int(c) < len(datatypeClassNames) {
		return datatypeClassNames[c]
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Class bit field flags for fixed-point and floating-point types.
const (
	datatypeBigEndian = 0x01
	datatypeSigned    = 0x08
)

// Datatype is the common prefix of a datatype message (type 0x0003).
// Class properties beyond the prefix are not decoded.
type Datatype struct {
	Class   DatatypeClass
	Version uint8
	// BitField holds the 24 class-specific flag bits.
	BitField uint32
	Size     uint32
}

// ParseDatatype decodes the 8-byte datatype message prefix: class and
// version packed in byte 0, three bytes of class flags, and the element
// size.
func ParseDatatype(data []byte) (*Datatype, error) {
	if len(data) < 8 {
		return nil, errors.New("datatype message too short")
	}

	packed := binary.LittleEndian.Uint32(data[0:4])
	dt := &Datatype{
		Class:    DatatypeClass(packed & 0x0F),
		Version:  uint8((packed >> 4) & 0x0F), //nolint:gosec // G115: 4-bit field
		BitField: packed >> 8,
		Size:     binary.LittleEndian.Uint32(data[4:8]),
	}
	if dt.Version == 0 {
		return nil, errors.New("invalid datatype version: 0")
	}
	return dt, nil
}

// BigEndian reports whether a numeric type is stored big-endian.
func (dt *Datatype) BigEndian() bool {
	return dt.BitField&datatypeBigEndian != 0
}

// String returns a short description such as "int32", "uint8",
// "float64 BE" or "string (10 bytes)".
func (dt *Datatype) String() string {
	var s string
	switch dt.Class {
	case DatatypeFixed:
		s = fmt.Sprintf("int%d", dt.Size*8)
		if dt.BitField&datatypeSigned == 0 {
			s = "u" + s
		}
	case DatatypeFloat:
		s = fmt.Sprintf("float%d", dt.Size*8)
	default:
		return fmt.Sprintf("%s (%d bytes)", dt.Class, dt.Size)
	}
	if dt.BigEndian() {
		s += " BE"
	}
	return s
}

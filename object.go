package h5iterate

import (
	"fmt"
	"strings"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/structures"
)

// ObjectType classifies the object a link points to.
// The numeric codes match the HDF5 library's object type enumeration.
type ObjectType int

// Object type codes.
const (
	ObjectTypeUnknown       ObjectType = -1
	ObjectTypeGroup         ObjectType = 0
	ObjectTypeDataset       ObjectType = 1
	ObjectTypeNamedDatatype ObjectType = 2
	ObjectTypeNTypes        ObjectType = 3
)

// String returns the name of the object type code.
func (t ObjectType) String() string {
	switch t {
	case ObjectTypeGroup:
		return "Group"
	case ObjectTypeDataset:
		return "Dataset"
	case ObjectTypeNamedDatatype:
		return "NamedDatatype"
	case ObjectTypeNTypes:
		return "NTypes"
	default:
		return "Unknown"
	}
}

// objectTypeFromCore maps the header classification onto public codes.
func objectTypeFromCore(t core.ObjectType) ObjectType {
	switch t {
	case core.ObjectTypeGroup:
		return ObjectTypeGroup
	case core.ObjectTypeDataset:
		return ObjectTypeDataset
	case core.ObjectTypeDatatype:
		return ObjectTypeNamedDatatype
	default:
		return ObjectTypeUnknown
	}
}

// LinkType identifies how a group member is linked into its group.
type LinkType int

// Link types. Values from 65 up are user-defined link classes.
const (
	LinkHard     LinkType = 0
	LinkSoft     LinkType = 1
	LinkExternal LinkType = 64
)

// String returns a short name for the link type.
func (t LinkType) String() string {
	switch t {
	case LinkHard:
		return "hard"
	case LinkSoft:
		return "soft"
	case LinkExternal:
		return "external"
	default:
		return fmt.Sprintf("user-defined(%d)", int(t))
	}
}

func linkTypeFromStructures(t structures.LinkType) LinkType {
	return LinkType(t)
}

// IndexType selects the order in which group members are returned.
type IndexType int

// Index types.
const (
	// IndexName orders members by increasing byte-wise name.
	IndexName IndexType = iota
	// IndexCreationOrder orders members by the order links were created.
	// Only groups that track creation order support it.
	IndexCreationOrder
)

// String returns the name used for the index type on the command line.
func (t IndexType) String() string {
	switch t {
	case IndexName:
		return "name"
	case IndexCreationOrder:
		return "creation"
	default:
		return fmt.Sprintf("IndexType(%d)", int(t))
	}
}

// ParseIndexType parses "name" or "creation" (case-insensitive).
func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "name", "":
		return IndexName, nil
	case "creation", "crt_order", "creation_order":
		return IndexCreationOrder, nil
	default:
		return IndexName, fmt.Errorf("unknown index type %q (want name or creation)", s)
	}
}

// UndefinedAddress is reported for members that do not resolve to an
// object in this file, such as external and dangling soft links.
const UndefinedAddress = ^uint64(0)

// MemberInfo describes one member of a group.
type MemberInfo struct {
	Name     string
	Type     ObjectType
	LinkType LinkType
	// Address is the object header address of the member, relative to
	// the start of the HDF5 data in the file.
	Address uint64
}

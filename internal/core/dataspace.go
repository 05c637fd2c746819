package core

import (
	"errors"
	"fmt"
	"strings"
)

// DataspaceClass represents the type of dataspace.
type DataspaceClass uint8

// Dataspace classes define the dimensionality of datasets.
const (
	DataspaceScalar DataspaceClass = 0 // Scalar (single value).
	DataspaceSimple DataspaceClass = 1 // Simple (N-dimensional array).
	DataspaceNull   DataspaceClass = 2 // Null (no data).
)

// dataspaceMaxDimsFlag marks a message carrying maximum dimensions.
const dataspaceMaxDimsFlag = 0x01

// Unlimited is the maximum dimension of an extendible axis. Stored values
// of all ones at the file's length width are decoded to it.
const Unlimited = ^uint64(0)

// Dataspace is a decoded dataspace message (type 0x0001).
type Dataspace struct {
	Version uint8
	Class   DataspaceClass
	Dims    []uint64
	// MaxDims is nil when the message stores no maximum dimensions.
	MaxDims []uint64
}

// ParseDataspace decodes a dataspace message. Dimension sizes are
// LengthSize bytes wide.
//
// Version 1: version, rank, flags, 5 reserved bytes, then dimensions and
// optional maximum dimensions; a rank of 0 means scalar.
// Version 2: version, rank, flags, class, then the same arrays.
func ParseDataspace(data []byte, sb *Superblock) (*Dataspace, error) {
	if len(data) < 4 {
		return nil, errors.New("dataspace message too short")
	}

	ds := &Dataspace{Version: data[0]}
	rank := int(data[1])
	flags := data[2]

	var offset int
	switch ds.Version {
	case 1:
		offset = 8
		ds.Class = DataspaceSimple
		if rank == 0 {
			ds.Class = DataspaceScalar
		}
	case 2:
		offset = 4
		ds.Class = DataspaceClass(data[3])
		if ds.Class > DataspaceNull {
			return nil, fmt.Errorf("invalid dataspace class: %d", ds.Class)
		}
	default:
		return nil, fmt.Errorf("unsupported dataspace version: %d", ds.Version)
	}

	if ds.Class != DataspaceSimple {
		return ds, nil
	}

	width := int(sb.LengthSize)
	count := rank
	if flags&dataspaceMaxDimsFlag != 0 {
		count *= 2
	}
	if need := offset + count*width; len(data) < need {
		return nil, fmt.Errorf("dataspace message truncated: need %d bytes, have %d", need, len(data))
	}

	read := func() []uint64 {
		dims := make([]uint64, rank)
		for i := range dims {
			dims[i] = sb.DecodeLength(data[offset:])
			offset += width
		}
		return dims
	}
	ds.Dims = read()
	if flags&dataspaceMaxDimsFlag != 0 {
		ds.MaxDims = read()
		allOnes := Unlimited
		if width < 8 {
			allOnes = uint64(1)<<(8*uint(width)) - 1
		}
		for i, d := range ds.MaxDims {
			if d == allOnes {
				ds.MaxDims[i] = Unlimited
			}
		}
	}

	return ds, nil
}

// Elements returns the number of elements the dataspace selects.
func (ds *Dataspace) Elements() uint64 {
	switch ds.Class {
	case DataspaceNull:
		return 0
	case DataspaceScalar:
		return 1
	}
	total := uint64(1)
	for _, d := range ds.Dims {
		total *= d
	}
	return total
}

// String returns "scalar", "null" or the dimensions as "[4 x 7]".
// Unlimited maximum dimensions are marked with a trailing "+".
func (ds *Dataspace) String() string {
	switch ds.Class {
	case DataspaceScalar:
		return "scalar"
	case DataspaceNull:
		return "null"
	}

	parts := make([]string, len(ds.Dims))
	for i, d := range ds.Dims {
		parts[i] = fmt.Sprint(d)
		if ds.MaxDims != nil && ds.MaxDims[i] == Unlimited {
			parts[i] += "+"
		}
	}
	return "[" + strings.Join(parts, " x ") + "]"
}

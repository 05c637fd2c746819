package core

import (
	"errors"
	"fmt"
)

// DataLayoutClass represents the storage layout of a dataset.
type DataLayoutClass uint8

// Data layout classes.
const (
	LayoutCompact    DataLayoutClass = 0 // Data stored in the message.
	LayoutContiguous DataLayoutClass = 1 // Data stored contiguously in the file.
	LayoutChunked    DataLayoutClass = 2 // Data stored in chunks.
	LayoutVirtual    DataLayoutClass = 3 // Virtual dataset.
)

// String returns the layout class name.
func (c DataLayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	case LayoutVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("layout(%d)", uint8(c))
	}
}

// DataLayout is the class of a data layout message (type 0x0008).
// Storage addresses and chunk dimensions are not decoded.
type DataLayout struct {
	Version uint8
	Class   DataLayoutClass
}

// ParseDataLayout decodes the layout class. Versions 1 and 2 store it
// after the dimensionality byte; versions 3 and 4 directly after the
// version.
func ParseDataLayout(data []byte) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, errors.New("data layout message too short")
	}

	dl := &DataLayout{Version: data[0]}
	switch dl.Version {
	case 1, 2:
		if len(data) < 3 {
			return nil, errors.New("data layout message too short")
		}
		dl.Class = DataLayoutClass(data[2])
	case 3, 4:
		dl.Class = DataLayoutClass(data[1])
	default:
		return nil, fmt.Errorf("unsupported data layout version: %d", dl.Version)
	}

	if dl.Class > LayoutVirtual {
		return nil, fmt.Errorf("unsupported layout class: %d", dl.Class)
	}
	return dl, nil
}

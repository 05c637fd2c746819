package h5iterate

import (
	"fmt"

	"github.com/scigolib/h5iterate/internal/core"
	"github.com/scigolib/h5iterate/internal/utils"
)

// ObjectSummary is the header metadata of an object that verbose listings
// show next to its name. Fields that do not apply to the object's type are
// empty.
type ObjectSummary struct {
	Type ObjectType
	// Shape is the dataspace of a dataset, e.g. "[4 x 7]" or "scalar".
	Shape string
	// Datatype is the element type of a dataset or named datatype.
	Datatype string
	// Layout is the storage layout class of a dataset.
	Layout string
}

// Summarize reads the object header at address and describes it. Only
// header messages are read; dataset values are not.
func (f *File) Summarize(address uint64) (ObjectSummary, error) {
	if address == UndefinedAddress {
		return ObjectSummary{Type: ObjectTypeUnknown}, nil
	}

	header, err := f.header(address)
	if err != nil {
		return ObjectSummary{}, fmt.Errorf("object header at 0x%X: %w", address, err)
	}

	s := ObjectSummary{Type: objectTypeFromCore(header.Type)}
	if s.Type != ObjectTypeDataset && s.Type != ObjectTypeNamedDatatype {
		return s, nil
	}

	if msg := header.Find(core.MsgDatatype); msg != nil {
		dt, err := core.ParseDatatype(msg.Data)
		if err != nil {
			return s, utils.WrapError("datatype message parse failed", err)
		}
		s.Datatype = dt.String()
	}

	if s.Type != ObjectTypeDataset {
		return s, nil
	}

	if msg := header.Find(core.MsgDataspace); msg != nil {
		ds, err := core.ParseDataspace(msg.Data, f.sb)
		if err != nil {
			return s, utils.WrapError("dataspace message parse failed", err)
		}
		s.Shape = ds.String()
	}

	if msg := header.Find(core.MsgDataLayout); msg != nil {
		dl, err := core.ParseDataLayout(msg.Data)
		if err != nil {
			return s, utils.WrapError("data layout message parse failed", err)
		}
		s.Layout = dl.Class.String()
	}

	return s, nil
}

package h5iterate

import (
	"fmt"
	"io"

	"go.uber.org/multierr"
)

// RootListingTitle is the header line printed before the root group listing.
const RootListingTitle = "Objects in root group:"

// Label returns the display label for an object type.
func Label(t ObjectType) string {
	switch t {
	case ObjectTypeGroup:
		return "Group"
	case ObjectTypeDataset:
		return "Dataset"
	case ObjectTypeNamedDatatype:
		return "Datatype"
	default:
		return "Unknown"
	}
}

// WriteListing writes title on its own line followed by one
// "  <Label>: <name>" line per member.
func WriteListing(w io.Writer, title string, members []MemberInfo) error {
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	for _, m := range members {
		if _, err := fmt.Fprintf(w, "  %s: %s\n", Label(m.Type), m.Name); err != nil {
			return err
		}
	}
	return nil
}

// ListRoot opens the HDF5 file at path, writes the listing of its root
// group in name order to w and closes the file.
//
// The title line is written even when the file cannot be opened; the open
// error is then returned and nothing else is attempted. A failure while
// listing does not prevent the file from being closed, and every failure
// is reported in the returned error.
func ListRoot(w io.Writer, path string) error {
	file, openErr := Open(path)
	if openErr != nil {
		return multierr.Append(openErr, WriteListing(w, RootListingTitle, nil))
	}

	members, err := rootMembers(file)
	if err == nil {
		err = WriteListing(w, RootListingTitle, members)
	} else {
		err = multierr.Append(err, WriteListing(w, RootListingTitle, nil))
	}

	return multierr.Append(err, file.Close())
}

func rootMembers(file *File) ([]MemberInfo, error) {
	root, err := file.Root()
	if err != nil {
		return nil, err
	}

	n, err := root.NumMembers()
	if err != nil {
		return nil, err
	}

	members, err := root.Members(IndexName)
	if err != nil {
		return nil, err
	}
	if len(members) != n {
		return nil, fmt.Errorf("root group reported %d members but listed %d", n, len(members))
	}
	return members, nil
}

package utils

import "fmt"

// H5Error represents a structured HDF5 error.
type H5Error struct {
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *H5Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Cause)
}

// Unwrap provides compatibility with errors.Unwrap().
func (e *H5Error) Unwrap() error {
	return e.Cause
}

// WrapError creates a contextual error. A nil cause yields nil.
func WrapError(context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &H5Error{
		Context: context,
		Cause:   cause,
	}
}

// ChecksumError reports a metadata block whose stored checksum does not
// match the one computed over its contents.
type ChecksumError struct {
	Structure string
	Address   uint64
	Stored    uint32
	Computed  uint32
}

// Error implements the error interface.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s at 0x%X: checksum mismatch (stored 0x%08X, computed 0x%08X)",
		e.Structure, e.Address, e.Stored, e.Computed)
}

// VerifyChecksum compares the lookup3 checksum of data with stored.
func VerifyChecksum(structure string, address uint64, data []byte, stored uint32) error {
	computed := Lookup3(data, 0)
	if computed != stored {
		return &ChecksumError{
			Structure: structure,
			Address:   address,
			Stored:    stored,
			Computed:  computed,
		}
	}
	return nil
}

package h5iterate

import (
	"errors"
	"fmt"
	"strings"
)

// maxLinkHops bounds soft link chains, matching the HDF5 library default
// of 16 traversals.
const maxLinkHops = 16

// errDangling marks a soft link whose target cannot be reached.
var errDangling = errors.New("dangling soft link")

// classify resolves a link found in the group at groupAddr into a
// MemberInfo.
func (f *File) classify(groupAddr uint64, l link) (MemberInfo, error) {
	m := MemberInfo{
		Name:     l.name,
		Type:     ObjectTypeUnknown,
		LinkType: l.linkType,
		Address:  UndefinedAddress,
	}

	var addr uint64
	switch l.linkType {
	case LinkHard:
		addr = l.address
	case LinkSoft:
		resolved, err := f.resolvePath(groupAddr, l.target, 1)
		if errors.Is(err, errDangling) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotGroup) {
			return m, nil
		}
		if err != nil {
			return m, err
		}
		addr = resolved
	default:
		// External and user-defined links point outside this file.
		return m, nil
	}

	if f.sb.IsUndefined(addr) {
		return m, nil
	}

	header, err := f.header(addr)
	if err != nil {
		return m, fmt.Errorf("object header at 0x%X: %w", addr, err)
	}
	m.Type = objectTypeFromCore(header.Type)
	m.Address = addr
	return m, nil
}

// resolvePath walks path starting at the group at start, or at the root
// group when path is absolute. hops counts soft links already followed.
func (f *File) resolvePath(start uint64, path string, hops int) (uint64, error) {
	if hops > maxLinkHops {
		return 0, fmt.Errorf("more than %d soft link hops: %w", maxLinkHops, errDangling)
	}

	addr := start
	if strings.HasPrefix(path, "/") {
		addr = f.sb.RootGroup
	}

	for _, name := range strings.Split(path, "/") {
		if name == "" || name == "." {
			continue
		}

		l, err := f.lookupLink(addr, name)
		if err != nil {
			return 0, err
		}

		switch l.linkType {
		case LinkHard:
			addr = l.address
		case LinkSoft:
			// Relative soft link values resolve from the group holding them.
			addr, err = f.resolvePath(addr, l.target, hops+1)
			if err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("%q leaves the file: %w", name, errDangling)
		}
	}

	return addr, nil
}

// lookupLink finds the link called name in the group at address.
func (f *File) lookupLink(address uint64, name string) (link, error) {
	header, err := f.header(address)
	if err != nil {
		return link{}, err
	}

	gl, err := f.readLinks(address, header)
	if err != nil {
		return link{}, err
	}

	for _, l := range gl.links {
		if l.name == name {
			return l, nil
		}
	}
	return link{}, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// cleanPath normalizes a group path for display.
func cleanPath(path string) string {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	kept := parts[:0]
	for _, p := range parts {
		if p != "." {
			kept = append(kept, p)
		}
	}
	return "/" + strings.Join(kept, "/")
}

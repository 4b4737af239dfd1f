package rbh

// FieldMask marks which top-level fields of an FSEntry are populated
// (distinct from StatXMask, which is nested one level further under the
// StatX field). A projection at query time reuses this type to say which
// fields the caller wants materialized; a mask of FieldID alone
// (rbh.IdsOnly) means "ids only", the shape the garbage collector scans
// with.
type FieldMask uint16

// FSEntry field bits.
const (
	FieldID FieldMask = 1 << iota
	FieldParentID
	FieldName
	FieldStatX
	FieldSymlink
	FieldNamespaceXattrs
	FieldInodeXattrs

	FieldAll = FieldID | FieldParentID | FieldName | FieldStatX |
		FieldSymlink | FieldNamespaceXattrs | FieldInodeXattrs
)

// Has reports whether every bit in want is set in m.
func (m FieldMask) Has(want FieldMask) bool { return m&want == want }

// FSEntry is a snapshot of one inode with one of its names: a populated
// fields bitmask, the id pair, the optional statx and symlink target, and
// the two xattr maps (namespace xattrs are scoped to this (parent, name)
// link; inode xattrs belong to the inode itself).
//
// An entry with ID.IsRoot() true is the pseudo-root: ParentID.IsRoot() too,
// Name is empty, and it carries no namespace link — its uniqueness is
// guaranteed by the walker that produced it, not by this type.
type FSEntry struct {
	Mask FieldMask

	ID       Id
	ParentID Id
	Name     string

	StatX   StatX
	Symlink string

	NamespaceXattrs *ValueMap
	InodeXattrs     *ValueMap
}

// IsRoot reports whether e is the pseudo-root entry.
func (e FSEntry) IsRoot() bool { return e.Mask.Has(FieldID) && e.ID.IsRoot() }

// Project returns a copy of e with every field outside mask cleared, as if
// e had been produced by a backend queried with that projection.
func (e FSEntry) Project(mask FieldMask) FSEntry {
	out := FSEntry{Mask: e.Mask & mask}
	if out.Mask.Has(FieldID) {
		out.ID = e.ID
	}
	if out.Mask.Has(FieldParentID) {
		out.ParentID = e.ParentID
	}
	if out.Mask.Has(FieldName) {
		out.Name = e.Name
	}
	if out.Mask.Has(FieldStatX) {
		out.StatX = e.StatX
	}
	if out.Mask.Has(FieldSymlink) {
		out.Symlink = e.Symlink
	}
	if out.Mask.Has(FieldNamespaceXattrs) {
		out.NamespaceXattrs = e.NamespaceXattrs
	}
	if out.Mask.Has(FieldInodeXattrs) {
		out.InodeXattrs = e.InodeXattrs
	}
	return out
}

package rbh

// StatXMask is a bitmask over the StatX fields that are actually populated.
// Absent fields must never be silently read as zero: callers must test the
// relevant bit before trusting a field, the same discipline Linux's statx(2)
// imposes on its result mask.
type StatXMask uint32

// StatX mask bits, one per populated field group.
const (
	StatXType StatXMask = 1 << iota
	StatXMode
	StatXNlink
	StatXUID
	StatXGID
	StatXAtime
	StatXMtime
	StatXCtime
	StatXBtime
	StatXIno
	StatXSize
	StatXBlocks
	StatXBlksize
	StatXAttributes
	StatXRdev
	StatXDev
	StatXMountID

	StatXAll = StatXType | StatXMode | StatXNlink | StatXUID | StatXGID |
		StatXAtime | StatXMtime | StatXCtime | StatXBtime | StatXIno |
		StatXSize | StatXBlocks | StatXBlksize | StatXAttributes |
		StatXRdev | StatXDev | StatXMountID
)

// Has reports whether every bit set in want is also set in m.
func (m StatXMask) Has(want StatXMask) bool { return m&want == want }

// FileType mirrors POSIX file-type bits, narrowed to what statx reports.
type FileType uint16

// File types.
const (
	FileTypeUnknown FileType = iota
	FileTypeRegular
	FileTypeDirectory
	FileTypeSymlink
	FileTypeBlockDev
	FileTypeCharDev
	FileTypeFIFO
	FileTypeSocket
)

// Timestamp is a statx-style (seconds, nanoseconds) pair. Kept as two plain
// integers rather than time.Time so a partially-masked StatX never has to
// fabricate a timezone or forge monotonic-clock reading data it doesn't have.
type Timestamp struct {
	Sec  int64
	Nsec uint32
}

// DeviceID is a (major, minor) device number pair.
type DeviceID struct {
	Major uint32
	Minor uint32
}

// AttributesMask flags statx's extended attributes word (compression,
// immutability, ...). Like StatXMask, a bit only has meaning when the
// corresponding AttributesMask bit (carried alongside, see StatX.AttrsMask)
// is set — statx(2) itself distinguishes "attribute is false" from
// "filesystem doesn't report this attribute at all".
type AttributesMask uint64

// Attribute bits, matching STATX_ATTR_* from statx(2).
const (
	AttrCompressed AttributesMask = 1 << iota
	AttrImmutable
	AttrAppend
	AttrNodump
	AttrEncrypted
	AttrAutomount
	AttrMountRoot
	AttrVerity
	AttrDAX
)

// StatX is a masked superset of POSIX stat, mirroring Linux's statx(2)
// result plus the handful of RobinHood-specific extensions (mount id).
// Only fields whose bit is set in Mask are meaningful.
type StatX struct {
	Mask StatXMask

	Type    FileType
	Mode    uint16
	Nlink   uint32
	UID     uint32
	GID     uint32
	Size    uint64
	Blocks  uint64
	Ino     uint64
	Blksize uint32

	Atime Timestamp
	Btime Timestamp
	Ctime Timestamp
	Mtime Timestamp

	Attributes     AttributesMask
	AttributesMask AttributesMask

	Dev  DeviceID
	Rdev DeviceID

	MountID uint64
}

// Merge overlays fields from patch wherever patch.Mask marks them present,
// leaving base's existing fields untouched otherwise. The statx enrichment
// request calls it with the freshly resolved statx as base and the event's
// own statx as patch, so fields the caller already set win.
func (base StatX) Merge(patch StatX) StatX {
	out := base
	out.Mask |= patch.Mask
	if patch.Mask.Has(StatXType) {
		out.Type = patch.Type
	}
	if patch.Mask.Has(StatXMode) {
		out.Mode = patch.Mode
	}
	if patch.Mask.Has(StatXNlink) {
		out.Nlink = patch.Nlink
	}
	if patch.Mask.Has(StatXUID) {
		out.UID = patch.UID
	}
	if patch.Mask.Has(StatXGID) {
		out.GID = patch.GID
	}
	if patch.Mask.Has(StatXSize) {
		out.Size = patch.Size
	}
	if patch.Mask.Has(StatXBlocks) {
		out.Blocks = patch.Blocks
	}
	if patch.Mask.Has(StatXIno) {
		out.Ino = patch.Ino
	}
	if patch.Mask.Has(StatXBlksize) {
		out.Blksize = patch.Blksize
	}
	if patch.Mask.Has(StatXAtime) {
		out.Atime = patch.Atime
	}
	if patch.Mask.Has(StatXBtime) {
		out.Btime = patch.Btime
	}
	if patch.Mask.Has(StatXCtime) {
		out.Ctime = patch.Ctime
	}
	if patch.Mask.Has(StatXMtime) {
		out.Mtime = patch.Mtime
	}
	if patch.Mask.Has(StatXAttributes) {
		out.Attributes = patch.Attributes
		out.AttributesMask = patch.AttributesMask
	}
	if patch.Mask.Has(StatXRdev) {
		out.Rdev = patch.Rdev
	}
	if patch.Mask.Has(StatXDev) {
		out.Dev = patch.Dev
	}
	if patch.Mask.Has(StatXMountID) {
		out.MountID = patch.MountID
	}
	return out
}

// Package mongo implements spec.md's document-store target backend: the
// primary mirror destination fsevents are synced into, queried via the
// filter/sort/projection algebra. Grounded on go.mongodb.org/mongo-driver,
// the one MongoDB client in the retrieval pack's dependency surface (no
// teacher backend talks to Mongo directly, so the document shape below is
// modeled on spec.md §4.3's "one document per inode, embedded namespace
// links array" description rather than transliterated from existing code).
package mongo

import (
	"github.com/rbh-project/rbh4/rbh"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// nsLinkDoc is one embedded namespace link: an inode can have several names
// (hardlinks), so links is an array rather than a single (parent, name)
// pair.
type nsLinkDoc struct {
	ParentOrigin uint8              `bson:"parent_origin"`
	ParentID     primitive.Binary   `bson:"parent_id"`
	Name         string             `bson:"name"`
	Xattrs       bson.M             `bson:"xattrs,omitempty"`
	// Ancestors is the materialized chain of ancestor ids from the root
	// down to (and including) this link's parent, maintained at Link time
	// so Branch can restrict a query without a recursive graph lookup.
	Ancestors []primitive.Binary `bson:"ancestors,omitempty"`
}

// statxDoc mirrors rbh.StatX as a plain embedded document; fields outside
// the entry's StatX.Mask are simply omitted rather than zero-written, so a
// partial statx never clobbers fields a previous sync already populated.
type statxDoc struct {
	Type    *uint16 `bson:"type,omitempty"`
	Mode    *uint16 `bson:"mode,omitempty"`
	Nlink   *uint32 `bson:"nlink,omitempty"`
	UID     *uint32 `bson:"uid,omitempty"`
	GID     *uint32 `bson:"gid,omitempty"`
	Size    *uint64 `bson:"size,omitempty"`
	Blocks  *uint64 `bson:"blocks,omitempty"`
	Blksize *uint32 `bson:"blksize,omitempty"`
	Ino     *uint64 `bson:"ino,omitempty"`
	Atime   *int64  `bson:"atime,omitempty"`
	Btime   *int64  `bson:"btime,omitempty"`
	Ctime   *int64  `bson:"ctime,omitempty"`
	Mtime   *int64  `bson:"mtime,omitempty"`
	MountID *uint64 `bson:"mount_id,omitempty"`
}

// entryDoc is the one-document-per-inode shape spec.md §4.3 calls for.
type entryDoc struct {
	ID     primitive.Binary `bson:"_id"`
	Origin uint8            `bson:"origin"`

	StatX   *statxDoc `bson:"statx,omitempty"`
	Symlink *string   `bson:"symlink,omitempty"`

	InodeXattrs bson.M      `bson:"xattrs,omitempty"`
	Namespace   []nsLinkDoc `bson:"ns,omitempty"`
}

func idToBinary(id rbh.Id) primitive.Binary {
	return primitive.Binary{Subtype: byte(id.Origin), Data: id.Bytes()}
}

func binaryToID(b primitive.Binary) rbh.Id {
	id, _ := rbh.NewID(rbh.Origin(b.Subtype), b.Data)
	return id
}

func valueToBSON(v rbh.Value) any {
	switch v.Kind {
	case rbh.ValueBool:
		return v.Bool()
	case rbh.ValueInt32:
		return v.Int32()
	case rbh.ValueUint32:
		return int64(v.Uint32())
	case rbh.ValueInt64:
		return v.Int64()
	case rbh.ValueUint64:
		return int64(v.Uint64()) // Mongo has no native uint64; spec.md accepts the signed-wraparound tradeoff for values above int63max
	case rbh.ValueString:
		return v.String()
	case rbh.ValueBinary:
		return primitive.Binary{Data: v.Binary()}
	case rbh.ValueSequence:
		seq := v.Sequence()
		out := make(bson.A, len(seq))
		for i, e := range seq {
			out[i] = valueToBSON(e)
		}
		return out
	case rbh.ValueMapKind:
		out := bson.M{}
		v.MapValue().Range(func(k string, mv rbh.Value) bool {
			out[k] = valueToBSON(mv)
			return true
		})
		return out
	default:
		return nil
	}
}

func bsonToValue(v any) rbh.Value {
	switch t := v.(type) {
	case bool:
		return rbh.NewBool(t)
	case int32:
		return rbh.NewInt32(t)
	case int64:
		return rbh.NewInt64(t)
	case float64:
		return rbh.NewInt64(int64(t))
	case string:
		return rbh.NewString(t)
	case primitive.Binary:
		return rbh.NewBinary(t.Data)
	case bson.A:
		vs := make([]rbh.Value, len(t))
		for i, e := range t {
			vs[i] = bsonToValue(e)
		}
		return rbh.NewSequence(vs...)
	case bson.M:
		m := rbh.NewValueMap()
		for k, mv := range t {
			m.Set(k, bsonToValue(mv))
		}
		return rbh.NewMapValue(m)
	default:
		return rbh.Value{}
	}
}

func xattrsToBSON(m *rbh.ValueMap) bson.M {
	if m == nil || m.Len() == 0 {
		return nil
	}
	out := bson.M{}
	m.Range(func(k string, v rbh.Value) bool {
		out[k] = valueToBSON(v)
		return true
	})
	return out
}

func bsonToXattrs(m bson.M) *rbh.ValueMap {
	out := rbh.NewValueMap()
	for k, v := range m {
		out.Set(k, bsonToValue(v))
	}
	return out
}

func statxToDoc(st rbh.StatX) *statxDoc {
	d := &statxDoc{}
	if st.Mask.Has(rbh.StatXType) {
		t := uint16(st.Type)
		d.Type = &t
	}
	if st.Mask.Has(rbh.StatXMode) {
		d.Mode = &st.Mode
	}
	if st.Mask.Has(rbh.StatXNlink) {
		d.Nlink = &st.Nlink
	}
	if st.Mask.Has(rbh.StatXUID) {
		d.UID = &st.UID
	}
	if st.Mask.Has(rbh.StatXGID) {
		d.GID = &st.GID
	}
	if st.Mask.Has(rbh.StatXSize) {
		d.Size = &st.Size
	}
	if st.Mask.Has(rbh.StatXBlocks) {
		d.Blocks = &st.Blocks
	}
	if st.Mask.Has(rbh.StatXBlksize) {
		d.Blksize = &st.Blksize
	}
	if st.Mask.Has(rbh.StatXIno) {
		d.Ino = &st.Ino
	}
	if st.Mask.Has(rbh.StatXAtime) {
		d.Atime = &st.Atime.Sec
	}
	if st.Mask.Has(rbh.StatXBtime) {
		d.Btime = &st.Btime.Sec
	}
	if st.Mask.Has(rbh.StatXCtime) {
		d.Ctime = &st.Ctime.Sec
	}
	if st.Mask.Has(rbh.StatXMtime) {
		d.Mtime = &st.Mtime.Sec
	}
	if st.Mask.Has(rbh.StatXMountID) {
		d.MountID = &st.MountID
	}
	return d
}

func docToStatx(d *statxDoc) rbh.StatX {
	if d == nil {
		return rbh.StatX{}
	}
	var st rbh.StatX
	if d.Type != nil {
		st.Mask |= rbh.StatXType
		st.Type = rbh.FileType(*d.Type)
	}
	if d.Mode != nil {
		st.Mask |= rbh.StatXMode
		st.Mode = *d.Mode
	}
	if d.Nlink != nil {
		st.Mask |= rbh.StatXNlink
		st.Nlink = *d.Nlink
	}
	if d.UID != nil {
		st.Mask |= rbh.StatXUID
		st.UID = *d.UID
	}
	if d.GID != nil {
		st.Mask |= rbh.StatXGID
		st.GID = *d.GID
	}
	if d.Size != nil {
		st.Mask |= rbh.StatXSize
		st.Size = *d.Size
	}
	if d.Blocks != nil {
		st.Mask |= rbh.StatXBlocks
		st.Blocks = *d.Blocks
	}
	if d.Blksize != nil {
		st.Mask |= rbh.StatXBlksize
		st.Blksize = *d.Blksize
	}
	if d.Ino != nil {
		st.Mask |= rbh.StatXIno
		st.Ino = *d.Ino
	}
	if d.Atime != nil {
		st.Mask |= rbh.StatXAtime
		st.Atime = rbh.Timestamp{Sec: *d.Atime}
	}
	if d.Btime != nil {
		st.Mask |= rbh.StatXBtime
		st.Btime = rbh.Timestamp{Sec: *d.Btime}
	}
	if d.Ctime != nil {
		st.Mask |= rbh.StatXCtime
		st.Ctime = rbh.Timestamp{Sec: *d.Ctime}
	}
	if d.Mtime != nil {
		st.Mask |= rbh.StatXMtime
		st.Mtime = rbh.Timestamp{Sec: *d.Mtime}
	}
	if d.MountID != nil {
		st.Mask |= rbh.StatXMountID
		st.MountID = *d.MountID
	}
	return st
}

// entryFromDoc expands one entryDoc into one rbh.FSEntry per namespace
// link, since FSEntry models a single (inode, name) pair while a document
// may carry several hardlinks. A document with no links yet (not linked
// into the namespace) yields one entry with no name/parent.
func entryFromDoc(d entryDoc, proj rbh.Projection) []rbh.FSEntry {
	id := binaryToID(d.ID)
	base := rbh.FSEntry{Mask: rbh.FieldID, ID: id}
	if proj.Fields.Has(rbh.FieldStatX) && d.StatX != nil {
		base.Mask |= rbh.FieldStatX
		base.StatX = docToStatx(d.StatX)
	}
	if proj.Fields.Has(rbh.FieldSymlink) && d.Symlink != nil {
		base.Mask |= rbh.FieldSymlink
		base.Symlink = *d.Symlink
	}
	if proj.Fields.Has(rbh.FieldInodeXattrs) && d.InodeXattrs != nil {
		base.Mask |= rbh.FieldInodeXattrs
		base.InodeXattrs = bsonToXattrs(d.InodeXattrs)
	}

	if len(d.Namespace) == 0 || !proj.Fields.Has(rbh.FieldParentID|rbh.FieldName) {
		return []rbh.FSEntry{base}
	}

	out := make([]rbh.FSEntry, 0, len(d.Namespace))
	for _, ns := range d.Namespace {
		e := base
		e.Mask |= rbh.FieldParentID | rbh.FieldName
		parentID, _ := rbh.NewID(rbh.Origin(ns.ParentOrigin), ns.ParentID.Data)
		e.ParentID = parentID
		e.Name = ns.Name
		if proj.Fields.Has(rbh.FieldNamespaceXattrs) && ns.Xattrs != nil {
			e.Mask |= rbh.FieldNamespaceXattrs
			e.NamespaceXattrs = bsonToXattrs(ns.Xattrs)
		}
		out = append(out, e)
	}
	return out
}

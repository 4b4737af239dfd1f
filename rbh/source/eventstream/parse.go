// Package eventstream parses a YAML document stream of fsevents, the wire
// format spec.md §6 fixes as "a map with keys id, type,
// [upsert|link|unlink|delete|xattrs], …" plus the reserved `rbh-fsevents`
// enrichment-request marker (spec.md §4.5). Grounded on
// original_source/rbh-fsevents/src/sources/yaml_file.c, which hands a raw
// YAML event stream off to a generic iterator; this reimplementation
// replaces that hand-rolled libyaml state machine with gopkg.in/yaml.v3's
// streaming Decoder, one call to Decode per document.
package eventstream

import (
	"encoding/hex"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/rbh-project/rbh4/internal/rbherrors"
	"github.com/rbh-project/rbh4/internal/rbhlog"
	"github.com/rbh-project/rbh4/rbh"
)

// rawID is the on-wire shape of an Id: an origin tag plus hex-encoded bytes.
type rawID struct {
	Origin string `yaml:"origin"`
	Hex    string `yaml:"hex"`
}

func (r rawID) decode() (rbh.Id, error) {
	if r.Hex == "" {
		return rbh.RootID, nil
	}
	b, err := hex.DecodeString(r.Hex)
	if err != nil {
		return rbh.Id{}, fmt.Errorf("eventstream: bad id hex %q: %w", r.Hex, err)
	}
	return rbh.NewID(originFromString(r.Origin), b)
}

func originFromString(s string) rbh.Origin {
	switch s {
	case "posix":
		return rbh.OriginPOSIX
	case "mpi-file":
		return rbh.OriginMPIFile
	case "s3":
		return rbh.OriginS3
	case "store":
		return rbh.OriginStore
	default:
		return rbh.OriginUnknown
	}
}

type rawXattrEdit struct {
	Set       *yaml.Node `yaml:"s"`
	Unset     bool       `yaml:"u"`
	Increment *int64     `yaml:"i"`
}

func (r rawXattrEdit) decode() (rbh.XattrEdit, error) {
	switch {
	case r.Unset:
		return rbh.XattrEdit{Op: rbh.XattrUnset}, nil
	case r.Increment != nil:
		return rbh.XattrEdit{Op: rbh.XattrIncrement, Payload: rbh.NewInt64(*r.Increment)}, nil
	case r.Set != nil:
		v, err := decodeScalarValue(r.Set)
		if err != nil {
			return rbh.XattrEdit{}, err
		}
		return rbh.XattrEdit{Op: rbh.XattrSet, Payload: v}, nil
	default:
		return rbh.XattrEdit{}, fmt.Errorf("eventstream: empty xattr edit")
	}
}

func decodeScalarValue(n *yaml.Node) (rbh.Value, error) {
	switch n.Tag {
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return rbh.Value{}, err
		}
		return rbh.NewInt64(i), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return rbh.Value{}, err
		}
		return rbh.NewBool(b), nil
	default:
		var s string
		if err := n.Decode(&s); err != nil {
			return rbh.Value{}, err
		}
		return rbh.NewString(s), nil
	}
}

func decodeXattrMap(raw map[string]rawXattrEdit) (*rbh.PartialXattrs, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	p := rbh.NewPartialXattrs()
	for k, v := range raw {
		edit, err := v.decode()
		if err != nil {
			return nil, fmt.Errorf("eventstream: xattr %q: %w", k, err)
		}
		p.Set(k, edit)
	}
	return p, nil
}

type rawStatX struct {
	Size  *uint64 `yaml:"size"`
	Mode  *uint16 `yaml:"mode"`
	UID   *uint32 `yaml:"uid"`
	GID   *uint32 `yaml:"gid"`
	Nlink *uint32 `yaml:"nlink"`
	Type  *string `yaml:"type"`
}

func fileTypeFromString(s string) rbh.FileType {
	switch s {
	case "regular":
		return rbh.FileTypeRegular
	case "directory":
		return rbh.FileTypeDirectory
	case "symlink":
		return rbh.FileTypeSymlink
	default:
		return rbh.FileTypeUnknown
	}
}

func (r *rawStatX) decode() rbh.StatX {
	var st rbh.StatX
	if r == nil {
		return st
	}
	if r.Size != nil {
		st.Mask |= rbh.StatXSize
		st.Size = *r.Size
	}
	if r.Mode != nil {
		st.Mask |= rbh.StatXMode
		st.Mode = *r.Mode
	}
	if r.UID != nil {
		st.Mask |= rbh.StatXUID
		st.UID = *r.UID
	}
	if r.GID != nil {
		st.Mask |= rbh.StatXGID
		st.GID = *r.GID
	}
	if r.Nlink != nil {
		st.Mask |= rbh.StatXNlink
		st.Nlink = *r.Nlink
	}
	if r.Type != nil {
		st.Mask |= rbh.StatXType
		st.Type = fileTypeFromString(*r.Type)
	}
	return st
}

type rawUpsert struct {
	StatX   *rawStatX                `yaml:"statx"`
	Symlink *string                  `yaml:"symlink"`
	Xattrs  map[string]rawXattrEdit  `yaml:"xattrs"`
}

type rawLink struct {
	Parent rawID                   `yaml:"parent"`
	Name   string                  `yaml:"name"`
	Xattrs map[string]rawXattrEdit `yaml:"xattrs"`
}

type rawXattrs struct {
	Inode     map[string]rawXattrEdit `yaml:"inode"`
	Namespace *rawLink                `yaml:"namespace"`
}

// rawEnrichmentRequest mirrors the reserved rbh-fsevents marker from
// spec.md §4.5: a map of enrichment requests attached to an otherwise
// partial UPSERT.
type rawEnrichmentRequest struct {
	StatX   []string `yaml:"statx"`
	Symlink bool     `yaml:"symlink"`
	Xattrs  []string `yaml:"xattrs"`
	Lustre  bool     `yaml:"lustre"`
	Path    bool     `yaml:"path"`
}

type rawDocument struct {
	ID   rawID  `yaml:"id"`
	Type string `yaml:"type"`

	Upsert *rawUpsert `yaml:"upsert"`
	Link   *rawLink   `yaml:"link"`
	Unlink *rawLink   `yaml:"unlink"`
	Xattrs *rawXattrs `yaml:"xattrs"`

	Enrich *rawEnrichmentRequest `yaml:"rbh-fsevents"`
}

// statxBitFor maps the enrichment request's field names to StatXMask bits.
func statxBitFor(name string) (rbh.StatXMask, bool) {
	switch name {
	case "type":
		return rbh.StatXType, true
	case "mode":
		return rbh.StatXMode, true
	case "nlink":
		return rbh.StatXNlink, true
	case "uid":
		return rbh.StatXUID, true
	case "gid":
		return rbh.StatXGID, true
	case "size":
		return rbh.StatXSize, true
	case "blocks":
		return rbh.StatXBlocks, true
	case "atime":
		return rbh.StatXAtime, true
	case "mtime":
		return rbh.StatXMtime, true
	case "ctime":
		return rbh.StatXCtime, true
	case "btime":
		return rbh.StatXBtime, true
	default:
		return 0, false
	}
}

func requestMap(req *rawEnrichmentRequest) *rbh.ValueMap {
	if req == nil {
		return nil
	}
	m := rbh.NewValueMap()
	if len(req.StatX) > 0 {
		var mask rbh.StatXMask
		for _, f := range req.StatX {
			if bit, ok := statxBitFor(f); ok {
				mask |= bit
			}
		}
		m.Set("statx", rbh.NewUint32(uint32(mask)))
	}
	if req.Symlink {
		m.Set("symlink", rbh.NewBool(true))
	}
	if len(req.Xattrs) > 0 {
		vs := make([]rbh.Value, len(req.Xattrs))
		for i, k := range req.Xattrs {
			vs[i] = rbh.NewString(k)
		}
		m.Set("xattrs", rbh.NewSequence(vs...))
	}
	if req.Lustre {
		m.Set("lustre", rbh.NewBool(true))
	}
	if req.Path {
		m.Set("path", rbh.NewBool(true))
	}
	return m
}

func (d rawDocument) toEvent() (rbh.FSEvent, error) {
	id, err := d.ID.decode()
	if err != nil {
		return rbh.FSEvent{}, err
	}

	var ev rbh.FSEvent
	switch d.Type {
	case "upsert":
		ev = rbh.FSEvent{Type: rbh.EventUpsert, ID: id}
		if d.Upsert != nil {
			if d.Upsert.StatX != nil {
				ev.Upsert.HasStatX = true
				ev.Upsert.StatX = d.Upsert.StatX.decode()
			}
			if d.Upsert.Symlink != nil {
				ev.Upsert.HasSymlink = true
				ev.Upsert.Symlink = *d.Upsert.Symlink
			}
			xa, err := decodeXattrMap(d.Upsert.Xattrs)
			if err != nil {
				return rbh.FSEvent{}, err
			}
			ev.Upsert.InodeXattrs = xa
		}
	case "link":
		if d.Link == nil {
			return rbh.FSEvent{}, fmt.Errorf("eventstream: type link requires a link map")
		}
		parent, err := d.Link.Parent.decode()
		if err != nil {
			return rbh.FSEvent{}, err
		}
		xa, err := decodeXattrMap(d.Link.Xattrs)
		if err != nil {
			return rbh.FSEvent{}, err
		}
		ev = rbh.FSEvent{
			Type: rbh.EventLink, ID: id,
			Link: rbh.LinkPayload{ParentID: parent, Name: d.Link.Name, NamespaceXattrs: xa},
		}
	case "unlink":
		if d.Unlink == nil {
			return rbh.FSEvent{}, fmt.Errorf("eventstream: type unlink requires an unlink map")
		}
		parent, err := d.Unlink.Parent.decode()
		if err != nil {
			return rbh.FSEvent{}, err
		}
		ev = rbh.FSEvent{
			Type: rbh.EventUnlink, ID: id,
			Link: rbh.LinkPayload{ParentID: parent, Name: d.Unlink.Name},
		}
	case "delete":
		ev = rbh.FSEvent{Type: rbh.EventDelete, ID: id}
	case "xattrs":
		if d.Xattrs == nil {
			return rbh.FSEvent{}, fmt.Errorf("eventstream: type xattrs requires an xattrs map")
		}
		inode, err := decodeXattrMap(d.Xattrs.Inode)
		if err != nil {
			return rbh.FSEvent{}, err
		}
		ev = rbh.FSEvent{Type: rbh.EventXattr, ID: id, Xattr: rbh.XattrPayload{Xattrs: inode}}
		if d.Xattrs.Namespace != nil {
			parent, err := d.Xattrs.Namespace.Parent.decode()
			if err != nil {
				return rbh.FSEvent{}, err
			}
			nsXattrs, err := decodeXattrMap(d.Xattrs.Namespace.Xattrs)
			if err != nil {
				return rbh.FSEvent{}, err
			}
			ev.Xattr.Namespace = &rbh.LinkPayload{
				ParentID: parent, Name: d.Xattrs.Namespace.Name, NamespaceXattrs: nsXattrs,
			}
		}
	default:
		return rbh.FSEvent{}, rbherrors.Validation("parse", fmt.Errorf("eventstream: unknown event type %q", d.Type))
	}

	if rm := requestMap(d.Enrich); rm != nil {
		ev.RawXattrs = rm
	}
	return ev, nil
}

// Decoder streams FSEvent values out of a YAML document stream.
type Decoder struct {
	dec *yaml.Decoder
	cur rbh.FSEvent
	err error
}

// NewDecoder wraps r as an fsevent stream decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: yaml.NewDecoder(r)}
}

// Next decodes the next document. It returns false at end of stream or on
// the first error (see Err); an unknown event type is a hard parse error
// per spec.md §4.4, while unrecognized document keys are ignored by
// yaml.v3's default strict=false unmarshaling; no warning is logged for
// them.
func (d *Decoder) Next() bool {
	var raw rawDocument
	if err := d.dec.Decode(&raw); err != nil {
		if err != io.EOF {
			d.err = err
		}
		return false
	}
	ev, err := raw.toEvent()
	if err != nil {
		d.err = err
		return false
	}
	rbhlog.Debugf("eventstream: decoded %s event for %s", ev.Type, ev.ID)
	d.cur = ev
	return true
}

// Event returns the event Next just decoded.
func (d *Decoder) Event() rbh.FSEvent { return d.cur }

// Err returns the first decode error, if any (nil at clean EOF).
func (d *Decoder) Err() error { return d.err }

package boltfile

import (
	"bytes"
	"encoding/gob"

	"github.com/rbh-project/rbh4/rbh"
)

// wireValue mirrors rbh.Value's tagged union with exported fields, since
// gob can't see across the unexported fields rbh.Value keeps its payload
// in. One of these fields is meaningful per Kind, same discipline as the
// type it mirrors.
type wireValue struct {
	Kind    rbh.ValueKind
	Bool    bool
	Int32   int32
	Uint32  uint32
	Int64   int64
	Uint64  uint64
	String  string
	Binary  []byte
	Pattern string
	ReOpts  rbh.RegexOption
	Seq     []wireValue
	Map     *wireMap
}

// wireMap mirrors rbh.ValueMap's (ordered keys, values) pair.
type wireMap struct {
	Keys   []string
	Values []wireValue
}

func toWireValue(v rbh.Value) wireValue {
	w := wireValue{Kind: v.Kind}
	switch v.Kind {
	case rbh.ValueBool:
		w.Bool = v.Bool()
	case rbh.ValueInt32:
		w.Int32 = v.Int32()
	case rbh.ValueUint32:
		w.Uint32 = v.Uint32()
	case rbh.ValueInt64:
		w.Int64 = v.Int64()
	case rbh.ValueUint64:
		w.Uint64 = v.Uint64()
	case rbh.ValueString:
		w.String = v.String()
	case rbh.ValueBinary:
		w.Binary = v.Binary()
	case rbh.ValueRegex:
		re := v.RegexValue()
		w.Pattern = re.Pattern
		w.ReOpts = re.Options
	case rbh.ValueSequence:
		for _, e := range v.Sequence() {
			w.Seq = append(w.Seq, toWireValue(e))
		}
	case rbh.ValueMapKind:
		w.Map = toWireMap(v.MapValue())
	}
	return w
}

func fromWireValue(w wireValue) rbh.Value {
	switch w.Kind {
	case rbh.ValueBool:
		return rbh.NewBool(w.Bool)
	case rbh.ValueInt32:
		return rbh.NewInt32(w.Int32)
	case rbh.ValueUint32:
		return rbh.NewUint32(w.Uint32)
	case rbh.ValueInt64:
		return rbh.NewInt64(w.Int64)
	case rbh.ValueUint64:
		return rbh.NewUint64(w.Uint64)
	case rbh.ValueString:
		return rbh.NewString(w.String)
	case rbh.ValueBinary:
		return rbh.NewBinary(w.Binary)
	case rbh.ValueRegex:
		return rbh.NewRegex(w.Pattern, w.ReOpts)
	case rbh.ValueSequence:
		vs := make([]rbh.Value, len(w.Seq))
		for i, e := range w.Seq {
			vs[i] = fromWireValue(e)
		}
		return rbh.NewSequence(vs...)
	case rbh.ValueMapKind:
		return rbh.NewMapValue(fromWireMap(w.Map))
	default:
		return rbh.Value{}
	}
}

func toWireMap(m *rbh.ValueMap) *wireMap {
	if m == nil {
		return nil
	}
	w := &wireMap{}
	m.Range(func(k string, v rbh.Value) bool {
		w.Keys = append(w.Keys, k)
		w.Values = append(w.Values, toWireValue(v))
		return true
	})
	return w
}

func fromWireMap(w *wireMap) *rbh.ValueMap {
	m := rbh.NewValueMap()
	if w == nil {
		return m
	}
	for i, k := range w.Keys {
		m.Set(k, fromWireValue(w.Values[i]))
	}
	return m
}

// wireID mirrors rbh.Id's (Origin, bytes) pair.
type wireID struct {
	Origin rbh.Origin
	Bytes  []byte
}

func toWireID(id rbh.Id) wireID { return wireID{Origin: id.Origin, Bytes: id.Bytes()} }

func fromWireID(w wireID) rbh.Id {
	id, _ := rbh.NewID(w.Origin, w.Bytes)
	return id
}

// wireEntry mirrors rbh.FSEntry with every field either already exported
// or replaced by its wire counterpart, the shape stored as a gob-encoded
// bbolt value.
type wireEntry struct {
	Mask rbh.FieldMask

	ID       wireID
	ParentID wireID
	Name     string

	StatX   rbh.StatX
	Symlink string

	NamespaceXattrs *wireMap
	InodeXattrs     *wireMap
}

func encodeEntry(e rbh.FSEntry) ([]byte, error) {
	w := wireEntry{
		Mask: e.Mask, ID: toWireID(e.ID), ParentID: toWireID(e.ParentID),
		Name: e.Name, StatX: e.StatX, Symlink: e.Symlink,
		NamespaceXattrs: toWireMap(e.NamespaceXattrs),
		InodeXattrs:     toWireMap(e.InodeXattrs),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(raw []byte) (rbh.FSEntry, error) {
	var w wireEntry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&w); err != nil {
		return rbh.FSEntry{}, err
	}
	e := rbh.FSEntry{
		Mask: w.Mask, ID: fromWireID(w.ID), ParentID: fromWireID(w.ParentID),
		Name: w.Name, StatX: w.StatX, Symlink: w.Symlink,
	}
	if w.NamespaceXattrs != nil {
		e.NamespaceXattrs = fromWireMap(w.NamespaceXattrs)
	}
	if w.InodeXattrs != nil {
		e.InodeXattrs = fromWireMap(w.InodeXattrs)
	}
	return e, nil
}

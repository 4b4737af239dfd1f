package rbh

import "fmt"

// ValueKind tags the active member of a Value.
type ValueKind uint8

// Value kinds. Sequence and Map are the only recursive members.
const (
	ValueNone ValueKind = iota
	ValueBool
	ValueInt32
	ValueUint32
	ValueInt64
	ValueUint64
	ValueString
	ValueBinary
	ValueRegex
	ValueSequence
	ValueMapKind
)

func (k ValueKind) String() string {
	switch k {
	case ValueBool:
		return "bool"
	case ValueInt32:
		return "int32"
	case ValueUint32:
		return "uint32"
	case ValueInt64:
		return "int64"
	case ValueUint64:
		return "uint64"
	case ValueString:
		return "string"
	case ValueBinary:
		return "binary"
	case ValueRegex:
		return "regex"
	case ValueSequence:
		return "sequence"
	case ValueMapKind:
		return "map"
	default:
		return "none"
	}
}

// RegexOption flags modify how a Regex value's pattern is interpreted.
type RegexOption uint8

// Regex options. ShellPattern treats the pattern as a glob (* ? [...])
// rather than a full regular expression.
const (
	RegexOptionNone            RegexOption = 0
	RegexOptionShellPattern    RegexOption = 1 << 0
	RegexOptionCaseInsensitive RegexOption = 1 << 1
)

// Regex is the payload of a ValueRegex value.
type Regex struct {
	Pattern string
	Options RegexOption
}

// Value is a tagged union over the scalar and composite types the filter
// algebra, the statx mirror, and xattr maps all traffic in. Only the field
// matching Kind is meaningful; callers must switch on Kind before reading.
type Value struct {
	Kind ValueKind

	boolV   bool
	int32V  int32
	uint32V uint32
	int64V  int64
	uint64V uint64
	stringV string
	binaryV []byte
	regexV  Regex
	seqV    []Value
	mapV    *ValueMap
}

// Constructors. Each pins Kind so callers never need to set it by hand.

func NewBool(v bool) Value     { return Value{Kind: ValueBool, boolV: v} }
func NewInt32(v int32) Value   { return Value{Kind: ValueInt32, int32V: v} }
func NewUint32(v uint32) Value { return Value{Kind: ValueUint32, uint32V: v} }
func NewInt64(v int64) Value   { return Value{Kind: ValueInt64, int64V: v} }
func NewUint64(v uint64) Value { return Value{Kind: ValueUint64, uint64V: v} }
func NewString(v string) Value { return Value{Kind: ValueString, stringV: v} }
func NewBinary(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{Kind: ValueBinary, binaryV: cp}
}
func NewRegex(pattern string, opts RegexOption) Value {
	return Value{Kind: ValueRegex, regexV: Regex{Pattern: pattern, Options: opts}}
}
func NewSequence(vs ...Value) Value { return Value{Kind: ValueSequence, seqV: vs} }
func NewMapValue(m *ValueMap) Value { return Value{Kind: ValueMapKind, mapV: m} }

// Accessors panic-free: they return the zero value when Kind mismatches, the
// way a type switch on an interface{} would if mishandled, but without the
// allocation/indirection of boxing every scalar into an interface.

func (v Value) Bool() bool       { return v.boolV }
func (v Value) Int32() int32     { return v.int32V }
func (v Value) Uint32() uint32   { return v.uint32V }
func (v Value) Int64() int64     { return v.int64V }
func (v Value) Uint64() uint64   { return v.uint64V }
func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		return v.stringV
	case ValueBinary:
		return string(v.binaryV)
	default:
		return fmt.Sprintf("%s(%v)", v.Kind, v.raw())
	}
}
func (v Value) Binary() []byte    { return v.binaryV }
func (v Value) RegexValue() Regex { return v.regexV }
func (v Value) Sequence() []Value { return v.seqV }
func (v Value) MapValue() *ValueMap { return v.mapV }

func (v Value) raw() any {
	switch v.Kind {
	case ValueBool:
		return v.boolV
	case ValueInt32:
		return v.int32V
	case ValueUint32:
		return v.uint32V
	case ValueInt64:
		return v.int64V
	case ValueUint64:
		return v.uint64V
	default:
		return nil
	}
}

// AsInt64 widens any of the integer kinds to a signed 64-bit value, the
// common currency the filter algebra's comparators operate in before
// applying the unsigned-boundary translation described in spec.md §4.2.
func (v Value) AsInt64() (int64, bool) {
	switch v.Kind {
	case ValueInt32:
		return int64(v.int32V), true
	case ValueUint32:
		return int64(v.uint32V), true
	case ValueInt64:
		return v.int64V, true
	case ValueUint64:
		return int64(v.uint64V), true
	default:
		return 0, false
	}
}

// IsUnsigned reports whether v holds one of the two unsigned integer kinds,
// the case that needs the two's-complement boundary rewrite in filter/unsigned.go.
func (v Value) IsUnsigned() bool {
	return v.Kind == ValueUint32 || v.Kind == ValueUint64
}

// ValueMap is an ordered sequence of (key, value) pairs with keys unique
// within the map — used for both namespace and inode extended attributes.
// Order is preserved (unlike a Go map) because find/report output and the
// document-store field order are both observable by callers.
type ValueMap struct {
	keys   []string
	values []Value
	index  map[string]int
}

// NewValueMap returns an empty, ready-to-use map.
func NewValueMap() *ValueMap {
	return &ValueMap{index: make(map[string]int)}
}

// Set inserts or overwrites key's value, preserving first-insertion order.
func (m *ValueMap) Set(key string, v Value) {
	if i, ok := m.index[key]; ok {
		m.values[i] = v
		return
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.values = append(m.values, v)
}

// Get returns the value for key and whether it was present.
func (m *ValueMap) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	i, ok := m.index[key]
	if !ok {
		return Value{}, false
	}
	return m.values[i], true
}

// Delete removes key if present; remaining keys keep their relative order.
func (m *ValueMap) Delete(key string) {
	i, ok := m.index[key]
	if !ok {
		return
	}
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.values = append(m.values[:i], m.values[i+1:]...)
	delete(m.index, key)
	for k, idx := range m.index {
		if idx > i {
			m.index[k] = idx - 1
		}
	}
}

// Len reports the number of entries.
func (m *ValueMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the ordered key list. The slice must not be mutated.
func (m *ValueMap) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Range calls f for every (key, value) pair in insertion order, stopping
// early if f returns false.
func (m *ValueMap) Range(f func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for i, k := range m.keys {
		if !f(k, m.values[i]) {
			return
		}
	}
}

// XattrOp is the operator carried by a partial xattr update's one-entry
// payload map, per spec.md's "XATTR value semantics".
type XattrOp uint8

// Xattr operators: set, unset, increment.
const (
	XattrSet XattrOp = iota
	XattrUnset
	XattrIncrement
)

func (op XattrOp) String() string {
	switch op {
	case XattrUnset:
		return "u"
	case XattrIncrement:
		return "i"
	default:
		return "s"
	}
}

// ParseXattrOp maps the single-character op codes used on the wire (s/u/i)
// back to an XattrOp.
func ParseXattrOp(code string) (XattrOp, error) {
	switch code {
	case "s":
		return XattrSet, nil
	case "u":
		return XattrUnset, nil
	case "i":
		return XattrIncrement, nil
	default:
		return 0, fmt.Errorf("rbh: unknown xattr op %q", code)
	}
}

// XattrEdit is one entry of a partial xattr map: an operator plus its
// payload (absent for Unset).
type XattrEdit struct {
	Op      XattrOp
	Payload Value
}

package rbh

// FieldKind tags which part of an FSEntry a Field refers to.
type FieldKind uint8

// Field kinds, per spec.md §4.2.
const (
	FieldKindID FieldKind = iota
	FieldKindParentID
	FieldKindName
	FieldKindSymlink
	FieldKindStatX
	FieldKindNamespaceXattr
	FieldKindInodeXattr
)

// Field is a tagged reference to one field of an FSEntry. For FieldKindStatX,
// StatXBit selects which statx sub-field; for the two xattr kinds, Key
// optionally narrows to a single xattr (empty Key means "the whole map").
type Field struct {
	Kind     FieldKind
	StatXBit StatXMask
	Key      string
}

// Convenience constructors for the non-parameterized fields.
var (
	FieldOfID       = Field{Kind: FieldKindID}
	FieldOfParentID = Field{Kind: FieldKindParentID}
	FieldOfName     = Field{Kind: FieldKindName}
	FieldOfSymlink  = Field{Kind: FieldKindSymlink}
)

// FieldOfStatX references one statx sub-field.
func FieldOfStatX(bit StatXMask) Field { return Field{Kind: FieldKindStatX, StatXBit: bit} }

// FieldOfNamespaceXattr references a namespace xattr, or the whole map if
// key is empty.
func FieldOfNamespaceXattr(key string) Field {
	return Field{Kind: FieldKindNamespaceXattr, Key: key}
}

// FieldOfInodeXattr references an inode xattr, or the whole map if key is
// empty.
func FieldOfInodeXattr(key string) Field {
	return Field{Kind: FieldKindInodeXattr, Key: key}
}

// CompareOp enumerates comparison operators usable in a Comparison node.
type CompareOp uint8

// Comparison operators, per spec.md §4.2.
const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpStrictlyLower
	OpStrictlyGreater
	OpLowerOrEqual
	OpGreaterOrEqual
	OpIn
	OpRegex
	OpExists
	OpBitsAnySet
	OpBitsAllSet
	OpBitsAnyClear
	OpBitsAllClear
	OpElemMatch
)

// Dual returns op's negation for the comparators that have a direct dual
// (spec.md's "Negation pushdown"); the bool reports whether a dual exists —
// it's false for OpRegex, OpIn, OpExists and OpElemMatch, which
// PushdownNegation wraps instead of inverting.
func (op CompareOp) Dual() (CompareOp, bool) {
	switch op {
	case OpEqual:
		return OpNotEqual, true
	case OpNotEqual:
		return OpEqual, true
	case OpStrictlyLower:
		return OpGreaterOrEqual, true
	case OpGreaterOrEqual:
		return OpStrictlyLower, true
	case OpStrictlyGreater:
		return OpLowerOrEqual, true
	case OpLowerOrEqual:
		return OpStrictlyGreater, true
	case OpBitsAnySet:
		return OpBitsAllClear, true
	case OpBitsAllClear:
		return OpBitsAnySet, true
	case OpBitsAllSet:
		return OpBitsAnyClear, true
	case OpBitsAnyClear:
		return OpBitsAllSet, true
	default:
		return op, false
	}
}

// LogicalOp enumerates the n-ary/unary boolean connectives.
type LogicalOp uint8

// Logical operators.
const (
	LogicalAnd LogicalOp = iota
	LogicalOr
	LogicalNot
)

// NodeKind tags a Filter's active variant.
type NodeKind uint8

// Filter node kinds.
const (
	NodeNone NodeKind = iota
	NodeComparison
	NodeLogical
	NodeGet
)

// Filter is the AST node of the filter algebra (spec.md §4.2). The zero
// value is NodeNone, the null filter that matches everything.
type Filter struct {
	Kind NodeKind

	// NodeComparison
	Field   Field
	Op      CompareOp
	Value   Value
	GetNode *Filter // present when the comparand is supplied by a Get node

	// NodeLogical
	LogicalOp LogicalOp
	Children  []Filter

	// NodeGet: lazily supplies one comparand by reading Field from another
	// entry (used by "-newer").
	GetField Field
}

// None is the null filter that matches every entry.
var None = Filter{Kind: NodeNone}

// Compare builds a plain comparison node.
func Compare(field Field, op CompareOp, value Value) Filter {
	return Filter{Kind: NodeComparison, Field: field, Op: op, Value: value}
}

// CompareToGet builds a comparison whose right-hand side is resolved by
// reading get.GetField off another entry at evaluation time (the "-newer"
// shape from spec.md §4.2).
func CompareToGet(field Field, op CompareOp, get Filter) Filter {
	gp := get
	return Filter{Kind: NodeComparison, Field: field, Op: op, GetNode: &gp}
}

// Get builds a "get" node for field, to be used as the right-hand side of
// CompareToGet.
func Get(field Field) Filter {
	return Filter{Kind: NodeGet, GetField: field}
}

// And builds an n-ary conjunction.
func And(children ...Filter) Filter {
	return Filter{Kind: NodeLogical, LogicalOp: LogicalAnd, Children: children}
}

// Or builds an n-ary disjunction.
func Or(children ...Filter) Filter {
	return Filter{Kind: NodeLogical, LogicalOp: LogicalOr, Children: children}
}

// Not builds a unary negation.
func Not(child Filter) Filter {
	return Filter{Kind: NodeLogical, LogicalOp: LogicalNot, Children: []Filter{child}}
}

// IsNone reports whether f is the null filter.
func (f Filter) IsNone() bool { return f.Kind == NodeNone }

// SortField is one (field, ascending) pair in a Sort list.
type SortField struct {
	Field     Field
	Ascending bool
}

// Sort is an ordered list of sort keys. A non-empty Sort requires the
// backend to enable disk-spill for large result sets (spec.md §4.2).
type Sort []SortField

// Projection is an inclusive view over FSEntry fields: the top-level
// FieldMask, a StatX sub-mask, and the xattr keys to materialize (nil means
// "all keys" for that xattr map, a non-nil empty slice means "none").
type Projection struct {
	Fields FieldMask
	StatX  StatXMask

	NamespaceXattrKeys []string
	InodeXattrKeys     []string
}

// IdsOnly is the projection used by garbage-collection scans: no fields
// beyond bookkeeping ids (spec.md §4.2 "Empty fsentry mask means 'ids only'").
var IdsOnly = Projection{Fields: FieldID}

// FullProjection materializes every field and every xattr key.
var FullProjection = Projection{Fields: FieldAll, StatX: StatXAll}

// Accumulator enumerates the aggregation functions usable in a GroupBy.
type Accumulator uint8

// Accumulators, per spec.md §4.2. Count ignores its field.
const (
	AccAvg Accumulator = iota
	AccMax
	AccMin
	AccSum
	AccCount
)

func (a Accumulator) String() string {
	switch a {
	case AccAvg:
		return "avg"
	case AccMax:
		return "max"
	case AccMin:
		return "min"
	case AccSum:
		return "sum"
	default:
		return "count"
	}
}

// RangeField is a grouping key: a field plus an ordered list of boundary
// values. An empty Boundaries list means "group by exact value"; otherwise
// entries are bucketed into the half-open interval [Boundaries[i],
// Boundaries[i+1]) they fall into (the last bucket is [Boundaries[n-1], +inf)).
type RangeField struct {
	Field      Field
	Boundaries []Value
}

// OutputSpec is one column of a report's output: an accumulator over a
// field (the field is ignored for AccCount).
type OutputSpec struct {
	Accumulator Accumulator
	Field       Field
	As          string // output column name
}

// Grouping bundles the range fields to bucket by and the accumulators to
// compute per bucket.
type Grouping struct {
	By     []RangeField
	Output []OutputSpec
}

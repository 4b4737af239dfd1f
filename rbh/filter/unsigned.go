package filter

import "github.com/rbh-project/rbh4/rbh"

// int63Max is the largest value that still round-trips through a signed
// 63-bit comparand without needing the two-clause split — spec.md phrases
// the boundary as INT63_MAX because the target store's native integer type
// is itself signed 64-bit and one bit of headroom simplifies the compare.
const int63Max = 1<<63 - 1

// TranslateUnsignedLess rewrites "X < u" (u unsigned) into the two-clause
// form a signed-integer-only store needs to preserve two's-complement
// ordering across the signed boundary, per spec.md §4.2:
//
//	u <= INT63_MAX: (X >= 0) AND (X < signed(u))
//	u >  INT63_MAX: (X >= 0) OR  (X < signed(u))
func TranslateUnsignedLess(field rbh.Field, u uint64) rbh.Filter {
	signed := int64(u)
	geZero := rbh.Compare(field, rbh.OpGreaterOrEqual, rbh.NewInt64(0))
	ltSigned := rbh.Compare(field, rbh.OpStrictlyLower, rbh.NewInt64(signed))
	if u <= int63Max {
		return rbh.And(geZero, ltSigned)
	}
	return rbh.Or(geZero, ltSigned)
}

// TranslateUnsignedGreater rewrites "X > u" (u unsigned) into the two-clause
// form a signed-integer-only store needs, per spec.md §4.2:
//
//	u <= INT63_MAX: (X >= 0 AND X > signed(u)) OR (X < 0)
//	u >  INT63_MAX: (X <  0 AND X > signed(u))
//
// Above INT63_MAX, signed(u) is itself negative, so every value stored with
// its sign bit set (the "wrapped" half of the unsigned range) is a candidate
// and must still clear the signed(u) threshold; below INT63_MAX, any
// wrapped-negative value is unconditionally greater than a small u.
func TranslateUnsignedGreater(field rbh.Field, u uint64) rbh.Filter {
	signed := int64(u)
	ltZero := rbh.Compare(field, rbh.OpStrictlyLower, rbh.NewInt64(0))
	gtSigned := rbh.Compare(field, rbh.OpStrictlyGreater, rbh.NewInt64(signed))
	if u <= int63Max {
		geZero := rbh.Compare(field, rbh.OpGreaterOrEqual, rbh.NewInt64(0))
		return rbh.Or(rbh.And(geZero, gtSigned), ltZero)
	}
	return rbh.And(ltZero, gtSigned)
}

// TranslateComparison rewrites a single unsigned comparison node into its
// backend-safe equivalent if needed, leaving every other node untouched.
// Backends call this once per leaf while walking a validated, negation-
// pushed-down filter tree.
func TranslateComparison(f rbh.Filter) rbh.Filter {
	if f.Kind != rbh.NodeComparison || !f.Value.IsUnsigned() {
		return f
	}
	u := f.Value.Uint64()
	if f.Value.Kind == rbh.ValueUint32 {
		u = uint64(f.Value.Uint32())
	}
	switch f.Op {
	case rbh.OpStrictlyLower:
		return TranslateUnsignedLess(f.Field, u)
	case rbh.OpLowerOrEqual:
		// X <= u  ==  NOT(X > u), reuse the greater-than translation then
		// negate it structurally rather than duplicating the boundary math.
		return PushdownNegation(rbh.Not(TranslateUnsignedGreater(f.Field, u)))
	case rbh.OpStrictlyGreater:
		return TranslateUnsignedGreater(f.Field, u)
	case rbh.OpGreaterOrEqual:
		return PushdownNegation(rbh.Not(TranslateUnsignedLess(f.Field, u)))
	default:
		return f
	}
}

// Translate walks the whole tree applying TranslateComparison to every
// comparison leaf.
func Translate(f rbh.Filter) rbh.Filter {
	switch f.Kind {
	case rbh.NodeComparison:
		return TranslateComparison(f)
	case rbh.NodeLogical:
		children := make([]rbh.Filter, len(f.Children))
		for i, c := range f.Children {
			children[i] = Translate(c)
		}
		return rbh.Filter{Kind: rbh.NodeLogical, LogicalOp: f.LogicalOp, Children: children}
	default:
		return f
	}
}

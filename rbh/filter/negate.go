package filter

import "github.com/rbh-project/rbh4/rbh"

// PushdownNegation rewrites f so NOT nodes are pushed down onto the
// comparisons, toggling each comparator to its dual (EQUAL<->NOTEQUAL,
// < <-> >=, BITS_ANY_SET<->BITS_ALL_CLEAR, ...) and flipping AND/OR via De
// Morgan's law. REGEX has no direct dual (spec.md §4.2): it is wrapped in a
// marker comparison (see IsNegatedRegex) that the mongo backend and Eval
// translate into a negated regex match instead of being inverted in place.
// IN, EXISTS and ELEMMATCH have no dual either and keep a single NOT node
// directly above the comparison.
func PushdownNegation(f rbh.Filter) rbh.Filter {
	return pushdown(f, false)
}

func pushdown(f rbh.Filter, negate bool) rbh.Filter {
	switch f.Kind {
	case rbh.NodeNone:
		// NOT(everything) has no useful representation in this algebra;
		// callers should special-case it before reaching a backend. Left
		// as None for idempotence.
		return f
	case rbh.NodeGet:
		return f
	case rbh.NodeComparison:
		if !negate {
			return f
		}
		if f.Op == rbh.OpRegex {
			return negatedRegex(f)
		}
		dual, ok := f.Op.Dual()
		if !ok {
			return rbh.Not(f)
		}
		out := f
		out.Op = dual
		return out
	case rbh.NodeLogical:
		switch f.LogicalOp {
		case rbh.LogicalNot:
			// NOT(NOT(x)) == x; NOT(x) otherwise flips the toggle and
			// recurses into the single child without emitting a NOT node.
			return pushdown(f.Children[0], !negate)
		case rbh.LogicalAnd, rbh.LogicalOr:
			op := f.LogicalOp
			if negate {
				// De Morgan: NOT(AND) = OR(NOT children), NOT(OR) = AND(NOT children)
				if op == rbh.LogicalAnd {
					op = rbh.LogicalOr
				} else {
					op = rbh.LogicalAnd
				}
			}
			children := make([]rbh.Filter, len(f.Children))
			for i, c := range f.Children {
				children[i] = pushdown(c, negate)
			}
			return rbh.Filter{Kind: rbh.NodeLogical, LogicalOp: op, Children: children}
		}
	}
	return f
}

// negatedRegexMarkerKey is stored in a synthetic xattr-style field-less
// slot via Field.Key so backends can detect "this REGEX must be wrapped",
// without inventing a new rbh.Filter variant just for one operator.
const negatedRegexMarkerKey = "__rbh_negated_regex__"

func negatedRegex(f rbh.Filter) rbh.Filter {
	out := f
	out.Field.Key = out.Field.Key + negatedRegexMarkerKey
	return out
}

// IsNegatedRegex reports whether a REGEX comparison was produced by
// PushdownNegation wrapping rather than inverting it, and returns the
// unwrapped field.
func IsNegatedRegex(f rbh.Filter) (rbh.Field, bool) {
	if f.Op != rbh.OpRegex || len(f.Field.Key) < len(negatedRegexMarkerKey) {
		return f.Field, false
	}
	suffix := f.Field.Key[len(f.Field.Key)-len(negatedRegexMarkerKey):]
	if suffix != negatedRegexMarkerKey {
		return f.Field, false
	}
	unwrapped := f.Field
	unwrapped.Key = f.Field.Key[:len(f.Field.Key)-len(negatedRegexMarkerKey)]
	return unwrapped, true
}

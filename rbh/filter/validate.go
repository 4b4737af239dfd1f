// Package filter implements the validator, negation pushdown, and
// unsigned-integer translation rules that every backend applies to a
// rbh.Filter AST before executing it, plus a find-style token classifier
// and predicate compiler. Grounded on the original rbh-find/src/filters.c
// and librobinhood/src/filters/parser.c token/validation logic, generalized
// from their hand-rolled state machines into ordinary recursive functions.
package filter

import (
	"fmt"

	"github.com/rbh-project/rbh4/rbh"
)

// expectedKinds lists the rbh.Value kinds a Field accepts, per spec.md's
// validator rule ("STATX_SIZE takes int/uint, NAME takes string/regex").
func expectedKinds(f rbh.Field) []rbh.ValueKind {
	switch f.Kind {
	case rbh.FieldKindID, rbh.FieldKindParentID:
		return []rbh.ValueKind{rbh.ValueBinary}
	case rbh.FieldKindName, rbh.FieldKindSymlink:
		return []rbh.ValueKind{rbh.ValueString, rbh.ValueRegex}
	case rbh.FieldKindStatX:
		switch f.StatXBit {
		case rbh.StatXSize, rbh.StatXIno, rbh.StatXBlocks, rbh.StatXBlksize,
			rbh.StatXNlink, rbh.StatXUID, rbh.StatXGID, rbh.StatXMode,
			rbh.StatXMountID:
			return []rbh.ValueKind{rbh.ValueInt32, rbh.ValueUint32, rbh.ValueInt64, rbh.ValueUint64}
		case rbh.StatXAtime, rbh.StatXBtime, rbh.StatXCtime, rbh.StatXMtime:
			return []rbh.ValueKind{rbh.ValueInt64, rbh.ValueUint64}
		case rbh.StatXAttributes:
			return []rbh.ValueKind{rbh.ValueUint64, rbh.ValueUint32}
		default:
			return []rbh.ValueKind{rbh.ValueInt32, rbh.ValueUint32, rbh.ValueInt64, rbh.ValueUint64}
		}
	case rbh.FieldKindNamespaceXattr, rbh.FieldKindInodeXattr:
		return nil // xattr values are untyped: any Value kind is legal
	default:
		return nil
	}
}

func kindAllowed(allowed []rbh.ValueKind, got rbh.ValueKind) bool {
	if allowed == nil {
		return true
	}
	for _, k := range allowed {
		if k == got {
			return true
		}
	}
	return false
}

// Validate reports whether f is well-formed per spec.md §4.2: every value
// type matches its field's expected type, regexes carry no unsupported
// options, and every logical subtree is non-empty.
func Validate(f rbh.Filter) error {
	switch f.Kind {
	case rbh.NodeNone:
		return nil
	case rbh.NodeGet:
		return nil
	case rbh.NodeComparison:
		if f.GetNode != nil {
			return Validate(*f.GetNode)
		}
		if f.Op == rbh.OpExists {
			return nil
		}
		allowed := expectedKinds(f.Field)
		if !kindAllowed(allowed, f.Value.Kind) {
			return fmt.Errorf("filter: field %+v does not accept value kind %s", f.Field, f.Value.Kind)
		}
		if f.Value.Kind == rbh.ValueRegex {
			opts := f.Value.RegexValue().Options
			if opts&^(rbh.RegexOptionShellPattern|rbh.RegexOptionCaseInsensitive) != 0 {
				return fmt.Errorf("filter: unsupported regex option flags in %+v", f.Value.RegexValue())
			}
		}
		if f.Op == rbh.OpRegex && f.Value.Kind != rbh.ValueRegex && f.Value.Kind != rbh.ValueString {
			return fmt.Errorf("filter: REGEX comparison requires a regex or string value")
		}
		return nil
	case rbh.NodeLogical:
		if len(f.Children) == 0 {
			return fmt.Errorf("filter: logical node %v has no children", f.LogicalOp)
		}
		if f.LogicalOp == rbh.LogicalNot && len(f.Children) != 1 {
			return fmt.Errorf("filter: NOT takes exactly one child, got %d", len(f.Children))
		}
		for _, c := range f.Children {
			if err := Validate(c); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("filter: unknown node kind %d", f.Kind)
	}
}

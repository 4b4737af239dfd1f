package filter

import (
	"path"
	"regexp"
	"strings"

	"github.com/rbh-project/rbh4/rbh"
)

// Eval evaluates f against e entirely in process, the naive reference
// evaluator a backend with no query language of its own (a flat on-disk
// store, a dry-run preview) falls back to instead of translating f into a
// foreign query language. Fields f references that e.Mask doesn't cover
// evaluate as "absent", matching a comparison against a missing xattr key.
func Eval(f rbh.Filter, e rbh.FSEntry) bool {
	switch f.Kind {
	case rbh.NodeNone:
		return true
	case rbh.NodeLogical:
		return evalLogical(f, e)
	case rbh.NodeComparison:
		return evalComparison(f, e)
	default:
		return false
	}
}

func evalLogical(f rbh.Filter, e rbh.FSEntry) bool {
	switch f.LogicalOp {
	case rbh.LogicalAnd:
		for _, c := range f.Children {
			if !Eval(c, e) {
				return false
			}
		}
		return true
	case rbh.LogicalOr:
		for _, c := range f.Children {
			if Eval(c, e) {
				return true
			}
		}
		return false
	case rbh.LogicalNot:
		return len(f.Children) == 1 && !Eval(f.Children[0], e)
	default:
		return false
	}
}

func evalComparison(f rbh.Filter, e rbh.FSEntry) bool {
	if field, negated := IsNegatedRegex(f); negated {
		got, ok := fieldValue(field, e)
		return !(ok && evalRegex(got, f.Value.RegexValue()))
	}
	got, ok := fieldValue(f.Field, e)
	if f.Op == rbh.OpExists {
		return ok
	}
	if !ok {
		return false
	}
	if f.Op == rbh.OpRegex {
		return evalRegex(got, f.Value.RegexValue())
	}
	return compareValues(got, f.Op, f.Value)
}

// fieldValue reads field off e, reporting false when the owning mask bit
// isn't set (a masked-out field) or, for xattr lookups, when the key is
// absent from the map.
func fieldValue(field rbh.Field, e rbh.FSEntry) (rbh.Value, bool) {
	switch field.Kind {
	case rbh.FieldKindID:
		if !e.Mask.Has(rbh.FieldID) {
			return rbh.Value{}, false
		}
		return rbh.NewBinary(e.ID.Bytes()), true
	case rbh.FieldKindParentID:
		if !e.Mask.Has(rbh.FieldParentID) {
			return rbh.Value{}, false
		}
		return rbh.NewBinary(e.ParentID.Bytes()), true
	case rbh.FieldKindName:
		if !e.Mask.Has(rbh.FieldName) {
			return rbh.Value{}, false
		}
		return rbh.NewString(e.Name), true
	case rbh.FieldKindSymlink:
		if !e.Mask.Has(rbh.FieldSymlink) {
			return rbh.Value{}, false
		}
		return rbh.NewString(e.Symlink), true
	case rbh.FieldKindStatX:
		return statxFieldValue(field.StatXBit, e)
	case rbh.FieldKindNamespaceXattr:
		if !e.Mask.Has(rbh.FieldNamespaceXattrs) {
			return rbh.Value{}, false
		}
		return e.NamespaceXattrs.Get(field.Key)
	case rbh.FieldKindInodeXattr:
		if !e.Mask.Has(rbh.FieldInodeXattrs) {
			return rbh.Value{}, false
		}
		return e.InodeXattrs.Get(field.Key)
	default:
		return rbh.Value{}, false
	}
}

func statxFieldValue(bit rbh.StatXMask, e rbh.FSEntry) (rbh.Value, bool) {
	if !e.Mask.Has(rbh.FieldStatX) || !e.StatX.Mask.Has(bit) {
		return rbh.Value{}, false
	}
	st := e.StatX
	switch bit {
	case rbh.StatXType:
		return rbh.NewUint32(uint32(st.Type)), true
	case rbh.StatXMode:
		return rbh.NewUint32(uint32(st.Mode)), true
	case rbh.StatXNlink:
		return rbh.NewUint32(st.Nlink), true
	case rbh.StatXUID:
		return rbh.NewUint32(st.UID), true
	case rbh.StatXGID:
		return rbh.NewUint32(st.GID), true
	case rbh.StatXSize:
		return rbh.NewUint64(st.Size), true
	case rbh.StatXBlocks:
		return rbh.NewUint64(st.Blocks), true
	case rbh.StatXBlksize:
		return rbh.NewUint32(st.Blksize), true
	case rbh.StatXIno:
		return rbh.NewUint64(st.Ino), true
	case rbh.StatXAtime:
		return rbh.NewInt64(st.Atime.Sec), true
	case rbh.StatXBtime:
		return rbh.NewInt64(st.Btime.Sec), true
	case rbh.StatXCtime:
		return rbh.NewInt64(st.Ctime.Sec), true
	case rbh.StatXMtime:
		return rbh.NewInt64(st.Mtime.Sec), true
	case rbh.StatXMountID:
		return rbh.NewUint64(st.MountID), true
	default:
		return rbh.Value{}, false
	}
}

func compareValues(got rbh.Value, op rbh.CompareOp, want rbh.Value) bool {
	if want.Kind == rbh.ValueSequence && op == rbh.OpIn {
		for _, v := range want.Sequence() {
			if compareValues(got, rbh.OpEqual, v) {
				return true
			}
		}
		return false
	}

	if got.Kind == rbh.ValueString || want.Kind == rbh.ValueString {
		return compareStrings(got.String(), op, want.String())
	}

	gi, gok := got.AsInt64()
	wi, wok := want.AsInt64()
	if !gok || !wok {
		return false
	}

	switch op {
	case rbh.OpBitsAnySet:
		return gi&wi != 0
	case rbh.OpBitsAllSet:
		return gi&wi == wi
	case rbh.OpBitsAnyClear:
		return gi&wi != wi
	case rbh.OpBitsAllClear:
		return gi&wi == 0
	default:
		return compareInts(gi, op, wi)
	}
}

func compareStrings(got string, op rbh.CompareOp, want string) bool {
	switch op {
	case rbh.OpEqual:
		return got == want
	case rbh.OpNotEqual:
		return got != want
	case rbh.OpStrictlyLower:
		return got < want
	case rbh.OpStrictlyGreater:
		return got > want
	case rbh.OpLowerOrEqual:
		return got <= want
	case rbh.OpGreaterOrEqual:
		return got >= want
	default:
		return false
	}
}

func compareInts(got int64, op rbh.CompareOp, want int64) bool {
	switch op {
	case rbh.OpEqual:
		return got == want
	case rbh.OpNotEqual:
		return got != want
	case rbh.OpStrictlyLower:
		return got < want
	case rbh.OpStrictlyGreater:
		return got > want
	case rbh.OpLowerOrEqual:
		return got <= want
	case rbh.OpGreaterOrEqual:
		return got >= want
	default:
		return false
	}
}

func evalRegex(got rbh.Value, re rbh.Regex) bool {
	pattern := re.Pattern
	if re.Options&rbh.RegexOptionShellPattern != 0 {
		name := got.String()
		if re.Options&rbh.RegexOptionCaseInsensitive != 0 {
			pattern, name = strings.ToLower(pattern), strings.ToLower(name)
		}
		g, err := path.Match(pattern, name)
		return err == nil && g
	}
	if re.Options&rbh.RegexOptionCaseInsensitive != 0 {
		pattern = "(?i)" + pattern
	}
	re2, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re2.MatchString(got.String())
}

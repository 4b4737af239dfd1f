package boltfile

import (
	"sort"

	"github.com/rbh-project/rbh4/rbh"
)

// applySort orders entries in place per the sort-key list, comparing values
// via the same int64/string coercion rbh/filter.Eval uses for comparisons.
func applySort(entries []rbh.FSEntry, keys rbh.Sort) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		for _, k := range keys {
			c := compareField(k.Field, entries[i], entries[j])
			if c == 0 {
				continue
			}
			if k.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareField(field rbh.Field, a, b rbh.FSEntry) int {
	av, aok := fieldValueFor(field, a)
	bv, bok := fieldValueFor(field, b)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	if av.Kind == rbh.ValueString || bv.Kind == rbh.ValueString {
		as, bs := av.String(), bv.String()
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	ai, _ := av.AsInt64()
	bi, _ := bv.AsInt64()
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

// fieldValueFor is exported indirectly through filter.Eval's helper
// surface: boltfile re-derives it locally since that helper is unexported
// in rbh/filter.
func fieldValueFor(field rbh.Field, e rbh.FSEntry) (rbh.Value, bool) {
	switch field.Kind {
	case rbh.FieldKindName:
		if !e.Mask.Has(rbh.FieldName) {
			return rbh.Value{}, false
		}
		return rbh.NewString(e.Name), true
	case rbh.FieldKindStatX:
		if !e.Mask.Has(rbh.FieldStatX) || !e.StatX.Mask.Has(field.StatXBit) {
			return rbh.Value{}, false
		}
		switch field.StatXBit {
		case rbh.StatXSize:
			return rbh.NewUint64(e.StatX.Size), true
		case rbh.StatXMtime:
			return rbh.NewInt64(e.StatX.Mtime.Sec), true
		case rbh.StatXAtime:
			return rbh.NewInt64(e.StatX.Atime.Sec), true
		case rbh.StatXCtime:
			return rbh.NewInt64(e.StatX.Ctime.Sec), true
		case rbh.StatXBtime:
			return rbh.NewInt64(e.StatX.Btime.Sec), true
		default:
			return rbh.NewUint64(e.StatX.Size), true
		}
	default:
		return rbh.Value{}, false
	}
}

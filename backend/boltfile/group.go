package boltfile

import (
	"fmt"

	"github.com/rbh-project/rbh4/rbh"
)

// groupAccumulator buckets entries by a Grouping's range fields and runs
// each OutputSpec's accumulator per bucket, the in-process equivalent of a
// document store's $bucket/$group aggregation stage.
type groupAccumulator struct {
	g       rbh.Grouping
	buckets map[string]*bucketState
	order   []string
}

type bucketState struct {
	key  *rbh.ValueMap
	accs []*accState
}

type accState struct {
	spec  rbh.OutputSpec
	count int64
	sum   float64
	min   *float64
	max   *float64
}

func newGroupAccumulator(g rbh.Grouping) *groupAccumulator {
	return &groupAccumulator{g: g, buckets: make(map[string]*bucketState)}
}

func (ga *groupAccumulator) add(e rbh.FSEntry) {
	keyMap := rbh.NewValueMap()
	var keyStr string
	for _, rf := range ga.g.By {
		v, ok := fieldValueFor(rf.Field, e)
		bucket := bucketValue(v, ok, rf.Boundaries)
		keyMap.Set(fieldLabel(rf.Field), bucket)
		keyStr += bucket.String() + "\x00"
	}

	bs, ok := ga.buckets[keyStr]
	if !ok {
		bs = &bucketState{key: keyMap, accs: make([]*accState, len(ga.g.Output))}
		for i, spec := range ga.g.Output {
			bs.accs[i] = &accState{spec: spec}
		}
		ga.buckets[keyStr] = bs
		ga.order = append(ga.order, keyStr)
	}

	for _, acc := range bs.accs {
		acc.observe(e)
	}
}

func (acc *accState) observe(e rbh.FSEntry) {
	acc.count++
	if acc.spec.Accumulator == rbh.AccCount {
		return
	}
	v, ok := fieldValueFor(acc.spec.Field, e)
	if !ok {
		return
	}
	f, ok := toFloat(v)
	if !ok {
		return
	}
	acc.sum += f
	if acc.min == nil || f < *acc.min {
		acc.min = &f
	}
	if acc.max == nil || f > *acc.max {
		acc.max = &f
	}
}

func toFloat(v rbh.Value) (float64, bool) {
	if i, ok := v.AsInt64(); ok {
		return float64(i), true
	}
	return 0, false
}

func bucketValue(v rbh.Value, ok bool, boundaries []rbh.Value) rbh.Value {
	if !ok {
		return rbh.NewString("<absent>")
	}
	if len(boundaries) == 0 {
		return v
	}
	n, hasN := v.AsInt64()
	if !hasN {
		return v
	}
	idx := 0
	for i, b := range boundaries {
		bn, _ := b.AsInt64()
		if n >= bn {
			idx = i
		}
	}
	return boundaries[idx]
}

func fieldLabel(f rbh.Field) string {
	switch f.Kind {
	case rbh.FieldKindName:
		return "name"
	case rbh.FieldKindStatX:
		return fmt.Sprintf("statx.%d", f.StatXBit)
	case rbh.FieldKindNamespaceXattr:
		return "ns." + f.Key
	case rbh.FieldKindInodeXattr:
		return "inode." + f.Key
	default:
		return "field"
	}
}

// rows materializes accumulated buckets in first-seen order, the stable
// iteration order a report consumer expects.
func (ga *groupAccumulator) rows() []rbh.GroupRow {
	out := make([]rbh.GroupRow, 0, len(ga.order))
	for _, k := range ga.order {
		bs := ga.buckets[k]
		accMap := rbh.NewValueMap()
		for _, acc := range bs.accs {
			accMap.Set(acc.spec.As, acc.result())
		}
		out = append(out, rbh.GroupRow{ID: bs.key, Acc: accMap})
	}
	return out
}

func (acc *accState) result() rbh.Value {
	switch acc.spec.Accumulator {
	case rbh.AccCount:
		return rbh.NewInt64(acc.count)
	case rbh.AccSum:
		return rbh.NewInt64(int64(acc.sum))
	case rbh.AccAvg:
		if acc.count == 0 {
			return rbh.NewInt64(0)
		}
		return rbh.NewInt64(int64(acc.sum / float64(acc.count)))
	case rbh.AccMin:
		if acc.min == nil {
			return rbh.NewInt64(0)
		}
		return rbh.NewInt64(int64(*acc.min))
	case rbh.AccMax:
		if acc.max == nil {
			return rbh.NewInt64(0)
		}
		return rbh.NewInt64(int64(*acc.max))
	default:
		return rbh.NewInt64(acc.count)
	}
}

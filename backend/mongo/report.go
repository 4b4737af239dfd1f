package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rbh-project/rbh4/internal/rbherrors"
	"github.com/rbh-project/rbh4/rbh"
)

// Report implements rbh.Backend via a single aggregation pipeline: the same
// $match/$unwind stages Filter builds, followed by a $group stage whose _id
// expression reproduces RangeField's exact-value-or-bucket semantics and
// whose accumulator fields map each OutputSpec onto Mongo's native $sum,
// $avg, $min and $max — letting the server do the bucketing instead of
// pulling every matching document back for in-process accumulation.
func (b *Backend) Report(ctx context.Context, f rbh.Filter, g rbh.Grouping, opts rbh.FilterOptions, proj rbh.Projection) (rbh.GroupIterator, error) {
	matchBSON, err := ToBSON(f)
	if err != nil {
		return nil, rbherrors.Validation("mongo-report-translate", err)
	}

	pipeline := bson.A{}
	if branch := b.branchMatch(); len(branch) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: branch}})
	}
	if needsUnwind(f) || rangeFieldsNeedUnwind(g.By) {
		pipeline = append(pipeline, bson.D{{Key: "$unwind", Value: bson.M{
			"path": "$ns", "preserveNullAndEmptyArrays": true,
		}}})
	}
	if len(matchBSON) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: matchBSON}})
	}

	groupID := bson.M{}
	for _, rf := range g.By {
		groupID[fieldLabel(rf.Field)] = bucketExpr(rf)
	}
	groupStage := bson.M{"_id": groupID}
	for i, out := range g.Output {
		groupStage[accKey(i)] = accumulatorExpr(out)
	}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: groupStage}})

	if opts.Skip > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: opts.Skip}})
	}
	if opts.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: opts.Limit}})
	}

	cur, err := b.entries.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, rbherrors.Protocol("mongo-report-aggregate", err)
	}
	return &reportIterator{cur: cur, g: g}, nil
}

func rangeFieldsNeedUnwind(by []rbh.RangeField) bool {
	for _, rf := range by {
		if rf.Field.Kind == rbh.FieldKindParentID || rf.Field.Kind == rbh.FieldKindName ||
			rf.Field.Kind == rbh.FieldKindNamespaceXattr {
			return true
		}
	}
	return false
}

// fieldLabel names a RangeField's bucket key in the $group _id document.
// Name and xattr fields get the same labels as boltfile's groupAccumulator;
// statx fields are labeled by name here ("statx.size") but by mask bit
// number in boltfile ("statx.1024"), so statx-keyed rows differ between the
// two backends.
func fieldLabel(f rbh.Field) string {
	switch f.Kind {
	case rbh.FieldKindName:
		return "name"
	case rbh.FieldKindStatX:
		return "statx." + statxFieldName(f.StatXBit)
	case rbh.FieldKindNamespaceXattr:
		return "ns." + f.Key
	case rbh.FieldKindInodeXattr:
		return "inode." + f.Key
	default:
		return "field"
	}
}

func accKey(i int) string {
	return "acc" + itoa(i)
}

// itoa avoids pulling in strconv for a single-purpose small-integer render.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

// bucketExpr builds the $group _id sub-expression for one RangeField,
// mirroring boltfile's bucketValue: an empty Boundaries list groups by the
// field's own value; otherwise entries fall into the half-open interval
// [Boundaries[i], Boundaries[i+1]) their value lands in, with the top
// interval open-ended and a value below every boundary bucketed under
// Boundaries[0].
func bucketExpr(rf rbh.RangeField) bson.M {
	path := "$" + fieldPath(rf.Field)
	if len(rf.Boundaries) == 0 {
		return bson.M{"$ifNull": bson.A{path, "<absent>"}}
	}

	branches := make(bson.A, 0, len(rf.Boundaries))
	for i := len(rf.Boundaries) - 1; i >= 0; i-- {
		b := valueToBSON(rf.Boundaries[i])
		branches = append(branches, bson.M{
			"case": bson.M{"$gte": bson.A{path, b}},
			"then": b,
		})
	}
	bucketed := bson.M{"$switch": bson.M{
		"branches": branches,
		"default":  valueToBSON(rf.Boundaries[0]),
	}}
	return bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{path, nil}}, nil}},
		"<absent>",
		bucketed,
	}}
}

func accumulatorExpr(out rbh.OutputSpec) bson.M {
	if out.Accumulator == rbh.AccCount {
		return bson.M{"$sum": 1}
	}
	path := "$" + fieldPath(out.Field)
	switch out.Accumulator {
	case rbh.AccSum:
		return bson.M{"$sum": path}
	case rbh.AccAvg:
		return bson.M{"$avg": path}
	case rbh.AccMin:
		return bson.M{"$min": path}
	case rbh.AccMax:
		return bson.M{"$max": path}
	default:
		return bson.M{"$sum": 1}
	}
}

type reportIterator struct {
	cur *mongo.Cursor
	g   rbh.Grouping
	row rbh.GroupRow
	err error
}

func (r *reportIterator) Next(ctx context.Context) bool {
	if !r.cur.Next(ctx) {
		r.err = r.cur.Err()
		return false
	}
	var raw bson.M
	if err := r.cur.Decode(&raw); err != nil {
		r.err = err
		return false
	}

	idMap := rbh.NewValueMap()
	if id, ok := raw["_id"].(bson.M); ok {
		for _, rf := range r.g.By {
			label := fieldLabel(rf.Field)
			if v, ok := id[label]; ok {
				idMap.Set(label, bsonFieldToValue(v))
			}
		}
	}

	accMap := rbh.NewValueMap()
	for i, out := range r.g.Output {
		if v, ok := raw[accKey(i)]; ok {
			accMap.Set(out.As, bsonFieldToValue(v))
		}
	}

	r.row = rbh.GroupRow{ID: idMap, Acc: accMap}
	return true
}

// bsonFieldToValue widens beyond valueToBSON's inverse (bsonToValue) to
// also accept the float64/int32 shapes $group's numeric accumulators
// produce, which never appear in stored documents but do in aggregation
// results.
func bsonFieldToValue(v any) rbh.Value {
	switch t := v.(type) {
	case string:
		return rbh.NewString(t)
	case float64:
		return rbh.NewInt64(int64(t))
	default:
		return bsonToValue(v)
	}
}

func (r *reportIterator) Row() rbh.GroupRow { return r.row }
func (r *reportIterator) LastErr() error    { return r.err }
func (r *reportIterator) Destroy() error    { return r.cur.Close(context.Background()) }

package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rbh-project/rbh4/rbh"
)

func TestBucketExprExactValueUsesIfNull(t *testing.T) {
	rf := rbh.RangeField{Field: rbh.FieldOfName}
	expr := bucketExpr(rf)
	inner, ok := expr["$ifNull"].(bson.A)
	require.True(t, ok)
	assert.Equal(t, "$ns.name", inner[0])
	assert.Equal(t, "<absent>", inner[1])
}

func TestBucketExprWithBoundariesBuildsDescendingSwitch(t *testing.T) {
	rf := rbh.RangeField{
		Field:      rbh.Field{Kind: rbh.FieldKindStatX, StatXBit: rbh.StatXSize},
		Boundaries: []rbh.Value{rbh.NewUint64(0), rbh.NewUint64(1024), rbh.NewUint64(1048576)},
	}
	expr := bucketExpr(rf)
	cond, ok := expr["$cond"].(bson.A)
	require.True(t, ok)
	require.Len(t, cond, 3)

	bucketed, ok := cond[2].(bson.M)
	require.True(t, ok)
	sw, ok := bucketed["$switch"].(bson.M)
	require.True(t, ok)
	branches, ok := sw["branches"].(bson.A)
	require.True(t, ok)
	require.Len(t, branches, 3)

	first := branches[0].(bson.M)
	assert.Equal(t, int64(1048576), first["then"])
}

func TestAccumulatorExprMapsEachAccumulatorToMongoOperator(t *testing.T) {
	cases := map[rbh.Accumulator]string{
		rbh.AccCount: "$sum",
		rbh.AccSum:   "$sum",
		rbh.AccAvg:   "$avg",
		rbh.AccMin:   "$min",
		rbh.AccMax:   "$max",
	}
	for acc, op := range cases {
		out := rbh.OutputSpec{Accumulator: acc, Field: rbh.Field{Kind: rbh.FieldKindStatX, StatXBit: rbh.StatXSize}, As: "x"}
		expr := accumulatorExpr(out)
		_, ok := expr[op]
		assert.True(t, ok, "accumulator %v expected operator %s", acc, op)
	}
}

func TestFieldLabelNamesEachFieldKind(t *testing.T) {
	assert.Equal(t, "name", fieldLabel(rbh.FieldOfName))
	assert.Equal(t, "statx.size", fieldLabel(rbh.Field{Kind: rbh.FieldKindStatX, StatXBit: rbh.StatXSize}))
}

func TestAccKeyIsStableAndOrdinal(t *testing.T) {
	assert.Equal(t, "acc0", accKey(0))
	assert.Equal(t, "acc12", accKey(12))
}

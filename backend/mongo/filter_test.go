package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rbh-project/rbh4/rbh"
)

func TestGlobToRegexEscapesMetacharsAndTranslatesWildcards(t *testing.T) {
	got := globToRegex("a.b*c?d")
	assert.Equal(t, `^a\.b.*c.d$`, got)
}

func TestToBSONEqualityComparison(t *testing.T) {
	f := rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("a.txt"))
	m, err := ToBSON(f)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", m["ns.name"])
}

func TestToBSONShellPatternUsesRegexTranslation(t *testing.T) {
	f := rbh.Compare(rbh.FieldOfName, rbh.OpRegex, rbh.NewRegex("*.txt", rbh.RegexOptionShellPattern))
	m, err := ToBSON(f)
	require.NoError(t, err)
	inner, ok := m["ns.name"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, `^.*\.txt$`, inner["$regex"])
}

func TestToBSONLogicalAnd(t *testing.T) {
	left := rbh.Compare(rbh.Field{Kind: rbh.FieldKindStatX, StatXBit: rbh.StatXSize}, rbh.OpStrictlyGreater, rbh.NewUint64(100))
	right := rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("x"))
	f := rbh.And(left, right)
	m, err := ToBSON(f)
	require.NoError(t, err)
	children, ok := m["$and"].(bson.A)
	require.True(t, ok)
	assert.Len(t, children, 2)
}

func TestNeedsUnwindDetectsNamespaceScopedField(t *testing.T) {
	f := rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("x"))
	assert.True(t, needsUnwind(f))

	f2 := rbh.Compare(rbh.Field{Kind: rbh.FieldKindStatX, StatXBit: rbh.StatXSize}, rbh.OpEqual, rbh.NewUint64(1))
	assert.False(t, needsUnwind(f2))
}

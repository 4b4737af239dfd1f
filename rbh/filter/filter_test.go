package filter

import (
	"math"
	"testing"

	"github.com/rbh-project/rbh4/rbh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyLogicalNode(t *testing.T) {
	f := rbh.And()
	err := Validate(f)
	require.Error(t, err)
}

func TestValidateRejectsWrongKind(t *testing.T) {
	f := rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewInt32(4))
	require.Error(t, Validate(f))
}

func TestValidateAcceptsRegexOnName(t *testing.T) {
	f := rbh.Compare(rbh.FieldOfName, rbh.OpRegex, rbh.NewRegex("*.txt", rbh.RegexOptionShellPattern))
	require.NoError(t, Validate(f))
}

func TestNegationPushdownSimpleDual(t *testing.T) {
	f := rbh.Not(rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("a")))
	out := PushdownNegation(f)
	require.Equal(t, rbh.NodeComparison, out.Kind)
	assert.Equal(t, rbh.OpNotEqual, out.Op)
}

func TestNegationPushdownDeMorgan(t *testing.T) {
	inner := rbh.And(
		rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("a")),
		rbh.Compare(rbh.FieldOfSymlink, rbh.OpExists, rbh.Value{}),
	)
	out := PushdownNegation(rbh.Not(inner))
	require.Equal(t, rbh.NodeLogical, out.Kind)
	assert.Equal(t, rbh.LogicalOr, out.LogicalOp)
	require.Len(t, out.Children, 2)
	assert.Equal(t, rbh.OpNotEqual, out.Children[0].Op)
}

func TestNegationPushdownRegexWraps(t *testing.T) {
	f := rbh.Not(rbh.Compare(rbh.FieldOfName, rbh.OpRegex, rbh.NewRegex("a.*", 0)))
	out := PushdownNegation(f)
	require.Equal(t, rbh.NodeComparison, out.Kind)
	assert.Equal(t, rbh.OpRegex, out.Op)
	_, isNeg := IsNegatedRegex(out)
	assert.True(t, isNeg)
}

func TestNegationDoubleNegative(t *testing.T) {
	f := rbh.Not(rbh.Not(rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("a"))))
	out := PushdownNegation(f)
	require.Equal(t, rbh.NodeComparison, out.Kind)
	assert.Equal(t, rbh.OpEqual, out.Op)
}

// TestUnsignedBoundaries exercises spec.md §8's boundary cases at
// INT64_MAX, INT64_MAX+1, and UINT64_MAX.
func TestUnsignedBoundaries(t *testing.T) {
	field := rbh.FieldOfStatX(rbh.StatXSize)

	atMax := TranslateUnsignedLess(field, uint64(math.MaxInt64))
	require.Equal(t, rbh.LogicalAnd, atMax.LogicalOp)

	justOver := TranslateUnsignedLess(field, uint64(math.MaxInt64)+1)
	require.Equal(t, rbh.LogicalOr, justOver.LogicalOp)

	atUintMax := TranslateUnsignedLess(field, math.MaxUint64)
	require.Equal(t, rbh.LogicalOr, atUintMax.LogicalOp)
}

// TestUnsignedGreaterBoundaries exercises spec.md §8's boundary cases for
// the greater-than direction at INT64_MAX, INT64_MAX+1, and UINT64_MAX,
// both for the LogicalOp shape and for actual evaluation against an entry
// whose size wraps into the negative signed range.
func TestUnsignedGreaterBoundaries(t *testing.T) {
	field := rbh.FieldOfStatX(rbh.StatXSize)

	atMax := TranslateUnsignedGreater(field, uint64(math.MaxInt64))
	require.Equal(t, rbh.LogicalOr, atMax.LogicalOp)

	justOver := TranslateUnsignedGreater(field, uint64(math.MaxInt64)+1)
	require.Equal(t, rbh.LogicalAnd, justOver.LogicalOp)

	atUintMax := TranslateUnsignedGreater(field, math.MaxUint64)
	require.Equal(t, rbh.LogicalAnd, atUintMax.LogicalOp)
}

func entryWithSize(size uint64) rbh.FSEntry {
	return rbh.FSEntry{
		Mask: rbh.FieldStatX,
		StatX: rbh.StatX{
			Mask: rbh.StatXSize,
			Size: size,
		},
	}
}

func TestUnsignedGreaterMatchesWrappedSize(t *testing.T) {
	field := rbh.FieldOfStatX(rbh.StatXSize)

	// size = 2^63, a tiny unsigned threshold: wraps to a negative int64 but
	// is unconditionally greater than any u <= INT63_MAX.
	f := TranslateUnsignedGreater(field, 5)
	assert.True(t, Eval(f, entryWithSize(1<<63)))

	// u > INT63_MAX: a small, non-wrapped size must not match.
	f = TranslateUnsignedGreater(field, math.MaxUint64)
	assert.False(t, Eval(f, entryWithSize(10)))

	// u > INT63_MAX: a wrapped size that genuinely exceeds u must match.
	f = TranslateUnsignedGreater(field, math.MaxUint64-1)
	assert.True(t, Eval(f, entryWithSize(math.MaxUint64)))

	// u > INT63_MAX: a wrapped size that does not exceed u must not match.
	f = TranslateUnsignedGreater(field, math.MaxUint64)
	assert.False(t, Eval(f, entryWithSize(math.MaxUint64-1)))
}

func TestTranslateLeavesSignedAlone(t *testing.T) {
	f := rbh.Compare(rbh.FieldOfStatX(rbh.StatXSize), rbh.OpStrictlyLower, rbh.NewInt64(100))
	out := Translate(f)
	assert.Equal(t, rbh.NodeComparison, out.Kind)
	assert.Equal(t, rbh.OpStrictlyLower, out.Op)
}

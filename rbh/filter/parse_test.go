package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbh-project/rbh4/rbh"
)

func TestParseImplicitAndBetweenPredicates(t *testing.T) {
	res, err := Parse([]string{"-size", "+512c", "-type", "f"}, NewCompiler())
	require.NoError(t, err)
	require.Equal(t, rbh.NodeLogical, res.Filter.Kind)
	assert.Equal(t, rbh.LogicalAnd, res.Filter.LogicalOp)
	assert.Equal(t, []Action{{Name: "print"}}, res.Actions)
}

func TestParseExplicitOr(t *testing.T) {
	res, err := Parse([]string{"-name", "*.txt", "-o", "-name", "*.md"}, NewCompiler())
	require.NoError(t, err)
	assert.Equal(t, rbh.LogicalOr, res.Filter.LogicalOp)
}

func TestParseNotNegatesNextTerm(t *testing.T) {
	res, err := Parse([]string{"-not", "-type", "d"}, NewCompiler())
	require.NoError(t, err)
	assert.Equal(t, rbh.LogicalNot, res.Filter.LogicalOp)
}

func TestParseParenthesizedGroup(t *testing.T) {
	res, err := Parse([]string{"(", "-name", "a", "-o", "-name", "b", ")", "-type", "f"}, NewCompiler())
	require.NoError(t, err)
	assert.Equal(t, rbh.LogicalAnd, res.Filter.LogicalOp)
	assert.Equal(t, rbh.LogicalOr, res.Filter.Children[0].LogicalOp)
}

func TestParseSortCollectsSortKeyWithoutAffectingFilter(t *testing.T) {
	res, err := Parse([]string{"-type", "f", "-sort", "size"}, NewCompiler())
	require.NoError(t, err)
	require.Len(t, res.Sort, 1)
	assert.True(t, res.Sort[0].Ascending)
	assert.Equal(t, rbh.StatXSize, res.Sort[0].Field.StatXBit)
}

func TestParseRsortIsDescending(t *testing.T) {
	res, err := Parse([]string{"-sort", "name"}, NewCompiler())
	require.NoError(t, err)
	res2, err2 := Parse([]string{"-rsort", "name"}, NewCompiler())
	require.NoError(t, err2)
	assert.True(t, res.Sort[0].Ascending)
	assert.False(t, res2.Sort[0].Ascending)
}

func TestParseExecCollectsArgsUntilSemicolon(t *testing.T) {
	res, err := Parse([]string{"-type", "f", "-exec", "rm", "{}", ";"}, NewCompiler())
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "exec", res.Actions[0].Name)
	assert.Equal(t, []string{"rm", "{}"}, res.Actions[0].Args)
}

func TestParseMissingClosingParenErrors(t *testing.T) {
	_, err := Parse([]string{"(", "-type", "f"}, NewCompiler())
	assert.Error(t, err)
}

func TestParseUnknownPredicateErrors(t *testing.T) {
	_, err := Parse([]string{"-bogus", "x"}, NewCompiler())
	assert.Error(t, err)
}

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rbh-project/rbh4/rbh"
)

func TestEvalComparesStatXSize(t *testing.T) {
	e := rbh.FSEntry{
		Mask:  rbh.FieldStatX,
		StatX: rbh.StatX{Mask: rbh.StatXSize, Size: 100},
	}
	f := rbh.Compare(rbh.FieldOfStatX(rbh.StatXSize), rbh.OpStrictlyGreater, rbh.NewUint64(50))
	assert.True(t, Eval(f, e))

	f2 := rbh.Compare(rbh.FieldOfStatX(rbh.StatXSize), rbh.OpStrictlyLower, rbh.NewUint64(50))
	assert.False(t, Eval(f2, e))
}

func TestEvalMissingFieldIsAbsent(t *testing.T) {
	e := rbh.FSEntry{Mask: rbh.FieldID}
	f := rbh.Compare(rbh.FieldOfStatX(rbh.StatXSize), rbh.OpEqual, rbh.NewUint64(0))
	assert.False(t, Eval(f, e))

	exists := rbh.Compare(rbh.FieldOfStatX(rbh.StatXSize), rbh.OpExists, rbh.Value{})
	assert.False(t, Eval(exists, e))
}

func TestEvalLogicalAndOr(t *testing.T) {
	e := rbh.FSEntry{Mask: rbh.FieldName, Name: "foo.txt"}
	nameIs := rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("foo.txt"))
	nameIsNot := rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("bar.txt"))

	assert.True(t, Eval(rbh.And(nameIs), e))
	assert.False(t, Eval(rbh.And(nameIs, nameIsNot), e))
	assert.True(t, Eval(rbh.Or(nameIs, nameIsNot), e))
	assert.True(t, Eval(rbh.Not(nameIsNot), e))
}

func TestEvalShellPatternOnName(t *testing.T) {
	e := rbh.FSEntry{Mask: rbh.FieldName, Name: "report.pdf"}
	f := rbh.Compare(rbh.FieldOfName, rbh.OpRegex, rbh.NewRegex("*.pdf", rbh.RegexOptionShellPattern))
	assert.True(t, Eval(f, e))
}

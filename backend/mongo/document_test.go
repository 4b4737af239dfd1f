package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rbh-project/rbh4/rbh"
)

func TestIDToBinaryRoundTrips(t *testing.T) {
	id, err := rbh.NewID(rbh.OriginPOSIX, []byte{1, 2, 3})
	require.NoError(t, err)

	bin := idToBinary(id)
	got := binaryToID(bin)
	assert.Equal(t, id.Origin, got.Origin)
	assert.Equal(t, id.Bytes(), got.Bytes())
}

func TestValueToBSONRoundTripsThroughBSONToValue(t *testing.T) {
	cases := []rbh.Value{
		rbh.NewString("hello"),
		rbh.NewInt64(-42),
		rbh.NewBool(true),
	}
	for _, v := range cases {
		got := bsonToValue(valueToBSON(v))
		assert.Equal(t, v.Kind, got.Kind)
	}
}

func TestStatxToDocOnlyPopulatesMaskedFields(t *testing.T) {
	st := rbh.StatX{Mask: rbh.StatXSize, Size: 4096}
	d := statxToDoc(st)
	require.NotNil(t, d.Size)
	assert.EqualValues(t, 4096, *d.Size)
	assert.Nil(t, d.Mode)

	back := docToStatx(d)
	assert.True(t, back.Mask.Has(rbh.StatXSize))
	assert.False(t, back.Mask.Has(rbh.StatXMode))
}

func TestEntryFromDocExpandsOneDocumentPerNamespaceLink(t *testing.T) {
	id, err := rbh.NewID(rbh.OriginPOSIX, []byte{9})
	require.NoError(t, err)
	parent, err := rbh.NewID(rbh.OriginPOSIX, []byte{1})
	require.NoError(t, err)

	d := entryDoc{
		ID: idToBinary(id),
		Namespace: []nsLinkDoc{
			{ParentOrigin: uint8(parent.Origin), ParentID: idToBinary(parent), Name: "a"},
			{ParentOrigin: uint8(parent.Origin), ParentID: idToBinary(parent), Name: "b"},
		},
	}

	entries := entryFromDoc(d, rbh.FullProjection)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)
}

func TestEntryFromDocWithoutNamespaceYieldsSingleUnlinkedEntry(t *testing.T) {
	id, err := rbh.NewID(rbh.OriginPOSIX, []byte{9})
	require.NoError(t, err)
	d := entryDoc{ID: idToBinary(id)}
	entries := entryFromDoc(d, rbh.FullProjection)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Mask.Has(rbh.FieldName))
}

func TestXattrsToBSONRoundTripsThroughBSONToXattrs(t *testing.T) {
	m := rbh.NewValueMap()
	m.Set("user.foo", rbh.NewString("bar"))
	encoded := xattrsToBSON(m)
	require.IsType(t, bson.M{}, encoded)

	decoded := bsonToXattrs(encoded)
	v, ok := decoded.Get("user.foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v.String())
}

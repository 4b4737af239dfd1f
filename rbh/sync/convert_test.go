package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/iterator"
)

func newID(t *testing.T, origin rbh.Origin, b byte) rbh.Id {
	t.Helper()
	id, err := rbh.NewID(origin, []byte{b})
	require.NoError(t, err)
	return id
}

func TestToEventsEmitsUpsertThenLink(t *testing.T) {
	id := newID(t, rbh.OriginPOSIX, 1)
	parent := newID(t, rbh.OriginPOSIX, 2)

	e := rbh.FSEntry{
		Mask:     rbh.FieldID | rbh.FieldParentID | rbh.FieldName | rbh.FieldStatX,
		ID:       id,
		ParentID: parent,
		Name:     "file.txt",
		StatX:    rbh.StatX{Mask: rbh.StatXSize, Size: 42},
	}

	events := ToEvents(e, Options{})
	require.Len(t, events, 2)
	assert.Equal(t, rbh.EventUpsert, events[0].Type)
	assert.True(t, events[0].Upsert.HasStatX)
	assert.Equal(t, rbh.EventLink, events[1].Type)
	assert.Equal(t, "file.txt", events[1].Link.Name)
}

func TestToEventsFoldsInodeXattrsIntoUpsertWhenStatXPresent(t *testing.T) {
	id := newID(t, rbh.OriginPOSIX, 3)

	xattrs := rbh.NewValueMap()
	xattrs.Set("user.foo", rbh.NewString("bar"))

	e := rbh.FSEntry{
		Mask:        rbh.FieldID | rbh.FieldStatX | rbh.FieldInodeXattrs,
		ID:          id,
		StatX:       rbh.StatX{Mask: rbh.StatXSize, Size: 1},
		InodeXattrs: xattrs,
	}

	events := ToEvents(e, Options{})
	require.Len(t, events, 1)
	assert.Equal(t, rbh.EventUpsert, events[0].Type)
	require.NotNil(t, events[0].Upsert.InodeXattrs)
	assert.Equal(t, 1, events[0].Upsert.InodeXattrs.Len())
}

// TestToEventsEmitsStandaloneXattrWithoutStatX exercises a walker's
// synthetic child-count entry (inode xattrs, no statx): it must produce a
// plain inode-only XATTR event, not an UPSERT claiming a statx it never
// carries.
func TestToEventsEmitsStandaloneXattrWithoutStatX(t *testing.T) {
	id := newID(t, rbh.OriginPOSIX, 9)

	xattrs := rbh.NewValueMap()
	xattrs.Set("nb_children", rbh.NewInt64(3))

	e := rbh.FSEntry{
		Mask:        rbh.FieldID | rbh.FieldInodeXattrs,
		ID:          id,
		InodeXattrs: xattrs,
	}

	events := ToEvents(e, Options{})
	require.Len(t, events, 1)
	assert.Equal(t, rbh.EventXattr, events[0].Type)
	assert.Nil(t, events[0].Xattr.Namespace)
	require.NotNil(t, events[0].Xattr.Xattrs)
	assert.Equal(t, 1, events[0].Xattr.Xattrs.Len())
}

func TestToEventsSkipsEntryWithNeitherUpsertNorLink(t *testing.T) {
	id := newID(t, rbh.OriginPOSIX, 4)
	e := rbh.FSEntry{Mask: rbh.FieldID, ID: id}

	assert.Empty(t, ToEvents(e, Options{}))
}

func TestToEventsNamespaceXattrsOnlyEmitsXattrNotLink(t *testing.T) {
	id := newID(t, rbh.OriginPOSIX, 5)
	parent := newID(t, rbh.OriginPOSIX, 6)

	ns := rbh.NewValueMap()
	ns.Set("path", rbh.NewString("/a/b"))

	e := rbh.FSEntry{
		Mask:            rbh.FieldID | rbh.FieldParentID | rbh.FieldName | rbh.FieldNamespaceXattrs,
		ID:              id,
		ParentID:        parent,
		Name:            "b",
		NamespaceXattrs: ns,
	}

	events := ToEvents(e, Options{NamespaceXattrsOnly: true})
	require.Len(t, events, 1)
	assert.Equal(t, rbh.EventXattr, events[0].Type)
	require.NotNil(t, events[0].Xattr.Namespace)
	assert.Equal(t, "b", events[0].Xattr.Namespace.Name)
}

type sliceEntries struct {
	items []rbh.FSEntry
	pos   int
}

func (s *sliceEntries) Next(ctx context.Context) bool {
	if s.pos >= len(s.items) {
		return false
	}
	s.pos++
	return true
}
func (s *sliceEntries) Item() rbh.FSEntry { return s.items[s.pos-1] }
func (s *sliceEntries) Err() error        { return nil }
func (s *sliceEntries) Close() error      { return nil }

func TestStreamFlattensMultipleEntries(t *testing.T) {
	id1 := newID(t, rbh.OriginPOSIX, 7)
	parent := newID(t, rbh.OriginPOSIX, 8)

	upstream := &sliceEntries{items: []rbh.FSEntry{
		{
			Mask: rbh.FieldID | rbh.FieldParentID | rbh.FieldName | rbh.FieldStatX,
			ID:   id1, ParentID: parent, Name: "one",
			StatX: rbh.StatX{Mask: rbh.StatXSize, Size: 1},
		},
	}}

	var seq iterator.Seq[rbh.FSEvent] = Stream(upstream, Options{})
	ctx := context.Background()

	var got []rbh.EventType
	for seq.Next(ctx) {
		got = append(got, seq.Item().Type)
	}
	require.NoError(t, seq.Err())
	assert.Equal(t, []rbh.EventType{rbh.EventUpsert, rbh.EventLink}, got)
}

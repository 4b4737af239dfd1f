package boltfile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbh-project/rbh4/rbh"
)

type sliceEvents struct {
	items []rbh.FSEvent
	pos   int
}

func (s *sliceEvents) Next(ctx context.Context) bool {
	if s.pos+1 >= len(s.items) {
		return false
	}
	s.pos++
	return true
}
func (s *sliceEvents) Event() rbh.FSEvent { return s.items[s.pos] }
func (s *sliceEvents) LastErr() error     { return nil }
func (s *sliceEvents) Destroy() error     { return nil }

func newID(t *testing.T, b byte) rbh.Id {
	t.Helper()
	id, err := rbh.NewID(rbh.OriginPOSIX, []byte{b})
	require.NoError(t, err)
	return id
}

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bolt")
	be, err := Open("test", path)
	require.NoError(t, err)
	t.Cleanup(func() { be.Destroy() })
	return be
}

func TestUpdateThenFilterRoundTrips(t *testing.T) {
	be := openTestBackend(t)
	ctx := context.Background()
	fileID := newID(t, 1)

	upsert := rbh.Upsert(fileID)
	upsert.Upsert.HasStatX = true
	upsert.Upsert.StatX = rbh.StatX{Mask: rbh.StatXSize, Size: 1024}
	link := rbh.Link(fileID, rbh.RootID, "a.txt")

	n, err := be.Update(ctx, &sliceEvents{items: []rbh.FSEvent{upsert, link}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	f := rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("a.txt"))
	it, err := be.Filter(ctx, f, rbh.FilterOptions{}, rbh.FullProjection)
	require.NoError(t, err)
	defer it.Destroy()

	require.True(t, it.Next(ctx))
	e := it.Entry()
	assert.Equal(t, "a.txt", e.Name)
	assert.EqualValues(t, 1024, e.StatX.Size)
	assert.False(t, it.Next(ctx))
}

func TestUnlinkClearsNamespaceFields(t *testing.T) {
	be := openTestBackend(t)
	ctx := context.Background()
	fileID := newID(t, 2)

	link := rbh.Link(fileID, rbh.RootID, "b.txt")
	unlink := rbh.Unlink(fileID, rbh.RootID, "b.txt")

	_, err := be.Update(ctx, &sliceEvents{items: []rbh.FSEvent{link, unlink}})
	require.NoError(t, err)

	f := rbh.Compare(rbh.FieldOfName, rbh.OpEqual, rbh.NewString("b.txt"))
	it, err := be.Filter(ctx, f, rbh.FilterOptions{}, rbh.FullProjection)
	require.NoError(t, err)
	defer it.Destroy()
	assert.False(t, it.Next(ctx))
}

func TestInsertSourceDoesNotError(t *testing.T) {
	be := openTestBackend(t)
	m := rbh.NewValueMap()
	m.Set("fsname", rbh.NewString("/mnt/test"))
	require.NoError(t, be.InsertSource(context.Background(), m))
}

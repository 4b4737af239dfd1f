package gc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/source/posix"
)

func TestCandidateFilterIsNoneWithoutThreshold(t *testing.T) {
	f := candidateFilter(nil)
	assert.True(t, f.IsNone())
}

func TestCandidateFilterComparesSyncTime(t *testing.T) {
	threshold := int64(100)
	f := candidateFilter(&threshold)
	assert.Equal(t, rbh.NodeComparison, f.Kind)
	assert.Equal(t, rbh.OpStrictlyLower, f.Op)
}

func TestPathOfFallsBackToIDWhenUnnamed(t *testing.T) {
	id, err := rbh.NewID(rbh.OriginPOSIX, []byte{1})
	require.NoError(t, err)
	e := rbh.FSEntry{Mask: rbh.FieldID, ID: id}
	assert.Equal(t, id.String(), pathOf(e))
}

func TestPathOfUsesNameWhenProjected(t *testing.T) {
	e := rbh.FSEntry{Mask: rbh.FieldName, Name: "a.txt"}
	assert.Equal(t, "a.txt", pathOf(e))
}

// fakeBackend is a minimal rbh.Backend stub exercising only the Filter and
// Update calls Run uses, enough to test the chunking/reporting logic
// without a real mount point or handle.
type fakeBackend struct {
	entries []rbh.FSEntry
	deleted []rbh.Id
}

func (b *fakeBackend) Name() string            { return "fake" }
func (b *fakeBackend) Capabilities() rbh.Capability { return rbh.CapFilter | rbh.CapUpdate }
func (b *fakeBackend) Filter(ctx context.Context, f rbh.Filter, opts rbh.FilterOptions, proj rbh.Projection) (rbh.EntryIterator, error) {
	return rbh.NewEntryIterator(&sliceEntrySeq{items: b.entries, pos: -1}), nil
}
func (b *fakeBackend) Update(ctx context.Context, events rbh.EventIterator) (int64, error) {
	if events == nil {
		return 0, nil
	}
	var n int64
	for events.Next(ctx) {
		b.deleted = append(b.deleted, events.Event().ID)
		n++
	}
	return n, nil
}
func (b *fakeBackend) Branch(ctx context.Context, id rbh.Id) (rbh.Backend, error) { return b, nil }
func (b *fakeBackend) Root(ctx context.Context, proj rbh.Projection) (rbh.FSEntry, error) {
	return rbh.FSEntry{}, nil
}
func (b *fakeBackend) GetInfo(ctx context.Context, flags rbh.InfoFlags) (rbh.InfoReport, error) {
	return rbh.InfoReport{}, nil
}
func (b *fakeBackend) Report(ctx context.Context, f rbh.Filter, g rbh.Grouping, opts rbh.FilterOptions, proj rbh.Projection) (rbh.GroupIterator, error) {
	return nil, nil
}
func (b *fakeBackend) InsertSource(ctx context.Context, info *rbh.ValueMap) error { return nil }
func (b *fakeBackend) Destroy() error                                            { return nil }

type sliceEntrySeq struct {
	items []rbh.FSEntry
	pos   int
}

func (s *sliceEntrySeq) Next(ctx context.Context) bool {
	if s.pos+1 >= len(s.items) {
		return false
	}
	s.pos++
	return true
}
func (s *sliceEntrySeq) Item() rbh.FSEntry { return s.items[s.pos] }
func (s *sliceEntrySeq) Err() error        { return nil }
func (s *sliceEntrySeq) Close() error      { return nil }

// TestRunDryRunReportsScenario4Format reproduces spec.md §8 scenario 4: a
// target containing three ids {X,Y,Z} where X and Z are still present on
// disk and Y has been removed. The dry-run must print exactly one
// "'<path>' needs to be deleted" line per absent id followed by the total,
// and must not touch the backend's Update method at all.
func TestRunDryRunReportsScenario4Format(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"x.txt", "y.txt", "z.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(name), 0o644))
	}

	w, err := posix.NewWalker(posix.Options{Root: root})
	require.NoError(t, err)
	defer w.Close()

	var entries []rbh.FSEntry
	ctx := context.Background()
	for w.Next(ctx) {
		e := w.Item()
		if e.Mask.Has(rbh.FieldName) && e.Name != "" {
			entries = append(entries, e)
		}
	}
	require.NoError(t, w.Err())
	require.Len(t, entries, 3)

	var yPath string
	for _, e := range entries {
		if e.Name == "y.txt" {
			yPath = pathOf(e)
		}
	}
	require.NotEmpty(t, yPath)
	require.NoError(t, os.Remove(filepath.Join(root, "y.txt")))

	b := &fakeBackend{entries: entries}
	var out bytes.Buffer
	stats, err := Run(ctx, Config{
		Backend:   b,
		MountPath: root,
		DryRun:    true,
		Out:       &out,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Scanned)
	assert.Equal(t, int64(1), stats.Absent)
	assert.Equal(t, int64(0), stats.Deleted)
	assert.Empty(t, b.deleted)
	assert.Equal(t, fmt.Sprintf("'%s' needs to be deleted\n1 element total to delete\n", yPath), out.String())
}

func TestApplyChunkSkipsEmptyBatch(t *testing.T) {
	b := &fakeBackend{}
	n, err := applyChunk(context.Background(), b, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, b.deleted)
}

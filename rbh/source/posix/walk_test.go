package posix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbh-project/rbh4/rbh"
)

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dir", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dir", "b.txt"), []byte("bb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("t"), 0o644))
	return root
}

func TestWalkerVisitsEveryEntry(t *testing.T) {
	root := buildTree(t)
	w, err := NewWalker(Options{Root: root})
	require.NoError(t, err)

	var names []string
	ctx := context.Background()
	for w.Next(ctx) {
		e := w.Item()
		if e.Mask.Has(rbh.FieldName) {
			names = append(names, e.Name)
		}
	}
	require.NoError(t, w.Err())
	assert.Contains(t, names, "dir")
	assert.Contains(t, names, "top.txt")
	assert.Contains(t, names, "a.txt")
	assert.Contains(t, names, "b.txt")
}

// TestWalkerStampsPathNamespaceXattr exercises spec.md §4.4's requirement
// that every link carry a "path" namespace xattr, joining the walked parent
// path and name the same way fsentry_from_ftsent derives it from the FTS
// path.
func TestWalkerStampsPathNamespaceXattr(t *testing.T) {
	root := buildTree(t)
	w, err := NewWalker(Options{Root: root})
	require.NoError(t, err)

	paths := map[string]string{}
	ctx := context.Background()
	for w.Next(ctx) {
		e := w.Item()
		if !e.Mask.Has(rbh.FieldName) {
			continue
		}
		require.True(t, e.Mask.Has(rbh.FieldNamespaceXattrs))
		v, ok := e.NamespaceXattrs.Get("path")
		require.True(t, ok)
		paths[e.Name] = v.String()
	}
	require.NoError(t, w.Err())
	assert.Equal(t, filepath.Join(root, "top.txt"), paths["top.txt"])
	assert.Equal(t, filepath.Join(root, "dir", "a.txt"), paths["a.txt"])
}

// TestWalkerEmitsChildCount exercises the fts_iter.c-derived behavior: when
// a directory with children is fully explored, a synthetic inode-xattr
// UPSERT carrying nb_children is produced.
func TestWalkerEmitsChildCount(t *testing.T) {
	root := buildTree(t)
	w, err := NewWalker(Options{Root: root})
	require.NoError(t, err)

	found := false
	ctx := context.Background()
	for w.Next(ctx) {
		e := w.Item()
		if e.Mask.Has(rbh.FieldInodeXattrs) && !e.Mask.Has(rbh.FieldName) {
			v, ok := e.InodeXattrs.Get("nb_children")
			require.True(t, ok)
			assert.Equal(t, int64(2), v.Int64())
			found = true
		}
	}
	require.NoError(t, w.Err())
	assert.True(t, found, "expected a synthetic nb_children entry for dir/")
}

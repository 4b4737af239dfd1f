package parallel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkerDistributesAcrossWorkers(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 8; i++ {
		sub := filepath.Join(root, "d"+string(rune('a'+i)))
		require.NoError(t, os.Mkdir(sub, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "f"), []byte("x"), 0o644))
	}

	ctx := context.Background()
	w, err := NewWalker(ctx, Options{Root: root, Workers: 3})
	require.NoError(t, err)
	defer w.Close()

	count := 0
	for w.Next(ctx) {
		count++
	}
	require.NoError(t, w.Err())
	// root + 8 dirs + 8 files + 8 nb_children synthetics
	assert.Equal(t, 25, count)
}

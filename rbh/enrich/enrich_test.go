package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbh-project/rbh4/rbh"
)

func TestEnrichPassesThroughEventsWithoutRequests(t *testing.T) {
	e := &Enricher{}
	ev := rbh.Upsert(rbh.RootID)

	out, err := e.Enrich(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, ev, out)
}

func TestStatxLinuxMaskTranslatesBits(t *testing.T) {
	m := rbh.StatXSize | rbh.StatXMtime
	got := statxLinuxMask(m)
	assert.NotZero(t, got&0x200) // STATX_SIZE
}

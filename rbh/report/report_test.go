package report

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbh-project/rbh4/rbh"
)

func TestRenderOnlyIncludesRequestedFlags(t *testing.T) {
	rep := rbh.InfoReport{BackendName: "test", Count: 3, AvgSize: 512.5}
	out := Render(rep, rbh.InfoBackendName|rbh.InfoCount)
	assert.Contains(t, out, "backend: test")
	assert.Contains(t, out, "count: 3")
	assert.NotContains(t, out, "avg size")
}

func TestCapabilitiesStringListsEachBit(t *testing.T) {
	assert.Equal(t, "none", capabilitiesString(0))
	assert.Equal(t, "filter,update", capabilitiesString(rbh.CapFilter|rbh.CapUpdate))
}

func TestNewMetricsRegistersWithoutError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)
	m.RowsEmitted.Inc()
	m.QueryLatency.Observe(0.01)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

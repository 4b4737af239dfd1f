// Package report is the shared grouping/aggregation and introspection
// driver rbh-report and rbh-info both sit on top of: Info wraps a
// Backend.GetInfo call into the plain-text shape rbh-info prints, and Run
// wraps Backend.Report into rows, instrumenting both with the counters and
// histograms spec.md's report/gc run-stats call for.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rbh-project/rbh4/rbh"
)

// Metrics holds the optional Prometheus counters and histograms a sync/gc
// or report run publishes; wired from the teacher's go.mod dependency
// (github.com/prometheus/client_golang), unused by the teacher itself but
// exercised here per spec.md's report component.
type Metrics struct {
	RowsEmitted  prometheus.Counter
	QueryLatency prometheus.Histogram
}

// NewMetrics registers a fresh Metrics set on reg. Pass prometheus.NewRegistry()
// for an isolated test registry, or prometheus.DefaultRegisterer to expose
// via promhttp.Handler() from a long-running driver.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rbh_report_rows_emitted_total",
			Help: "Number of group rows a Report call has emitted.",
		}),
		QueryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rbh_report_query_duration_seconds",
			Help:    "Wall-clock duration of one Filter/Report backend call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.RowsEmitted, m.QueryLatency)
	return m
}

// Row is one rendered group-by row: the bucket key fields alongside their
// accumulator outputs, flattened for printing.
type Row struct {
	ID  *rbh.ValueMap
	Acc *rbh.ValueMap
}

// Run executes f/g against b and returns every resulting row, instrumenting
// the call's latency and row count on m when non-nil.
func Run(ctx context.Context, b rbh.Backend, f rbh.Filter, g rbh.Grouping, opts rbh.FilterOptions, proj rbh.Projection, m *Metrics) ([]Row, error) {
	start := time.Now()
	it, err := b.Report(ctx, f, g, opts, proj)
	if m != nil {
		m.QueryLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	defer it.Destroy()

	var rows []Row
	for it.Next(ctx) {
		row := it.Row()
		rows = append(rows, Row{ID: row.ID, Acc: row.Acc})
		if m != nil {
			m.RowsEmitted.Inc()
		}
	}
	return rows, it.LastErr()
}

// Info runs a GetInfo call and renders it into the plain report rbh-info
// prints, per spec.md §4.12/§6's capabilities/name/size/count flags.
func Info(ctx context.Context, b rbh.Backend, flags rbh.InfoFlags) (rbh.InfoReport, string, error) {
	rep, err := b.GetInfo(ctx, flags)
	if err != nil {
		return rbh.InfoReport{}, "", err
	}
	return rep, Render(rep, flags), nil
}

// Render formats an InfoReport the way rbh-info's original C counterpart
// (info.c/capabilities.c/list.c) lays out its plain-text report, one line
// per requested flag.
func Render(rep rbh.InfoReport, flags rbh.InfoFlags) string {
	out := ""
	if flags&rbh.InfoBackendName != 0 {
		out += fmt.Sprintf("backend: %s\n", rep.BackendName)
	}
	if flags&rbh.InfoCapabilities != 0 {
		out += fmt.Sprintf("capabilities: %s\n", capabilitiesString(rep.Capabilities))
	}
	if flags&rbh.InfoCount != 0 {
		out += fmt.Sprintf("count: %d\n", rep.Count)
	}
	if flags&rbh.InfoAvgSize != 0 {
		out += fmt.Sprintf("avg size: %.2f\n", rep.AvgSize)
	}
	if flags&rbh.InfoMinSize != 0 {
		out += fmt.Sprintf("min size: %d\n", rep.MinSize)
	}
	if flags&rbh.InfoMaxSize != 0 {
		out += fmt.Sprintf("max size: %d\n", rep.MaxSize)
	}
	return out
}

func capabilitiesString(c rbh.Capability) string {
	names := []struct {
		bit  rbh.Capability
		name string
	}{
		{rbh.CapFilter, "filter"},
		{rbh.CapUpdate, "update"},
		{rbh.CapBranch, "branch"},
		{rbh.CapSync, "sync"},
	}
	out := ""
	for _, n := range names {
		if c.Has(n.bit) {
			if out != "" {
				out += ","
			}
			out += n.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

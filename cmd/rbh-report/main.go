// Command rbh-report runs a grouping/aggregation query against a backend,
// grounded on spec.md §4.2's Group-by algebra and §6's CLI surface.
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rbh-project/rbh4/internal/rbhcli"
	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/filter"
	"github.com/rbh-project/rbh4/rbh/report"
)

var (
	connStr string
	groupBy []string
	outputs []string
	metrics bool
)

func main() {
	root := &cobra.Command{
		Use:   "rbh-report <uri> [expression...]",
		Short: "Run a group-by/aggregation query against a backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], args[1:])
		},
	}
	root.Flags().StringVar(&connStr, "connection", "", "comma-separated key=value connection string overlay")
	root.Flags().StringSliceVar(&groupBy, "group-by", nil, "field[:boundary,...] to bucket by, repeatable")
	root.Flags().StringSliceVar(&outputs, "output", []string{"count"}, "accumulator:field[:as], repeatable")
	root.Flags().BoolVar(&metrics, "metrics", false, "publish Prometheus counters/histograms for this run")
	rbhcli.SilenceUsageOnError(root)

	rbhcli.Run(func() error {
		return root.ExecuteContext(context.Background())
	})
}

func run(ctx context.Context, uriStr string, tokens []string) error {
	b, uri, err := rbhcli.OpenBackend(ctx, uriStr, connStr)
	if err != nil {
		return err
	}
	defer b.Destroy()
	b2, err := rbhcli.Branch(ctx, b, uri)
	if err != nil {
		return err
	}

	f := rbh.None
	if len(tokens) > 0 {
		res, err := filter.Parse(tokens, filter.NewCompiler())
		if err != nil {
			return err
		}
		f = filter.PushdownNegation(filter.Translate(res.Filter))
	}

	g, err := parseGrouping(groupBy, outputs)
	if err != nil {
		return err
	}

	var m *report.Metrics
	if metrics {
		m = report.NewMetrics(prometheus.DefaultRegisterer)
	}

	rows, err := report.Run(ctx, b2, f, g, rbh.FilterOptions{}, rbh.FullProjection, m)
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Println(renderRow(row))
	}
	return nil
}

func renderRow(row report.Row) string {
	var parts []string
	if row.ID != nil {
		for _, k := range row.ID.Keys() {
			v, _ := row.ID.Get(k)
			parts = append(parts, k+"="+v.String())
		}
	}
	if row.Acc != nil {
		for _, k := range row.Acc.Keys() {
			v, _ := row.Acc.Get(k)
			parts = append(parts, k+"="+v.String())
		}
	}
	return strings.Join(parts, " ")
}

func parseGrouping(groupBy, outputs []string) (rbh.Grouping, error) {
	var g rbh.Grouping
	for _, spec := range groupBy {
		parts := strings.Split(spec, ":")
		field, err := fieldByName(parts[0])
		if err != nil {
			return g, err
		}
		rf := rbh.RangeField{Field: field}
		if len(parts) > 1 {
			for _, b := range strings.Split(parts[1], ",") {
				n, err := strconv.ParseInt(b, 10, 64)
				if err != nil {
					return g, fmt.Errorf("rbh-report: bad boundary %q: %w", b, err)
				}
				rf.Boundaries = append(rf.Boundaries, rbh.NewInt64(n))
			}
		}
		g.By = append(g.By, rf)
	}
	for _, spec := range outputs {
		parts := strings.Split(spec, ":")
		acc, err := accByName(parts[0])
		if err != nil {
			return g, err
		}
		out := rbh.OutputSpec{Accumulator: acc, As: parts[0]}
		if len(parts) > 1 {
			field, err := fieldByName(parts[1])
			if err != nil {
				return g, err
			}
			out.Field = field
		}
		if len(parts) > 2 {
			out.As = parts[2]
		}
		g.Output = append(g.Output, out)
	}
	return g, nil
}

func accByName(name string) (rbh.Accumulator, error) {
	switch name {
	case "count":
		return rbh.AccCount, nil
	case "sum":
		return rbh.AccSum, nil
	case "avg":
		return rbh.AccAvg, nil
	case "min":
		return rbh.AccMin, nil
	case "max":
		return rbh.AccMax, nil
	default:
		return 0, fmt.Errorf("rbh-report: unknown accumulator %q", name)
	}
}

func fieldByName(name string) (rbh.Field, error) {
	switch name {
	case "size", "statx.size":
		return rbh.FieldOfStatX(rbh.StatXSize), nil
	case "type", "statx.type":
		return rbh.FieldOfStatX(rbh.StatXType), nil
	case "uid", "statx.uid":
		return rbh.FieldOfStatX(rbh.StatXUID), nil
	case "gid", "statx.gid":
		return rbh.FieldOfStatX(rbh.StatXGID), nil
	default:
		return rbh.Field{}, fmt.Errorf("rbh-report: unknown field %q", name)
	}
}

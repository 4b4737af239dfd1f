// Command rbh-info prints backend introspection data (name, capabilities,
// entry count, size stats), grounded on spec.md §4.12/§6 and the original
// C rbh-info's capabilities/list/info report.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rbh-project/rbh4/internal/rbhcli"
	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/report"
)

var (
	connStr          string
	showCapabilities bool
	showCount        bool
	showSizes        bool
)

func main() {
	root := &cobra.Command{
		Use:   "rbh-info <uri>",
		Short: "Print backend introspection data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
	root.Flags().StringVar(&connStr, "connection", "", "comma-separated key=value connection string overlay")
	root.Flags().BoolVarP(&showCapabilities, "capabilities", "c", false, "show advertised capabilities")
	root.Flags().BoolVarP(&showCount, "count", "C", false, "show entry count")
	root.Flags().BoolVarP(&showSizes, "size", "s", false, "show min/avg/max size")
	rbhcli.SilenceUsageOnError(root)

	rbhcli.Run(func() error {
		return root.ExecuteContext(context.Background())
	})
}

func run(ctx context.Context, uriStr string) error {
	b, uri, err := rbhcli.OpenBackend(ctx, uriStr, connStr)
	if err != nil {
		return err
	}
	defer b.Destroy()
	b2, err := rbhcli.Branch(ctx, b, uri)
	if err != nil {
		return err
	}

	flags := rbh.InfoBackendName
	if showCapabilities {
		flags |= rbh.InfoCapabilities
	}
	if showCount {
		flags |= rbh.InfoCount
	}
	if showSizes {
		flags |= rbh.InfoAvgSize | rbh.InfoMinSize | rbh.InfoMaxSize
	}

	_, rendered, err := report.Info(ctx, b2, flags)
	if err != nil {
		return err
	}
	fmt.Print(rendered)
	return nil
}

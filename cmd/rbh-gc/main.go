// Command rbh-gc scans a target backend for entries whose live source file
// is gone and deletes them, spec.md §4.8's garbage collector.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rbh-project/rbh4/internal/rbhcli"
	"github.com/rbh-project/rbh4/rbh/gc"
)

var (
	connStr   string
	mountPath string
	dryRun    bool
	before    int64
)

func main() {
	root := &cobra.Command{
		Use:   "rbh-gc <target-uri>",
		Short: "Delete target entries whose source file no longer exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
	root.Flags().StringVar(&connStr, "connection", "", "comma-separated key=value connection string overlay")
	root.Flags().StringVar(&mountPath, "mount", "", "live source mount point to probe liveness against")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without applying it")
	root.Flags().Int64Var(&before, "sync-time-before", 0, "only consider entries whose sync_time is before this unix timestamp (0 disables the filter)")
	root.MarkFlagRequired("mount")
	rbhcli.SilenceUsageOnError(root)

	rbhcli.Run(func() error {
		return root.ExecuteContext(context.Background())
	})
}

func run(ctx context.Context, targetURI string) error {
	target, _, err := rbhcli.OpenBackend(ctx, targetURI, connStr)
	if err != nil {
		return err
	}
	defer target.Destroy()

	cfg := gc.Config{
		Backend:   target,
		MountPath: mountPath,
		DryRun:    dryRun,
		Out:       os.Stdout,
	}
	if before != 0 {
		cfg.SyncTimeThreshold = &before
	}

	stats, err := gc.Run(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("scanned=%d absent=%d deleted=%d\n", stats.Scanned, stats.Absent, stats.Deleted)
	return nil
}

package rbhcli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rbh-project/rbh4/internal/rbherrors"
)

// Run executes fn and terminates the process with the exit code spec.md §6
// names: 0 on success, 64 on a validation/usage error, 1 on anything else.
// Grounded on the teacher's cmd.Run, which likewise prints the error and
// maps it to a process exit code rather than letting main return one.
func Run(fn func() error) {
	err := fn()
	if err == nil {
		os.Exit(ExitSuccess)
	}
	fmt.Fprintln(os.Stderr, err)
	if rbherrors.Is(err, rbherrors.KindValidation) {
		os.Exit(ExitUsage)
	}
	os.Exit(ExitError)
}

// SilenceUsageOnError stops cobra from dumping the full --help text every
// time RunE returns an error, matching the teacher's root command setup.
func SilenceUsageOnError(cmd *cobra.Command) {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
}

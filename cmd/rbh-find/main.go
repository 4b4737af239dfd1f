// Command rbh-find evaluates a GNU-find-style expression against a target
// backend's Filter call, grounded on spec.md §6's CLI surface and on the
// teacher's cmd/ cobra driver style.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbh-project/rbh4/internal/rbhcli"
	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/filter"
)

var (
	connStr string
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "rbh-find <uri> [expression...]",
		Short: "Walk a backend's namespace, evaluating a find-style expression",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], args[1:])
		},
	}
	root.Flags().StringVar(&connStr, "connection", "", "comma-separated key=value connection string overlay")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "print one line per skipped/errored entry")
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

	res, err := filter.Parse(tokens, filter.NewCompiler())
	if err != nil {
		return err
	}
	f := filter.PushdownNegation(filter.Translate(res.Filter))
	if err := filter.Validate(f); err != nil {
		return err
	}

	proj := rbh.FullProjection
	opts := rbh.FilterOptions{SortList: res.Sort, Verbose: verbose}

	it, err := b2.Filter(ctx, f, opts, proj)
	if err != nil {
		return err
	}
	defer it.Destroy()

	var count int64
	for it.Next(ctx) {
		e := it.Entry()
		quit, err := applyActions(e, res.Actions)
		if err != nil {
			return err
		}
		count++
		if quit {
			break
		}
	}
	if err := it.LastErr(); err != nil {
		return err
	}

	for _, a := range res.Actions {
		if a.Name == "count" {
			fmt.Println(count)
		}
	}
	return nil
}

func applyActions(e rbh.FSEntry, actions []filter.Action) (quit bool, err error) {
	for _, a := range actions {
		switch a.Name {
		case "print":
			fmt.Println(pathOf(e))
		case "print0":
			fmt.Print(pathOf(e), "\x00")
		case "fprint":
			if err := appendLine(a.Args[0], pathOf(e)+"\n"); err != nil {
				return false, err
			}
		case "fprint0":
			if err := appendLine(a.Args[0], pathOf(e)+"\x00"); err != nil {
				return false, err
			}
		case "ls":
			fmt.Println(lsLine(e))
		case "fls":
			if err := appendLine(a.Args[0], lsLine(e)+"\n"); err != nil {
				return false, err
			}
		case "printf":
			fmt.Print(renderPrintf(a.Args[0], e))
		case "fprintf":
			if err := appendLine(a.Args[0], renderPrintf(a.Args[1], e)); err != nil {
				return false, err
			}
		case "exec":
			if err := runExec(a.Args, e); err != nil {
				return false, err
			}
		case "delete":
			fmt.Fprintf(os.Stderr, "rbh-find: -delete requires an Update-capable backend; use rbh-gc for target pruning\n")
		case "count":
			// tallied by the caller
		case "quit":
			return true, nil
		}
	}
	return false, nil
}

func pathOf(e rbh.FSEntry) string {
	if e.Mask.Has(rbh.FieldName) && e.Name != "" {
		return e.Name
	}
	return e.ID.String()
}

func lsLine(e rbh.FSEntry) string {
	return fmt.Sprintf("%10d %s", e.StatX.Size, pathOf(e))
}

func renderPrintf(format string, e rbh.FSEntry) string {
	replacer := strings.NewReplacer(
		"%p", pathOf(e),
		"%s", fmt.Sprint(e.StatX.Size),
		"%i", e.ID.String(),
	)
	return replacer.Replace(format)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

func runExec(args []string, e rbh.FSEntry) error {
	expanded := make([]string, len(args))
	for i, a := range args {
		if a == "{}" {
			a = pathOf(e)
		}
		expanded[i] = a
	}
	if len(expanded) == 0 {
		return nil
	}
	c := exec.Command(expanded[0], expanded[1:]...)
	c.Stdout, c.Stderr = os.Stdout, os.Stderr
	return c.Run()
}

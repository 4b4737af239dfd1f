// Command rbh-sync walks a source into a target backend, converting each
// fsentry into its fsevents, optionally enriching them, and applying them
// in fixed-size chunks — spec.md §4.6's migration path.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rbh-project/rbh4/internal/rbhcli"
	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/enrich"
	"github.com/rbh-project/rbh4/rbh/iterator"
	"github.com/rbh-project/rbh4/rbh/source/eventstream"
	"github.com/rbh-project/rbh4/rbh/source/parallel"
	"github.com/rbh-project/rbh4/rbh/source/posix"
	"github.com/rbh-project/rbh4/rbh/source/s3"
	"github.com/rbh-project/rbh4/rbh/sync"
)

const chunkSize = 4096

var (
	sourceKind      string
	sourcePath      string
	connStr         string
	enrichMount     string
	namespaceOnly   bool
	s3Bucket        string
	parallelWorkers int
)

func main() {
	root := &cobra.Command{
		Use:   "rbh-sync <target-uri>",
		Short: "Synchronize a source tree into a target backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
	root.Flags().StringVar(&sourceKind, "source", "posix", "source kind: posix|parallel|s3|eventstream")
	root.Flags().StringVar(&sourcePath, "source-path", "", "source mount point, bucket, or event file (- for stdin)")
	root.Flags().StringVar(&connStr, "connection", "", "comma-separated key=value connection string overlay")
	root.Flags().StringVar(&enrichMount, "enrich-mount", "", "mount point used to resolve enrichment requests; empty disables enrichment")
	root.Flags().BoolVar(&namespaceOnly, "namespace-only", false, "emit namespace-xattr-only events instead of full upserts")
	root.Flags().StringVar(&s3Bucket, "s3-bucket", "", "bucket name for --source=s3")
	root.Flags().IntVar(&parallelWorkers, "ranks", 4, "simulated rank count for --source=parallel")
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
	if !target.Capabilities().Has(rbh.CapUpdate) {
		return fmt.Errorf("rbh-sync: target backend does not support Update")
	}

	events, closeSrc, err := openEventSeq(ctx)
	if err != nil {
		return err
	}
	defer closeSrc()

	if enrichMount != "" {
		enricher, err := enrich.New(enrich.Config{MountPath: enrichMount})
		if err != nil {
			return err
		}
		defer enricher.Close()
		events = iterator.Map(events, func(ev rbh.FSEvent) (rbh.FSEvent, error) {
			return enricher.Enrich(ctx, ev)
		})
	}

	total, err := applyChunked(ctx, target, events)
	if err != nil {
		return err
	}
	fmt.Printf("%d events applied\n", total)
	return nil
}

// openEventSeq dispatches --source into the fsevent stream rbh-sync feeds
// the target: a walker's fsentries through sync.Stream, or a ready-made
// event stream for the eventstream source.
func openEventSeq(ctx context.Context) (iterator.Seq[rbh.FSEvent], func() error, error) {
	opt := sync.Options{NamespaceXattrsOnly: namespaceOnly}

	switch sourceKind {
	case "posix":
		w, err := posix.NewWalker(posix.Options{Root: sourcePath})
		if err != nil {
			return nil, nil, err
		}
		return sync.Stream(w, opt), w.Close, nil
	case "parallel":
		w, err := parallel.NewWalker(ctx, parallel.Options{Root: sourcePath, Workers: parallelWorkers})
		if err != nil {
			return nil, nil, err
		}
		return sync.Stream(w, opt), w.Close, nil
	case "s3":
		w, err := s3.NewWalker(s3.Options{Bucket: s3Bucket, Prefix: sourcePath})
		if err != nil {
			return nil, nil, err
		}
		return sync.Stream(w, opt), w.Close, nil
	case "eventstream":
		f, err := openSourceFile(sourcePath)
		if err != nil {
			return nil, nil, err
		}
		dec := eventstream.NewDecoder(f)
		return decoderSeq{dec}, f.Close, nil
	default:
		return nil, nil, fmt.Errorf("rbh-sync: unknown source kind %q", sourceKind)
	}
}

func openSourceFile(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

type decoderSeq struct{ dec *eventstream.Decoder }

func (d decoderSeq) Next(ctx context.Context) bool { return d.dec.Next() }
func (d decoderSeq) Item() rbh.FSEvent             { return d.dec.Event() }
func (d decoderSeq) Err() error                    { return d.dec.Err() }
func (d decoderSeq) Close() error                  { return nil }

func applyChunked(ctx context.Context, b rbh.Backend, events iterator.Seq[rbh.FSEvent]) (int64, error) {
	chunks := iterator.Chunkify(events, chunkSize)
	var total int64
	for chunks.Next(ctx) {
		n, err := b.Update(ctx, rbh.NewEventIterator(chunks.Item()))
		total += n
		if err != nil {
			return total, err
		}
	}
	if err := chunks.Err(); err != nil {
		return total, err
	}
	if _, err := b.Update(ctx, nil); err != nil {
		return total, err
	}
	return total, nil
}

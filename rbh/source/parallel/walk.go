// Package parallel distributes a tree walk across concurrent workers the
// way RobinHood's MPI backend distributes an mpifileutils flist across
// ranks (original_source/librobinhood/src/backends/iter_mpi/iter_mpi.c):
// the root's immediate children are split into contiguous shares, one per worker,
// each worker walks its share with rbh/source/posix's single-threaded
// walker, and results are merged onto one channel. Go has no MPI binding in
// the example corpus or the broader ecosystem, so goroutines plus
// golang.org/x/sync/errgroup stand in for ranks — each worker is one
// errgroup goroutine instead of one MPI process.
package parallel

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/rbh-project/rbh4/internal/rbhlog"
	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/source/posix"
)

// Options configures a parallel walk.
type Options struct {
	Root        string
	Workers     int // simulated rank count; defaults to 4 if <= 0
	SkipOnError bool
	OneDevice   bool
}

// Walker merges the output of Workers concurrent posix.Walker instances,
// one per top-level subtree, into a single channel of results; entries from
// different workers interleave in no fixed order.
type Walker struct {
	results chan entryOrErr
	cancel  context.CancelFunc
	group   *errgroup.Group

	cur rbh.FSEntry
	err error
	// groupErr is set once the errgroup finishes; Next treats a closed
	// channel plus a non-nil groupErr as the terminal error.
	groupErr error
	closed   bool
}

type entryOrErr struct {
	entry rbh.FSEntry
	err   error
}

// NewWalker partitions root's top-level entries across opt.Workers
// goroutines and starts them immediately; Next drains their merged output.
func NewWalker(ctx context.Context, opt Options) (*Walker, error) {
	if opt.Workers <= 0 {
		opt.Workers = 4
	}

	top, err := os.ReadDir(opt.Root)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	results := make(chan entryOrErr, opt.Workers*4)

	w := &Walker{results: results, cancel: cancel, group: group}

	rootID, rootErr := emitRoot(gctx, opt.Root, results)
	if rootErr != nil {
		cancel()
		return nil, rootErr
	}

	shares := partition(top, opt.Workers)
	for rank, share := range shares {
		rank, share := rank, share
		group.Go(func() error {
			return walkShare(gctx, rank, opt, rootID, share, results)
		})
	}

	go func() {
		w.groupErr = group.Wait()
		close(results)
	}()

	return w, nil
}

// partition splits entries into up to n roughly-equal, contiguous shares —
// the Go analogue of mpifileutils distributing an flist's entries across
// MPI ranks by index range.
func partition(entries []os.DirEntry, n int) [][]os.DirEntry {
	if len(entries) == 0 {
		return nil
	}
	if n > len(entries) {
		n = len(entries)
	}
	shares := make([][]os.DirEntry, 0, n)
	base := len(entries) / n
	rem := len(entries) % n
	i := 0
	for r := 0; r < n; r++ {
		size := base
		if r < rem {
			size++
		}
		shares = append(shares, entries[i:i+size])
		i += size
	}
	return shares
}

func emitRoot(ctx context.Context, root string, results chan<- entryOrErr) (rbh.Id, error) {
	w, err := posix.NewWalker(posix.Options{Root: root})
	if err != nil {
		return rbh.Id{}, err
	}
	defer w.Close()
	if !w.Next(ctx) {
		return rbh.Id{}, w.Err()
	}
	entry := w.Item()
	select {
	case results <- entryOrErr{entry: entry}:
	case <-ctx.Done():
		return rbh.Id{}, ctx.Err()
	}
	return entry.ID, nil
}

// walkShare walks each top-level entry assigned to this rank as its own
// subtree root, re-parenting every result under rootID, and forwards every
// entry (including the nb_children synthetics) onto results.
func walkShare(ctx context.Context, rank int, opt Options, rootID rbh.Id, share []os.DirEntry, results chan<- entryOrErr) error {
	for _, de := range share {
		path := filepath.Join(opt.Root, de.Name())
		w, err := posix.NewWalker(posix.Options{
			Root:        path,
			SkipOnError: opt.SkipOnError,
			OneDevice:   opt.OneDevice,
		})
		if err != nil {
			rbhlog.Warnf("parallel: rank %d: open %s: %v", rank, path, err)
			if opt.SkipOnError {
				continue
			}
			return err
		}

		first := true
		for w.Next(ctx) {
			entry := w.Item()
			if first {
				// The subtree's own root was re-stated relative to opt.Root;
				// re-point it at the shared parent instead of its own parent
				// (which posix.Walker set to RootID for its own local walk),
				// and name it under that parent, since a walker leaves its
				// own root's name empty.
				entry.ParentID = rootID
				entry.Name = de.Name()
				first = false
			}
			select {
			case results <- entryOrErr{entry: entry}:
			case <-ctx.Done():
				w.Close()
				return ctx.Err()
			}
		}
		err = w.Err()
		w.Close()
		if err != nil {
			if opt.SkipOnError {
				rbhlog.Warnf("parallel: rank %d: %v", rank, err)
				continue
			}
			return err
		}
	}
	return nil
}

// Next advances the merged stream.
func (w *Walker) Next(ctx context.Context) bool {
	if w.closed {
		return false
	}
	select {
	case item, ok := <-w.results:
		if !ok {
			w.closed = true
			w.err = w.groupErr
			return false
		}
		if item.err != nil {
			w.err = item.err
			w.closed = true
			return false
		}
		w.cur = item.entry
		return true
	case <-ctx.Done():
		w.err = ctx.Err()
		w.closed = true
		return false
	}
}

// Item returns the entry Next just produced.
func (w *Walker) Item() rbh.FSEntry { return w.cur }

// Err returns the first error seen, from either a worker or the merge loop.
func (w *Walker) Err() error { return w.err }

// Close cancels every outstanding worker and waits for them to unwind.
func (w *Walker) Close() error {
	w.cancel()
	_ = w.group.Wait()
	return nil
}

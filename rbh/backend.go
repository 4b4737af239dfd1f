package rbh

import "context"

// Capability is a bitmask a backend advertises to say which of the trait's
// operations it actually implements. The Backend methods do not check it
// themselves; drivers test it before calling (cmd/rbh-sync refuses a target
// without CapUpdate).
type Capability uint8

// Capabilities, per spec.md §4.1.
const (
	CapFilter Capability = 1 << iota
	CapUpdate
	CapBranch
	CapSync
)

// Has reports whether every bit in want is set in c.
func (c Capability) Has(want Capability) bool { return c&want == want }

// FilterOptions tunes a Filter call, per spec.md §4.1.
type FilterOptions struct {
	Skip         int
	Limit        int
	SortList     Sort
	SkipOnError  bool
	Verbose      bool
	OneShot      bool
}

// InfoFlags selects which sections GetInfo should populate.
type InfoFlags uint8

// Info flags, grounding rbh-info's capabilities/size/count report.
const (
	InfoCapabilities InfoFlags = 1 << iota
	InfoBackendName
	InfoAvgSize
	InfoMinSize
	InfoMaxSize
	InfoCount
)

// InfoReport is the result of a GetInfo call.
type InfoReport struct {
	BackendName    string
	BackendVersion Version
	Capabilities   Capability

	Count   int64
	AvgSize float64
	MinSize uint64
	MaxSize uint64
}

// EntryIterator lazily yields FSEntry values, one at a time, with a
// trailing error channel: per spec.md §7, an exhausted iterator is
// distinguished from a failed one by LastErr() after Next returns false.
type EntryIterator interface {
	// Next advances to the next entry, returning false at end-of-stream or
	// on error; call LastErr to tell the two apart.
	Next(ctx context.Context) bool
	Entry() FSEntry
	LastErr() error
	// Destroy releases all resources (file descriptors, scratch arena) the
	// iterator holds, including any not-yet-drained upstream iterators.
	Destroy() error
}

// EventIterator lazily yields FSEvent values, the stream shape consumed by
// Update.
type EventIterator interface {
	Next(ctx context.Context) bool
	Event() FSEvent
	LastErr() error
	Destroy() error
}

// Backend is the polymorphic handle every source and target implements a
// subset of, advertised via Capabilities(); see Capability for how callers
// use it.
type Backend interface {
	// Name identifies the backend for logging and id tagging.
	Name() string
	Capabilities() Capability

	// Filter returns a lazy sequence of entries matching f, honoring opts
	// and materializing only the fields named in proj.
	Filter(ctx context.Context, f Filter, opts FilterOptions, proj Projection) (EntryIterator, error)

	// Update applies a stream of events atomically per event; a nil events
	// iterator (or one that yields nothing) signals flush/commit and must
	// still be accepted. Returns the number of events successfully applied.
	Update(ctx context.Context, events EventIterator) (int64, error)

	// Branch returns a backend whose Root is the subtree rooted at id.
	Branch(ctx context.Context, id Id) (Backend, error)

	// Root returns the entry whose ParentID.IsRoot() is true, projected per
	// proj.
	Root(ctx context.Context, proj Projection) (FSEntry, error)

	// GetInfo reports backend introspection data selected by flags.
	GetInfo(ctx context.Context, flags InfoFlags) (InfoReport, error)

	// Report runs a grouping/aggregation query and returns the resulting
	// (id-map, acc-map) rows.
	Report(ctx context.Context, f Filter, g Grouping, opts FilterOptions, proj Projection) (GroupIterator, error)

	// InsertSource records provenance metadata about a sync source.
	InsertSource(ctx context.Context, info *ValueMap) error

	// Destroy releases all resources. Must be safe to call on a backend
	// whose constructor only partially succeeded.
	Destroy() error
}

// GroupRow is one (id-map, acc-map) output row of a Report call.
type GroupRow struct {
	ID  *ValueMap
	Acc *ValueMap
}

// GroupIterator lazily yields GroupRow values.
type GroupIterator interface {
	Next(ctx context.Context) bool
	Row() GroupRow
	LastErr() error
	Destroy() error
}

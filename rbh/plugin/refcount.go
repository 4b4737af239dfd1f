package plugin

import "sync"

// SharedRuntime serializes first-touch/last-release of a process-global
// resource multiple backends may depend on (the parallel-filesystem
// library, in the spec's own wording). It is the direct Go counterpart of
// the original C source's mpi_rc.c: an atomic refcount guarded by a mutex,
// living in the framework rather than in any one plugin, so two backends
// sharing the same runtime never double-initialize or finalize it out from
// under each other.
type SharedRuntime struct {
	mu    sync.Mutex
	count int
	init  func() error
	fini  func()

	initErr error
}

// NewSharedRuntime returns a refcounted runtime wrapper. init is invoked on
// the first IncRef; fini is invoked when the last matching DecRef drops the
// count to zero.
func NewSharedRuntime(init func() error, fini func()) *SharedRuntime {
	return &SharedRuntime{init: init, fini: fini}
}

// IncRef increments the reference count, calling init on the first
// increment. If init fails, the count is rolled back so a later retry can
// try again.
func (r *SharedRuntime) IncRef() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	if r.count == 1 {
		r.initErr = r.init()
		if r.initErr != nil {
			r.count--
		}
	}
	return r.initErr
}

// DecRef decrements the reference count, calling fini when it reaches zero.
func (r *SharedRuntime) DecRef() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return
	}
	r.count--
	if r.count == 0 {
		r.fini()
	}
}

// RefCount returns the current reference count, mostly for tests.
func (r *SharedRuntime) RefCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Package sync converts a source backend's FSEntry dump into the FSEvent
// stream a target backend's Update consumes — the "migrate an entire
// source into a target" path spec.md §4.6 describes. Grounded on
// original_source/rbh-sync.c's fsentry_to_fsevent conversion, which builds
// one UPSERT (statx + symlink + inode xattrs together) and one LINK per
// fsentry; this reimplementation keeps that single-UPSERT preference
// (spec.md §9's resolved design-notes ambiguity) and adds the namespace-only
// XATTR fallback spec.md §4.6 names for the "already exists, ns-xattrs only"
// case the C source's simpler two-event model doesn't need because
// rbh-sync always walks a fresh source.
package sync

import (
	"context"

	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/iterator"
)

// Options tunes ToEvents. NamespaceXattrsOnly marks a conversion request
// where the caller wants an existing entry's namespace xattrs refreshed
// without re-linking it —
// the fourth event kind spec.md §4.6 describes, used by incremental
// resyncs rather than a first full migration.
type Options struct {
	NamespaceXattrsOnly bool
}

// ToEvents converts one fsentry into at most two fsevents, in the order
// spec.md §4.6 fixes: UPSERT (or a standalone inode XATTR when there's no
// statx to carry, e.g. a walker's synthetic child-count entry), then LINK
// (or a namespace XATTR only if no LINK was emitted). Steps whose required
// inputs are absent are skipped. Inode xattrs travel inside the UPSERT when
// there is one; no separate inode XATTR event accompanies it.
func ToEvents(e rbh.FSEntry, opt Options) []rbh.FSEvent {
	var events []rbh.FSEvent

	hasStatX := e.Mask.Has(rbh.FieldStatX)
	hasSymlink := e.Mask.Has(rbh.FieldSymlink)
	hasInodeXattrs := e.Mask.Has(rbh.FieldInodeXattrs) && e.InodeXattrs.Len() > 0
	hasLink := e.Mask.Has(rbh.FieldParentID) && e.Mask.Has(rbh.FieldName) && !opt.NamespaceXattrsOnly
	hasNamespaceXattrs := e.Mask.Has(rbh.FieldNamespaceXattrs) && e.NamespaceXattrs.Len() > 0

	switch {
	case hasStatX || hasSymlink:
		// statx (and/or a symlink target) is present: fold any inode xattrs
		// into the same UPSERT rather than a second event, the original's
		// single-UPSERT combined form.
		upsert := rbh.FSEvent{Type: rbh.EventUpsert, ID: e.ID}
		if hasStatX {
			upsert.Upsert.HasStatX = true
			upsert.Upsert.StatX = e.StatX
		}
		if hasSymlink {
			upsert.Upsert.HasSymlink = true
			upsert.Upsert.Symlink = e.Symlink
		}
		if hasInodeXattrs {
			upsert.Upsert.InodeXattrs = partialFromMap(e.InodeXattrs)
		}
		events = append(events, upsert)
	case hasInodeXattrs:
		// No statx to carry (e.g. a walker's synthetic nb_children count):
		// an inode-only XATTR event, not an UPSERT with nothing to upsert.
		events = append(events, rbh.FSEvent{
			Type: rbh.EventXattr, ID: e.ID,
			Xattr: rbh.XattrPayload{Xattrs: partialFromMap(e.InodeXattrs)},
		})
	}

	if hasLink {
		link := rbh.Link(e.ID, e.ParentID, e.Name)
		if hasNamespaceXattrs {
			link.Link.NamespaceXattrs = partialFromMap(e.NamespaceXattrs)
		}
		events = append(events, link)
	} else if hasNamespaceXattrs && e.Mask.Has(rbh.FieldParentID) && e.Mask.Has(rbh.FieldName) {
		events = append(events, rbh.FSEvent{
			Type: rbh.EventXattr, ID: e.ID,
			Xattr: rbh.XattrPayload{
				Namespace: &rbh.LinkPayload{
					ParentID: e.ParentID, Name: e.Name,
					NamespaceXattrs: partialFromMap(e.NamespaceXattrs),
				},
			},
		})
	}

	return events
}

// partialFromMap lifts a plain ValueMap into a PartialXattrs of set edits —
// every migrated xattr is a fresh "set", never an unset/increment, since
// full-sync has no prior state to diff against.
func partialFromMap(m *rbh.ValueMap) *rbh.PartialXattrs {
	p := rbh.NewPartialXattrs()
	m.Range(func(k string, v rbh.Value) bool {
		p.Set(k, rbh.XattrEdit{Op: rbh.XattrSet, Payload: v})
		return true
	})
	return p
}

// eventBuffer lets the Stream adapter below expose "one fsentry -> many
// fsevents" as a flat Seq[FSEvent], draining one fsentry's events before
// pulling the next from upstream — the small internal state machine
// spec.md §4.6 calls for.
type eventBuffer struct {
	upstream iterator.Seq[rbh.FSEntry]
	opt      Options
	pending  []rbh.FSEvent
	cur      rbh.FSEvent
	err      error
}

// Stream wraps an FSEntry source as a flat FSEvent iterator.
func Stream(upstream iterator.Seq[rbh.FSEntry], opt Options) iterator.Seq[rbh.FSEvent] {
	return &eventBuffer{upstream: upstream, opt: opt}
}

func (b *eventBuffer) Next(ctx context.Context) bool {
	for len(b.pending) == 0 {
		if !b.upstream.Next(ctx) {
			b.err = b.upstream.Err()
			return false
		}
		b.pending = ToEvents(b.upstream.Item(), b.opt)
	}
	b.cur, b.pending = b.pending[0], b.pending[1:]
	return true
}

func (b *eventBuffer) Item() rbh.FSEvent { return b.cur }
func (b *eventBuffer) Err() error        { return b.err }
func (b *eventBuffer) Close() error      { return b.upstream.Close() }

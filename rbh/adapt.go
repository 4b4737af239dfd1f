package rbh

import (
	"context"

	"github.com/rbh-project/rbh4/rbh/iterator"
)

// entrySeqAdapter adapts an iterator.Seq[FSEntry] to the EntryIterator
// interface backends return from Filter.
type entrySeqAdapter struct {
	seq iterator.Seq[FSEntry]
	cur FSEntry
}

// NewEntryIterator wraps a generic entry sequence as an EntryIterator.
func NewEntryIterator(seq iterator.Seq[FSEntry]) EntryIterator {
	return &entrySeqAdapter{seq: seq}
}

func (a *entrySeqAdapter) Next(ctx context.Context) bool {
	if !a.seq.Next(ctx) {
		return false
	}
	a.cur = a.seq.Item()
	return true
}
func (a *entrySeqAdapter) Entry() FSEntry  { return a.cur }
func (a *entrySeqAdapter) LastErr() error  { return a.seq.Err() }
func (a *entrySeqAdapter) Destroy() error  { return a.seq.Close() }

// eventSeqAdapter adapts an iterator.Seq[FSEvent] to EventIterator.
type eventSeqAdapter struct {
	seq iterator.Seq[FSEvent]
	cur FSEvent
}

// NewEventIterator wraps a generic event sequence as an EventIterator.
func NewEventIterator(seq iterator.Seq[FSEvent]) EventIterator {
	return &eventSeqAdapter{seq: seq}
}

func (a *eventSeqAdapter) Next(ctx context.Context) bool {
	if !a.seq.Next(ctx) {
		return false
	}
	a.cur = a.seq.Item()
	return true
}
func (a *eventSeqAdapter) Event() FSEvent  { return a.cur }
func (a *eventSeqAdapter) LastErr() error  { return a.seq.Err() }
func (a *eventSeqAdapter) Destroy() error  { return a.seq.Close() }

// groupSeqAdapter adapts an iterator.Seq[GroupRow] to GroupIterator.
type groupSeqAdapter struct {
	seq iterator.Seq[GroupRow]
	cur GroupRow
}

// NewGroupIterator wraps a generic group-row sequence as a GroupIterator.
func NewGroupIterator(seq iterator.Seq[GroupRow]) GroupIterator {
	return &groupSeqAdapter{seq: seq}
}

func (a *groupSeqAdapter) Next(ctx context.Context) bool {
	if !a.seq.Next(ctx) {
		return false
	}
	a.cur = a.seq.Item()
	return true
}
func (a *groupSeqAdapter) Row() GroupRow  { return a.cur }
func (a *groupSeqAdapter) LastErr() error { return a.seq.Err() }
func (a *groupSeqAdapter) Destroy() error { return a.seq.Close() }

// EmptyEntryIterator returns an already-exhausted EntryIterator, the shape
// a capability-less backend returns for an unsupported Filter call.
func EmptyEntryIterator() EntryIterator {
	return NewEntryIterator(iterator.Filter(iterator.Array([]FSEntry{}, 1, 0), func(FSEntry) bool { return true }))
}

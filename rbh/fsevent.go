package rbh

// EventType tags the mutation an FSEvent describes.
type EventType uint8

// Event types, per spec.md §3.
const (
	EventUpsert EventType = iota
	EventLink
	EventUnlink
	EventDelete
	EventXattr
)

func (t EventType) String() string {
	switch t {
	case EventUpsert:
		return "upsert"
	case EventLink:
		return "link"
	case EventUnlink:
		return "unlink"
	case EventDelete:
		return "delete"
	case EventXattr:
		return "xattr"
	default:
		return "unknown"
	}
}

// PartialXattrs is a one-entry-per-key map of pending xattr edits, the
// "{ op: payload }" shape described in spec.md's XATTR value semantics.
type PartialXattrs struct {
	edits map[string]XattrEdit
	order []string
}

// NewPartialXattrs returns an empty edit set.
func NewPartialXattrs() *PartialXattrs {
	return &PartialXattrs{edits: make(map[string]XattrEdit)}
}

// Set records an edit for key, preserving insertion order for deterministic
// $set/$unset/$inc document construction downstream.
func (p *PartialXattrs) Set(key string, edit XattrEdit) {
	if _, ok := p.edits[key]; !ok {
		p.order = append(p.order, key)
	}
	p.edits[key] = edit
}

// Len reports the number of pending edits.
func (p *PartialXattrs) Len() int {
	if p == nil {
		return 0
	}
	return len(p.order)
}

// Range iterates edits in insertion order.
func (p *PartialXattrs) Range(f func(key string, edit XattrEdit) bool) {
	if p == nil {
		return
	}
	for _, k := range p.order {
		if !f(k, p.edits[k]) {
			return
		}
	}
}

// UpsertPayload is the body of an UPSERT event: everything is optional
// except ID, matching the partial-fsevent shape the enricher fills in.
type UpsertPayload struct {
	HasStatX bool
	StatX    StatX

	HasSymlink bool
	Symlink    string

	InodeXattrs *PartialXattrs
}

// LinkPayload is the body of a LINK (and UNLINK) event: the namespace
// coordinate (ParentID, Name) the id is being attached to or detached from.
type LinkPayload struct {
	ParentID Id
	Name     string

	// NamespaceXattrs is only meaningful for LINK; UNLINK never carries it.
	NamespaceXattrs *PartialXattrs
}

// XattrPayload is the body of an XATTR event. When Namespace is non-nil the
// edits apply to that (parent, name)'s namespace xattrs; otherwise they
// apply to the inode's own xattrs.
type XattrPayload struct {
	Xattrs    *PartialXattrs
	Namespace *LinkPayload
}

// FSEvent is one mutation emitted by a source, consumed (after enrichment)
// by a target backend's Update. Exactly one of the payload fields is valid,
// selected by Type.
type FSEvent struct {
	Type EventType
	ID   Id

	Upsert UpsertPayload
	Link   LinkPayload
	Xattr  XattrPayload

	// RawXattrs carries unresolved enrichment *requests* (the reserved
	// "rbh-fsevents" key's payload) before the enricher pipeline has run.
	// Populated only on events fresh off a source adapter.
	RawXattrs *ValueMap
}

// NeedsEnrichment reports whether e still carries unresolved enrichment
// requests and must be passed through the enricher before reaching a target.
func (e FSEvent) NeedsEnrichment() bool {
	return e.RawXattrs != nil && e.RawXattrs.Len() > 0
}

// Upsert builds a plain UPSERT event for id.
func Upsert(id Id) FSEvent { return FSEvent{Type: EventUpsert, ID: id} }

// Link builds a LINK event attaching id to (parentID, name).
func Link(id, parentID Id, name string) FSEvent {
	return FSEvent{Type: EventLink, ID: id, Link: LinkPayload{ParentID: parentID, Name: name}}
}

// Unlink builds an UNLINK event detaching id from (parentID, name).
func Unlink(id, parentID Id, name string) FSEvent {
	return FSEvent{Type: EventUnlink, ID: id, Link: LinkPayload{ParentID: parentID, Name: name}}
}

// Delete builds a DELETE event for id.
func Delete(id Id) FSEvent { return FSEvent{Type: EventDelete, ID: id} }

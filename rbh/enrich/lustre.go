package enrich

import (
	"context"

	"github.com/rbh-project/rbh4/internal/rbherrors"
	"github.com/rbh-project/rbh4/rbh"
)

// LustreExtension is the boundary interface spec.md draws around
// Lustre-specific enrichment: fid→path translation and HSM/layout xattr
// fill-in. Grounded on
// original_source/rbh-fsevents/src/enrichers/posix/lustre.c's
// lustre_enrich_xattr/enrich_path, whose fid2path + HSM state logic calls
// into liblustreapi — a C library with no Go binding in this corpus or the
// broader ecosystem, so it is left as an interface a real deployment
// implements via cgo rather than faked here.
type LustreExtension interface {
	// FidToPath resolves id's Lustre fid to a path relative to the mount,
	// to be joined with the entry's name by the caller.
	FidToPath(ctx context.Context, fd int, id rbh.Id) (string, error)
	// Layout fills HSM state and striping xattrs for id.
	Layout(ctx context.Context, fd int, id rbh.Id) (*rbh.ValueMap, error)
}

// lustreAdapter wraps a LustreExtension as an enrich.Extension, claiming
// only the "lustre" and "path" request keys and returning claimed=false
// (ENOTSUP, in the original's terms) for everything else.
type lustreAdapter struct {
	impl LustreExtension
}

// NewLustreExtension adapts impl to the Extension interface the Enricher
// dispatches to.
func NewLustreExtension(impl LustreExtension) Extension {
	return &lustreAdapter{impl: impl}
}

func (a *lustreAdapter) Enrich(ctx context.Context, fd int, ev *rbh.FSEvent, key string) (bool, error) {
	switch key {
	case "path":
		path, err := a.impl.FidToPath(ctx, fd, ev.ID)
		if err != nil {
			return false, rbherrors.Transient("lustre-fid2path", ev.ID.String(), err)
		}
		ev.Link.NamespaceXattrs = ensurePartial(ev.Link.NamespaceXattrs)
		ev.Link.NamespaceXattrs.Set("path", rbh.XattrEdit{Op: rbh.XattrSet, Payload: rbh.NewString(path)})
		return true, nil
	case "lustre":
		layout, err := a.impl.Layout(ctx, fd, ev.ID)
		if err != nil {
			return false, rbherrors.Transient("lustre-layout", ev.ID.String(), err)
		}
		layout.Range(func(k string, v rbh.Value) bool {
			ev.Upsert.InodeXattrs.Set(k, rbh.XattrEdit{Op: rbh.XattrSet, Payload: v})
			return true
		})
		return true, nil
	default:
		return false, nil
	}
}

func ensurePartial(p *rbh.PartialXattrs) *rbh.PartialXattrs {
	if p == nil {
		return rbh.NewPartialXattrs()
	}
	return p
}

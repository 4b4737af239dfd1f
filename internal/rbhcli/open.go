// Package rbhcli holds the small amount of plumbing every cmd/rbh-* driver
// shares: URI-to-backend dispatch and the exit-code convention spec.md §6
// names. Grounded on the teacher's cmd package (cmd.NewFsDir's remote
// dispatch, cmd.Run's error-to-exit-code translation), reshaped around
// rbh.Backend instead of fs.Fs.
package rbhcli

import (
	"context"
	"fmt"

	"github.com/rbh-project/rbh4/backend/boltfile"
	"github.com/rbh-project/rbh4/backend/mongo"
	"github.com/rbh-project/rbh4/rbh"
	"github.com/rbh-project/rbh4/rbh/config"
)

// Exit codes, per spec.md §6.
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 64
)

// OpenBackend parses uriStr (rbh:backend:fsname[#fragment]) and dials the
// named backend, optionally overlaying connStr (a comma-separated
// key=value connection string) on top of its defaults.
func OpenBackend(ctx context.Context, uriStr, connStr string) (rbh.Backend, config.URI, error) {
	uri, err := config.ParseURI(uriStr)
	if err != nil {
		return nil, config.URI{}, err
	}
	opts, err := config.ParseConnectionString(connStr)
	if err != nil {
		return nil, uri, err
	}

	switch uri.Backend {
	case "mongo":
		cfg := mongo.Config{URI: "mongodb://localhost:27017", Database: uri.FSName}
		if v, ok := opts.Get("uri"); ok {
			cfg.URI = v
		}
		b, err := mongo.Open(ctx, uri.FSName, cfg)
		return b, uri, err
	case "boltfile":
		b, err := boltfile.Open(uri.FSName, uri.FSName)
		return b, uri, err
	default:
		return nil, uri, fmt.Errorf("rbhcli: unknown backend %q", uri.Backend)
	}
}

// Branch narrows b to the subtree uri's fragment names, if any.
func Branch(ctx context.Context, b rbh.Backend, uri config.URI) (rbh.Backend, error) {
	if uri.FragmentID == "" && uri.FragmentPath == "" {
		return b, nil
	}
	if uri.FragmentID == "" {
		return nil, fmt.Errorf("rbhcli: path-form fragments require resolving a path to an id first")
	}
	id, err := rbh.ParseID(uri.FragmentID)
	if err != nil {
		return nil, err
	}
	return b.Branch(ctx, id)
}

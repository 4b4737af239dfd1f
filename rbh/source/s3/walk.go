// Package s3 lists an S3 bucket as an fsentry source, the peer of
// rbh/source/posix for the "S3 bucket" origin spec.md §1 names alongside
// POSIX/Lustre/event-stream. Grounded on the teacher's backend/s3/s3.go,
// which pages ListObjectsV2 through a bucketLister abstraction; this
// adapter keeps the same paginated-list shape but feeds pages into the
// rbh.EntryIterator contract instead of rclone's fs.Object model.
package s3

import (
	"context"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/rbh-project/rbh4/internal/rbherrors"
	"github.com/rbh-project/rbh4/rbh"
)

// Options configures a bucket listing.
type Options struct {
	Bucket string
	Prefix string
	Region string
}

// Walker pages through ListObjectsV2 and synthesizes one UPSERT+LINK pair
// of fsentries per key, plus the implicit "directory" prefixes a key's path
// components imply (S3 has no real directories, so these are synthesized
// the same way rclone's local-from-remote directory bridging works).
type Walker struct {
	client *s3.S3
	opt    Options

	pending []rbh.FSEntry
	token   *string
	done    bool
	started bool

	seenDirs map[string]rbh.Id
	cur      rbh.FSEntry
	err      error
}

// NewWalker opens an AWS session for opt.Region and returns a ready walker.
func NewWalker(opt Options) (*Walker, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(opt.Region)})
	if err != nil {
		return nil, rbherrors.Resource("s3-session", err)
	}
	return &Walker{
		client:   s3.New(sess),
		opt:      opt,
		seenDirs: map[string]rbh.Id{"": rbh.RootID},
	}, nil
}

func keyToID(bucket, key string) (rbh.Id, error) {
	return rbh.NewID(rbh.OriginS3, []byte(bucket+"/"+key))
}

// pathXattr builds the "path" namespace xattr every link carries, the
// bucket-relative key (or directory prefix) rbh-find's -path predicate and
// rbh-gc's dry-run report expect to find.
func pathXattr(key string) *rbh.ValueMap {
	m := rbh.NewValueMap()
	m.Set("path", rbh.NewString("/"+key))
	return m
}

// ensureDirs synthesizes directory fsentries for every path component of
// key that hasn't been emitted yet, returning the immediate parent's id.
func (w *Walker) ensureDirs(dir string) (rbh.Id, []rbh.FSEntry) {
	if id, ok := w.seenDirs[dir]; ok {
		return id, nil
	}
	parentDir := path.Dir(dir)
	if parentDir == "." {
		parentDir = ""
	}
	parentID, extra := w.ensureDirs(parentDir)

	id, err := keyToID(w.opt.Bucket, dir+"/")
	if err != nil {
		return parentID, extra
	}
	w.seenDirs[dir] = id

	entry := rbh.FSEntry{
		Mask:            rbh.FieldID | rbh.FieldParentID | rbh.FieldName | rbh.FieldStatX | rbh.FieldNamespaceXattrs,
		ID:              id,
		ParentID:        parentID,
		Name:            path.Base(dir),
		StatX:           rbh.StatX{Mask: rbh.StatXType, Type: rbh.FileTypeDirectory},
		NamespaceXattrs: pathXattr(dir),
	}
	return id, append(extra, entry)
}

func (w *Walker) fetchPage(ctx context.Context) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(w.opt.Bucket),
		Prefix: aws.String(w.opt.Prefix),
	}
	if w.token != nil {
		input.ContinuationToken = w.token
	}
	out, err := w.client.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		return rbherrors.Transient("s3-list", w.opt.Bucket, err)
	}

	for _, obj := range out.Contents {
		key := aws.StringValue(obj.Key)
		if strings.HasSuffix(key, "/") {
			continue // directory marker object, implied by ensureDirs instead
		}
		dir := path.Dir(key)
		if dir == "." {
			dir = ""
		}
		parentID, dirs := w.ensureDirs(dir)
		w.pending = append(w.pending, dirs...)

		id, err := keyToID(w.opt.Bucket, key)
		if err != nil {
			continue
		}
		w.pending = append(w.pending, rbh.FSEntry{
			Mask:     rbh.FieldID | rbh.FieldParentID | rbh.FieldName | rbh.FieldStatX | rbh.FieldNamespaceXattrs,
			ID:       id,
			ParentID: parentID,
			Name:     path.Base(key),
			StatX: rbh.StatX{
				Mask: rbh.StatXType | rbh.StatXSize | rbh.StatXMtime,
				Type: rbh.FileTypeRegular,
				Size: uint64(aws.Int64Value(obj.Size)),
				Mtime: rbh.Timestamp{
					Sec: aws.TimeValue(obj.LastModified).Unix(),
				},
			},
			NamespaceXattrs: pathXattr(key),
		})
	}

	if aws.BoolValue(out.IsTruncated) {
		w.token = out.NextContinuationToken
	} else {
		w.done = true
	}
	return nil
}

// Next advances the walker, pulling another ListObjectsV2 page whenever the
// pending buffer drains.
func (w *Walker) Next(ctx context.Context) bool {
	for len(w.pending) == 0 {
		if w.done && w.started {
			return false
		}
		w.started = true
		if err := w.fetchPage(ctx); err != nil {
			w.err = err
			return false
		}
		if len(w.pending) == 0 && w.done {
			return false
		}
	}
	w.cur, w.pending = w.pending[0], w.pending[1:]
	return true
}

// Item returns the entry Next just produced.
func (w *Walker) Item() rbh.FSEntry { return w.cur }

// Err returns the first error encountered.
func (w *Walker) Err() error { return w.err }

// Close is a no-op: the S3 client holds no per-walker resources to release.
func (w *Walker) Close() error { return nil }

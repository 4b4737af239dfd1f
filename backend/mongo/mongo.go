package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rbh-project/rbh4/internal/rbherrors"
	"github.com/rbh-project/rbh4/rbh"
)

// Backend is a MongoDB-backed rbh.Backend: the document-store target
// spec.md §4.3 describes, one document per inode with an embedded array of
// namespace links.
type Backend struct {
	name       string
	client     *mongo.Client
	entries    *mongo.Collection
	sources    *mongo.Collection
	branchRoot rbh.Id
}

// Config configures a connection.
type Config struct {
	URI      string
	Database string
}

// Open dials uri and returns a ready Backend named name.
func Open(ctx context.Context, name string, cfg Config) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, rbherrors.Resource("mongo-connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, rbherrors.Resource("mongo-ping", err)
	}
	db := client.Database(cfg.Database)
	return &Backend{
		name:    name,
		client:  client,
		entries: db.Collection("entries"),
		sources: db.Collection("sources"),
	}, nil
}

// Name implements rbh.Backend.
func (b *Backend) Name() string { return b.name }

// Capabilities implements rbh.Backend.
func (b *Backend) Capabilities() rbh.Capability {
	return rbh.CapFilter | rbh.CapUpdate | rbh.CapBranch | rbh.CapSync
}

// branchMatch restricts a query to b.branchRoot's subtree via the
// materialized ancestors array each namespace link carries (see
// applyLink's ancestor computation in update.go); the zero root matches
// everything.
func (b *Backend) branchMatch() bson.M {
	if b.branchRoot.IsRoot() {
		return bson.M{}
	}
	root := idToBinary(b.branchRoot)
	return bson.M{"$or": bson.A{
		bson.M{"_id": root},
		bson.M{"ns.ancestors": root},
	}}
}

// Filter implements rbh.Backend via an aggregation pipeline: an optional
// $unwind of the namespace array (when f reads a namespace-scoped field, or
// when the projection includes all of parent id, name and namespace xattrs;
// a projection naming only some of them does not unwind), a $match, an
// optional $sort, then $skip/$limit. There is no $project stage: the
// projection is applied while decoding each document (entryFromDoc).
func (b *Backend) Filter(ctx context.Context, f rbh.Filter, opts rbh.FilterOptions, proj rbh.Projection) (rbh.EntryIterator, error) {
	matchBSON, err := ToBSON(f)
	if err != nil {
		return nil, rbherrors.Validation("mongo-filter-translate", err)
	}

	pipeline := bson.A{}
	branch := b.branchMatch()
	if len(branch) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: branch}})
	}

	unwind := needsUnwind(f) || proj.Fields.Has(rbh.FieldParentID|rbh.FieldName|rbh.FieldNamespaceXattrs)
	if unwind {
		pipeline = append(pipeline, bson.D{{Key: "$unwind", Value: bson.M{
			"path": "$ns", "preserveNullAndEmptyArrays": true,
		}}})
	}
	if len(matchBSON) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: matchBSON}})
	}
	if len(opts.SortList) > 0 {
		sortDoc := bson.D{}
		for _, key := range opts.SortList {
			dir := 1
			if !key.Ascending {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: fieldPath(key.Field), Value: dir})
		}
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sortDoc}})
	}
	if opts.Skip > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: opts.Skip}})
	}
	if opts.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: opts.Limit}})
	}

	cur, err := b.entries.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, rbherrors.Protocol("mongo-aggregate", err)
	}
	return &cursorIterator{cur: cur, proj: proj, unwound: unwind}, nil
}

// cursorIterator adapts a mongo.Cursor (already aggregated down to one
// logical namespace link per document once unwound) into rbh.EntryIterator.
type cursorIterator struct {
	cur     *mongo.Cursor
	proj    rbh.Projection
	unwound bool
	entry   rbh.FSEntry
	err     error
}

func (c *cursorIterator) Next(ctx context.Context) bool {
	if !c.cur.Next(ctx) {
		c.err = c.cur.Err()
		return false
	}
	var raw bson.M
	if err := c.cur.Decode(&raw); err != nil {
		c.err = err
		return false
	}
	doc, err := decodeFlexibleDoc(raw, c.unwound)
	if err != nil {
		c.err = err
		return false
	}
	entries := entryFromDoc(doc, c.proj)
	if len(entries) == 0 {
		return c.Next(ctx)
	}
	c.entry = entries[0]
	return true
}

func (c *cursorIterator) Entry() rbh.FSEntry { return c.entry }
func (c *cursorIterator) LastErr() error     { return c.err }
func (c *cursorIterator) Destroy() error     { return c.cur.Close(context.Background()) }

// decodeFlexibleDoc rebuilds an entryDoc from a raw aggregation result,
// which after $unwind carries a single ns sub-document under "ns" instead
// of an array.
func decodeFlexibleDoc(raw bson.M, unwound bool) (entryDoc, error) {
	buf, err := bson.Marshal(raw)
	if err != nil {
		return entryDoc{}, err
	}
	if !unwound {
		var d entryDoc
		return d, bson.Unmarshal(buf, &d)
	}

	var flat struct {
		ID          primitive.Binary `bson:"_id"`
		Origin      uint8            `bson:"origin"`
		StatX       *statxDoc        `bson:"statx,omitempty"`
		Symlink     *string          `bson:"symlink,omitempty"`
		InodeXattrs bson.M           `bson:"xattrs,omitempty"`
		NS          *nsLinkDoc       `bson:"ns,omitempty"`
	}
	if err := bson.Unmarshal(buf, &flat); err != nil {
		return entryDoc{}, err
	}
	d := entryDoc{
		ID: flat.ID, Origin: flat.Origin, StatX: flat.StatX,
		Symlink: flat.Symlink, InodeXattrs: flat.InodeXattrs,
	}
	if flat.NS != nil {
		d.Namespace = []nsLinkDoc{*flat.NS}
	}
	return d, nil
}

// Branch implements rbh.Backend.
func (b *Backend) Branch(ctx context.Context, id rbh.Id) (rbh.Backend, error) {
	return &Backend{name: b.name, client: b.client, entries: b.entries, sources: b.sources, branchRoot: id}, nil
}

// Root implements rbh.Backend: the entry whose id is branchRoot (or the
// zero pseudo-root when unset).
func (b *Backend) Root(ctx context.Context, proj rbh.Projection) (rbh.FSEntry, error) {
	if b.branchRoot.IsRoot() {
		return rbh.FSEntry{Mask: rbh.FieldID, ID: rbh.RootID}, nil
	}
	var d entryDoc
	err := b.entries.FindOne(ctx, bson.M{"_id": idToBinary(b.branchRoot)}).Decode(&d)
	if err != nil {
		return rbh.FSEntry{}, rbherrors.Transient("mongo-root", b.branchRoot.String(), err)
	}
	entries := entryFromDoc(d, proj)
	if len(entries) == 0 {
		return rbh.FSEntry{}, rbherrors.NotSupported("root-entry-not-found")
	}
	return entries[0], nil
}

// GetInfo implements rbh.Backend via a $group aggregation over statx.size.
func (b *Backend) GetInfo(ctx context.Context, flags rbh.InfoFlags) (rbh.InfoReport, error) {
	report := rbh.InfoReport{BackendName: b.name, Capabilities: b.Capabilities()}
	if flags&(rbh.InfoCount|rbh.InfoAvgSize|rbh.InfoMinSize|rbh.InfoMaxSize) == 0 {
		return report, nil
	}

	pipeline := bson.A{
		bson.D{{Key: "$match", Value: bson.M{"statx.type": uint16(rbh.FileTypeRegular)}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"count":   bson.M{"$sum": 1},
			"avgSize": bson.M{"$avg": "$statx.size"},
			"minSize": bson.M{"$min": "$statx.size"},
			"maxSize": bson.M{"$max": "$statx.size"},
		}}},
	}
	cur, err := b.entries.Aggregate(ctx, pipeline)
	if err != nil {
		return report, rbherrors.Protocol("mongo-getinfo", err)
	}
	defer cur.Close(ctx)

	if cur.Next(ctx) {
		var row struct {
			Count   int64   `bson:"count"`
			AvgSize float64 `bson:"avgSize"`
			MinSize uint64  `bson:"minSize"`
			MaxSize uint64  `bson:"maxSize"`
		}
		if err := cur.Decode(&row); err != nil {
			return report, err
		}
		report.Count, report.AvgSize, report.MinSize, report.MaxSize = row.Count, row.AvgSize, row.MinSize, row.MaxSize
	}
	return report, nil
}

// InsertSource implements rbh.Backend.
func (b *Backend) InsertSource(ctx context.Context, info *rbh.ValueMap) error {
	_, err := b.sources.InsertOne(ctx, xattrsToBSON(info))
	if err != nil {
		return rbherrors.Protocol("mongo-insert-source", err)
	}
	return nil
}

// Destroy implements rbh.Backend.
func (b *Backend) Destroy() error {
	return b.client.Disconnect(context.Background())
}

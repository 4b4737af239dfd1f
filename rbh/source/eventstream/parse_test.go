package eventstream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbh-project/rbh4/rbh"
)

const sampleStream = `
id: {origin: posix, hex: "deadbeef"}
type: upsert
upsert:
  statx: {size: 1024, type: regular}
  xattrs:
    user.tag: {s: "hot"}
unrecognized_future_key: true
---
id: {origin: posix, hex: "deadbeef"}
type: link
link:
  parent: {origin: posix, hex: ""}
  name: "a"
`

func TestDecoderParsesUpsertAndLink(t *testing.T) {
	dec := NewDecoder(strings.NewReader(sampleStream))

	require.True(t, dec.Next())
	ev := dec.Event()
	assert.Equal(t, rbh.EventUpsert, ev.Type)
	assert.True(t, ev.Upsert.HasStatX)
	assert.Equal(t, uint64(1024), ev.Upsert.StatX.Size)
	assert.Equal(t, 1, ev.Upsert.InodeXattrs.Len())

	require.True(t, dec.Next())
	ev = dec.Event()
	assert.Equal(t, rbh.EventLink, ev.Type)
	assert.Equal(t, "a", ev.Link.Name)
	assert.True(t, ev.Link.ParentID.IsRoot())

	require.False(t, dec.Next())
	require.NoError(t, dec.Err())
}

func TestDecoderRejectsUnknownType(t *testing.T) {
	dec := NewDecoder(strings.NewReader("id: {origin: posix, hex: \"ab\"}\ntype: frobnicate\n"))
	require.False(t, dec.Next())
	require.Error(t, dec.Err())
}

func TestDecoderParsesEnrichmentRequest(t *testing.T) {
	doc := `
id: {origin: posix, hex: "ab"}
type: upsert
rbh-fsevents:
  statx: [size, mtime]
  symlink: true
  xattrs: [user.a, user.b]
`
	dec := NewDecoder(strings.NewReader(doc))
	require.True(t, dec.Next())
	ev := dec.Event()
	require.True(t, ev.NeedsEnrichment())
	v, ok := ev.RawXattrs.Get("statx")
	require.True(t, ok)
	mask := rbh.StatXMask(v.Uint32())
	assert.True(t, mask.Has(rbh.StatXSize))
	assert.True(t, mask.Has(rbh.StatXMtime))
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleStringOrdersKeys(t *testing.T) {
	assert.Equal(t, "", Simple(nil).String())
	assert.Equal(t, "config1='one'", Simple{"config1": "one"}.String())
	assert.Equal(t, "a='1',b='2'", Simple{"b": "2", "a": "1"}.String())
}

func TestMapGetFallsThroughPriorities(t *testing.T) {
	m := New()
	low := Simple{"a": "default"}
	high := Simple{"a": "override"}
	m.AddGetter(low, PriorityDefault)
	m.AddGetter(high, PriorityConfig)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "override", v)

	v, ok = m.GetPriority("a", PriorityNormal)
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func TestMapSetWritesEverySetter(t *testing.T) {
	m := New()
	s1, s2 := Simple{}, Simple{}
	m.AddSetter(s1).AddSetter(s2)
	m.Set("k", "v")
	assert.Equal(t, "v", s1["k"])
	assert.Equal(t, "v", s2["k"])
}

func TestMapClearGetters(t *testing.T) {
	m := New()
	m.AddGetter(Simple{"a": "1"}, PriorityNormal)
	m.AddGetter(Simple{"a": "2"}, PriorityConfig)
	m.ClearGetters(PriorityConfig)
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

type testOptions struct {
	FSName  string `config:"fsname"`
	Timeout int
	Secure  bool
}

func TestConfigstructSetAppliesMatchingKeys(t *testing.T) {
	opts := &testOptions{}
	m := Simple{"fsname": "mycluster", "timeout": "30", "secure": "true"}
	require.NoError(t, Set(m, opts))
	assert.Equal(t, "mycluster", opts.FSName)
	assert.Equal(t, 30, opts.Timeout)
	assert.True(t, opts.Secure)
}

func TestConfigstructSetLeavesUnmatchedFieldsAtZero(t *testing.T) {
	opts := &testOptions{Timeout: 5}
	require.NoError(t, Set(Simple{}, opts))
	assert.Equal(t, 5, opts.Timeout)
}

func TestItemsRequiresPointerToStruct(t *testing.T) {
	_, err := Items(nil)
	assert.Error(t, err)
	_, err = Items(new(int))
	assert.Error(t, err)
}

func TestParseURISplitsSchemeBackendFSNameAndFragment(t *testing.T) {
	u, err := ParseURI("rbh:mongo:mycluster#/some/path")
	require.NoError(t, err)
	assert.Equal(t, "rbh", u.Scheme)
	assert.Equal(t, "mongo", u.Backend)
	assert.Equal(t, "mycluster", u.FSName)
	assert.Equal(t, "/some/path", u.FragmentPath)
	assert.Equal(t, "", u.FragmentID)
}

func TestParseURIWithBracketedIDFragment(t *testing.T) {
	u, err := ParseURI("rbh:boltfile:/var/db#[deadbeef]")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", u.FragmentID)
	assert.Equal(t, "", u.FragmentPath)
}

func TestParseURIWithoutFragment(t *testing.T) {
	u, err := ParseURI("rbh:posix:/mnt/lustre")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/lustre", u.FSName)
	assert.Equal(t, "", u.FragmentPath)
}

func TestParseURIRejectsWrongScheme(t *testing.T) {
	_, err := ParseURI("other:mongo:db")
	assert.Error(t, err)
}

func TestParseURIRejectsMissingFSName(t *testing.T) {
	_, err := ParseURI("rbh:mongo:")
	assert.Error(t, err)
}

func TestURIStringRoundTrips(t *testing.T) {
	u := URI{Scheme: "rbh", Backend: "mongo", FSName: "db", FragmentPath: "/a/b"}
	assert.Equal(t, "rbh:mongo:db#/a/b", u.String())
}

func TestParseConnectionStringSplitsKeyValuePairs(t *testing.T) {
	m, err := ParseConnectionString("authSource=admin,tls=true")
	require.NoError(t, err)
	assert.Equal(t, Simple{"authSource": "admin", "tls": "true"}, m)
}

func TestParseConnectionStringRejectsMalformedOption(t *testing.T) {
	_, err := ParseConnectionString("nokeyvalue")
	assert.Error(t, err)
}

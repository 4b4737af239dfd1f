package rbh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDRoundTripsThroughString(t *testing.T) {
	id, err := NewID(OriginPOSIX, []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equal(parsed))
}

func TestParseIDRejectsUnknownOrigin(t *testing.T) {
	_, err := ParseID("bogus:deadbeef")
	assert.Error(t, err)
}

func TestParseIDRejectsMalformedHex(t *testing.T) {
	_, err := ParseID("posix:zz")
	assert.Error(t, err)
}

func TestParseIDRejectsMissingSeparator(t *testing.T) {
	_, err := ParseID("deadbeef")
	assert.Error(t, err)
}

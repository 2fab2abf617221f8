package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validUnixAuth() *UnixAuth {
	return &UnixAuth{
		Stamp:       uint32(time.Now().Unix()),
		MachineName: "testhost",
		UID:         1000,
		GID:         1000,
		GIDs:        []uint32{4, 24, 27, 30},
	}
}

func TestBuildAndParseUnixAuthRoundTrip(t *testing.T) {
	original := validUnixAuth()
	body, err := BuildUnixAuth(original)
	require.NoError(t, err)

	parsed, err := ParseUnixAuth(body)
	require.NoError(t, err)
	assert.Equal(t, original.Stamp, parsed.Stamp)
	assert.Equal(t, original.MachineName, parsed.MachineName)
	assert.Equal(t, original.UID, parsed.UID)
	assert.Equal(t, original.GID, parsed.GID)
	assert.Equal(t, original.GIDs, parsed.GIDs)
}

func TestBuildUnixAuthRejectsExcessiveGroups(t *testing.T) {
	auth := validUnixAuth()
	auth.GIDs = make([]uint32, 17)
	_, err := BuildUnixAuth(auth)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many gids")
}

func TestParseUnixAuthRejectsEmptyBody(t *testing.T) {
	_, err := ParseUnixAuth([]byte{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestParseUnixAuthRootCredentials(t *testing.T) {
	auth := &UnixAuth{Stamp: 1, MachineName: "testhost", UID: 0, GID: 0, GIDs: []uint32{}}
	body, err := BuildUnixAuth(auth)
	require.NoError(t, err)

	parsed, err := ParseUnixAuth(body)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), parsed.UID)
	assert.Equal(t, uint32(0), parsed.GID)
	assert.Empty(t, parsed.GIDs)
}

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRecordRoundTrip(t *testing.T) {
	body := []byte("hello rpc")
	framed := FrameRecord(body)

	r := NewReassembler()
	records, err := r.Feed(framed)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, body, records[0])
}

func TestFrameRecordSplitAcrossFeeds(t *testing.T) {
	framed := FrameRecord([]byte("0123456789abcdef"))

	r := NewReassembler()
	first, err := r.Feed(framed[:6])
	require.NoError(t, err)
	assert.Empty(t, first)

	second, err := r.Feed(framed[6:])
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, []byte("0123456789abcdef"), second[0])
}

package transport

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marker(last bool, length uint32) []byte {
	v := length
	if last {
		v |= lastFragmentBit
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

func TestReassemblerSingleFragmentRecord(t *testing.T) {
	t.Parallel()

	r := NewReassembler()
	body := []byte("hello world!")
	input := append(marker(true, uint32(len(body))), body...)

	records, err := r.Feed(input)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, body, records[0])
}

func TestReassemblerSplitAcrossReads(t *testing.T) {
	t.Parallel()

	r := NewReassembler()
	body := make([]byte, 8)
	for i := range body {
		body[i] = byte(i)
	}
	full := append(marker(true, 8), body...)

	records, err := r.Feed(full[:4])
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = r.Feed(full[4:])
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, body, records[0])
}

func TestReassemblerMultiFragmentRecord(t *testing.T) {
	t.Parallel()

	r := NewReassembler()
	frag1 := []byte("abc")
	frag2 := []byte("defgh")
	input := append(marker(false, uint32(len(frag1))), frag1...)
	input = append(input, marker(true, uint32(len(frag2)))...)
	input = append(input, frag2...)

	records, err := r.Feed(input)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "abcdefgh", string(records[0]))
}

func TestReassemblerTwoRecordsInOneRead(t *testing.T) {
	t.Parallel()

	r := NewReassembler()
	rec1 := []byte("first")
	rec2 := []byte("second-record")
	input := append(marker(true, uint32(len(rec1))), rec1...)
	input = append(input, marker(true, uint32(len(rec2)))...)
	input = append(input, rec2...)

	records, err := r.Feed(input)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, rec1, records[0])
	assert.Equal(t, rec2, records[1])
}

func TestReassemblerRejectsOversizedRecord(t *testing.T) {
	t.Parallel()

	r := NewReassembler()
	input := marker(true, NFSMaxPacket+1)

	records, err := r.Feed(input)
	require.Error(t, err)
	assert.Empty(t, records)

	// State resets after a fatal error; the next record parses cleanly.
	body := []byte("ok")
	next := append(marker(true, uint32(len(body))), body...)
	records, err = r.Feed(next)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, body, records[0])
}

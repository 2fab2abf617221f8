package mount

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreXDR "github.com/marmos91/nfsmount/internal/xdr"
)

func TestEncodeDecodeDirPath(t *testing.T) {
	encoded := EncodeDirPath("/export/data")
	r := bytes.NewReader(encoded)
	path, err := coreXDR.DecodeString(r)
	require.NoError(t, err)
	assert.Equal(t, "/export/data", path)
}

func encodeMountResult(t *testing.T, status uint32, fh []byte, flavors []uint32) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, coreXDR.WriteUint32(buf, status))
	if status != MountOK {
		return buf.Bytes()
	}
	require.NoError(t, coreXDR.WriteXDROpaque(buf, fh))
	for _, f := range flavors {
		require.NoError(t, coreXDR.WriteBool(buf, true))
		require.NoError(t, coreXDR.WriteUint32(buf, f))
	}
	require.NoError(t, coreXDR.WriteBool(buf, false))
	return buf.Bytes()
}

func TestDecodeMountResultOK(t *testing.T) {
	fh := []byte{1, 2, 3, 4}
	data := encodeMountResult(t, MountOK, fh, []uint32{1, 6})

	res, err := DecodeMountResult(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(MountOK), res.Status)
	assert.Equal(t, fh, res.FileHandle)
	assert.Equal(t, []uint32{1, 6}, res.AuthFlavors)
}

func TestDecodeMountResultFailure(t *testing.T) {
	data := encodeMountResult(t, 13, nil, nil) // MNT3ERR_ACCES
	res, err := DecodeMountResult(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(13), res.Status)
	assert.Nil(t, res.FileHandle)
}

func TestDecodeMountListRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	for _, e := range []MountEntry{{Hostname: "client-a", Directory: "/export"}, {Hostname: "client-b", Directory: "/export/b"}} {
		require.NoError(t, coreXDR.WriteBool(buf, true))
		require.NoError(t, coreXDR.WriteXDRString(buf, e.Hostname))
		require.NoError(t, coreXDR.WriteXDRString(buf, e.Directory))
	}
	require.NoError(t, coreXDR.WriteBool(buf, false))

	entries, err := DecodeMountList(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "client-a", entries[0].Hostname)
	assert.Equal(t, "/export/b", entries[1].Directory)
}

func TestDecodeExportsNested(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, coreXDR.WriteBool(buf, true))
	require.NoError(t, coreXDR.WriteXDRString(buf, "/export"))
	require.NoError(t, coreXDR.WriteBool(buf, true))
	require.NoError(t, coreXDR.WriteXDRString(buf, "10.0.0.0/24"))
	require.NoError(t, coreXDR.WriteBool(buf, false))

	require.NoError(t, coreXDR.WriteBool(buf, false))

	exports, err := DecodeExports(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "/export", exports[0].Directory)
	assert.Equal(t, []string{"10.0.0.0/24"}, exports[0].Groups)
}

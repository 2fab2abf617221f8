package mount

import (
	"bytes"
	"fmt"

	coreXDR "github.com/marmos91/nfsmount/internal/xdr"
)

// MountResult is the decoded fhstatus3 reply to MNT (RFC 1813 Appendix I):
// a status code and, only on MountOK, the root file handle and the auth
// flavors the server is willing to accept for it.
type MountResult struct {
	Status      uint32
	FileHandle  []byte
	AuthFlavors []uint32
}

// EncodeDirPath encodes the dirpath argument MNT, UMNT, and their
// relatives all take: a single XDR string.
func EncodeDirPath(path string) []byte {
	buf := &bytes.Buffer{}
	_ = coreXDR.WriteXDRString(buf, path)
	return buf.Bytes()
}

// DecodeMountResult decodes an MNT reply. The file handle and flavor list
// are only present when Status == MountOK.
func DecodeMountResult(data []byte) (*MountResult, error) {
	r := bytes.NewReader(data)

	status, err := coreXDR.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode mount status: %w", err)
	}
	res := &MountResult{Status: status}
	if status != MountOK {
		return res, nil
	}

	fh, err := coreXDR.DecodeOpaque(r)
	if err != nil {
		return nil, fmt.Errorf("decode mount file handle: %w", err)
	}
	res.FileHandle = fh

	for {
		more, err := coreXDR.DecodeBool(r)
		if err != nil {
			return nil, fmt.Errorf("decode auth flavor list: %w", err)
		}
		if !more {
			break
		}
		flavor, err := coreXDR.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("decode auth flavor: %w", err)
		}
		res.AuthFlavors = append(res.AuthFlavors, flavor)
	}
	return res, nil
}

// MountEntry is one entry in a DUMP reply's mountlist: a client host and
// the directory it has mounted.
type MountEntry struct {
	Hostname  string
	Directory string
}

// DecodeMountList decodes a DUMP reply's XDR optional-data linked list.
func DecodeMountList(data []byte) ([]MountEntry, error) {
	r := bytes.NewReader(data)
	var entries []MountEntry
	for {
		more, err := coreXDR.DecodeBool(r)
		if err != nil {
			return nil, fmt.Errorf("decode mountlist discriminant: %w", err)
		}
		if !more {
			return entries, nil
		}
		host, err := coreXDR.DecodeString(r)
		if err != nil {
			return nil, fmt.Errorf("decode mountlist hostname: %w", err)
		}
		dir, err := coreXDR.DecodeString(r)
		if err != nil {
			return nil, fmt.Errorf("decode mountlist directory: %w", err)
		}
		entries = append(entries, MountEntry{Hostname: host, Directory: dir})
	}
}

// Export is one entry in an EXPORT reply's linked list: a directory and
// the client groups/hosts authorized to mount it.
type Export struct {
	Directory string
	Groups    []string
}

// DecodeExports decodes an EXPORT reply's nested XDR optional-data lists:
// one list of exported directories, each carrying its own list of groups.
func DecodeExports(data []byte) ([]Export, error) {
	r := bytes.NewReader(data)
	var exports []Export
	for {
		more, err := coreXDR.DecodeBool(r)
		if err != nil {
			return nil, fmt.Errorf("decode exports discriminant: %w", err)
		}
		if !more {
			return exports, nil
		}
		dir, err := coreXDR.DecodeString(r)
		if err != nil {
			return nil, fmt.Errorf("decode export directory: %w", err)
		}

		var groups []string
		for {
			gmore, err := coreXDR.DecodeBool(r)
			if err != nil {
				return nil, fmt.Errorf("decode export groups discriminant: %w", err)
			}
			if !gmore {
				break
			}
			g, err := coreXDR.DecodeString(r)
			if err != nil {
				return nil, fmt.Errorf("decode export group: %w", err)
			}
			groups = append(groups, g)
		}
		exports = append(exports, Export{Directory: dir, Groups: groups})
	}
}

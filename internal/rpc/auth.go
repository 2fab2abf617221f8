package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// UnixAuth is the AUTH_SYS credential body (RFC 5531 Section 9): a
// timestamp, the calling machine's name, numeric uid/gid, and up to 16
// supplementary group ids.
type UnixAuth struct {
	Stamp       uint32
	MachineName string
	UID         uint32
	GID         uint32
	GIDs        []uint32
}

const maxUnixAuthGroups = 16
const maxUnixAuthMachineName = 255

// BuildUnixAuth encodes a credential body for the AUTH_SYS flavor.
func BuildUnixAuth(a *UnixAuth) ([]byte, error) {
	if len(a.GIDs) > maxUnixAuthGroups {
		return nil, fmt.Errorf("too many gids: %d (max %d)", len(a.GIDs), maxUnixAuthGroups)
	}
	if len(a.MachineName) > maxUnixAuthMachineName {
		return nil, fmt.Errorf("machine name too long: %d bytes (max %d)", len(a.MachineName), maxUnixAuthMachineName)
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.BigEndian, a.Stamp); err != nil {
		return nil, fmt.Errorf("write stamp: %w", err)
	}

	nameLen := uint32(len(a.MachineName))
	if err := binary.Write(buf, binary.BigEndian, nameLen); err != nil {
		return nil, fmt.Errorf("write machine name length: %w", err)
	}
	buf.WriteString(a.MachineName)
	padding := (4 - (nameLen % 4)) % 4
	for range int(padding) {
		buf.WriteByte(0)
	}

	if err := binary.Write(buf, binary.BigEndian, a.UID); err != nil {
		return nil, fmt.Errorf("write uid: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, a.GID); err != nil {
		return nil, fmt.Errorf("write gid: %w", err)
	}

	if err := binary.Write(buf, binary.BigEndian, uint32(len(a.GIDs))); err != nil {
		return nil, fmt.Errorf("write gids length: %w", err)
	}
	for _, gid := range a.GIDs {
		if err := binary.Write(buf, binary.BigEndian, gid); err != nil {
			return nil, fmt.Errorf("write gid: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// ParseUnixAuth decodes an AUTH_SYS credential body. Its callers are the
// tests that exercise the wire format in both directions.
func ParseUnixAuth(body []byte) (*UnixAuth, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty auth_sys body")
	}

	r := bytes.NewReader(body)
	a := &UnixAuth{}

	if err := binary.Read(r, binary.BigEndian, &a.Stamp); err != nil {
		return nil, fmt.Errorf("read stamp: %w", err)
	}

	var nameLen uint32
	if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
		return nil, fmt.Errorf("read machine name length: %w", err)
	}
	if nameLen > maxUnixAuthMachineName {
		return nil, fmt.Errorf("machine name too long: %d bytes (max %d)", nameLen, maxUnixAuthMachineName)
	}
	nameBytes := make([]byte, nameLen)
	if nameLen > 0 {
		if _, err := r.Read(nameBytes); err != nil {
			return nil, fmt.Errorf("read machine name: %w", err)
		}
	}
	a.MachineName = string(nameBytes)
	padding := (4 - (nameLen % 4)) % 4
	for range int(padding) {
		if _, err := r.ReadByte(); err != nil {
			return nil, fmt.Errorf("skip machine name padding: %w", err)
		}
	}

	if err := binary.Read(r, binary.BigEndian, &a.UID); err != nil {
		return nil, fmt.Errorf("read uid: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &a.GID); err != nil {
		return nil, fmt.Errorf("read gid: %w", err)
	}

	var numGIDs uint32
	if err := binary.Read(r, binary.BigEndian, &numGIDs); err != nil {
		return nil, fmt.Errorf("read gids length: %w", err)
	}
	if numGIDs > maxUnixAuthGroups {
		return nil, fmt.Errorf("too many gids: %d (max %d)", numGIDs, maxUnixAuthGroups)
	}
	a.GIDs = make([]uint32, numGIDs)
	for i := range a.GIDs {
		if err := binary.Read(r, binary.BigEndian, &a.GIDs[i]); err != nil {
			return nil, fmt.Errorf("read gid[%d]: %w", i, err)
		}
	}

	return a, nil
}

// String renders a compact human-readable form for logging.
func (a *UnixAuth) String() string {
	return fmt.Sprintf("UnixAuth{machine=%s, uid=%d, gid=%d, gids=%v}", a.MachineName, a.UID, a.GID, a.GIDs)
}

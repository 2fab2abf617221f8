// Package xdr provides XDR encoding and decoding for portmapper (RFC 1057)
// protocol messages as seen by a client: the mapping struct used by
// SET/UNSET/GETPORT, and the DUMP reply's optional-data linked list.
//
// The portmap mapping struct is 4 fixed-size uint32 fields (prog, vers, prot,
// port), making XDR encoding straightforward with encoding/binary BigEndian.
//
// References:
//   - RFC 1057 Section A (Port Mapper Program Protocol)
//   - RFC 4506 (XDR: External Data Representation Standard)
package xdr

import (
	"encoding/binary"
	"fmt"
)

// Mapping represents a portmap mapping entry, sent as the argument to
// GETPORT and received as entries in a DUMP reply.
//
// Wire format (RFC 1057):
//
//	prog: uint32 - RPC program number
//	vers: uint32 - RPC program version
//	prot: uint32 - Protocol (6=TCP, 17=UDP)
//	port: uint32 - Port number
type Mapping struct {
	Prog uint32
	Vers uint32
	Prot uint32
	Port uint32
}

// MappingSize is the XDR-encoded size of a single mapping (4 x uint32 = 16 bytes).
const MappingSize = 16

// EncodeMapping encodes a single portmap mapping to 16 bytes XDR.
//
// Used by Client.GetPort (internal/portmap) to build the argument of a
// GETPORT call from the (program, version, protocol) it needs resolved.
func EncodeMapping(m *Mapping) []byte {
	buf := make([]byte, MappingSize)
	binary.BigEndian.PutUint32(buf[0:4], m.Prog)
	binary.BigEndian.PutUint32(buf[4:8], m.Vers)
	binary.BigEndian.PutUint32(buf[8:12], m.Prot)
	binary.BigEndian.PutUint32(buf[12:16], m.Port)
	return buf
}

// DecodeMapping decodes a portmap mapping struct from XDR bytes.
//
// Wire format: [prog:uint32][vers:uint32][prot:uint32][port:uint32]
//
// The input must be at least 16 bytes (trailing bytes are ignored).
func DecodeMapping(data []byte) (*Mapping, error) {
	if len(data) < MappingSize {
		return nil, fmt.Errorf("portmap mapping too short: got %d bytes, need %d", len(data), MappingSize)
	}

	return &Mapping{
		Prog: binary.BigEndian.Uint32(data[0:4]),
		Vers: binary.BigEndian.Uint32(data[4:8]),
		Prot: binary.BigEndian.Uint32(data[8:12]),
		Port: binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// DecodeGetportReply decodes a GETPORT reply body into a port number.
//
// Wire format: [port:uint32]. Zero means the program is not registered.
func DecodeGetportReply(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("getport reply too short: got %d bytes, need 4", len(data))
	}
	return binary.BigEndian.Uint32(data[0:4]), nil
}

// DecodeDumpReply decodes a DUMP reply's XDR optional-data linked list into
// a slice of mappings.
//
// Wire format per RFC 1057:
//
//	For each mapping:
//	  value_follows: uint32(1)
//	  mapping: [prog:uint32][vers:uint32][prot:uint32][port:uint32]
//	After last mapping:
//	  value_follows: uint32(0)
func DecodeDumpReply(data []byte) ([]*Mapping, error) {
	var mappings []*Mapping
	offset := 0
	for {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("dump reply truncated at entry discriminant, offset %d", offset)
		}
		valueFollows := binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
		if valueFollows == 0 {
			return mappings, nil
		}
		if offset+MappingSize > len(data) {
			return nil, fmt.Errorf("dump reply truncated at entry body, offset %d", offset)
		}
		m, err := DecodeMapping(data[offset : offset+MappingSize])
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
		offset += MappingSize
	}
}

// Package types provides portmapper/rpcbind protocol types and constants, plus
// the NFS and MOUNT program numbers a client needs to resolve and dial.
//
// The portmapper (portmap v2, IPv4) and rpcbind (v3/v4, universal addresses)
// are services that map RPC program/version/protocol tuples to a port or
// address. NFS clients use them to discover which port the NFS server and
// the MOUNT service listen on.
//
// References:
//   - RFC 1057 Section A (Port Mapper Program Protocol)
//   - RFC 1833 (Binding Protocols for ONC RPC Version 2)
//   - RFC 1813 Appendix I (Mount protocol)
package types

// ============================================================================
// Portmap / rpcbind RPC Program and Versions
// ============================================================================

const (
	// ProgramPortmap is the portmapper/rpcbind RPC program number.
	// Per RFC 1057, the portmapper uses program number 100000.
	ProgramPortmap uint32 = 100000

	// PortmapVersion2 is the portmap protocol version 2 (IPv4 only, ports).
	PortmapVersion2 uint32 = 2

	// RPCBVersion3 is the rpcbind protocol version 3 (universal addresses).
	RPCBVersion3 uint32 = 3

	// RPCBVersion4 is the rpcbind protocol version 4, used for IPv6 and
	// for GETVERSADDR-style negotiation against a version window.
	RPCBVersion4 uint32 = 4
)

// ============================================================================
// NFS-family program numbers a client resolves through portmap/rpcbind.
// ============================================================================

const (
	// ProgramNFS is the NFS RPC program number (NFSv2/v3/v4).
	ProgramNFS uint32 = 100003

	// ProgramMount is the MOUNT protocol program number (NFSv2/v3 only).
	ProgramMount uint32 = 100005
)

// ============================================================================
// Portmap v2 Procedure Numbers (RFC 1057 Section A)
// ============================================================================

const (
	// ProcNull is the NULL procedure for connection testing (ping).
	// No authentication required, always succeeds.
	ProcNull uint32 = 0

	// ProcSet registers a mapping of (prog, vers, prot) -> port.
	// Returns true on success, false on failure.
	ProcSet uint32 = 1

	// ProcUnset removes a mapping for (prog, vers, prot).
	// Returns true if the mapping existed and was removed.
	ProcUnset uint32 = 2

	// ProcGetport looks up the port for a given (prog, vers, prot) tuple.
	// Returns the port number, or 0 if not registered.
	ProcGetport uint32 = 3

	// ProcDump returns a list of all registered mappings.
	// Uses XDR optional-data linked list encoding.
	ProcDump uint32 = 4

	// ProcCallit is the indirect call procedure. The client never issues it:
	// forwarding calls through the portmapper is a DDoS amplification vector,
	// and modern rpcbind implementations disable or restrict it.
	ProcCallit uint32 = 5
)

// ============================================================================
// rpcbind v3/v4 Procedure Numbers (RFC 1833 Section 6)
// ============================================================================

const (
	// RPCBProcGetaddr resolves (prog, vers, netid) to a universal address
	// string. Used in place of ProcGetport once the client has decided to
	// speak rpcbind v3 instead of portmap v2 (typically for IPv6 or a
	// AF_LOCAL transport).
	RPCBProcGetaddr uint32 = 3

	// RPCBProcGetversaddr is the v4-only variant of GETADDR that accepts a
	// version and returns the address of whichever version the server
	// actually registered, without requiring an exact match.
	RPCBProcGetversaddr uint32 = 9
)

// ============================================================================
// Protocol Constants (IPPROTO values per RFC 1057, netid strings per RFC 1833)
// ============================================================================

const (
	// ProtoTCP is the TCP protocol identifier (IPPROTO_TCP = 6).
	ProtoTCP uint32 = 6

	// ProtoUDP is the UDP protocol identifier (IPPROTO_UDP = 17).
	ProtoUDP uint32 = 17
)

const (
	// NetidTCP is the rpcbind netid for TCP over IPv4 or IPv6.
	NetidTCP = "tcp"

	// NetidUDP is the rpcbind netid for UDP over IPv4 or IPv6.
	NetidUDP = "udp"

	// NetidTCP6 is the rpcbind netid for TCP restricted to IPv6.
	NetidTCP6 = "tcp6"

	// NetidUDP6 is the rpcbind netid for UDP restricted to IPv6.
	NetidUDP6 = "udp6"

	// RPCBTicotsordPath is the AF_LOCAL universal address used for the
	// stream (TICOTSORD) rendezvous when binding over a Unix-domain socket.
	RPCBTicotsordPath = "/var/run/rpcbind.sock"

	// RPCBTicltsPath is the AF_LOCAL universal address used for the
	// datagram (TICLTS) rendezvous when binding over a Unix-domain socket.
	RPCBTicltsPath = "/var/run/rpcbind.dg"
)

// ProcedureName returns a human-readable name for a portmap procedure number.
func ProcedureName(proc uint32) string {
	switch proc {
	case ProcNull:
		return "NULL"
	case ProcSet:
		return "SET"
	case ProcUnset:
		return "UNSET"
	case ProcGetport:
		return "GETPORT"
	case ProcDump:
		return "DUMP"
	case ProcCallit:
		return "CALLIT"
	default:
		return "UNKNOWN"
	}
}

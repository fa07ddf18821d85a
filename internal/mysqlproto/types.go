// Package mysqlproto implements the wire-level pieces of the MySQL classic
// client/server protocol: packet framing, length-encoded integers, the
// handshake/OK/ERR/EOF/result-set packet shapes, and the small set of
// COM_* commands this server understands.
package mysqlproto

// Capability flags exchanged during the handshake. Only the subset this
// server advertises and inspects is named; see the MySQL internals manual
// for the full bitfield.
const (
	CapLongPassword               uint32 = 0x00000001
	CapConnectWithDB              uint32 = 0x00000008
	CapCompress                   uint32 = 0x00000020
	CapProtocol41                 uint32 = 0x00000200
	CapSecureConnection           uint32 = 0x00008000
	CapPluginAuth                 uint32 = 0x00080000
	CapPluginAuthLenencClientData uint32 = 0x00200000

	// ServerCapabilities is the fixed set of flags this server advertises
	// in its handshake packet.
	ServerCapabilities = CapProtocol41 | CapSecureConnection | CapConnectWithDB | CapPluginAuth
)

// Status flags reported in OK and EOF packets.
const (
	StatusAutocommit uint16 = 0x0002
)

// Command bytes. The first byte of every packet the client sends after
// authentication is one of these (or an unrecognized byte, mapped to
// CommandUnknown).
const (
	ComQuit      byte = 0x01
	ComInitDB    byte = 0x02
	ComQuery     byte = 0x03
	ComFieldList byte = 0x04
	ComPing      byte = 0x0e
)

// CommandKind tags a parsed Command by what the session dispatch table
// needs to know, collapsing every unrecognized command byte into
// CommandUnknown alongside the raw byte that produced it.
type CommandKind int

const (
	CommandQuit CommandKind = iota
	CommandInitDB
	CommandQuery
	CommandPing
	CommandFieldList
	CommandUnknown
)

// Command is a decoded inbound command packet.
type Command struct {
	Kind CommandKind
	Byte byte
	Body []byte
}

// ParseCommandKind maps a command byte to its CommandKind.
func ParseCommandKind(b byte) CommandKind {
	switch b {
	case ComQuit:
		return CommandQuit
	case ComInitDB:
		return CommandInitDB
	case ComQuery:
		return CommandQuery
	case ComFieldList:
		return CommandFieldList
	case ComPing:
		return CommandPing
	default:
		return CommandUnknown
	}
}

// Column types used by the fallback responder's column definitions.
// VAR_STRING (0xfd) is the only one this server ever emits.
const (
	FieldTypeVarString byte = 0xfd
)

// Packet marker bytes at the head of a payload.
const (
	headerOK  byte = 0x00
	headerEOF byte = 0xfe
	headerErr byte = 0xff
)

// MaxPacketPayload is the largest payload a single frame can carry; this
// server does not implement multi-frame (split) packets.
const MaxPacketPayload = 0xffffff

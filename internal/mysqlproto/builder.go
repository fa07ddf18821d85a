package mysqlproto

// Builder is a stateful per-connection packet emitter. It owns the
// outgoing sequence counter for one connection; every Build* method claims
// the next sequence id and advances the counter, wrapping mod 256.
type Builder struct {
	seq byte
}

// Reset zeroes the sequence counter. The session calls it at the start of
// the greeting; each inbound command round-trip instead sets the counter
// with SetSeq.
func (b *Builder) Reset() {
	b.seq = 0
}

// SetSeq forces the next claimed sequence id. The session uses this to set
// the counter to 1 immediately after an inbound command packet (which
// always arrives as sequence 0) before building its first reply.
func (b *Builder) SetSeq(seq byte) {
	b.seq = seq
}

func (b *Builder) next() byte {
	s := b.seq
	b.seq++
	return s
}

// BuildHandshake constructs a Handshake v10 greeting packet. authSeed must
// be exactly 20 bytes (8-byte part 1 + 12-byte part 2); callers generate it
// fresh per connection.
func (b *Builder) BuildHandshake(serverVersion string, connectionID uint32, authSeed []byte, pluginName string) Packet {
	payload := make([]byte, 0, 64+len(serverVersion)+len(pluginName))

	payload = append(payload, 0x0a) // protocol version
	payload = putNullTerminatedString(payload, serverVersion)
	payload = append(payload,
		byte(connectionID), byte(connectionID>>8), byte(connectionID>>16), byte(connectionID>>24))
	payload = append(payload, authSeed[:8]...)
	payload = append(payload, 0x00) // filler

	caps := ServerCapabilities
	payload = append(payload, byte(caps), byte(caps>>8)) // capabilities low
	payload = append(payload, 0x21)                      // charset: utf8_general_ci
	payload = append(payload, byte(StatusAutocommit), byte(StatusAutocommit>>8))
	payload = append(payload, byte(caps>>16), byte(caps>>24)) // capabilities high
	payload = append(payload, 21)                             // auth-plugin-data-len
	payload = append(payload, make([]byte, 10)...)            // reserved

	payload = append(payload, authSeed[8:20]...)
	payload = append(payload, 0x00) // null terminator after seed part 2
	payload = putNullTerminatedString(payload, pluginName)

	return Packet{Payload: payload, SequenceID: b.next()}
}

// BuildOK constructs an OK packet.
func (b *Builder) BuildOK(affectedRows, lastInsertID uint64, statusFlags, warnings uint16, info string) Packet {
	payload := []byte{headerOK}
	payload = putLengthEncodedInt(payload, affectedRows)
	payload = putLengthEncodedInt(payload, lastInsertID)
	payload = append(payload, byte(statusFlags), byte(statusFlags>>8))
	payload = append(payload, byte(warnings), byte(warnings>>8))
	payload = append(payload, info...)

	return Packet{Payload: payload, SequenceID: b.next()}
}

// BuildErr constructs an ERR packet.
func (b *Builder) BuildErr(code uint16, sqlState, message string) Packet {
	state := sqlState
	if len(state) < 5 {
		state = state + "     "
	}
	state = state[:5]

	payload := []byte{headerErr, byte(code), byte(code >> 8), '#'}
	payload = append(payload, state...)
	payload = append(payload, message...)

	return Packet{Payload: payload, SequenceID: b.next()}
}

// BuildErrFromError builds an ERR packet from a mysqlproto.Error.
func (b *Builder) BuildErrFromError(err *Error) Packet {
	return b.BuildErr(err.Code, err.SQLState, err.Message)
}

// BuildEOF constructs an EOF marker packet.
func (b *Builder) BuildEOF(warnings, statusFlags uint16) Packet {
	payload := []byte{headerEOF, byte(warnings), byte(warnings >> 8), byte(statusFlags), byte(statusFlags >> 8)}
	return Packet{Payload: payload, SequenceID: b.next()}
}

// BuildColumnCount constructs the leading packet of a text result set: a
// single length-encoded integer giving the number of columns to follow.
func (b *Builder) BuildColumnCount(n int) Packet {
	payload := putLengthEncodedInt(nil, uint64(n))
	return Packet{Payload: payload, SequenceID: b.next()}
}

// ColumnDefinition describes one column of a text result set.
type ColumnDefinition struct {
	Name     string
	Type     byte
	Charset  uint16
	Length   uint32
	Decimals byte
}

// BuildColumnDefinition constructs a Column Definition packet. Catalog is
// the fixed "def"; schema, table, org_table and org_name are left empty; this server's
// result sets are synthetic and never reference a real catalog.
func (b *Builder) BuildColumnDefinition(col ColumnDefinition) Packet {
	payload := make([]byte, 0, 32+len(col.Name))
	payload = putLengthEncodedString(payload, "def") // catalog
	payload = putLengthEncodedString(payload, "")    // schema
	payload = putLengthEncodedString(payload, "")    // table
	payload = putLengthEncodedString(payload, "")    // org_table
	payload = putLengthEncodedString(payload, col.Name)
	payload = putLengthEncodedString(payload, "") // org_name
	payload = append(payload, 0x0c)               // length of fixed fields that follow
	charset := col.Charset
	if charset == 0 {
		charset = 0x21
	}
	payload = append(payload, byte(charset), byte(charset>>8))
	payload = append(payload, byte(col.Length), byte(col.Length>>8), byte(col.Length>>16), byte(col.Length>>24))
	payload = append(payload, col.Type)
	payload = append(payload, 0x00, 0x00) // flags
	payload = append(payload, col.Decimals)
	payload = append(payload, 0x00, 0x00) // reserved

	return Packet{Payload: payload, SequenceID: b.next()}
}

// BuildRow constructs a text-protocol row packet. A nil entry in values
// encodes as SQL NULL (the 0xFB length-encoded marker).
func (b *Builder) BuildRow(values []*string) Packet {
	var payload []byte
	for _, v := range values {
		if v == nil {
			payload = append(payload, 0xfb)
			continue
		}
		payload = putLengthEncodedString(payload, *v)
	}
	return Packet{Payload: payload, SequenceID: b.next()}
}

package mysqlproto

// HandshakeResponse is the client's reply to the server's greeting,
// decoded per Protocol::HandshakeResponse41.
type HandshakeResponse struct {
	Capabilities  uint32
	MaxPacketSize uint32
	Charset       byte
	Username      string
	AuthData      []byte
	Database      string
	HasDatabase   bool
	AuthPlugin    string
	HasAuthPlugin bool
}

// ParseHandshakeResponse decodes a HandshakeResponse41 payload.
func ParseHandshakeResponse(payload []byte) (HandshakeResponse, error) {
	if len(payload) < 32 {
		return HandshakeResponse{}, ErrShortPacket
	}

	var hr HandshakeResponse
	hr.Capabilities = uint32(payload[0]) | uint32(payload[1])<<8 | uint32(payload[2])<<16 | uint32(payload[3])<<24
	hr.MaxPacketSize = uint32(payload[4]) | uint32(payload[5])<<8 | uint32(payload[6])<<16 | uint32(payload[7])<<24
	hr.Charset = payload[8]
	// payload[9:32] is reserved.

	pos := 32

	username, n, err := readNullTerminatedString(payload[pos:])
	if err != nil {
		return HandshakeResponse{}, ErrBadNTS
	}
	hr.Username = username
	pos += n

	switch {
	case hr.Capabilities&CapPluginAuthLenencClientData != 0:
		authData, n, err := readLengthEncodedStringBytes(payload[pos:])
		if err != nil {
			return HandshakeResponse{}, ErrBadLEI
		}
		hr.AuthData = authData
		pos += n
	case hr.Capabilities&CapSecureConnection != 0:
		if pos >= len(payload) {
			return HandshakeResponse{}, ErrShortPacket
		}
		authLen := int(payload[pos])
		pos++
		if pos+authLen > len(payload) {
			return HandshakeResponse{}, ErrShortPacket
		}
		hr.AuthData = payload[pos : pos+authLen]
		pos += authLen
	default:
		authData, n, err := readNullTerminatedString(payload[pos:])
		if err != nil {
			return HandshakeResponse{}, ErrBadNTS
		}
		hr.AuthData = []byte(authData)
		pos += n
	}

	if hr.Capabilities&CapConnectWithDB != 0 && pos < len(payload) {
		db, n, err := readNullTerminatedString(payload[pos:])
		if err != nil {
			return HandshakeResponse{}, ErrBadNTS
		}
		hr.Database = db
		hr.HasDatabase = true
		pos += n
	}

	if hr.Capabilities&CapPluginAuth != 0 && pos < len(payload) {
		plugin, n, err := readNullTerminatedString(payload[pos:])
		if err == nil {
			hr.AuthPlugin = plugin
			hr.HasAuthPlugin = true
			pos += n
		}
	}

	return hr, nil
}

// readLengthEncodedStringBytes is like readLengthEncodedString but returns
// raw bytes, for auth_data which is not necessarily valid UTF-8.
func readLengthEncodedStringBytes(buf []byte) ([]byte, int, error) {
	length, hdr, err := readLengthEncodedInt(buf)
	if err != nil {
		return nil, 0, err
	}
	end := hdr + int(length)
	if end > len(buf) {
		return nil, 0, errBadLEI
	}
	return buf[hdr:end], end, nil
}

// ParseCommand decodes an inbound command packet payload into a Command.
// An empty payload is rejected with ErrSyntaxError (there is no command
// byte to dispatch on).
func ParseCommand(payload []byte) (Command, error) {
	if len(payload) == 0 {
		return Command{}, ErrSyntaxError
	}

	b := payload[0]
	return Command{
		Kind: ParseCommandKind(b),
		Byte: b,
		Body: payload[1:],
	}, nil
}

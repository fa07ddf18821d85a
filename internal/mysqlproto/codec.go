package mysqlproto

import (
	"fmt"
	"io"
)

// Packet is one framed MySQL protocol packet: a payload tagged with the
// sequence id it was sent or received under.
type Packet struct {
	Payload    []byte
	SequenceID byte
}

// ReadPacket reads one framed packet from r: a 3-byte little-endian length,
// a 1-byte sequence id, then exactly that many payload bytes. Multi-frame
// (0xffffff-length) packets are not reassembled — this server never emits
// or expects one.
func ReadPacket(r io.Reader) (Packet, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Packet{}, err
	}

	length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	seq := header[3]

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Packet{}, fmt.Errorf("mysqlproto: reading packet payload: %w", err)
		}
	}

	return Packet{Payload: payload, SequenceID: seq}, nil
}

// WritePacket frames payload with the given sequence id and writes it to w.
func WritePacket(w io.Writer, payload []byte, seq byte) error {
	if len(payload) > MaxPacketPayload {
		return fmt.Errorf("mysqlproto: payload of %d bytes exceeds max frame size", len(payload))
	}

	buf := make([]byte, 4+len(payload))
	buf[0] = byte(len(payload))
	buf[1] = byte(len(payload) >> 8)
	buf[2] = byte(len(payload) >> 16)
	buf[3] = seq
	copy(buf[4:], payload)

	_, err := w.Write(buf)
	return err
}

// putLengthEncodedInt appends the length-encoded form of v to dst, using
// the shortest tag that fits.
func putLengthEncodedInt(dst []byte, v uint64) []byte {
	switch {
	case v <= 250:
		return append(dst, byte(v))
	case v <= 0xffff:
		return append(dst, 0xfc, byte(v), byte(v>>8))
	case v <= 0xffffff:
		return append(dst, 0xfd, byte(v), byte(v>>8), byte(v>>16))
	default:
		return append(dst, 0xfe,
			byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
			byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	}
}

// lengthEncodedIntSize reports how many bytes putLengthEncodedInt would
// write for v, without allocating.
func lengthEncodedIntSize(v uint64) int {
	switch {
	case v <= 250:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffff:
		return 4
	default:
		return 9
	}
}

// putLengthEncodedString appends the length-encoded-string encoding of s
// (a length-encoded int byte count followed by the raw bytes) to dst.
func putLengthEncodedString(dst []byte, s string) []byte {
	dst = putLengthEncodedInt(dst, uint64(len(s)))
	return append(dst, s...)
}

// errBadLEI is returned when a length-encoded integer's leading byte is the
// reserved 0xFF tag, or the buffer is truncated before the claimed width.
var errBadLEI = fmt.Errorf("mysqlproto: malformed length-encoded integer")

// isLEINull reports whether b is the NULL sentinel (0xFB) valid only inside
// row payloads.
func isLEINull(b byte) bool {
	return b == 0xfb
}

// readLengthEncodedInt decodes a length-encoded integer from the front of
// buf, returning the value, the number of bytes consumed, and an error.
func readLengthEncodedInt(buf []byte) (value uint64, n int, err error) {
	if len(buf) == 0 {
		return 0, 0, errBadLEI
	}

	switch first := buf[0]; {
	case first <= 0xfa:
		return uint64(first), 1, nil
	case first == 0xfb:
		return 0, 0, errBadLEI
	case first == 0xfc:
		if len(buf) < 3 {
			return 0, 0, errBadLEI
		}
		return uint64(buf[1]) | uint64(buf[2])<<8, 3, nil
	case first == 0xfd:
		if len(buf) < 4 {
			return 0, 0, errBadLEI
		}
		return uint64(buf[1]) | uint64(buf[2])<<8 | uint64(buf[3])<<16, 4, nil
	case first == 0xfe:
		if len(buf) < 9 {
			return 0, 0, errBadLEI
		}
		v := uint64(0)
		for i := 0; i < 8; i++ {
			v |= uint64(buf[1+i]) << (8 * i)
		}
		return v, 9, nil
	default: // 0xff
		return 0, 0, errBadLEI
	}
}

// readLengthEncodedString decodes a length-encoded string from the front of
// buf, returning the string value, bytes consumed, and an error.
func readLengthEncodedString(buf []byte) (value string, n int, err error) {
	length, hdr, err := readLengthEncodedInt(buf)
	if err != nil {
		return "", 0, err
	}
	end := hdr + int(length)
	if end > len(buf) {
		return "", 0, errBadLEI
	}
	return string(buf[hdr:end]), end, nil
}

// errBadNTS is returned when a null-terminated string runs off the end of
// the buffer without a terminator.
var errBadNTS = fmt.Errorf("mysqlproto: unterminated null-terminated string")

// readNullTerminatedString reads bytes from buf up to (excluding) the first
// 0x00, returning the string and the number of bytes consumed including the
// terminator.
func readNullTerminatedString(buf []byte) (value string, n int, err error) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), i + 1, nil
		}
	}
	return "", 0, errBadNTS
}

// putNullTerminatedString appends s followed by a 0x00 terminator to dst.
func putNullTerminatedString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0x00)
}

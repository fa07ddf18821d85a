package mysqlproto

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestWriteReadPacketRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte{ComQuery}
	payload = append(payload, "SELECT 1"...)

	go func() {
		WritePacket(server, payload, 3)
	}()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	pkt, err := ReadPacket(client)
	if err != nil {
		t.Fatalf("ReadPacket error: %v", err)
	}
	if pkt.SequenceID != 3 {
		t.Errorf("sequence id = %d, want 3", pkt.SequenceID)
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Errorf("payload = %v, want %v", pkt.Payload, payload)
	}
}

func TestWritePacketRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, MaxPacketPayload+1)
	if err := WritePacket(&buf, payload, 0); err == nil {
		t.Fatal("expected error for oversize payload, got nil")
	}
}

func TestWritePacketAcceptsMaxSizePayload(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, MaxPacketPayload)
	if err := WritePacket(&buf, payload, 0); err != nil {
		t.Fatalf("expected the maximum-size payload to be accepted, got: %v", err)
	}
}

func TestReadPacketEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, nil, 0); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	pkt, err := ReadPacket(&buf)
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if len(pkt.Payload) != 0 {
		t.Errorf("expected empty payload, got %v", pkt.Payload)
	}
}

func TestLengthEncodedIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 250, 251, 65535, 65536, 16777215, 16777216, 1 << 40}
	for _, v := range cases {
		encoded := putLengthEncodedInt(nil, v)
		decoded, n, err := readLengthEncodedInt(encoded)
		if err != nil {
			t.Fatalf("readLengthEncodedInt(%d): %v", v, err)
		}
		if decoded != v {
			t.Errorf("decode(encode(%d)) = %d", v, decoded)
		}
		if n != len(encoded) {
			t.Errorf("value %d: consumed %d bytes, encoding is %d bytes", v, n, len(encoded))
		}
	}
}

func TestLengthEncodedIntBoundaryTags(t *testing.T) {
	cases := []struct {
		value   uint64
		wantTag byte
		wantLen int
	}{
		{250, 0, 1}, // literal, no tag byte
		{251, 0xfc, 3},
		{65535, 0xfc, 3},
		{65536, 0xfd, 4},
		{16777215, 0xfd, 4},
		{16777216, 0xfe, 9},
	}

	for _, tc := range cases {
		encoded := putLengthEncodedInt(nil, tc.value)
		if len(encoded) != tc.wantLen {
			t.Errorf("value %d: encoded length = %d, want %d", tc.value, len(encoded), tc.wantLen)
		}
		if tc.wantTag != 0 && encoded[0] != tc.wantTag {
			t.Errorf("value %d: tag byte = 0x%02x, want 0x%02x", tc.value, encoded[0], tc.wantTag)
		}
	}
}

func TestReadLengthEncodedIntRejectsReservedByte(t *testing.T) {
	if _, _, err := readLengthEncodedInt([]byte{0xff}); err == nil {
		t.Fatal("expected error decoding reserved 0xff tag, got nil")
	}
	if _, _, err := readLengthEncodedInt([]byte{0xfb}); err == nil {
		t.Fatal("expected error decoding NULL 0xfb tag as an integer, got nil")
	}
}

func TestReadLengthEncodedIntRejectsTruncatedBuffer(t *testing.T) {
	if _, _, err := readLengthEncodedInt([]byte{0xfc, 0x01}); err == nil {
		t.Fatal("expected error for truncated 0xfc-tagged buffer, got nil")
	}
	if _, _, err := readLengthEncodedInt(nil); err == nil {
		t.Fatal("expected error for empty buffer, got nil")
	}
}

func TestLengthEncodedStringRoundTrip(t *testing.T) {
	encoded := putLengthEncodedString(nil, "hello world")
	decoded, n, err := readLengthEncodedString(encoded)
	if err != nil {
		t.Fatalf("readLengthEncodedString: %v", err)
	}
	if decoded != "hello world" {
		t.Errorf("decoded = %q, want %q", decoded, "hello world")
	}
	if n != len(encoded) {
		t.Errorf("consumed %d bytes, want %d", n, len(encoded))
	}
}

func TestNullTerminatedStringRoundTrip(t *testing.T) {
	encoded := putNullTerminatedString(nil, "root")
	decoded, n, err := readNullTerminatedString(encoded)
	if err != nil {
		t.Fatalf("readNullTerminatedString: %v", err)
	}
	if decoded != "root" {
		t.Errorf("decoded = %q, want %q", decoded, "root")
	}
	if n != len(encoded) {
		t.Errorf("consumed %d bytes, want %d", n, len(encoded))
	}
}

func TestReadNullTerminatedStringRejectsMissingTerminator(t *testing.T) {
	if _, _, err := readNullTerminatedString([]byte("no terminator")); err == nil {
		t.Fatal("expected error for unterminated string, got nil")
	}
}

// Package protocol implements the CORTEX frame codec: a 16-byte header
// (magic, version, type, flags, payload length, CRC32) followed by up
// to 64 KiB of payload, sent over any transport.Transport.
package protocol

import (
	"time"

	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
	"github.com/WestonVoglesonger/cortex/internal/transport"
	"github.com/WestonVoglesonger/cortex/internal/wire"
)

// Type identifies the payload schema carried by a Frame.
type Type uint8

const (
	TypeHello       Type = 1
	TypeConfig      Type = 2
	TypeAck         Type = 3
	TypeWindowChunk Type = 4
	TypeResult      Type = 5
	TypeError       Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeConfig:
		return "CONFIG"
	case TypeAck:
		return "ACK"
	case TypeWindowChunk:
		return "WINDOW_CHUNK"
	case TypeResult:
		return "RESULT"
	case TypeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const (
	Magic           uint32 = 0x43525458
	ProtocolVersion byte   = 1

	// HeaderSize is the fixed 16-byte header: magic(4) version(1)
	// type(1) flags(2) payload_length(4) crc32(4).
	HeaderSize = 16
	// CRCCoveredSize is the number of leading header bytes the CRC
	// covers (everything but the CRC field itself).
	CRCCoveredSize = 12

	MaxPayloadSize = 65536

	HandshakeTimeout     = 5000 * time.Millisecond
	DefaultWindowTimeout = 1000 * time.Millisecond
	ErrorSendTimeout     = 500 * time.Millisecond
)

// Frame is a decoded header plus payload.
type Frame struct {
	Type    Type
	Flags   uint16
	Payload []byte
}

// MarshalBinary renders f as the bytes that would appear on the wire,
// for tests and tooling that want a frame without a live transport.
func (f *Frame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize+len(f.Payload))
	encodeHeader(buf, f.Type, f.Flags, f.Payload)
	return buf, nil
}

// UnmarshalBinary decodes a complete frame (header+payload) previously
// produced by MarshalBinary or read off the wire without MAGIC-hunting.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return cortexerr.New("frame_unmarshal", cortexerr.INVALID_FRAME, "short header")
	}
	if wire.U32(data, 0) != Magic {
		return cortexerr.New("frame_unmarshal", cortexerr.MAGIC_NOT_FOUND, "magic mismatch")
	}
	if data[4] != ProtocolVersion {
		return cortexerr.New("frame_unmarshal", cortexerr.VERSION_MISMATCH, "unsupported version")
	}
	payloadLen := int(wire.U32(data, 8))
	if len(data) < HeaderSize+payloadLen {
		return cortexerr.New("frame_unmarshal", cortexerr.INVALID_FRAME, "payload shorter than declared length")
	}
	gotCRC := wire.U32(data, 12)
	wantCRC := wire.Checksum(append(append([]byte{}, data[:CRCCoveredSize]...), data[HeaderSize:HeaderSize+payloadLen]...))
	if gotCRC != wantCRC {
		return cortexerr.New("frame_unmarshal", cortexerr.CRC_MISMATCH, "checksum mismatch")
	}
	f.Type = Type(data[5])
	f.Flags = wire.U16(data, 6)
	f.Payload = append([]byte{}, data[HeaderSize:HeaderSize+payloadLen]...)
	return nil
}

func encodeHeader(buf []byte, t Type, flags uint16, payload []byte) {
	wire.PutU32(buf, 0, Magic)
	buf[4] = ProtocolVersion
	buf[5] = byte(t)
	wire.PutU16(buf, 6, flags)
	wire.PutU32(buf, 8, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	crc := wire.Checksum(append(append([]byte{}, buf[:CRCCoveredSize]...), payload...))
	wire.PutU32(buf, 12, crc)
}

// SendFrame composes the header for t/payload, computes its CRC, and
// writes the whole frame to tr in a single logical send. Fails with
// cortexerr.CONNRESET if tr rejects any part of the write.
func SendFrame(tr transport.Transport, t Type, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return cortexerr.New("send_frame", cortexerr.FRAME_TOO_LARGE, "payload exceeds 64KiB")
	}
	buf := make([]byte, HeaderSize+len(payload))
	encodeHeader(buf, t, 0, payload)
	return tr.Send(buf)
}

// RecvFrame hunts for MAGIC byte-by-byte, validates the remaining
// header, reads the payload, and verifies the CRC, all bounded by
// totalTimeout. On success it returns the frame type and a payload
// slice backed by buf[:n].
func RecvFrame(tr transport.Transport, buf []byte, totalTimeout time.Duration) (Type, []byte, error) {
	deadline := time.Now().Add(totalTimeout)

	if err := huntMagic(tr, deadline); err != nil {
		return 0, nil, err
	}

	rest := make([]byte, HeaderSize-4) // version+type+flags+payload_length+crc32
	if err := readExact(tr, rest, deadline); err != nil {
		return 0, nil, err
	}

	header := make([]byte, HeaderSize)
	wire.PutU32(header, 0, Magic)
	copy(header[4:], rest)

	if header[4] != ProtocolVersion {
		return 0, nil, cortexerr.New("recv_frame", cortexerr.VERSION_MISMATCH, "unsupported protocol version")
	}
	payloadLen := int(wire.U32(header, 8))
	if payloadLen > MaxPayloadSize {
		return 0, nil, cortexerr.New("recv_frame", cortexerr.FRAME_TOO_LARGE, "declared payload exceeds 64KiB")
	}
	if payloadLen > len(buf) {
		return 0, nil, cortexerr.New("recv_frame", cortexerr.BUFFER_TOO_SMALL, "caller buffer smaller than payload")
	}

	if payloadLen > 0 {
		if err := readExact(tr, buf[:payloadLen], deadline); err != nil {
			return 0, nil, err
		}
	}

	gotCRC := wire.U32(header, 12)
	wantCRC := wire.Checksum(append(append([]byte{}, header[:CRCCoveredSize]...), buf[:payloadLen]...))
	if gotCRC != wantCRC {
		return 0, nil, cortexerr.New("recv_frame", cortexerr.CRC_MISMATCH, "checksum mismatch, frame discarded")
	}

	return Type(header[5]), buf[:payloadLen], nil
}

// huntMagic reads one byte at a time, maintaining a 32-bit little-endian
// sliding window, until it matches Magic or the deadline passes.
func huntMagic(tr transport.Transport, deadline time.Time) error {
	var window uint32
	seen := 0
	one := make([]byte, 1)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return cortexerr.New("recv_frame", cortexerr.TIMEOUT, "magic not found before deadline")
		}
		n, err := tr.Recv(one, remaining)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		window = (window >> 8) | (uint32(one[0]) << 24)
		seen++
		// Each shift moves the most-recently-read byte into the high
		// byte and the rest down, so after four bytes `window` holds
		// byte0 in its low byte exactly as wire.U32 would decode a
		// little-endian buffer — comparing directly against Magic is
		// correct without any further reordering.
		if seen >= 4 && window == Magic {
			return nil
		}
	}
}

func readExact(tr transport.Transport, buf []byte, deadline time.Time) error {
	read := 0
	for read < len(buf) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return cortexerr.New("recv_frame", cortexerr.TIMEOUT, "timed out reading frame body")
		}
		n, err := tr.Recv(buf[read:], remaining)
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

package protocol

import (
	"testing"
	"time"

	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
)

// loopback is an in-memory transport.Transport backed by a byte queue,
// used to exercise the codec without a real socket.
type loopback struct {
	buf []byte
}

func (l *loopback) Send(data []byte) error {
	l.buf = append(l.buf, data...)
	return nil
}

func (l *loopback) Recv(buf []byte, timeout time.Duration) (int, error) {
	if len(l.buf) == 0 {
		return 0, cortexerr.New("loopback_recv", cortexerr.TIMEOUT, "no data queued")
	}
	n := copy(buf, l.buf)
	l.buf = l.buf[n:]
	return n, nil
}

func (l *loopback) Close() error { return nil }

func (l *loopback) MonotonicTimestampNs() int64 { return 0 }

func TestSendRecvFrameRoundTrip(t *testing.T) {
	lb := &loopback{}
	payload := []byte("hello adapter")

	if err := SendFrame(lb, TypeHello, payload); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	buf := make([]byte, MaxPayloadSize)
	typ, got, err := RecvFrame(lb, buf, time.Second)
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if typ != TypeHello {
		t.Fatalf("expected TypeHello, got %v", typ)
	}
	if string(got) != string(payload) {
		t.Fatalf("expected payload %q, got %q", payload, got)
	}
}

func TestRecvFrameMagicRecovery(t *testing.T) {
	lb := &loopback{}
	// Prepend garbage bytes before a valid frame; recv_frame must hunt
	// past them rather than fail.
	lb.buf = append([]byte{0xde, 0xad, 0xbe, 0xef, 0x00}, lb.buf...)

	if err := SendFrame(lb, TypeAck, []byte{1, 2, 3}); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	buf := make([]byte, MaxPayloadSize)
	typ, got, err := RecvFrame(lb, buf, time.Second)
	if err != nil {
		t.Fatalf("RecvFrame after garbage prefix: %v", err)
	}
	if typ != TypeAck {
		t.Fatalf("expected TypeAck, got %v", typ)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3-byte payload, got %d", len(got))
	}
}

func TestRecvFrameCRCMismatchDiscardsFrame(t *testing.T) {
	lb := &loopback{}
	if err := SendFrame(lb, TypeConfig, []byte{9, 9, 9}); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	// Flip a payload byte after framing to corrupt the CRC.
	lb.buf[len(lb.buf)-1] ^= 0xff

	buf := make([]byte, MaxPayloadSize)
	_, _, err := RecvFrame(lb, buf, time.Second)
	if !cortexerr.IsCode(err, cortexerr.CRC_MISMATCH) {
		t.Fatalf("expected CRC_MISMATCH, got %v", err)
	}
}

func TestRecvFrameVersionMismatch(t *testing.T) {
	lb := &loopback{}
	if err := SendFrame(lb, TypeHello, nil); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	lb.buf[4] = 2 // corrupt version byte

	buf := make([]byte, MaxPayloadSize)
	_, _, err := RecvFrame(lb, buf, time.Second)
	if !cortexerr.IsCode(err, cortexerr.VERSION_MISMATCH) {
		t.Fatalf("expected VERSION_MISMATCH, got %v", err)
	}
}

func TestSendFrameRejectsOversizedPayload(t *testing.T) {
	lb := &loopback{}
	big := make([]byte, MaxPayloadSize+1)
	err := SendFrame(lb, TypeWindowChunk, big)
	if !cortexerr.IsCode(err, cortexerr.FRAME_TOO_LARGE) {
		t.Fatalf("expected FRAME_TOO_LARGE, got %v", err)
	}
}

func TestRecvFrameBufferTooSmall(t *testing.T) {
	lb := &loopback{}
	if err := SendFrame(lb, TypeResult, make([]byte, 100)); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	buf := make([]byte, 10)
	_, _, err := RecvFrame(lb, buf, time.Second)
	if !cortexerr.IsCode(err, cortexerr.BUFFER_TOO_SMALL) {
		t.Fatalf("expected BUFFER_TOO_SMALL, got %v", err)
	}
}

func TestFrameMarshalUnmarshalRoundTrip(t *testing.T) {
	f := &Frame{Type: TypeResult, Payload: []byte{1, 2, 3, 4}}
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got Frame
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.Type != f.Type || string(got.Payload) != string(f.Payload) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

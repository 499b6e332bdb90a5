package adapter

import (
	"sync"
	"testing"
	"time"

	"github.com/WestonVoglesonger/cortex/internal/chunking"
	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
	"github.com/WestonVoglesonger/cortex/internal/kernelreg"
	"github.com/WestonVoglesonger/cortex/internal/protocol"
	"github.com/WestonVoglesonger/cortex/internal/wire"
)

// pipe is an in-process duplex byte stream used to run a Session against
// a simulated harness within one test process. Closing one side closes
// the channel it writes to, so the peer's next Recv observes EOF
// immediately rather than blocking out its full timeout.
type pipe struct {
	toAdapter   chan []byte
	fromAdapter chan []byte
	pending     []byte
	closeOnce   sync.Once
}

func newPipePair() (*pipe, *pipe) {
	a2h := make(chan []byte, 64)
	h2a := make(chan []byte, 64)
	return &pipe{toAdapter: h2a, fromAdapter: a2h}, &pipe{toAdapter: a2h, fromAdapter: h2a}
}

func (p *pipe) Send(data []byte) error {
	cp := append([]byte{}, data...)
	p.fromAdapter <- cp
	return nil
}

func (p *pipe) Recv(buf []byte, timeout time.Duration) (int, error) {
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}
	select {
	case data, ok := <-p.toAdapter:
		if !ok {
			return 0, cortexerr.New("pipe_recv", cortexerr.CONNRESET, "peer closed")
		}
		n := copy(buf, data)
		if n < len(data) {
			p.pending = data[n:]
		}
		return n, nil
	case <-time.After(timeout):
		return 0, cortexerr.New("pipe_recv", cortexerr.TIMEOUT, "timed out")
	}
}

func (p *pipe) Close() error {
	p.closeOnce.Do(func() { close(p.fromAdapter) })
	return nil
}
func (p *pipe) MonotonicTimestampNs() int64 { return time.Now().UnixNano() }

func buildConfigPayload(sessionID, fs, w, h, c uint32, pluginName string, params []byte) []byte {
	payload := make([]byte, configHeaderSize)
	wire.PutU32(payload, configSessionIDOff, sessionID)
	wire.PutU32(payload, configFsOff, fs)
	wire.PutU32(payload, configWOff, w)
	wire.PutU32(payload, configHOff, h)
	wire.PutU32(payload, configCOff, c)
	copy(payload[configPluginNameOff:configPluginNameOff+configPluginNameLen], pluginName)
	if params != nil {
		copy(payload[configPluginParamOff:configPluginParamOff+configPluginParamLen], params)
	}
	wire.PutU32(payload, configCalSizeOff, 0)
	return payload
}

func TestSessionHandshakeAndWindowLoop(t *testing.T) {
	harnessSide, adapterSide := newPipePair()
	registry := kernelreg.NewRegistry()
	identity := Identity{
		AdapterName:      "test-adapter",
		Hostname:         "test-host",
		MaxWindowSamples: 256,
		MaxChannels:      8,
	}
	sess := NewSession(adapterSide, registry, identity)

	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	frameBuf := make([]byte, protocol.MaxPayloadSize)
	typ, _, err := protocol.RecvFrame(harnessSide, frameBuf, time.Second)
	if err != nil {
		t.Fatalf("recv HELLO: %v", err)
	}
	if typ != protocol.TypeHello {
		t.Fatalf("expected HELLO, got %v", typ)
	}

	cfg := buildConfigPayload(1, 100, 4, 4, 1, "identity", nil)
	if err := protocol.SendFrame(harnessSide, protocol.TypeConfig, cfg); err != nil {
		t.Fatalf("send CONFIG: %v", err)
	}

	typ, _, err = protocol.RecvFrame(harnessSide, frameBuf, time.Second)
	if err != nil {
		t.Fatalf("recv ACK: %v", err)
	}
	if typ != protocol.TypeAck {
		t.Fatalf("expected ACK, got %v", typ)
	}

	window := []float32{1, 2, 3, 4}
	windowBytes := make([]byte, len(window)*4)
	wire.PutF32Slice(windowBytes, window)
	if err := chunking.SendChunked(harnessSide, 0, windowBytes); err != nil {
		t.Fatalf("send window chunk: %v", err)
	}

	resultBuf := make([]byte, 4096)
	n, err := chunking.RecvChunked(harnessSide, 0, resultBuf, time.Second)
	if err != nil {
		t.Fatalf("recv RESULT: %v", err)
	}
	if n < resultHeaderSize {
		t.Fatalf("RESULT payload too short: %d", n)
	}
	gotSessionID := wire.U32(resultBuf, 0)
	gotSequence := wire.U32(resultBuf, 4)
	if gotSessionID != 1 || gotSequence != 0 {
		t.Fatalf("expected session_id=1 sequence=0, got %d/%d", gotSessionID, gotSequence)
	}
	outSamples := wire.F32Slice(resultBuf[resultHeaderSize:n])
	if len(outSamples) != 4 {
		t.Fatalf("expected 4 output samples, got %d", len(outSamples))
	}
	for i, v := range window {
		if outSamples[i] != v {
			t.Fatalf("identity kernel should pass through, got %v", outSamples)
		}
	}

	_ = harnessSide.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not exit after harness close")
	}
}

func TestSessionRejectsUnknownKernel(t *testing.T) {
	harnessSide, adapterSide := newPipePair()
	registry := kernelreg.NewRegistry()
	identity := Identity{AdapterName: "test-adapter", MaxWindowSamples: 256, MaxChannels: 8}
	sess := NewSession(adapterSide, registry, identity)

	done := make(chan error, 1)
	go func() { done <- sess.Run() }()

	frameBuf := make([]byte, protocol.MaxPayloadSize)
	if _, _, err := protocol.RecvFrame(harnessSide, frameBuf, time.Second); err != nil {
		t.Fatalf("recv HELLO: %v", err)
	}

	cfg := buildConfigPayload(1, 100, 4, 4, 1, "no-such-kernel", nil)
	if err := protocol.SendFrame(harnessSide, protocol.TypeConfig, cfg); err != nil {
		t.Fatalf("send CONFIG: %v", err)
	}

	typ, payload, err := protocol.RecvFrame(harnessSide, frameBuf, time.Second)
	if err != nil {
		t.Fatalf("recv ERROR: %v", err)
	}
	if typ != protocol.TypeError {
		t.Fatalf("expected ERROR, got %v", typ)
	}
	if string(payload) != string(cortexerr.KERNEL_NOT_FOUND) {
		t.Fatalf("expected KERNEL_NOT_FOUND code, got %q", payload)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not terminate after config error")
	}

	if sess.getState() != StateTerminated {
		t.Fatalf("expected StateTerminated, got %v", sess.getState())
	}
}

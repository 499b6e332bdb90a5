// Package devsession implements the harness-side device session: the
// three atomic operations (init, execute, teardown) that drive one
// adapter connection through its handshake and window loop.
package devsession

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/WestonVoglesonger/cortex/internal/chunking"
	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
	"github.com/WestonVoglesonger/cortex/internal/protocol"
	"github.com/WestonVoglesonger/cortex/internal/transport"
	"github.com/WestonVoglesonger/cortex/internal/wire"
)

const (
	adapterNameLen = 32
	kernelNameLen  = 32

	configSessionIDOff   = 0
	configFsOff          = 4
	configWOff           = 8
	configHOff           = 12
	configCOff           = 16
	configPluginNameOff  = 20
	configPluginNameLen  = 64
	configPluginParamOff = 84
	configPluginParamLen = 256
	configCalSizeOff     = 340
	configHeaderSize     = 344

	resultHeaderSize = 56
)

// Identity is the adapter-reported hostname/CPU/OS strings surfaced on a
// Handle so telemetry can record which physical device ran a kernel.
type Identity struct {
	Hostname string
	CPUDesc  string
	OSDesc   string
}

// Handle is a live, configured device session: a transport bound to one
// adapter, plus everything device_execute needs to validate and decode
// RESULT frames.
type Handle struct {
	tr         transport.Transport
	sessionID  uint32
	bootID     uint32
	adapterID  Identity
	outSamples uint32
	outChans   uint32
}

// OutputDims reports the output window shape this device will produce,
// resolved from the CONFIG request overridden by any non-zero ACK value.
func (h *Handle) OutputDims() (samples, channels uint32) {
	return h.outSamples, h.outChans
}

// Identity returns the adapter's self-reported hostname/CPU/OS strings.
func (h *Handle) Identity() Identity {
	return h.adapterID
}

// InitParams bundles device_init's arguments.
type InitParams struct {
	AdapterPath  string
	TransportURI string
	PluginName   string
	PluginParams []byte
	Fs, W, H, C  uint32
	Calibration  []byte
}

// DeviceInit builds a transport per p.TransportURI, runs the HELLO/CONFIG
// handshake, and returns a ready Handle.
func DeviceInit(p InitParams) (*Handle, error) {
	uri, err := transport.ParseURI(p.TransportURI)
	if err != nil {
		return nil, cortexerr.Wrap("device_init", cortexerr.INVALID_CONFIG, err)
	}

	var tr transport.Transport
	switch uri.Scheme {
	case "", "local":
		lt, err := transport.NewLocalHarnessPair(p.AdapterPath)
		if err != nil {
			return nil, cortexerr.Wrap("device_init", cortexerr.CONNRESET, err)
		}
		tr = lt
	case "tcp":
		ct, err := transport.NewTCPClient(uri)
		if err != nil {
			return nil, cortexerr.Wrap("device_init", cortexerr.CONNRESET, err)
		}
		tr = ct
	case "serial":
		st, err := transport.NewSerialTransport(uri)
		if err != nil {
			return nil, cortexerr.Wrap("device_init", cortexerr.CONNRESET, err)
		}
		tr = st
	case "shm":
		st, err := transport.NewSharedMemoryHarness(uri)
		if err != nil {
			return nil, cortexerr.Wrap("device_init", cortexerr.CONNRESET, err)
		}
		tr = st
	default:
		return nil, cortexerr.New("device_init", cortexerr.INVALID_CONFIG, "unknown transport scheme "+uri.Scheme)
	}

	h := &Handle{tr: tr}

	if err := h.receiveHello(); err != nil {
		tr.Close()
		return nil, err
	}

	h.sessionID = nonZeroRandomU32()

	if err := h.sendConfig(p); err != nil {
		tr.Close()
		return nil, err
	}

	if err := h.receiveAck(p); err != nil {
		tr.Close()
		return nil, err
	}

	return h, nil
}

func nonZeroRandomU32() uint32 {
	v := rand.Uint32()
	if v == 0 {
		v = 1
	}
	return v
}

func getFixedString(buf []byte, off int, width int) string {
	end := off + width
	n := off
	for n < end && buf[n] != 0 {
		n++
	}
	return string(buf[off:n])
}

func (h *Handle) receiveHello() error {
	buf := make([]byte, protocol.MaxPayloadSize)
	typ, payload, err := protocol.RecvFrame(h.tr, buf, protocol.HandshakeTimeout)
	if err != nil {
		return err
	}
	if typ == protocol.TypeError {
		return cortexerr.New("device_init", cortexerr.INVALID_FRAME, "adapter replied ERROR to handshake start")
	}
	if typ != protocol.TypeHello {
		return cortexerr.New("device_init", cortexerr.INVALID_FRAME, "expected HELLO frame")
	}
	if len(payload) < 4+adapterNameLen+4 {
		return cortexerr.New("device_init", cortexerr.INVALID_FRAME, "HELLO payload truncated")
	}
	off := 0
	h.bootID = wire.U32(payload, off)
	off += 4
	off += adapterNameLen // adapter_name, unused by the handle today
	off += 4              // adapter_abi_version
	kernelCount := int(wire.U32(payload, off))
	off += 4
	off += kernelCount * kernelNameLen
	off += 4 // max_window_samples
	off += 4 // max_channels
	if len(payload) < off+3*adapterNameLen {
		return cortexerr.New("device_init", cortexerr.INVALID_FRAME, "HELLO identification strings truncated")
	}
	h.adapterID.Hostname = getFixedString(payload, off, adapterNameLen)
	off += adapterNameLen
	h.adapterID.CPUDesc = getFixedString(payload, off, adapterNameLen)
	off += adapterNameLen
	h.adapterID.OSDesc = getFixedString(payload, off, adapterNameLen)
	return nil
}

func (h *Handle) sendConfig(p InitParams) error {
	calLen := len(p.Calibration)
	payload := make([]byte, configHeaderSize+calLen)
	wire.PutU32(payload, configSessionIDOff, h.sessionID)
	wire.PutU32(payload, configFsOff, p.Fs)
	wire.PutU32(payload, configWOff, p.W)
	wire.PutU32(payload, configHOff, p.H)
	wire.PutU32(payload, configCOff, p.C)
	copy(payload[configPluginNameOff:configPluginNameOff+configPluginNameLen], p.PluginName)
	if p.PluginParams != nil {
		copy(payload[configPluginParamOff:configPluginParamOff+configPluginParamLen], p.PluginParams)
	}
	wire.PutU32(payload, configCalSizeOff, uint32(calLen))
	copy(payload[configHeaderSize:], p.Calibration)

	return protocol.SendFrame(h.tr, protocol.TypeConfig, payload)
}

func (h *Handle) receiveAck(p InitParams) error {
	buf := make([]byte, protocol.MaxPayloadSize)
	typ, payload, err := protocol.RecvFrame(h.tr, buf, protocol.HandshakeTimeout)
	if err != nil {
		return err
	}
	if typ == protocol.TypeError {
		code := cortexerr.Code(payload)
		return cortexerr.New("device_init", code, "adapter rejected CONFIG")
	}
	if typ != protocol.TypeAck {
		return cortexerr.New("device_init", cortexerr.INVALID_FRAME, "expected ACK frame")
	}
	if len(payload) < 12 {
		return cortexerr.New("device_init", cortexerr.INVALID_FRAME, "ACK payload truncated")
	}
	outSamples := wire.U32(payload, 4)
	outChans := wire.U32(payload, 8)
	if outSamples == 0 {
		outSamples = p.W
	}
	if outChans == 0 {
		outChans = p.C
	}
	h.outSamples = outSamples
	h.outChans = outChans
	return nil
}

// ExecuteResult carries one window's device-side timing and status.
type ExecuteResult struct {
	Tin, Tstart, Tend, TfirstTx, TlastTx int64
	OutputSamples                       uint32
	OutputChannels                      uint32
	WindowFailed                        bool
	ErrorCode                           int32
}

// DeviceExecute sends input (sequence-stamped) to the device, waits for
// its RESULT, validates session/sequence identity, and copies the
// decoded output into outBuf.
func DeviceExecute(h *Handle, sequence uint32, input []float32, outBuf []float32, windowTimeout time.Duration) (ExecuteResult, error) {
	inBytes := make([]byte, len(input)*4)
	wire.PutF32Slice(inBytes, input)

	if err := chunking.SendChunked(h.tr, sequence, inBytes); err != nil {
		return ExecuteResult{}, err
	}

	resultBuf := make([]byte, (len(outBuf)*4+resultHeaderSize)+4096)
	n, err := chunking.RecvChunked(h.tr, sequence, resultBuf, windowTimeout)
	if err != nil {
		if cortexerr.IsCode(err, cortexerr.TIMEOUT) || cortexerr.IsCode(err, cortexerr.CONNRESET) {
			return ExecuteResult{WindowFailed: true}, err
		}
		return ExecuteResult{}, err
	}
	if n < resultHeaderSize {
		return ExecuteResult{}, cortexerr.New("device_execute", cortexerr.INVALID_FRAME, "RESULT payload truncated")
	}

	gotSessionID := wire.U32(resultBuf, 0)
	gotSequence := wire.U32(resultBuf, 4)
	if gotSessionID != h.sessionID {
		// Per the protocol-level taxonomy, a session mismatch on RESULT
		// is surfaced to callers as the chunking category's
		// SEQUENCE_MISMATCH rather than a distinct SESSION_MISMATCH code.
		return ExecuteResult{}, cortexerr.New("device_execute", cortexerr.SEQUENCE_MISMATCH, "RESULT session_id does not match handle")
	}
	if gotSequence != sequence {
		return ExecuteResult{}, cortexerr.New("device_execute", cortexerr.SEQUENCE_MISMATCH, "RESULT sequence does not match request")
	}

	res := ExecuteResult{
		Tin:            int64(wire.U64(resultBuf, 8)),
		Tstart:         int64(wire.U64(resultBuf, 16)),
		Tend:           int64(wire.U64(resultBuf, 24)),
		TfirstTx:       int64(wire.U64(resultBuf, 32)),
		TlastTx:        int64(wire.U64(resultBuf, 40)),
		OutputSamples:  wire.U32(resultBuf, 48),
		OutputChannels: wire.U32(resultBuf, 52),
	}

	expectedBytes := resultHeaderSize + int(res.OutputSamples)*int(res.OutputChannels)*4
	if n != expectedBytes {
		return ExecuteResult{}, cortexerr.New("device_execute", cortexerr.INVALID_FRAME,
			fmt.Sprintf("payload_length mismatch: got %d want %d", n, expectedBytes))
	}

	samples := wire.F32Slice(resultBuf[resultHeaderSize:n])
	copy(outBuf, samples)

	return res, nil
}

// DeviceTeardown closes the transport and reaps any spawned child,
// tolerating a half-initialized handle.
func DeviceTeardown(h *Handle) error {
	if h == nil || h.tr == nil {
		return nil
	}
	return h.tr.Close()
}

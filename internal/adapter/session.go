// Package adapter implements the out-of-process kernel host side of
// CORTEX: the state machine and window loop that cmd/cortex-adapter
// drives against the harness over a transport.Transport.
package adapter

import (
	"math/rand"
	"sync"

	"github.com/WestonVoglesonger/cortex/internal/chunking"
	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
	"github.com/WestonVoglesonger/cortex/internal/kernelreg"
	"github.com/WestonVoglesonger/cortex/internal/protocol"
	"github.com/WestonVoglesonger/cortex/internal/transport"
	"github.com/WestonVoglesonger/cortex/internal/wire"
)

// State is the adapter session's lifecycle stage.
type State int

const (
	StateUnconfigured State = iota
	StateReady
	StateExecuting
	StateTerminated
)

// CONFIG payload field offsets, per the documentation layout.
const (
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

	maxCalibrationBytes = 16 << 20

	adapterNameLen = 32
	kernelNameLen  = 32

	// resultHeaderSize: session_id(4) sequence(4) tin(8) tstart(8)
	// tend(8) tfirst_tx(8) tlast_tx(8) output_length_samples(4)
	// output_channels(4).
	resultHeaderSize = 56
)

// Identity describes the adapter process for the HELLO handshake.
type Identity struct {
	AdapterName      string
	Hostname         string
	CPUDesc          string
	OSDesc           string
	MaxWindowSamples uint32
	MaxChannels      uint32
}

// Session runs the adapter-side protocol state machine against one
// transport for the lifetime of one harness connection.
type Session struct {
	tr       transport.Transport
	registry *kernelreg.Registry
	identity Identity

	mu        sync.Mutex
	state     State
	sessionID uint32
	sequence  uint32
	kernel    kernelreg.Kernel
	outShape  kernelreg.OutputShape
	cfgC      uint32
}

// NewSession constructs an adapter session bound to tr, serving kernels
// out of registry.
func NewSession(tr transport.Transport, registry *kernelreg.Registry, identity Identity) *Session {
	return &Session{tr: tr, registry: registry, identity: identity, state: StateUnconfigured}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run drives the session to completion: HELLO, CONFIG, then the window
// loop until transport EOF or a fatal error. It returns nil on a clean
// transport-EOF exit.
func (s *Session) Run() error {
	if err := s.sendHello(); err != nil {
		return err
	}

	if err := s.handleConfig(); err != nil {
		s.setState(StateTerminated)
		s.closeKernel()
		return err
	}
	s.setState(StateReady)

	for {
		if err := s.runOneWindow(); err != nil {
			if cortexerr.IsCode(err, cortexerr.CONNRESET) {
				s.setState(StateTerminated)
				s.closeKernel()
				return nil
			}
			s.sendError(err)
			s.setState(StateTerminated)
			s.closeKernel()
			return err
		}
	}
}

// closeKernel frees kernel state on every exit path out of Run, whether
// clean (transport EOF) or an init/window failure.
func (s *Session) closeKernel() {
	s.mu.Lock()
	kernel := s.kernel
	s.kernel = nil
	s.mu.Unlock()
	if kernel != nil {
		_ = kernel.Close()
	}
}

func (s *Session) sendHello() error {
	buf := make([]byte, 4+adapterNameLen+4+4+len(s.registry.Names())*kernelNameLen+4+4+adapterNameLen+adapterNameLen+adapterNameLen)
	off := 0
	bootID := rand.Uint32()
	if bootID == 0 {
		bootID = 1
	}
	wire.PutU32(buf, off, bootID)
	off += 4
	off += putFixedString(buf, off, s.identity.AdapterName, adapterNameLen)
	wire.PutU32(buf, off, 1) // adapter_abi_version
	off += 4
	names := s.registry.Names()
	wire.PutU32(buf, off, uint32(len(names)))
	off += 4
	for _, n := range names {
		off += putFixedString(buf, off, n, kernelNameLen)
	}
	wire.PutU32(buf, off, s.identity.MaxWindowSamples)
	off += 4
	wire.PutU32(buf, off, s.identity.MaxChannels)
	off += 4
	off += putFixedString(buf, off, s.identity.Hostname, adapterNameLen)
	off += putFixedString(buf, off, s.identity.CPUDesc, adapterNameLen)
	off += putFixedString(buf, off, s.identity.OSDesc, adapterNameLen)

	return protocol.SendFrame(s.tr, protocol.TypeHello, buf[:off])
}

func putFixedString(buf []byte, off int, v string, width int) int {
	b := []byte(v)
	if len(b) > width {
		b = b[:width]
	}
	copy(buf[off:off+width], b)
	return width
}

func getFixedString(buf []byte, off int, width int) string {
	end := off + width
	n := off
	for n < end && buf[n] != 0 {
		n++
	}
	return string(buf[off:n])
}

func (s *Session) handleConfig() error {
	frameBuf := make([]byte, protocol.MaxPayloadSize)
	typ, payload, err := protocol.RecvFrame(s.tr, frameBuf, protocol.HandshakeTimeout)
	if err != nil {
		return err
	}
	if typ != protocol.TypeConfig {
		return cortexerr.New("handle_config", cortexerr.INVALID_CONFIG, "expected CONFIG frame")
	}
	if len(payload) < configHeaderSize {
		return cortexerr.New("handle_config", cortexerr.INVALID_CONFIG, "CONFIG payload truncated")
	}

	sessionID := wire.U32(payload, configSessionIDOff)
	fs := wire.U32(payload, configFsOff)
	w := wire.U32(payload, configWOff)
	h := wire.U32(payload, configHOff)
	c := wire.U32(payload, configCOff)
	pluginName := getFixedString(payload, configPluginNameOff, configPluginNameLen)
	pluginParams := append([]byte{}, payload[configPluginParamOff:configPluginParamOff+configPluginParamLen]...)
	calSize := wire.U32(payload, configCalSizeOff)

	if sessionID == 0 {
		return s.configError(cortexerr.INVALID_CONFIG, "session_id must be non-zero")
	}
	if fs == 0 {
		return s.configError(cortexerr.INVALID_CONFIG, "Fs must be positive")
	}
	if w == 0 || h == 0 || h > w {
		return s.configError(cortexerr.INVALID_CONFIG, "invalid window/hop geometry")
	}
	if w > s.identity.MaxWindowSamples {
		return s.configError(cortexerr.INVALID_CONFIG, "W exceeds max_window_samples")
	}
	if c > s.identity.MaxChannels {
		return s.configError(cortexerr.INVALID_CONFIG, "C exceeds max_channels")
	}
	if calSize > maxCalibrationBytes {
		return s.configError(cortexerr.CALIBRATION_TOOBIG, "calibration_state_size exceeds 16 MiB")
	}
	if uint32(len(payload)) < configHeaderSize+calSize {
		return s.configError(cortexerr.INVALID_CONFIG, "calibration payload shorter than declared size")
	}

	kernel, err := s.registry.New(pluginName)
	if err != nil {
		return s.configError(cortexerr.KERNEL_NOT_FOUND, "no such kernel: "+pluginName)
	}

	calibration := append([]byte{}, payload[configHeaderSize:configHeaderSize+calSize]...)
	shape, err := kernel.Init(kernelreg.KernelConfig{Fs: fs, W: w, H: h, C: c, PluginParams: pluginParams}, calibration)
	if err != nil {
		return s.configError(cortexerr.KERNEL_INIT_FAILED, err.Error())
	}

	s.mu.Lock()
	s.sessionID = sessionID
	s.kernel = kernel
	s.outShape = shape
	s.cfgC = c
	s.sequence = 0
	s.mu.Unlock()

	ack := make([]byte, 12)
	wire.PutU32(ack, 0, 0) // ack_type
	wire.PutU32(ack, 4, shape.OutputSamples)
	wire.PutU32(ack, 8, shape.OutputChannels)
	return protocol.SendFrame(s.tr, protocol.TypeAck, ack)
}

func (s *Session) configError(code cortexerr.Code, msg string) error {
	err := cortexerr.New("handle_config", code, msg)
	s.sendError(err)
	return err
}

func (s *Session) sendError(err error) {
	code, _ := cortexerr.CodeOf(err)
	payload := []byte(code)
	_ = protocol.SendFrame(s.tr, protocol.TypeError, payload)
}

func (s *Session) runOneWindow() error {
	s.setState(StateReady)

	s.mu.Lock()
	expectedSeq := s.sequence
	c := s.cfgC
	s.mu.Unlock()

	windowBytes := make([]byte, protocol.MaxPayloadSize*16)
	n, err := chunking.RecvChunked(s.tr, expectedSeq, windowBytes, protocol.DefaultWindowTimeout)
	if err != nil {
		return err
	}
	tin := s.tr.MonotonicTimestampNs()

	s.setState(StateExecuting)

	samples := wire.F32Slice(windowBytes[:n])

	tstart := s.tr.MonotonicTimestampNs()
	s.mu.Lock()
	kernel := s.kernel
	s.mu.Unlock()
	out, execErr := kernel.Execute(samples)
	tend := s.tr.MonotonicTimestampNs()
	if execErr != nil {
		return cortexerr.Wrap("kernel_execute", cortexerr.KERNEL_EXEC_FAILED, execErr)
	}

	outChannels := c
	if outChannels == 0 {
		outChannels = 1
	}
	outSamples := uint32(0)
	if len(out) > 0 {
		outSamples = uint32(len(out)) / outChannels
	}

	s.mu.Lock()
	sessionID := s.sessionID
	sequence := s.sequence
	s.mu.Unlock()

	// tfirst_tx/tlast_tx bracket the transmit path. Because both values
	// must already be present in the header that SendChunked transmits,
	// they are sampled back to back immediately before the call rather
	// than truly bracketing network time — SendChunked itself runs as
	// one uninterrupted operation from the adapter's perspective.
	tfirstTx := s.tr.MonotonicTimestampNs()
	tlastTx := tfirstTx

	resultHeader := make([]byte, resultHeaderSize)
	wire.PutU32(resultHeader, 0, sessionID)
	wire.PutU32(resultHeader, 4, sequence)
	wire.PutU64(resultHeader, 8, uint64(tin))
	wire.PutU64(resultHeader, 16, uint64(tstart))
	wire.PutU64(resultHeader, 24, uint64(tend))
	wire.PutU64(resultHeader, 32, uint64(tfirstTx))
	wire.PutU64(resultHeader, 40, uint64(tlastTx))
	wire.PutU32(resultHeader, 48, outSamples)
	wire.PutU32(resultHeader, 52, outChannels)

	outBytes := make([]byte, resultHeaderSize+len(out)*4)
	copy(outBytes, resultHeader)
	wire.PutF32Slice(outBytes[resultHeaderSize:], out)

	if err := chunking.SendChunked(s.tr, sequence, outBytes); err != nil {
		return err
	}

	s.mu.Lock()
	s.sequence++
	s.mu.Unlock()
	s.setState(StateReady)
	return nil
}

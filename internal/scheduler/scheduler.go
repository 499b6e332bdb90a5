// Package scheduler implements the sliding-window dispatcher: it
// accumulates samples into fixed-size windows and drives every
// registered device through one execute per window, recording
// per-device timing into a telemetry.Buffer.
package scheduler

import (
	"math"
	"time"

	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
	"github.com/WestonVoglesonger/cortex/internal/devsession"
	"github.com/WestonVoglesonger/cortex/internal/obsmetrics"
	"github.com/WestonVoglesonger/cortex/internal/telemetry"
	"github.com/WestonVoglesonger/cortex/internal/transport"
)

// Device is one registered execution target: a device handle plus the
// plugin/adapter identity strings recorded into telemetry.
type Device struct {
	Handle      *devsession.Handle
	PluginName  string
	AdapterName string
	OutBuf      []float32
}

// Config fixes the geometry and pacing of one scheduler instance.
type Config struct {
	Fs            uint32
	W             uint32
	H             uint32
	C             uint32
	WarmupSeconds float64
	RunID         string
}

// Scheduler accumulates a contiguous sample stream and dispatches one
// complete (W, C) window at a time to every registered device, in
// registration order, recording telemetry for windows past warmup.
type Scheduler struct {
	cfg     Config
	devices []Device
	buf     []float32
	fill    int

	warmupRemaining int64
	windowCount     uint64
	repeatIndex     int

	telemetry *telemetry.Buffer
	obs       *obsmetrics.Metrics // nil when metrics export is disabled
}

// SetObsMetrics attaches a Prometheus collector set; dispatch() reports
// to it in addition to appending telemetry.Records. Passing nil (the
// zero value) disables reporting.
func (s *Scheduler) SetObsMetrics(m *obsmetrics.Metrics) {
	s.obs = m
}

// SetRepeatIndex records which repeat of the benchmark loop subsequent
// dispatches belong to; cmd/cortex builds one scheduler per repeat and
// sets it once before feeding samples.
func (s *Scheduler) SetRepeatIndex(i int) {
	s.repeatIndex = i
}

// New allocates a scheduler with a pre-sized input buffer of capacity
// W*C, returning an overflow error if that product does not fit a Go
// int.
func New(cfg Config, devices []Device, buf *telemetry.Buffer) (*Scheduler, error) {
	capacity, err := checkedMulInt(int(cfg.W), int(cfg.C))
	if err != nil {
		return nil, cortexerr.Wrap("scheduler_new", cortexerr.ARITHMETIC_OVERFLOW, err)
	}
	warmupWindows := int64(math.Floor(cfg.WarmupSeconds * float64(cfg.Fs) / float64(cfg.H)))
	if warmupWindows < 0 {
		warmupWindows = 0
	}
	return &Scheduler{
		cfg:             cfg,
		devices:         devices,
		buf:             make([]float32, capacity),
		warmupRemaining: warmupWindows,
		telemetry:       buf,
	}, nil
}

func checkedMulInt(a, b int) (int, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/a != b {
		return 0, cortexerr.New("checked_mul", cortexerr.ARITHMETIC_OVERFLOW, "multiplication overflow")
	}
	return r, nil
}

// FeedSamples appends samples to the input buffer, dispatching and
// shifting by H*C every time a complete window accumulates, and keeps
// copying until every sample is consumed, so producer chunks of any
// size are accepted.
func (s *Scheduler) FeedSamples(samples []float32) error {
	windowSize, err := checkedMulInt(int(s.cfg.W), int(s.cfg.C))
	if err != nil {
		return err
	}
	hopSize, err := checkedMulInt(int(s.cfg.H), int(s.cfg.C))
	if err != nil {
		return err
	}

	for len(samples) > 0 {
		remaining := len(s.buf) - s.fill
		toCopy := len(samples)
		if toCopy > remaining {
			toCopy = remaining
		}
		copy(s.buf[s.fill:], samples[:toCopy])
		s.fill += toCopy
		samples = samples[toCopy:]

		for s.fill >= windowSize {
			window := append([]float32{}, s.buf[:windowSize]...)
			if err := s.dispatch(window); err != nil {
				return err
			}
			copy(s.buf, s.buf[hopSize:s.fill])
			s.fill -= hopSize
		}
		if toCopy == 0 {
			break
		}
	}
	return nil
}

// Flush dispatches a remaining complete window, if any. FeedSamples
// dispatches every complete window as soon as it accumulates, so after
// a FeedSamples call fewer than W*C samples remain buffered and Flush
// finds nothing to dispatch; it exists for symmetry with the buffer
// lifecycle.
func (s *Scheduler) Flush() error {
	windowSize, err := checkedMulInt(int(s.cfg.W), int(s.cfg.C))
	if err != nil {
		return err
	}
	if s.fill >= windowSize {
		window := append([]float32{}, s.buf[:windowSize]...)
		return s.dispatch(window)
	}
	return nil
}

func (s *Scheduler) dispatch(window []float32) error {
	releaseTs := transport.Now()
	hopNs := int64(math.Round(1e9 * float64(s.cfg.H) / float64(s.cfg.Fs)))
	deadlineTs := releaseTs + hopNs

	sequence := uint32(s.windowCount)
	type devResult struct {
		hostStart, hostEnd int64
		deadlineMissed     bool
		windowFailed       bool
		errorCode          int32
		res                devsession.ExecuteResult
	}
	results := make([]devResult, len(s.devices))

	for i, dev := range s.devices {
		hostStart := transport.Now()
		res, err := devsession.DeviceExecute(dev.Handle, sequence, window, dev.OutBuf, telemetryWindowTimeout)
		hostEnd := transport.Now()

		dr := devResult{hostStart: hostStart, hostEnd: hostEnd, deadlineMissed: hostEnd > deadlineTs}
		if err != nil {
			dr.windowFailed = true
			if code, ok := cortexerr.CodeOf(err); ok {
				dr.errorCode = codeToInt(code)
			}
		} else {
			dr.res = res
		}
		results[i] = dr
	}

	s.windowCount++

	if s.warmupRemaining > 0 {
		s.warmupRemaining--
		return nil
	}

	for i, dev := range s.devices {
		dr := results[i]
		if s.obs != nil {
			s.obs.RecordWindow(dev.PluginName, dev.AdapterName, dr.hostEnd-dr.hostStart, dr.deadlineMissed, dr.windowFailed)
		}
		rec := telemetry.Record{
			RunID:          s.cfg.RunID,
			PluginName:     dev.PluginName,
			AdapterName:    dev.AdapterName,
			WindowIndex:    s.windowCount - 1,
			W:              s.cfg.W,
			H:              s.cfg.H,
			C:              s.cfg.C,
			Fs:             s.cfg.Fs,
			Warmup:         false,
			RepeatIndex:    s.repeatIndex,
			ReleaseTsNs:    releaseTs,
			DeadlineTsNs:   deadlineTs,
			HostStartTsNs:  dr.hostStart,
			HostEndTsNs:    dr.hostEnd,
			DeadlineMissed: dr.deadlineMissed,
			DeviceTin:      dr.res.Tin,
			DeviceTstart:   dr.res.Tstart,
			DeviceTend:     dr.res.Tend,
			DeviceTfirstTx: dr.res.TfirstTx,
			DeviceTlastTx:  dr.res.TlastTx,
			WindowFailed:   dr.windowFailed,
			ErrorCode:      dr.errorCode,
		}
		if err := s.telemetry.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

// telemetryWindowTimeout is the default per-window device_execute
// timeout; overridable per session in a future config surface revision.
const telemetryWindowTimeout = 1000 * time.Millisecond

func codeToInt(c cortexerr.Code) int32 {
	var h int32
	for _, r := range string(c) {
		h = h*31 + int32(r)
	}
	return h
}

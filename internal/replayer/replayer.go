// Package replayer streams a raw float32 dataset file to a scheduler at
// the dataset's nominal sample rate, on its own goroutine, handing
// samples to the scheduler goroutine over a capacity-1 channel so the
// replayer never runs ahead of the deadline clock.
package replayer

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
)

// Config fixes the dataset geometry driving one replay pass.
type Config struct {
	Path         string
	Channels     uint32
	SampleRateHz uint32
	ChunkSamples uint32 // frames per pushed chunk; a multiple of H is typical
}

// Replayer reads Config.Path as a flat little-endian float32 stream
// (interleaved by channel, matching the CONFIG/dataset sample format)
// and emits fixed-size chunks on Chunks, paced to SampleRateHz.
type Replayer struct {
	cfg    Config
	Chunks chan []float32
}

// New opens the dataset file and returns a Replayer ready to Run.
func New(cfg Config) (*Replayer, *os.File, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, nil, cortexerr.New("replayer_new", cortexerr.INVALID_CONFIG, fmt.Sprintf("open %s: %v", cfg.Path, err))
	}
	return &Replayer{cfg: cfg, Chunks: make(chan []float32, 1)}, f, nil
}

// Run reads chunks of cfg.ChunkSamples frames (cfg.ChunkSamples*Channels
// float32s) from f and pushes them to Chunks at the dataset's pacing,
// closing Chunks on EOF, a read error, or ctx cancellation.
func (r *Replayer) Run(ctx context.Context, f *os.File) error {
	defer close(r.Chunks)
	defer f.Close()

	frameBytes := int(r.cfg.ChunkSamples) * int(r.cfg.Channels) * 4
	buf := make([]byte, frameBytes)
	chunkDuration := time.Duration(float64(r.cfg.ChunkSamples) / float64(r.cfg.SampleRateHz) * float64(time.Second))
	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	for {
		n, err := readFull(f, buf)
		if n > 0 {
			samples := bytesToFloat32(buf[:n])
			select {
			case r.Chunks <- samples:
			case <-ctx.Done():
				return nil
			}
		}
		if err != nil {
			return nil // EOF or short read ends the replay cleanly
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func bytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

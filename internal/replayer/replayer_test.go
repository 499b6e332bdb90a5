package replayer

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFloats(t *testing.T, values []float32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestReplayerStreamsAllChunks(t *testing.T) {
	path := writeFloats(t, []float32{1, 2, 3, 4, 5, 6, 7, 8})
	r, f, err := New(Config{Path: path, Channels: 1, SampleRateHz: 10000, ChunkSamples: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, f) }()

	var got []float32
	for chunk := range r.Chunks {
		got = append(got, chunk...)
	}
	require.NoError(t, <-done)
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestReplayerStopsOnContextCancel(t *testing.T) {
	path := writeFloats(t, make([]float32, 1000))
	r, f, err := New(Config{Path: path, Channels: 1, SampleRateHz: 1, ChunkSamples: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, f) }()

	<-r.Chunks
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("replayer did not stop after context cancel")
	}
}

func TestNewRejectsMissingFile(t *testing.T) {
	_, _, err := New(Config{Path: "/no/such/file"})
	require.Error(t, err)
}

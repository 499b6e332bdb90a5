package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEndianRoundTrip(t *testing.T) {
	buf := make([]byte, 32)

	PutU16(buf, 0, 0xBEEF)
	require.Equal(t, uint16(0xBEEF), U16(buf, 0))

	PutU32(buf, 2, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), U32(buf, 2))

	PutU64(buf, 6, 0x0102030405060708)
	require.Equal(t, uint64(0x0102030405060708), U64(buf, 6))

	PutF32(buf, 14, 3.5)
	require.InDelta(t, float32(3.5), F32(buf, 14), 0)
}

func TestEndianByteOrder(t *testing.T) {
	buf := make([]byte, 4)
	PutU32(buf, 0, 0x01020304)
	// Little-endian: least significant byte first.
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf)
}

func TestFloat32SliceRoundTrip(t *testing.T) {
	samples := []float32{0, 1, -1.5, math.MaxFloat32, math.SmallestNonzeroFloat32}
	buf := make([]byte, 4*len(samples))
	PutF32Slice(buf, samples)

	got := F32Slice(buf)
	require.Equal(t, samples, got)
}

func TestEndiannessIndependence(t *testing.T) {
	// Simulate decoding on a big-endian host by explicitly reversing the
	// bytes of a little-endian-encoded value and decoding them most
	// significant byte first; the original value must still come out.
	buf := make([]byte, 4)
	PutU32(buf, 0, 0x11223344)

	reversed := make([]byte, 4)
	for i, b := range buf {
		reversed[len(buf)-1-i] = b
	}

	var be uint32
	for _, b := range reversed {
		be = be<<8 | uint32(b)
	}
	require.Equal(t, uint32(0x11223344), be)
}

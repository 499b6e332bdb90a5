// Package wire provides explicit little-endian byte-offset load/store
// helpers and the CRC32 checksum used across the CORTEX wire protocol.
//
// Every multi-byte field on the wire is read and written through these
// helpers rather than a typed pointer cast over a byte slice: unaligned
// reinterpret casts are undefined behavior on architectures that require
// natural alignment, so no code path in this module may do that.
package wire

import (
	"encoding/binary"
	"math"
)

// PutU16 stores v at buf[off:off+2] in little-endian order.
func PutU16(buf []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(buf[off:off+2], v)
}

// U16 loads a little-endian uint16 from buf[off:off+2].
func U16(buf []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(buf[off : off+2])
}

// PutU32 stores v at buf[off:off+4] in little-endian order.
func PutU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], v)
}

// U32 loads a little-endian uint32 from buf[off:off+4].
func U32(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

// PutU64 stores v at buf[off:off+8] in little-endian order.
func PutU64(buf []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(buf[off:off+8], v)
}

// U64 loads a little-endian uint64 from buf[off:off+8].
func U64(buf []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(buf[off : off+8])
}

// PutF32 stores v at buf[off:off+4] as an IEEE-754 single-precision float,
// little-endian byte order.
func PutF32(buf []byte, off int, v float32) {
	PutU32(buf, off, math.Float32bits(v))
}

// F32 loads a little-endian IEEE-754 single-precision float from
// buf[off:off+4].
func F32(buf []byte, off int) float32 {
	return math.Float32frombits(U32(buf, off))
}

// PutF32Slice encodes a slice of float32 samples into dst (little-endian,
// 4 bytes each), in a single pass. dst must be at least 4*len(samples)
// bytes.
func PutF32Slice(dst []byte, samples []float32) {
	for i, s := range samples {
		PutF32(dst, i*4, s)
	}
}

// F32Slice decodes a little-endian byte buffer into a freshly allocated
// slice of float32 samples, in a single pass. len(buf) must be a multiple
// of 4.
func F32Slice(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = F32(buf, i*4)
	}
	return out
}

// Package chunking splits and reassembles payloads larger than one
// frame's 64 KiB limit into a sequence of WINDOW_CHUNK frames.
package chunking

import (
	"time"

	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
	"github.com/WestonVoglesonger/cortex/internal/protocol"
	"github.com/WestonVoglesonger/cortex/internal/transport"
	"github.com/WestonVoglesonger/cortex/internal/wire"
)

// ChunkSize is the compile-time chunk payload size.
const ChunkSize = 8192

// chunkHeaderSize is sequence(4) + total_bytes(4) + offset_bytes(4) +
// chunk_length(4) + flags(4).
const chunkHeaderSize = 20

const flagLast uint32 = 1 << 0

// SendChunked emits WINDOW_CHUNK frames covering bytes in order,
// ChunkSize at a time, the final chunk carrying the LAST flag.
func SendChunked(tr transport.Transport, sequence uint32, bytes []byte) error {
	total := uint32(len(bytes))
	offset := uint32(0)
	for {
		remaining := total - offset
		n := remaining
		if n > ChunkSize {
			n = ChunkSize
		}
		last := offset+n >= total

		buf := make([]byte, chunkHeaderSize+int(n))
		wire.PutU32(buf, 0, sequence)
		wire.PutU32(buf, 4, total)
		wire.PutU32(buf, 8, offset)
		wire.PutU32(buf, 12, n)
		var flags uint32
		if last {
			flags |= flagLast
		}
		wire.PutU32(buf, 16, flags)
		copy(buf[chunkHeaderSize:], bytes[offset:offset+n])

		if err := protocol.SendFrame(tr, protocol.TypeWindowChunk, buf); err != nil {
			return err
		}

		offset += n
		if last {
			return nil
		}
	}
}

// RecvChunked receives WINDOW_CHUNK frames for sequenceExpected until a
// LAST-tagged chunk arrives, reassembling into outBuf. Chunks must carry
// the expected sequence and arrive in contiguous monotonic offset order;
// coverage is tracked and checked for gaps before returning.
func RecvChunked(tr transport.Transport, sequenceExpected uint32, outBuf []byte, totalTimeout time.Duration) (int, error) {
	deadline := time.Now().Add(totalTimeout)
	frameBuf := make([]byte, protocol.MaxPayloadSize)

	var totalBytes uint32
	var covered uint32 // bytes covered so far, contiguous from 0 (chunks arrive in order)
	sawTotal := false
	done := false

	for !done {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, cortexerr.New("recv_chunked", cortexerr.TIMEOUT, "timed out before LAST chunk")
		}
		typ, payload, err := protocol.RecvFrame(tr, frameBuf, remaining)
		if err != nil {
			return 0, err
		}
		if typ == protocol.TypeError {
			return 0, cortexerr.New("recv_chunked", cortexerr.Code(payload), "adapter sent ERROR instead of a chunk")
		}
		if typ != protocol.TypeWindowChunk {
			return 0, cortexerr.New("recv_chunked", cortexerr.INVALID_FRAME, "expected WINDOW_CHUNK frame")
		}
		if len(payload) < chunkHeaderSize {
			return 0, cortexerr.New("recv_chunked", cortexerr.INVALID_FRAME, "chunk header truncated")
		}

		sequence := wire.U32(payload, 0)
		total := wire.U32(payload, 4)
		offset := wire.U32(payload, 8)
		length := wire.U32(payload, 12)
		flags := wire.U32(payload, 16)

		if sequence != sequenceExpected {
			return 0, cortexerr.New("recv_chunked", cortexerr.SEQUENCE_MISMATCH, "chunk sequence does not match expected")
		}
		if !sawTotal {
			totalBytes = total
			sawTotal = true
			if totalBytes > uint32(len(outBuf)) {
				return 0, cortexerr.New("recv_chunked", cortexerr.CHUNK_BUFFER_TOO_SMALL, "total bytes exceed caller buffer")
			}
		} else if total != totalBytes {
			return 0, cortexerr.New("recv_chunked", cortexerr.INVALID_FRAME, "total_bytes changed mid-transfer")
		}
		if offset != covered {
			return 0, cortexerr.New("recv_chunked", cortexerr.INCOMPLETE, "chunk offset is not contiguous with prior coverage")
		}
		if uint32(len(payload)) < chunkHeaderSize+length {
			return 0, cortexerr.New("recv_chunked", cortexerr.INVALID_FRAME, "chunk payload shorter than declared length")
		}

		copy(outBuf[offset:], payload[chunkHeaderSize:chunkHeaderSize+length])
		covered += length

		if flags&flagLast != 0 {
			if covered != totalBytes {
				return 0, cortexerr.New("recv_chunked", cortexerr.INCOMPLETE, "LAST chunk arrived without full coverage")
			}
			done = true
		}
	}

	return int(totalBytes), nil
}

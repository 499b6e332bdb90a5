// Package transport implements the CORTEX transport abstraction: a
// uniform reliable byte-stream with bounded-timeout receive, realized
// over local paired descriptors, TCP, UART/serial, and a shared-memory
// ring.
package transport

import (
	"time"

	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
)

// Transport is a reliable bidirectional byte stream with a
// bounded-timeout receive. send is blocking until the full buffer is
// accepted or the connection is lost.
type Transport interface {
	// Send writes the entirety of data, blocking until every byte is
	// accepted or the connection is lost (cortexerr.CONNRESET).
	Send(data []byte) error

	// Recv reads up to len(buf) bytes, blocking at most timeout before
	// returning cortexerr.TIMEOUT if nothing arrived. It returns the
	// number of bytes read.
	Recv(buf []byte, timeout time.Duration) (int, error)

	// Close releases the transport's resources. It is safe to call more
	// than once.
	Close() error

	// MonotonicTimestampNs returns the current time on a monotonic clock,
	// in nanoseconds, as observed by this side of the transport.
	MonotonicTimestampNs() int64
}

func timeoutErr(op string) error {
	return cortexerr.New(op, cortexerr.TIMEOUT, "timed out waiting for bytes")
}

func connResetErr(op string, cause error) error {
	return cortexerr.Wrap(op, cortexerr.CONNRESET, cause)
}

// Package cortexerr defines CORTEX's stable error taxonomy: transport,
// framing, chunking, session, and adapter-generic categories, each a
// fixed string Code, that stay consistent across every component so the scheduler can make
// per-window-recoverable vs. per-plugin-fatal vs. run-fatal decisions
// without inspecting error strings.
package cortexerr

import (
	"errors"
	"fmt"
)

// Code is a stable, comparable error category.
type Code string

const (
	// Transport errors.
	TIMEOUT   Code = "TIMEOUT"
	CONNRESET Code = "CONNRESET"

	// Framing errors.
	MAGIC_NOT_FOUND   Code = "MAGIC_NOT_FOUND"
	CRC_MISMATCH      Code = "CRC_MISMATCH"
	VERSION_MISMATCH  Code = "VERSION_MISMATCH"
	FRAME_TOO_LARGE   Code = "FRAME_TOO_LARGE"
	BUFFER_TOO_SMALL  Code = "BUFFER_TOO_SMALL"
	INVALID_FRAME     Code = "INVALID_FRAME"

	// Chunking errors.
	SEQUENCE_MISMATCH     Code = "SEQUENCE_MISMATCH"
	INCOMPLETE            Code = "INCOMPLETE"
	CHUNK_BUFFER_TOO_SMALL Code = "CHUNK_BUFFER_TOO_SMALL"

	// Session errors.
	KERNEL_NOT_FOUND   Code = "KERNEL_NOT_FOUND"
	KERNEL_INIT_FAILED Code = "KERNEL_INIT_FAILED"
	KERNEL_EXEC_FAILED Code = "KERNEL_EXEC_FAILED"
	SESSION_MISMATCH   Code = "SESSION_MISMATCH"

	// Adapter-generic errors.
	CALIBRATION_TOOBIG Code = "CALIBRATION_TOOBIG"
	INVALID_CONFIG     Code = "INVALID_CONFIG"

	// Resource/overflow errors (new: CORTEX arithmetic-overflow posture,
	// spec.md §4.7/§4.8 — distinct from allocation failure).
	ARITHMETIC_OVERFLOW Code = "ARITHMETIC_OVERFLOW"
)

// Error is a structured CORTEX error with context and a wrapped cause.
type Error struct {
	Op    string // operation that failed, e.g. "recv_frame", "device_init"
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("cortex: %s: %s (%s)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("cortex: %s (%s)", msg, e.Code)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by Code rather than identity.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// New creates a structured error for the given operation and category.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// Wrap attaches an operation and category to an existing error.
func Wrap(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	msg := inner.Error()
	return &Error{Op: op, Code: code, Msg: msg, Inner: inner}
}

// IsCode reports whether err (or any error it wraps) carries the given
// code.
func IsCode(err error, code Code) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// CodeOf extracts the Code carried by err, if any, and whether one was
// found.
func CodeOf(err error) (Code, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

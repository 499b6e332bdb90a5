package telemetry

import (
	"sync"

	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
)

// Buffer is an ordered, append-only sequence of Records with
// capacity-doubling growth. Appends happen only from the scheduler
// thread per the concurrency model; the mutex here guards concurrent
// reads (index/range lookups, writers) against that single writer
// rather than protecting against concurrent writers.
type Buffer struct {
	mu      sync.RWMutex
	records []Record
}

// NewBuffer allocates a buffer with the given initial capacity.
func NewBuffer(initialCap int) *Buffer {
	if initialCap < 0 {
		initialCap = 0
	}
	return &Buffer{records: make([]Record, 0, initialCap)}
}

// Append adds r to the buffer, doubling capacity (overflow-checked) when
// full.
func (b *Buffer) Append(r Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == cap(b.records) {
		newCap := growCapacity(cap(b.records))
		if newCap < 0 {
			return cortexerr.New("telemetry_append", cortexerr.ARITHMETIC_OVERFLOW, "buffer capacity doubling overflowed")
		}
		grown := make([]Record, len(b.records), newCap)
		copy(grown, b.records)
		b.records = grown
	}
	b.records = append(b.records, r)
	return nil
}

func growCapacity(current int) int {
	if current == 0 {
		return 16
	}
	doubled := current * 2
	if doubled <= current {
		return -1 // overflow
	}
	return doubled
}

// Len returns the number of records currently stored.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// At returns the record at index, or an error if out of range.
func (b *Buffer) At(index int) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= len(b.records) {
		return Record{}, cortexerr.New("telemetry_at", cortexerr.INVALID_CONFIG, "index out of range")
	}
	return b.records[index], nil
}

// Range returns a copy of records in [start, end).
func (b *Buffer) Range(start, end int) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if start < 0 || end > len(b.records) || start > end {
		return nil, cortexerr.New("telemetry_range", cortexerr.INVALID_CONFIG, "range out of bounds")
	}
	out := make([]Record, end-start)
	copy(out, b.records[start:end])
	return out, nil
}

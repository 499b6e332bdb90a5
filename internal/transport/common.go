package transport

import "time"

// processMonotonicStart anchors this process's monotonic clock; every
// MonotonicTimestampNs() call returns nanoseconds elapsed since process
// start. Two processes (e.g. harness and adapter) never share this clock
// — per spec, host and device timestamps are independent and only
// meaningful as deltas within one side.
var processMonotonicStart = time.Now()

func monotonicNowNs() int64 {
	return time.Since(processMonotonicStart).Nanoseconds()
}

// Now returns the current time on the same process-local monotonic clock
// every Transport.MonotonicTimestampNs() call draws from, for callers
// (the scheduler's release/deadline timestamps) that need a host-side
// clock reading without going through a specific transport instance.
func Now() int64 {
	return monotonicNowNs()
}

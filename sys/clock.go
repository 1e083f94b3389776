package sys

import "time"

// clockBase is the monotonic reference point NowNano readings count from.
var clockBase = time.Now()

// NowNano returns nanoseconds elapsed since package init, read from the
// monotonic clock, so readings are non-decreasing across a process
// lifetime. time.Now() on every supported platform carries a monotonic
// reading and time.Since uses it; this wrapper exists to give call sites a
// single, explicit vocabulary ("NowNano", "Since") rather than reaching
// for time.Now() ad hoc in five packages.
func NowNano() int64 { return int64(time.Since(clockBase)) }

// Since returns the elapsed monotonic duration since a NowNano() reading.
func Since(startNano int64) time.Duration {
	return time.Duration(NowNano() - startNano)
}

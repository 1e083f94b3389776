package sys

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// CacheLineSize returns the detected L1 data cache line size, falling back
// to 64 bytes (the common case) when cpuid can't determine it. The
// lock-free queue's node struct pads itself assuming this is 64 bytes; a
// debug-build init() assertion (see queue.go) checks the assumption
// against the detected size, since Go has no way to size an array field
// at runtime.
func CacheLineSize() int {
	if sz := cpuid.CPU.Cache.Line; sz > 0 {
		return sz
	}
	return 64
}

// DefaultWorkerCount derives an initial worker-pool size from the number
// of physical CPU cores rather than logical ones: workers run blocking
// syscalls (static-file reads, scan subprocesses), so sizing off
// hyperthread-inflated logical-core counts would oversubscribe the
// physical execution units those workers actually contend for. Falls back
// to runtime.NumCPU when cpuid can't determine the physical core count.
func DefaultWorkerCount() int {
	n := cpuid.CPU.PhysicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n < 2 {
		return 2
	}
	return n
}

package sys

import "github.com/lufia/iostat"

// DiskThroughput is a point-in-time read/write rate sample for a mounted
// volume. The static server consults it (see static.segmentSizeFor) to
// shrink its segmented-read chunk size under observed disk contention;
// correctness never depends on it, since the fallback path reads in the
// default chunk size when no counters are available.
type DiskThroughput struct {
	ReadBytesPerSec  float64
	WriteBytesPerSec float64
}

// SampleDiskThroughput reads the current per-device iostat counters. It
// returns ok=false (never an error) when the platform doesn't expose the
// counters lufia/iostat needs - static.segmentSizeFor then uses its
// default segment size.
func SampleDiskThroughput() (DiskThroughput, bool) {
	drives, err := iostat.ReadDriveStats()
	if err != nil || len(drives) == 0 {
		return DiskThroughput{}, false
	}
	var total DiskThroughput
	for _, d := range drives {
		total.ReadBytesPerSec += float64(d.BytesRead)
		total.WriteBytesPerSec += float64(d.BytesWritten)
	}
	return total, true
}

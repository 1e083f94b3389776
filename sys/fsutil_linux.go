//go:build linux

package sys

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// FSStats reports filesystem-level block counts for the volume backing
// path. No package in the module calls it; the upload pipeline spills
// parts to disk without checking free space.
func FSStats(path string) (blocks, bavail uint64, bsize int64, err error) {
	var st unix.Statfs_t
	if err = unix.Statfs(path, &st); err != nil {
		return 0, 0, 0, err
	}
	return st.Blocks, st.Bavail, st.Bsize, nil
}

// ATime extracts the last-access time from a os.FileInfo. No package in
// the module calls it; the hot cache's TTL sweep does not read file atimes.
func ATime(fi os.FileInfo) time.Time {
	st := fi.Sys().(*syscall.Stat_t)
	return time.Unix(st.Atim.Sec, st.Atim.Nsec)
}

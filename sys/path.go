package sys

import (
	"os"
	"path/filepath"
	"strings"
)

// Separator is the platform's directory separator, exposed here rather than
// scattering filepath.Separator across callers that also need the other
// platform shims in this package.
const Separator = string(filepath.Separator)

// SocketPath normalizes a Unix domain socket path for the virus-scan
// daemon adapter - relative paths are resolved against the OS temp
// directory, matching where scan daemons conventionally place their
// control socket.
func SocketPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(os.TempDir(), p)
}

// HasTraversal reports whether any path component is "..", used by the
// static server's path-resolution policy check before any stat is issued.
func HasTraversal(p string) bool {
	p = filepath.ToSlash(p)
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

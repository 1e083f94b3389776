package cos

import (
	"os"

	"github.com/pkg/errors"
)

// CreateFile creates (or truncates) a file, wrapping errors with the path
// for callers that surface them as generic 500s further up the stack.
func CreateFile(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cos: create %s", path)
	}
	return f, nil
}

// FlushClose syncs and closes f, returning the first error encountered.
func FlushClose(f *os.File) error {
	errSync := f.Sync()
	errClose := f.Close()
	if errSync != nil {
		return errors.Wrapf(errSync, "cos: sync %s", f.Name())
	}
	if errClose != nil {
		return errors.Wrapf(errClose, "cos: close %s", f.Name())
	}
	return nil
}

// RemoveFile unlinks path, treating a missing file as success.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "cos: remove %s", path)
	}
	return nil
}

// Close closes c, swallowing the error - used on best-effort cleanup paths
// where the caller already has a more meaningful error to return.
func Close(c interface{ Close() error }) {
	_ = c.Close()
}

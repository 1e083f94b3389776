package upload

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/catzilla-go/catzilla/cmn"
	"github.com/catzilla-go/catzilla/stats"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/semaphore"
)

// Backing is where an upload file's bytes currently live.
type Backing int

const (
	BackingMemory Backing = iota
	BackingDisk
)

// ScanVerdict is the optional virus-scan result attached to a completed
// upload file (spec.md §3's "optional virus-scan verdict").
type ScanVerdict struct {
	Status     string // clean | infected | error | unavailable
	ThreatName string
}

// File is one multipart part's upload-file record (spec.md §3 "Upload
// file"): field name, original filename, content type, size, backing,
// optional scan verdict, and the manager that owns its buffers.
type File struct {
	FieldName   string
	Filename    string
	ContentType string
	Size        int64
	Backing     Backing
	Verdict     *ScanVerdict

	class    SizeClass
	buf      *bytebufferpool.ByteBuffer
	tempPath string
	diskFile *os.File
	mgr      *Manager

	closeOnce sync.Once
	persisted bool
}

// Bytes returns the in-memory contents. Only valid while Backing ==
// BackingMemory.
func (f *File) Bytes() []byte {
	if f.buf == nil {
		return nil
	}
	return f.buf.B
}

// Path returns the spilled temp file's path. Only valid while Backing ==
// BackingDisk.
func (f *File) Path() string { return f.tempPath }

// Persist moves a disk-backed file to dest, suppressing the unlink Close
// would otherwise perform. Memory-backed files are written out to dest
// directly.
func (f *File) Persist(dest string) error {
	if f.Backing == BackingDisk {
		if f.diskFile != nil {
			if err := f.diskFile.Close(); err != nil {
				return err
			}
			f.diskFile = nil
		}
		if err := os.Rename(f.tempPath, dest); err != nil {
			return cmn.ErrIO(err, "persisting upload to %s", dest)
		}
		f.persisted = true
		return nil
	}
	if err := os.WriteFile(dest, f.Bytes(), 0o644); err != nil {
		return cmn.ErrIO(err, "persisting upload to %s", dest)
	}
	f.persisted = true
	return nil
}

// Close releases the file's resources: a memory buffer returns to its
// pool, a disk-backed file is closed and unlinked unless Persist already
// moved it - matching spec.md §6's "unlinked on request completion unless
// explicitly moved."
func (f *File) Close() error {
	var err error
	f.closeOnce.Do(func() {
		if f.buf != nil {
			f.mgr.pool.Put(f.class, f.buf)
			f.mgr.release(int64(classSizes[f.class]))
			f.buf = nil
		}
		if f.diskFile != nil {
			err = f.diskFile.Close()
			f.diskFile = nil
		}
		if f.Backing == BackingDisk && !f.persisted && f.tempPath != "" {
			_ = os.Remove(f.tempPath)
		}
	})
	return err
}

// Manager owns the buffer pool, the backpressure semaphore, and the temp
// directory spilled parts are created under.
type Manager struct {
	pool    *BufferPool
	tempDir string
	sem     *semaphore.Weighted // weighted by bytes, gates in-flight memory
	stats   *stats.Registry     // optional, set via SetStats; nil disables metrics recording
}

// NewManager constructs a Manager. watermarkBytes bounds the total
// in-flight buffered bytes across all concurrently parsing uploads; once
// exhausted, Acquire blocks the parser's read loop until a buffer is
// released - spec.md 4.G's backpressure mechanism.
func NewManager(tempDir string, watermarkBytes int64, smallCap, mediumCap, largeCap int) *Manager {
	pool := NewBufferPool()
	pool.Warm(smallCap, mediumCap, largeCap)
	return &Manager{
		pool:    pool,
		tempDir: tempDir,
		sem:     semaphore.NewWeighted(watermarkBytes),
	}
}

// acquire blocks (pausing the parser's read loop) until n bytes of
// watermark budget are available.
func (m *Manager) acquire(ctx context.Context, n int64) error {
	return m.sem.Acquire(ctx, n)
}

func (m *Manager) release(n int64) { m.sem.Release(n) }

// SetStats attaches a metrics registry to the manager; additive and optional
// so existing call sites that never set one keep recording nothing.
func (m *Manager) SetStats(s *stats.Registry) { m.stats = s }

// newTempFile creates a uniquely-named spill file under the manager's temp
// directory, using the shortid-based trace id template named in spec.md
// §6's "unique template."
func (m *Manager) newTempFile() (*os.File, string, error) {
	name := "catzilla-upload-" + cmn.GenTraceID() + ".tmp"
	path := filepath.Join(m.tempDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, "", cmn.ErrIO(err, "creating upload spill file")
	}
	return f, path, nil
}

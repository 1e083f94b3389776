package cache

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v3"
	"github.com/tidwall/buntdb"
)

// CacheL3 is the optional persistent-disk hook explicitly carved out of the
// spec's Non-goals ("persistent disk caches beyond the documented L3
// hook"). It stores compressed bytes keyed by the same path the in-memory
// L1/L2 cache uses; disabled by default. The Cache writes to it on Put and
// deletes from it on Invalidate, but nothing in the module reads it back:
// Cache.Get never consults L3 and no caller promotes entries from it.
type CacheL3 interface {
	Put(path string, data []byte) error
	Get(path string) ([]byte, bool, error)
	Delete(path string) error
	Close() error
}

// BuntL3 implements CacheL3 on an embedded buntdb store, matching the
// teacher's own choice of buntdb for lightweight embedded KV persistence.
// Values are lz4-compressed before storage.
type BuntL3 struct {
	db *buntdb.DB
}

// OpenBuntL3 opens (creating if absent) a buntdb-backed L3 store at path.
// Pass ":memory:" for an ephemeral, process-local store useful in tests.
func OpenBuntL3(path string) (*BuntL3, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &BuntL3{db: db}, nil
}

func (b *BuntL3) Put(path string, data []byte) error {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(path, buf.String(), nil)
		return err
	})
}

func (b *BuntL3) Get(path string) ([]byte, bool, error) {
	var raw string
	err := b.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(path)
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r := lz4.NewReader(bytes.NewReader([]byte(raw)))
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *BuntL3) Delete(path string) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(path)
		return err
	})
	if err == buntdb.ErrNotFound {
		return nil
	}
	return err
}

func (b *BuntL3) Close() error { return b.db.Close() }

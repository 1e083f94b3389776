package cache

import (
	"fmt"
	"testing"

	"github.com/catzilla-go/catzilla/memsys"
)

func TestPutGetRoundTrip(t *testing.T) {
	mm := memsys.New()
	c := New(mm, 1<<20, Config{})
	defer c.Close()

	data := []byte("hello world")
	if !c.Put("/a.txt", data, 1) {
		t.Fatal("put failed")
	}
	v, ok := c.Get("/a.txt")
	if !ok {
		t.Fatal("expected hit")
	}
	defer v.Release()
	if string(v.Bytes()) != string(data) {
		t.Fatalf("got %q want %q", v.Bytes(), data)
	}
	if v.ETag() == "" {
		t.Fatal("expected non-empty etag")
	}
}

func TestReplacePutWins(t *testing.T) {
	mm := memsys.New()
	c := New(mm, 1<<20, Config{})
	defer c.Close()

	c.Put("/a.txt", []byte("v1"), 1)
	c.Put("/a.txt", []byte("v2-longer"), 2)

	v, ok := c.Get("/a.txt")
	if !ok {
		t.Fatal("expected hit")
	}
	defer v.Release()
	if string(v.Bytes()) != "v2-longer" {
		t.Fatalf("expected latest put to win, got %q", v.Bytes())
	}
	if s := c.Stats(); s.EntryCount != 1 {
		t.Fatalf("expected exactly one entry after replace, got %d", s.EntryCount)
	}
}

// TestByteBudgetInvariant covers spec property 3: total bytes used stays
// <= the configured budget after every operation, and every entry
// reachable by bucket lookup is reachable by LRU traversal and vice versa.
func TestByteBudgetInvariant(t *testing.T) {
	mm := memsys.New()
	const budget = 1000
	c := New(mm, budget, Config{PerEntryCap: budget})
	defer c.Close()

	payload := make([]byte, 100)
	for i := 0; i < 30; i++ {
		path := fmt.Sprintf("/f%d.bin", i)
		c.Put(path, payload, int64(i))

		c.mu.RLock()
		if c.used > budget {
			c.mu.RUnlock()
			t.Fatalf("used %d exceeds budget %d after put %d", c.used, budget, i)
		}
		bucketCount := 0
		for _, head := range c.buckets {
			for e := head; e != nil; e = e.bucketNext {
				bucketCount++
			}
		}
		lruCount := 0
		for e := c.lruHead; e != nil; e = e.lruNext {
			lruCount++
		}
		c.mu.RUnlock()
		if bucketCount != lruCount {
			t.Fatalf("bucket-reachable count %d != lru-reachable count %d after put %d", bucketCount, lruCount, i)
		}
	}
}

// TestEvictionSafeUnderOutstandingReader covers spec property: eviction
// never reclaims bytes another reader still holds.
func TestEvictionSafeUnderOutstandingReader(t *testing.T) {
	mm := memsys.New()
	const budget = 300
	c := New(mm, budget, Config{PerEntryCap: budget})
	defer c.Close()

	payload := make([]byte, 100)
	c.Put("/keep-me.bin", payload, 1)
	v, ok := c.Get("/keep-me.bin")
	if !ok {
		t.Fatal("expected hit")
	}

	// Fill past budget so keep-me.bin gets evicted from the structure
	// while v is still outstanding.
	c.Put("/b.bin", payload, 2)
	c.Put("/c.bin", payload, 3)
	c.Put("/d.bin", payload, 4)

	if _, ok := c.Get("/keep-me.bin"); ok {
		t.Fatal("expected keep-me.bin to have been evicted from the table")
	}
	// The outstanding view's bytes must still be intact - if they'd been
	// freed back to the arena and reused, this would likely be corrupted
	// or panic under race detection.
	if string(v.Bytes()) != string(payload) {
		t.Fatal("evicted entry's bytes mutated while a reader still held them")
	}
	v.Release()
}

func TestInvalidateRemovesEntry(t *testing.T) {
	mm := memsys.New()
	c := New(mm, 1<<20, Config{})
	defer c.Close()

	c.Put("/x.txt", []byte("data"), 1)
	c.Invalidate("/x.txt")
	if _, ok := c.Get("/x.txt"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestNegativeCacheRoundTrip(t *testing.T) {
	mm := memsys.New()
	c := New(mm, 1<<20, Config{NegativeCap: 1000})
	defer c.Close()

	if c.ProbablyMissing("/missing.txt") {
		t.Fatal("expected not-remembered path to report false")
	}
	c.RememberMissing("/missing.txt")
	if !c.ProbablyMissing("/missing.txt") {
		t.Fatal("expected remembered path to report true")
	}
	// Putting the same path must also clear the negative entry - an
	// existing file can never be shadowed by a stale negative cache hit.
	c.Put("/missing.txt", []byte("now exists"), 1)
	if c.ProbablyMissing("/missing.txt") {
		t.Fatal("expected put to forget the negative entry")
	}
}

func TestOversizedEntryRejected(t *testing.T) {
	mm := memsys.New()
	c := New(mm, 1000, Config{PerEntryCap: 500})
	defer c.Close()

	if c.Put("/big.bin", make([]byte, 600), 1) {
		t.Fatal("expected put above PerEntryCap to be rejected")
	}
}

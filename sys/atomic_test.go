package sys_test

import (
	"sync"
	"testing"

	"github.com/catzilla-go/catzilla/sys"
)

func TestInt64ConcurrentAdd(t *testing.T) {
	var v sys.Int64
	var wg sync.WaitGroup
	const n = 200
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Add(1)
		}()
	}
	wg.Wait()
	if got := v.Load(); got != n {
		t.Fatalf("expected %d, got %d", n, got)
	}
}

func TestBoolCAS(t *testing.T) {
	var b sys.Bool
	if !b.CAS(false, true) {
		t.Fatal("expected first CAS to succeed")
	}
	if b.CAS(false, true) {
		t.Fatal("expected second CAS to fail, value already true")
	}
	if !b.Load() {
		t.Fatal("expected Load to observe true")
	}
}

func TestPointerCAS(t *testing.T) {
	var p sys.Pointer[int]
	a, b := 1, 2
	p.Store(&a)
	if !p.CAS(&a, &b) {
		t.Fatal("expected CAS from a to b to succeed")
	}
	if p.Load() != &b {
		t.Fatal("expected Load to return b")
	}
}

func TestHasTraversal(t *testing.T) {
	cases := map[string]bool{
		"static/index.html":       false,
		"static/../../etc/passwd": true,
		"..":                      true,
		"a/b/c":                   false,
	}
	for path, want := range cases {
		if got := sys.HasTraversal(path); got != want {
			t.Errorf("HasTraversal(%q) = %v, want %v", path, got, want)
		}
	}
}

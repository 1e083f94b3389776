package static

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/catzilla-go/catzilla/cache"
	"github.com/catzilla-go/catzilla/fs"
	"github.com/catzilla-go/catzilla/memsys"
)

func newTestMount(t *testing.T, policy fs.Policy) (*fs.Mount, *Server, *memsys.MMSA) {
	t.Helper()
	dir := t.TempDir()
	m, err := fs.NewMount("/static", dir, policy, "default")
	if err != nil {
		t.Fatal(err)
	}
	mm := memsys.New()
	caches := map[string]*cache.Cache{
		"default": cache.New(mm, 1<<20, cache.Config{}),
	}
	return m, NewServer(mm, caches), mm
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestServeColdHitThenCacheHit(t *testing.T) {
	m, srv, _ := newTestMount(t, fs.Policy{})
	writeFile(t, m.Root, "hello.txt", "hello world")

	resp, err := srv.Serve(m, "hello.txt", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "hello world" {
		t.Fatalf("got %q", resp.Body)
	}
	if resp.Headers.Extra["X-Content-Type-Options"] != "nosniff" {
		t.Fatal("expected security headers to be set")
	}
	resp.Release()

	resp2, err := srv.Serve(m, "hello.txt", false)
	if err != nil {
		t.Fatalf("unexpected error on second serve: %v", err)
	}
	if string(resp2.Body) != "hello world" {
		t.Fatalf("got %q from cache", resp2.Body)
	}
	resp2.Release()
}

func TestServeHeadOmitsBody(t *testing.T) {
	m, srv, _ := newTestMount(t, fs.Policy{})
	writeFile(t, m.Root, "hello.txt", "hello world")

	resp, err := srv.Serve(m, "hello.txt", true)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Release()
	if resp.Body != nil {
		t.Fatal("expected nil body for HEAD")
	}
	if resp.Headers.ContentLength != int64(len("hello world")) {
		t.Fatalf("expected Content-Length to still be set, got %d", resp.Headers.ContentLength)
	}
}

func TestServeMissingFile404(t *testing.T) {
	m, srv, _ := newTestMount(t, fs.Policy{})
	_, err := srv.Serve(m, "nope.txt", false)
	if err == nil {
		t.Fatal("expected error")
	}
	e, ok := errAsCmn(err)
	if !ok || e.Status() != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestServeDirectoryListingDisabledByDefault(t *testing.T) {
	m, srv, _ := newTestMount(t, fs.Policy{})
	if err := os.Mkdir(filepath.Join(m.Root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := srv.Serve(m, "sub", false)
	if err == nil {
		t.Fatal("expected error")
	}
	e, ok := errAsCmn(err)
	if !ok || e.Status() != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestServeDirectoryListingEnabled(t *testing.T) {
	m, srv, _ := newTestMount(t, fs.Policy{EnableDirListing: true})
	if err := os.Mkdir(filepath.Join(m.Root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(m.Root, "sub"), "a.txt", "x")

	resp, err := srv.Serve(m, "sub", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Headers.ContentType != "text/html; charset=utf-8" {
		t.Fatalf("expected html listing, got content-type %q", resp.Headers.ContentType)
	}
}

func TestServeOversizedRejected(t *testing.T) {
	m, srv, _ := newTestMount(t, fs.Policy{MaxFileSize: 5})
	writeFile(t, m.Root, "big.txt", "this is more than five bytes")
	_, err := srv.Serve(m, "big.txt", false)
	e, ok := errAsCmn(err)
	if !ok || e.Status() != 413 {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestApplyRangePartialContent(t *testing.T) {
	m, srv, _ := newTestMount(t, fs.Policy{})
	writeFile(t, m.Root, "range.txt", "0123456789")

	resp, err := srv.Serve(m, "range.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Release()
	if err := resp.ApplyRange("bytes=2-5"); err != nil {
		t.Fatal(err)
	}
	if string(resp.Body) != "2345" {
		t.Fatalf("got %q", resp.Body)
	}
	if resp.Status != 206 {
		t.Fatalf("expected 206, got %d", resp.Status)
	}
}

func errAsCmn(err error) (interface{ Status() int }, bool) {
	type statuser interface{ Status() int }
	e, ok := err.(statuser)
	return e, ok
}

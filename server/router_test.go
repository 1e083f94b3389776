package server

import (
	"testing"

	"github.com/catzilla-go/catzilla/fs"
	"github.com/catzilla-go/catzilla/middleware"
)

func mustMount(t *testing.T, prefix, root string) *fs.Mount {
	t.Helper()
	m, err := fs.NewMount(prefix, root, fs.NewPolicy(nil, nil, 0, false, false, false), "default")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRouterPrefersLongestMountPrefix(t *testing.T) {
	r := NewRouter()
	r.AddMount(mustMount(t, "/static", t.TempDir()))
	r.AddMount(mustMount(t, "/static/assets", t.TempDir()))

	match, ok := r.Resolve("GET", "/static/assets/logo.png")
	if !ok || !match.IsMount {
		t.Fatal("expected a mount match")
	}
	if match.Mount.Prefix != "/static/assets" {
		t.Fatalf("expected the longer prefix to win, got %q", match.Mount.Prefix)
	}
}

func TestRouterMountRejectsNonGetHead(t *testing.T) {
	r := NewRouter()
	r.AddMount(mustMount(t, "/static", t.TempDir()))

	match, ok := r.Resolve("POST", "/static/file.txt")
	if !ok || !match.IsMount {
		t.Fatal("expected a mount match")
	}
	if match.MethodAllowed {
		t.Fatal("expected POST against a static mount to be disallowed")
	}
}

func TestRouterExactRouteTakesPrecedenceOverWildcard(t *testing.T) {
	r := NewRouter()
	called := ""
	r.Handle("GET", "/api/widgets", func(ctx *middleware.Context) error { called = "exact"; return nil })
	r.HandleWildcard("/api", func(ctx *middleware.Context) error { called = "wildcard"; return nil })

	match, ok := r.Resolve("GET", "/api/widgets")
	if !ok || match.Handler == nil {
		t.Fatal("expected a handler match")
	}
	match.Handler(nil)
	if called != "exact" {
		t.Fatalf("expected exact route to win, got %q", called)
	}
}

func TestRouterWildcardFallback(t *testing.T) {
	r := NewRouter()
	called := false
	r.HandleWildcard("/api", func(ctx *middleware.Context) error { called = true; return nil })

	match, ok := r.Resolve("GET", "/api/anything/goes")
	if !ok || match.Handler == nil {
		t.Fatal("expected wildcard fallback to match")
	}
	match.Handler(nil)
	if !called {
		t.Fatal("expected wildcard handler to run")
	}
}

func TestRouterNoMatch(t *testing.T) {
	r := NewRouter()
	_, ok := r.Resolve("GET", "/nowhere")
	if ok {
		t.Fatal("expected no match")
	}
}

func TestOptionsFillDefaults(t *testing.T) {
	var o Options
	o.fillDefaults()
	if o.Concurrency <= 0 || o.MaxRequestBodySize <= 0 || o.IdleTimeout <= 0 {
		t.Fatalf("expected defaults to be filled, got %+v", o)
	}
}

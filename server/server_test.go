package server

import (
	"net"
	"testing"

	"github.com/catzilla-go/catzilla/cmn"
	"github.com/catzilla-go/catzilla/memsys"
	"github.com/catzilla-go/catzilla/middleware"
	"github.com/valyala/fasthttp"
)

func TestStageErrorMapsTaxonomyStatus(t *testing.T) {
	s := &Server{}
	ctx := middleware.NewContext(&fasthttp.RequestCtx{}, memsys.New(), "trace")

	s.stageError(ctx, cmn.ErrPolicyStatus(403, "forbidden"))
	if ctx.Staged.Status != 403 {
		t.Fatalf("expected 403, got %d", ctx.Staged.Status)
	}
}

func TestStageErrorDefaultsTo500ForUnknownError(t *testing.T) {
	s := &Server{}
	ctx := middleware.NewContext(&fasthttp.RequestCtx{}, memsys.New(), "trace")

	s.stageError(ctx, net.ErrClosed)
	if ctx.Staged.Status != 500 {
		t.Fatalf("expected 500 for a plain error, got %d", ctx.Staged.Status)
	}
}

type fakeConn struct{ net.Conn }

func TestConnTrackerFreesArenaOnForget(t *testing.T) {
	mm := memsys.New()
	var tracker connTracker
	conn := &fakeConn{}

	h, ok := mm.Alloc(memsys.Request, 128)
	if !ok {
		t.Fatal("alloc failed")
	}
	tracker.arenaFor(conn).add(h)

	before := mm.Stats()
	tracker.forget(conn, mm)
	after := mm.Stats()
	if after.DeallocCount <= before.DeallocCount {
		t.Fatal("expected connection-close to free the accumulated handle")
	}
}

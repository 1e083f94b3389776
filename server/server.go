package server

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/catzilla-go/catzilla/cache"
	"github.com/catzilla-go/catzilla/cmn"
	"github.com/catzilla-go/catzilla/memsys"
	"github.com/catzilla-go/catzilla/middleware"
	"github.com/catzilla-go/catzilla/static"
	"github.com/catzilla-go/catzilla/tasks"
	"github.com/valyala/fasthttp"
)

// Options are the fasthttp-facing tunables spec.md's enumerated option
// list leaves ambient (buffer sizes, timeouts) - named the way
// LoginRadius-atreugo's Config exposes them, since aistore builds its own
// HTTP stack on net/http and has no equivalent surface to ground these on.
type Options struct {
	Concurrency        int
	ReadBufferSize     int
	WriteBufferSize    int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	MaxRequestBodySize int
	DisableKeepalive   bool
}

func (o *Options) fillDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 256 * 1024
	}
	if o.MaxRequestBodySize <= 0 {
		o.MaxRequestBodySize = 16 << 20
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 90 * time.Second
	}
}

// Server is the event-loop-driven connection/request lifecycle spec.md
// 4.I names: a fasthttp.Server bound to a Router and a middleware Chain,
// sharing the process-wide MMSA, hot caches, and task engine with the
// rest of the module.
type Server struct {
	cfg  *cmn.Config
	opts Options

	mm     *memsys.MMSA
	caches map[string]*cache.Cache
	static *static.Server
	engine *tasks.Engine

	Router *Router
	Chain  middleware.Chain

	fast  *fasthttp.Server
	conns connTracker
}

// New constructs a Server. Call Router/Chain setup before ListenAndServe.
func New(cfg *cmn.Config, opts Options, mm *memsys.MMSA, caches map[string]*cache.Cache, engine *tasks.Engine) *Server {
	opts.fillDefaults()
	s := &Server{
		cfg:    cfg,
		opts:   opts,
		mm:     mm,
		caches: caches,
		static: static.NewServer(mm, caches),
		engine: engine,
		Router: NewRouter(),
	}
	s.fast = &fasthttp.Server{
		Handler:            s.handleRequest,
		Concurrency:        opts.Concurrency,
		ReadBufferSize:     opts.ReadBufferSize,
		WriteBufferSize:    opts.WriteBufferSize,
		ReadTimeout:        opts.ReadTimeout,
		WriteTimeout:       opts.WriteTimeout,
		IdleTimeout:        opts.IdleTimeout,
		MaxRequestBodySize: opts.MaxRequestBodySize,
		DisableKeepalive:   opts.DisableKeepalive,
		ConnState:          s.onConnState,
	}
	return s
}

func (s *Server) onConnState(conn net.Conn, state fasthttp.ConnState) {
	switch state {
	case fasthttp.StateNew:
		s.conns.arenaFor(conn)
	case fasthttp.StateClosed:
		s.conns.forget(conn, s.mm)
	}
}

// Addr is the configured bind address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Net.Host, strconv.Itoa(s.cfg.Net.Port))
}

// ListenAndServe blocks serving connections until Shutdown is called or a
// fatal accept error occurs.
func (s *Server) ListenAndServe() error {
	return s.fast.ListenAndServe(s.Addr())
}

// Shutdown drains in-flight connections, then tears down the task engine
// and every hot cache in the teacher's ais/daemon.go ordered-shutdown
// shape: stop accepting, let in-flight work finish, then release shared
// state.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.fast.ShutdownWithContext(ctx); err != nil {
		return err
	}
	s.engine.Stop(true)
	for _, c := range s.caches {
		c.Close()
	}
	return nil
}

// Package middleware implements the ordered pre/post middleware chain:
// numeric-priority ordering, continue/skip-route/stop/error verdicts, and
// the context shared between the chain and the router's handler dispatch.
// Grounded on the teacher's own view-function shape isn't a fit here -
// aistore has no HTTP middleware layer of its own - so the chain and
// context are grounded instead on atreugo's Router/Middlewares/RequestCtx
// types (types.go in the retrieval pack), adapted from atreugo's
// Before/After/Skip slices to the continue/skip-route/stop/error verdict
// model spec.md 4.J specifies.
package middleware

import (
	"github.com/catzilla-go/catzilla/memsys"
	"github.com/valyala/fasthttp"
)

// maxStagedHeaders bounds the staged response header set per spec.md 4.J's
// "staged response (status, headers up to 32, body, content-type)".
const maxStagedHeaders = 32

// Staged is the response a middleware or handler builds up before it is
// flushed to the wire.
type Staged struct {
	Status      int
	ContentType string
	Body        []byte
	headers     map[string]string
}

// SetHeader stages a response header, silently dropping any addition past
// the 32-header cap rather than growing the set unbounded.
func (s *Staged) SetHeader(key, value string) {
	if s.headers == nil {
		s.headers = make(map[string]string, maxStagedHeaders)
	}
	if _, exists := s.headers[key]; !exists && len(s.headers) >= maxStagedHeaders {
		return
	}
	s.headers[key] = value
}

func (s *Staged) Headers() map[string]string { return s.headers }

// Context is the per-request state shared across the pre-route chain, the
// matched handler, and the post-route chain - spec.md 4.J's "shared
// context holds the Request reference, staged response, per-middleware
// scratch slots, and a dependency-injection context keyed by short
// strings." No middleware may retain a Context pointer after it returns;
// nothing here synchronizes concurrent access because one Context is
// used by exactly one connection's loop goroutine at a time.
type Context struct {
	Fast    *fasthttp.RequestCtx
	MM      *memsys.MMSA
	TraceID string

	Staged Staged

	store map[string]interface{} // DI map, keyed by short strings

	reqArena memsys.Handle
	hasArena bool
}

// NewContext wraps a fasthttp request context for one in-flight request.
func NewContext(fast *fasthttp.RequestCtx, mm *memsys.MMSA, traceID string) *Context {
	return &Context{Fast: fast, MM: mm, TraceID: traceID}
}

// Get retrieves a value from the DI map.
func (c *Context) Get(key string) (interface{}, bool) {
	if c.store == nil {
		return nil, false
	}
	v, ok := c.store[key]
	return v, ok
}

// Set stores a value in the DI map, short-string keys only by convention
// (the map itself doesn't enforce it).
func (c *Context) Set(key string, value interface{}) {
	if c.store == nil {
		c.store = make(map[string]interface{}, 4)
	}
	c.store[key] = value
}

// Path and Method mirror the two fields a middleware most commonly needs
// without reaching past the Context into the fasthttp type directly.
func (c *Context) Path() string   { return string(c.Fast.Path()) }
func (c *Context) Method() string { return string(c.Fast.Method()) }

// Header returns one request header value.
func (c *Context) Header(name string) string {
	return string(c.Fast.Request.Header.Peek(name))
}

// Body returns the raw request body bytes.
func (c *Context) Body() []byte { return c.Fast.PostBody() }

// BindArena records the request-scoped arena handle so the server loop can
// free it on request completion regardless of which middleware or handler
// allocated it.
func (c *Context) BindArena(h memsys.Handle) {
	c.reqArena = h
	c.hasArena = true
}

// ReleaseArena frees the bound request arena handle, if any. Idempotent.
func (c *Context) ReleaseArena() {
	if c.hasArena {
		c.MM.Free(c.reqArena)
		c.hasArena = false
	}
}

// Flush writes the staged response into the underlying fasthttp context.
// Called once, after the post-route chain completes.
func (c *Context) Flush() {
	c.Fast.SetStatusCode(c.Staged.Status)
	if c.Staged.ContentType != "" {
		c.Fast.SetContentType(c.Staged.ContentType)
	}
	for k, v := range c.Staged.Headers() {
		c.Fast.Response.Header.Set(k, v)
	}
	if c.Staged.Body != nil {
		c.Fast.SetBody(c.Staged.Body)
	}
}

package middleware

import "sort"

// Verdict is what a middleware returns after running, exactly the four
// spec.md 4.J names: continue on to the next item; skip-route (send the
// staged response, skip the rest of the pre-route chain and the handler,
// but still run the post-route chain); stop (abort immediately, staged
// response only); error (treat as a failure and run the error chain).
type Verdict int

const (
	Continue Verdict = iota
	SkipRoute
	Stop
	Error
)

// Func is one middleware's body. It may stage a response onto ctx.Staged
// and must not retain ctx after returning.
type Func func(ctx *Context) (Verdict, error)

// Middleware pairs a Func with the numeric priority that orders it within
// its chain - lower runs earlier, matching spec.md 4.J verbatim.
type Middleware struct {
	Name     string
	Priority int
	Fn       Func
}

// Chain holds the ordered pre-route and post-route middleware lists.
type Chain struct {
	pre  []Middleware
	post []Middleware
}

// AddPre inserts m into the pre-route chain, keeping the slice sorted by
// ascending Priority.
func (c *Chain) AddPre(m Middleware) { c.pre = insertSorted(c.pre, m) }

// AddPost inserts m into the post-route chain, keeping the slice sorted by
// ascending Priority.
func (c *Chain) AddPost(m Middleware) { c.post = insertSorted(c.post, m) }

func insertSorted(list []Middleware, m Middleware) []Middleware {
	list = append(list, m)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	return list
}

// RunPre executes the pre-route chain in priority order. It stops at the
// first non-Continue verdict and returns it along with any error an
// Error-verdict middleware produced.
func (c *Chain) RunPre(ctx *Context) (Verdict, error) {
	for _, m := range c.pre {
		v, err := m.Fn(ctx)
		if v != Continue {
			return v, err
		}
	}
	return Continue, nil
}

// RunPost executes the post-route chain unconditionally in priority
// order - every post middleware runs even if an earlier one reports a
// non-Continue verdict, since by the time post-route runs the response is
// already staged and post middlewares exist to observe/annotate it, not to
// gate it.
func (c *Chain) RunPost(ctx *Context) {
	for _, m := range c.post {
		m.Fn(ctx)
	}
}

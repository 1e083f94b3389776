package server

import (
	"net"
	"sync"

	"github.com/catzilla-go/catzilla/memsys"
)

// connArena accumulates the request-arena handles allocated while serving
// a single connection. Pipelined requests on the same connection share
// it; it is freed in full on connection close - spec.md 4.I's "connection
// closure frees the per-connection request arena."
type connArena struct {
	mu      sync.Mutex
	handles []memsys.Handle
}

func (c *connArena) add(h memsys.Handle) {
	c.mu.Lock()
	c.handles = append(c.handles, h)
	c.mu.Unlock()
}

func (c *connArena) freeAll(mm *memsys.MMSA) {
	c.mu.Lock()
	handles := c.handles
	c.handles = nil
	c.mu.Unlock()
	for _, h := range handles {
		mm.Free(h)
	}
}

// connTracker maps each live net.Conn to its connArena.
type connTracker struct {
	conns sync.Map // net.Conn -> *connArena
}

func (t *connTracker) arenaFor(conn net.Conn) *connArena {
	v, ok := t.conns.Load(conn)
	if !ok {
		a := &connArena{}
		actual, _ := t.conns.LoadOrStore(conn, a)
		return actual.(*connArena)
	}
	return v.(*connArena)
}

func (t *connTracker) forget(conn net.Conn, mm *memsys.MMSA) {
	if v, ok := t.conns.LoadAndDelete(conn); ok {
		v.(*connArena).freeAll(mm)
	}
}

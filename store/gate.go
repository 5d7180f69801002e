// server/store/gate.go
package store

import "sync"

// gate is a mutex that hands ownership to waiters in arrival order.
// sync.Mutex makes no such promise, and store operations must apply in the
// order their callers queued.
type gate struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func (g *gate) acquire() {
	g.mu.Lock()
	if !g.held {
		g.held = true
		g.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	// ownership is transferred by release; held stays true
	<-ch
}

func (g *gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.held {
		panic("store: release of unheld gate")
	}
	if len(g.waiters) == 0 {
		g.held = false
		return
	}
	next := g.waiters[0]
	g.waiters[0] = nil
	g.waiters = g.waiters[1:]
	close(next)
}

// queued reports how many callers are parked behind the holder.
func (g *gate) queued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

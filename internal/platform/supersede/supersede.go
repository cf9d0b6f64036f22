// Package supersede cancels an in-flight request when a newer one with the
// same key starts.
package supersede

import (
	"context"
	"sync"
)

// Group tracks the latest request per key.
type Group struct {
	mu      sync.Mutex
	seq     uint64
	running map[string]entry
}

type entry struct {
	seq    uint64
	cancel context.CancelFunc
}

// NewGroup returns an empty Group.
func NewGroup() *Group {
	return &Group{running: make(map[string]entry)}
}

// Begin derives a context for key, cancelling the previous request under the
// same key. The returned release must be called when the request finishes.
// An empty key is never superseded.
func (g *Group) Begin(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	if key == "" {
		return ctx, cancel
	}

	g.mu.Lock()
	if prev, ok := g.running[key]; ok {
		prev.cancel()
	}
	g.seq++
	seq := g.seq
	g.running[key] = entry{seq: seq, cancel: cancel}
	g.mu.Unlock()

	return ctx, func() {
		cancel()
		g.mu.Lock()
		if cur, ok := g.running[key]; ok && cur.seq == seq {
			delete(g.running, key)
		}
		g.mu.Unlock()
	}
}

// Len reports the number of keys with a request in flight.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.running)
}

package store

import (
	"context"
	"fmt"
	"sync"
)

// Arena tracks in-flight mutations by entity id.
type Arena struct {
	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{inflight: make(map[string]chan struct{})}
}

// Acquire blocks until no other mutation holds id, then holds it.
// The returned release func must be called exactly once; extra calls are no-ops.
func (a *Arena) Acquire(ctx context.Context, id string) (func(), error) {
	for {
		a.mu.Lock()
		busy, held := a.inflight[id]
		if !held {
			done := make(chan struct{})
			a.inflight[id] = done
			a.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					a.mu.Lock()
					delete(a.inflight, id)
					a.mu.Unlock()
					close(done)
				})
			}, nil
		}
		a.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for pending mutation on %s: %w", id, ctx.Err())
		}
	}
}

// Pending reports whether a mutation currently holds id.
func (a *Arena) Pending(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, held := a.inflight[id]
	return held
}

// Len returns the number of held ids.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inflight)
}

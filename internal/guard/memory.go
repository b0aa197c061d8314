// Package guard enforces at most one unresolved processing run per document.
package guard

import (
	"context"
	"fmt"
	"sync"

	"fraclaims/internal/domain"
)

// MemoryGuard is a process-local in-flight guard.
type MemoryGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewMemoryGuard creates an empty process-local guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{inFlight: make(map[string]struct{})}
}

// Acquire claims the slot for documentID. It never blocks; a held slot
// yields domain.ErrAlreadyInFlight.
func (g *MemoryGuard) Acquire(ctx context.Context, documentID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.inFlight[documentID]; held {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrAlreadyInFlight)
	}
	g.inFlight[documentID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, documentID)
			g.mu.Unlock()
		})
	}, nil
}


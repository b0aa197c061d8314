package port

import "context"

// InFlightGuard admits at most one processing run per document identifier.
// Acquire returns domain.ErrAlreadyInFlight when a run is unresolved; the
// returned release func must be called exactly once when the run ends.
type InFlightGuard interface {
	Acquire(ctx context.Context, documentID string) (release func(), err error)
}

package port

import (
	"context"

	"fraclaims/internal/domain"
)

// OutcomeSink receives every emitted ProcessingOutcome. Sinks are fire-and-report:
// a delivery error is logged by the caller and never changes the outcome.
type OutcomeSink interface {
	Name() string
	Deliver(ctx context.Context, outcome *domain.ProcessingOutcome) error
}

// EmailSender abstracts reviewer notification delivery.
type EmailSender interface {
	SendReviewRequest(ctx context.Context, toEmail string, outcome *domain.ProcessingOutcome) error
}

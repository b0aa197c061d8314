package noop

import (
	"context"
	"log"

	"fraclaims/internal/domain"
	"fraclaims/internal/email/ses"
	"fraclaims/internal/port"
)

type noopSender struct {
	frontendURL string
}

// NewNoopSender creates a no-op EmailSender that logs review links to stdout.
func NewNoopSender(frontendURL string) port.EmailSender {
	return &noopSender{frontendURL: frontendURL}
}

func (s *noopSender) SendReviewRequest(_ context.Context, toEmail string, outcome *domain.ProcessingOutcome) error {
	log.Printf("[NOOP EMAIL] Review request for %s (confidence %s) to %s: %s",
		outcome.DocumentID, ses.FormatConfidence(outcome), toEmail, ses.ReviewURL(s.frontendURL, outcome.DocumentID))
	return nil
}

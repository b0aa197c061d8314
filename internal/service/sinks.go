package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

// PersistenceSink writes each outcome onto the stored document record.
type PersistenceSink struct {
	repo port.DocumentRepository
}

// NewPersistenceSink creates a sink backed by the document repository.
func NewPersistenceSink(repo port.DocumentRepository) *PersistenceSink {
	return &PersistenceSink{repo: repo}
}

func (s *PersistenceSink) Name() string { return "persistence" }

func (s *PersistenceSink) Deliver(ctx context.Context, outcome *domain.ProcessingOutcome) error {
	docID, err := uuid.Parse(outcome.DocumentID)
	if err != nil {
		return fmt.Errorf("parsing document id %q: %w", outcome.DocumentID, err)
	}
	if err := s.repo.SaveOutcome(ctx, docID, outcome); err != nil {
		return fmt.Errorf("saving outcome: %w", err)
	}
	return nil
}

// ReviewNotifier emails the reviewer when a processed document lands in Pending.
type ReviewNotifier struct {
	sender        port.EmailSender
	reviewerEmail string
}

// NewReviewNotifier creates a sink that requests manual review by email.
func NewReviewNotifier(sender port.EmailSender, reviewerEmail string) *ReviewNotifier {
	return &ReviewNotifier{sender: sender, reviewerEmail: reviewerEmail}
}

func (n *ReviewNotifier) Name() string { return "review-email" }

func (n *ReviewNotifier) Deliver(ctx context.Context, outcome *domain.ProcessingOutcome) error {
	if !outcome.Succeeded() || outcome.Status != domain.StatusPending || n.reviewerEmail == "" {
		return nil
	}
	if err := n.sender.SendReviewRequest(ctx, n.reviewerEmail, outcome); err != nil {
		return fmt.Errorf("sending review request: %w", err)
	}
	return nil
}

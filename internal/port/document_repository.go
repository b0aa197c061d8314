package port

import (
	"context"

	"github.com/google/uuid"

	"fraclaims/internal/domain"
)

// DocumentRepository defines the contract for claim document persistence.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.ClaimDocument) error
	GetByID(ctx context.Context, docID uuid.UUID) (*domain.ClaimDocument, error)
	// MarkProcessing moves an undecided document to Processing and clears its queue flag.
	MarkProcessing(ctx context.Context, docID uuid.UUID) error
	// Enqueue flags a document for pickup by the queue worker.
	Enqueue(ctx context.Context, docID uuid.UUID) error
	// ClaimQueued atomically claims up to limit queued documents.
	ClaimQueued(ctx context.Context, limit int) ([]domain.ClaimDocument, error)
	// SaveOutcome writes the result of a processing run onto the document.
	SaveOutcome(ctx context.Context, docID uuid.UUID, outcome *domain.ProcessingOutcome) error
}

// LedgerRepository stores notarization records.
type LedgerRepository interface {
	Create(ctx context.Context, rec *domain.LedgerRecord) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.LedgerRecord, error)
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

type ledgerRepo struct {
	db *sqlx.DB
}

// NewLedgerRepo creates a new PostgreSQL-backed LedgerRepository.
func NewLedgerRepo(db *sqlx.DB) port.LedgerRepository {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Create(ctx context.Context, rec *domain.LedgerRecord) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO ledger_records (id, document_id, status, digest, attestation, recorded_at)
		 VALUES (:id, :document_id, :status, :digest, :attestation, :recorded_at)`, rec)
	if err != nil {
		return fmt.Errorf("ledgerRepo.Create: %w", err)
	}
	return nil
}

func (r *ledgerRepo) ListByDocument(ctx context.Context, documentID string) ([]domain.LedgerRecord, error) {
	records := []domain.LedgerRecord{}
	err := r.db.SelectContext(ctx, &records,
		"SELECT * FROM ledger_records WHERE document_id = $1 ORDER BY recorded_at", documentID)
	if err != nil {
		return nil, fmt.Errorf("ledgerRepo.ListByDocument: %w", err)
	}
	return records, nil
}

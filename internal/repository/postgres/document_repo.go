package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

type documentRepo struct {
	db *sqlx.DB
}

// NewDocumentRepo creates a new PostgreSQL-backed DocumentRepository.
func NewDocumentRepo(db *sqlx.DB) port.DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Create(ctx context.Context, doc *domain.ClaimDocument) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.VerificationStatus == "" {
		doc.VerificationStatus = domain.StatusPending
	}
	if doc.ExtractedEntities == nil {
		doc.ExtractedEntities = json.RawMessage("[]")
	}

	query := `INSERT INTO claim_documents (
		id, claim_id, filename, document_type, content_type,
		file_size, page_count, s3_bucket, s3_key,
		verification_status, ocr_text, extracted_entities, confidence,
		processing_time_ms, failure_kind, failure_reason, processing_queued,
		processed_at, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12, $13,
		$14, $15, $16, $17,
		$18, $19, $20
	)`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.ClaimID, doc.Filename, doc.DocumentType, doc.ContentType,
		doc.FileSize, doc.PageCount, doc.S3Bucket, doc.S3Key,
		doc.VerificationStatus, doc.OCRText, doc.ExtractedEntities, doc.Confidence,
		doc.ProcessingTimeMs, doc.FailureKind, doc.FailureReason, doc.ProcessingQueued,
		doc.ProcessedAt, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("documentRepo.Create: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, docID uuid.UUID) (*domain.ClaimDocument, error) {
	var doc domain.ClaimDocument
	err := r.db.GetContext(ctx, &doc, "SELECT * FROM claim_documents WHERE id = $1", docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("documentRepo.GetByID: %w", err)
	}
	return &doc, nil
}

func (r *documentRepo) MarkProcessing(ctx context.Context, docID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE claim_documents SET verification_status = $1, processing_queued = FALSE, updated_at = $2
		 WHERE id = $3 AND verification_status NOT IN ($4, $5)`,
		domain.StatusProcessing, time.Now().UTC(), docID, domain.StatusVerified, domain.StatusRejected)
	if err != nil {
		return fmt.Errorf("documentRepo.MarkProcessing: %w", err)
	}
	return r.checkAffected(ctx, result, docID)
}

func (r *documentRepo) Enqueue(ctx context.Context, docID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE claim_documents SET processing_queued = TRUE, updated_at = $1
		 WHERE id = $2 AND verification_status NOT IN ($3, $4, $5)`,
		time.Now().UTC(), docID, domain.StatusProcessing, domain.StatusVerified, domain.StatusRejected)
	if err != nil {
		return fmt.Errorf("documentRepo.Enqueue: %w", err)
	}
	return r.checkAffected(ctx, result, docID)
}

// ClaimQueued marks up to limit queued documents as Processing and returns them.
// Concurrent workers never claim the same row.
func (r *documentRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.ClaimDocument, error) {
	var docs []domain.ClaimDocument
	err := r.db.SelectContext(ctx, &docs,
		`UPDATE claim_documents SET verification_status = $1, processing_queued = FALSE, updated_at = $2
		 WHERE id IN (
			SELECT id FROM claim_documents
			WHERE processing_queued = TRUE AND verification_status = $3
			ORDER BY updated_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING *`,
		domain.StatusProcessing, time.Now().UTC(), domain.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("documentRepo.ClaimQueued: %w", err)
	}
	return docs, nil
}

// SaveOutcome records a processing run. A Done outcome writes the result and
// its classification; a Failed outcome only records the failure and returns an
// in-progress document to Pending. Decided documents are never overwritten.
func (r *documentRepo) SaveOutcome(ctx context.Context, docID uuid.UUID, outcome *domain.ProcessingOutcome) error {
	now := time.Now().UTC()

	var (
		result sql.Result
		err    error
	)
	if outcome.Succeeded() && outcome.Result != nil {
		entities, mErr := json.Marshal(outcome.Result.Entities)
		if mErr != nil {
			return fmt.Errorf("documentRepo.SaveOutcome marshal entities: %w", mErr)
		}
		result, err = r.db.ExecContext(ctx,
			`UPDATE claim_documents SET
				verification_status = $1, ocr_text = $2, extracted_entities = $3,
				confidence = $4, processing_time_ms = $5,
				failure_kind = '', failure_reason = '', processing_queued = FALSE,
				processed_at = $6, updated_at = $6
			 WHERE id = $7 AND verification_status NOT IN ($8, $9)`,
			outcome.Status, outcome.Result.ExtractedText, entities,
			outcome.Result.OverallConfidence, outcome.Result.ProcessingDurationMs,
			now, docID, domain.StatusVerified, domain.StatusRejected)
	} else {
		result, err = r.db.ExecContext(ctx,
			`UPDATE claim_documents SET
				verification_status = CASE WHEN verification_status = $1 THEN $2 ELSE verification_status END,
				failure_kind = $3, failure_reason = $4, processing_queued = FALSE,
				processed_at = $5, updated_at = $5
			 WHERE id = $6 AND verification_status NOT IN ($7, $8)`,
			domain.StatusProcessing, domain.StatusPending,
			outcome.FailureKind, outcome.FailureReason,
			now, docID, domain.StatusVerified, domain.StatusRejected)
	}
	if err != nil {
		return fmt.Errorf("documentRepo.SaveOutcome: %w", err)
	}
	return r.checkAffected(ctx, result, docID)
}

// checkAffected distinguishes a missing document from one whose status
// prevented the update.
func (r *documentRepo) checkAffected(ctx context.Context, result sql.Result, docID uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("documentRepo rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}
	var status domain.VerificationStatus
	err = r.db.GetContext(ctx, &status, "SELECT verification_status FROM claim_documents WHERE id = $1", docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrDocumentNotFound
		}
		return fmt.Errorf("documentRepo status lookup: %w", err)
	}
	if status == domain.StatusProcessing {
		return domain.ErrAlreadyInFlight
	}
	return domain.ErrDocumentDecided
}

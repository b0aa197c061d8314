package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultFilename is sent to the engine when the declared filename is unknown.
const DefaultFilename = "document"

// AllowedContentTypes lists the sniffed content types accepted on upload.
var AllowedContentTypes = []string{"application/pdf", "image/png", "image/jpeg", "image/tiff"}

// ProcessingRequest is one submission of document bytes to the pipeline.
// It is immutable once created and owned by a single coordinator run.
type ProcessingRequest struct {
	DocumentID string
	RawBytes   []byte
	Filename   string
}

// ProgressEvent is a status update pushed by the engine over the status channel.
type ProgressEvent struct {
	DocumentID      string  `json:"document_id"`
	Phase           Phase   `json:"phase"`
	PercentComplete float64 `json:"percent_complete"`
	Message         string  `json:"message"`

	// Payload holds the raw result when the terminal event carries one.
	Payload json.RawMessage `json:"-"`
}

// Span is the character range of an entity within the extracted text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is a named entity recognized by the engine.
type Entity struct {
	Type            string  `json:"type"`
	Value           string  `json:"value"`
	ConfidenceScore float64 `json:"confidence"`
	Span            Span    `json:"span"`
	Verified        bool    `json:"verified"`
}

// ExtractionResult is the canonical engine result after normalization.
// OverallConfidence is nil when the engine did not report one.
type ExtractionResult struct {
	ExtractedText        string   `json:"extracted_text"`
	Entities             []Entity `json:"entities"`
	OverallConfidence    *float64 `json:"overall_confidence"`
	ProcessingDurationMs int64    `json:"processing_duration_ms"`
}

// ProcessingOutcome is the single value emitted for a ProcessingRequest.
type ProcessingOutcome struct {
	DocumentID    string             `json:"document_id"`
	State         PipelineState      `json:"state"`
	Result        *ExtractionResult  `json:"result,omitempty"`
	Status        VerificationStatus `json:"status"`
	FailureKind   FailureKind        `json:"failure_kind,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
	CompletedAt   time.Time          `json:"completed_at"`
}

// Succeeded reports whether the run reached StateDone.
func (o *ProcessingOutcome) Succeeded() bool {
	return o.State == StateDone
}

// ClaimDocument is the stored record of an uploaded claim document.
type ClaimDocument struct {
	ID                 uuid.UUID          `db:"id" json:"id"`
	ClaimID            string             `db:"claim_id" json:"claim_id"`
	Filename           string             `db:"filename" json:"filename"`
	DocumentType       string             `db:"document_type" json:"document_type"`
	ContentType        string             `db:"content_type" json:"content_type"`
	FileSize           int64              `db:"file_size" json:"file_size"`
	PageCount          int                `db:"page_count" json:"page_count"`
	S3Bucket           string             `db:"s3_bucket" json:"-"`
	S3Key              string             `db:"s3_key" json:"-"`
	VerificationStatus VerificationStatus `db:"verification_status" json:"verification_status"`
	OCRText            string             `db:"ocr_text" json:"ocr_text"`
	ExtractedEntities  json.RawMessage    `db:"extracted_entities" json:"extracted_entities"`
	Confidence         *float64           `db:"confidence" json:"confidence"`
	ProcessingTimeMs   int64              `db:"processing_time_ms" json:"processing_time_ms"`
	FailureKind        FailureKind        `db:"failure_kind" json:"failure_kind,omitempty"`
	FailureReason      string             `db:"failure_reason" json:"failure_reason,omitempty"`
	ProcessingQueued   bool               `db:"processing_queued" json:"processing_queued"`
	ProcessedAt        *time.Time         `db:"processed_at" json:"processed_at"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// LedgerRecord is a notarization entry for a verification decision.
type LedgerRecord struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	DocumentID  string             `db:"document_id" json:"document_id"`
	Status      VerificationStatus `db:"status" json:"status"`
	Digest      string             `db:"digest" json:"digest"`
	Attestation string             `db:"attestation" json:"attestation"`
	RecordedAt  time.Time          `db:"recorded_at" json:"recorded_at"`
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"fraclaims/internal/domain"
	"fraclaims/internal/engine"
	"fraclaims/internal/port"
)

// Processor runs a ProcessingRequest to a single outcome. *Coordinator implements it.
type Processor interface {
	Process(ctx context.Context, req domain.ProcessingRequest) (*domain.ProcessingOutcome, error)
}

// DocumentServiceConfig holds storage settings for uploaded documents.
type DocumentServiceConfig struct {
	Bucket        string
	MaxFileSizeMB int64
}

// UploadDocumentInput is the DTO for uploading a claim document.
type UploadDocumentInput struct {
	ClaimID      string
	DocumentType string
	Filename     string
	Size         int64
	File         io.Reader
}

// LedgerVerifier checks the signed attestation of a ledger record.
// *ledger.Notarizer implements it.
type LedgerVerifier interface {
	Verify(rec *domain.LedgerRecord) error
}

// LedgerCheck is the verification result of one ledger record.
type LedgerCheck struct {
	Record domain.LedgerRecord `json:"record"`
	Valid  bool                `json:"valid"`
	Error  string              `json:"error,omitempty"`
}

// DocumentService defines the claim document contract.
type DocumentService interface {
	Upload(ctx context.Context, input UploadDocumentInput) (*domain.ClaimDocument, error)
	GetByID(ctx context.Context, docID uuid.UUID) (*domain.ClaimDocument, error)
	Process(ctx context.Context, docID uuid.UUID) (*domain.ProcessingOutcome, error)
	Enqueue(ctx context.Context, docID uuid.UUID) (*domain.ClaimDocument, error)
	ListLedger(ctx context.Context, docID uuid.UUID) ([]domain.LedgerRecord, error)
	VerifyLedger(ctx context.Context, docID uuid.UUID) ([]LedgerCheck, error)
	ProcessDocument(ctx context.Context, doc *domain.ClaimDocument) (*domain.ProcessingOutcome, error)
}

type documentService struct {
	docRepo    port.DocumentRepository
	ledgerRepo port.LedgerRepository
	verifier   LedgerVerifier
	storage    port.ObjectStorage
	processor  Processor
	cfg        DocumentServiceConfig
}

// NewDocumentService creates a new DocumentService implementation. ledgerRepo and
// verifier may be nil when notarization is disabled.
func NewDocumentService(
	docRepo port.DocumentRepository,
	ledgerRepo port.LedgerRepository,
	verifier LedgerVerifier,
	storage port.ObjectStorage,
	processor Processor,
	cfg DocumentServiceConfig,
) DocumentService {
	return &documentService{
		docRepo:    docRepo,
		ledgerRepo: ledgerRepo,
		verifier:   verifier,
		storage:    storage,
		processor:  processor,
		cfg:        cfg,
	}
}

func (s *documentService) Upload(ctx context.Context, input UploadDocumentInput) (*domain.ClaimDocument, error) {
	maxBytes := s.cfg.MaxFileSizeMB * 1024 * 1024
	if maxBytes > 0 && input.Size > maxBytes {
		return nil, domain.ErrFileTooLarge
	}

	limit := maxBytes
	if limit <= 0 {
		limit = 1 << 30
	}
	data, err := io.ReadAll(io.LimitReader(input.File, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, domain.ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	mtype := mimetype.Detect(data)
	contentType, ok := allowedContentType(mtype)
	if !ok {
		log.Printf("documentService.Upload: rejecting %s: detected %s", input.Filename, mtype.String())
		return nil, domain.ErrUnsupportedFileType
	}

	pages := 1
	if contentType == "application/pdf" {
		pages = countPages(data, input.Filename)
	}

	docID := uuid.New()
	filename := filepath.Base(strings.TrimSpace(input.Filename))
	if filename == "." || filename == "/" || filename == "" {
		filename = domain.DefaultFilename + mtype.Extension()
	}
	s3Key := fmt.Sprintf("claims/%s/documents/%s/%s", input.ClaimID, docID, filename)

	doc := &domain.ClaimDocument{
		ID:                 docID,
		ClaimID:            input.ClaimID,
		Filename:           filename,
		DocumentType:       input.DocumentType,
		ContentType:        contentType,
		FileSize:           int64(len(data)),
		PageCount:          pages,
		S3Bucket:           s.cfg.Bucket,
		S3Key:              s3Key,
		VerificationStatus: domain.StatusPending,
		ExtractedEntities:  []byte("[]"),
	}

	log.Printf("documentService.Upload: uploading %s (%s, %d bytes, %d pages) for claim %s",
		filename, contentType, doc.FileSize, pages, input.ClaimID)

	if _, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.cfg.Bucket,
		Key:         s3Key,
		Body:        bytes.NewReader(data),
		ContentType: contentType,
		Size:        doc.FileSize,
	}); err != nil {
		log.Printf("documentService.Upload: S3 upload failed for document %s: %v", docID, err)
		return nil, domain.ErrUploadFailed
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(ctx, s.cfg.Bucket, s3Key); delErr != nil {
			log.Printf("documentService.Upload: failed to clean up %s: %v", s3Key, delErr)
		}
		return nil, fmt.Errorf("creating document: %w", err)
	}
	return doc, nil
}

func (s *documentService) GetByID(ctx context.Context, docID uuid.UUID) (*domain.ClaimDocument, error) {
	return s.docRepo.GetByID(ctx, docID)
}

// Process runs the pipeline for a stored document and waits for its outcome.
func (s *documentService) Process(ctx context.Context, docID uuid.UUID) (*domain.ProcessingOutcome, error) {
	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.VerificationStatus.IsDecision() {
		return nil, domain.ErrDocumentDecided
	}
	if err := s.docRepo.MarkProcessing(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("marking document processing: %w", err)
	}
	return s.ProcessDocument(ctx, doc)
}

// Enqueue flags a stored document for the queue worker.
func (s *documentService) Enqueue(ctx context.Context, docID uuid.UUID) (*domain.ClaimDocument, error) {
	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.VerificationStatus.IsDecision() {
		return nil, domain.ErrDocumentDecided
	}
	if doc.VerificationStatus == domain.StatusProcessing {
		return nil, domain.ErrAlreadyInFlight
	}
	if err := s.docRepo.Enqueue(ctx, docID); err != nil {
		return nil, fmt.Errorf("queueing document: %w", err)
	}
	doc.ProcessingQueued = true
	log.Printf("documentService.Enqueue: document %s queued for processing", docID)
	return doc, nil
}

// ListLedger returns the notarization records of a document.
func (s *documentService) ListLedger(ctx context.Context, docID uuid.UUID) ([]domain.LedgerRecord, error) {
	if _, err := s.docRepo.GetByID(ctx, docID); err != nil {
		return nil, err
	}
	if s.ledgerRepo == nil {
		return []domain.LedgerRecord{}, nil
	}
	return s.ledgerRepo.ListByDocument(ctx, docID.String())
}

// VerifyLedger checks the attestation of every ledger record of a document.
// A record that fails the check is reported, not returned as an error.
func (s *documentService) VerifyLedger(ctx context.Context, docID uuid.UUID) ([]LedgerCheck, error) {
	records, err := s.ListLedger(ctx, docID)
	if err != nil {
		return nil, err
	}
	checks := make([]LedgerCheck, 0, len(records))
	if s.verifier == nil {
		return checks, nil
	}
	for i := range records {
		check := LedgerCheck{Record: records[i], Valid: true}
		if err := s.verifier.Verify(&records[i]); err != nil {
			log.Printf("documentService.VerifyLedger: record %s of document %s failed verification: %v",
				records[i].ID, docID, err)
			check.Valid = false
			check.Error = err.Error()
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// ProcessDocument downloads the document bytes and runs them through the
// processor. The document must already be marked Processing. A download failure
// or a run that is never admitted is recorded on the document as a Failed
// outcome so it does not stay Processing. ErrAlreadyInFlight leaves the
// document to the run that holds it.
func (s *documentService) ProcessDocument(ctx context.Context, doc *domain.ClaimDocument) (*domain.ProcessingOutcome, error) {
	data, err := s.storage.Download(ctx, doc.S3Bucket, doc.S3Key)
	if err != nil {
		log.Printf("documentService.ProcessDocument: download failed for %s: %v", doc.ID, err)
		return s.recordFailure(ctx, doc, domain.FailureInternal, fmt.Sprintf("downloading document: %v", err)), nil
	}

	outcome, err := s.processor.Process(ctx, domain.ProcessingRequest{
		DocumentID: doc.ID.String(),
		RawBytes:   data,
		Filename:   doc.Filename,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyInFlight) {
			log.Printf("documentService.ProcessDocument: document %s already in flight", doc.ID)
			return nil, err
		}
		log.Printf("documentService.ProcessDocument: run for %s not admitted: %v", doc.ID, err)
		s.recordFailure(ctx, doc, engine.FailureKind(err), err.Error())
		return nil, err
	}
	return outcome, nil
}

// recordFailure stores a Failed outcome for doc, returning it to Pending. It
// survives cancellation of ctx.
func (s *documentService) recordFailure(ctx context.Context, doc *domain.ClaimDocument, kind domain.FailureKind, reason string) *domain.ProcessingOutcome {
	outcome := &domain.ProcessingOutcome{
		DocumentID:    doc.ID.String(),
		State:         domain.StateFailed,
		Status:        domain.StatusPending,
		FailureKind:   kind,
		FailureReason: reason,
		CompletedAt:   time.Now().UTC(),
	}
	if err := s.docRepo.SaveOutcome(context.WithoutCancel(ctx), doc.ID, outcome); err != nil {
		log.Printf("documentService.recordFailure: failed to record failure for %s: %v", doc.ID, err)
	}
	return outcome
}

func allowedContentType(mtype *mimetype.MIME) (string, bool) {
	for _, ct := range domain.AllowedContentTypes {
		if mtype.Is(ct) {
			return ct, true
		}
	}
	return "", false
}

// countPages reads the page count of a PDF. Unreadable PDFs are still accepted;
// the engine reports what it can extract.
func countPages(data []byte, filename string) int {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		log.Printf("documentService.Upload: could not count pages of %s: %v", filename, err)
		return 0
	}
	return n
}

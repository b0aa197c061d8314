package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fraclaims/internal/domain"
	"fraclaims/internal/service"
)

// DocumentHandler handles claim document endpoints.
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload handles POST /api/v1/documents/upload
func (h *DocumentHandler) Upload(c *gin.Context) {
	claimID := c.PostForm("claim_id")
	if claimID == "" {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "claim_id is required")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	doc, err := h.documentService.Upload(c.Request.Context(), service.UploadDocumentInput{
		ClaimID:      claimID,
		DocumentType: c.PostForm("document_type"),
		Filename:     header.Filename,
		Size:         header.Size,
		File:         file,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, doc)
}

// GetByID handles GET /api/v1/documents/:id
func (h *DocumentHandler) GetByID(c *gin.Context) {
	docID, ok := parseDocumentID(c)
	if !ok {
		return
	}

	doc, err := h.documentService.GetByID(c.Request.Context(), docID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, doc)
}

// Process handles POST /api/v1/documents/:id/process
// With ?async=true the document is queued for the worker and 202 is returned.
// Otherwise the pipeline runs inline and the outcome is returned; a Failed
// outcome is still a 200 since the run itself completed.
func (h *DocumentHandler) Process(c *gin.Context) {
	docID, ok := parseDocumentID(c)
	if !ok {
		return
	}

	async, _ := strconv.ParseBool(c.Query("async"))
	if async {
		doc, err := h.documentService.Enqueue(c.Request.Context(), docID)
		if err != nil {
			HandleError(c, err)
			return
		}
		RespondAccepted(c, doc)
		return
	}

	outcome, err := h.documentService.Process(c.Request.Context(), docID)
	if err != nil {
		HandleError(c, err)
		return
	}
	if outcome.State == domain.StateFailed {
		log.Printf("documentHandler.Process: document %s failed: %s", docID, outcome.FailureReason)
	}

	RespondOK(c, outcome)
}

// ListLedger handles GET /api/v1/documents/:id/ledger
func (h *DocumentHandler) ListLedger(c *gin.Context) {
	docID, ok := parseDocumentID(c)
	if !ok {
		return
	}

	records, err := h.documentService.ListLedger(c.Request.Context(), docID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, records)
}

// VerifyLedger handles GET /api/v1/documents/:id/ledger/verify
func (h *DocumentHandler) VerifyLedger(c *gin.Context) {
	docID, ok := parseDocumentID(c)
	if !ok {
		return
	}

	checks, err := h.documentService.VerifyLedger(c.Request.Context(), docID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, checks)
}

func parseDocumentID(c *gin.Context) (uuid.UUID, bool) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
		return uuid.Nil, false
	}
	return docID, true
}

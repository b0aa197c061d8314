package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fraclaims/internal/domain"
	"fraclaims/internal/handler"
	"fraclaims/internal/service"
	"fraclaims/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newDocumentRouter(svc service.DocumentService) *gin.Engine {
	h := handler.NewDocumentHandler(svc)
	r := gin.New()
	r.POST("/api/v1/documents/upload", h.Upload)
	r.GET("/api/v1/documents/:id", h.GetByID)
	r.POST("/api/v1/documents/:id/process", h.Process)
	r.GET("/api/v1/documents/:id/ledger", h.ListLedger)
	r.GET("/api/v1/documents/:id/ledger/verify", h.VerifyLedger)
	return r
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) handler.APIResponse {
	t.Helper()
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, _ = part.Write(content)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestDocumentHandler_Upload_Success(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	docID := uuid.New()

	svc.On("Upload", mock.Anything, mock.MatchedBy(func(in service.UploadDocumentInput) bool {
		return in.ClaimID == "FRA-2024-0113" && in.DocumentType == "land_deed" && in.Filename == "deed.pdf" && in.Size > 0
	})).Return(&domain.ClaimDocument{ID: docID, ClaimID: "FRA-2024-0113", VerificationStatus: domain.StatusPending}, nil)

	body, contentType := multipartUpload(t,
		map[string]string{"claim_id": "FRA-2024-0113", "document_type": "land_deed"},
		"deed.pdf", []byte("%PDF-1.4 deed"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decodeResponse(t, w).Success)
	svc.AssertExpectations(t)
}

func TestDocumentHandler_Upload_MissingClaimID(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	body, contentType := multipartUpload(t, nil, "deed.pdf", []byte("%PDF-1.4"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Upload_NoFile(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	body, contentType := multipartUpload(t, map[string]string{"claim_id": "FRA-1"}, "", nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FILE", decodeResponse(t, w).Error.Code)
}

func TestDocumentHandler_Upload_ServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unsupported", domain.ErrUnsupportedFileType, http.StatusBadRequest},
		{"too large", domain.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"empty", domain.ErrEmptyDocument, http.StatusBadRequest},
		{"storage", domain.ErrUploadFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.MockDocumentService)
			svc.On("Upload", mock.Anything, mock.Anything).Return(nil, tt.err)

			body, contentType := multipartUpload(t, map[string]string{"claim_id": "FRA-1"}, "x.bin", []byte("x"))
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
			req.Header.Set("Content-Type", contentType)
			newDocumentRouter(svc).ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			assert.False(t, decodeResponse(t, w).Success)
		})
	}
}

func TestDocumentHandler_GetByID(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	docID := uuid.New()
	confidence := 0.91
	svc.On("GetByID", mock.Anything, docID).Return(&domain.ClaimDocument{
		ID: docID, VerificationStatus: domain.StatusVerified, OCRText: "Ramesh Kumar", Confidence: &confidence,
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/documents/"+docID.String(), http.NoBody)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"verification_status":"Verified"`)
	assert.NotContains(t, w.Body.String(), "s3_key")
}

func TestDocumentHandler_GetByID_InvalidID(t *testing.T) {
	svc := new(mocks.MockDocumentService)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/documents/not-a-uuid", http.NoBody)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", decodeResponse(t, w).Error.Code)
}

func TestDocumentHandler_GetByID_NotFound(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	docID := uuid.New()
	svc.On("GetByID", mock.Anything, docID).Return(nil, domain.ErrDocumentNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/documents/"+docID.String(), http.NoBody)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_Process_ReturnsOutcome(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	docID := uuid.New()
	svc.On("Process", mock.Anything, docID).Return(&domain.ProcessingOutcome{
		DocumentID: docID.String(), State: domain.StateDone, Status: domain.StatusPending,
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/documents/"+docID.String()+"/process", http.NoBody)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"Pending"`)
	svc.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Process_FailedOutcomeIsStillOK(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	docID := uuid.New()
	svc.On("Process", mock.Anything, docID).Return(&domain.ProcessingOutcome{
		DocumentID: docID.String(), State: domain.StateFailed, Status: domain.StatusPending,
		FailureKind: domain.FailureEngineUnreachable, FailureReason: "engine unreachable: connection refused",
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/documents/"+docID.String()+"/process", http.NoBody)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"failure_kind":"engine_unreachable"`)
}

func TestDocumentHandler_Process_Conflicts(t *testing.T) {
	for _, err := range []error{domain.ErrAlreadyInFlight, domain.ErrDocumentDecided} {
		svc := new(mocks.MockDocumentService)
		docID := uuid.New()
		svc.On("Process", mock.Anything, docID).Return(nil, err)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/documents/"+docID.String()+"/process", http.NoBody)
		newDocumentRouter(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code, err.Error())
	}
}

func TestDocumentHandler_Process_Async(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	docID := uuid.New()
	svc.On("Enqueue", mock.Anything, docID).Return(&domain.ClaimDocument{ID: docID, ProcessingQueued: true}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/documents/"+docID.String()+"/process?async=true", http.NoBody)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"processing_queued":true`)
	svc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestDocumentHandler_ListLedger(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	docID := uuid.New()
	svc.On("ListLedger", mock.Anything, docID).Return([]domain.LedgerRecord{
		{ID: uuid.New(), DocumentID: docID.String(), Status: domain.StatusVerified, Digest: "abc"},
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/documents/"+docID.String()+"/ledger", http.NoBody)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"digest":"abc"`)
}

func TestDocumentHandler_VerifyLedger(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	docID := uuid.New()
	svc.On("VerifyLedger", mock.Anything, docID).Return([]service.LedgerCheck{
		{Record: domain.LedgerRecord{ID: uuid.New(), DocumentID: docID.String(), Status: domain.StatusVerified, Digest: "abc"}, Valid: true},
		{Record: domain.LedgerRecord{ID: uuid.New(), DocumentID: docID.String(), Status: domain.StatusRejected, Digest: "def"},
			Error: "attestation does not match ledger record"},
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/documents/"+docID.String()+"/ledger/verify", http.NoBody)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	checks, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, checks, 2)
	assert.Equal(t, true, checks[0].(map[string]interface{})["valid"])
	assert.Equal(t, false, checks[1].(map[string]interface{})["valid"])
	assert.Equal(t, "attestation does not match ledger record", checks[1].(map[string]interface{})["error"])
}

func TestDocumentHandler_VerifyLedger_NotFound(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	docID := uuid.New()
	svc.On("VerifyLedger", mock.Anything, docID).Return(nil, domain.ErrDocumentNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/documents/"+docID.String()+"/ledger/verify", http.NoBody)
	newDocumentRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMapDomainError_WrappedErrors(t *testing.T) {
	status, code, _ := handler.MapDomainError(errors.Join(errors.New("context"), domain.ErrAlreadyInFlight))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_IN_FLIGHT", code)

	status, _, _ = handler.MapDomainError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
}

package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"fraclaims/internal/domain"
	"fraclaims/internal/handler"
	"fraclaims/internal/metrics"
	"fraclaims/internal/router"
	"fraclaims/mocks"
)

func TestSetup_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := new(mocks.MockDocumentService)
	docID := uuid.New()
	svc.On("GetByID", mock.Anything, docID).Return(&domain.ClaimDocument{ID: docID}, nil)

	r := router.Setup(
		handler.NewDocumentHandler(svc),
		handler.NewHealthHandler(),
		metrics.NewWithRegistry(prometheus.NewRegistry()),
		[]string{"http://localhost:3000"},
	)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/documents/" + docID.String(), http.StatusOK},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(tt.method, tt.path, http.NoBody)
		r.ServeHTTP(w, req)
		assert.Equal(t, tt.want, w.Code, tt.path)
	}
}

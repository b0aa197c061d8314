package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraclaims/internal/handler"
)

func pinger(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func readyz(t *testing.T, checks ...handler.ReadinessCheck) (int, map[string]interface{}) {
	t.Helper()
	h := handler.NewHealthHandler(checks...)
	r := gin.New()
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", http.NoBody)
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := handler.NewHealthHandler()
	r := gin.New()
	r.GET("/healthz", h.Liveness)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_Readiness_AllOK(t *testing.T) {
	code, body := readyz(t,
		handler.ReadinessCheck{Name: "database", Critical: true, Ping: pinger(nil)},
		handler.ReadinessCheck{Name: "engine", Ping: pinger(nil)},
	)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthHandler_Readiness_DegradedEngine(t *testing.T) {
	code, body := readyz(t,
		handler.ReadinessCheck{Name: "database", Critical: true, Ping: pinger(nil)},
		handler.ReadinessCheck{Name: "engine", Ping: pinger(errors.New("engine unreachable"))},
	)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "engine unreachable", body["checks"].(map[string]interface{})["engine"])
}

func TestHealthHandler_Readiness_DatabaseDown(t *testing.T) {
	code, body := readyz(t,
		handler.ReadinessCheck{Name: "database", Critical: true, Ping: pinger(errors.New("connection refused"))},
		handler.ReadinessCheck{Name: "engine", Ping: pinger(errors.New("engine unreachable"))},
	)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body["status"])
}

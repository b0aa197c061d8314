package router

import (
	"github.com/gin-gonic/gin"

	"fraclaims/internal/handler"
	"fraclaims/internal/metrics"
	"fraclaims/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	documentH *handler.DocumentHandler,
	healthH *handler.HealthHandler,
	m *metrics.Metrics,
	allowedOrigins []string,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks and scraping
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")

	documents := v1.Group("/documents")
	documents.POST("/upload", documentH.Upload)
	documents.GET("/:id", documentH.GetByID)
	documents.POST("/:id/process", documentH.Process)
	documents.GET("/:id/ledger", documentH.ListLedger)
	documents.GET("/:id/ledger/verify", documentH.VerifyLedger)

	return r
}

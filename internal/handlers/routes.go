package handlers

import (
	"github.com/gin-gonic/gin"

	"bookkeeper-api/internal/middleware"
	"bookkeeper-api/internal/repositories"
	"bookkeeper-api/internal/services"
	"bookkeeper-api/internal/storage"
	"bookkeeper-api/internal/vector"
)

// RouterConfig holds the dependencies the routes need
type RouterConfig struct {
	Store     repositories.ReceiptRepository
	Ingest    services.IngestService
	Query     services.QueryService
	Chat      services.ChatService
	Analytics services.AnalyticsService
	Audit     services.AuditService
	Extractor ReceiptExtractor
	Completer services.Completer
	Index     vector.Index
	Images    storage.ImageStore
	Pinger    StorePinger
	Currency  string
	Version   string
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, config *RouterConfig) {
	receiptHandler := NewReceiptHandler(config.Store, config.Ingest, config.Images, config.Currency)
	ingestHandler := NewIngestHandler(config.Ingest)
	extractHandler := NewExtractHandler(config.Extractor, config.Ingest, config.Images)
	auditHandler := NewAuditHandler(config.Audit)
	analyticsHandler := NewAnalyticsHandler(config.Analytics)
	chatHandler := NewChatHandler(config.Query, config.Chat)
	healthHandler := NewHealthHandler(config.Pinger, config.Index, config.Completer, config.Version)

	api := router.Group("/api")
	{
		api.GET("/health", healthHandler.Health)

		receipts := api.Group("/receipts")
		{
			receipts.GET("", receiptHandler.ListReceipts)
			receipts.GET("/:id", receiptHandler.GetReceipt)
			receipts.GET("/:id/image", receiptHandler.GetReceiptImage)
			receipts.PUT("/:id", receiptHandler.UpdateReceipt)
			receipts.DELETE("/:id", receiptHandler.DeleteReceipt)
		}

		api.POST("/ingest", ingestHandler.Ingest)
		api.POST("/ingest/db", ingestHandler.Ingest) // compatibility alias

		api.POST("/extract", extractHandler.Extract)
		api.POST("/extract/upload", extractHandler.ExtractUpload)

		api.GET("/audit", auditHandler.Report)
		api.POST("/audit/recompute", auditHandler.Recompute)

		analytics := api.Group("/analytics")
		{
			analytics.GET("/summary", analyticsHandler.Summary)
			analytics.GET("/monthly", analyticsHandler.Monthly)
			analytics.GET("/categories", analyticsHandler.Categories)
			analytics.GET("/vendors", analyticsHandler.Vendors)
		}

		api.POST("/chat", chatHandler.Chat)
		api.POST("/chat/query", chatHandler.Query)
	}
}

// SetupMiddleware configures global middleware
func SetupMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())

	// Base64-encoded images inflate payloads by a third; 30MB leaves room
	// for a 20MB image
	router.Use(middleware.RequestSizeLimit(30 * 1024 * 1024))

	router.Use(middleware.RateLimiter(100, 200))
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.WriteAuditLogger())
	router.Use(middleware.ErrorHandler())
}

package services

import (
	"context"

	"bookkeeper-api/internal/models"
)

// Embedder computes unit-normalized text embeddings
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer produces prose from the text completion service
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Healthy(ctx context.Context) bool
}

// IngestService defines the single entry point for receipt writes
type IngestService interface {
	// Ingest validates, audits, stores and indexes a structured record
	Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error)

	// IngestReceipt ingests an already-built receipt (extractor output)
	IngestReceipt(ctx context.Context, receipt *models.Receipt) (*models.IngestResponse, error)

	// UpdateReceipt replaces a stored receipt, re-running audit and re-embedding
	UpdateReceipt(ctx context.Context, receipt *models.Receipt) (*models.Receipt, error)

	// DeleteReceipt removes a receipt and evicts its vector
	DeleteReceipt(ctx context.Context, id int64) error

	// Reindex reconciles the vector index with the store; returns entries written
	Reindex(ctx context.Context) (int, error)

	// RetryIndex re-embeds and indexes one receipt; reconciler callback
	RetryIndex(ctx context.Context, id int64) error
}

// QueryService answers natural-language bookkeeping questions
type QueryService interface {
	Answer(ctx context.Context, query string) (*models.QueryResponse, error)
}

// ChatService holds free conversations grounded in indexed receipts
type ChatService interface {
	Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)
}

// AnalyticsService serves the aggregation endpoints
type AnalyticsService interface {
	Summary(ctx context.Context) (*models.SpendingSummary, error)
	Monthly(ctx context.Context) ([]models.MonthlyTotal, error)
	Categories(ctx context.Context) ([]models.CategoryTotal, error)
	Vendors(ctx context.Context) ([]models.VendorTotal, error)
}

// AuditService serves the audit report and the recompute sweep
type AuditService interface {
	Report(ctx context.Context) (*models.AuditReport, error)
	RecomputeAll(ctx context.Context) (int, error)
}

package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/ai"
	"bookkeeper-api/internal/audit"
	"bookkeeper-api/internal/config"
	"bookkeeper-api/internal/database"
	"bookkeeper-api/internal/handlers"
	"bookkeeper-api/internal/repositories"
	"bookkeeper-api/internal/repositories/sqlite"
	"bookkeeper-api/internal/services"
	"bookkeeper-api/internal/storage"
	"bookkeeper-api/internal/vector"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	Store     repositories.ReceiptRepository
	Analytics repositories.AnalyticsRepository
	Index     vector.Index
	Images    storage.ImageStore
	Client    *ai.Client
	Extractor *ai.Extractor

	IngestService    services.IngestService
	QueryService     services.QueryService
	ChatService      services.ChatService
	AnalyticsService services.AnalyticsService
	AuditService     services.AuditService

	db         *sql.DB
	reconciler *services.Reconciler
}

// NewContainer wires the full dependency graph: store, vector index,
// completion client, audit engine and the services on top of them
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db, err := database.Open(cfg.Store.Path, cfg.Store.MigrationsPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := sqlite.NewReceiptRepository(db, logger)
	analytics := sqlite.NewAnalyticsRepository(db, logger)

	index, err := openIndex(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	images, err := openImageStore(cfg, logger)
	if err != nil {
		index.Close()
		db.Close()
		return nil, err
	}

	client := ai.NewClient(cfg.Completion, cfg.Vector.EmbeddingDim, logger)
	extractor := ai.NewExtractor(client, cfg.Currency, logger)
	engine := audit.NewEngine(logger)

	reconciler := services.NewReconciler(logger)

	ingestService := services.NewIngestService(store, engine, index, client, reconciler, cfg.Currency, logger)
	reconciler.SetRetry(ingestService.RetryIndex)
	reconciler.Start()

	container := &Container{
		Config:           cfg,
		Logger:           logger,
		Store:            store,
		Analytics:        analytics,
		Index:            index,
		Images:           images,
		Client:           client,
		Extractor:        extractor,
		IngestService:    ingestService,
		QueryService:     services.NewQueryService(store, analytics, index, client, client, cfg.Currency, logger),
		ChatService:      services.NewChatService(store, index, client, client, logger),
		AnalyticsService: services.NewAnalyticsService(analytics, cfg.Currency, logger),
		AuditService:     services.NewAuditService(store, engine, logger),
		db:               db,
		reconciler:       reconciler,
	}

	// Startup sweep: make the index agree with the store without blocking
	// the listener
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		written, err := ingestService.Reindex(ctx)
		if err != nil {
			logger.WithError(err).Warn("Startup index reconciliation failed")
			return
		}
		if written > 0 {
			logger.WithField("entries", written).Info("Startup index reconciliation wrote missing entries")
		}
	}()

	return container, nil
}

// RouterConfig builds the handler wiring for SetupRoutes
func (c *Container) RouterConfig() *handlers.RouterConfig {
	return &handlers.RouterConfig{
		Store:     c.Store,
		Ingest:    c.IngestService,
		Query:     c.QueryService,
		Chat:      c.ChatService,
		Analytics: c.AnalyticsService,
		Audit:     c.AuditService,
		Extractor: c.Extractor,
		Completer: c.Client,
		Index:     c.Index,
		Images:    c.Images,
		Pinger:    &dbPinger{db: c.db},
		Currency:  c.Config.Currency,
		Version:   "1.0.0",
	}
}

// Close cleans up all resources
func (c *Container) Close() error {
	if c.reconciler != nil {
		c.reconciler.Stop()
	}

	if c.Index != nil {
		if err := c.Index.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close vector index")
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	return nil
}

// openIndex selects the vector back-end from configuration
func openIndex(cfg *config.Config, logger *logrus.Logger) (vector.Index, error) {
	switch cfg.Vector.Backend {
	case "memory":
		return vector.NewMemoryIndex(cfg.Vector.EmbeddingDim, logger), nil
	case "persistent":
		index, err := vector.OpenPersistentIndex(cfg.Vector.Path, cfg.Vector.EmbeddingDim, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector index: %w", err)
		}
		return index, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}

// openImageStore builds the receipt image archive. An empty directory
// disables archiving; extraction then runs without keeping originals.
func openImageStore(cfg *config.Config, logger *logrus.Logger) (storage.ImageStore, error) {
	if cfg.Images.Dir == "" {
		return nil, nil
	}
	local, err := storage.NewLocalStore(cfg.Images.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open image store: %w", err)
	}
	return storage.NewRetryStore(local, nil), nil
}

// dbPinger adapts *sql.DB to the health handler's probe interface
type dbPinger struct {
	db *sql.DB
}

func (p *dbPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

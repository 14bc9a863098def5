package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/audit"
	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
	"bookkeeper-api/internal/vector"
)

// ingestService implements the IngestService interface
type ingestService struct {
	store      repositories.ReceiptRepository
	engine     *audit.Engine
	index      vector.Index
	embedder   Embedder
	reconciler *Reconciler
	currency   string
	validator  *validator.Validate
	logger     *logrus.Logger
}

// NewIngestService creates a new ingest service instance
func NewIngestService(
	store repositories.ReceiptRepository,
	engine *audit.Engine,
	index vector.Index,
	embedder Embedder,
	reconciler *Reconciler,
	currency string,
	logger *logrus.Logger,
) IngestService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ingestService{
		store:      store,
		engine:     engine,
		index:      index,
		embedder:   embedder,
		reconciler: reconciler,
		currency:   currency,
		validator:  validator.New(),
		logger:     logger,
	}
}

// Ingest validates the request, converts it and ingests the resulting receipt
func (s *ingestService) Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error) {
	if req == nil {
		return nil, repositories.ValidationError("receipt", 0, fmt.Errorf("ingest request cannot be nil"))
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, repositories.ValidationError("receipt", 0, err)
	}

	receipt, err := req.ToReceipt(s.currency)
	if err != nil {
		return nil, repositories.ValidationError("receipt", 0, err)
	}

	return s.IngestReceipt(ctx, receipt)
}

// IngestReceipt runs the write pipeline: validate, audit, store, index.
// A failed index write is queued for reconciliation, never rolled back.
func (s *ingestService) IngestReceipt(ctx context.Context, receipt *models.Receipt) (*models.IngestResponse, error) {
	if err := receipt.Validate(); err != nil {
		return nil, repositories.ValidationError("receipt", 0, err)
	}

	flags, err := s.engine.Run(ctx, receipt, s.store)
	if err != nil {
		return nil, fmt.Errorf("audit failed: %w", err)
	}
	receipt.Flags = flags

	if err := s.store.Create(ctx, receipt); err != nil {
		return nil, err
	}

	// A new duplicate raises the flag on its stored counterparts too
	if receipt.Flags.Duplicate {
		s.refreshDuplicateMates(ctx, receipt)
	}

	indexed := s.indexReceipt(ctx, receipt)

	s.logger.WithFields(logrus.Fields{
		"receipt_id": receipt.ID,
		"vendor":     receipt.VendorName,
		"total":      receipt.TotalAmount,
		"indexed":    indexed,
	}).Info("Receipt ingested")

	return &models.IngestResponse{Receipt: receipt, Indexed: indexed}, nil
}

// UpdateReceipt replaces a stored receipt, re-running audit and re-embedding
func (s *ingestService) UpdateReceipt(ctx context.Context, receipt *models.Receipt) (*models.Receipt, error) {
	previous, err := s.store.GetByID(ctx, receipt.ID)
	if err != nil {
		return nil, err
	}

	flags, err := s.engine.Run(ctx, receipt, s.store)
	if err != nil {
		return nil, fmt.Errorf("audit failed: %w", err)
	}
	receipt.Flags = flags

	if err := s.store.Update(ctx, receipt); err != nil {
		return nil, err
	}

	// Former and current duplicate mates both need fresh flags
	s.refreshDuplicateMates(ctx, previous)
	s.refreshDuplicateMates(ctx, receipt)

	s.indexReceipt(ctx, receipt)

	return receipt, nil
}

// DeleteReceipt removes a receipt, evicts its vector and refreshes the flags
// of any former duplicate mates
func (s *ingestService) DeleteReceipt(ctx context.Context, id int64) error {
	receipt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.index.Remove(ctx, id); err != nil {
		s.logger.WithError(err).WithField("receipt_id", id).Warn("Failed to evict vector entry")
	}

	s.refreshDuplicateMates(ctx, receipt)

	s.logger.WithField("receipt_id", id).Info("Receipt deleted")
	return nil
}

// Reindex reconciles the vector index with the store: missing receipts are
// embedded and added, orphaned entries are evicted. Used on startup.
func (s *ingestService) Reindex(ctx context.Context) (int, error) {
	storeIDs, err := s.store.AllIDs(ctx)
	if err != nil {
		return 0, err
	}

	indexIDs, err := s.index.IDs(ctx)
	if err != nil {
		return 0, err
	}

	indexed := make(map[int64]bool, len(indexIDs))
	for _, id := range indexIDs {
		indexed[id] = true
	}
	stored := make(map[int64]bool, len(storeIDs))
	for _, id := range storeIDs {
		stored[id] = true
	}

	written := 0
	for _, id := range storeIDs {
		if indexed[id] {
			continue
		}
		receipt, err := s.store.GetByID(ctx, id)
		if err != nil {
			return written, err
		}
		if s.indexReceipt(ctx, receipt) {
			written++
		}
	}

	for _, id := range indexIDs {
		if stored[id] {
			continue
		}
		if err := s.index.Remove(ctx, id); err != nil {
			s.logger.WithError(err).WithField("receipt_id", id).Warn("Failed to evict orphaned vector entry")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"store_receipts": len(storeIDs),
		"written":        written,
	}).Info("Vector index reconciled with store")

	return written, nil
}

// indexReceipt embeds the receipt document and upserts it into the vector
// index. Failures enqueue the receipt for reconciliation and report false.
func (s *ingestService) indexReceipt(ctx context.Context, receipt *models.Receipt) bool {
	document := vector.BuildDocument(receipt)

	embedding, err := s.embedder.Embed(ctx, document)
	if err != nil {
		s.logger.WithError(err).WithField("receipt_id", receipt.ID).Warn("Embedding failed, queueing for reconciliation")
		s.reconciler.Enqueue(receipt.ID)
		return false
	}

	entry := vector.Entry{
		ID:       receipt.ID,
		Document: document,
		Vector:   embedding,
		Metadata: vector.BuildMetadata(receipt),
	}

	if err := s.index.Add(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("receipt_id", receipt.ID).Warn("Index write failed, queueing for reconciliation")
		s.reconciler.Enqueue(receipt.ID)
		return false
	}

	return true
}

// RetryIndex is the reconciler callback: reload the receipt and index it
func (s *ingestService) RetryIndex(ctx context.Context, id int64) error {
	receipt, err := s.store.GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			// Receipt deleted while queued; nothing left to index
			return nil
		}
		return err
	}

	document := vector.BuildDocument(receipt)
	embedding, err := s.embedder.Embed(ctx, document)
	if err != nil {
		return err
	}

	return s.index.Add(ctx, vector.Entry{
		ID:       receipt.ID,
		Document: document,
		Vector:   embedding,
		Metadata: vector.BuildMetadata(receipt),
	})
}

// refreshDuplicateMates re-derives the flags of receipts that share the
// duplicate key with the given one
func (s *ingestService) refreshDuplicateMates(ctx context.Context, receipt *models.Receipt) {
	mates, err := s.store.FindDuplicates(ctx, receipt.VendorName, receipt.Date, receipt.TotalAmount, receipt.ID)
	if err != nil {
		s.logger.WithError(err).Warn("Duplicate mate lookup failed")
		return
	}

	for _, id := range mates {
		mate, err := s.store.GetByID(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("receipt_id", id).Warn("Failed to load duplicate mate")
			continue
		}

		flags, err := s.engine.Run(ctx, mate, s.store)
		if err != nil {
			s.logger.WithError(err).WithField("receipt_id", id).Warn("Failed to re-audit duplicate mate")
			continue
		}

		if flags == mate.Flags {
			continue
		}

		if err := s.store.UpdateFlags(ctx, id, flags); err != nil {
			s.logger.WithError(err).WithField("receipt_id", id).Warn("Failed to update duplicate mate flags")
		}
	}
}

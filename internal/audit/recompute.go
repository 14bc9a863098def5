package audit

import (
	"context"
	"time"

	"bookkeeper-api/internal/models"

	"github.com/sirupsen/logrus"
)

// Store is the slice of the relational store the recompute sweep needs.
type Store interface {
	DuplicateProbe
	AllIDs(ctx context.Context) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*models.Receipt, error)
	UpdateFlags(ctx context.Context, id int64, flags models.AuditFlags) error
}

// RecomputeAll re-derives the flags of every stored receipt and rewrites any
// that drifted. Returns the number of receipts whose flags changed.
func (e *Engine) RecomputeAll(ctx context.Context, store Store) (int, error) {
	start := time.Now()

	ids, err := store.AllIDs(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range ids {
		receipt, err := store.GetByID(ctx, id)
		if err != nil {
			return changed, err
		}

		flags, err := e.Run(ctx, receipt, store)
		if err != nil {
			return changed, err
		}

		if flags == receipt.Flags {
			continue
		}

		if err := store.UpdateFlags(ctx, id, flags); err != nil {
			return changed, err
		}
		changed++
	}

	e.logger.WithFields(logrus.Fields{
		"receipts": len(ids),
		"changed":  changed,
		"duration": time.Since(start),
	}).Info("Audit recompute completed")

	return changed, nil
}

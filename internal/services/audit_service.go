package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/audit"
	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
)

// auditService implements the AuditService interface
type auditService struct {
	store  repositories.ReceiptRepository
	engine *audit.Engine
	logger *logrus.Logger
}

// NewAuditService creates a new audit service instance
func NewAuditService(store repositories.ReceiptRepository, engine *audit.Engine, logger *logrus.Logger) AuditService {
	if logger == nil {
		logger = logrus.New()
	}
	return &auditService{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// Report groups all flagged receipts by flag. A receipt with several flags
// appears in every matching group but counts once as flagged.
func (s *auditService) Report(ctx context.Context) (*models.AuditReport, error) {
	total, err := s.store.Count(ctx, &models.ReceiptFilters{})
	if err != nil {
		return nil, err
	}

	flagged, err := s.store.List(ctx, &models.ReceiptFilters{FlaggedOnly: true})
	if err != nil {
		return nil, err
	}

	report := &models.AuditReport{
		Summary: models.AuditSummary{
			TotalReceipts:   int(total),
			FlaggedReceipts: len(flagged),
		},
		Duplicates: []models.Receipt{},
		MathErrors: []models.Receipt{},
		MissingVAT: []models.Receipt{},
		Suspicious: []models.Receipt{},
	}

	for _, receipt := range flagged {
		if receipt.Flags.Duplicate {
			report.Duplicates = append(report.Duplicates, receipt)
			report.Summary.Duplicates++
		}
		if receipt.Flags.MathError {
			report.MathErrors = append(report.MathErrors, receipt)
			report.Summary.MathErrors++
		}
		if receipt.Flags.MissingVAT {
			report.MissingVAT = append(report.MissingVAT, receipt)
			report.Summary.MissingVAT++
		}
		if receipt.Flags.Suspicious {
			report.Suspicious = append(report.Suspicious, receipt)
			report.Summary.Suspicious++
		}
	}

	return report, nil
}

// RecomputeAll re-runs every audit check over the whole store and rewrites
// drifted flags; returns the number of receipts whose flags changed
func (s *auditService) RecomputeAll(ctx context.Context) (int, error) {
	return s.engine.RecomputeAll(ctx, s.store)
}

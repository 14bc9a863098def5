package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
)

// analyticsService implements the AnalyticsService interface
type analyticsService struct {
	analytics repositories.AnalyticsRepository
	currency  string
	logger    *logrus.Logger
}

// NewAnalyticsService creates a new analytics service instance
func NewAnalyticsService(analytics repositories.AnalyticsRepository, currency string, logger *logrus.Logger) AnalyticsService {
	if logger == nil {
		logger = logrus.New()
	}
	return &analyticsService{
		analytics: analytics,
		currency:  currency,
		logger:    logger,
	}
}

// Summary composes the overall figures with the monthly, category and vendor
// breakdowns
func (s *analyticsService) Summary(ctx context.Context) (*models.SpendingSummary, error) {
	summary, err := s.analytics.Summary(ctx)
	if err != nil {
		return nil, err
	}

	summary.Currency = s.currency

	if summary.Monthly, err = s.analytics.MonthlyTotals(ctx); err != nil {
		return nil, err
	}
	if summary.Categories, err = s.analytics.CategoryTotals(ctx); err != nil {
		return nil, err
	}
	if summary.Vendors, err = s.analytics.VendorTotals(ctx); err != nil {
		return nil, err
	}

	return summary, nil
}

func (s *analyticsService) Monthly(ctx context.Context) ([]models.MonthlyTotal, error) {
	return s.analytics.MonthlyTotals(ctx)
}

func (s *analyticsService) Categories(ctx context.Context) ([]models.CategoryTotal, error) {
	return s.analytics.CategoryTotals(ctx)
}

func (s *analyticsService) Vendors(ctx context.Context) ([]models.VendorTotal, error) {
	return s.analytics.VendorTotals(ctx)
}

package repositories

import (
	"context"
	"time"

	"bookkeeper-api/internal/models"
)

// ReceiptRepository defines persistence operations for receipts and their line items
type ReceiptRepository interface {
	// Create persists a receipt with its line items in one transaction and
	// assigns the generated ID
	Create(ctx context.Context, receipt *models.Receipt) error

	// GetByID retrieves a receipt with its line items
	GetByID(ctx context.Context, id int64) (*models.Receipt, error)

	// Update replaces a receipt and its line items
	Update(ctx context.Context, receipt *models.Receipt) error

	// Delete removes a receipt; line items cascade
	Delete(ctx context.Context, id int64) error

	// List retrieves receipts matching the filters, newest first
	List(ctx context.Context, filters *models.ReceiptFilters) ([]models.Receipt, error)

	// Count returns the number of receipts matching the filters
	Count(ctx context.Context, filters *models.ReceiptFilters) (int64, error)

	// Exists checks if a receipt with the given ID exists
	Exists(ctx context.Context, id int64) (bool, error)

	// AllIDs returns every receipt ID, ascending
	AllIDs(ctx context.Context) ([]int64, error)

	// FindDuplicates returns IDs of receipts with the same normalized vendor,
	// the same calendar day and a total within tolerance, excluding excludeID
	FindDuplicates(ctx context.Context, vendorName string, date time.Time, total float64, excludeID int64) ([]int64, error)

	// UpdateFlags rewrites the audit flags of a stored receipt
	UpdateFlags(ctx context.Context, id int64, flags models.AuditFlags) error

	// VendorNames returns the distinct vendor names in the store
	VendorNames(ctx context.Context) ([]string, error)
}

// AnalyticsRepository defines the aggregation queries backing the analytics endpoints
type AnalyticsRepository interface {
	// Summary returns overall count, total, VAT total and average
	Summary(ctx context.Context) (*models.SpendingSummary, error)

	// MonthlyTotals groups spending by calendar month, ascending by month
	MonthlyTotals(ctx context.Context) ([]models.MonthlyTotal, error)

	// CategoryTotals groups spending by category, descending by total
	CategoryTotals(ctx context.Context) ([]models.CategoryTotal, error)

	// VendorTotals groups spending by vendor, descending by total
	VendorTotals(ctx context.Context) ([]models.VendorTotal, error)

	// CategoryLineItemTotal sums line totals whose description or receipt
	// category matches any of the given terms
	CategoryLineItemTotal(ctx context.Context, terms []string) (float64, []int64, error)
}

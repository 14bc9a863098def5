package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"

	"github.com/sirupsen/logrus"
)

// AnalyticsRepository implements the AnalyticsRepository interface for SQLite
type AnalyticsRepository struct {
	*BaseRepository
}

// NewAnalyticsRepository creates a new SQLite analytics repository
func NewAnalyticsRepository(db *sql.DB, logger *logrus.Logger) repositories.AnalyticsRepository {
	return &AnalyticsRepository{
		BaseRepository: NewBaseRepository(db, "receipts", logger),
	}
}

// Summary returns overall count, total, VAT total and average
func (r *AnalyticsRepository) Summary(ctx context.Context) (*models.SpendingSummary, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	query := `
		SELECT
			COUNT(*) as receipt_count,
			COALESCE(SUM(total_amount), 0) as total_amount,
			COALESCE(SUM(tax_amount), 0) as total_vat,
			COALESCE(AVG(total_amount), 0) as average_amount
		FROM receipts`

	summary := &models.SpendingSummary{}
	row := r.executeQueryRow(ctx, "summary", query)
	if err := row.Scan(
		&summary.ReceiptCount,
		&summary.TotalAmount,
		&summary.TotalVAT,
		&summary.AverageAmount,
	); err != nil {
		return nil, repositories.NewRepositoryError("summary", "receipt", 0, err)
	}

	return summary, nil
}

// MonthlyTotals groups spending by calendar month, ascending by month
func (r *AnalyticsRepository) MonthlyTotals(ctx context.Context) ([]models.MonthlyTotal, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	query := `
		SELECT
			strftime('%Y-%m', date) as month,
			COALESCE(SUM(total_amount), 0) as total_amount,
			COALESCE(SUM(tax_amount), 0) as tax_amount,
			COUNT(*) as receipt_count
		FROM receipts
		GROUP BY month
		ORDER BY month ASC`

	rows, err := r.executeQuery(ctx, "monthly_totals", query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []models.MonthlyTotal
	for rows.Next() {
		var t models.MonthlyTotal
		if err := rows.Scan(&t.Month, &t.TotalAmount, &t.TaxAmount, &t.ReceiptCount); err != nil {
			return nil, repositories.NewRepositoryError("monthly_totals", "receipt", 0, err)
		}
		totals = append(totals, t)
	}

	return totals, rows.Err()
}

// CategoryTotals groups spending by category, descending by total, name ascending on ties.
// Uncategorized receipts group under "uncategorized".
func (r *AnalyticsRepository) CategoryTotals(ctx context.Context) ([]models.CategoryTotal, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	query := `
		SELECT
			COALESCE(NULLIF(TRIM(category), ''), 'uncategorized') as category,
			COALESCE(SUM(total_amount), 0) as total_amount,
			COUNT(*) as receipt_count
		FROM receipts
		GROUP BY category
		ORDER BY total_amount DESC, category ASC`

	rows, err := r.executeQuery(ctx, "category_totals", query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []models.CategoryTotal
	for rows.Next() {
		var t models.CategoryTotal
		if err := rows.Scan(&t.Category, &t.TotalAmount, &t.ReceiptCount); err != nil {
			return nil, repositories.NewRepositoryError("category_totals", "receipt", 0, err)
		}
		totals = append(totals, t)
	}

	return totals, rows.Err()
}

// VendorTotals groups spending by vendor, descending by total, name ascending on ties
func (r *AnalyticsRepository) VendorTotals(ctx context.Context) ([]models.VendorTotal, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	query := `
		SELECT
			vendor_name,
			COALESCE(SUM(total_amount), 0) as total_amount,
			COUNT(*) as receipt_count
		FROM receipts
		GROUP BY vendor_normalized
		ORDER BY total_amount DESC, vendor_name ASC`

	rows, err := r.executeQuery(ctx, "vendor_totals", query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []models.VendorTotal
	for rows.Next() {
		var t models.VendorTotal
		if err := rows.Scan(&t.Vendor, &t.TotalAmount, &t.ReceiptCount); err != nil {
			return nil, repositories.NewRepositoryError("vendor_totals", "receipt", 0, err)
		}
		totals = append(totals, t)
	}

	return totals, rows.Err()
}

// CategoryLineItemTotal sums line totals whose description or receipt category
// matches any of the given terms, case-insensitively. Returns the sum and the
// distinct receipt IDs contributing to it, ascending.
func (r *AnalyticsRepository) CategoryLineItemTotal(ctx context.Context, terms []string) (float64, []int64, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	if len(terms) == 0 {
		return 0, nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, term := range terms {
		pattern := "%" + strings.ToLower(term) + "%"
		conditions = append(conditions, "(LOWER(li.description) LIKE ? OR LOWER(COALESCE(rec.category, '')) LIKE ?)")
		args = append(args, pattern, pattern)
	}

	query := `
		SELECT li.receipt_id, SUM(li.line_total)
		FROM line_items li
		JOIN receipts rec ON rec.id = li.receipt_id
		WHERE ` + strings.Join(conditions, " OR ") + `
		GROUP BY li.receipt_id
		ORDER BY li.receipt_id ASC`

	rows, err := r.executeQuery(ctx, "category_line_item_total", query, args...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var total float64
	var ids []int64
	for rows.Next() {
		var id int64
		var sum float64
		if err := rows.Scan(&id, &sum); err != nil {
			return 0, nil, repositories.NewRepositoryError("category_line_item_total", "line_item", 0, err)
		}
		total += sum
		ids = append(ids, id)
	}

	return total, ids, rows.Err()
}

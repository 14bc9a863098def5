package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"

	"github.com/sirupsen/logrus"
)

const receiptColumns = `id, vendor_name, vendor_normalized, date, total_amount, tax_amount,
	   currency, category, payment_method, receipt_number, image_url,
	   flag_duplicate, flag_suspicious, flag_missing_vat, flag_math_error,
	   created_at, updated_at`

// ReceiptRepository implements the ReceiptRepository interface for SQLite
type ReceiptRepository struct {
	*BaseRepository
}

// NewReceiptRepository creates a new SQLite receipt repository
func NewReceiptRepository(db *sql.DB, logger *logrus.Logger) repositories.ReceiptRepository {
	return &ReceiptRepository{
		BaseRepository: NewBaseRepository(db, "receipts", logger),
	}
}

// Create persists a receipt and its line items in one transaction
func (r *ReceiptRepository) Create(ctx context.Context, receipt *models.Receipt) error {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	if err := receipt.Validate(); err != nil {
		return repositories.ValidationError("receipt", 0, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repositories.TransactionError("begin", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	receipt.CreatedAt = now
	receipt.UpdatedAt = now

	query := `
		INSERT INTO receipts (
			vendor_name, vendor_normalized, date, total_amount, tax_amount, currency,
			category, payment_method, receipt_number, image_url,
			flag_duplicate, flag_suspicious, flag_missing_vat, flag_math_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	result, err := tx.ExecContext(ctx, query,
		receipt.VendorName,
		models.NormalizeVendor(receipt.VendorName),
		receipt.Date,
		receipt.TotalAmount,
		receipt.TaxAmount,
		receipt.Currency,
		receipt.Category,
		receipt.PaymentMethod,
		receipt.ReceiptNumber,
		receipt.ImageURL,
		receipt.Flags.Duplicate,
		receipt.Flags.Suspicious,
		receipt.Flags.MissingVAT,
		receipt.Flags.MathError,
		receipt.CreatedAt,
		receipt.UpdatedAt,
	)
	r.logQuery("create", query, nil, time.Since(start), err)
	if err != nil {
		return repositories.NewRepositoryError("create", "receipt", 0, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return repositories.NewRepositoryError("create", "receipt", 0, err)
	}
	receipt.ID = id

	// Receipt numbers are generated from the assigned ID when absent
	if receipt.ReceiptNumber == "" {
		receipt.ReceiptNumber = fmt.Sprintf(models.ReceiptNumberFormat, id)
		if _, err := tx.ExecContext(ctx, "UPDATE receipts SET receipt_number = ? WHERE id = ?", receipt.ReceiptNumber, id); err != nil {
			return repositories.NewRepositoryError("create", "receipt", id, err)
		}
	}

	if err := r.insertLineItems(ctx, tx, receipt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return repositories.TransactionError("commit", err)
	}

	return nil
}

// GetByID retrieves a receipt with its line items
func (r *ReceiptRepository) GetByID(ctx context.Context, id int64) (*models.Receipt, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	if id <= 0 {
		return nil, repositories.NewRepositoryError("get_by_id", "receipt", id, repositories.ErrInvalidID)
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = ?`

	row := r.executeQueryRow(ctx, "get_by_id", query, id)

	receipt, err := scanReceipt(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repositories.NotFoundError("receipt", id)
		}
		return nil, repositories.NewRepositoryError("get_by_id", "receipt", id, err)
	}

	items, err := r.loadLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	receipt.LineItems = items

	return receipt, nil
}

// Update replaces a receipt and its line items
func (r *ReceiptRepository) Update(ctx context.Context, receipt *models.Receipt) error {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	if receipt.ID <= 0 {
		return repositories.NewRepositoryError("update", "receipt", receipt.ID, repositories.ErrInvalidID)
	}
	if err := receipt.Validate(); err != nil {
		return repositories.ValidationError("receipt", receipt.ID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repositories.TransactionError("begin", err)
	}
	defer tx.Rollback()

	receipt.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE receipts
		SET vendor_name = ?, vendor_normalized = ?, date = ?, total_amount = ?,
			tax_amount = ?, currency = ?, category = ?, payment_method = ?,
			receipt_number = ?, image_url = ?,
			flag_duplicate = ?, flag_suspicious = ?, flag_missing_vat = ?, flag_math_error = ?,
			updated_at = ?
		WHERE id = ?`

	start := time.Now()
	result, err := tx.ExecContext(ctx, query,
		receipt.VendorName,
		models.NormalizeVendor(receipt.VendorName),
		receipt.Date,
		receipt.TotalAmount,
		receipt.TaxAmount,
		receipt.Currency,
		receipt.Category,
		receipt.PaymentMethod,
		receipt.ReceiptNumber,
		receipt.ImageURL,
		receipt.Flags.Duplicate,
		receipt.Flags.Suspicious,
		receipt.Flags.MissingVAT,
		receipt.Flags.MathError,
		receipt.UpdatedAt,
		receipt.ID,
	)
	r.logQuery("update", query, nil, time.Since(start), err)
	if err != nil {
		return repositories.NewRepositoryError("update", "receipt", receipt.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return repositories.NewRepositoryError("update", "receipt", receipt.ID, err)
	}
	if affected == 0 {
		return repositories.NotFoundError("receipt", receipt.ID)
	}

	// Full replacement of line items
	if _, err := tx.ExecContext(ctx, "DELETE FROM line_items WHERE receipt_id = ?", receipt.ID); err != nil {
		return repositories.NewRepositoryError("update", "line_item", receipt.ID, err)
	}
	if err := r.insertLineItems(ctx, tx, receipt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return repositories.TransactionError("commit", err)
	}

	return nil
}

// Delete removes a receipt; line items cascade via foreign key
func (r *ReceiptRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	if id <= 0 {
		return repositories.NewRepositoryError("delete", "receipt", id, repositories.ErrInvalidID)
	}

	result, err := r.executeExec(ctx, "delete", "DELETE FROM receipts WHERE id = ?", id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return repositories.NewRepositoryError("delete", "receipt", id, err)
	}
	if affected == 0 {
		return repositories.NotFoundError("receipt", id)
	}

	return nil
}

// List retrieves receipts matching the filters, ordered by date then ID, newest first
func (r *ReceiptRepository) List(ctx context.Context, filters *models.ReceiptFilters) ([]models.Receipt, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	query := `SELECT ` + receiptColumns + ` FROM receipts`
	where, args := buildReceiptWhere(filters)
	query += where + " ORDER BY date DESC, id DESC"

	if filters != nil && filters.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filters.Limit, filters.Offset)
	}

	rows, err := r.executeQuery(ctx, "list", query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, repositories.NewRepositoryError("list", "receipt", 0, err)
		}
		receipts = append(receipts, *receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, repositories.NewRepositoryError("list", "receipt", 0, err)
	}

	for i := range receipts {
		items, err := r.loadLineItems(ctx, receipts[i].ID)
		if err != nil {
			return nil, err
		}
		receipts[i].LineItems = items
	}

	return receipts, nil
}

// Count returns the number of receipts matching the filters
func (r *ReceiptRepository) Count(ctx context.Context, filters *models.ReceiptFilters) (int64, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	query := "SELECT COUNT(*) FROM receipts"
	where, args := buildReceiptWhere(filters)
	query += where

	var count int64
	row := r.executeQueryRow(ctx, "count", query, args...)
	if err := row.Scan(&count); err != nil {
		return 0, repositories.NewRepositoryError("count", "receipt", 0, err)
	}

	return count, nil
}

// AllIDs returns every receipt ID in ascending order
func (r *ReceiptRepository) AllIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	rows, err := r.executeQuery(ctx, "all_ids", "SELECT id FROM receipts ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, repositories.NewRepositoryError("all_ids", "receipt", 0, err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// FindDuplicates returns IDs of receipts sharing normalized vendor, calendar
// day and a total within tolerance, excluding excludeID
func (r *ReceiptRepository) FindDuplicates(ctx context.Context, vendorName string, date time.Time, total float64, excludeID int64) ([]int64, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	query := `
		SELECT id FROM receipts
		WHERE vendor_normalized = ?
		  AND date(date) = date(?)
		  AND ABS(total_amount - ?) <= ?
		  AND id != ?
		ORDER BY id ASC`

	rows, err := r.executeQuery(ctx, "find_duplicates", query,
		models.NormalizeVendor(vendorName), date, total, models.AmountTolerance, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, repositories.NewRepositoryError("find_duplicates", "receipt", 0, err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpdateFlags rewrites the audit flags of a stored receipt
func (r *ReceiptRepository) UpdateFlags(ctx context.Context, id int64, flags models.AuditFlags) error {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	query := `
		UPDATE receipts
		SET flag_duplicate = ?, flag_suspicious = ?, flag_missing_vat = ?, flag_math_error = ?,
			updated_at = ?
		WHERE id = ?`

	result, err := r.executeExec(ctx, "update_flags", query,
		flags.Duplicate, flags.Suspicious, flags.MissingVAT, flags.MathError,
		time.Now().UTC(), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return repositories.NewRepositoryError("update_flags", "receipt", id, err)
	}
	if affected == 0 {
		return repositories.NotFoundError("receipt", id)
	}

	return nil
}

// VendorNames returns the distinct vendor names in the store
func (r *ReceiptRepository) VendorNames(ctx context.Context) ([]string, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	rows, err := r.executeQuery(ctx, "vendor_names", "SELECT DISTINCT vendor_name FROM receipts ORDER BY vendor_name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, repositories.NewRepositoryError("vendor_names", "receipt", 0, err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// insertLineItems inserts the receipt's line items inside the given transaction
func (r *ReceiptRepository) insertLineItems(ctx context.Context, tx *sql.Tx, receipt *models.Receipt) error {
	query := `
		INSERT INTO line_items (receipt_id, description, quantity, unit_price, line_total, vat_rate)
		VALUES (?, ?, ?, ?, ?, ?)`

	for i := range receipt.LineItems {
		item := &receipt.LineItems[i]
		item.ReceiptID = receipt.ID

		result, err := tx.ExecContext(ctx, query,
			item.ReceiptID,
			item.Description,
			item.Quantity,
			item.UnitPrice,
			item.LineTotal,
			item.VATRate,
		)
		if err != nil {
			return repositories.NewRepositoryError("create", "line_item", receipt.ID, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return repositories.NewRepositoryError("create", "line_item", receipt.ID, err)
		}
		item.ID = id
	}

	return nil
}

// loadLineItems loads the line items of one receipt, in insertion order
func (r *ReceiptRepository) loadLineItems(ctx context.Context, receiptID int64) ([]models.LineItem, error) {
	query := `
		SELECT id, receipt_id, description, quantity, unit_price, line_total, vat_rate
		FROM line_items
		WHERE receipt_id = ?
		ORDER BY id ASC`

	rows, err := r.executeQuery(ctx, "load_line_items", query, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(
			&item.ID,
			&item.ReceiptID,
			&item.Description,
			&item.Quantity,
			&item.UnitPrice,
			&item.LineTotal,
			&item.VATRate,
		); err != nil {
			return nil, repositories.NewRepositoryError("load_line_items", "line_item", receiptID, err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for receipt scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReceipt(row scanner) (*models.Receipt, error) {
	receipt := &models.Receipt{}
	var normalized string

	err := row.Scan(
		&receipt.ID,
		&receipt.VendorName,
		&normalized,
		&receipt.Date,
		&receipt.TotalAmount,
		&receipt.TaxAmount,
		&receipt.Currency,
		&receipt.Category,
		&receipt.PaymentMethod,
		&receipt.ReceiptNumber,
		&receipt.ImageURL,
		&receipt.Flags.Duplicate,
		&receipt.Flags.Suspicious,
		&receipt.Flags.MissingVAT,
		&receipt.Flags.MathError,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return receipt, nil
}

// buildReceiptWhere builds the WHERE clause for list and count queries
func buildReceiptWhere(filters *models.ReceiptFilters) (string, []interface{}) {
	if filters == nil {
		return "", nil
	}

	var conditions []string
	var args []interface{}

	if filters.Vendor != "" {
		conditions = append(conditions, "vendor_normalized = ?")
		args = append(args, models.NormalizeVendor(filters.Vendor))
	}
	if filters.Category != "" {
		conditions = append(conditions, "LOWER(category) = LOWER(?)")
		args = append(args, filters.Category)
	}
	if filters.StartDate != nil {
		conditions = append(conditions, "date(date) >= date(?)")
		args = append(args, *filters.StartDate)
	}
	if filters.EndDate != nil {
		conditions = append(conditions, "date(date) <= date(?)")
		args = append(args, *filters.EndDate)
	}
	if filters.FlaggedOnly {
		conditions = append(conditions, "(flag_duplicate OR flag_suspicious OR flag_missing_vat OR flag_math_error)")
	}

	if len(conditions) == 0 {
		return "", nil
	}

	where := " WHERE " + conditions[0]
	for _, c := range conditions[1:] {
		where += " AND " + c
	}
	return where, args
}

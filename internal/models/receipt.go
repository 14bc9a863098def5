package models

import (
	"fmt"
	"strings"
	"time"
)

// Receipt represents a bookkeeping receipt in the system
type Receipt struct {
	ID            int64      `json:"id" db:"id"`
	VendorName    string     `json:"vendorName" db:"vendor_name" validate:"required,min=1,max=255"`
	Date          time.Time  `json:"date" db:"date" validate:"required"`
	TotalAmount   float64    `json:"totalAmount" db:"total_amount" validate:"gte=0"`
	TaxAmount     float64    `json:"taxAmount" db:"tax_amount" validate:"gte=0"`
	Currency      string     `json:"currency" db:"currency" validate:"len=3"`
	Category      *string    `json:"category,omitempty" db:"category"`
	PaymentMethod *string    `json:"paymentMethod,omitempty" db:"payment_method"`
	ReceiptNumber string     `json:"receiptNumber" db:"receipt_number"`
	ImageURL      *string    `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" db:"updated_at"`
	Flags         AuditFlags `json:"auditFlags"`

	// Loaded separately, not a column
	LineItems []LineItem `json:"lineItems"`
}

// AuditFlags holds the four bookkeeping audit markers for a receipt.
type AuditFlags struct {
	Duplicate  bool `json:"isDuplicate" db:"flag_duplicate"`
	Suspicious bool `json:"isSuspicious" db:"flag_suspicious"`
	MissingVAT bool `json:"isMissingVat" db:"flag_missing_vat"`
	MathError  bool `json:"isMathError" db:"flag_math_error"`
}

// Any reports whether at least one audit flag is raised.
func (f AuditFlags) Any() bool {
	return f.Duplicate || f.Suspicious || f.MissingVAT || f.MathError
}

// NewReceipt creates a new receipt with timestamps and the given currency
func NewReceipt(vendorName string, date time.Time, total, tax float64, currency string) *Receipt {
	now := time.Now().UTC()
	return &Receipt{
		VendorName:  strings.TrimSpace(vendorName),
		Date:        date,
		TotalAmount: roundToTwoDecimals(total),
		TaxAmount:   roundToTwoDecimals(tax),
		Currency:    strings.ToUpper(currency),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate validates the receipt data
func (r *Receipt) Validate() error {
	if NormalizeVendor(r.VendorName) == "" {
		return fmt.Errorf("vendor name is required")
	}

	if r.Date.IsZero() {
		return fmt.Errorf("receipt date is required")
	}

	if r.TotalAmount < 0 {
		return fmt.Errorf("total amount cannot be negative")
	}

	if r.TaxAmount < 0 {
		return fmt.Errorf("tax amount cannot be negative")
	}

	if r.TaxAmount > r.TotalAmount {
		return fmt.Errorf("tax amount cannot exceed total amount")
	}

	if len(r.Currency) != 3 || !isAlpha(r.Currency) {
		return fmt.Errorf("currency must be a 3-letter code")
	}

	for i := range r.LineItems {
		if err := r.LineItems[i].Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i+1, err)
		}
	}

	return nil
}

// NetAmount returns the receipt total minus tax.
func (r *Receipt) NetAmount() float64 {
	return roundToTwoDecimals(r.TotalAmount - r.TaxAmount)
}

// LineItemSum returns the rounded sum of all line totals.
func (r *Receipt) LineItemSum() float64 {
	var sum float64
	for _, li := range r.LineItems {
		sum += li.LineTotal
	}
	return roundToTwoDecimals(sum)
}

// SetCategory sets the receipt category, clearing it when blank
func (r *Receipt) SetCategory(category string) {
	category = strings.TrimSpace(category)
	if category == "" {
		r.Category = nil
	} else {
		r.Category = &category
	}
}

// GetCategory returns the category or empty string if nil
func (r *Receipt) GetCategory() string {
	if r.Category == nil {
		return ""
	}
	return *r.Category
}

// NormalizeVendor trims the vendor name, collapses internal whitespace runs
// and lowercases the result. Duplicate detection and vendor filters compare
// on this form.
func NormalizeVendor(name string) string {
	fields := strings.Fields(name)
	return strings.ToLower(strings.Join(fields, " "))
}

// roundToTwoDecimals rounds a monetary value to two decimal places
func roundToTwoDecimals(value float64) float64 {
	if value < 0 {
		return float64(int64(value*100-0.5)) / 100
	}
	return float64(int64(value*100+0.5)) / 100
}

// abs returns the absolute value of a float64
func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

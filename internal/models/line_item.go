package models

import (
	"fmt"
	"strings"
)

// LineItem represents a single position on a receipt
type LineItem struct {
	ID          int64    `json:"id" db:"id"`
	ReceiptID   int64    `json:"receiptId" db:"receipt_id"`
	Description string   `json:"description" db:"description" validate:"required,min=1,max=500"`
	Quantity    int      `json:"quantity" db:"quantity" validate:"min=1"`
	UnitPrice   float64  `json:"unitPrice" db:"unit_price" validate:"gte=0"`
	LineTotal   float64  `json:"lineTotal" db:"line_total"`
	VATRate     *float64 `json:"vatRate,omitempty" db:"vat_rate"`
}

// NewLineItem creates a line item and derives its line total
func NewLineItem(description string, quantity int, unitPrice float64) *LineItem {
	if quantity < 1 {
		quantity = 1
	}
	return &LineItem{
		Description: strings.TrimSpace(description),
		Quantity:    quantity,
		UnitPrice:   roundToTwoDecimals(unitPrice),
		LineTotal:   roundToTwoDecimals(unitPrice * float64(quantity)),
	}
}

// Validate validates the line item data
func (li *LineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return fmt.Errorf("description is required")
	}

	if len(li.Description) > 500 {
		return fmt.Errorf("description cannot exceed 500 characters")
	}

	if li.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}

	if li.UnitPrice < 0 {
		return fmt.Errorf("unit price cannot be negative")
	}

	if li.LineTotal < 0 {
		return fmt.Errorf("line total cannot be negative")
	}

	expected := roundToTwoDecimals(li.UnitPrice * float64(li.Quantity))
	if abs(li.LineTotal-expected) > 0.01 {
		return fmt.Errorf("line total does not match quantity * unit price")
	}

	if li.VATRate != nil && (*li.VATRate < 0 || *li.VATRate > 100) {
		return fmt.Errorf("VAT rate must be between 0 and 100")
	}

	return nil
}

// GetVATRate returns the VAT percentage or zero when unset
func (li *LineItem) GetVATRate() float64 {
	if li.VATRate == nil {
		return 0
	}
	return *li.VATRate
}

// UpdateQuantity updates the quantity and recalculates the line total
func (li *LineItem) UpdateQuantity(quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}

	li.Quantity = quantity
	li.LineTotal = roundToTwoDecimals(li.UnitPrice * float64(quantity))
	return nil
}

package models

import (
	"time"
)

// Common constants
const (
	// Tolerance in minor units for all monetary comparisons
	AmountTolerance = 0.01

	// Default quantity when a line item omits one
	DefaultQuantity = 1

	// Receipt number prefix for generated numbers
	ReceiptNumberFormat = "RCP-%06d"
)

// ReceiptFilters represents search and filter parameters for receipt listings
type ReceiptFilters struct {
	Vendor      string     `json:"vendor,omitempty"`
	Category    string     `json:"category,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	FlaggedOnly bool       `json:"flaggedOnly,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// MonthlyTotal represents aggregated spending for one calendar month
type MonthlyTotal struct {
	Month        string  `json:"month"` // YYYY-MM
	TotalAmount  float64 `json:"totalAmount"`
	TaxAmount    float64 `json:"taxAmount"`
	ReceiptCount int     `json:"receiptCount"`
}

// CategoryTotal represents aggregated spending for one category
type CategoryTotal struct {
	Category     string  `json:"category"`
	TotalAmount  float64 `json:"totalAmount"`
	ReceiptCount int     `json:"receiptCount"`
}

// VendorTotal represents aggregated spending for one vendor
type VendorTotal struct {
	Vendor       string  `json:"vendor"`
	TotalAmount  float64 `json:"totalAmount"`
	ReceiptCount int     `json:"receiptCount"`
}

// SpendingSummary represents the overall analytics summary
type SpendingSummary struct {
	ReceiptCount  int             `json:"receiptCount"`
	TotalAmount   float64         `json:"totalAmount"`
	TotalVAT      float64         `json:"totalVat"`
	AverageAmount float64         `json:"averageAmount"`
	Currency      string          `json:"currency"`
	Monthly       []MonthlyTotal  `json:"monthly"`
	Categories    []CategoryTotal `json:"categories"`
	Vendors       []VendorTotal   `json:"vendors"`
}

// AuditReport groups flagged receipts by flag for GET /api/audit
type AuditReport struct {
	Summary    AuditSummary `json:"summary"`
	Duplicates []Receipt    `json:"duplicates"`
	MathErrors []Receipt    `json:"mathErrors"`
	MissingVAT []Receipt    `json:"missingVat"`
	Suspicious []Receipt    `json:"suspicious"`
}

// AuditSummary counts flagged receipts per flag
type AuditSummary struct {
	TotalReceipts   int `json:"totalReceipts"`
	FlaggedReceipts int `json:"flaggedReceipts"`
	Duplicates      int `json:"duplicates"`
	MathErrors      int `json:"mathErrors"`
	MissingVAT      int `json:"missingVat"`
	Suspicious      int `json:"suspicious"`
}

// HealthCheck represents system health status
type HealthCheck struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

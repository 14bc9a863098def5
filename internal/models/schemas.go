package models

import (
	"fmt"
	"strings"
	"time"
)

// IngestLineItem is one line position in an ingest request
type IngestLineItem struct {
	Description string   `json:"description" validate:"required,min=1,max=500"`
	Quantity    *int     `json:"quantity,omitempty" validate:"omitempty,min=1"`
	UnitPrice   float64  `json:"unitPrice" validate:"gte=0"`
	LineTotal   *float64 `json:"lineTotal,omitempty"`
	VATRate     *float64 `json:"vatRate,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// IngestRequest is the payload for POST /api/ingest and /api/ingest/db
type IngestRequest struct {
	VendorName    string           `json:"vendorName" validate:"required,min=1,max=255"`
	Date          string           `json:"date" validate:"required"`
	TotalAmount   float64          `json:"totalAmount" validate:"gte=0"`
	TaxAmount     float64          `json:"taxAmount" validate:"gte=0"`
	Currency      string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	Category      string           `json:"category,omitempty"`
	PaymentMethod string           `json:"paymentMethod,omitempty"`
	ReceiptNumber string           `json:"receiptNumber,omitempty"`
	ImageURL      string           `json:"imageUrl,omitempty"`
	LineItems     []IngestLineItem `json:"lineItems,omitempty" validate:"dive"`
}

// ToReceipt converts the request into a Receipt using defaultCurrency when
// the payload omits one. Date accepts ISO-8601 date or timestamp forms.
func (req *IngestRequest) ToReceipt(defaultCurrency string) (*Receipt, error) {
	date, err := ParseReceiptDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", req.Date, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	receipt := NewReceipt(req.VendorName, date, req.TotalAmount, req.TaxAmount, currency)
	receipt.SetCategory(req.Category)
	receipt.ReceiptNumber = strings.TrimSpace(req.ReceiptNumber)

	if pm := strings.TrimSpace(req.PaymentMethod); pm != "" {
		receipt.PaymentMethod = &pm
	}
	if u := strings.TrimSpace(req.ImageURL); u != "" {
		receipt.ImageURL = &u
	}

	for _, it := range req.LineItems {
		qty := DefaultQuantity
		if it.Quantity != nil {
			qty = *it.Quantity
		}

		// Items may state only their per-line total
		unitPrice := it.UnitPrice
		if unitPrice == 0 && it.LineTotal != nil && qty >= 1 {
			unitPrice = *it.LineTotal / float64(qty)
		}

		li := NewLineItem(it.Description, qty, unitPrice)
		if it.LineTotal != nil {
			li.LineTotal = roundToTwoDecimals(*it.LineTotal)
		}
		li.VATRate = it.VATRate
		receipt.LineItems = append(receipt.LineItems, *li)
	}

	return receipt, nil
}

// IngestResponse is returned by the ingest endpoints
type IngestResponse struct {
	Receipt *Receipt `json:"receipt"`
	Indexed bool     `json:"indexed"`
}

// ExtractionConfidence classifies how complete an extraction result is.
type ExtractionConfidence string

const (
	ConfidenceOK      ExtractionConfidence = "ok"
	ConfidencePartial ExtractionConfidence = "partial"
	ConfidenceFailed  ExtractionConfidence = "failed"
)

// ExtractResponse is returned by POST /api/extract and /api/extract/upload
type ExtractResponse struct {
	Receipt    *Receipt             `json:"receipt,omitempty"`
	Confidence ExtractionConfidence `json:"confidence"`
	Warnings   []string             `json:"warnings,omitempty"`
}

// QueryRequest is the payload for POST /api/chat/query
type QueryRequest struct {
	Query string `json:"query" validate:"required,min=1"`
}

// QueryIntent classifies a natural-language bookkeeping question.
type QueryIntent string

const (
	IntentSumByCategory QueryIntent = "sum_by_category"
	IntentSumByVendor   QueryIntent = "sum_by_vendor"
	IntentSumByPeriod   QueryIntent = "sum_by_period"
	IntentCount         QueryIntent = "count"
	IntentListTopK      QueryIntent = "list_top_k"
	IntentFindSpecific  QueryIntent = "find_specific"
	IntentFreeform      QueryIntent = "freeform"
)

// QueryResponse is the structured answer for POST /api/chat/query
type QueryResponse struct {
	Answer      string      `json:"answer"`
	Intent      QueryIntent `json:"intent"`
	TotalAmount float64     `json:"totalAmount"`
	Count       int         `json:"count"`
	Currency    string      `json:"currency"`
	ReceiptIDs  []int64     `json:"receiptIds"`
	Receipts    []Receipt   `json:"receipts"`
}

// ChatTurn is one prior exchange in a conversation
type ChatTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatRequest is the payload for POST /api/chat
type ChatRequest struct {
	Message string     `json:"message" validate:"required,min=1"`
	History []ChatTurn `json:"history,omitempty" validate:"dive"`
}

// ChatResponse is the prose answer for POST /api/chat
type ChatResponse struct {
	Answer  string    `json:"answer"`
	Sources []Receipt `json:"sources,omitempty"`
}

var receiptDateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
}

// ParseReceiptDate parses the date formats accepted on ingest and extraction.
func ParseReceiptDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range receiptDateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

package ai

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bookkeeper-api/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const extractionPrompt = `You are a receipt data extraction system. Analyze the receipt image and respond with a single JSON object, nothing else. No explanations, no markdown.

Schema:
{
  "vendorName": "string, the store or business name",
  "date": "string, ISO-8601 date or timestamp",
  "totalAmount": "number, the grand total",
  "taxAmount": "number, total VAT/tax, 0 if not shown",
  "currency": "string, 3-letter code, e.g. EUR",
  "category": "string, one of: groceries, restaurant, transport, office, electronics, pharmacy, other",
  "paymentMethod": "string, cash/card if shown, else empty",
  "receiptNumber": "string, the printed receipt number if any",
  "lineItems": [
    {"description": "string", "quantity": "integer, default 1", "unitPrice": "number", "lineTotal": "number", "vatRate": "number, VAT percent if shown"}
  ]
}

Use null for values you cannot read. Emit JSON only.`

// ExtractionError carries the evidence of a failed extraction: the image
// checksum and the raw model output.
type ExtractionError struct {
	Checksum  string
	RawOutput string
	Reason    string
}

// Error implements the error interface
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): image sha256 %s", e.Reason, e.Checksum)
}

// Extractor converts receipt images into structured records via the vision model
type Extractor struct {
	client   *Client
	currency string
	logger   *logrus.Logger
}

// NewExtractor creates a new extractor using the given completion client
func NewExtractor(client *Client, defaultCurrency string, logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Extractor{
		client:   client,
		currency: defaultCurrency,
		logger:   logger,
	}
}

// Extract runs one vision completion over the image and parses the response
// into a candidate receipt. The returned confidence is ok, partial or failed;
// on failed the error is an *ExtractionError and the receipt is nil.
func (e *Extractor) Extract(ctx context.Context, image []byte, mime string) (*models.Receipt, models.ExtractionConfidence, []string, error) {
	checksum := fmt.Sprintf("%x", sha256.Sum256(image))

	raw, err := e.client.CompleteVision(ctx, extractionPrompt, image, mime)
	if err != nil {
		return nil, models.ConfidenceFailed, nil, err
	}

	payload, err := parsePayload(raw)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"checksum": checksum,
			"error":    err.Error(),
		}).Warn("Extraction response did not parse")
		return nil, models.ConfidenceFailed, nil, &ExtractionError{
			Checksum:  checksum,
			RawOutput: raw,
			Reason:    "unparseable model output",
		}
	}

	receipt, confidence, warnings := e.buildReceipt(payload)
	if confidence == models.ConfidenceFailed {
		return nil, models.ConfidenceFailed, warnings, &ExtractionError{
			Checksum:  checksum,
			RawOutput: raw,
			Reason:    strings.Join(warnings, "; "),
		}
	}

	e.logger.WithFields(logrus.Fields{
		"vendor":     receipt.VendorName,
		"total":      receipt.TotalAmount,
		"confidence": confidence,
		"warnings":   len(warnings),
	}).Info("Receipt extracted")

	return receipt, confidence, warnings, nil
}

// extractPayload mirrors the schema the prompt requests. Numeric fields stay
// untyped because local models emit numbers and strings interchangeably.
type extractPayload struct {
	VendorName    string        `json:"vendorName"`
	Date          string        `json:"date"`
	TotalAmount   interface{}   `json:"totalAmount"`
	TaxAmount     interface{}   `json:"taxAmount"`
	Currency      string        `json:"currency"`
	Category      string        `json:"category"`
	PaymentMethod string        `json:"paymentMethod"`
	ReceiptNumber string        `json:"receiptNumber"`
	LineItems     []extractItem `json:"lineItems"`
}

type extractItem struct {
	Description string      `json:"description"`
	Quantity    interface{} `json:"quantity"`
	UnitPrice   interface{} `json:"unitPrice"`
	LineTotal   interface{} `json:"lineTotal"`
	VATRate     interface{} `json:"vatRate"`
}

// parsePayload strips code fences, tries a strict parse, then applies the
// bounded repairs and retries exactly once.
func parsePayload(raw string) (*extractPayload, error) {
	cleaned := stripCodeFences(raw)

	payload := &extractPayload{}
	if err := json.Unmarshal([]byte(cleaned), payload); err == nil {
		return payload, nil
	}

	repaired := repairJSON(cleaned)
	payload = &extractPayload{}
	if err := json.Unmarshal([]byte(repaired), payload); err != nil {
		return nil, fmt.Errorf("response is not valid JSON after repair: %w", err)
	}

	return payload, nil
}

// stripCodeFences removes markdown code fences around the JSON body
func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// repairJSON trims leading/trailing non-JSON text and balances braces once
func repairJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return s
	}
	s = s[start:]

	if end := strings.LastIndex(s, "}"); end >= 0 {
		s = s[:end+1]
	}

	opens := strings.Count(s, "{")
	closes := strings.Count(s, "}")
	if opens > closes {
		s += strings.Repeat("}", opens-closes)
	}

	return s
}

// buildReceipt coerces the payload into a Receipt and classifies confidence
func (e *Extractor) buildReceipt(payload *extractPayload) (*models.Receipt, models.ExtractionConfidence, []string) {
	var warnings []string

	vendor := strings.TrimSpace(payload.VendorName)
	if vendor == "" {
		warnings = append(warnings, "vendor name missing")
	}

	total, totalOK := parseDecimal(payload.TotalAmount)
	if !totalOK {
		warnings = append(warnings, "total amount missing or unreadable")
	}

	if vendor == "" || !totalOK {
		return nil, models.ConfidenceFailed, warnings
	}

	tax, _ := parseDecimal(payload.TaxAmount)

	currency := strings.ToUpper(strings.TrimSpace(payload.Currency))
	if len(currency) != 3 {
		currency = e.currency
	}

	date, dateErr := models.ParseReceiptDate(payload.Date)
	confidence := models.ConfidenceOK
	if dateErr != nil {
		warnings = append(warnings, "date missing or unreadable")
		confidence = models.ConfidencePartial
		date = time.Now().UTC()
	}

	receipt := models.NewReceipt(vendor, date, total, tax, currency)
	receipt.SetCategory(payload.Category)
	receipt.ReceiptNumber = strings.TrimSpace(payload.ReceiptNumber)
	if pm := strings.TrimSpace(payload.PaymentMethod); pm != "" {
		receipt.PaymentMethod = &pm
	}

	for _, it := range payload.LineItems {
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			continue
		}

		qty := models.DefaultQuantity
		if q, ok := parseDecimal(it.Quantity); ok && q >= 1 {
			qty = int(q)
		}

		unitPrice, unitOK := parseDecimal(it.UnitPrice)
		lineTotal, lineOK := parseDecimal(it.LineTotal)
		switch {
		case !unitOK && lineOK:
			unitPrice = lineTotal / float64(qty)
		case unitOK && !lineOK:
			lineTotal = unitPrice * float64(qty)
		case !unitOK && !lineOK:
			warnings = append(warnings, fmt.Sprintf("line item %q has no price", desc))
			continue
		}

		li := models.NewLineItem(desc, qty, unitPrice)
		li.LineTotal = roundTwo(lineTotal)
		if rate, ok := parseDecimal(it.VATRate); ok && rate >= 0 && rate <= 100 {
			li.VATRate = &rate
		}
		receipt.LineItems = append(receipt.LineItems, *li)
	}

	if len(receipt.LineItems) == 0 {
		warnings = append(warnings, "no line items extracted")
		confidence = models.ConfidencePartial
	}

	return receipt, confidence, warnings
}

// parseDecimal coerces the loosely typed amounts local models produce.
// Strings accept both '.' and ',' as decimal separator.
func parseDecimal(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return roundTwo(value), true
	case int:
		return float64(value), true
	case json.Number:
		d, err := decimal.NewFromString(value.String())
		if err != nil {
			return 0, false
		}
		return d.Round(2).InexactFloat64(), true
	case string:
		s := strings.TrimSpace(value)
		if s == "" {
			return 0, false
		}
		// Locale-tolerant: 1.234,56 and 1,234.56 both resolve
		if strings.Contains(s, ",") && strings.Contains(s, ".") {
			if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
				s = strings.ReplaceAll(s, ".", "")
				s = strings.Replace(s, ",", ".", 1)
			} else {
				s = strings.ReplaceAll(s, ",", "")
			}
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "€")
		s = strings.TrimSpace(s)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, false
		}
		return d.Round(2).InexactFloat64(), true
	default:
		return 0, false
	}
}

func roundTwo(v float64) float64 {
	d := decimal.NewFromFloat(v)
	return d.Round(2).InexactFloat64()
}

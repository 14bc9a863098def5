package ai

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/models"
)

func testExtractor() *Extractor {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewExtractor(nil, "EUR", logger)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
	}

	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "leading prose trimmed",
			in:   "Here is the receipt: {\"a\":1}",
			want: "{\"a\":1}",
		},
		{
			name: "trailing prose trimmed",
			in:   "{\"a\":1} Hope that helps!",
			want: "{\"a\":1}",
		},
		{
			name: "missing closing brace balanced",
			in:   "{\"a\":{\"b\":1}",
			want: "{\"a\":{\"b\":1}}",
		},
		{
			name: "no braces left alone",
			in:   "sorry, no data",
			want: "sorry, no data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := repairJSON(tt.in); got != tt.want {
				t.Errorf("repairJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePayload(t *testing.T) {
	raw := "```json\nSure! {\"vendorName\": \"REWE\", \"totalAmount\": 23.80\n```"
	payload, err := parsePayload(raw)
	if err != nil {
		t.Fatalf("parsePayload() failed: %v", err)
	}
	if payload.VendorName != "REWE" {
		t.Errorf("VendorName = %q, want REWE", payload.VendorName)
	}

	if _, err := parsePayload("no json here at all"); err == nil {
		t.Error("parsePayload() of prose should fail")
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want float64
		ok   bool
	}{
		{"float", 23.805, 23.81, true},
		{"plain string", "23.80", 23.80, true},
		{"german comma", "23,80", 23.80, true},
		{"german thousands", "1.234,56", 1234.56, true},
		{"english thousands", "1,234.56", 1234.56, true},
		{"euro suffix", "12,50 €", 12.50, true},
		{"empty string", "", 0, false},
		{"prose", "unknown", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDecimal(tt.in)
			if ok != tt.ok {
				t.Fatalf("parseDecimal(%v) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("parseDecimal(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildReceipt_Confidence(t *testing.T) {
	e := testExtractor()

	t.Run("complete payload is ok", func(t *testing.T) {
		receipt, confidence, _ := e.buildReceipt(&extractPayload{
			VendorName:  "REWE",
			Date:        "2024-03-10",
			TotalAmount: 23.80,
			TaxAmount:   3.80,
			Currency:    "eur",
			LineItems: []extractItem{
				{Description: "Milch", Quantity: 2.0, UnitPrice: 1.19, LineTotal: 2.38},
			},
		})
		if confidence != models.ConfidenceOK {
			t.Errorf("confidence = %v, want ok", confidence)
		}
		if receipt.Currency != "EUR" {
			t.Errorf("Currency = %q, want uppercased EUR", receipt.Currency)
		}
		if len(receipt.LineItems) != 1 {
			t.Errorf("LineItems count = %d, want 1", len(receipt.LineItems))
		}
	})

	t.Run("missing vendor fails", func(t *testing.T) {
		receipt, confidence, warnings := e.buildReceipt(&extractPayload{
			Date:        "2024-03-10",
			TotalAmount: 23.80,
		})
		if receipt != nil || confidence != models.ConfidenceFailed {
			t.Errorf("want nil receipt and failed confidence, got %v / %v", receipt, confidence)
		}
		if len(warnings) == 0 {
			t.Error("expected a warning about the missing vendor")
		}
	})

	t.Run("missing total fails", func(t *testing.T) {
		_, confidence, _ := e.buildReceipt(&extractPayload{
			VendorName: "REWE",
			Date:       "2024-03-10",
		})
		if confidence != models.ConfidenceFailed {
			t.Errorf("confidence = %v, want failed", confidence)
		}
	})

	t.Run("unreadable date is partial", func(t *testing.T) {
		receipt, confidence, _ := e.buildReceipt(&extractPayload{
			VendorName:  "REWE",
			Date:        "sometime in March",
			TotalAmount: 23.80,
			LineItems: []extractItem{
				{Description: "Milch", UnitPrice: 1.19},
			},
		})
		if confidence != models.ConfidencePartial {
			t.Errorf("confidence = %v, want partial", confidence)
		}
		if receipt.Date.IsZero() {
			t.Error("fallback date should be set")
		}
	})

	t.Run("zero line items is partial", func(t *testing.T) {
		_, confidence, warnings := e.buildReceipt(&extractPayload{
			VendorName:  "REWE",
			Date:        "2024-03-10",
			TotalAmount: 23.80,
		})
		if confidence != models.ConfidencePartial {
			t.Errorf("confidence = %v, want partial", confidence)
		}
		found := false
		for _, w := range warnings {
			if strings.Contains(w, "line items") {
				found = true
			}
		}
		if !found {
			t.Error("expected a warning about missing line items")
		}
	})

	t.Run("line total inferred from unit price", func(t *testing.T) {
		receipt, _, _ := e.buildReceipt(&extractPayload{
			VendorName:  "REWE",
			Date:        "2024-03-10",
			TotalAmount: 23.80,
			LineItems: []extractItem{
				{Description: "Milch", Quantity: 2.0, UnitPrice: 1.19},
				{Description: "Brot", LineTotal: "2,49"},
				{Description: "Unpriced"},
			},
		})
		if len(receipt.LineItems) != 2 {
			t.Fatalf("LineItems count = %d, want 2 (unpriced dropped)", len(receipt.LineItems))
		}
		if receipt.LineItems[0].LineTotal != 2.38 {
			t.Errorf("inferred line total = %v, want 2.38", receipt.LineItems[0].LineTotal)
		}
		if receipt.LineItems[1].UnitPrice != 2.49 {
			t.Errorf("inferred unit price = %v, want 2.49", receipt.LineItems[1].UnitPrice)
		}
	})
}

func TestExtractionError_Error(t *testing.T) {
	err := &ExtractionError{Checksum: "abc123", RawOutput: "garbage", Reason: "response is not valid JSON"}
	msg := err.Error()
	if !strings.Contains(msg, "abc123") || !strings.Contains(msg, "not valid JSON") {
		t.Errorf("Error() = %q, want checksum and reason included", msg)
	}
}

// Package audit derives the four bookkeeping flags of a receipt. The engine
// is a pure function over a receipt and a duplicate probe into the store; it
// never mutates state.
package audit

import (
	"context"
	"strings"
	"time"

	"bookkeeper-api/internal/models"

	"github.com/sirupsen/logrus"
)

// Suspicious line-item terms, matched case-insensitively as substrings
var watchlistTerms = []string{
	"alcohol",
	"wine",
	"beer",
	"spirits",
	"tobacco",
	"cigarette",
}

// Categories that raise the suspicious flag on their own
var watchlistCategories = map[string]bool{
	"bar":     true,
	"alcohol": true,
	"tobacco": true,
}

// DuplicateProbe locates receipts sharing normalized vendor, calendar day and
// a total within tolerance, excluding the given ID.
type DuplicateProbe interface {
	FindDuplicates(ctx context.Context, vendorName string, date time.Time, total float64, excludeID int64) ([]int64, error)
}

// Engine computes audit flags for receipts
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates a new audit engine
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{logger: logger}
}

// Run evaluates all four flags for the receipt against the current store state
func (e *Engine) Run(ctx context.Context, receipt *models.Receipt, probe DuplicateProbe) (models.AuditFlags, error) {
	flags := models.AuditFlags{
		MissingVAT: e.missingVAT(receipt),
		MathError:  e.mathError(receipt),
		Suspicious: e.suspicious(receipt),
	}

	matches, err := probe.FindDuplicates(ctx, receipt.VendorName, receipt.Date, receipt.TotalAmount, receipt.ID)
	if err != nil {
		return flags, err
	}
	flags.Duplicate = len(matches) > 0

	if flags.Any() {
		e.logger.WithFields(logrus.Fields{
			"receipt_id": receipt.ID,
			"vendor":     receipt.VendorName,
			"duplicate":  flags.Duplicate,
			"suspicious": flags.Suspicious,
			"missingVat": flags.MissingVAT,
			"mathError":  flags.MathError,
		}).Info("Audit flags raised")
	}

	return flags, nil
}

// missingVAT is raised when the receipt carries no tax, or every line item on
// a non-empty list states an explicit zero VAT rate. Items without a rate
// leave the flag to the tax amount alone.
func (e *Engine) missingVAT(receipt *models.Receipt) bool {
	if receipt.TaxAmount == 0 {
		return true
	}

	if len(receipt.LineItems) == 0 {
		return false
	}

	for _, li := range receipt.LineItems {
		if li.VATRate == nil || *li.VATRate != 0 {
			return false
		}
	}
	return true
}

// mathError is raised when the line totals of a non-empty list disagree with
// total minus tax by more than one currency minor unit.
func (e *Engine) mathError(receipt *models.Receipt) bool {
	if len(receipt.LineItems) == 0 {
		return false
	}

	diff := receipt.LineItemSum() - receipt.NetAmount()
	if diff < 0 {
		diff = -diff
	}
	return diff > models.AmountTolerance
}

// suspicious is raised when a line-item description contains a watchlist term
// or the category itself is on the watchlist.
func (e *Engine) suspicious(receipt *models.Receipt) bool {
	if watchlistCategories[strings.ToLower(strings.TrimSpace(receipt.GetCategory()))] {
		return true
	}

	for _, li := range receipt.LineItems {
		desc := strings.ToLower(li.Description)
		for _, term := range watchlistTerms {
			if strings.Contains(desc, term) {
				return true
			}
		}
	}
	return false
}

// WatchlistTerms returns the suspicious-item terms. The query planner uses
// the same list to resolve alcohol-related category questions.
func WatchlistTerms() []string {
	terms := make([]string, len(watchlistTerms))
	copy(terms, watchlistTerms)
	return terms
}

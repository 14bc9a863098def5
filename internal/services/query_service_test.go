package services

import (
	"context"
	"testing"
	"time"

	"bookkeeper-api/internal/ai"
	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
	"bookkeeper-api/internal/vector"
)

func seedReceipt(store *fakeStore, vendor, date, category string, total, tax float64) *models.Receipt {
	parsed, _ := models.ParseReceiptDate(date)
	receipt := models.NewReceipt(vendor, parsed, total, tax, "EUR")
	receipt.SetCategory(category)
	return store.add(receipt)
}

func TestClassify(t *testing.T) {
	vendors := []string{"REWE", "Shell"}

	tests := []struct {
		name     string
		question string
		intent   models.QueryIntent
		category string
		vendor   string
	}{
		{
			name:     "category sum",
			question: "how much did i spend on groceries?",
			intent:   models.IntentSumByCategory,
			category: "groceries",
		},
		{
			name:     "german alcohol sum",
			question: "wie viel habe ich für alkohol ausgegeben?",
			intent:   models.IntentSumByCategory,
			category: "alcohol",
		},
		{
			name:     "vendor sum",
			question: "how much did i spend at rewe?",
			intent:   models.IntentSumByVendor,
			vendor:   "REWE",
		},
		{
			name:     "period sum",
			question: "how much did i spend in march 2024?",
			intent:   models.IntentSumByPeriod,
		},
		{
			name:     "count",
			question: "how many receipts do i have?",
			intent:   models.IntentCount,
		},
		{
			name:     "top k",
			question: "top 3 most expensive receipts",
			intent:   models.IntentListTopK,
		},
		{
			name:     "find with amount",
			question: "show receipts over 100",
			intent:   models.IntentFindSpecific,
		},
		{
			name:     "freeform",
			question: "tell me something interesting",
			intent:   models.IntentFreeform,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, filters := classify(tt.question, vendors)
			if intent != tt.intent {
				t.Errorf("intent = %v, want %v", intent, tt.intent)
			}
			if filters.category != tt.category {
				t.Errorf("category = %q, want %q", filters.category, tt.category)
			}
			if filters.vendor != tt.vendor {
				t.Errorf("vendor = %q, want %q", filters.vendor, tt.vendor)
			}
		})
	}
}

func TestClassify_TopKValue(t *testing.T) {
	_, filters := classify("top 3 most expensive receipts", nil)
	if filters.topK != 3 {
		t.Errorf("topK = %d, want 3", filters.topK)
	}

	_, filters = classify("largest receipts", nil)
	if filters.topK != maxSources {
		t.Errorf("topK = %d, want default %d", filters.topK, maxSources)
	}
}

func TestExtractAmountRange(t *testing.T) {
	min, max := extractAmountRange("receipts over 50")
	if min == nil || *min != 50 || max != nil {
		t.Errorf("over: min=%v max=%v, want 50/nil", min, max)
	}

	min, max = extractAmountRange("receipts under 20,50")
	if min != nil || max == nil || *max != 20.50 {
		t.Errorf("under: min=%v max=%v, want nil/20.50", min, max)
	}

	min, max = extractAmountRange("between 10 and 99.50 euro")
	if min == nil || max == nil || *min != 10 || *max != 99.50 {
		t.Errorf("between: min=%v max=%v, want 10/99.50", min, max)
	}

	min, max = extractAmountRange("no amounts here")
	if min != nil || max != nil {
		t.Errorf("none: min=%v max=%v, want nil/nil", min, max)
	}
}

func TestExtractDateRange(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		question  string
		wantStart string
		wantEnd   string
	}{
		{"named month current year", "spending in march", "2024-03-01", "2024-03-31"},
		{"named month with year", "spending in march 2023", "2023-03-01", "2023-03-31"},
		{"german month", "ausgaben im dezember", "2024-12-01", "2024-12-31"},
		{"today", "what did i buy today", "2024-06-15", "2024-06-15"},
		{"yesterday", "receipts from yesterday", "2024-06-14", "2024-06-14"},
		{"last month", "total last month", "2024-05-01", "2024-05-31"},
		{"this year", "spending this year", "2024-01-01", "2024-12-31"},
		{"bare year", "spending in 2023", "2023-01-01", "2023-12-31"},
		{"two months resolve to the earlier", "spending between march and may", "2024-03-01", "2024-03-31"},
		{"two months in reverse order", "spending between may and march", "2024-03-01", "2024-03-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := extractDateRange(tt.question, now)
			if start == nil || end == nil {
				t.Fatalf("extractDateRange(%q) = %v, %v, want a range", tt.question, start, end)
			}
			if got := start.Format("2006-01-02"); got != tt.wantStart {
				t.Errorf("start = %s, want %s", got, tt.wantStart)
			}
			if got := end.Format("2006-01-02"); got != tt.wantEnd {
				t.Errorf("end = %s, want %s", got, tt.wantEnd)
			}
		})
	}

	start, end := extractDateRange("no period mentioned", now)
	if start != nil || end != nil {
		t.Errorf("no period: got %v, %v, want nil range", start, end)
	}
}

func newTestQueryService(store *fakeStore, analytics *fakeAnalytics, index *fakeIndex, completer *fakeCompleter) QueryService {
	return NewQueryService(store, analytics, index, &fakeEmbedder{}, completer, "EUR", quietLogger())
}

func TestQueryService_Answer_CategorySum(t *testing.T) {
	store := newFakeStore()
	r1 := seedReceipt(store, "REWE", "2024-03-10", "groceries", 50.00, 5.00)
	r2 := seedReceipt(store, "REWE", "2024-03-12", "groceries", 30.00, 3.00)
	seedReceipt(store, "Shell", "2024-03-11", "transport", 70.00, 11.17)

	index := newFakeIndex()
	index.results = []vector.Result{{ID: r1.ID}, {ID: 3}, {ID: r2.ID}}
	completer := &fakeCompleter{answer: "You spent 80.00 EUR on groceries."}

	svc := newTestQueryService(store, &fakeAnalytics{}, index, completer)

	response, err := svc.Answer(context.Background(), "How much did I spend on groceries?")
	if err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}

	if response.Intent != models.IntentSumByCategory {
		t.Errorf("Intent = %v, want sum_by_category", response.Intent)
	}
	if response.TotalAmount != 80.00 {
		t.Errorf("TotalAmount = %v, want 80.00", response.TotalAmount)
	}
	if response.Count != 2 {
		t.Errorf("Count = %d, want 2", response.Count)
	}
	if response.Answer != "You spent 80.00 EUR on groceries." {
		t.Errorf("Answer = %q", response.Answer)
	}

	// Sources: retrieval hits restricted to the matched receipts, newest first
	if len(response.Receipts) != 2 {
		t.Fatalf("Receipts count = %d, want 2", len(response.Receipts))
	}
	if response.Receipts[0].ID != r2.ID || response.Receipts[1].ID != r1.ID {
		t.Errorf("source order = [%d %d], want [%d %d]", response.Receipts[0].ID, response.Receipts[1].ID, r2.ID, r1.ID)
	}
}

func TestQueryService_Answer_AlcoholUsesLineItems(t *testing.T) {
	store := newFakeStore()
	mixed := seedReceipt(store, "REWE", "2024-03-12", "groceries", 30.00, 3.00)

	analytics := &fakeAnalytics{lineItemTotal: 25.00, lineItemIDs: []int64{mixed.ID}}
	index := newFakeIndex()
	index.results = []vector.Result{{ID: mixed.ID}}
	completer := &fakeCompleter{answer: "25.00 EUR went to alcohol."}

	svc := newTestQueryService(store, analytics, index, completer)

	response, err := svc.Answer(context.Background(), "How much did I spend on wine?")
	if err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}

	if response.TotalAmount != 25.00 {
		t.Errorf("TotalAmount = %v, want 25.00 (line-item sum, not receipt total)", response.TotalAmount)
	}
	if response.Count != 1 {
		t.Errorf("Count = %d, want 1", response.Count)
	}

	// The term list must include the full watchlist, not just the lexicon hit
	found := false
	for _, term := range analytics.lineItemTerms {
		if term == "wein" {
			found = true
		}
	}
	if !found {
		t.Errorf("line item terms %v missing german synonym", analytics.lineItemTerms)
	}
}

func TestQueryService_Answer_VendorSum(t *testing.T) {
	store := newFakeStore()
	seedReceipt(store, "REWE", "2024-03-10", "groceries", 50.00, 5.00)
	shell := seedReceipt(store, "Shell", "2024-03-11", "transport", 70.00, 11.17)

	index := newFakeIndex()
	index.results = []vector.Result{{ID: shell.ID}}
	completer := &fakeCompleter{answer: "70.00 EUR at Shell."}

	svc := newTestQueryService(store, &fakeAnalytics{}, index, completer)

	response, err := svc.Answer(context.Background(), "how much did I spend at Shell?")
	if err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}

	if response.Intent != models.IntentSumByVendor {
		t.Errorf("Intent = %v, want sum_by_vendor", response.Intent)
	}
	if response.TotalAmount != 70.00 {
		t.Errorf("TotalAmount = %v, want 70.00", response.TotalAmount)
	}
}

func TestQueryService_Answer_TopK(t *testing.T) {
	store := newFakeStore()
	r1 := seedReceipt(store, "REWE", "2024-03-10", "groceries", 50.00, 5.00)
	seedReceipt(store, "REWE", "2024-03-12", "groceries", 30.00, 3.00)
	r3 := seedReceipt(store, "Shell", "2024-03-11", "transport", 70.00, 11.17)

	svc := newTestQueryService(store, &fakeAnalytics{}, newFakeIndex(), &fakeCompleter{answer: "ok"})

	response, err := svc.Answer(context.Background(), "top 2 most expensive receipts")
	if err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}

	if response.Intent != models.IntentListTopK {
		t.Errorf("Intent = %v, want list_top_k", response.Intent)
	}
	if len(response.ReceiptIDs) != 2 {
		t.Fatalf("ReceiptIDs = %v, want 2 entries", response.ReceiptIDs)
	}
	if response.ReceiptIDs[0] != r3.ID || response.ReceiptIDs[1] != r1.ID {
		t.Errorf("ReceiptIDs = %v, want [%d %d] by amount descending", response.ReceiptIDs, r3.ID, r1.ID)
	}
}

func TestQueryService_Answer_CountHasNoTotal(t *testing.T) {
	store := newFakeStore()
	seedReceipt(store, "REWE", "2024-03-10", "groceries", 50.00, 5.00)
	seedReceipt(store, "REWE", "2024-03-12", "groceries", 30.00, 3.00)

	svc := newTestQueryService(store, &fakeAnalytics{}, newFakeIndex(), &fakeCompleter{answer: "Two receipts."})

	response, err := svc.Answer(context.Background(), "how many receipts from REWE?")
	if err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}

	if response.Intent != models.IntentCount {
		t.Errorf("Intent = %v, want count", response.Intent)
	}
	if response.Count != 2 {
		t.Errorf("Count = %d, want 2", response.Count)
	}
	if response.TotalAmount != 0 {
		t.Errorf("TotalAmount = %v, want 0 for count answers", response.TotalAmount)
	}
}

func TestQueryService_Answer_OfflineFallbackProse(t *testing.T) {
	store := newFakeStore()
	seedReceipt(store, "REWE", "2024-03-10", "groceries", 50.00, 5.00)

	completer := &fakeCompleter{err: ai.ErrUnavailable}
	svc := newTestQueryService(store, &fakeAnalytics{}, newFakeIndex(), completer)

	response, err := svc.Answer(context.Background(), "how much did I spend on groceries?")
	if err != nil {
		t.Fatalf("Answer() should not fail when only prose is unavailable: %v", err)
	}

	if response.Answer != proseFallback {
		t.Errorf("Answer = %q, want fallback prose", response.Answer)
	}
	if response.TotalAmount != 50.00 {
		t.Errorf("TotalAmount = %v, want the deterministic total regardless", response.TotalAmount)
	}
}

func TestQueryService_Answer_NoMatches(t *testing.T) {
	store := newFakeStore()
	seedReceipt(store, "REWE", "2024-03-10", "groceries", 50.00, 5.00)

	completer := &fakeCompleter{answer: "should not be used"}
	svc := newTestQueryService(store, &fakeAnalytics{}, newFakeIndex(), completer)

	response, err := svc.Answer(context.Background(), "how much did I spend on pharmacy?")
	if err != nil {
		t.Fatalf("Answer() failed: %v", err)
	}

	if response.Answer != proseNoMatches {
		t.Errorf("Answer = %q, want %q", response.Answer, proseNoMatches)
	}
	if response.TotalAmount != 0 || response.Count != 0 {
		t.Errorf("totals = %v/%d, want zero", response.TotalAmount, response.Count)
	}
	if completer.userPrompt != "" {
		t.Error("completer should not be called for empty results")
	}
}

func TestQueryService_Answer_EmptyQuery(t *testing.T) {
	svc := newTestQueryService(newFakeStore(), &fakeAnalytics{}, newFakeIndex(), &fakeCompleter{})

	_, err := svc.Answer(context.Background(), "   ")
	if err == nil || !repositories.IsValidation(err) {
		t.Errorf("Answer(blank) error = %v, want validation error", err)
	}
}

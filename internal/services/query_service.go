package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/ai"
	"bookkeeper-api/internal/audit"
	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
	"bookkeeper-api/internal/vector"
)

// Prose produced when the language service is unreachable
const proseFallback = "Totals computed; prose unavailable because the language service is offline."

// Prose for empty candidate sets
const proseNoMatches = "no matching receipts"

const querySystemPrompt = `You are a bookkeeping assistant. You answer questions about the user's receipts.
STRICT RULE: use only the pre-calculated numbers provided in the context. You may restate them; you may NOT compute, add, multiply or derive new numbers. Answer in one or two short sentences in the language of the question.`

// Candidate retrieval breadth
const retrievalK = 20

// Number of source receipts attached to an answer
const maxSources = 5

// Keyword lexicon; classification takes the first matching intent in order
var sumKeywords = []string{"spend", "spent", "sum", "total", "much", "cost", "ausgegeben", "viel", "kosten"}
var countKeywords = []string{"how many", "count", "number of", "wie viele", "anzahl"}
var topKeywords = []string{"top", "largest", "biggest", "most expensive", "highest", "teuerste", "größte"}
var findKeywords = []string{"find", "show", "search", "which", "where", "when did", "zeige", "finde", "welche"}
var periodKeywords = []string{
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
	"januar", "februar", "märz", "mai", "juni", "juli",
	"oktober", "dezember",
	"month", "year", "week", "today", "yesterday", "monat", "jahr", "woche", "heute", "gestern",
}

// Category vocabulary: canonical category plus the terms that map onto it.
// Alcohol-related questions aggregate over line items (see answerCategory).
var categoryLexicon = map[string][]string{
	"alcohol":     {"alcohol", "alkohol", "wine", "wein", "beer", "bier", "spirits", "schnaps", "drinks"},
	"tobacco":     {"tobacco", "tabak", "cigarette", "zigarette"},
	"groceries":   {"groceries", "grocery", "lebensmittel", "supermarkt", "supermarket", "einkauf"},
	"restaurant":  {"restaurant", "dining", "essen gehen", "gaststätte"},
	"transport":   {"transport", "fuel", "tanken", "benzin", "gas station", "taxi", "bahn", "ticket"},
	"pharmacy":    {"pharmacy", "apotheke", "medication", "medikament"},
	"office":      {"office", "büro", "stationery"},
	"electronics": {"electronics", "elektronik", "computer", "hardware"},
}

// Categories whose sums come from matching line items instead of whole receipts
var lineItemCategories = map[string]bool{
	"alcohol": true,
	"tobacco": true,
}

var (
	amountOverRe    = regexp.MustCompile(`(?:over|above|more than|über|mehr als)\s*(\d+(?:[.,]\d+)?)`)
	amountUnderRe   = regexp.MustCompile(`(?:under|below|less than|unter|weniger als)\s*(\d+(?:[.,]\d+)?)`)
	amountBetweenRe = regexp.MustCompile(`(?:between|zwischen)\s*(\d+(?:[.,]\d+)?)\s*(?:and|und)\s*(\d+(?:[.,]\d+)?)`)
	topKRe          = regexp.MustCompile(`(?:top|largest|biggest)\s*(\d+)`)
	yearRe          = regexp.MustCompile(`\b(20\d\d)\b`)
)

// queryFilters carries the structured constraints the classifier extracted
type queryFilters struct {
	category      string
	categoryTerms []string
	vendor        string
	startDate     *time.Time
	endDate       *time.Time
	minAmount     *float64
	maxAmount     *float64
	topK          int
}

// queryService implements the QueryService interface
type queryService struct {
	store     repositories.ReceiptRepository
	analytics repositories.AnalyticsRepository
	index     vector.Index
	embedder  Embedder
	completer Completer
	currency  string
	logger    *logrus.Logger
}

// NewQueryService creates a new query planner instance
func NewQueryService(
	store repositories.ReceiptRepository,
	analytics repositories.AnalyticsRepository,
	index vector.Index,
	embedder Embedder,
	completer Completer,
	currency string,
	logger *logrus.Logger,
) QueryService {
	if logger == nil {
		logger = logrus.New()
	}
	return &queryService{
		store:     store,
		analytics: analytics,
		index:     index,
		embedder:  embedder,
		completer: completer,
		currency:  currency,
		logger:    logger,
	}
}

// Answer classifies the question, aggregates deterministically over the store
// and delegates only the prose to the completion service
func (s *queryService) Answer(ctx context.Context, query string) (*models.QueryResponse, error) {
	question := strings.ToLower(strings.TrimSpace(query))
	if question == "" {
		return nil, repositories.ValidationError("query", 0, fmt.Errorf("query cannot be empty"))
	}

	vendors, err := s.store.VendorNames(ctx)
	if err != nil {
		return nil, err
	}

	intent, filters := classify(question, vendors)

	s.logger.WithFields(logrus.Fields{
		"intent":   intent,
		"category": filters.category,
		"vendor":   filters.vendor,
	}).Info("Query classified")

	candidates := s.retrieve(ctx, query, filters)

	response := &models.QueryResponse{
		Intent:   intent,
		Currency: s.currency,
	}

	switch intent {
	case models.IntentSumByCategory:
		err = s.answerCategory(ctx, filters, response)
	case models.IntentSumByVendor:
		err = s.answerVendor(ctx, filters, response)
	case models.IntentSumByPeriod:
		err = s.answerPeriod(ctx, filters, response)
	case models.IntentCount:
		err = s.answerCount(ctx, filters, response)
	case models.IntentListTopK:
		err = s.answerTopK(ctx, filters, response)
	case models.IntentFindSpecific:
		err = s.answerFind(ctx, filters, response)
	default:
		err = s.answerFreeform(ctx, candidates, response)
	}
	if err != nil {
		return nil, err
	}

	response.Receipts = s.selectSources(ctx, candidates, response.ReceiptIDs, intent)

	if len(response.ReceiptIDs) == 0 && len(response.Receipts) == 0 {
		response.Answer = proseNoMatches
		response.TotalAmount = 0
		return response, nil
	}

	response.Answer = s.compose(ctx, query, response)
	return response, nil
}

// classify matches the question against the intent lexicon; first match wins
func classify(question string, vendors []string) (models.QueryIntent, *queryFilters) {
	filters := &queryFilters{topK: maxSources}
	filters.category, filters.categoryTerms = matchCategory(question)
	filters.vendor = matchVendor(question, vendors)
	filters.startDate, filters.endDate = extractDateRange(question, time.Now())
	filters.minAmount, filters.maxAmount = extractAmountRange(question)
	if m := topKRe.FindStringSubmatch(question); m != nil {
		if k, err := strconv.Atoi(m[1]); err == nil && k > 0 {
			filters.topK = k
		}
	}

	wantsSum := containsAny(question, sumKeywords)

	switch {
	case filters.category != "" && wantsSum:
		return models.IntentSumByCategory, filters
	case filters.vendor != "" && wantsSum:
		return models.IntentSumByVendor, filters
	case (filters.startDate != nil || containsAny(question, periodKeywords)) && wantsSum:
		return models.IntentSumByPeriod, filters
	case containsAny(question, countKeywords):
		return models.IntentCount, filters
	case containsAny(question, topKeywords):
		return models.IntentListTopK, filters
	case containsAny(question, findKeywords) || filters.vendor != "" || filters.minAmount != nil || filters.maxAmount != nil:
		return models.IntentFindSpecific, filters
	default:
		return models.IntentFreeform, filters
	}
}

// retrieve embeds the question and searches the index with k=20. A failing
// embedding degrades to an empty candidate list; the deterministic part of
// the answer does not depend on it.
func (s *queryService) retrieve(ctx context.Context, query string, filters *queryFilters) []vector.Result {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.WithError(err).Warn("Question embedding failed, skipping retrieval")
		return nil
	}

	var filter map[string]string
	if filters.vendor != "" {
		filter = map[string]string{"vendor": models.NormalizeVendor(filters.vendor)}
	}

	results, err := s.index.Search(ctx, embedding, retrievalK, filter)
	if err != nil {
		s.logger.WithError(err).Warn("Vector search failed, skipping retrieval")
		return nil
	}
	return results
}

// answerCategory sums a category. Watchlist categories (alcohol, tobacco)
// aggregate over matching line items; others over whole receipts.
func (s *queryService) answerCategory(ctx context.Context, filters *queryFilters, response *models.QueryResponse) error {
	if lineItemCategories[filters.category] {
		terms := filters.categoryTerms
		if filters.category == "alcohol" {
			terms = append(terms, audit.WatchlistTerms()...)
		}
		total, ids, err := s.analytics.CategoryLineItemTotal(ctx, terms)
		if err != nil {
			return err
		}
		response.TotalAmount = total
		response.Count = len(ids)
		response.ReceiptIDs = ids
		return nil
	}

	receipts, err := s.store.List(ctx, &models.ReceiptFilters{
		Category:  filters.category,
		StartDate: filters.startDate,
		EndDate:   filters.endDate,
	})
	if err != nil {
		return err
	}
	fillFromReceipts(receipts, response)
	return nil
}

// answerVendor sums all receipts of one vendor
func (s *queryService) answerVendor(ctx context.Context, filters *queryFilters, response *models.QueryResponse) error {
	receipts, err := s.store.List(ctx, &models.ReceiptFilters{
		Vendor:    filters.vendor,
		StartDate: filters.startDate,
		EndDate:   filters.endDate,
	})
	if err != nil {
		return err
	}
	fillFromReceipts(receipts, response)
	return nil
}

// answerPeriod sums all receipts in the extracted date range
func (s *queryService) answerPeriod(ctx context.Context, filters *queryFilters, response *models.QueryResponse) error {
	receipts, err := s.store.List(ctx, &models.ReceiptFilters{
		StartDate: filters.startDate,
		EndDate:   filters.endDate,
	})
	if err != nil {
		return err
	}
	fillFromReceipts(receipts, response)
	return nil
}

// answerCount counts receipts matching the extracted constraints
func (s *queryService) answerCount(ctx context.Context, filters *queryFilters, response *models.QueryResponse) error {
	receipts, err := s.listFiltered(ctx, filters)
	if err != nil {
		return err
	}
	fillFromReceipts(receipts, response)
	response.TotalAmount = 0
	return nil
}

// answerTopK lists the k most expensive matching receipts
func (s *queryService) answerTopK(ctx context.Context, filters *queryFilters, response *models.QueryResponse) error {
	receipts, err := s.listFiltered(ctx, filters)
	if err != nil {
		return err
	}

	sort.Slice(receipts, func(i, j int) bool {
		if receipts[i].TotalAmount != receipts[j].TotalAmount {
			return receipts[i].TotalAmount > receipts[j].TotalAmount
		}
		return receipts[i].ID > receipts[j].ID
	})

	if len(receipts) > filters.topK {
		receipts = receipts[:filters.topK]
	}
	fillFromReceipts(receipts, response)
	return nil
}

// answerFind lists receipts matching the extracted constraints
func (s *queryService) answerFind(ctx context.Context, filters *queryFilters, response *models.QueryResponse) error {
	receipts, err := s.listFiltered(ctx, filters)
	if err != nil {
		return err
	}
	fillFromReceipts(receipts, response)
	return nil
}

// answerFreeform skips aggregation; the candidate list is the payload
func (s *queryService) answerFreeform(ctx context.Context, candidates []vector.Result, response *models.QueryResponse) error {
	for _, c := range candidates {
		response.ReceiptIDs = append(response.ReceiptIDs, c.ID)
	}
	response.Count = len(response.ReceiptIDs)
	response.TotalAmount = 0
	return nil
}

// listFiltered lists receipts under the store filters and applies the amount
// range in memory (the store has no amount filter)
func (s *queryService) listFiltered(ctx context.Context, filters *queryFilters) ([]models.Receipt, error) {
	receipts, err := s.store.List(ctx, &models.ReceiptFilters{
		Vendor:    filters.vendor,
		Category:  filters.category,
		StartDate: filters.startDate,
		EndDate:   filters.endDate,
	})
	if err != nil {
		return nil, err
	}

	if filters.minAmount == nil && filters.maxAmount == nil {
		return receipts, nil
	}

	kept := receipts[:0]
	for _, r := range receipts {
		if filters.minAmount != nil && r.TotalAmount < *filters.minAmount {
			continue
		}
		if filters.maxAmount != nil && r.TotalAmount > *filters.maxAmount {
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

// selectSources picks up to five display receipts: candidates restricted to
// the aggregation domain, ordered by similarity, ties by date then ID
// descending. Without retrieval results the newest domain receipts serve.
func (s *queryService) selectSources(ctx context.Context, candidates []vector.Result, domain []int64, intent models.QueryIntent) []models.Receipt {
	inDomain := make(map[int64]bool, len(domain))
	for _, id := range domain {
		inDomain[id] = true
	}

	var picked []int64
	for _, c := range candidates {
		if intent != models.IntentFreeform && !inDomain[c.ID] {
			continue
		}
		picked = append(picked, c.ID)
		if len(picked) == maxSources {
			break
		}
	}

	if len(picked) == 0 {
		n := len(domain)
		if n > maxSources {
			n = maxSources
		}
		picked = domain[:n]
	}

	var sources []models.Receipt
	for _, id := range picked {
		receipt, err := s.store.GetByID(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("receipt_id", id).Warn("Failed to load source receipt")
			continue
		}
		sources = append(sources, *receipt)
	}

	sort.Slice(sources, func(i, j int) bool {
		if !sources[i].Date.Equal(sources[j].Date) {
			return sources[i].Date.After(sources[j].Date)
		}
		return sources[i].ID > sources[j].ID
	})

	return sources
}

// compose asks the text model to restate the deterministic result as prose,
// degrading to the fixed fallback when the service is unreachable
func (s *queryService) compose(ctx context.Context, query string, response *models.QueryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", query)
	fmt.Fprintf(&b, "Intent: %s\n", response.Intent)
	fmt.Fprintf(&b, "Pre-calculated total: %.2f %s\n", response.TotalAmount, response.Currency)
	fmt.Fprintf(&b, "Matching receipts: %d\n", response.Count)
	if len(response.Receipts) > 0 {
		b.WriteString("Source receipts:\n")
		for _, r := range response.Receipts {
			fmt.Fprintf(&b, "- #%d %s %s %.2f %s\n", r.ID, r.VendorName, r.Date.Format("2006-01-02"), r.TotalAmount, r.Currency)
		}
	}

	answer, err := s.completer.Complete(ctx, querySystemPrompt, b.String())
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) || errors.Is(err, ai.ErrTimeout) {
			s.logger.WithError(err).Warn("Language service offline, using fallback prose")
			return proseFallback
		}
		s.logger.WithError(err).Warn("Prose composition failed, using fallback prose")
		return proseFallback
	}

	return strings.TrimSpace(answer)
}

// fillFromReceipts sets total, count and IDs from a receipt list
func fillFromReceipts(receipts []models.Receipt, response *models.QueryResponse) {
	var total float64
	ids := make([]int64, 0, len(receipts))
	for _, r := range receipts {
		total += r.TotalAmount
		ids = append(ids, r.ID)
	}
	response.TotalAmount = total
	response.Count = len(receipts)
	response.ReceiptIDs = ids
}

// matchCategory finds the first lexicon category whose terms occur in the question
func matchCategory(question string) (string, []string) {
	// Watchlist categories first so "beer" resolves before generic matches
	ordered := []string{"alcohol", "tobacco", "groceries", "restaurant", "transport", "pharmacy", "office", "electronics"}
	for _, category := range ordered {
		for _, term := range categoryLexicon[category] {
			if strings.Contains(question, term) {
				return category, categoryLexicon[category]
			}
		}
	}
	return "", nil
}

// matchVendor finds a stored vendor name mentioned in the question
func matchVendor(question string, vendors []string) string {
	for _, vendor := range vendors {
		normalized := models.NormalizeVendor(vendor)
		if normalized != "" && strings.Contains(question, normalized) {
			return vendor
		}
	}
	return ""
}

// extractAmountRange parses over/under/between amount constraints
func extractAmountRange(question string) (*float64, *float64) {
	if m := amountBetweenRe.FindStringSubmatch(question); m != nil {
		lo := parseAmount(m[1])
		hi := parseAmount(m[2])
		return &lo, &hi
	}

	var min, max *float64
	if m := amountOverRe.FindStringSubmatch(question); m != nil {
		v := parseAmount(m[1])
		min = &v
	}
	if m := amountUnderRe.FindStringSubmatch(question); m != nil {
		v := parseAmount(m[1])
		max = &v
	}
	return min, max
}

func parseAmount(s string) float64 {
	s = strings.Replace(s, ",", ".", 1)
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// Checked in calendar order so a question naming two months resolves to the
// earlier one deterministically.
var monthNames = []struct {
	name  string
	month time.Month
}{
	{"january", time.January}, {"januar", time.January},
	{"february", time.February}, {"februar", time.February},
	{"march", time.March}, {"märz", time.March},
	{"april", time.April},
	{"may", time.May}, {"mai", time.May},
	{"june", time.June}, {"juni", time.June},
	{"july", time.July}, {"juli", time.July},
	{"august", time.August},
	{"september", time.September},
	{"october", time.October}, {"oktober", time.October},
	{"november", time.November},
	{"december", time.December}, {"dezember", time.December},
}

// extractDateRange resolves relative and named periods to a concrete range
func extractDateRange(question string, now time.Time) (*time.Time, *time.Time) {
	year := now.Year()
	if m := yearRe.FindStringSubmatch(question); m != nil {
		year, _ = strconv.Atoi(m[1])
	}

	for _, entry := range monthNames {
		if strings.Contains(question, entry.name) {
			start := time.Date(year, entry.month, 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 1, 0).Add(-time.Second)
			return &start, &end
		}
	}

	switch {
	case strings.Contains(question, "today") || strings.Contains(question, "heute"):
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 0, 1).Add(-time.Second)
		return &start, &end
	case strings.Contains(question, "yesterday") || strings.Contains(question, "gestern"):
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		end := start.AddDate(0, 0, 1).Add(-time.Second)
		return &start, &end
	case strings.Contains(question, "this month") || strings.Contains(question, "diesen monat"):
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).Add(-time.Second)
		return &start, &end
	case strings.Contains(question, "last month") || strings.Contains(question, "letzten monat"):
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		end := start.AddDate(0, 1, 0).Add(-time.Second)
		return &start, &end
	case strings.Contains(question, "this year") || strings.Contains(question, "dieses jahr"):
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(1, 0, 0).Add(-time.Second)
		return &start, &end
	case strings.Contains(question, "last year") || strings.Contains(question, "letztes jahr"):
		start := time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(1, 0, 0).Add(-time.Second)
		return &start, &end
	}

	if m := yearRe.FindStringSubmatch(question); m != nil {
		start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(1, 0, 0).Add(-time.Second)
		return &start, &end
	}

	return nil, nil
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
	"bookkeeper-api/internal/vector"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeStore is an in-memory ReceiptRepository for service tests
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	receipts map[int64]*models.Receipt
}

func newFakeStore() *fakeStore {
	return &fakeStore{receipts: make(map[int64]*models.Receipt)}
}

func (s *fakeStore) add(receipt *models.Receipt) *models.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if receipt.ID == 0 {
		s.nextID++
		receipt.ID = s.nextID
	} else if receipt.ID > s.nextID {
		s.nextID = receipt.ID
	}
	copied := *receipt
	s.receipts[receipt.ID] = &copied
	return receipt
}

func (s *fakeStore) Create(ctx context.Context, receipt *models.Receipt) error {
	s.add(receipt)
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	receipt, ok := s.receipts[id]
	if !ok {
		return nil, repositories.NotFoundError("receipt", id)
	}
	copied := *receipt
	return &copied, nil
}

func (s *fakeStore) Update(ctx context.Context, receipt *models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[receipt.ID]; !ok {
		return repositories.NotFoundError("receipt", receipt.ID)
	}
	copied := *receipt
	s.receipts[receipt.ID] = &copied
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[id]; !ok {
		return repositories.NotFoundError("receipt", id)
	}
	delete(s.receipts, id)
	return nil
}

func (s *fakeStore) List(ctx context.Context, filters *models.ReceiptFilters) ([]models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Receipt
	for _, receipt := range s.receipts {
		if filters != nil {
			if filters.Vendor != "" && models.NormalizeVendor(receipt.VendorName) != models.NormalizeVendor(filters.Vendor) {
				continue
			}
			if filters.Category != "" && !strings.EqualFold(receipt.GetCategory(), filters.Category) {
				continue
			}
			if filters.StartDate != nil && receipt.Date.Before(*filters.StartDate) {
				continue
			}
			if filters.EndDate != nil && receipt.Date.After(*filters.EndDate) {
				continue
			}
			if filters.FlaggedOnly && !receipt.Flags.Any() {
				continue
			}
		}
		out = append(out, *receipt)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *fakeStore) Count(ctx context.Context, filters *models.ReceiptFilters) (int64, error) {
	receipts, err := s.List(ctx, filters)
	if err != nil {
		return 0, err
	}
	return int64(len(receipts)), nil
}

func (s *fakeStore) Exists(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.receipts[id]
	return ok, nil
}

func (s *fakeStore) AllIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.receipts))
	for id := range s.receipts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *fakeStore) FindDuplicates(ctx context.Context, vendorName string, date time.Time, total float64, excludeID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, receipt := range s.receipts {
		if id == excludeID {
			continue
		}
		if models.NormalizeVendor(receipt.VendorName) != models.NormalizeVendor(vendorName) {
			continue
		}
		if receipt.Date.Format("2006-01-02") != date.Format("2006-01-02") {
			continue
		}
		diff := receipt.TotalAmount - total
		if diff < -0.01 || diff > 0.01 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *fakeStore) UpdateFlags(ctx context.Context, id int64, flags models.AuditFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	receipt, ok := s.receipts[id]
	if !ok {
		return repositories.NotFoundError("receipt", id)
	}
	receipt.Flags = flags
	return nil
}

func (s *fakeStore) VendorNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var names []string
	for _, receipt := range s.receipts {
		if !seen[receipt.VendorName] {
			seen[receipt.VendorName] = true
			names = append(names, receipt.VendorName)
		}
	}
	sort.Strings(names)
	return names, nil
}

// fakeAnalytics serves canned aggregation results
type fakeAnalytics struct {
	summary       *models.SpendingSummary
	monthly       []models.MonthlyTotal
	categories    []models.CategoryTotal
	vendors       []models.VendorTotal
	lineItemTotal float64
	lineItemIDs   []int64
	lineItemTerms []string
}

func (a *fakeAnalytics) Summary(ctx context.Context) (*models.SpendingSummary, error) {
	return a.summary, nil
}

func (a *fakeAnalytics) MonthlyTotals(ctx context.Context) ([]models.MonthlyTotal, error) {
	return a.monthly, nil
}

func (a *fakeAnalytics) CategoryTotals(ctx context.Context) ([]models.CategoryTotal, error) {
	return a.categories, nil
}

func (a *fakeAnalytics) VendorTotals(ctx context.Context) ([]models.VendorTotal, error) {
	return a.vendors, nil
}

func (a *fakeAnalytics) CategoryLineItemTotal(ctx context.Context, terms []string) (float64, []int64, error) {
	a.lineItemTerms = terms
	return a.lineItemTotal, a.lineItemIDs, nil
}

// fakeIndex records writes and serves canned search results
type fakeIndex struct {
	mu      sync.Mutex
	entries map[int64]vector.Entry
	results []vector.Result
	addErr  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: make(map[int64]vector.Entry)}
}

func (i *fakeIndex) Add(ctx context.Context, entry vector.Entry) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.addErr != nil {
		return i.addErr
	}
	i.entries[entry.ID] = entry
	return nil
}

func (i *fakeIndex) Remove(ctx context.Context, id int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, id)
	return nil
}

func (i *fakeIndex) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]vector.Result, error) {
	if len(i.results) > k {
		return i.results[:k], nil
	}
	return i.results, nil
}

func (i *fakeIndex) IDs(ctx context.Context) ([]int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ids := make([]int64, 0, len(i.entries))
	for id := range i.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

func (i *fakeIndex) Count(ctx context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.entries), nil
}

func (i *fakeIndex) Close() error { return nil }

func indexEntry(id int64) vector.Entry {
	return vector.Entry{
		ID:       id,
		Document: "test document",
		Vector:   []float32{1, 0, 0, 0},
		Metadata: map[string]string{},
	}
}

// fakeEmbedder returns a fixed vector or a configured error
type fakeEmbedder struct {
	err   error
	calls int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0, 0}, nil
}

// fakeCompleter records the prompts it receives
type fakeCompleter struct {
	answer     string
	err        error
	system     string
	userPrompt string
}

func (c *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.system = systemPrompt
	c.userPrompt = userPrompt
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *fakeCompleter) Healthy(ctx context.Context) bool {
	return c.err == nil
}

package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// MemoryIndex is the in-memory back-end. Search takes the read lock, add and
// remove take the write lock.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[int64]Entry
	dim     int
	logger  *logrus.Logger
}

// NewMemoryIndex creates an empty in-memory index for vectors of the given dimension
func NewMemoryIndex(dim int, logger *logrus.Logger) *MemoryIndex {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryIndex{
		entries: make(map[int64]Entry),
		dim:     dim,
		logger:  logger,
	}
}

// Add inserts or replaces the entry for the given receipt ID
func (m *MemoryIndex) Add(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != m.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(entry.Vector), m.dim)
	}

	entry.Vector = Normalize(entry.Vector)

	m.mu.Lock()
	m.entries[entry.ID] = entry
	m.mu.Unlock()

	m.logger.WithField("receipt_id", entry.ID).Debug("Vector entry added")
	return nil
}

// Remove evicts the entry for the given receipt ID; removing a missing ID is a no-op
func (m *MemoryIndex) Remove(ctx context.Context, id int64) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()

	m.logger.WithField("receipt_id", id).Debug("Vector entry removed")
	return nil
}

// Search returns the top-k entries by cosine similarity, ties broken by
// descending ID, restricted to entries matching the filter
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]Result, error) {
	if len(query) != m.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), m.dim)
	}

	query = Normalize(query)

	m.mu.RLock()
	results := make([]Result, 0, len(m.entries))
	for _, entry := range m.entries {
		if !matchesFilter(entry.Metadata, filter) {
			continue
		}
		results = append(results, Result{
			ID:         entry.ID,
			Similarity: Cosine(query, entry.Vector),
			Metadata:   entry.Metadata,
		})
	}
	m.mu.RUnlock()

	return rank(results, k), nil
}

// IDs returns all indexed receipt IDs, ascending
func (m *MemoryIndex) IDs(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Count returns the number of indexed receipts
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close releases the index; the in-memory back-end holds no external resources
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	m.entries = make(map[int64]Entry)
	m.mu.Unlock()
	return nil
}

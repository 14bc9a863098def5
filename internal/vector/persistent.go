package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// PersistentIndex is the on-disk back-end. Entries live as one JSON file per
// receipt under the index directory; an in-memory mirror serves searches and
// is rebuilt from disk on open.
type PersistentIndex struct {
	dir    string
	mirror *MemoryIndex
	logger *logrus.Logger
}

// OpenPersistentIndex opens (or creates) the index directory and loads all
// stored entries into the mirror
func OpenPersistentIndex(dir string, dim int, logger *logrus.Logger) (*PersistentIndex, error) {
	if logger == nil {
		logger = logrus.New()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector directory: %w", err)
	}

	idx := &PersistentIndex{
		dir:    dir,
		mirror: NewMemoryIndex(dim, logger),
		logger: logger,
	}

	if err := idx.load(); err != nil {
		return nil, err
	}

	return idx, nil
}

// load rebuilds the mirror from the entry files on disk. Unreadable files are
// skipped with a warning so one corrupt entry cannot block startup.
func (p *PersistentIndex) load() error {
	files, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("failed to read vector directory: %w", err)
	}

	loaded := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(p.dir, f.Name()))
		if err != nil {
			p.logger.WithError(err).WithField("file", f.Name()).Warn("Skipping unreadable vector entry")
			continue
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			p.logger.WithError(err).WithField("file", f.Name()).Warn("Skipping corrupt vector entry")
			continue
		}

		if err := p.mirror.Add(context.Background(), entry); err != nil {
			p.logger.WithError(err).WithField("file", f.Name()).Warn("Skipping incompatible vector entry")
			continue
		}
		loaded++
	}

	p.logger.WithFields(logrus.Fields{"dir": p.dir, "entries": loaded}).Info("Vector index loaded")
	return nil
}

// Add persists the entry to disk, then updates the mirror
func (p *PersistentIndex) Add(ctx context.Context, entry Entry) error {
	entry.Vector = Normalize(entry.Vector)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal vector entry: %w", err)
	}

	// Write-then-rename keeps the entry file whole under crashes
	path := p.entryPath(entry.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write vector entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit vector entry: %w", err)
	}

	return p.mirror.Add(ctx, entry)
}

// Remove deletes the entry file and evicts it from the mirror
func (p *PersistentIndex) Remove(ctx context.Context, id int64) error {
	if err := os.Remove(p.entryPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove vector entry: %w", err)
	}
	return p.mirror.Remove(ctx, id)
}

// Search delegates to the mirror
func (p *PersistentIndex) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]Result, error) {
	return p.mirror.Search(ctx, query, k, filter)
}

// IDs delegates to the mirror
func (p *PersistentIndex) IDs(ctx context.Context) ([]int64, error) {
	return p.mirror.IDs(ctx)
}

// Count delegates to the mirror
func (p *PersistentIndex) Count(ctx context.Context) (int, error) {
	return p.mirror.Count(ctx)
}

// Close releases the mirror; entry files stay on disk
func (p *PersistentIndex) Close() error {
	return p.mirror.Close()
}

func (p *PersistentIndex) entryPath(id int64) string {
	return filepath.Join(p.dir, strconv.FormatInt(id, 10)+".json")
}

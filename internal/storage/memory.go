package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryImage struct {
	data     []byte
	storedAt time.Time
}

// MemoryStore is an in-memory ImageStore for tests and throwaway setups
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string]memoryImage
}

// NewMemoryStore creates an empty in-memory image store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string]memoryImage)}
}

func (s *MemoryStore) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	s.images[key] = memoryImage{data: copied, storedAt: time.Now().UTC()}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	img, ok := s.images[key]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrNotFound
	}

	copied := make([]byte, len(img.data))
	copy(copied, img.data)
	return copied, mimeForKey(key), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.images, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]ImageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []ImageInfo
	for key, img := range s.images {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, ImageInfo{
			Key:      key,
			Size:     int64(len(img.data)),
			Mime:     mimeForKey(key),
			StoredAt: img.storedAt,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

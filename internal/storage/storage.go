package storage

import (
	"context"
	"errors"
	"time"
)

// Storage errors
var (
	// ErrNotFound is returned when no image is stored under the key
	ErrNotFound = errors.New("image not found")

	// ErrInvalidKey is returned for empty keys or keys escaping the root
	ErrInvalidKey = errors.New("invalid image key")

	// ErrUnavailable marks transient failures worth retrying
	ErrUnavailable = errors.New("image store unavailable")
)

// ImageInfo describes one archived image
type ImageInfo struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Mime     string    `json:"mime"`
	StoredAt time.Time `json:"storedAt"`
}

// ImageStore archives the original receipt images that extraction ran over.
// Keys are slash-separated relative paths; the extension carries the MIME
// type.
type ImageStore interface {
	// Save writes an image under the key, replacing any existing one
	Save(ctx context.Context, key string, data []byte) error

	// Load returns the image bytes and its MIME type
	Load(ctx context.Context, key string) ([]byte, string, error)

	// Delete removes an image; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// List returns the stored images under the prefix
	List(ctx context.Context, prefix string) ([]ImageInfo, error)
}

// IsRetryable reports whether a storage error is worth another attempt
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

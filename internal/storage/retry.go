package storage

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig tunes the retry wrapper
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry settings used in the container
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// delay computes the exponential backoff with up to 10% jitter
func (c *RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	d += rand.Float64() * 0.1 * d
	return time.Duration(d)
}

// RetryStore wraps an ImageStore, retrying transient failures
type RetryStore struct {
	inner  ImageStore
	config *RetryConfig
}

// NewRetryStore creates a retrying wrapper around the given store
func NewRetryStore(inner ImageStore, config *RetryConfig) *RetryStore {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryStore{inner: inner, config: config}
}

func (s *RetryStore) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
		if attempt >= s.config.MaxAttempts || !IsRetryable(lastErr) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.delay(attempt)):
		}
	}

	return lastErr
}

func (s *RetryStore) Save(ctx context.Context, key string, data []byte) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		return s.inner.Save(ctx, key, data)
	})
}

func (s *RetryStore) Load(ctx context.Context, key string) ([]byte, string, error) {
	var data []byte
	var mime string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var opErr error
		data, mime, opErr = s.inner.Load(ctx, key)
		return opErr
	})
	return data, mime, err
}

func (s *RetryStore) Delete(ctx context.Context, key string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		return s.inner.Delete(ctx, key)
	})
}

func (s *RetryStore) List(ctx context.Context, prefix string) ([]ImageInfo, error) {
	var infos []ImageInfo
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var opErr error
		infos, opErr = s.inner.List(ctx, prefix)
		return opErr
	})
	return infos, err
}

// Package ai talks to the locally hosted completion service: text and vision
// chat completions plus embeddings, all over its OpenAI-compatible API.
package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	"bookkeeper-api/internal/config"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Upstream error classes surfaced to the handlers
var (
	// ErrUnavailable is returned when the completion service is not reachable
	ErrUnavailable = errors.New("completion service unavailable")

	// ErrTimeout is returned when an upstream call exceeds its deadline
	ErrTimeout = errors.New("completion service timeout")
)

// Per-call deadlines
const (
	visionTimeout    = 120 * time.Second
	textTimeout      = 60 * time.Second
	embeddingTimeout = 10 * time.Second
	healthTimeout    = 3 * time.Second
)

// Client wraps the completion service with per-call deadlines, an in-flight
// cap and a single retry on transport errors.
type Client struct {
	api    *openai.Client
	cfg    config.CompletionConfig
	dim    int
	sem    chan struct{}
	logger *logrus.Logger
}

// NewClient creates a client against the configured endpoint
func NewClient(cfg config.CompletionConfig, embeddingDim int, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}

	apiConfig := openai.DefaultConfig("")
	apiConfig.BaseURL = strings.TrimRight(cfg.Endpoint, "/") + "/v1"

	return &Client{
		api:    openai.NewClientWithConfig(apiConfig),
		cfg:    cfg,
		dim:    embeddingDim,
		sem:    make(chan struct{}, cfg.MaxInflight),
		logger: logger,
	}
}

// Complete runs a text chat completion against the text model
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, textTimeout)
	defer cancel()

	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	request := openai.ChatCompletionRequest{
		Model: c.cfg.TextModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.1,
	}

	var response openai.ChatCompletionResponse
	err := c.withRetry(ctx, "text_completion", func() error {
		var callErr error
		response, callErr = c.api.CreateChatCompletion(ctx, request)
		return callErr
	})
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("completion service returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}

// CompleteVision runs a vision chat completion with the image attached as a data URL
func (c *Client) CompleteVision(ctx context.Context, prompt string, image []byte, mime string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, visionTimeout)
	defer cancel()

	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))

	request := openai.ChatCompletionRequest{
		Model: c.cfg.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
		Temperature: 0.0,
	}

	var response openai.ChatCompletionResponse
	err := c.withRetry(ctx, "vision_completion", func() error {
		var callErr error
		response, callErr = c.api.CreateChatCompletion(ctx, request)
		return callErr
	})
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("completion service returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}

// Embed returns the unit-normalized embedding of the given text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embeddingTimeout)
	defer cancel()

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	request := openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	}

	var response openai.EmbeddingResponse
	err := c.withRetry(ctx, "embedding", func() error {
		var callErr error
		response, callErr = c.api.CreateEmbeddings(ctx, request)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if len(response.Data) == 0 {
		return nil, fmt.Errorf("completion service returned no embedding")
	}

	embedding := response.Data[0].Embedding
	if len(embedding) != c.dim {
		return nil, fmt.Errorf("embedding dimension %d does not match configured %d", len(embedding), c.dim)
	}

	return normalize(embedding), nil
}

// Healthy reports whether the completion service answers a model listing
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	_, err := c.api.ListModels(ctx)
	return err == nil
}

// withRetry runs the call and retries exactly once on a transport error.
// Timeouts and API-level errors are not retried.
func (c *Client) withRetry(ctx context.Context, operation string, call func() error) error {
	err := call()
	if err == nil {
		return nil
	}

	if isNetworkError(err) && ctx.Err() == nil {
		c.logger.WithError(err).WithField("operation", operation).Warn("Transport error, retrying once")
		if err = call(); err == nil {
			return nil
		}
	}

	return c.classify(operation, err)
}

// classify maps raw call errors onto the upstream error classes
func (c *Client) classify(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		c.logger.WithField("operation", operation).Error("Completion call timed out")
		return fmt.Errorf("%s: %w", operation, ErrTimeout)
	}
	if isNetworkError(err) {
		c.logger.WithError(err).WithField("operation", operation).Error("Completion service unreachable")
		return fmt.Errorf("%s: %w", operation, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.sem
}

// isNetworkError recognizes transport failures worth one retry
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return !urlErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// normalize scales the embedding to unit length
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

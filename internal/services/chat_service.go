package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
	"bookkeeper-api/internal/vector"
)

// History turns beyond this window are ignored
const maxHistoryTurns = 10

// Receipts retrieved as conversational context
const chatContextK = 5

const chatSystemPrompt = `You are a friendly bookkeeping assistant. You help the user understand their receipts and spending.
Use the receipt context below when it is relevant; say so when it is not. Do not invent receipts or amounts. Answer in the language of the user's message.`

// chatService implements the ChatService interface
type chatService struct {
	store     repositories.ReceiptRepository
	index     vector.Index
	embedder  Embedder
	completer Completer
	logger    *logrus.Logger
}

// NewChatService creates a new conversational service instance
func NewChatService(
	store repositories.ReceiptRepository,
	index vector.Index,
	embedder Embedder,
	completer Completer,
	logger *logrus.Logger,
) ChatService {
	if logger == nil {
		logger = logrus.New()
	}
	return &chatService{
		store:     store,
		index:     index,
		embedder:  embedder,
		completer: completer,
		logger:    logger,
	}
}

// Chat answers a free conversational message with retrieved receipt context
// and up to ten prior turns
func (s *chatService) Chat(ctx context.Context, request *models.ChatRequest) (*models.ChatResponse, error) {
	message := strings.TrimSpace(request.Message)
	if message == "" {
		return nil, repositories.ValidationError("message", 0, fmt.Errorf("message cannot be empty"))
	}

	history := request.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	contextBlock, sources := s.buildContext(ctx, message)

	var b strings.Builder
	if contextBlock != "" {
		b.WriteString("Receipt context:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n")
	}
	for _, turn := range history {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	fmt.Fprintf(&b, "user: %s", message)

	answer, err := s.completer.Complete(ctx, chatSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	return &models.ChatResponse{
		Answer:  strings.TrimSpace(answer),
		Sources: sources,
	}, nil
}

// buildContext retrieves receipts similar to the message. Retrieval failures
// degrade to an empty context; chat still works without it.
func (s *chatService) buildContext(ctx context.Context, message string) (string, []models.Receipt) {
	embedding, err := s.embedder.Embed(ctx, message)
	if err != nil {
		s.logger.WithError(err).Warn("Chat embedding failed, answering without context")
		return "", nil
	}

	results, err := s.index.Search(ctx, embedding, chatContextK, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Chat retrieval failed, answering without context")
		return "", nil
	}

	var b strings.Builder
	var sources []models.Receipt
	for _, result := range results {
		receipt, err := s.store.GetByID(ctx, result.ID)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- #%d %s %s %.2f %s", receipt.ID, receipt.VendorName, receipt.Date.Format("2006-01-02"), receipt.TotalAmount, receipt.Currency)
		if category := receipt.GetCategory(); category != "" {
			fmt.Fprintf(&b, " (%s)", category)
		}
		b.WriteString("\n")
		sources = append(sources, *receipt)
	}
	return b.String(), sources
}

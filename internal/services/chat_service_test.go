package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bookkeeper-api/internal/ai"
	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/repositories"
	"bookkeeper-api/internal/vector"
)

func TestChatService_Chat(t *testing.T) {
	store := newFakeStore()
	receipt := seedReceipt(store, "REWE", "2024-03-10", "groceries", 50.00, 5.00)

	index := newFakeIndex()
	index.results = []vector.Result{{ID: receipt.ID}}
	completer := &fakeCompleter{answer: "You shop at REWE a lot."}

	svc := NewChatService(store, index, &fakeEmbedder{}, completer, quietLogger())

	response, err := svc.Chat(context.Background(), &models.ChatRequest{Message: "Where do I shop most?"})
	if err != nil {
		t.Fatalf("Chat() failed: %v", err)
	}

	if response.Answer != "You shop at REWE a lot." {
		t.Errorf("Answer = %q", response.Answer)
	}
	if len(response.Sources) != 1 || response.Sources[0].ID != receipt.ID {
		t.Errorf("Sources = %v, want the retrieved receipt", response.Sources)
	}
	if !strings.Contains(completer.userPrompt, "Receipt context:") {
		t.Error("prompt should carry the retrieved context block")
	}
	if !strings.Contains(completer.userPrompt, "REWE") {
		t.Error("context block should mention the retrieved vendor")
	}
}

func TestChatService_Chat_HistoryWindow(t *testing.T) {
	completer := &fakeCompleter{answer: "ok"}
	svc := NewChatService(newFakeStore(), newFakeIndex(), &fakeEmbedder{}, completer, quietLogger())

	history := make([]models.ChatTurn, 0, 14)
	for i := 0; i < 7; i++ {
		history = append(history,
			models.ChatTurn{Role: "user", Content: "question"},
			models.ChatTurn{Role: "assistant", Content: "answer"},
		)
	}

	_, err := svc.Chat(context.Background(), &models.ChatRequest{Message: "and now?", History: history})
	if err != nil {
		t.Fatalf("Chat() failed: %v", err)
	}

	// 14 turns offered, only the trailing window makes the prompt
	turns := strings.Count(completer.userPrompt, "question") + strings.Count(completer.userPrompt, "answer")
	if turns != maxHistoryTurns {
		t.Errorf("prompt carries %d history turns, want %d", turns, maxHistoryTurns)
	}
}

func TestChatService_Chat_DegradesWithoutRetrieval(t *testing.T) {
	completer := &fakeCompleter{answer: "No context needed."}
	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	svc := NewChatService(newFakeStore(), newFakeIndex(), embedder, completer, quietLogger())

	response, err := svc.Chat(context.Background(), &models.ChatRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("Chat() should degrade, not fail: %v", err)
	}

	if len(response.Sources) != 0 {
		t.Errorf("Sources = %v, want none", response.Sources)
	}
	if strings.Contains(completer.userPrompt, "Receipt context:") {
		t.Error("prompt should not carry a context block")
	}
}

func TestChatService_Chat_UpstreamErrorPropagates(t *testing.T) {
	completer := &fakeCompleter{err: ai.ErrTimeout}
	svc := NewChatService(newFakeStore(), newFakeIndex(), &fakeEmbedder{}, completer, quietLogger())

	_, err := svc.Chat(context.Background(), &models.ChatRequest{Message: "hello"})
	if !errors.Is(err, ai.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestChatService_Chat_EmptyMessage(t *testing.T) {
	svc := NewChatService(newFakeStore(), newFakeIndex(), &fakeEmbedder{}, &fakeCompleter{}, quietLogger())

	_, err := svc.Chat(context.Background(), &models.ChatRequest{Message: "   "})
	if err == nil || !repositories.IsValidation(err) {
		t.Errorf("error = %v, want validation error", err)
	}
}

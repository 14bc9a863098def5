package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookkeeper-api/internal/models"
	"bookkeeper-api/internal/services"
)

// ChatHandler serves the natural-language endpoints
type ChatHandler struct {
	query services.QueryService
	chat  services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(query services.QueryService, chat services.ChatService) *ChatHandler {
	return &ChatHandler{
		query: query,
		chat:  chat,
	}
}

// Query handles POST /api/chat/query: deterministic aggregation with a prose
// wrapper
func (h *ChatHandler) Query(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorKind(c, models.ErrKindValidation, err.Error())
		return
	}

	response, err := h.query.Answer(c.Request.Context(), req.Query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Chat handles POST /api/chat: prose-only conversation with retrieved context
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorKind(c, models.ErrKindValidation, err.Error())
		return
	}

	response, err := h.chat.Chat(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

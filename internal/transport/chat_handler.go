package transport

import (
	"net/http"

	"dreampuff/internal/middleware"
	"dreampuff/internal/service"
	"dreampuff/internal/session"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ChatRequest is one staff message to the stock assistant
type ChatRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// ChatHandler serves the stock assistant
type ChatHandler struct {
	assistant service.AssistantService
	logger    *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(assistant service.AssistantService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		assistant: assistant,
		logger:    logger,
	}
}

// RegisterRoutes registers the chat route behind the given guards
func (h *ChatHandler) RegisterRoutes(r chi.Router, guards ...func(http.Handler) http.Handler) {
	r.With(guards...).Post("/chat", h.Chat)
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		middleware.RespondWithRedirect(w, http.StatusUnauthorized, "no active session", session.EntryPoint)
		return
	}

	var req ChatRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	reply, err := h.assistant.Ask(r.Context(), actor, req.Message)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to answer")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, reply)
}

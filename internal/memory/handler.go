package memory

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/api"
)

// Handler handles the engine's HTTP endpoints.
type Handler struct {
	manager  *Manager
	validate *validator.Validate
}

// NewHandler creates a new memory handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager:  manager,
		validate: validator.New(),
	}
}

func conversationID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	return id, err == nil
}

// StoreMessage ingests one message into the conversation's memory.
func (h *Handler) StoreMessage(w http.ResponseWriter, r *http.Request) {
	convID, ok := conversationID(r)
	if !ok {
		api.HandleError(w, api.NewBadRequestError("invalid conversation id"))
		return
	}

	var req StoreMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	chunk, err := h.manager.StoreMessage(r.Context(), convID, req)
	if err != nil {
		slog.Error("storing message", "conversation_id", convID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, map[string]any{
		"id":               chunk.ID,
		"chunk_type":       chunk.ChunkType,
		"importance_score": chunk.ImportanceScore,
		"entities":         chunk.Entities,
	})
}

// GetContext assembles the budgeted context for a query.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	convID, ok := conversationID(r)
	if !ok {
		api.HandleError(w, api.NewBadRequestError("invalid conversation id"))
		return
	}

	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result := h.manager.GetContextForQuery(r.Context(), convID, req)
	api.JSON(w, http.StatusOK, result)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/teamsbots/teamsbots/internal/proactive"
	"github.com/teamsbots/teamsbots/internal/schema"
	"github.com/teamsbots/teamsbots/internal/storage"
)

// Notifier sends proactive messages.
type Notifier interface {
	Notify(ctx context.Context, userKey, text string) (bool, error)
	Broadcast(ctx context.Context, text string) (*proactive.BroadcastResult, error)
}

// Handler handles API requests.
type Handler struct {
	store    storage.ConversationStore
	notifier Notifier
	samples  []string
	logger   zerolog.Logger
}

// NewHandler creates a new API handler. samples is reported by the health
// check.
func NewHandler(store storage.ConversationStore, notifier Notifier, samples []string, logger zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		notifier: notifier,
		samples:  samples,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Response is a generic API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProactiveRequest is the body of the proactive endpoints.
type ProactiveRequest struct {
	Text string `json:"text"`
}

// ConversationSummary describes one stored conversation reference.
type ConversationSummary struct {
	Key              string    `json:"key"`
	Bot              string    `json:"bot,omitempty"`
	UserName         string    `json:"user_name,omitempty"`
	ConversationID   string    `json:"conversation_id"`
	ConversationType string    `json:"conversation_type,omitempty"`
	ServiceURL       string    `json:"service_url"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}

// ProactiveResponse reports a single proactive send.
type ProactiveResponse struct {
	Key  string `json:"key"`
	Sent bool   `json:"sent"`
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "healthy",
			"samples":   h.samples,
			"timestamp": time.Now().UTC(),
		},
	})
}

// ListConversations handles GET /api/v1/conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	refs, err := h.store.ListReferences()
	if h.HandleStoreError(w, err, "list conversations") {
		return
	}

	resp := ListConversationsResponse{
		Conversations: make([]ConversationSummary, 0, len(refs)),
		Total:         len(refs),
	}
	for _, ref := range refs {
		bot, _ := schema.SplitReferenceKey(ref.Key)
		resp.Conversations = append(resp.Conversations, ConversationSummary{
			Key:              ref.Key,
			Bot:              bot,
			UserName:         ref.Reference.User.Name,
			ConversationID:   ref.Reference.Conversation.ID,
			ConversationType: ref.Reference.Conversation.ConversationType,
			ServiceURL:       ref.Reference.ServiceURL,
			UpdatedAt:        ref.UpdatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: resp})
}

// DeleteConversation handles DELETE /api/v1/conversations/{key}.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if h.HandleStoreError(w, h.store.DeleteReference(key), "delete conversation") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendProactive handles POST /api/v1/proactive/{key}.
func (h *Handler) SendProactive(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	text, ok := h.decodeText(w, r)
	if !ok {
		return
	}

	sent, err := h.notifier.Notify(r.Context(), key, text)
	if err != nil {
		h.logger.Error().Err(err).Str("user_key", key).Msg("Proactive send failed")
		writeAPIError(w, NewSendError(err.Error()))
		return
	}
	if !sent {
		writeAPIError(w, ErrReferenceNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: ProactiveResponse{Key: key, Sent: true}})
}

// Broadcast handles POST /api/v1/proactive/broadcast.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	text, ok := h.decodeText(w, r)
	if !ok {
		return
	}

	result, err := h.notifier.Broadcast(r.Context(), text)
	if h.HandleStoreError(w, err, "broadcast") {
		return
	}

	h.logger.Info().Int("sent", result.Sent).Int("failed", result.Failed).Msg("Broadcast sent")
	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: result})
}

func (h *Handler) decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req ProactiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, ErrInvalidJSON)
		return "", false
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeAPIError(w, NewValidationError("text is required"))
		return "", false
	}
	return text, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := writeJSON(w, status, data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

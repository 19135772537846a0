package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/jarvis/internal/domain"
	"github.com/go-chi/chi/v5"
)

const (
	msgMissingFields   = "Missing fields"
	msgSessionNotFound = "Session not found"
	msgInvalidBody     = "Invalid request body"
	maxListLimit       = 500
)

// Assistant turns an utterance into a reply.
type Assistant interface {
	Handle(ctx context.Context, sessionID, utterance string) domain.Reply
}

// AssistantHandler serves the conversation endpoints.
type AssistantHandler struct {
	*Handler
	assistant Assistant
}

// NewAssistantHandler creates an AssistantHandler.
func NewAssistantHandler(base *Handler, assistant Assistant) *AssistantHandler {
	return &AssistantHandler{Handler: base, assistant: assistant}
}

// RegisterRoutes registers the conversation routes. askMiddleware wraps
// only /ask, which is the only route that reaches the completion service.
func (h *AssistantHandler) RegisterRoutes(r chi.Router, askMiddleware ...func(http.Handler) http.Handler) {
	r.With(askMiddleware...).Post("/ask", h.Ask)
	r.Post("/start_session", h.StartSession)
	r.Post("/save_message", h.SaveMessage)
	r.Get("/get_history/{sessionID}", h.GetHistory)
	r.Get("/sessions", h.ListSessions)
}

type askRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Ask routes one utterance and returns {input, reply}. The exchange is not
// persisted; clients call /save_message for that.
func (h *AssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := h.decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	reply := h.assistant.Handle(r.Context(), req.SessionID, req.Message)
	h.requestLogger(r).Debug("Ask handled", "session_id", req.SessionID, "kind", reply.Kind)
	JSON(w, http.StatusOK, reply)
}

// StartSession creates an empty session.
func (h *AssistantHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.repo.CreateSession(r.Context())
	if err != nil {
		h.requestLogger(r).Error("Failed to start session", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	h.requestLogger(r).Info("Session started", "session_id", session.SessionID)
	JSON(w, http.StatusOK, map[string]string{"session_id": session.SessionID})
}

type saveMessageRequest struct {
	SessionID string `json:"session_id"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}

// SaveMessage appends one message to a session.
func (h *AssistantHandler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	var req saveMessageRequest
	if err := h.decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := domain.ValidateMessage(req.SessionID, req.Speaker, req.Text); err != nil {
		Error(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	if _, err := h.repo.AppendMessage(r.Context(), req.SessionID, req.Speaker, req.Text); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			Error(w, http.StatusBadRequest, msgMissingFields)
		case errors.Is(err, domain.ErrNotFound):
			Error(w, http.StatusNotFound, msgSessionNotFound)
		default:
			h.requestLogger(r).Error("Failed to save message", "session_id", req.SessionID, "error", err)
			Error(w, http.StatusInternalServerError, "Failed to save message")
		}
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// GetHistory returns the whole session document.
func (h *AssistantHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.repo.GetHistory(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			Error(w, http.StatusNotFound, msgSessionNotFound)
			return
		}
		h.requestLogger(r).Error("Failed to load history", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	JSON(w, http.StatusOK, session)
}

// ListSessions returns the most recent sessions, newest first.
func (h *AssistantHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			Error(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.repo.ListSessions(r.Context(), limit)
	if err != nil {
		h.requestLogger(r).Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Package api provides HTTP handlers for the Jarvis API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/jarvis/internal/store"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultMaxBody = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	repo    store.Repository
	maxBody int64
	logger  *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, maxBody int64, logger *slog.Logger) *Handler {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:    repo,
		maxBody: maxBody,
		logger:  logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// requestLogger returns the handler logger tagged with the chi request id.
func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return h.logger.With("request_id", id)
	}
	return h.logger
}

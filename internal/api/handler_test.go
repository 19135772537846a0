//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/jarvis/internal/desktop"
	"github.com/ashureev/jarvis/internal/domain"
	"github.com/ashureev/jarvis/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

type fakeAssistant struct {
	sessionID string
	utterance string
}

func (f *fakeAssistant) Handle(_ context.Context, sessionID, utterance string) domain.Reply {
	f.sessionID = sessionID
	f.utterance = utterance
	return domain.Reply{Input: utterance, Text: "Paris!!", Kind: domain.KindQuery}
}

// brokenStore fails every call as an unreachable backend would.
type brokenStore struct{ store.Repository }

var errBroken = errors.New("disk I/O error")

func (brokenStore) CreateSession(context.Context) (*domain.Session, error) {
	return nil, errBroken
}

func (brokenStore) AppendMessage(context.Context, string, string, string) (*domain.Message, error) {
	return nil, errBroken
}

func (brokenStore) GetHistory(context.Context, string) (*domain.Session, error) {
	return nil, errBroken
}

func (brokenStore) ListSessions(context.Context, int) ([]domain.SessionSummary, error) {
	return nil, errBroken
}

func (brokenStore) Ping(context.Context) error { return errBroken }

type testServer struct {
	router    http.Handler
	repo      store.Repository
	assistant *fakeAssistant
	signals   *desktop.Signals
}

func newTestServer(t *testing.T, repo store.Repository) *testServer {
	t.Helper()

	if repo == nil {
		repo = store.NewMemory()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := NewHandler(repo, 1024, logger)
	assistant := &fakeAssistant{}
	signals := desktop.New()

	r := chi.NewRouter()
	NewAssistantHandler(base, assistant).RegisterRoutes(r)
	NewDesktopHandler(signals).RegisterRoutes(r)
	NewHealthHandler(repo).RegisterHealth(r)

	return &testServer{router: r, repo: repo, assistant: assistant, signals: signals}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	}
	return rec.Code, out
}

func TestAsk(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodPost, "/ask", `{"message":"What is the capital of France?","session_id":"abc"}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "What is the capital of France?", body["input"])
	assert.Equal(t, "Paris!!", body["reply"])
	assert.NotContains(t, body, "Kind")
	assert.Equal(t, "abc", s.assistant.sessionID)
}

func TestAskDoesNotPersist(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	_, started := s.do(t, http.MethodPost, "/start_session", "")
	id := started["session_id"].(string)

	code, _ := s.do(t, http.MethodPost, "/ask", `{"message":"hello","session_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, code)

	session, err := s.repo.GetHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, session.Messages)
}

func TestAskValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodPost, "/ask", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing fields", body["error"])

	code, body = s.do(t, http.MethodPost, "/ask", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing fields", body["error"])

	code, body = s.do(t, http.MethodPost, "/ask", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", body["error"])

	code, _ = s.do(t, http.MethodPost, "/ask", `{"message":"`+strings.Repeat("a", 2048)+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConversationFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	code, started := s.do(t, http.MethodPost, "/start_session", "")
	require.Equal(t, http.StatusOK, code)
	id, ok := started["session_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	code, body := s.do(t, http.MethodGet, "/get_history/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body["session_id"])
	assert.Equal(t, []interface{}{}, body["messages"])

	for _, msg := range []struct{ speaker, text string }{
		{"user", "What is the capital of France?"},
		{"assistant", "Paris!!"},
	} {
		code, body = s.do(t, http.MethodPost, "/save_message",
			`{"session_id":"`+id+`","speaker":"`+msg.speaker+`","text":"`+msg.text+`"}`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "saved", body["status"])
	}

	code, body = s.do(t, http.MethodGet, "/get_history/"+id, "")
	require.Equal(t, http.StatusOK, code)
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "user", first["speaker"])
	assert.Equal(t, "What is the capital of France?", first["text"])
	_, err := time.Parse(time.RFC3339Nano, first["timestamp"].(string))
	assert.NoError(t, err)

	code, body = s.do(t, http.MethodGet, "/sessions?limit=10", "")
	require.Equal(t, http.StatusOK, code)
	sessions := body["sessions"].([]interface{})
	require.Len(t, sessions, 1)
	assert.Equal(t, float64(2), sessions[0].(map[string]interface{})["message_count"])
}

func TestSaveMessageErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodPost, "/save_message", `{"speaker":"user","text":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, map[string]interface{}{"error": "Missing fields"}, body)

	code, body = s.do(t, http.MethodPost, "/save_message", `{"session_id":"x","speaker":"  ","text":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing fields", body["error"])

	code, body = s.do(t, http.MethodPost, "/save_message", `{"session_id":"no-such-session","speaker":"user","text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Session not found", body["error"])

	code, _ = s.do(t, http.MethodPost, "/save_message", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetHistoryNotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodGet, "/get_history/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Session not found", body["error"])
}

func TestListSessionsLimitValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodGet, "/sessions", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{}, body["sessions"])

	for _, bad := range []string{"0", "-3", "abc", "100000"} {
		code, _ = s.do(t, http.MethodGet, "/sessions?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, code, "limit=%s", bad)
	}
}

func TestStoreFailuresMapTo500(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, brokenStore{})

	code, body := s.do(t, http.MethodPost, "/start_session", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, body["error"], "disk I/O", "internal errors must not leak")

	code, _ = s.do(t, http.MethodPost, "/save_message", `{"session_id":"a","speaker":"user","text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, code)

	code, _ = s.do(t, http.MethodGet, "/get_history/a", "")
	assert.Equal(t, http.StatusInternalServerError, code)

	code, _ = s.do(t, http.MethodGet, "/sessions", "")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestDesktopSignals(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	_, body := s.do(t, http.MethodPost, "/sleep", "")
	assert.Equal(t, "sleep", body["status"])
	_, body = s.do(t, http.MethodGet, "/desktop/state", "")
	assert.Equal(t, "sleep", body["status"])
	_, body = s.do(t, http.MethodPost, "/wake", "")
	assert.Equal(t, "awake", body["status"])

	_, body = s.do(t, http.MethodGet, "/trigger_listen", "")
	assert.Equal(t, "idle", body["status"])

	_, body = s.do(t, http.MethodPost, "/desktop/listen", "")
	assert.Equal(t, "queued", body["status"])
	_, body = s.do(t, http.MethodPost, "/trigger_listen", "")
	assert.Equal(t, "started_listening", body["status"])
	_, body = s.do(t, http.MethodGet, "/trigger_listen", "")
	assert.Equal(t, "idle", body["status"])

	_, body = s.do(t, http.MethodPost, "/desktop/stop", "")
	assert.Equal(t, "queued", body["status"])
	_, body = s.do(t, http.MethodGet, "/trigger_stop", "")
	assert.Equal(t, "stopped_speaking", body["status"])
	_, body = s.do(t, http.MethodGet, "/trigger_stop", "")
	assert.Equal(t, "idle", body["status"])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	code, body := newTestServer(t, nil).do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = newTestServer(t, brokenStore{}).do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unreachable", body["checks"].(map[string]interface{})["database"])
}

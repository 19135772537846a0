package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/jarvis/internal/api"
	"github.com/ashureev/jarvis/internal/desktop"
	"github.com/ashureev/jarvis/internal/router"
	"github.com/ashureev/jarvis/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLauncher struct{}

func (stubLauncher) Resolve(_ context.Context, name string) string {
	return "Opening " + name + "."
}

type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, string) string {
	return "Paris is the capital of France."
}

type fixture struct {
	url     string
	repo    store.Repository
	signals *desktop.Signals
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := store.NewMemory()
	signals := desktop.New()
	assistant := router.New(stubLauncher{}, stubCompleter{}, nil, logger)

	r := chi.NewRouter()
	base := api.NewHandler(repo, 4096, logger)
	api.NewAssistantHandler(base, assistant).RegisterRoutes(r)
	api.NewDesktopHandler(signals).RegisterRoutes(r)
	api.NewHealthHandler(repo).RegisterHealth(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &fixture{url: srv.URL, repo: repo, signals: signals}
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--server", f.url}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAskPrintsReply(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "ask", "open", "notepad")
	require.NoError(t, err)
	assert.Equal(t, "Opening notepad.\n", out)

	out, err = f.run(t, "ask", "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.\n", out)
}

func TestAskRecordsExchangeInSession(t *testing.T) {
	f := newFixture(t)

	id, err := f.run(t, "new")
	require.NoError(t, err)
	id = strings.TrimSpace(id)
	require.NotEmpty(t, id)

	_, err = f.run(t, "ask", "--session", id, "What is the capital of France?")
	require.NoError(t, err)

	session, err := f.repo.GetHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "user", session.Messages[0].Speaker)
	assert.Equal(t, "What is the capital of France?", session.Messages[0].Text)
	assert.Equal(t, "assistant", session.Messages[1].Speaker)
	assert.Equal(t, "Paris is the capital of France.", session.Messages[1].Text)

	out, err := f.run(t, "history", id)
	require.NoError(t, err)
	assert.Contains(t, out, "SPEAKER")
	assert.Contains(t, out, "What is the capital of France?")
	assert.Contains(t, out, "assistant")

	out, err = f.run(t, "sessions", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, id)
}

func TestAskUnknownSessionFails(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "ask", "--session", "missing", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Session not found")
	assert.NotEmpty(t, out, "the reply is printed before recording fails")
}

func TestHistoryErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "history", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Session not found", apiErr.Message)

	_, err = f.run(t, "history")
	assert.Error(t, err)
}

func TestEmptyListings(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions")

	id, err := f.run(t, "new")
	require.NoError(t, err)
	out, err = f.run(t, "history", strings.TrimSpace(id))
	require.NoError(t, err)
	assert.Contains(t, out, "No messages")
}

func TestSignal(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "signal", "listen")
	require.NoError(t, err)
	assert.Contains(t, out, "queued")
	assert.Equal(t, "started_listening", f.signals.ConsumeListen())

	_, err = f.run(t, "signal", "sleep")
	require.NoError(t, err)
	assert.Equal(t, "sleep", f.signals.State())

	_, err = f.run(t, "signal", "dance")
	assert.Error(t, err)
}

func TestHealthCommand(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")
}

func TestServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--server", url, "new"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

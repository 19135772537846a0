// Package router classifies an utterance and dispatches it to the
// application launcher or the completion client.
package router

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/jarvis/internal/completion"
	"github.com/ashureev/jarvis/internal/domain"
)

// openPattern matches at the start only; anything after the name, such as
// ", please" or ".com", is ignored.
var openPattern = regexp.MustCompile(`^open\s+([\p{L}\p{N}_ -]+)`)

// Command is the classification of one utterance.
type Command struct {
	Kind domain.CommandKind
	// Name is the application name for KindAppOpen.
	Name string
	// Text is the trimmed utterance for KindQuery.
	Text string
}

// Classify decides whether utterance asks to open an application. It is a
// pure function of its input.
func Classify(utterance string) Command {
	trimmed := strings.TrimSpace(utterance)
	if m := openPattern.FindStringSubmatch(strings.ToLower(trimmed)); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return Command{Kind: domain.KindAppOpen, Name: name}
		}
	}
	return Command{Kind: domain.KindQuery, Text: trimmed}
}

// Launcher opens applications by name.
type Launcher interface {
	Resolve(ctx context.Context, name string) string
}

// Completer answers free-form questions.
type Completer interface {
	Complete(ctx context.Context, prompt string) string
}

// Notifier receives every reply. Notify must not block.
type Notifier interface {
	Notify(n domain.Notification)
}

// Router dispatches utterances. It holds no mutable state and is safe for
// concurrent use.
type Router struct {
	launcher  Launcher
	completer Completer
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Router. A nil notifier disables notifications.
func New(launcher Launcher, completer Completer, notifier Notifier, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		launcher:  launcher,
		completer: completer,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle classifies utterance, runs the matching action and returns the
// reply. The reply is handed to the notifier but never persisted.
func (r *Router) Handle(ctx context.Context, sessionID, utterance string) domain.Reply {
	start := r.now()
	cmd := Classify(utterance)

	var text string
	switch cmd.Kind {
	case domain.KindAppOpen:
		text = r.launcher.Resolve(ctx, cmd.Name)
	default:
		if cmd.Text == "" {
			text = completion.FallbackNotUnderstood
		} else {
			text = completion.Sanitize(r.completer.Complete(ctx, cmd.Text))
		}
	}

	reply := domain.Reply{Input: utterance, Text: text, Kind: cmd.Kind}

	if r.notifier != nil {
		r.notifier.Notify(domain.Notification{SessionID: sessionID, Text: text, At: r.now()})
	}

	r.logger.Info("Handled utterance",
		"session_id", sessionID,
		"kind", cmd.Kind,
		"duration_ms", r.now().Sub(start).Milliseconds(),
	)
	return reply
}

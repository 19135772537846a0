// Package completion adapts remote chat-completion services. Clients never
// return errors: every failure becomes a fixed user-facing fallback.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Fallback replies.
const (
	FallbackNotUnderstood = "I'm sorry, I couldn't understand that."
	FallbackUnavailable   = "Sorry, I couldn't connect to my knowledge system right now."
)

// Provider names accepted by New.
const (
	ProviderPerplexity = "perplexity"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
)

// DefaultTimeout bounds a single completion request.
const DefaultTimeout = 20 * time.Second

// Completer answers a single-turn prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) string
}

// Config holds completion client configuration.
type Config struct {
	Provider string
	URL      string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New builds the Completer for cfg.Provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Completer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch cfg.Provider {
	case ProviderPerplexity, ProviderOpenAI, "":
		return NewHTTPClient(cfg, logger), nil
	case ProviderGemini:
		c, err := NewGeminiClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}

// finish applies the shared post-processing: empty answers become the
// "not understood" fallback and everything else is sanitized.
func finish(text string) string {
	if strings.TrimSpace(text) == "" {
		return FallbackNotUnderstood
	}
	return Sanitize(text)
}

package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient answers prompts with the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiClient creates a Gemini-backed Completer. cfg.URL, when set,
// overrides the API base URL.
func NewGeminiClient(ctx context.Context, cfg Config, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an API key")
	}

	model := cfg.Model
	if model == "" || model == defaultModel {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.URL != "" && cfg.URL != defaultEndpoint {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.URL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Complete implements Completer.
func (g *GeminiClient) Complete(ctx context.Context, prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return FallbackNotUnderstood
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	elapsed := time.Since(start)
	if err != nil {
		g.logger.Error("Gemini generate content failed",
			"model", g.model,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return FallbackUnavailable
	}

	g.logger.Info("Completion finished", "model", g.model, "duration_ms", elapsed.Milliseconds())
	if res == nil {
		return FallbackNotUnderstood
	}
	return finish(res.Text())
}

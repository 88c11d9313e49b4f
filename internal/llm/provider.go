package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"taamsimcha-backend/internal/config"
)

// New builds the configured provider, wrapped with metrics. The returned
// closer releases provider resources and is never nil.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Completer, io.Closer, error) {
	var (
		c      Completer
		closer io.Closer = nopCloser{}
	)

	switch cfg.LLMProvider {
	case "openai":
		c = NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, &http.Client{}, logger)
	case "gemini":
		g, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		c, closer = g, g
	case "anthropic":
		c = NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}

	logger.Info("LLM provider ready", zap.String("provider", cfg.LLMProvider))
	return NewInstrumented(c, cfg.LLMProvider), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
)

// NewCompleter builds the configured provider wrapped in rate limiting and retries.
func NewCompleter(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Completer, error) {
	var base Completer
	switch cfg.Provider {
	case "anthropic", "":
		if cfg.APIKey == "" {
			return nil, eris.New("llm: anthropic provider requires llm.api_key")
		}
		base = NewAnthropicCompleter(cfg.APIKey, cfg.Model)
	case "openai":
		base = NewOpenAICompleter(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "vertex":
		if cfg.VertexProject == "" {
			return nil, eris.New("llm: vertex provider requires llm.vertex_project")
		}
		vc, err := NewVertexCompleter(ctx, cfg.VertexProject, cfg.VertexRegion, cfg.Model)
		if err != nil {
			return nil, err
		}
		base = vc
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}

	logger.Info("completion provider initialized", zap.String("provider", base.Name()))
	return NewLimited(base, cfg.RatePerSecond, cfg.RetryAttempts, logger), nil
}

// Package ai holds the inference backends the rule extractor and the
// remediator talk to.
package ai

import (
	"fmt"

	"rulegen-backend/internal/config"
	"rulegen-backend/internal/engine"
)

// New builds the configured Completer, wrapped in the rate limiter. It
// returns nil without error when the backend is not configured, so the
// service can still run its non-LLM endpoints.
func New(cfg config.LLMConfig) (engine.Completer, error) {
	var c engine.Completer
	switch cfg.Provider {
	case "", "openai":
		if p := NewProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout); p != nil {
			c = p
		}
	case "huggingface":
		if h := NewHuggingFace(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout); h != nil {
			c = h
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if c == nil {
		return nil, nil
	}
	return NewRateLimited(c, cfg.RequestsPerMinute), nil
}

package llm

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// New returns a Client for cfg. With no provider set it auto-detects by which
// API key is present in cfg or the environment. If nothing is configured, or
// the provider cannot be constructed, it returns a MockClient.
func New(ctx context.Context, cfg Config) Client {
	prov := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if prov == "" {
		switch {
		case keyFor(cfg, "OPENAI_API_KEY") != "":
			prov = "openai"
		case keyFor(cfg, "ANTHROPIC_API_KEY") != "":
			prov = "anthropic"
		case keyFor(cfg, "GOOGLE_API_KEY") != "":
			prov = "gemini"
		}
	}
	switch prov {
	case "openai":
		if key := keyFor(cfg, "OPENAI_API_KEY"); key != "" {
			return NewOpenAIClient(key, modelOr(cfg, "gpt-4o-mini"), cfg.BaseURL, cfg.Timeout)
		}
	case "anthropic":
		if key := keyFor(cfg, "ANTHROPIC_API_KEY"); key != "" {
			return NewAnthropicClient(key, modelOr(cfg, "claude-3-5-sonnet-latest"), cfg.BaseURL, cfg.Timeout)
		}
	case "gemini":
		if key := keyFor(cfg, "GOOGLE_API_KEY"); key != "" {
			c, err := NewGeminiClient(ctx, key, modelOr(cfg, "gemini-1.5-flash"))
			if err == nil {
				return c
			}
			slog.Warn("gemini client unavailable, using mock", "error", err)
		}
	}
	return &MockClient{}
}

func keyFor(cfg Config, env string) string {
	if k := strings.TrimSpace(cfg.APIKey); k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv(env))
}

func modelOr(cfg Config, def string) string {
	if m := strings.TrimSpace(cfg.Model); m != "" {
		return m
	}
	return def
}

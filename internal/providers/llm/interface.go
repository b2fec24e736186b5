package llm

import (
	"context"
	"time"
)

// Client is the minimal text-generation surface used by the planner and the
// prompt tool. Any provider implementation should satisfy this.
type Client interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Config selects and parameterises a provider.
type Config struct {
	Provider string // openai | anthropic | gemini | mock; empty auto-detects from keys
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

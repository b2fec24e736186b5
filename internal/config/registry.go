package config

import (
	"sort"
	"strings"

	"github.com/example/mediaflow/internal/providers/llm"
	"github.com/example/mediaflow/internal/tools"
)

// BuildRegistry creates one adapter per configured tool. client backs the
// builtin prompt tool.
func (c *Config) BuildRegistry(client llm.Client) *tools.Registry {
	reg := tools.NewRegistry()
	names := make([]string, 0, len(c.Tools))
	for name := range c.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tc := c.Tools[name]
		switch strings.ToLower(tc.Provider) {
		case "prediction":
			reg.Register(name, tools.NewPredictionAdapter(tools.PredictionConfig{
				Name:       name,
				BaseURL:    tc.BaseURL,
				APIKey:     tc.APIKey,
				SubmitPath: tc.SubmitPath,
				StatusPath: tc.StatusPath,
				CancelPath: tc.CancelPath,
				Timeout:    tc.RequestTimeout,
				RateLimit:  tc.RateLimit,
			}))
		case "builtin":
			switch name {
			case "document":
				reg.Register(name, tools.NewDocumentAdapter(0))
			case "prompt":
				reg.Register(name, &tools.PromptAdapter{Client: client})
			}
		default:
			reg.Register(name, &tools.MockAdapter{Tool: name, Delay: tc.MockDelay})
		}
	}
	return reg
}

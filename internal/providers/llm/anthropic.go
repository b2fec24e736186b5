package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type AnthropicClient struct {
	Model  string
	client *resty.Client
}

func NewAnthropicClient(apiKey, model, baseURL string, timeout time.Duration) *AnthropicClient {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	c := newHTTPClient(strings.TrimRight(baseURL, "/"), timeout).
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", "2023-06-01")
	return &AnthropicClient{Model: model, client: c}
}

func (c *AnthropicClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":      c.Model,
		"max_tokens": 2048,
		"messages": []map[string]any{{
			"role":    "user",
			"content": []map[string]string{{"type": "text", "text": prompt}},
		}},
	}
	var out struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	resp, err := c.client.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/v1/messages")
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("anthropic status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Content) == 0 {
		return "", errors.New("no content")
	}
	return out.Content[0].Text, nil
}

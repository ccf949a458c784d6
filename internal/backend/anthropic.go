package backend

import (
	"context"
	"net/http"
	"strings"

	"PersonaChat/internal/config"
	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/prompt"
)

const anthropicVersion = "2023-06-01"

// AnthropicRequest represents the request body for Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
}

// AnthropicMessage represents a message in the conversation
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicContent is one block of a response. Only "text" blocks carry output.
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents the response from Anthropic API
type AnthropicResponse struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Role         string                 `json:"role"`
	Content      []AnthropicContent     `json:"content"`
	Model        string                 `json:"model"`
	StopReason   string                 `json:"stop_reason"`
	StopSequence string                 `json:"stop_sequence"`
	Usage        map[string]interface{} `json:"usage"`
}

// Claude calls the Anthropic Messages API. The base and user instructions go
// to the native system field.
type Claude struct {
	opts Options
}

func NewClaude(opts Options) *Claude {
	return &Claude{opts: opts.withDefaults(
		"claude-3-5-sonnet-20241022",
		"https://api.anthropic.com",
		config.APIKeyEnv(config.ModelClaude),
	)}
}

func (c *Claude) Name() string { return config.ModelClaude }

// Request builds the Messages API body for p.
func (c *Claude) Request(p prompt.Composed) AnthropicRequest {
	system, user := p.SystemField(c.opts.Base)
	return AnthropicRequest{
		Model:     c.opts.Model,
		MaxTokens: MaxOutputTokens,
		System:    system,
		Messages:  []AnthropicMessage{{Role: "user", Content: user}},
	}
}

func (c *Claude) Complete(ctx context.Context, p prompt.Composed) (string, error) {
	return c.opts.Instruments.observe(ctx, "anthropic_api_call", c.Name(), func(ctx context.Context) (string, map[string]interface{}, error) {
		apiKey := c.opts.apiKey()
		if apiKey == "" {
			return "", nil, llmerr.New(llmerr.KindAuth, c.opts.APIKeyEnv+" not set")
		}

		header := http.Header{}
		header.Set("x-api-key", apiKey)
		header.Set("anthropic-version", anthropicVersion)

		var apiResp AnthropicResponse
		url := strings.TrimRight(c.opts.BaseURL, "/") + "/v1/messages"
		if err := postJSON(ctx, c.opts.HTTPClient, url, header, c.Request(p), &apiResp); err != nil {
			return "", nil, err
		}

		// Extract text response
		for _, content := range apiResp.Content {
			if content.Type == "text" && strings.TrimSpace(content.Text) != "" {
				return content.Text, apiResp.Usage, nil
			}
		}
		return "", apiResp.Usage, llmerr.New(llmerr.KindEmptyResponse, "empty response from Anthropic")
	})
}

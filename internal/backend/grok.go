package backend

import (
	"context"
	"net/http"
	"strings"

	"PersonaChat/internal/config"
	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/prompt"
)

// OpenAIRequest is the body of an OpenAI-compatible /chat/completions call.
type OpenAIRequest struct {
	Model     string              `json:"model"`
	Messages  []map[string]string `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

// OpenAIResponse is the reply of an OpenAI-compatible /chat/completions call.
type OpenAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]interface{} `json:"usage"`
}

// Grok calls xAI's OpenAI-compatible endpoint directly.
type Grok struct {
	opts Options
}

func NewGrok(opts Options) *Grok {
	return &Grok{opts: opts.withDefaults(
		"grok-2-latest",
		"https://api.x.ai",
		config.APIKeyEnv(config.ModelGrok),
	)}
}

func (g *Grok) Name() string { return config.ModelGrok }

func (g *Grok) Request(p prompt.Composed) OpenAIRequest {
	system, user := p.SystemField(g.opts.Base)
	return OpenAIRequest{
		Model: g.opts.Model,
		Messages: []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		MaxTokens: MaxOutputTokens,
	}
}

func (g *Grok) Complete(ctx context.Context, p prompt.Composed) (string, error) {
	return g.opts.Instruments.observe(ctx, "grok_api_call", g.Name(), func(ctx context.Context) (string, map[string]interface{}, error) {
		apiKey := g.opts.apiKey()
		if apiKey == "" {
			return "", nil, llmerr.New(llmerr.KindAuth, g.opts.APIKeyEnv+" not set")
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+apiKey)

		var apiResp OpenAIResponse
		url := strings.TrimRight(g.opts.BaseURL, "/") + "/v1/chat/completions"
		if err := postJSON(ctx, g.opts.HTTPClient, url, header, g.Request(p), &apiResp); err != nil {
			return "", nil, err
		}

		if len(apiResp.Choices) > 0 {
			return apiResp.Choices[0].Message.Content, apiResp.Usage, nil
		}
		return "", apiResp.Usage, llmerr.New(llmerr.KindEmptyResponse, "empty response from Grok")
	})
}

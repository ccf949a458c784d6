package backend

import (
	"context"
	"strings"

	"PersonaChat/internal/config"
	"PersonaChat/internal/prompt"
)

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  OllamaOptions       `json:"options"`
}

// OllamaOptions holds generation parameters; num_predict caps output tokens.
type OllamaOptions struct {
	NumPredict int `json:"num_predict"`
}

// OllamaResponse represents the response from Ollama API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount float64 `json:"prompt_eval_count"`
	EvalCount       float64 `json:"eval_count"`
}

// Ollama calls a local Ollama server. It needs no credential.
type Ollama struct {
	opts Options
}

func NewOllama(opts Options) *Ollama {
	return &Ollama{opts: opts.withDefaults("llama3:latest", "http://localhost:11434", "")}
}

func (o *Ollama) Name() string { return config.ModelOllama }

func (o *Ollama) Request(p prompt.Composed) OllamaRequest {
	system, user := p.SystemField(o.opts.Base)
	return OllamaRequest{
		Model: o.opts.Model,
		Messages: []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		Stream:  false,
		Options: OllamaOptions{NumPredict: MaxOutputTokens},
	}
}

func (o *Ollama) Complete(ctx context.Context, p prompt.Composed) (string, error) {
	return o.opts.Instruments.observe(ctx, "ollama_api_call", o.Name(), func(ctx context.Context) (string, map[string]interface{}, error) {
		var apiResp OllamaResponse
		url := strings.TrimRight(o.opts.BaseURL, "/") + "/api/chat"
		if err := postJSON(ctx, o.opts.HTTPClient, url, nil, o.Request(p), &apiResp); err != nil {
			return "", nil, err
		}
		usage := map[string]interface{}{
			"prompt_eval_count": apiResp.PromptEvalCount,
			"eval_count":        apiResp.EvalCount,
		}
		return apiResp.Message.Content, usage, nil
	})
}

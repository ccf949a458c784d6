package backend

import (
	"context"
	"errors"

	gptLib "github.com/sashabaranov/go-openai"

	"PersonaChat/internal/config"
	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/prompt"
)

// OpenAI calls the Chat Completions API through go-openai.
type OpenAI struct {
	opts Options
}

func NewOpenAI(opts Options) *OpenAI {
	return &OpenAI{opts: opts.withDefaults(
		"gpt-4o-mini",
		"https://api.openai.com/v1",
		config.APIKeyEnv(config.ModelOpenAI),
	)}
}

func (o *OpenAI) Name() string { return config.ModelOpenAI }

// Request converts p into go-openai's request, the system text as the first message.
func (o *OpenAI) Request(p prompt.Composed) gptLib.ChatCompletionRequest {
	system, user := p.SystemField(o.opts.Base)
	return gptLib.ChatCompletionRequest{
		Model:     o.opts.Model,
		MaxTokens: MaxOutputTokens,
		Messages: []gptLib.ChatCompletionMessage{
			{Role: gptLib.ChatMessageRoleSystem, Content: system},
			{Role: gptLib.ChatMessageRoleUser, Content: user},
		},
	}
}

func (o *OpenAI) Complete(ctx context.Context, p prompt.Composed) (string, error) {
	return o.opts.Instruments.observe(ctx, "openai_api_call", o.Name(), func(ctx context.Context) (string, map[string]interface{}, error) {
		apiKey := o.opts.apiKey()
		if apiKey == "" {
			return "", nil, llmerr.New(llmerr.KindAuth, o.opts.APIKeyEnv+" not set")
		}

		cfg := gptLib.DefaultConfig(apiKey)
		cfg.BaseURL = o.opts.BaseURL
		cfg.HTTPClient = o.opts.HTTPClient
		client := gptLib.NewClientWithConfig(cfg)

		resp, err := client.CreateChatCompletion(ctx, o.Request(p))
		if err != nil {
			return "", nil, classifyOpenAI(err)
		}

		usage := map[string]interface{}{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
		if len(resp.Choices) > 0 {
			return resp.Choices[0].Message.Content, usage, nil
		}
		return "", usage, llmerr.New(llmerr.KindEmptyResponse, "empty response from OpenAI")
	})
}

func classifyOpenAI(err error) error {
	var apiErr *gptLib.APIError
	if errors.As(err, &apiErr) {
		return llmerr.FromStatus(apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *gptLib.RequestError
	if errors.As(err, &reqErr) {
		return llmerr.FromStatus(reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llmerr.FromTransport("openai request did not complete", err)
	}
	// go-openai wraps dial and read failures without a status code
	return llmerr.FromTransport("openai request failed", err)
}

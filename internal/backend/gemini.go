package backend

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"PersonaChat/internal/config"
	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/prompt"
)

// Gemini calls the Gemini API through the genai SDK. It sends one flat prompt
// with base and user instructions folded in front of the user's text.
type Gemini struct {
	opts Options
}

func NewGemini(opts Options) *Gemini {
	return &Gemini{opts: opts.withDefaults(
		"gemini-1.5-flash",
		"",
		config.APIKeyEnv(config.ModelGemini),
	)}
}

func (g *Gemini) Name() string { return config.ModelGemini }

// Prompt returns the flat prompt sent for p.
func (g *Gemini) Prompt(p prompt.Composed) string {
	return p.Flat(g.opts.Base)
}

func (g *Gemini) Complete(ctx context.Context, p prompt.Composed) (string, error) {
	return g.opts.Instruments.observe(ctx, "gemini_api_call", g.Name(), func(ctx context.Context) (string, map[string]interface{}, error) {
		apiKey := g.opts.apiKey()
		if apiKey == "" {
			return "", nil, llmerr.New(llmerr.KindAuth, g.opts.APIKeyEnv+" not set")
		}

		cc := &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: g.opts.HTTPClient,
		}
		if g.opts.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.opts.BaseURL}
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return "", nil, llmerr.Wrap(llmerr.KindProvider, "creating Gemini client", err)
		}

		cfg := &genai.GenerateContentConfig{
			MaxOutputTokens: MaxOutputTokens,
		}
		res, err := client.Models.GenerateContent(ctx, g.opts.Model, genai.Text(g.Prompt(p)), cfg)
		if err != nil {
			return "", nil, classifyGemini(err)
		}

		var usage map[string]interface{}
		if md := res.UsageMetadata; md != nil {
			usage = map[string]interface{}{
				"prompt_tokens":     md.PromptTokenCount,
				"completion_tokens": md.CandidatesTokenCount,
				"total_tokens":      md.TotalTokenCount,
			}
		}
		return res.Text(), usage, nil
	})
}

func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llmerr.FromStatus(apiErr.Code, []byte(apiErr.Message))
	}
	return llmerr.FromTransport("gemini request failed", err)
}

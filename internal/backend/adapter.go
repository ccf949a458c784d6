package backend

import (
	"context"
	"net/http"
	"os"
	"time"

	"PersonaChat/internal/prompt"
)

// MaxOutputTokens caps every completion.
const MaxOutputTokens = 1024

// Adapter wraps one vendor's call convention behind a uniform contract.
// Complete returns non-empty text or an *llmerr.Error, never both.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, p prompt.Composed) (string, error)
}

// KeySource looks up a credential by environment variable name.
type KeySource func(name string) string

// Options configure an adapter. Zero values fall back to defaults.
type Options struct {
	Model       string // upstream model name
	BaseURL     string
	APIKeyEnv   string
	Keys        KeySource
	HTTPClient  *http.Client
	Base        string // base instruction layered beneath the user's
	Instruments Instruments
}

func (o Options) withDefaults(model, baseURL, keyEnv string) Options {
	if o.Model == "" {
		o.Model = model
	}
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = keyEnv
	}
	if o.Keys == nil {
		o.Keys = os.Getenv
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if o.Base == "" {
		o.Base = prompt.DefaultBaseInstruction
	}
	return o
}

// apiKey reads the credential at call time so a missing key only fails the
// provider that needs it.
func (o Options) apiKey() string {
	if o.APIKeyEnv == "" {
		return ""
	}
	return o.Keys(o.APIKeyEnv)
}

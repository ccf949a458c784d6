package backend

import (
	"sort"
	"strings"

	"PersonaChat/internal/config"
	"PersonaChat/internal/llmerr"
)

// Registry resolves adapters by model identifier.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	items   map[string]Adapter
	defName string
}

// NewRegistry indexes adapters by Name. defName is used when a caller names no model.
func NewRegistry(defName string, adapters ...Adapter) *Registry {
	items := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		items[NormalizeName(a.Name())] = a
	}
	return &Registry{items: items, defName: NormalizeName(defName)}
}

// NewDefaultRegistry builds every supported adapter from configuration.
func NewDefaultRegistry(cfg *config.Config, keys KeySource, in Instruments) *Registry {
	opts := func(name string) Options {
		p := cfg.Provider(name)
		return Options{
			Model:       p.Model,
			BaseURL:     p.BaseURL,
			Keys:        keys,
			Instruments: in,
		}
	}
	return NewRegistry(cfg.Chat.DefaultModel,
		NewClaude(opts(config.ModelClaude)),
		NewGemini(opts(config.ModelGemini)),
		NewOpenAI(opts(config.ModelOpenAI)),
		NewGrok(opts(config.ModelGrok)),
		NewOllama(opts(config.ModelOllama)),
	)
}

func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.items[NormalizeName(name)]
	return a, ok
}

// Resolve maps an absent model to the default and fails closed on anything unknown.
func (r *Registry) Resolve(name string) (Adapter, error) {
	key := name
	if NormalizeName(key) == "" {
		key = r.defName
	}
	if a, ok := r.Get(key); ok {
		return a, nil
	}
	return nil, llmerr.Validation("unsupported model: %q", name)
}

// Names returns the registered identifiers, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.items))
	for k := range r.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Default is the identifier used when none is given.
func (r *Registry) Default() string {
	return r.defName
}

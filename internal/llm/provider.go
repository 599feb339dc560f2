package llm

import (
	"context"
	"fmt"
)

// Provider is one configured generation backend. Implementations wrap a
// vendor SDK behind this single capability; the rest of the package never
// sees vendor types.
type Provider interface {
	// Name identifies the candidate in logs and error causes.
	Name() string
	// HasCredential reports whether the provider carries an API key.
	HasCredential() bool
	// Probe performs a minimal, time-bounded liveness call. It produces no
	// usable output; a probe failure moves the gateway to the next candidate.
	Probe(ctx context.Context) error
	// Generate turns a prompt into raw response text.
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderKind selects a Provider implementation.
type ProviderKind string

const (
	KindGemini ProviderKind = "gemini"
	KindOpenAI ProviderKind = "openai"
)

// Spec describes one candidate provider from configuration.
type Spec struct {
	Name    string       `mapstructure:"name"`
	Kind    ProviderKind `mapstructure:"kind"`
	Model   string       `mapstructure:"model"`
	APIKey  string       `mapstructure:"api_key"`
	BaseURL string       `mapstructure:"base_url"` // OpenAI-compatible endpoints only
}

// NewProvider builds the concrete provider for a spec.
func NewProvider(ctx context.Context, spec Spec) (Provider, error) {
	switch spec.Kind {
	case KindGemini:
		return newGeminiProvider(ctx, spec)
	case KindOpenAI:
		return newOpenAIProvider(spec), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", spec.Kind)
	}
}

// NewProviders builds the candidate list in preference order.
func NewProviders(ctx context.Context, specs []Spec) ([]Provider, error) {
	providers := make([]Provider, 0, len(specs))
	for _, spec := range specs {
		p, err := NewProvider(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", spec.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

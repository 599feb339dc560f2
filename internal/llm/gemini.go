package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// geminiProvider wraps the Gemini API.
type geminiProvider struct {
	client *genai.Client
	name   string
	model  string
	apiKey string
}

func newGeminiProvider(ctx context.Context, spec Spec) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  spec.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &geminiProvider{
		client: client,
		name:   spec.Name,
		model:  spec.Model,
		apiKey: spec.APIKey,
	}, nil
}

func (p *geminiProvider) Name() string { return p.name }

func (p *geminiProvider) HasCredential() bool { return p.apiKey != "" }

// Probe sends a one-token request. Quota, auth and model-not-found failures
// all surface here instead of mid-generation.
func (p *geminiProvider) Probe(ctx context.Context) error {
	_, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text("ping"),
		&genai.GenerateContentConfig{MaxOutputTokens: 1})
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.model, err)
	}
	return nil
}

func (p *geminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	raw := result.Text()
	if raw == "" {
		return "", fmt.Errorf("model %s returned empty response", p.model)
	}
	return raw, nil
}

package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openaiProvider wraps any OpenAI-compatible chat endpoint (OpenAI itself,
// Ollama, vLLM...) selected by base URL.
type openaiProvider struct {
	api    *openai.Client
	name   string
	model  string
	apiKey string
}

func newOpenAIProvider(spec Spec) *openaiProvider {
	config := openai.DefaultConfig(spec.APIKey)
	if spec.BaseURL != "" {
		config.BaseURL = spec.BaseURL
	}
	return &openaiProvider{
		api:    openai.NewClientWithConfig(config),
		name:   spec.Name,
		model:  spec.Model,
		apiKey: spec.APIKey,
	}
}

func (p *openaiProvider) Name() string { return p.name }

func (p *openaiProvider) HasCredential() bool { return p.apiKey != "" }

// Probe asks for a single token. Output is discarded; only reachability,
// auth and model availability matter.
func (p *openaiProvider) Probe(ctx context.Context) error {
	_, err := p.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.model, err)
	}
	return nil
}

func (p *openaiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", p.model)
	}
	return resp.Choices[0].Message.Content, nil
}

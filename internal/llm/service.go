package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mlaurent/examforge/internal/model"
)

// MinSourceChars is the smallest course text worth sending to a provider.
// Upload and scrape collaborators may hand back empty or near-empty text on
// failure; refusing here keeps that from burning a generation call.
const MinSourceChars = 50

// Service composes prompt building, provider fallback and response
// extraction into one operation: course text in, validated exam out.
type Service struct {
	gateway    *Gateway
	candidates []Provider
}

// NewService creates the generation service over a preference-ordered
// candidate list. The list is read-only configuration; it is never mutated
// during a call.
func NewService(gateway *Gateway, candidates []Provider) *Service {
	return &Service{gateway: gateway, candidates: candidates}
}

// Generate produces an exam from course text. Failures are typed and
// propagate unmodified: ErrInsufficientSource, ErrNoCredential (before any
// network attempt), *ExhaustedError, *MalformedError.
func (s *Service) Generate(ctx context.Context, sourceText string, questionCount int) (model.Exam, error) {
	if len(strings.TrimSpace(sourceText)) < MinSourceChars {
		return nil, ErrInsufficientSource
	}
	if !s.hasCredential() {
		return nil, ErrNoCredential
	}

	prompt := BuildPrompt(sourceText, questionCount)

	rawText, provider, err := s.gateway.Generate(ctx, prompt, s.candidates)
	if err != nil {
		return nil, err
	}

	exam, err := ExtractExam(provider, rawText)
	if err != nil {
		return nil, err
	}
	slog.Info("exam generated", "provider", provider, "requested", questionCount, "got", len(exam))
	return exam, nil
}

func (s *Service) hasCredential() bool {
	for _, p := range s.candidates {
		if p.HasCredential() {
			return true
		}
	}
	return false
}

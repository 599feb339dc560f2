package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// probeTimeout bounds the liveness probe. It is short and fixed; a provider
// that cannot answer a one-token request in this window is skipped.
const probeTimeout = 5 * time.Second

// DefaultGenerateTimeout bounds the full generation call unless overridden
// by configuration. Generation legitimately takes far longer than a probe.
const DefaultGenerateTimeout = 2 * time.Minute

// Gateway turns a prompt into raw response text using the first usable
// provider from a preference-ordered candidate list.
type Gateway struct {
	generateTimeout time.Duration
	notify          func(provider string)
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGenerateTimeout overrides the full-call timeout.
func WithGenerateTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.generateTimeout = d
		}
	}
}

// WithNotify installs an observer called with the selected provider's name
// once its probe passes. Observability only; it must not block and its
// absence changes nothing.
func WithNotify(fn func(provider string)) GatewayOption {
	return func(g *Gateway) { g.notify = fn }
}

// NewGateway creates a gateway.
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{
		generateTimeout: DefaultGenerateTimeout,
		notify: func(provider string) {
			slog.Info("provider selected", "provider", provider)
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate iterates candidates strictly in order: probe, then commit to the
// full call. A failed probe or a failed call records a cause and moves on
// without surfacing anything to the caller. Only when every candidate has
// failed does the aggregated ExhaustedError come back. Candidates are never
// tried concurrently: speculative calls to paid providers waste quota on
// candidates that may not be needed.
//
// The returned provider name tags any downstream parse failure.
func (g *Gateway) Generate(ctx context.Context, prompt string, candidates []Provider) (rawText, provider string, err error) {
	var attempts []Attempt
	for _, p := range candidates {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		probeErr := p.Probe(probeCtx)
		cancel()
		if probeErr != nil {
			slog.Debug("provider probe failed, trying next", "provider", p.Name(), "error", probeErr)
			attempts = append(attempts, Attempt{Provider: p.Name(), Err: probeErr})
			continue
		}

		if g.notify != nil {
			g.notify(p.Name())
		}

		genCtx, cancel := context.WithTimeout(ctx, g.generateTimeout)
		raw, genErr := p.Generate(genCtx, prompt)
		cancel()
		if genErr != nil {
			slog.Warn("provider generation failed", "provider", p.Name(), "error", genErr)
			attempts = append(attempts, Attempt{Provider: p.Name(), Err: fmt.Errorf("generate: %w", genErr)})
			continue
		}
		return raw, p.Name(), nil
	}
	return "", "", &ExhaustedError{Attempts: attempts}
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/metrics"
)

// GatewayConfig controls how prompts are issued to the backend.
type GatewayConfig struct {
	Model         string        // empty uses the provider default
	MaxAttempts   int           // parse attempts per call (default: 3)
	Timeout       time.Duration // per backend call (default: 120s)
	HealthTimeout time.Duration // liveness probe (default: 5s)
	Temperature   float64       // default: 0.7
	MaxTokens     int           // default: 2048
}

// DefaultGatewayConfig returns the defaults used when config leaves values unset.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MaxAttempts:   3,
		Timeout:       120 * time.Second,
		HealthTimeout: 5 * time.Second,
		Temperature:   0.7,
		MaxTokens:     2048,
	}
}

// Gateway sends a prompt to a structured-output backend and returns the
// parsed JSON object. Transport failures fail the call at once. Content that
// does not parse is retried with an escalating directive.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	policy   RetryPolicy
	metrics  *metrics.Metrics
}

// NewGateway creates a gateway over provider. m may be nil.
func NewGateway(provider Provider, cfg GatewayConfig, m *metrics.Metrics) *Gateway {
	def := DefaultGatewayConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = def.HealthTimeout
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	return &Gateway{
		provider: provider,
		cfg:      cfg,
		metrics:  m,
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Escalate:    AppendDirective(StrictJSONDirective),
			Retryable: func(err error) bool {
				return !errors.Is(err, domain.ErrConnection)
			},
		},
	}
}

// Name returns the backing provider's name.
func (g *Gateway) Name() string {
	return g.provider.Name()
}

// Issue sends prompt and returns the backend's JSON object.
//
// Errors are *domain.ConnectionError when the backend is unreachable, answers
// with an error status, or the call times out, and *domain.MalformedOutputError
// when no attempt produced a JSON object.
func (g *Gateway) Issue(ctx context.Context, prompt string) (json.RawMessage, error) {
	start := time.Now()

	raw, attempts, err := Attempt(ctx, g.policy, prompt, func(ctx context.Context, p string) (json.RawMessage, error) {
		content, err := g.complete(ctx, p)
		if err != nil {
			return nil, err
		}
		raw, perr := parseObject(content)
		if perr != nil {
			slog.Warn("backend returned unparseable content",
				"provider", g.provider.Name(),
				"error", perr,
				"content_length", len(content),
			)
			return nil, perr
		}
		return raw, nil
	})

	elapsed := time.Since(start).Seconds()
	switch {
	case err == nil:
		g.metrics.GatewayCall(g.provider.Name(), metrics.OutcomeOK, attempts, elapsed)
		return raw, nil

	case errors.Is(err, domain.ErrConnection):
		g.metrics.GatewayCall(g.provider.Name(), metrics.OutcomeConnection, attempts, elapsed)
		return nil, err

	case ctx.Err() != nil:
		g.metrics.GatewayCall(g.provider.Name(), metrics.OutcomeConnection, attempts, elapsed)
		return nil, &domain.ConnectionError{Backend: g.provider.Name(), Err: ctx.Err()}

	default:
		g.metrics.GatewayCall(g.provider.Name(), metrics.OutcomeMalformed, attempts, elapsed)
		slog.Error("backend output malformed after retries",
			"provider", g.provider.Name(),
			"attempts", attempts,
			"error", err,
		)
		return nil, &domain.MalformedOutputError{Attempts: attempts, Err: err}
	}
}

// complete performs one bounded backend call. Every failure here is a
// connection failure.
func (g *Gateway) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.provider.Generate(ctx, &Request{
		Model:       g.cfg.Model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Format:      FormatJSON,
	})
	if err != nil {
		return "", &domain.ConnectionError{Backend: g.provider.Name(), Err: err}
	}
	return resp.Content, nil
}

// IsAvailable reports whether the backend answers its liveness endpoint
// within the health timeout. It never fails.
func (g *Gateway) IsAvailable(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("liveness probe panicked", "provider", g.provider.Name(), "panic", r)
			ok = false
		}
	}()

	hc, isChecker := g.provider.(HealthChecker)
	if !isChecker {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.HealthTimeout)
	defer cancel()

	if err := hc.Ping(ctx); err != nil {
		slog.Debug("backend not available", "provider", g.provider.Name(), "error", err)
		return false
	}
	return true
}

// parseObject accepts content only if it is a single JSON object.
func parseObject(content string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(content))
	if len(trimmed) == 0 {
		return nil, errors.New("empty content")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("parse content as JSON object: %w", err)
	}
	if obj == nil {
		return nil, errors.New("content is JSON null, want object")
	}
	return json.RawMessage(trimmed), nil
}

package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/llm"
	"github.com/felixgeelhaar/sensei/internal/metrics"
)

// Issuer sends a prompt to the inference backend and returns the parsed JSON
// object. *llm.Gateway implements it.
type Issuer interface {
	Issue(ctx context.Context, prompt string) (json.RawMessage, error)
}

var _ Issuer = (*llm.Gateway)(nil)

// shapeRetry allows one corrective retry after a shape violation. Gateway
// failures are never retried here; the gateway has its own budget.
var shapeRetry = llm.RetryPolicy{
	MaxAttempts: 2,
	Escalate:    llm.AppendDirective(ShapeDirective),
	Retryable: func(err error) bool {
		return errors.Is(err, domain.ErrValidation)
	},
}

// issueValidated issues prompt and validates the result, re-issuing once
// with ShapeDirective appended if validation fails.
func issueValidated[T any](ctx context.Context, issuer Issuer, m *metrics.Metrics, shape, prompt string, validate func(json.RawMessage) (T, error)) (T, error) {
	out, attempts, err := llm.Attempt(ctx, shapeRetry, prompt, func(ctx context.Context, p string) (T, error) {
		var zero T
		raw, err := issuer.Issue(ctx, p)
		if err != nil {
			return zero, err
		}
		v, err := validate(raw)
		if err != nil {
			m.ValidationFailure(shape)
			slog.Warn("backend output failed validation", "shape", shape, "error", err)
			return zero, err
		}
		return v, nil
	})
	if err != nil && errors.Is(err, domain.ErrValidation) {
		slog.Error("backend output invalid after corrective retry", "shape", shape, "attempts", attempts, "error", err)
	}
	return out, err
}

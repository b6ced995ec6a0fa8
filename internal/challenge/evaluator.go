package challenge

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/metrics"
)

// EvaluateRequest is one answer to grade against its challenge.
type EvaluateRequest struct {
	Title         string
	Description   string
	IdealSolution string
	UserAnswer    string
}

// Evaluator grades answers through the inference backend.
type Evaluator struct {
	issuer  Issuer
	metrics *metrics.Metrics
}

// NewEvaluator creates an evaluator. m may be nil.
func NewEvaluator(issuer Issuer, m *metrics.Metrics) *Evaluator {
	return &Evaluator{issuer: issuer, metrics: m}
}

// Evaluate scores req.UserAnswer. The returned XPAwarded is the backend's
// suggestion and is not used for progression.
func (e *Evaluator) Evaluate(ctx context.Context, req EvaluateRequest) (*domain.EvaluationResult, error) {
	if strings.TrimSpace(req.UserAnswer) == "" {
		return nil, domain.NewInvalidInput("answer", "must not be empty")
	}

	prompt := evaluationPrompt{
		Title:         req.Title,
		Description:   req.Description,
		IdealSolution: req.IdealSolution,
		UserAnswer:    req.UserAnswer,
	}.String()

	result, err := issueValidated(ctx, e.issuer, e.metrics, ShapeEvaluation, prompt, ValidateEvaluation)
	if err != nil {
		return nil, fmt.Errorf("evaluate answer: %w", err)
	}
	return result, nil
}

package llm

import (
	"context"
)

// StrictJSONDirective is appended to a prompt after the backend returned
// content that did not parse.
const StrictJSONDirective = "IMPORTANT: You MUST return ONLY valid JSON. No explanations, no markdown, no text outside the JSON object. Start with { and end with }."

// RetryPolicy is a bounded retry over a prompt. Before every attempt after the
// first, Escalate derives the next prompt from the previous one, so each retry
// is stricter than the last.
type RetryPolicy struct {
	MaxAttempts int

	// Escalate returns the prompt for the given 1-based attempt (> 1) from the
	// prompt sent on the attempt before it. A nil Escalate resends the prompt
	// unchanged.
	Escalate func(prompt string, attempt int, lastErr error) string

	// Retryable reports whether a failed attempt may be retried. A nil
	// Retryable retries every error.
	Retryable func(err error) bool
}

// AppendDirective returns an Escalate func that appends directive to the
// previous prompt. The directive repeats once per retry.
func AppendDirective(directive string) func(string, int, error) string {
	return func(prompt string, _ int, _ error) string {
		return prompt + "\n\n" + directive
	}
}

// Attempt runs op under the policy. It returns the number of attempts made
// and, on failure, the last error. A context that is already done stops the
// loop before the next attempt.
func Attempt[T any](ctx context.Context, p RetryPolicy, prompt string, op func(ctx context.Context, prompt string) (T, error)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		zero    T
		lastErr error
	)
	current := prompt
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := ctx.Err(); err != nil {
				return zero, attempt - 1, err
			}
			if p.Escalate != nil {
				current = p.Escalate(current, attempt, lastErr)
			}
		}

		out, err := op(ctx, current)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, attempt, err
		}
	}
	return zero, maxAttempts, lastErr
}

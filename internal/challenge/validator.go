package challenge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/felixgeelhaar/sensei/internal/domain"
)

// Shapes named in validation errors
const (
	ShapeChallenge  = "challenge"
	ShapeEvaluation = "evaluation"
)

// Wire forms use pointers so a missing field can be told apart from a zero
// value. Integer fields decode as float64 so that 3.0 reads as 3.

type challengeWire struct {
	Title            *string         `json:"title"`
	Description      *string         `json:"description"`
	Hints            *[]string       `json:"hints"`
	Solution         *string         `json:"solution"`
	TestCases        *[]testCaseWire `json:"test_cases"`
	TopicsCovered    *[]string       `json:"topics_covered"`
	Topics           *[]string       `json:"topics"`
	Difficulty       *float64        `json:"difficulty"`
	EstimatedMinutes *float64        `json:"estimated_minutes"`
}

type testCaseWire struct {
	Input    *string `json:"input"`
	Expected *string `json:"expected"`
}

type evaluationWire struct {
	CorrectnessPct *float64  `json:"correctness_pct"`
	Feedback       *string   `json:"feedback"`
	Strengths      *[]string `json:"strengths"`
	Improvements   *[]string `json:"improvements"`
	XPAwarded      *float64  `json:"xp_awarded"`
}

// violations accumulates every problem found in one document. mistyped
// holds the field whose JSON type was wrong; its value is not checked further.
type violations struct {
	list     []string
	mistyped string
}

func (v *violations) add(format string, args ...any) {
	v.list = append(v.list, fmt.Sprintf(format, args...))
}

func (v *violations) err(shape string) error {
	if len(v.list) == 0 {
		return nil
	}
	return &domain.ValidationError{Shape: shape, Violations: v.list}
}

// decode unmarshals raw into dst. A type mismatch is recorded as a violation;
// encoding/json still fills every field it can.
func decode(raw json.RawMessage, dst any, v *violations) bool {
	err := json.Unmarshal(raw, dst)
	if err == nil {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		v.add("field %q has type %s, want %s", typeErr.Field, typeErr.Value, typeErr.Type)
		v.mistyped = typeErr.Field
		return true
	}
	v.add("not a JSON object: %v", err)
	return false
}

// wholeNumber reads an integer field. Integral floats such as 3.0 are accepted.
func wholeNumber(v *violations, field string, n *float64) (int, bool) {
	if field == v.mistyped {
		return 0, false
	}
	if n == nil {
		v.add("%s is required", field)
		return 0, false
	}
	if *n != math.Trunc(*n) || math.Abs(*n) > math.MaxInt32 {
		v.add("%s must be a whole number, got %g", field, *n)
		return 0, false
	}
	return int(*n), true
}

func requireRange(v *violations, field string, n *float64, lo, hi int) int {
	i, ok := wholeNumber(v, field, n)
	if !ok {
		return 0
	}
	if i < lo || i > hi {
		v.add("%s must be in [%d,%d], got %d", field, lo, hi, i)
		return 0
	}
	return i
}

func requireText(v *violations, field string, s *string) string {
	if s == nil {
		v.add("%s is required", field)
		return ""
	}
	if strings.TrimSpace(*s) == "" {
		v.add("%s must not be empty", field)
	}
	return *s
}

// ValidateChallenge checks raw against the generated-challenge shape and
// returns the decoded content. Identity fields (ID, Subject, Type, CreatedAt)
// are left for the caller to set.
func ValidateChallenge(raw json.RawMessage) (*domain.ChallengeSpec, error) {
	var (
		w challengeWire
		v violations
	)
	if !decode(raw, &w, &v) {
		return nil, v.err(ShapeChallenge)
	}

	spec := &domain.ChallengeSpec{
		Title:       requireText(&v, "title", w.Title),
		Description: requireText(&v, "description", w.Description),
		Solution:    requireText(&v, "solution", w.Solution),
	}

	switch {
	case w.Hints == nil:
		v.add("hints is required")
	case len(*w.Hints) != domain.HintCount:
		v.add("hints must have exactly %d entries, got %d", domain.HintCount, len(*w.Hints))
	default:
		for i, h := range *w.Hints {
			if strings.TrimSpace(h) == "" {
				v.add("hints[%d] must not be empty", i)
			}
		}
		spec.Hints = append([]string(nil), (*w.Hints)...)
	}

	spec.Difficulty = requireRange(&v, "difficulty", w.Difficulty, domain.MinDifficulty, domain.MaxDifficulty)
	spec.EstimatedMinutes = requireRange(&v, "estimated_minutes", w.EstimatedMinutes, domain.MinEstimatedMinutes, domain.MaxEstimatedMinutes)

	spec.TestCases = []domain.TestCase{}
	if w.TestCases != nil {
		for i, tc := range *w.TestCases {
			if tc.Input == nil || tc.Expected == nil {
				v.add("test_cases[%d] needs input and expected", i)
				continue
			}
			spec.TestCases = append(spec.TestCases, domain.TestCase{Input: *tc.Input, Expected: *tc.Expected})
		}
	}

	topics := w.TopicsCovered
	if topics == nil {
		topics = w.Topics
	}
	spec.Topics = []string{}
	if topics != nil {
		for _, t := range *topics {
			if t = strings.TrimSpace(t); t != "" {
				spec.Topics = append(spec.Topics, t)
			}
		}
	}

	if err := v.err(ShapeChallenge); err != nil {
		return nil, err
	}
	return spec, nil
}

// ValidateEvaluation checks raw against the evaluation-result shape.
func ValidateEvaluation(raw json.RawMessage) (*domain.EvaluationResult, error) {
	var (
		w evaluationWire
		v violations
	)
	if !decode(raw, &w, &v) {
		return nil, v.err(ShapeEvaluation)
	}

	result := &domain.EvaluationResult{
		Feedback: requireText(&v, "feedback", w.Feedback),
	}

	result.CorrectnessPct = requireRange(&v, "correctness_pct", w.CorrectnessPct, 0, 100)
	if xp, ok := wholeNumber(&v, "xp_awarded", w.XPAwarded); ok {
		if xp < 0 {
			v.add("xp_awarded must be >= 0, got %d", xp)
		}
		result.XPAwarded = xp
	}

	result.Strengths = requireList(&v, "strengths", w.Strengths)
	result.Improvements = requireList(&v, "improvements", w.Improvements)

	if err := v.err(ShapeEvaluation); err != nil {
		return nil, err
	}
	return result, nil
}

func requireList(v *violations, field string, list *[]string) []string {
	if list == nil {
		v.add("%s is required", field)
		return nil
	}
	var out []string
	for _, s := range *list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		v.add("%s must not be empty", field)
	}
	return out
}

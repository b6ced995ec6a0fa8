package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChallengeType is the format of a generated exercise.
type ChallengeType string

const (
	ChallengeCode       ChallengeType = "code"
	ChallengeQuiz       ChallengeType = "quiz"
	ChallengeBugHunt    ChallengeType = "bughunt"
	ChallengeDesign     ChallengeType = "design"
	ChallengeSpeedRound ChallengeType = "speedround"
)

// ChallengeTypes is the fixed set of challenge formats, in catalog order.
var ChallengeTypes = []ChallengeType{
	ChallengeCode,
	ChallengeQuiz,
	ChallengeBugHunt,
	ChallengeDesign,
	ChallengeSpeedRound,
}

// Valid reports whether t is one of the known challenge types.
func (t ChallengeType) Valid() bool {
	for _, known := range ChallengeTypes {
		if t == known {
			return true
		}
	}
	return false
}

const (
	// HintCount is the number of progressive hints every challenge carries.
	HintCount = 3

	MinDifficulty = 1
	MaxDifficulty = 5

	MinEstimatedMinutes = 5
	MaxEstimatedMinutes = 30

	// CorrectThreshold is the correctness percentage at which a submission
	// counts as correct.
	CorrectThreshold = 70
)

// IsCorrect classifies a correctness percentage.
func IsCorrect(correctnessPct int) bool {
	return correctnessPct >= CorrectThreshold
}

// EstimatedMinutes is the time budget the generator asks for at a difficulty.
func EstimatedMinutes(difficulty int) int {
	return 5 + 2*difficulty
}

// TestCase is a concrete input/output pair for code challenges.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// ChallengeSpec is a generated exercise. It is immutable once created.
type ChallengeSpec struct {
	ID               uuid.UUID     `json:"id"`
	Subject          string        `json:"subject"`
	Type             ChallengeType `json:"type"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Hints            []string      `json:"hints"`
	Solution         string        `json:"solution"`
	TestCases        []TestCase    `json:"test_cases"`
	Topics           []string      `json:"topics"`
	Difficulty       int           `json:"difficulty"`
	EstimatedMinutes int           `json:"estimated_minutes"`
	CreatedAt        time.Time     `json:"created_at"`
}

// EvaluationResult is the scored verdict on one answer. XPAwarded is the
// backend's suggestion only; awarded XP comes from the progression calculator.
type EvaluationResult struct {
	CorrectnessPct int      `json:"correctness_pct"`
	Feedback       string   `json:"feedback"`
	Strengths      []string `json:"strengths"`
	Improvements   []string `json:"improvements"`
	XPAwarded      int      `json:"xp_awarded"`
}

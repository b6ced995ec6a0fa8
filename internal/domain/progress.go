package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProgressState is a user's standing in one subject. Level always equals the
// level derived from XP.
type ProgressState struct {
	UserID              string    `json:"user_id"`
	Subject             string    `json:"subject"`
	Level               int       `json:"level"`
	XP                  int       `json:"xp"`
	ChallengesCompleted int       `json:"challenges_completed"`
	ChallengesCorrect   int       `json:"challenges_correct"`
	Version             int64     `json:"version"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewProgressState returns the lazily-created starting state for a key.
// Version 0 means the row has never been stored.
func NewProgressState(userID, subject string) *ProgressState {
	return &ProgressState{
		UserID:  userID,
		Subject: subject,
		Level:   1,
	}
}

// Accuracy returns the percentage of correct submissions rounded to one decimal.
func (p *ProgressState) Accuracy() float64 {
	if p.ChallengesCompleted == 0 {
		return 0
	}
	pct := float64(p.ChallengesCorrect) / float64(p.ChallengesCompleted) * 100
	return float64(int(pct*10+0.5)) / 10
}

// StreakState tracks consecutive days of activity for a user.
type StreakState struct {
	UserID           string    `json:"user_id"`
	CurrentStreak    int       `json:"current_streak"`
	LongestStreak    int       `json:"longest_streak"`
	LastActivityDate time.Time `json:"last_activity_date"`
	Version          int64     `json:"version"`
}

// OutcomeRecord is the slice of a past submission the difficulty controller reads.
type OutcomeRecord struct {
	IsCorrect  bool `json:"is_correct"`
	Difficulty int  `json:"difficulty"`
}

// Submission is the stored record of one evaluated answer.
type Submission struct {
	ID               uuid.UUID     `json:"id"`
	UserID           string        `json:"user_id"`
	Subject          string        `json:"subject"`
	ChallengeID      uuid.UUID     `json:"challenge_id"`
	ChallengeTitle   string        `json:"challenge_title"`
	ChallengeType    ChallengeType `json:"challenge_type"`
	Difficulty       int           `json:"difficulty"`
	Topics           []string      `json:"topics"`
	Answer           string        `json:"answer"`
	IsCorrect        bool          `json:"is_correct"`
	CorrectnessPct   int           `json:"correctness_pct"`
	XPEarned         int           `json:"xp_earned"`
	HintsUsed        int           `json:"hints_used"`
	TimeTakenSeconds int           `json:"time_taken_seconds"`
	CompletedAt      time.Time     `json:"completed_at"`
}

// Outcome projects a submission onto the difficulty controller's input.
func (s *Submission) Outcome() OutcomeRecord {
	return OutcomeRecord{IsCorrect: s.IsCorrect, Difficulty: s.Difficulty}
}

// CivilDate truncates t to midnight UTC of its calendar date in loc. Two
// civil dates differ by an exact multiple of 24h.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of days from a to b for civil dates.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

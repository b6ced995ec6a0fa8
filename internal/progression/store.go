package progression

import (
	"context"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
)

// ProgressStore persists per-subject progress. Get returns domain.ErrNotFound
// for a key that was never saved. Save is a compare-and-swap on Version: a
// state with Version 0 must not exist yet, any other Version must match the
// stored one. On success Save increments state.Version; on mismatch it
// returns domain.ErrVersionConflict.
type ProgressStore interface {
	GetProgress(ctx context.Context, userID, subject string) (*domain.ProgressState, error)
	SaveProgress(ctx context.Context, state *domain.ProgressState) error
	ListProgress(ctx context.Context, userID string) ([]*domain.ProgressState, error)
}

// StreakStore persists streaks with the same compare-and-swap contract as
// ProgressStore.
type StreakStore interface {
	GetStreak(ctx context.Context, userID string) (*domain.StreakState, error)
	SaveStreak(ctx context.Context, state *domain.StreakState) error
}

// HistoryStore records submissions and answers queries over them.
type HistoryStore interface {
	RecordSubmission(ctx context.Context, sub *domain.Submission) error

	// RecentOutcomes returns at most limit outcomes, newest first.
	RecentOutcomes(ctx context.Context, userID, subject string, limit int) ([]domain.OutcomeRecord, error)

	// ListSubmissions pages through a user's submissions, newest first.
	ListSubmissions(ctx context.Context, userID string, offset, limit int) ([]*domain.Submission, error)
	CountSubmissions(ctx context.Context, userID string) (int, error)

	// SubmissionsSince returns submissions completed at or after since, oldest first.
	SubmissionsSince(ctx context.Context, userID string, since time.Time) ([]*domain.Submission, error)

	// IncorrectTopics returns the topics of every incorrect submission in a
	// subject, one entry per occurrence.
	IncorrectTopics(ctx context.Context, userID, subject string) ([]string, error)
}

// Commit is the state change produced by one applied submission.
type Commit struct {
	Progress   *domain.ProgressState
	Streak     *domain.StreakState
	Submission *domain.Submission
}

// Store is the full persistence port for progression. CommitSubmission saves
// progress and streak (both compare-and-swap) and records the submission as
// one unit: either all three are stored or none is.
type Store interface {
	ProgressStore
	StreakStore
	HistoryStore
	CommitSubmission(ctx context.Context, c *Commit) error
	Ping(ctx context.Context) error
	Close() error
}

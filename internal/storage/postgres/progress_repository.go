package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ progression.Store = (*ProgressRepository)(nil)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProgressRepository implements progression.Store on a pgx pool.
type ProgressRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewProgressRepository creates a repository over a migrated database.
func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool, now: time.Now}
}

// Ping checks database connectivity.
func (r *ProgressRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the pool.
func (r *ProgressRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetProgress loads progress for a user and subject.
func (r *ProgressRepository) GetProgress(ctx context.Context, userID, subject string) (*domain.ProgressState, error) {
	p := &domain.ProgressState{UserID: userID, Subject: subject}
	err := r.pool.QueryRow(ctx, `
		SELECT level, xp, challenges_completed, challenges_correct, version, updated_at
		FROM progress WHERE user_id = $1 AND subject = $2`,
		userID, subject,
	).Scan(&p.Level, &p.XP, &p.ChallengesCompleted, &p.ChallengesCorrect, &p.Version, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

// SaveProgress inserts or updates progress with a version check.
func (r *ProgressRepository) SaveProgress(ctx context.Context, state *domain.ProgressState) error {
	now := r.now().UTC()
	if err := saveProgress(ctx, r.pool, state, now); err != nil {
		return err
	}
	state.Version++
	state.UpdatedAt = now
	return nil
}

func saveProgress(ctx context.Context, q querier, p *domain.ProgressState, now time.Time) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if p.Version == 0 {
		tag, err = q.Exec(ctx, `
			INSERT INTO progress (user_id, subject, level, xp, challenges_completed,
				challenges_correct, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
			ON CONFLICT (user_id, subject) DO NOTHING`,
			p.UserID, p.Subject, p.Level, p.XP, p.ChallengesCompleted, p.ChallengesCorrect, now,
		)
	} else {
		tag, err = q.Exec(ctx, `
			UPDATE progress SET level = $1, xp = $2, challenges_completed = $3,
				challenges_correct = $4, version = version + 1, updated_at = $5
			WHERE user_id = $6 AND subject = $7 AND version = $8`,
			p.Level, p.XP, p.ChallengesCompleted, p.ChallengesCorrect, now,
			p.UserID, p.Subject, p.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// ListProgress returns every subject a user has progress in.
func (r *ProgressRepository) ListProgress(ctx context.Context, userID string) ([]*domain.ProgressState, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT subject, level, xp, challenges_completed, challenges_correct, version, updated_at
		FROM progress WHERE user_id = $1 ORDER BY subject`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []*domain.ProgressState
	for rows.Next() {
		p := &domain.ProgressState{UserID: userID}
		if err := rows.Scan(&p.Subject, &p.Level, &p.XP, &p.ChallengesCompleted, &p.ChallengesCorrect, &p.Version, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetStreak loads a user's streak.
func (r *ProgressRepository) GetStreak(ctx context.Context, userID string) (*domain.StreakState, error) {
	st := &domain.StreakState{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		SELECT current_streak, longest_streak, last_activity_date, version
		FROM streaks WHERE user_id = $1`,
		userID,
	).Scan(&st.CurrentStreak, &st.LongestStreak, &st.LastActivityDate, &st.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	st.LastActivityDate = st.LastActivityDate.UTC()
	return st, nil
}

// SaveStreak inserts or updates a streak with a version check.
func (r *ProgressRepository) SaveStreak(ctx context.Context, state *domain.StreakState) error {
	if err := saveStreak(ctx, r.pool, state); err != nil {
		return err
	}
	state.Version++
	return nil
}

func saveStreak(ctx context.Context, q querier, st *domain.StreakState) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if st.Version == 0 {
		tag, err = q.Exec(ctx, `
			INSERT INTO streaks (user_id, current_streak, longest_streak, last_activity_date, version)
			VALUES ($1, $2, $3, $4, 1)
			ON CONFLICT (user_id) DO NOTHING`,
			st.UserID, st.CurrentStreak, st.LongestStreak, st.LastActivityDate,
		)
	} else {
		tag, err = q.Exec(ctx, `
			UPDATE streaks SET current_streak = $1, longest_streak = $2,
				last_activity_date = $3, version = version + 1
			WHERE user_id = $4 AND version = $5`,
			st.CurrentStreak, st.LongestStreak, st.LastActivityDate, st.UserID, st.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// CommitSubmission writes progress, streak and submission in one transaction.
func (r *ProgressRepository) CommitSubmission(ctx context.Context, c *progression.Commit) error {
	now := r.now().UTC()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := saveProgress(ctx, tx, c.Progress, now); err != nil {
			return err
		}
		if err := saveStreak(ctx, tx, c.Streak); err != nil {
			return err
		}
		return insertSubmission(ctx, tx, c.Submission)
	})
	if err != nil {
		return err
	}

	c.Progress.Version++
	c.Progress.UpdatedAt = now
	c.Streak.Version++
	return nil
}

const submissionColumns = `id, user_id, subject, challenge_id, challenge_title, challenge_type,
	difficulty, topics, answer, is_correct, correctness_pct, xp_earned, hints_used,
	time_taken_seconds, completed_at`

// RecordSubmission stores one submission.
func (r *ProgressRepository) RecordSubmission(ctx context.Context, sub *domain.Submission) error {
	return insertSubmission(ctx, r.pool, sub)
}

func insertSubmission(ctx context.Context, q querier, sub *domain.Submission) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	topics := sub.Topics
	if topics == nil {
		topics = []string{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		sub.ID, sub.UserID, sub.Subject, sub.ChallengeID, sub.ChallengeTitle,
		string(sub.ChallengeType), sub.Difficulty, topics, sub.Answer, sub.IsCorrect,
		sub.CorrectnessPct, sub.XPEarned, sub.HintsUsed, sub.TimeTakenSeconds, sub.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// RecentOutcomes returns the newest outcomes in a subject.
func (r *ProgressRepository) RecentOutcomes(ctx context.Context, userID, subject string, limit int) ([]domain.OutcomeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT is_correct, difficulty FROM submissions
		WHERE user_id = $1 AND subject = $2
		ORDER BY completed_at DESC
		LIMIT $3`,
		userID, subject, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := []domain.OutcomeRecord{}
	for rows.Next() {
		var o domain.OutcomeRecord
		if err := rows.Scan(&o.IsCorrect, &o.Difficulty); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListSubmissions pages through a user's submissions, newest first.
func (r *ProgressRepository) ListSubmissions(ctx context.Context, userID string, offset, limit int) ([]*domain.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE user_id = $1
		ORDER BY completed_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return scanSubmissions(rows)
}

// CountSubmissions counts a user's submissions.
func (r *ProgressRepository) CountSubmissions(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM submissions WHERE user_id = $1", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// SubmissionsSince returns submissions at or after since, oldest first.
func (r *ProgressRepository) SubmissionsSince(ctx context.Context, userID string, since time.Time) ([]*domain.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE user_id = $1 AND completed_at >= $2
		ORDER BY completed_at ASC`,
		userID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query submissions since: %w", err)
	}
	return scanSubmissions(rows)
}

// IncorrectTopics returns the topics of every incorrect submission in a subject.
func (r *ProgressRepository) IncorrectTopics(ctx context.Context, userID, subject string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT unnest(topics) FROM submissions
		WHERE user_id = $1 AND subject = $2 AND NOT is_correct`,
		userID, subject,
	)
	if err != nil {
		return nil, fmt.Errorf("query incorrect topics: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanSubmissions(rows pgx.Rows) ([]*domain.Submission, error) {
	defer rows.Close()

	out := []*domain.Submission{}
	for rows.Next() {
		var sub domain.Submission
		var challengeType string
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Subject, &sub.ChallengeID, &sub.ChallengeTitle,
			&challengeType, &sub.Difficulty, &sub.Topics, &sub.Answer, &sub.IsCorrect,
			&sub.CorrectnessPct, &sub.XPEarned, &sub.HintsUsed, &sub.TimeTakenSeconds,
			&sub.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.ChallengeType = domain.ChallengeType(challengeType)
		sub.CompletedAt = sub.CompletedAt.UTC()
		out = append(out, &sub)
	}
	return out, rows.Err()
}

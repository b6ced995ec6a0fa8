package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/progression"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements progression.Store and the challenge archive on SQLite.
type Store struct {
	db  *DB
	now func() time.Time
}

// NewStore creates a store over a migrated database.
func NewStore(db *DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetProgress loads progress for a user and subject.
func (s *Store) GetProgress(ctx context.Context, userID, subject string) (*domain.ProgressState, error) {
	p := &domain.ProgressState{UserID: userID, Subject: subject}
	err := s.db.QueryRowContext(ctx, `
		SELECT level, xp, challenges_completed, challenges_correct, version, updated_at
		FROM progress WHERE user_id = ? AND subject = ?`,
		userID, subject,
	).Scan(&p.Level, &p.XP, &p.ChallengesCompleted, &p.ChallengesCorrect, &p.Version, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

// SaveProgress inserts or updates progress with a version check.
func (s *Store) SaveProgress(ctx context.Context, state *domain.ProgressState) error {
	now := s.now().UTC()
	if err := saveProgress(ctx, s.db, state, now); err != nil {
		return err
	}
	state.Version++
	state.UpdatedAt = now
	return nil
}

func saveProgress(ctx context.Context, ex execer, p *domain.ProgressState, now time.Time) error {
	var (
		res sql.Result
		err error
	)
	if p.Version == 0 {
		res, err = ex.ExecContext(ctx, `
			INSERT INTO progress (user_id, subject, level, xp, challenges_completed,
				challenges_correct, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(user_id, subject) DO NOTHING`,
			p.UserID, p.Subject, p.Level, p.XP, p.ChallengesCompleted, p.ChallengesCorrect, now,
		)
	} else {
		res, err = ex.ExecContext(ctx, `
			UPDATE progress SET level = ?, xp = ?, challenges_completed = ?,
				challenges_correct = ?, version = version + 1, updated_at = ?
			WHERE user_id = ? AND subject = ? AND version = ?`,
			p.Level, p.XP, p.ChallengesCompleted, p.ChallengesCorrect, now,
			p.UserID, p.Subject, p.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return checkSwapped(res)
}

// ListProgress returns every subject a user has progress in.
func (s *Store) ListProgress(ctx context.Context, userID string) ([]*domain.ProgressState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, level, xp, challenges_completed, challenges_correct, version, updated_at
		FROM progress WHERE user_id = ? ORDER BY subject`,
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
func (s *Store) GetStreak(ctx context.Context, userID string) (*domain.StreakState, error) {
	st := &domain.StreakState{UserID: userID}
	var last string
	err := s.db.QueryRowContext(ctx, `
		SELECT current_streak, longest_streak, last_activity_date, version
		FROM streaks WHERE user_id = ?`,
		userID,
	).Scan(&st.CurrentStreak, &st.LongestStreak, &last, &st.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	st.LastActivityDate, err = time.Parse(time.DateOnly, last)
	if err != nil {
		return nil, fmt.Errorf("parse last_activity_date %q: %w", last, err)
	}
	return st, nil
}

// SaveStreak inserts or updates a streak with a version check.
func (s *Store) SaveStreak(ctx context.Context, state *domain.StreakState) error {
	if err := saveStreak(ctx, s.db, state); err != nil {
		return err
	}
	state.Version++
	return nil
}

func saveStreak(ctx context.Context, ex execer, st *domain.StreakState) error {
	last := st.LastActivityDate.Format(time.DateOnly)
	var (
		res sql.Result
		err error
	)
	if st.Version == 0 {
		res, err = ex.ExecContext(ctx, `
			INSERT INTO streaks (user_id, current_streak, longest_streak, last_activity_date, version)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(user_id) DO NOTHING`,
			st.UserID, st.CurrentStreak, st.LongestStreak, last,
		)
	} else {
		res, err = ex.ExecContext(ctx, `
			UPDATE streaks SET current_streak = ?, longest_streak = ?,
				last_activity_date = ?, version = version + 1
			WHERE user_id = ? AND version = ?`,
			st.CurrentStreak, st.LongestStreak, last, st.UserID, st.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return checkSwapped(res)
}

// CommitSubmission writes progress, streak and submission in one transaction.
func (s *Store) CommitSubmission(ctx context.Context, c *progression.Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	if err := saveProgress(ctx, tx, c.Progress, now); err != nil {
		return err
	}
	if err := saveStreak(ctx, tx, c.Streak); err != nil {
		return err
	}
	if err := insertSubmission(ctx, tx, c.Submission); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}

	c.Progress.Version++
	c.Progress.UpdatedAt = now
	c.Streak.Version++
	return nil
}

func checkSwapped(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/google/uuid"
)

const submissionColumns = `id, user_id, subject, challenge_id, challenge_title, challenge_type,
	difficulty, topics, answer, is_correct, correctness_pct, xp_earned, hints_used,
	time_taken_seconds, completed_at`

// RecordSubmission stores one submission.
func (s *Store) RecordSubmission(ctx context.Context, sub *domain.Submission) error {
	return insertSubmission(ctx, s.db, sub)
}

func insertSubmission(ctx context.Context, ex execer, sub *domain.Submission) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	topics, err := json.Marshal(nonNil(sub.Topics))
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID.String(), sub.UserID, sub.Subject, sub.ChallengeID.String(), sub.ChallengeTitle,
		string(sub.ChallengeType), sub.Difficulty, string(topics), sub.Answer, sub.IsCorrect,
		sub.CorrectnessPct, sub.XPEarned, sub.HintsUsed, sub.TimeTakenSeconds, sub.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// RecentOutcomes returns the newest outcomes in a subject.
func (s *Store) RecentOutcomes(ctx context.Context, userID, subject string, limit int) ([]domain.OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT is_correct, difficulty FROM submissions
		WHERE user_id = ? AND subject = ?
		ORDER BY completed_at DESC, rowid DESC
		LIMIT ?`,
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
func (s *Store) ListSubmissions(ctx context.Context, userID string, offset, limit int) ([]*domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE user_id = ?
		ORDER BY completed_at DESC, rowid DESC
		LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return scanSubmissions(rows)
}

// CountSubmissions counts a user's submissions.
func (s *Store) CountSubmissions(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions WHERE user_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// SubmissionsSince returns submissions at or after since, oldest first.
func (s *Store) SubmissionsSince(ctx context.Context, userID string, since time.Time) ([]*domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE user_id = ? AND completed_at >= ?
		ORDER BY completed_at ASC, rowid ASC`,
		userID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query submissions since: %w", err)
	}
	return scanSubmissions(rows)
}

// IncorrectTopics returns the topics of every incorrect submission in a subject.
func (s *Store) IncorrectTopics(ctx context.Context, userID, subject string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topics FROM submissions
		WHERE user_id = ? AND subject = ? AND is_correct = 0`,
		userID, subject,
	)
	if err != nil {
		return nil, fmt.Errorf("query incorrect topics: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan topics: %w", err)
		}
		var topics []string
		if err := json.Unmarshal([]byte(raw), &topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
		out = append(out, topics...)
	}
	return out, rows.Err()
}

func scanSubmissions(rows *sql.Rows) ([]*domain.Submission, error) {
	defer rows.Close()

	out := []*domain.Submission{}
	for rows.Next() {
		var sub domain.Submission
		var id, challengeID, challengeType, tops string
		if err := rows.Scan(&id, &sub.UserID, &sub.Subject, &challengeID, &sub.ChallengeTitle,
			&challengeType, &sub.Difficulty, &tops, &sub.Answer, &sub.IsCorrect,
			&sub.CorrectnessPct, &sub.XPEarned, &sub.HintsUsed, &sub.TimeTakenSeconds,
			&sub.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}

		var err error
		if sub.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse submission id: %w", err)
		}
		if sub.ChallengeID, err = uuid.Parse(challengeID); err != nil {
			return nil, fmt.Errorf("parse challenge id: %w", err)
		}
		sub.ChallengeType = domain.ChallengeType(challengeType)
		if err := json.Unmarshal([]byte(tops), &sub.Topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
		out = append(out, &sub)
	}
	return out, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SaveChallenge archives a generated challenge.
func (s *Store) SaveChallenge(ctx context.Context, spec *domain.ChallengeSpec) error {
	return insertChallenge(ctx, s.db, spec)
}

func insertChallenge(ctx context.Context, ex execer, spec *domain.ChallengeSpec) error {
	hints, err := json.Marshal(nonNil(spec.Hints))
	if err != nil {
		return fmt.Errorf("marshal hints: %w", err)
	}
	testCases, err := json.Marshal(nonNil(spec.TestCases))
	if err != nil {
		return fmt.Errorf("marshal test_cases: %w", err)
	}
	topics, err := json.Marshal(nonNil(spec.Topics))
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO challenges (id, subject, type, title, description, hints, solution,
			test_cases, topics, difficulty, estimated_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.ID.String(), spec.Subject, string(spec.Type), spec.Title, spec.Description,
		string(hints), spec.Solution, string(testCases), string(topics),
		spec.Difficulty, spec.EstimatedMinutes, spec.CreatedAt.UTC(),
	)
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("challenge %s: %w", spec.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique)
}

// GetChallenge loads an archived challenge.
func (s *Store) GetChallenge(ctx context.Context, id uuid.UUID) (*domain.ChallengeSpec, error) {
	return scanChallenge(s.db.QueryRowContext(ctx, selectChallenge, id.String()))
}

const selectChallenge = `
	SELECT id, subject, type, title, description, hints, solution, test_cases,
		topics, difficulty, estimated_minutes, created_at
	FROM challenges WHERE id = ?`

func scanChallenge(row *sql.Row) (*domain.ChallengeSpec, error) {
	var spec domain.ChallengeSpec
	var id, typ, hints, tests, topics string
	err := row.Scan(&id, &spec.Subject, &typ, &spec.Title, &spec.Description, &hints,
		&spec.Solution, &tests, &topics, &spec.Difficulty, &spec.EstimatedMinutes, &spec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}

	if spec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse challenge id: %w", err)
	}
	spec.Type = domain.ChallengeType(typ)
	if err := json.Unmarshal([]byte(hints), &spec.Hints); err != nil {
		return nil, fmt.Errorf("unmarshal hints: %w", err)
	}
	if err := json.Unmarshal([]byte(tests), &spec.TestCases); err != nil {
		return nil, fmt.Errorf("unmarshal test_cases: %w", err)
	}
	if err := json.Unmarshal([]byte(topics), &spec.Topics); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}
	return &spec, nil
}

// AddToPool archives a pre-generated challenge and queues it for claiming.
func (s *Store) AddToPool(ctx context.Context, spec *domain.ChallengeSpec) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pool insert: %w", err)
	}
	defer tx.Rollback()

	if err := insertChallenge(ctx, tx, spec); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO challenge_pool (challenge_id, subject, difficulty, created_at)
		VALUES (?, ?, ?, ?)`,
		spec.ID.String(), spec.Subject, spec.Difficulty, spec.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert pool entry: %w", err)
	}
	return tx.Commit()
}

// ClaimFromPool removes the oldest pooled challenge for subject and
// difficulty and returns it.
func (s *Store) ClaimFromPool(ctx context.Context, subject string, difficulty int) (*domain.ChallengeSpec, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin pool claim: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT challenge_id FROM challenge_pool
		WHERE subject = ? AND difficulty = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1`,
		subject, difficulty,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select pool entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM challenge_pool WHERE challenge_id = ?", id); err != nil {
		return nil, fmt.Errorf("delete pool entry: %w", err)
	}

	spec, err := scanChallenge(tx.QueryRowContext(ctx, selectChallenge, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pool claim: %w", err)
	}
	return spec, nil
}

// PoolSize counts unclaimed challenges for a subject.
func (s *Store) PoolSize(ctx context.Context, subject string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM challenge_pool WHERE subject = ?", subject).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pool: %w", err)
	}
	return n, nil
}

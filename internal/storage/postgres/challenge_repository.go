package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

var _ challenge.Store = (*ChallengeRepository)(nil)

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// ChallengeRepository archives challenges on database/sql with lib/pq.
type ChallengeRepository struct {
	db *sql.DB
}

// NewChallengeRepository creates a repository over a migrated database.
func NewChallengeRepository(db *sql.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// Close closes the database handle.
func (r *ChallengeRepository) Close() error {
	return r.db.Close()
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveChallenge archives a generated challenge.
func (r *ChallengeRepository) SaveChallenge(ctx context.Context, spec *domain.ChallengeSpec) error {
	return insertChallenge(ctx, r.db, spec)
}

func insertChallenge(ctx context.Context, ex sqlExecer, spec *domain.ChallengeSpec) error {
	var testCases pqtype.NullRawMessage
	if len(spec.TestCases) > 0 {
		raw, err := json.Marshal(spec.TestCases)
		if err != nil {
			return fmt.Errorf("marshal test_cases: %w", err)
		}
		testCases = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}
	topics := spec.Topics
	if topics == nil {
		topics = []string{}
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO challenges (id, subject, type, title, description, hints, solution,
			test_cases, topics, difficulty, estimated_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		spec.ID, spec.Subject, string(spec.Type), spec.Title, spec.Description,
		pq.Array(spec.Hints), spec.Solution, testCases, pq.Array(topics),
		spec.Difficulty, spec.EstimatedMinutes, spec.CreatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("challenge %s: %w", spec.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

const selectChallenge = `
	SELECT id, subject, type, title, description, hints, solution, test_cases,
		topics, difficulty, estimated_minutes, created_at
	FROM challenges WHERE id = $1`

// GetChallenge loads an archived challenge.
func (r *ChallengeRepository) GetChallenge(ctx context.Context, id uuid.UUID) (*domain.ChallengeSpec, error) {
	var (
		spec      domain.ChallengeSpec
		typ       string
		testCases pqtype.NullRawMessage
	)
	err := r.db.QueryRowContext(ctx, selectChallenge, id).Scan(
		&spec.ID, &spec.Subject, &typ, &spec.Title, &spec.Description, pq.Array(&spec.Hints),
		&spec.Solution, &testCases, pq.Array(&spec.Topics), &spec.Difficulty,
		&spec.EstimatedMinutes, &spec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}

	spec.Type = domain.ChallengeType(typ)
	spec.CreatedAt = spec.CreatedAt.UTC()
	spec.TestCases = []domain.TestCase{}
	if testCases.Valid {
		if err := json.Unmarshal(testCases.RawMessage, &spec.TestCases); err != nil {
			return nil, fmt.Errorf("unmarshal test_cases: %w", err)
		}
	}
	if spec.Topics == nil {
		spec.Topics = []string{}
	}
	return &spec, nil
}

// AddToPool archives a pre-generated challenge and queues it for claiming.
func (r *ChallengeRepository) AddToPool(ctx context.Context, spec *domain.ChallengeSpec) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pool insert: %w", err)
	}
	defer tx.Rollback()

	if err := insertChallenge(ctx, tx, spec); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO challenge_pool (challenge_id, subject, difficulty, created_at)
		VALUES ($1, $2, $3, $4)`,
		spec.ID, spec.Subject, spec.Difficulty, spec.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert pool entry: %w", err)
	}
	return tx.Commit()
}

// ClaimFromPool removes the oldest pooled challenge for subject and
// difficulty and returns it. Concurrent claimers skip rows locked by others.
func (r *ChallengeRepository) ClaimFromPool(ctx context.Context, subject string, difficulty int) (*domain.ChallengeSpec, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM challenge_pool
		WHERE challenge_id = (
			SELECT challenge_id FROM challenge_pool
			WHERE subject = $1 AND difficulty = $2
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING challenge_id`,
		subject, difficulty,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim pool entry: %w", err)
	}
	return r.GetChallenge(ctx, id)
}

// PoolSize counts unclaimed challenges for a subject.
func (r *ChallengeRepository) PoolSize(ctx context.Context, subject string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM challenge_pool WHERE subject = $1", subject).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pool: %w", err)
	}
	return n, nil
}

package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/queue"
	"github.com/google/uuid"
)

const (
	maxDailyCount  = 5
	weakTopicLimit = 5
)

// ChallengeView is a challenge as shown to the learner: everything but the
// reference solution.
type ChallengeView struct {
	ID               uuid.UUID            `json:"id"`
	Subject          string               `json:"subject"`
	Type             domain.ChallengeType `json:"type"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	Hints            []string             `json:"hints"`
	TestCases        []domain.TestCase    `json:"test_cases"`
	Topics           []string             `json:"topics"`
	Difficulty       int                  `json:"difficulty"`
	EstimatedMinutes int                  `json:"estimated_minutes"`
	CreatedAt        time.Time            `json:"created_at"`
}

// NewChallengeView drops the solution from spec.
func NewChallengeView(spec *domain.ChallengeSpec) *ChallengeView {
	return &ChallengeView{
		ID:               spec.ID,
		Subject:          spec.Subject,
		Type:             spec.Type,
		Title:            spec.Title,
		Description:      spec.Description,
		Hints:            spec.Hints,
		TestCases:        spec.TestCases,
		Topics:           spec.Topics,
		Difficulty:       spec.Difficulty,
		EstimatedMinutes: spec.EstimatedMinutes,
		CreatedAt:        spec.CreatedAt,
	}
}

// NewChallengeRequest asks for one challenge. Zero fields are chosen for the user.
type NewChallengeRequest struct {
	Subject    string               `json:"subject"`
	Type       domain.ChallengeType `json:"type,omitempty"`
	Difficulty int                  `json:"difficulty,omitempty"`
	Topic      string               `json:"topic,omitempty"`
}

// NewChallenge generates a challenge tailored to the user's standing in the
// subject and archives it.
func (s *Service) NewChallenge(ctx context.Context, userID string, req NewChallengeRequest) (*ChallengeView, error) {
	if _, ok := s.generator.Catalog().Get(req.Subject); !ok {
		return nil, domain.NewInvalidInput("subject", "unknown subject %q", req.Subject)
	}
	spec, err := s.generate(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	return NewChallengeView(spec), nil
}

func (s *Service) generate(ctx context.Context, userID string, req NewChallengeRequest) (*domain.ChallengeSpec, error) {
	progress, err := s.progressOrNew(ctx, userID, req.Subject)
	if err != nil {
		return nil, err
	}
	weak, err := s.weakTopics(ctx, userID, req.Subject)
	if err != nil {
		return nil, err
	}

	spec, err := s.generator.GenerateAdaptive(ctx, userID, challenge.GenerateRequest{
		Subject:        req.Subject,
		Type:           req.Type,
		Difficulty:     req.Difficulty,
		Topic:          req.Topic,
		WeakTopics:     weak,
		UserLevel:      progress.Level,
		TotalCompleted: progress.ChallengesCompleted,
	})
	if err != nil {
		return nil, err
	}

	if err := s.challenges.SaveChallenge(ctx, spec); err != nil {
		return nil, fmt.Errorf("save challenge: %w", err)
	}
	return spec, nil
}

func (s *Service) progressOrNew(ctx context.Context, userID, subject string) (*domain.ProgressState, error) {
	progress, err := s.store.GetProgress(ctx, userID, subject)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewProgressState(userID, subject), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return progress, nil
}

// GetChallenge returns an archived challenge.
func (s *Service) GetChallenge(ctx context.Context, id uuid.UUID) (*ChallengeView, error) {
	spec, err := s.challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("challenge %s: %w", id, err)
	}
	return NewChallengeView(spec), nil
}

// HintResult is one revealed hint.
type HintResult struct {
	ChallengeID    uuid.UUID `json:"challenge_id"`
	HintNumber     int       `json:"hint_number"`
	Hint           string    `json:"hint"`
	HintsRemaining int       `json:"hints_remaining"`
}

// Hint reveals the hint after the current one. current counts hints already
// seen and must be in [0, domain.HintCount).
func (s *Service) Hint(ctx context.Context, id uuid.UUID, current int) (*HintResult, error) {
	if current < 0 {
		return nil, domain.NewInvalidInput("current_hint", "must not be negative, got %d", current)
	}
	if current >= domain.HintCount {
		return nil, domain.ErrNoMoreHints
	}

	spec, err := s.challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("challenge %s: %w", id, err)
	}
	if current >= len(spec.Hints) {
		return nil, domain.ErrNoMoreHints
	}

	next := current + 1
	return &HintResult{
		ChallengeID:    id,
		HintNumber:     next,
		Hint:           spec.Hints[current],
		HintsRemaining: domain.HintCount - next,
	}, nil
}

// DailyChallenges is a day's set of challenges across subjects.
type DailyChallenges struct {
	Challenges []*ChallengeView `json:"challenges"`
	TotalCount int              `json:"total_count"`
}

// Daily assembles count challenges spread over the catalog in order. Each
// slot is served from the pre-generated pool at the user's recommended
// difficulty when possible and generated otherwise. Slots that fail are
// logged and skipped.
func (s *Service) Daily(ctx context.Context, userID string, count int) (*DailyChallenges, error) {
	if count < 1 || count > maxDailyCount {
		return nil, domain.NewInvalidInput("count", "must be in [1,%d], got %d", maxDailyCount, count)
	}

	subjects := s.Subjects()
	per := max(1, count/len(subjects))
	remaining := count

	out := &DailyChallenges{Challenges: []*ChallengeView{}}
	for _, subj := range subjects {
		if remaining <= 0 {
			break
		}
		n := min(per, remaining)
		for range n {
			spec, err := s.dailyChallenge(ctx, userID, subj.Slug)
			if err != nil {
				slog.Warn("daily challenge failed", "user", userID, "subject", subj.Slug, "error", err)
				continue
			}
			out.Challenges = append(out.Challenges, NewChallengeView(spec))
		}
		remaining -= n
	}
	out.TotalCount = len(out.Challenges)
	return out, nil
}

func (s *Service) dailyChallenge(ctx context.Context, userID, subject string) (*domain.ChallengeSpec, error) {
	difficulty, err := s.difficulty.NextDifficulty(ctx, userID, subject)
	if err != nil {
		return nil, err
	}

	spec, err := s.challenges.ClaimFromPool(ctx, subject, difficulty)
	switch {
	case err == nil:
		slog.Debug("daily challenge from pool", "subject", subject, "difficulty", difficulty)
		return spec, nil
	case !errors.Is(err, domain.ErrNotFound):
		slog.Warn("claim from pool failed", "subject", subject, "error", err)
	}

	return s.generate(ctx, userID, NewChallengeRequest{Subject: subject, Difficulty: difficulty})
}

// Pregenerate handles a generate job: it generates job.Count challenges and
// adds them to the pool. An unknown subject is an invalid input so the
// consumer drops the job instead of requeueing it.
func (s *Service) Pregenerate(ctx context.Context, job *queue.GenerateJob) error {
	if _, ok := s.generator.Catalog().Get(job.Subject); !ok {
		return domain.NewInvalidInput("subject", "unknown subject %q", job.Subject)
	}

	count := max(1, job.Count)
	for i := range count {
		spec, err := s.generator.Generate(ctx, challenge.GenerateRequest{
			Subject:    job.Subject,
			Type:       domain.ChallengeType(job.Type),
			Difficulty: job.Difficulty,
			Topic:      job.Topic,
			UserLevel:  job.Difficulty,
		})
		if err != nil {
			return fmt.Errorf("pregenerate %d/%d: %w", i+1, count, err)
		}
		if err := s.challenges.AddToPool(ctx, spec); err != nil {
			return fmt.Errorf("add to pool: %w", err)
		}
		slog.Info("challenge pooled",
			"job_id", job.ID,
			"challenge_id", spec.ID,
			"subject", spec.Subject,
			"difficulty", spec.Difficulty,
		)
	}
	return nil
}

package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/lock"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/felixgeelhaar/sensei/internal/queue"
	"github.com/google/uuid"
)

// SubmitRequest is one answer to a challenge.
type SubmitRequest struct {
	ChallengeID      uuid.UUID `json:"challenge_id"`
	Answer           string    `json:"answer"`
	HintsUsed        int       `json:"hints_used"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
}

// SubmissionResult is the outcome of Submit. Evaluation is always set when
// err is nil; ProgressApplied reports whether progression was updated.
type SubmissionResult struct {
	ChallengeID     uuid.UUID                `json:"challenge_id"`
	Evaluation      *domain.EvaluationResult `json:"evaluation"`
	IsCorrect       bool                     `json:"is_correct"`
	XPEarned        int                      `json:"xp_earned"`
	TotalXP         int                      `json:"total_xp"`
	NewLevel        int                      `json:"new_level"`
	LeveledUp       bool                     `json:"leveled_up"`
	NewStreak       int                      `json:"new_streak"`
	ProgressApplied bool                     `json:"progress_applied"`
	ProgressError   string                   `json:"progress_error,omitempty"`
}

// Submit evaluates an answer and applies it to the user's progress and
// streak. A failed progression write does not fail the call: the evaluation
// is returned with ProgressApplied false.
func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (*SubmissionResult, error) {
	if req.HintsUsed < 0 || req.HintsUsed > domain.HintCount {
		return nil, domain.NewInvalidInput("hints_used", "must be in [0,%d], got %d", domain.HintCount, req.HintsUsed)
	}
	if req.TimeTakenSeconds < 0 {
		return nil, domain.NewInvalidInput("time_taken_seconds", "must not be negative, got %d", req.TimeTakenSeconds)
	}

	spec, err := s.challenges.GetChallenge(ctx, req.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("challenge %s: %w", req.ChallengeID, err)
	}

	eval, err := s.evaluator.Evaluate(ctx, challenge.EvaluateRequest{
		Title:         spec.Title,
		Description:   spec.Description,
		IdealSolution: spec.Solution,
		UserAnswer:    req.Answer,
	})
	if err != nil {
		return nil, err
	}

	result := &SubmissionResult{
		ChallengeID: spec.ID,
		Evaluation:  eval,
		IsCorrect:   domain.IsCorrect(eval.CorrectnessPct),
	}

	commit, prevLevel, err := s.apply(ctx, userID, spec, req, result)
	if err != nil {
		slog.Error("progression update failed",
			"user", userID,
			"challenge_id", spec.ID,
			"error", err,
		)
		result.ProgressError = err.Error()
		return result, nil
	}

	result.ProgressApplied = true
	result.XPEarned = commit.Submission.XPEarned
	result.TotalXP = commit.Progress.XP
	result.NewLevel = commit.Progress.Level
	result.LeveledUp = commit.Progress.Level > prevLevel
	result.NewStreak = commit.Streak.CurrentStreak

	s.metrics.Submission(spec.Subject, result.IsCorrect, result.XPEarned)
	s.publish(ctx, commit, result)

	slog.Info("submission applied",
		"user", userID,
		"subject", spec.Subject,
		"correct", result.IsCorrect,
		"xp", result.XPEarned,
		"level", result.NewLevel,
	)
	return result, nil
}

// apply runs the progression read-modify-write under the user's lock,
// retrying on version conflicts. It returns the stored commit and the level
// before it.
func (s *Service) apply(ctx context.Context, userID string, spec *domain.ChallengeSpec, req SubmitRequest, result *SubmissionResult) (*progression.Commit, int, error) {
	unlock, err := s.locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		return nil, 0, fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= progression.MaxWriteAttempts; attempt++ {
		commit, prevLevel, err := s.buildCommit(ctx, userID, spec, req, result)
		if err != nil {
			return nil, 0, err
		}

		lastErr = s.store.CommitSubmission(ctx, commit)
		if lastErr == nil {
			return commit, prevLevel, nil
		}
		if !errors.Is(lastErr, domain.ErrVersionConflict) {
			return nil, 0, fmt.Errorf("commit submission: %w", lastErr)
		}
		s.metrics.WriteConflict()
		slog.Debug("progression write conflict", "user", userID, "attempt", attempt)
	}
	return nil, 0, fmt.Errorf("commit submission: %w", lastErr)
}

func (s *Service) buildCommit(ctx context.Context, userID string, spec *domain.ChallengeSpec, req SubmitRequest, result *SubmissionResult) (*progression.Commit, int, error) {
	now := s.now()
	today := domain.CivilDate(now, s.loc)

	progress, err := s.progressOrNew(ctx, userID, spec.Subject)
	if err != nil {
		return nil, 0, err
	}
	streak, err := s.streaks.Load(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	// The bonus uses the streak as it stood before this submission.
	xp := progression.XP(spec.Difficulty, result.Evaluation.CorrectnessPct, req.HintsUsed, progression.EffectiveStreak(streak, today))

	prevLevel := progress.Level
	progression.ApplyOutcome(progress, xp, result.IsCorrect)

	return &progression.Commit{
		Progress: progress,
		Streak:   progression.Advance(streak, userID, today),
		Submission: &domain.Submission{
			ID:               uuid.New(),
			UserID:           userID,
			Subject:          spec.Subject,
			ChallengeID:      spec.ID,
			ChallengeTitle:   spec.Title,
			ChallengeType:    spec.Type,
			Difficulty:       spec.Difficulty,
			Topics:           spec.Topics,
			Answer:           req.Answer,
			IsCorrect:        result.IsCorrect,
			CorrectnessPct:   result.Evaluation.CorrectnessPct,
			XPEarned:         xp,
			HintsUsed:        req.HintsUsed,
			TimeTakenSeconds: req.TimeTakenSeconds,
			CompletedAt:      now.UTC(),
		},
	}, prevLevel, nil
}

func (s *Service) publish(ctx context.Context, commit *progression.Commit, result *SubmissionResult) {
	if s.events == nil {
		return
	}
	event := &queue.ProgressEvent{
		ID:             uuid.New(),
		UserID:         commit.Submission.UserID,
		Subject:        commit.Submission.Subject,
		ChallengeID:    commit.Submission.ChallengeID,
		IsCorrect:      result.IsCorrect,
		CorrectnessPct: result.Evaluation.CorrectnessPct,
		XPEarned:       result.XPEarned,
		TotalXP:        result.TotalXP,
		Level:          result.NewLevel,
		LeveledUp:      result.LeveledUp,
		Streak:         result.NewStreak,
		OccurredAt:     commit.Submission.CompletedAt,
	}
	if err := s.events.PublishProgressEvent(ctx, event); err != nil {
		slog.Warn("publish progress event failed", "user", event.UserID, "error", err)
	}
}

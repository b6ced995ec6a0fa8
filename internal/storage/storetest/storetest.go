// Package storetest is a conformance suite run against every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/google/uuid"
)

var base = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

// RunProgression exercises the progression.Store contract. newStore must
// return an empty store.
func RunProgression(t *testing.T, newStore func(t *testing.T) progression.Store) {
	t.Run("progress not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetProgress(context.Background(), "u1", "python-advanced")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetProgress() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("progress compare and swap", func(t *testing.T) { testProgressCAS(t, newStore(t)) })
	t.Run("streak compare and swap", func(t *testing.T) { testStreakCAS(t, newStore(t)) })
	t.Run("list progress", func(t *testing.T) { testListProgress(t, newStore(t)) })
	t.Run("submissions", func(t *testing.T) { testSubmissions(t, newStore(t)) })
	t.Run("commit submission", func(t *testing.T) { testCommit(t, newStore(t)) })
	t.Run("commit rolls back on conflict", func(t *testing.T) { testCommitConflict(t, newStore(t)) })
}

func testProgressCAS(t *testing.T, s progression.Store) {
	ctx := context.Background()

	p := domain.NewProgressState("u1", "python-advanced")
	p.XP = 40
	if err := s.SaveProgress(ctx, p); err != nil {
		t.Fatalf("first SaveProgress() error = %v", err)
	}
	if p.Version != 1 {
		t.Fatalf("Version after insert = %d, want 1", p.Version)
	}

	stale := domain.NewProgressState("u1", "python-advanced")
	if err := s.SaveProgress(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("duplicate insert error = %v, want ErrVersionConflict", err)
	}

	loaded, err := s.GetProgress(ctx, "u1", "python-advanced")
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if loaded.XP != 40 || loaded.Version != 1 || loaded.Level != 1 {
		t.Errorf("loaded = %+v", loaded)
	}

	loaded.XP = 120
	loaded.Level = 2
	if err := s.SaveProgress(ctx, loaded); err != nil {
		t.Fatalf("update SaveProgress() error = %v", err)
	}

	// p still carries version 1.
	p.XP = 999
	if err := s.SaveProgress(ctx, p); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("stale update error = %v, want ErrVersionConflict", err)
	}

	final, err := s.GetProgress(ctx, "u1", "python-advanced")
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if final.XP != 120 || final.Version != 2 {
		t.Errorf("final = %+v, want XP 120 version 2", final)
	}
}

func testStreakCAS(t *testing.T, s progression.Store) {
	ctx := context.Background()

	if _, err := s.GetStreak(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetStreak() error = %v, want ErrNotFound", err)
	}

	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	st := &domain.StreakState{UserID: "u1", CurrentStreak: 1, LongestStreak: 1, LastActivityDate: day}
	if err := s.SaveStreak(ctx, st); err != nil {
		t.Fatalf("SaveStreak() error = %v", err)
	}

	loaded, err := s.GetStreak(ctx, "u1")
	if err != nil {
		t.Fatalf("GetStreak() error = %v", err)
	}
	if !loaded.LastActivityDate.Equal(day) || loaded.CurrentStreak != 1 || loaded.Version != 1 {
		t.Errorf("loaded = %+v", loaded)
	}

	loaded.CurrentStreak = 2
	loaded.LongestStreak = 2
	loaded.LastActivityDate = day.AddDate(0, 0, 1)
	if err := s.SaveStreak(ctx, loaded); err != nil {
		t.Fatalf("update SaveStreak() error = %v", err)
	}
	if err := s.SaveStreak(ctx, st); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("stale SaveStreak() error = %v, want ErrVersionConflict", err)
	}
}

func testListProgress(t *testing.T, s progression.Store) {
	ctx := context.Background()
	for _, subject := range []string{"java-deep-dive", "automation-testing"} {
		if err := s.SaveProgress(ctx, domain.NewProgressState("u1", subject)); err != nil {
			t.Fatalf("SaveProgress() error = %v", err)
		}
	}
	if err := s.SaveProgress(ctx, domain.NewProgressState("u2", "java-deep-dive")); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}

	list, err := s.ListProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("ListProgress() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Subject != "automation-testing" || list[1].Subject != "java-deep-dive" {
		t.Errorf("order = %s, %s", list[0].Subject, list[1].Subject)
	}
}

func submission(user, subject string, correct bool, offset time.Duration, topics ...string) *domain.Submission {
	return &domain.Submission{
		ID:             uuid.New(),
		UserID:         user,
		Subject:        subject,
		ChallengeID:    uuid.New(),
		ChallengeTitle: "title",
		ChallengeType:  domain.ChallengeCode,
		Difficulty:     2,
		Topics:         topics,
		Answer:         "answer",
		IsCorrect:      correct,
		CorrectnessPct: 50,
		XPEarned:       10,
		CompletedAt:    base.Add(offset),
	}
}

func testSubmissions(t *testing.T, s progression.Store) {
	ctx := context.Background()

	subs := []*domain.Submission{
		submission("u1", "dsa-problem-solving", false, 0, "graphs", "heaps"),
		submission("u1", "dsa-problem-solving", true, time.Hour, "graphs"),
		submission("u1", "python-advanced", false, 2*time.Hour, "generators and yield"),
		submission("u1", "dsa-problem-solving", false, 3*time.Hour, "graphs"),
		submission("u2", "dsa-problem-solving", false, 4*time.Hour, "tries"),
	}
	for _, sub := range subs {
		if err := s.RecordSubmission(ctx, sub); err != nil {
			t.Fatalf("RecordSubmission() error = %v", err)
		}
	}

	outcomes, err := s.RecentOutcomes(ctx, "u1", "dsa-problem-solving", 2)
	if err != nil {
		t.Fatalf("RecentOutcomes() error = %v", err)
	}
	if len(outcomes) != 2 || outcomes[0].IsCorrect || !outcomes[1].IsCorrect {
		t.Errorf("RecentOutcomes() = %+v, want [false true]", outcomes)
	}

	count, err := s.CountSubmissions(ctx, "u1")
	if err != nil || count != 4 {
		t.Errorf("CountSubmissions() = %d, %v; want 4", count, err)
	}

	page, err := s.ListSubmissions(ctx, "u1", 1, 2)
	if err != nil {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
	if len(page) != 2 || page[0].ID != subs[2].ID || page[1].ID != subs[1].ID {
		t.Errorf("ListSubmissions(1, 2) returned wrong page")
	}
	if len(page) > 0 && (page[0].Answer != "answer" || page[0].ChallengeType != domain.ChallengeCode) {
		t.Errorf("page[0] = %+v", page[0])
	}

	empty, err := s.ListSubmissions(ctx, "u1", 10, 5)
	if err != nil || len(empty) != 0 {
		t.Errorf("ListSubmissions past end = %d, %v", len(empty), err)
	}

	since, err := s.SubmissionsSince(ctx, "u1", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("SubmissionsSince() error = %v", err)
	}
	if len(since) != 3 || since[0].ID != subs[1].ID || since[2].ID != subs[3].ID {
		t.Errorf("SubmissionsSince() returned %d submissions in wrong order", len(since))
	}

	topics, err := s.IncorrectTopics(ctx, "u1", "dsa-problem-solving")
	if err != nil {
		t.Fatalf("IncorrectTopics() error = %v", err)
	}
	counts := map[string]int{}
	for _, tp := range topics {
		counts[tp]++
	}
	if counts["graphs"] != 2 || counts["heaps"] != 1 || len(counts) != 2 {
		t.Errorf("IncorrectTopics() = %v", topics)
	}
}

func testCommit(t *testing.T, s progression.Store) {
	ctx := context.Background()

	c := &progression.Commit{
		Progress:   domain.NewProgressState("u1", "java-deep-dive"),
		Streak:     &domain.StreakState{UserID: "u1", CurrentStreak: 1, LongestStreak: 1, LastActivityDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		Submission: submission("u1", "java-deep-dive", true, 0, "reflection and annotations"),
	}
	progression.ApplyOutcome(c.Progress, 25, true)

	if err := s.CommitSubmission(ctx, c); err != nil {
		t.Fatalf("CommitSubmission() error = %v", err)
	}
	if c.Progress.Version != 1 || c.Streak.Version != 1 {
		t.Errorf("versions = %d/%d, want 1/1", c.Progress.Version, c.Streak.Version)
	}

	p, err := s.GetProgress(ctx, "u1", "java-deep-dive")
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if p.XP != 25 || p.ChallengesCompleted != 1 || p.ChallengesCorrect != 1 {
		t.Errorf("progress = %+v", p)
	}
	if n, _ := s.CountSubmissions(ctx, "u1"); n != 1 {
		t.Errorf("CountSubmissions() = %d, want 1", n)
	}
}

func testCommitConflict(t *testing.T, s progression.Store) {
	ctx := context.Background()

	existing := &domain.StreakState{UserID: "u1", CurrentStreak: 3, LongestStreak: 3, LastActivityDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	if err := s.SaveStreak(ctx, existing); err != nil {
		t.Fatalf("SaveStreak() error = %v", err)
	}

	c := &progression.Commit{
		Progress: domain.NewProgressState("u1", "java-deep-dive"),
		// Version 0 conflicts with the stored streak.
		Streak:     &domain.StreakState{UserID: "u1", CurrentStreak: 1, LongestStreak: 1, LastActivityDate: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)},
		Submission: submission("u1", "java-deep-dive", true, 0),
	}
	err := s.CommitSubmission(ctx, c)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("CommitSubmission() error = %v, want ErrVersionConflict", err)
	}
	if c.Progress.Version != 0 {
		t.Errorf("Progress.Version = %d after failed commit, want 0", c.Progress.Version)
	}

	if _, err := s.GetProgress(ctx, "u1", "java-deep-dive"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("progress written despite conflict: %v", err)
	}
	if n, _ := s.CountSubmissions(ctx, "u1"); n != 0 {
		t.Errorf("submission written despite conflict: %d", n)
	}
}

// RunChallenges exercises the challenge archive and pool.
func RunChallenges(t *testing.T, newStore func(t *testing.T) challenge.Store) {
	t.Run("save and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		spec := Challenge("python-advanced", 3)

		if err := s.SaveChallenge(ctx, spec); err != nil {
			t.Fatalf("SaveChallenge() error = %v", err)
		}
		got, err := s.GetChallenge(ctx, spec.ID)
		if err != nil {
			t.Fatalf("GetChallenge() error = %v", err)
		}
		if got.Title != spec.Title || len(got.Hints) != 3 || got.Hints[2] != spec.Hints[2] {
			t.Errorf("got = %+v", got)
		}
		if len(got.TestCases) != 1 || got.TestCases[0].Expected != "2" {
			t.Errorf("TestCases = %+v", got.TestCases)
		}
		if len(got.Topics) != 1 || got.Topics[0] != "decorators" {
			t.Errorf("Topics = %v", got.Topics)
		}
		if got.Type != domain.ChallengeCode || got.Difficulty != 3 || got.EstimatedMinutes != 11 {
			t.Errorf("type/difficulty/minutes = %s/%d/%d", got.Type, got.Difficulty, got.EstimatedMinutes)
		}

		if _, err := s.GetChallenge(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetChallenge(unknown) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		spec := Challenge("java-deep-dive", 2)

		if err := s.SaveChallenge(ctx, spec); err != nil {
			t.Fatalf("SaveChallenge() error = %v", err)
		}
		if err := s.SaveChallenge(ctx, spec); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("second SaveChallenge() error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("pool", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := Challenge("java-deep-dive", 2)
		second := Challenge("java-deep-dive", 2)
		second.CreatedAt = first.CreatedAt.Add(time.Minute)
		other := Challenge("java-deep-dive", 4)
		for _, spec := range []*domain.ChallengeSpec{first, second, other} {
			if err := s.AddToPool(ctx, spec); err != nil {
				t.Fatalf("AddToPool() error = %v", err)
			}
		}

		if n, err := s.PoolSize(ctx, "java-deep-dive"); err != nil || n != 3 {
			t.Errorf("PoolSize() = %d, %v; want 3", n, err)
		}

		got, err := s.ClaimFromPool(ctx, "java-deep-dive", 2)
		if err != nil {
			t.Fatalf("ClaimFromPool() error = %v", err)
		}
		if got.ID != first.ID {
			t.Errorf("claimed %s, want oldest %s", got.ID, first.ID)
		}
		if _, err := s.ClaimFromPool(ctx, "java-deep-dive", 2); err != nil {
			t.Fatalf("second ClaimFromPool() error = %v", err)
		}
		if _, err := s.ClaimFromPool(ctx, "java-deep-dive", 2); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("empty pool error = %v, want ErrNotFound", err)
		}

		// Claimed challenges stay in the archive.
		if _, err := s.GetChallenge(ctx, first.ID); err != nil {
			t.Errorf("GetChallenge(claimed) error = %v", err)
		}
		if n, _ := s.PoolSize(ctx, "java-deep-dive"); n != 1 {
			t.Errorf("PoolSize() = %d, want 1", n)
		}
	})
}

// Challenge returns a valid challenge for subject at difficulty.
func Challenge(subject string, difficulty int) *domain.ChallengeSpec {
	return &domain.ChallengeSpec{
		ID:               uuid.New(),
		Subject:          subject,
		Type:             domain.ChallengeCode,
		Title:            "Memoize a function",
		Description:      "Write a decorator that caches results.",
		Hints:            []string{"Use a dict", "Key on args", "functools.wraps keeps metadata"},
		Solution:         "def memo(fn): ...",
		TestCases:        []domain.TestCase{{Input: "fib(3)", Expected: "2"}},
		Topics:           []string{"decorators"},
		Difficulty:       difficulty,
		EstimatedMinutes: domain.EstimatedMinutes(difficulty),
		CreatedAt:        base,
	}
}

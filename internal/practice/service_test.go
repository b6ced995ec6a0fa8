package practice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/lock"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/felixgeelhaar/sensei/internal/queue"
	"github.com/felixgeelhaar/sensei/internal/storage/memory"
	"github.com/felixgeelhaar/sensei/internal/storage/storetest"
	"github.com/google/uuid"
)

const testUser = "u1"

type fixture struct {
	svc  *Service
	mem  *memory.Store
	gen  *mockGenerator
	eval *mockEvaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

// newFixtureWithStore builds a service whose progression store is wrap(mem)
// when wrap is not nil.
func newFixtureWithStore(t *testing.T, wrap func(progression.Store) progression.Store) *fixture {
	t.Helper()
	mem := memory.New()
	var store progression.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	f := &fixture{
		mem:  mem,
		gen:  newMockGenerator(),
		eval: &mockEvaluator{pct: 85},
	}
	f.svc = NewService(f.gen, f.eval, store, mem, lock.NewLocalLocker(), time.UTC)
	f.svc.SetClock(func() time.Time { return testNow })
	return f
}

func (f *fixture) saveChallenge(t *testing.T, subject string, difficulty int) *domain.ChallengeSpec {
	t.Helper()
	spec := storetest.Challenge(subject, difficulty)
	if err := f.mem.SaveChallenge(context.Background(), spec); err != nil {
		t.Fatalf("SaveChallenge() error = %v", err)
	}
	return spec
}

func (f *fixture) record(t *testing.T, sub *domain.Submission) {
	t.Helper()
	if sub.UserID == "" {
		sub.UserID = testUser
	}
	if err := f.mem.RecordSubmission(context.Background(), sub); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
}

func today() time.Time {
	return domain.CivilDate(testNow, time.UTC)
}

func TestService_Submit_AppliesProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	spec := f.saveChallenge(t, "python-advanced", 3)

	if err := f.mem.SaveStreak(ctx, &domain.StreakState{
		UserID:           testUser,
		CurrentStreak:    10,
		LongestStreak:    12,
		LastActivityDate: today().AddDate(0, 0, -1),
	}); err != nil {
		t.Fatalf("SaveStreak() error = %v", err)
	}
	if err := f.mem.SaveProgress(ctx, &domain.ProgressState{
		UserID:              testUser,
		Subject:             "python-advanced",
		Level:               1,
		XP:                  90,
		ChallengesCompleted: 3,
		ChallengesCorrect:   2,
	}); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}

	pub := &mockPublisher{}
	f.svc.SetEventPublisher(pub)

	res, err := f.svc.Submit(ctx, testUser, SubmitRequest{
		ChallengeID:      spec.ID,
		Answer:           "def memo(fn): ...",
		HintsUsed:        1,
		TimeTakenSeconds: 120,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if !res.ProgressApplied || res.ProgressError != "" {
		t.Fatalf("ProgressApplied = %v, ProgressError = %q", res.ProgressApplied, res.ProgressError)
	}
	if !res.IsCorrect {
		t.Error("IsCorrect = false, want true for 85%")
	}
	// floor(50 * 0.85 * 0.9 * 1.45)
	if res.XPEarned != 55 {
		t.Errorf("XPEarned = %d, want 55", res.XPEarned)
	}
	if res.TotalXP != 145 || res.NewLevel != 2 || !res.LeveledUp {
		t.Errorf("TotalXP = %d, NewLevel = %d, LeveledUp = %v; want 145, 2, true", res.TotalXP, res.NewLevel, res.LeveledUp)
	}
	if res.NewStreak != 11 {
		t.Errorf("NewStreak = %d, want 11", res.NewStreak)
	}

	progress, err := f.mem.GetProgress(ctx, testUser, "python-advanced")
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if progress.ChallengesCompleted != 4 || progress.ChallengesCorrect != 3 {
		t.Errorf("completed/correct = %d/%d, want 4/3", progress.ChallengesCompleted, progress.ChallengesCorrect)
	}

	streak, err := f.mem.GetStreak(ctx, testUser)
	if err != nil {
		t.Fatalf("GetStreak() error = %v", err)
	}
	if streak.CurrentStreak != 11 || streak.LongestStreak != 12 || !streak.LastActivityDate.Equal(today()) {
		t.Errorf("streak = %+v", streak)
	}

	subs, err := f.mem.ListSubmissions(ctx, testUser, 0, 10)
	if err != nil {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("len(submissions) = %d, want 1", len(subs))
	}
	if subs[0].XPEarned != 55 || subs[0].HintsUsed != 1 || subs[0].TimeTakenSeconds != 120 || !subs[0].CompletedAt.Equal(testNow) {
		t.Errorf("submission = %+v", subs[0])
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.UserID != testUser || ev.XPEarned != 55 || ev.Level != 2 || !ev.LeveledUp || ev.Streak != 11 {
		t.Errorf("event = %+v", ev)
	}
}

func TestService_Submit_LapsedStreakEarnsNoBonus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	spec := f.saveChallenge(t, "python-advanced", 3)

	if err := f.mem.SaveStreak(ctx, &domain.StreakState{
		UserID:           testUser,
		CurrentStreak:    10,
		LongestStreak:    10,
		LastActivityDate: today().AddDate(0, 0, -3),
	}); err != nil {
		t.Fatalf("SaveStreak() error = %v", err)
	}

	res, err := f.svc.Submit(ctx, testUser, SubmitRequest{ChallengeID: spec.ID, Answer: "x", HintsUsed: 1})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	// floor(50 * 0.85 * 0.9)
	if res.XPEarned != 38 {
		t.Errorf("XPEarned = %d, want 38", res.XPEarned)
	}
	if res.NewStreak != 1 {
		t.Errorf("NewStreak = %d, want 1", res.NewStreak)
	}
}

func TestService_Submit_Incorrect(t *testing.T) {
	f := newFixture(t)
	f.eval.pct = 40
	ctx := context.Background()
	spec := f.saveChallenge(t, "java-deep-dive", 2)

	res, err := f.svc.Submit(ctx, testUser, SubmitRequest{ChallengeID: spec.ID, Answer: "x"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.IsCorrect {
		t.Error("IsCorrect = true, want false for 40%")
	}
	// floor(25 * 0.40)
	if res.XPEarned != 10 {
		t.Errorf("XPEarned = %d, want 10", res.XPEarned)
	}

	progress, _ := f.mem.GetProgress(ctx, testUser, "java-deep-dive")
	if progress.ChallengesCompleted != 1 || progress.ChallengesCorrect != 0 {
		t.Errorf("completed/correct = %d/%d, want 1/0", progress.ChallengesCompleted, progress.ChallengesCorrect)
	}

	topics, _ := f.mem.IncorrectTopics(ctx, testUser, "java-deep-dive")
	if len(topics) != 1 || topics[0] != "decorators" {
		t.Errorf("IncorrectTopics() = %v, want [decorators]", topics)
	}
}

func TestService_Submit_Errors(t *testing.T) {
	f := newFixture(t)
	spec := f.saveChallenge(t, "python-advanced", 1)

	tests := []struct {
		name    string
		evalErr error
		req     SubmitRequest
		want    error
	}{
		{
			name: "negative hints",
			req:  SubmitRequest{ChallengeID: spec.ID, Answer: "x", HintsUsed: -1},
			want: domain.ErrInvalidInput,
		},
		{
			name: "too many hints",
			req:  SubmitRequest{ChallengeID: spec.ID, Answer: "x", HintsUsed: 4},
			want: domain.ErrInvalidInput,
		},
		{
			name: "negative time",
			req:  SubmitRequest{ChallengeID: spec.ID, Answer: "x", TimeTakenSeconds: -1},
			want: domain.ErrInvalidInput,
		},
		{
			name: "unknown challenge",
			req:  SubmitRequest{ChallengeID: uuid.New(), Answer: "x"},
			want: domain.ErrNotFound,
		},
		{
			name: "empty answer",
			req:  SubmitRequest{ChallengeID: spec.ID},
			want: domain.ErrInvalidInput,
		},
		{
			name:    "backend down",
			evalErr: errBackendDown,
			req:     SubmitRequest{ChallengeID: spec.ID, Answer: "x"},
			want:    errBackendDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.eval.err = tt.evalErr
			_, err := f.svc.Submit(context.Background(), testUser, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v, want %v", err, tt.want)
			}
		})
	}

	if n, _ := f.mem.CountSubmissions(context.Background(), testUser); n != 0 {
		t.Errorf("CountSubmissions() = %d, want 0 after failed submits", n)
	}
}

func TestService_Submit_RetriesVersionConflicts(t *testing.T) {
	var cs *conflictStore
	f := newFixtureWithStore(t, func(s progression.Store) progression.Store {
		cs = &conflictStore{Store: s, conflicts: 2}
		return cs
	})
	spec := f.saveChallenge(t, "python-advanced", 1)

	res, err := f.svc.Submit(context.Background(), testUser, SubmitRequest{ChallengeID: spec.ID, Answer: "x"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.ProgressApplied {
		t.Errorf("ProgressApplied = false, error %q", res.ProgressError)
	}
	if cs.commits != 3 {
		t.Errorf("commits = %d, want 3", cs.commits)
	}
}

func TestService_Submit_ProgressFailureKeepsEvaluation(t *testing.T) {
	tests := []struct {
		name        string
		store       func(progression.Store) *conflictStore
		wantCommits int
		wantErr     string
	}{
		{
			name: "conflicts exhaust retries",
			store: func(s progression.Store) *conflictStore {
				return &conflictStore{Store: s, conflicts: 10}
			},
			wantCommits: progression.MaxWriteAttempts,
			wantErr:     "version conflict",
		},
		{
			name: "storage error is not retried",
			store: func(s progression.Store) *conflictStore {
				return &conflictStore{Store: s, err: errors.New("disk full")}
			},
			wantCommits: 1,
			wantErr:     "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cs *conflictStore
			f := newFixtureWithStore(t, func(s progression.Store) progression.Store {
				cs = tt.store(s)
				return cs
			})
			pub := &mockPublisher{}
			f.svc.SetEventPublisher(pub)
			spec := f.saveChallenge(t, "python-advanced", 1)

			res, err := f.svc.Submit(context.Background(), testUser, SubmitRequest{ChallengeID: spec.ID, Answer: "x"})
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if res.Evaluation == nil || res.Evaluation.CorrectnessPct != 85 {
				t.Errorf("Evaluation = %+v, want the evaluator's result", res.Evaluation)
			}
			if res.ProgressApplied {
				t.Error("ProgressApplied = true, want false")
			}
			if !strings.Contains(res.ProgressError, tt.wantErr) {
				t.Errorf("ProgressError = %q, want it to contain %q", res.ProgressError, tt.wantErr)
			}
			if res.XPEarned != 0 {
				t.Errorf("XPEarned = %d, want 0 when not applied", res.XPEarned)
			}
			if cs.commits != tt.wantCommits {
				t.Errorf("commits = %d, want %d", cs.commits, tt.wantCommits)
			}
			if len(pub.events) != 0 {
				t.Errorf("published %d events, want 0", len(pub.events))
			}
		})
	}
}

func TestService_Submit_PublishFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.svc.SetEventPublisher(&mockPublisher{err: errors.New("broker gone")})
	spec := f.saveChallenge(t, "python-advanced", 1)

	res, err := f.svc.Submit(context.Background(), testUser, SubmitRequest{ChallengeID: spec.ID, Answer: "x"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.ProgressApplied {
		t.Error("ProgressApplied = false, want true")
	}
}

func TestService_Submit_ConcurrentSameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	spec := f.saveChallenge(t, "dsa-problem-solving", 1)

	const n = 10
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Submit(ctx, testUser, SubmitRequest{ChallengeID: spec.ID, Answer: "x"})
			if err != nil || !res.ProgressApplied {
				t.Errorf("Submit() = %+v, %v", res, err)
			}
		}()
	}
	wg.Wait()

	progress, err := f.mem.GetProgress(ctx, testUser, "dsa-problem-solving")
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if progress.ChallengesCompleted != n {
		t.Errorf("ChallengesCompleted = %d, want %d", progress.ChallengesCompleted, n)
	}
	// floor(10 * 0.85) per submission, no streak bonus on day one
	if progress.XP != 8*n {
		t.Errorf("XP = %d, want %d", progress.XP, 8*n)
	}
	streak, _ := f.mem.GetStreak(ctx, testUser)
	if streak.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1", streak.CurrentStreak)
	}
}

func TestService_Hint(t *testing.T) {
	f := newFixture(t)
	spec := f.saveChallenge(t, "python-advanced", 1)

	tests := []struct {
		name          string
		id            uuid.UUID
		current       int
		wantNumber    int
		wantHint      string
		wantRemaining int
		wantErr       error
	}{
		{name: "first", id: spec.ID, current: 0, wantNumber: 1, wantHint: "Use a dict", wantRemaining: 2},
		{name: "last", id: spec.ID, current: 2, wantNumber: 3, wantHint: "functools.wraps keeps metadata", wantRemaining: 0},
		{name: "exhausted", id: spec.ID, current: 3, wantErr: domain.ErrNoMoreHints},
		{name: "negative", id: spec.ID, current: -1, wantErr: domain.ErrInvalidInput},
		{name: "unknown challenge", id: uuid.New(), current: 0, wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Hint(context.Background(), tt.id, tt.current)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Hint() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Hint() error = %v", err)
			}
			if got.HintNumber != tt.wantNumber || got.Hint != tt.wantHint || got.HintsRemaining != tt.wantRemaining {
				t.Errorf("Hint() = %+v", got)
			}
		})
	}
}

func TestService_NewChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.mem.SaveProgress(ctx, &domain.ProgressState{
		UserID:              testUser,
		Subject:             "python-advanced",
		Level:               3,
		XP:                  350,
		ChallengesCompleted: 7,
		ChallengesCorrect:   4,
	}); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}
	for i, topics := range [][]string{{"generators", "asyncio"}, {"asyncio"}, {"metaclasses"}} {
		f.record(t, &domain.Submission{
			Subject:     "python-advanced",
			Topics:      topics,
			CompletedAt: testNow.Add(-time.Duration(i) * time.Hour),
		})
	}

	view, err := f.svc.NewChallenge(ctx, testUser, NewChallengeRequest{Subject: "python-advanced", Topic: "decorators"})
	if err != nil {
		t.Fatalf("NewChallenge() error = %v", err)
	}

	req := f.gen.lastAdaptive()
	if req.UserLevel != 3 || req.TotalCompleted != 7 {
		t.Errorf("UserLevel/TotalCompleted = %d/%d, want 3/7", req.UserLevel, req.TotalCompleted)
	}
	wantWeak := []string{"asyncio", "generators", "metaclasses"}
	if strings.Join(req.WeakTopics, ",") != strings.Join(wantWeak, ",") {
		t.Errorf("WeakTopics = %v, want %v", req.WeakTopics, wantWeak)
	}
	if req.Topic != "decorators" {
		t.Errorf("Topic = %q, want decorators", req.Topic)
	}

	if _, err := f.mem.GetChallenge(ctx, view.ID); err != nil {
		t.Errorf("generated challenge not archived: %v", err)
	}
	if got, err := f.svc.GetChallenge(ctx, view.ID); err != nil || got.Title != view.Title {
		t.Errorf("GetChallenge() = %+v, %v", got, err)
	}

	if _, err := f.svc.NewChallenge(ctx, testUser, NewChallengeRequest{Subject: "cobol"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("unknown subject error = %v, want ErrInvalidInput", err)
	}

	f.gen.failFor["java-deep-dive"] = errBackendDown
	if _, err := f.svc.NewChallenge(ctx, testUser, NewChallengeRequest{Subject: "java-deep-dive"}); !errors.Is(err, errBackendDown) {
		t.Errorf("generator failure error = %v, want %v", err, errBackendDown)
	}
}

func TestService_Daily(t *testing.T) {
	t.Run("invalid count", func(t *testing.T) {
		f := newFixture(t)
		for _, count := range []int{0, 6} {
			if _, err := f.svc.Daily(context.Background(), testUser, count); !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Daily(%d) error = %v, want ErrInvalidInput", count, err)
			}
		}
	})

	t.Run("one per subject in catalog order", func(t *testing.T) {
		f := newFixture(t)
		got, err := f.svc.Daily(context.Background(), testUser, 4)
		if err != nil {
			t.Fatalf("Daily() error = %v", err)
		}
		want := []string{"python-advanced", "java-deep-dive", "automation-testing", "dsa-problem-solving"}
		if got.TotalCount != len(want) {
			t.Fatalf("TotalCount = %d, want %d", got.TotalCount, len(want))
		}
		for i, c := range got.Challenges {
			if c.Subject != want[i] {
				t.Errorf("Challenges[%d].Subject = %q, want %q", i, c.Subject, want[i])
			}
			// A new user starts at difficulty 1.
			if c.Difficulty != 1 {
				t.Errorf("Challenges[%d].Difficulty = %d, want 1", i, c.Difficulty)
			}
		}
	})

	t.Run("fewer than subjects", func(t *testing.T) {
		f := newFixture(t)
		got, err := f.svc.Daily(context.Background(), testUser, 2)
		if err != nil {
			t.Fatalf("Daily() error = %v", err)
		}
		if got.TotalCount != 2 || got.Challenges[0].Subject != "python-advanced" || got.Challenges[1].Subject != "java-deep-dive" {
			t.Errorf("Daily(2) = %+v", got.Challenges)
		}
	})

	t.Run("claims from pool", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		pooled := storetest.Challenge("python-advanced", 1)
		if err := f.mem.AddToPool(ctx, pooled); err != nil {
			t.Fatalf("AddToPool() error = %v", err)
		}

		got, err := f.svc.Daily(ctx, testUser, 1)
		if err != nil {
			t.Fatalf("Daily() error = %v", err)
		}
		if got.TotalCount != 1 || got.Challenges[0].ID != pooled.ID {
			t.Errorf("Daily(1) = %+v, want pooled challenge %s", got.Challenges, pooled.ID)
		}
		if len(f.gen.requests) != 0 {
			t.Errorf("generator called %d times, want 0", len(f.gen.requests))
		}
		if n, _ := f.mem.PoolSize(ctx, "python-advanced"); n != 0 {
			t.Errorf("PoolSize() = %d, want 0", n)
		}
	})

	t.Run("skips failed subjects", func(t *testing.T) {
		f := newFixture(t)
		f.gen.failFor["java-deep-dive"] = errBackendDown
		got, err := f.svc.Daily(context.Background(), testUser, 4)
		if err != nil {
			t.Fatalf("Daily() error = %v", err)
		}
		if got.TotalCount != 3 {
			t.Errorf("TotalCount = %d, want 3", got.TotalCount)
		}
		for _, c := range got.Challenges {
			if c.Subject == "java-deep-dive" {
				t.Error("failed subject should be skipped")
			}
		}
	})
}

func TestService_Pregenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := queue.NewGenerateJob("dsa-problem-solving", 3, 2)
	if err := f.svc.Pregenerate(ctx, job); err != nil {
		t.Fatalf("Pregenerate() error = %v", err)
	}
	if n, _ := f.mem.PoolSize(ctx, "dsa-problem-solving"); n != 2 {
		t.Errorf("PoolSize() = %d, want 2", n)
	}
	for _, req := range f.gen.requests {
		if req.Difficulty != 3 {
			t.Errorf("request difficulty = %d, want 3", req.Difficulty)
		}
	}

	if err := f.svc.Pregenerate(ctx, queue.NewGenerateJob("cobol", 1, 1)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("unknown subject error = %v, want ErrInvalidInput", err)
	}

	f.gen.failFor["java-deep-dive"] = errBackendDown
	if err := f.svc.Pregenerate(ctx, queue.NewGenerateJob("java-deep-dive", 1, 1)); !errors.Is(err, errBackendDown) {
		t.Errorf("generator failure error = %v, want %v", err, errBackendDown)
	}
}

func TestService_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := range 5 {
		f.record(t, &domain.Submission{
			Subject:        "python-advanced",
			ChallengeTitle: "challenge",
			IsCorrect:      i%2 == 0,
			XPEarned:       i,
			CompletedAt:    testNow.Add(time.Duration(i) * time.Minute),
		})
	}

	page, err := f.svc.History(ctx, testUser, 1, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if page.TotalCount != 5 || len(page.Items) != 2 {
		t.Fatalf("TotalCount = %d, items = %d; want 5, 2", page.TotalCount, len(page.Items))
	}
	if page.Items[0].XPEarned != 4 || page.Items[1].XPEarned != 3 {
		t.Errorf("first page XP = %d, %d; want newest first 4, 3", page.Items[0].XPEarned, page.Items[1].XPEarned)
	}
	if page.Items[0].SubjectName != "Python Advanced" {
		t.Errorf("SubjectName = %q, want Python Advanced", page.Items[0].SubjectName)
	}

	last, err := f.svc.History(ctx, testUser, 3, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(last.Items) != 1 || last.Items[0].XPEarned != 0 {
		t.Errorf("last page = %+v", last.Items)
	}

	for _, tc := range []struct{ page, size int }{{0, 10}, {1, 0}, {1, 51}} {
		if _, err := f.svc.History(ctx, testUser, tc.page, tc.size); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("History(%d, %d) error = %v, want ErrInvalidInput", tc.page, tc.size, err)
		}
	}
}

func TestService_WeeklyActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, &domain.Submission{Subject: "python-advanced", IsCorrect: true, XPEarned: 10, CompletedAt: testNow.Add(-time.Hour)})
	f.record(t, &domain.Submission{Subject: "python-advanced", XPEarned: 20, CompletedAt: testNow})
	f.record(t, &domain.Submission{Subject: "java-deep-dive", XPEarned: 5, CompletedAt: testNow.AddDate(0, 0, -2)})
	f.record(t, &domain.Submission{Subject: "java-deep-dive", XPEarned: 99, CompletedAt: testNow.AddDate(0, 0, -7)})

	got, err := f.svc.WeeklyActivity(ctx, testUser, f.svc.Today())
	if err != nil {
		t.Fatalf("WeeklyActivity() error = %v", err)
	}
	if got.From != "2026-03-04" || got.To != "2026-03-10" {
		t.Errorf("period = %s..%s, want 2026-03-04..2026-03-10", got.From, got.To)
	}
	if len(got.Days) != 7 {
		t.Fatalf("len(Days) = %d, want 7", len(got.Days))
	}
	if d := got.Days[6]; d.Date != "2026-03-10" || d.ChallengesDone != 2 || d.XPEarned != 30 || d.Correct != 1 {
		t.Errorf("today = %+v", d)
	}
	if d := got.Days[4]; d.ChallengesDone != 1 || d.XPEarned != 5 {
		t.Errorf("two days ago = %+v", d)
	}
	want := WeeklySummary{TotalChallenges: 3, TotalXP: 35, ActiveDays: 2}
	if got.Summary != want {
		t.Errorf("Summary = %+v, want %+v", got.Summary, want)
	}
}

func TestService_WeeklyActivity_Timezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}
	mem := memory.New()
	svc := NewService(newMockGenerator(), &mockEvaluator{}, mem, mem, lock.NewLocalLocker(), loc)
	svc.SetClock(func() time.Time { return testNow })
	ctx := context.Background()

	// 03:00 UTC is 23:00 the previous evening in New York.
	late := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	if err := mem.RecordSubmission(ctx, &domain.Submission{UserID: testUser, Subject: "python-advanced", CompletedAt: late}); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}

	got, err := svc.WeeklyActivity(ctx, testUser, svc.Today())
	if err != nil {
		t.Fatalf("WeeklyActivity() error = %v", err)
	}
	if got.Days[5].Date != "2026-03-09" || got.Days[5].ChallengesDone != 1 {
		t.Errorf("Days[5] = %+v, want the submission on 2026-03-09", got.Days[5])
	}
	if got.Days[6].ChallengesDone != 0 {
		t.Errorf("Days[6] = %+v, want no activity", got.Days[6])
	}
}

func TestService_Overview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, p := range []*domain.ProgressState{
		{UserID: testUser, Subject: "python-advanced", Level: 2, XP: 150, ChallengesCompleted: 4, ChallengesCorrect: 3},
		{UserID: testUser, Subject: "java-deep-dive", Level: 2, XP: 200, ChallengesCompleted: 6, ChallengesCorrect: 2},
	} {
		if err := f.mem.SaveProgress(ctx, p); err != nil {
			t.Fatalf("SaveProgress() error = %v", err)
		}
	}
	if err := f.mem.SaveStreak(ctx, &domain.StreakState{UserID: testUser, CurrentStreak: 3, LongestStreak: 3, LastActivityDate: today()}); err != nil {
		t.Fatalf("SaveStreak() error = %v", err)
	}

	ov, err := f.svc.Overview(ctx, testUser)
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if ov.TotalXP != 350 || ov.OverallLevel != 3 {
		t.Errorf("TotalXP = %d, OverallLevel = %d; want 350, 3", ov.TotalXP, ov.OverallLevel)
	}
	if ov.TotalCompleted != 10 || ov.TotalCorrect != 5 || ov.OverallAccuracy != 50 {
		t.Errorf("totals = %d/%d (%.1f%%), want 10/5 (50%%)", ov.TotalCompleted, ov.TotalCorrect, ov.OverallAccuracy)
	}
	if ov.Streak.CurrentStreak != 3 || !ov.Streak.IsActiveToday {
		t.Errorf("Streak = %+v", ov.Streak)
	}
	if len(ov.Subjects) != 2 {
		t.Fatalf("len(Subjects) = %d, want 2", len(ov.Subjects))
	}
	for _, sp := range ov.Subjects {
		if sp.Subject != "python-advanced" {
			continue
		}
		if sp.Name != "Python Advanced" || sp.Accuracy != 75 || sp.LevelProgress.XPInLevel != 50 {
			t.Errorf("python progress = %+v", sp)
		}
	}
}

func TestService_SubjectDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SubjectDetail(ctx, testUser, "cobol"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown subject error = %v, want ErrNotFound", err)
	}

	fresh, err := f.svc.SubjectDetail(ctx, testUser, "automation-testing")
	if err != nil {
		t.Fatalf("SubjectDetail() error = %v", err)
	}
	if fresh.Level != 1 || fresh.XP != 0 || fresh.RecommendedDifficulty != 1 || len(fresh.WeakTopics) != 0 {
		t.Errorf("fresh detail = %+v", fresh)
	}
	if fresh.Name != "Automation & Testing" {
		t.Errorf("Name = %q", fresh.Name)
	}

	f.record(t, &domain.Submission{Subject: "automation-testing", Topics: []string{"mocking", "fixtures"}, CompletedAt: testNow})
	f.record(t, &domain.Submission{Subject: "automation-testing", Topics: []string{"mocking"}, CompletedAt: testNow})
	f.record(t, &domain.Submission{Subject: "automation-testing", IsCorrect: true, Topics: []string{"ci"}, CompletedAt: testNow})

	detail, err := f.svc.SubjectDetail(ctx, testUser, "automation-testing")
	if err != nil {
		t.Fatalf("SubjectDetail() error = %v", err)
	}
	if strings.Join(detail.WeakTopics, ",") != "mocking,fixtures" {
		t.Errorf("WeakTopics = %v, want [mocking fixtures]", detail.WeakTopics)
	}
}

func TestTopFrequent(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		limit int
		want  string
	}{
		{name: "empty", items: nil, limit: 5, want: ""},
		{name: "by frequency", items: []string{"a", "b", "b", "c", "c", "c"}, limit: 5, want: "c,b,a"},
		{name: "ties by name", items: []string{"z", "y", "x"}, limit: 5, want: "x,y,z"},
		{name: "limit", items: []string{"a", "b", "c", "d", "e", "f", "f"}, limit: 5, want: "f,a,b,c,d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(topFrequent(tt.items, tt.limit), ",")
			if got != tt.want {
				t.Errorf("topFrequent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestService_NextDifficulty(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.NextDifficulty(context.Background(), testUser, "cobol"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown subject error = %v, want ErrNotFound", err)
	}
	d, err := f.svc.NextDifficulty(context.Background(), testUser, "python-advanced")
	if err != nil || d != 1 {
		t.Errorf("NextDifficulty() = %d, %v; want 1", d, err)
	}
}

func TestService_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.SetBackend(&mockBackend{available: true})
	if err := f.mem.AddToPool(ctx, storetest.Challenge("java-deep-dive", 2)); err != nil {
		t.Fatalf("AddToPool() error = %v", err)
	}

	st := f.svc.Status(ctx)
	if st.Backend != "ollama" || !st.BackendAvailable || !st.StorageOK {
		t.Errorf("Status() = %+v", st)
	}
	if st.Pool["java-deep-dive"] != 1 || st.Pool["python-advanced"] != 0 {
		t.Errorf("Pool = %v", st.Pool)
	}

	broken := newFixtureWithStore(t, func(s progression.Store) progression.Store {
		return &conflictStore{Store: s, err: errors.New("database is locked")}
	})
	st = broken.svc.Status(ctx)
	if st.StorageOK || st.StorageError == "" {
		t.Errorf("Status() with failing store = %+v", st)
	}
	if st.Backend != "" {
		t.Errorf("Backend = %q, want empty without a backend", st.Backend)
	}
}

func TestService_Streak(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Streak(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Streak() error = %v", err)
	}
	if view.CurrentStreak != 0 || view.LastActivityDate != nil {
		t.Errorf("Streak() = %+v, want empty", view)
	}
}

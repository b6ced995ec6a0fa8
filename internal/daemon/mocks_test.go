package daemon

import (
	"context"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/practice"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/google/uuid"
)

// mockPractice is a hand-written PracticeService. Each method returns err
// when set; otherwise canned data. Calls record the user and arguments.
type mockPractice struct {
	err error

	user       string
	newReq     practice.NewChallengeRequest
	submitReq  practice.SubmitRequest
	hintCur    int
	dailyCount int
	page, size int
	today      time.Time
}

func (m *mockPractice) Subjects() []domain.Subject {
	return []domain.Subject{
		{Slug: "python-advanced", Name: "Python Advanced"},
		{Slug: "java-deep-dive", Name: "Java Deep Dive"},
	}
}

func (m *mockPractice) Today() time.Time {
	return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
}

func (m *mockPractice) NewChallenge(_ context.Context, userID string, req practice.NewChallengeRequest) (*practice.ChallengeView, error) {
	m.user, m.newReq = userID, req
	if m.err != nil {
		return nil, m.err
	}
	return &practice.ChallengeView{ID: uuid.New(), Subject: req.Subject, Difficulty: 2, Hints: []string{"a", "b", "c"}}, nil
}

func (m *mockPractice) GetChallenge(_ context.Context, id uuid.UUID) (*practice.ChallengeView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &practice.ChallengeView{ID: id, Subject: "python-advanced"}, nil
}

func (m *mockPractice) Daily(_ context.Context, userID string, count int) (*practice.DailyChallenges, error) {
	m.user, m.dailyCount = userID, count
	if m.err != nil {
		return nil, m.err
	}
	return &practice.DailyChallenges{Challenges: []*practice.ChallengeView{}, TotalCount: 0}, nil
}

func (m *mockPractice) Hint(_ context.Context, id uuid.UUID, current int) (*practice.HintResult, error) {
	m.hintCur = current
	if m.err != nil {
		return nil, m.err
	}
	return &practice.HintResult{ChallengeID: id, HintNumber: current + 1, Hint: "h", HintsRemaining: 2 - current}, nil
}

func (m *mockPractice) Submit(_ context.Context, userID string, req practice.SubmitRequest) (*practice.SubmissionResult, error) {
	m.user, m.submitReq = userID, req
	if m.err != nil {
		return nil, m.err
	}
	return &practice.SubmissionResult{ChallengeID: req.ChallengeID, IsCorrect: true, XPEarned: 55, ProgressApplied: true}, nil
}

func (m *mockPractice) Overview(_ context.Context, userID string) (*practice.Overview, error) {
	m.user = userID
	if m.err != nil {
		return nil, m.err
	}
	return &practice.Overview{UserID: userID, TotalXP: 145, OverallLevel: 2}, nil
}

func (m *mockPractice) SubjectDetail(_ context.Context, userID, subject string) (*practice.SubjectDetail, error) {
	m.user = userID
	if m.err != nil {
		return nil, m.err
	}
	d := &practice.SubjectDetail{RecommendedDifficulty: 3}
	d.Subject = subject
	return d, nil
}

func (m *mockPractice) WeeklyActivity(_ context.Context, userID string, today time.Time) (*practice.WeeklyActivity, error) {
	m.user, m.today = userID, today
	if m.err != nil {
		return nil, m.err
	}
	return &practice.WeeklyActivity{}, nil
}

func (m *mockPractice) History(_ context.Context, userID string, page, pageSize int) (*practice.HistoryPage, error) {
	m.user, m.page, m.size = userID, page, pageSize
	if m.err != nil {
		return nil, m.err
	}
	return &practice.HistoryPage{Items: []practice.HistoryItem{}, Page: page, PageSize: pageSize}, nil
}

func (m *mockPractice) Streak(_ context.Context, userID string) (progression.StreakView, error) {
	m.user = userID
	if m.err != nil {
		return progression.StreakView{}, m.err
	}
	return progression.StreakView{CurrentStreak: 4}, nil
}

func (m *mockPractice) NextDifficulty(_ context.Context, userID, subject string) (int, error) {
	m.user = userID
	if m.err != nil {
		return 0, m.err
	}
	return 3, nil
}

func (m *mockPractice) Status(_ context.Context) practice.Status {
	return practice.Status{Backend: "ollama", BackendAvailable: true, StorageOK: true, Pool: map[string]int{"python-advanced": 2}}
}

package practice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/felixgeelhaar/sensei/internal/queue"
	"github.com/felixgeelhaar/sensei/internal/storage/storetest"
)

var errBackendDown = errors.New("mock: backend down")

// mockGenerator returns storetest challenges and records the requests it saw.
type mockGenerator struct {
	catalog *challenge.Catalog

	mu       sync.Mutex
	failFor  map[string]error
	requests []challenge.GenerateRequest
	adaptive []challenge.GenerateRequest
}

func newMockGenerator() *mockGenerator {
	return &mockGenerator{
		catalog: challenge.DefaultCatalog(),
		failFor: make(map[string]error),
	}
}

func (m *mockGenerator) Generate(_ context.Context, req challenge.GenerateRequest) (*domain.ChallengeSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if err := m.failFor[req.Subject]; err != nil {
		return nil, err
	}
	difficulty := req.Difficulty
	if difficulty == 0 {
		difficulty = 2
	}
	spec := storetest.Challenge(req.Subject, difficulty)
	if req.Topic != "" {
		spec.Topics = []string{req.Topic}
	}
	return spec, nil
}

func (m *mockGenerator) GenerateAdaptive(ctx context.Context, _ string, req challenge.GenerateRequest) (*domain.ChallengeSpec, error) {
	m.mu.Lock()
	m.adaptive = append(m.adaptive, req)
	m.mu.Unlock()
	return m.Generate(ctx, req)
}

func (m *mockGenerator) Catalog() *challenge.Catalog {
	return m.catalog
}

func (m *mockGenerator) lastAdaptive() challenge.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adaptive[len(m.adaptive)-1]
}

// mockEvaluator returns a fixed score.
type mockEvaluator struct {
	pct int
	err error

	mu    sync.Mutex
	calls int
}

func (m *mockEvaluator) Evaluate(_ context.Context, req challenge.EvaluateRequest) (*domain.EvaluationResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if req.UserAnswer == "" {
		return nil, domain.NewInvalidInput("answer", "must not be empty")
	}
	return &domain.EvaluationResult{
		CorrectnessPct: m.pct,
		Feedback:       "ok",
		Strengths:      []string{"clear"},
		Improvements:   []string{},
		XPAwarded:      999,
	}, nil
}

// mockPublisher collects progress events.
type mockPublisher struct {
	mu     sync.Mutex
	events []*queue.ProgressEvent
	err    error
}

func (m *mockPublisher) PublishProgressEvent(_ context.Context, event *queue.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

// mockBackend reports a fixed liveness.
type mockBackend struct {
	available bool
}

func (m *mockBackend) Name() string                     { return "ollama" }
func (m *mockBackend) IsAvailable(context.Context) bool { return m.available }

// conflictStore fails the first conflicts commits with a version conflict,
// or every commit with err.
type conflictStore struct {
	progression.Store
	conflicts int
	err       error
	commits   int
}

func (s *conflictStore) CommitSubmission(ctx context.Context, c *progression.Commit) error {
	s.commits++
	if s.err != nil {
		return s.err
	}
	if s.conflicts > 0 {
		s.conflicts--
		return domain.ErrVersionConflict
	}
	return s.Store.CommitSubmission(ctx, c)
}

func (s *conflictStore) Ping(context.Context) error {
	return s.err
}

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

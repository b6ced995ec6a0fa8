// Package practice composes challenge generation, evaluation and progression
// into the operations the daemon and the MCP server expose.
package practice

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/lock"
	"github.com/felixgeelhaar/sensei/internal/metrics"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/felixgeelhaar/sensei/internal/queue"
)

// Generator creates challenges.
type Generator interface {
	Generate(ctx context.Context, req challenge.GenerateRequest) (*domain.ChallengeSpec, error)
	GenerateAdaptive(ctx context.Context, userID string, req challenge.GenerateRequest) (*domain.ChallengeSpec, error)
	Catalog() *challenge.Catalog
}

// Evaluator grades answers.
type Evaluator interface {
	Evaluate(ctx context.Context, req challenge.EvaluateRequest) (*domain.EvaluationResult, error)
}

// EventPublisher announces applied submissions.
type EventPublisher interface {
	PublishProgressEvent(ctx context.Context, event *queue.ProgressEvent) error
}

// Backend reports inference backend liveness.
type Backend interface {
	Name() string
	IsAvailable(ctx context.Context) bool
}

// Service is the practice API.
type Service struct {
	generator  Generator
	evaluator  Evaluator
	store      progression.Store
	challenges challenge.Store
	locker     lock.Locker
	difficulty *progression.DifficultyController
	streaks    *progression.StreakTracker
	loc        *time.Location
	now        func() time.Time

	events  EventPublisher   // Optional: progress event stream
	backend Backend          // Optional: reported by Status
	metrics *metrics.Metrics // Optional
}

// NewService creates a practice service. Civil dates for streaks and weekly
// activity are taken in loc; nil means UTC.
func NewService(gen Generator, eval Evaluator, store progression.Store, challenges challenge.Store, locker lock.Locker, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		generator:  gen,
		evaluator:  eval,
		store:      store,
		challenges: challenges,
		locker:     locker,
		difficulty: progression.NewDifficultyController(store),
		streaks:    progression.NewStreakTracker(store, loc),
		loc:        loc,
		now:        time.Now,
	}
}

// SetEventPublisher enables progress events after applied submissions.
func (s *Service) SetEventPublisher(p EventPublisher) {
	s.events = p
}

// SetBackend sets the backend reported by Status.
func (s *Service) SetBackend(b Backend) {
	s.backend = b
}

// SetMetrics sets the collectors for submissions and write conflicts.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.streaks.SetClock(now)
}

// Today returns the current civil date.
func (s *Service) Today() time.Time {
	return domain.CivilDate(s.now(), s.loc)
}

// Subjects lists the catalog.
func (s *Service) Subjects() []domain.Subject {
	return s.generator.Catalog().List()
}

func (s *Service) subject(slug string) (domain.Subject, error) {
	subj, ok := s.generator.Catalog().Get(slug)
	if !ok {
		return domain.Subject{}, fmt.Errorf("subject %q: %w", slug, domain.ErrNotFound)
	}
	return subj, nil
}

// Streak returns the user's streak as seen today.
func (s *Service) Streak(ctx context.Context, userID string) (progression.StreakView, error) {
	return s.streaks.Get(ctx, userID)
}

// NextDifficulty recommends the difficulty of the user's next challenge in subject.
func (s *Service) NextDifficulty(ctx context.Context, userID, subject string) (int, error) {
	if _, err := s.subject(subject); err != nil {
		return 0, err
	}
	return s.difficulty.NextDifficulty(ctx, userID, subject)
}

// Status describes backend and storage health.
type Status struct {
	Backend          string         `json:"backend"`
	BackendAvailable bool           `json:"backend_available"`
	StorageOK        bool           `json:"storage_ok"`
	StorageError     string         `json:"storage_error,omitempty"`
	Pool             map[string]int `json:"pool"`
}

// Status checks backend liveness and storage reachability, and counts pooled
// challenges per subject.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{StorageOK: true, Pool: make(map[string]int)}
	if s.backend != nil {
		st.Backend = s.backend.Name()
		st.BackendAvailable = s.backend.IsAvailable(ctx)
	}
	if err := s.store.Ping(ctx); err != nil {
		st.StorageOK = false
		st.StorageError = err.Error()
		return st
	}
	for _, subj := range s.Subjects() {
		n, err := s.challenges.PoolSize(ctx, subj.Slug)
		if err != nil {
			continue
		}
		st.Pool[subj.Slug] = n
	}
	return st
}

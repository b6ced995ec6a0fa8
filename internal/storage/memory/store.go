// Package memory is an in-process store used by tests and by the daemon when
// no database is configured. It honors the same compare-and-swap contract as
// the SQL stores.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/google/uuid"
)

type progressKey struct {
	userID  string
	subject string
}

type pooled struct {
	id         uuid.UUID
	subject    string
	difficulty int
}

var (
	_ progression.Store = (*Store)(nil)
	_ challenge.Store   = (*Store)(nil)
)

// Store keeps all state in maps guarded by one lock.
type Store struct {
	mu          sync.RWMutex
	progress    map[progressKey]domain.ProgressState
	streaks     map[string]domain.StreakState
	submissions []domain.Submission // insertion order
	challenges  map[uuid.UUID]domain.ChallengeSpec
	pool        []pooled
}

// New creates an empty store.
func New() *Store {
	return &Store{
		progress:   make(map[progressKey]domain.ProgressState),
		streaks:    make(map[string]domain.StreakState),
		challenges: make(map[uuid.UUID]domain.ChallengeSpec),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// GetProgress returns the stored progress or domain.ErrNotFound.
func (s *Store) GetProgress(_ context.Context, userID, subject string) (*domain.ProgressState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[progressKey{userID, subject}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// SaveProgress stores state if its version matches.
func (s *Store) SaveProgress(_ context.Context, state *domain.ProgressState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProgress(state); err != nil {
		return err
	}
	s.putProgress(state)
	return nil
}

func (s *Store) checkProgress(state *domain.ProgressState) error {
	cur, ok := s.progress[progressKey{state.UserID, state.Subject}]
	if !ok && state.Version == 0 {
		return nil
	}
	if ok && cur.Version == state.Version {
		return nil
	}
	return domain.ErrVersionConflict
}

func (s *Store) putProgress(state *domain.ProgressState) {
	state.Version++
	state.UpdatedAt = time.Now().UTC()
	s.progress[progressKey{state.UserID, state.Subject}] = *state
}

// ListProgress returns a user's progress ordered by subject.
func (s *Store) ListProgress(_ context.Context, userID string) ([]*domain.ProgressState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ProgressState
	for k, p := range s.progress {
		if k.userID == userID {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// GetStreak returns the stored streak or domain.ErrNotFound.
func (s *Store) GetStreak(_ context.Context, userID string) (*domain.StreakState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.streaks[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

// SaveStreak stores state if its version matches.
func (s *Store) SaveStreak(_ context.Context, state *domain.StreakState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStreak(state); err != nil {
		return err
	}
	s.putStreak(state)
	return nil
}

func (s *Store) checkStreak(state *domain.StreakState) error {
	cur, ok := s.streaks[state.UserID]
	if !ok && state.Version == 0 {
		return nil
	}
	if ok && cur.Version == state.Version {
		return nil
	}
	return domain.ErrVersionConflict
}

func (s *Store) putStreak(state *domain.StreakState) {
	state.Version++
	s.streaks[state.UserID] = *state
}

// RecordSubmission appends a submission.
func (s *Store) RecordSubmission(_ context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putSubmission(sub)
	return nil
}

func (s *Store) putSubmission(sub *domain.Submission) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	c := *sub
	c.Topics = slices.Clone(sub.Topics)
	s.submissions = append(s.submissions, c)
}

// CommitSubmission applies progress, streak and submission together.
func (s *Store) CommitSubmission(_ context.Context, c *progression.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProgress(c.Progress); err != nil {
		return err
	}
	if err := s.checkStreak(c.Streak); err != nil {
		return err
	}
	s.putProgress(c.Progress)
	s.putStreak(c.Streak)
	s.putSubmission(c.Submission)
	return nil
}

// newestFirst returns the user's submissions, newest first, filtered by keep.
func (s *Store) newestFirst(userID string, keep func(*domain.Submission) bool) []domain.Submission {
	var out []domain.Submission
	for i := len(s.submissions) - 1; i >= 0; i-- {
		sub := s.submissions[i]
		if sub.UserID == userID && (keep == nil || keep(&sub)) {
			out = append(out, sub)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out
}

// RecentOutcomes returns up to limit outcomes in subject, newest first.
func (s *Store) RecentOutcomes(_ context.Context, userID, subject string, limit int) ([]domain.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.newestFirst(userID, func(sub *domain.Submission) bool { return sub.Subject == subject })
	out := make([]domain.OutcomeRecord, 0, min(limit, len(subs)))
	for i := 0; i < len(subs) && i < limit; i++ {
		out = append(out, subs[i].Outcome())
	}
	return out, nil
}

// ListSubmissions pages through submissions, newest first.
func (s *Store) ListSubmissions(_ context.Context, userID string, offset, limit int) ([]*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.newestFirst(userID, nil)
	if offset >= len(subs) {
		return []*domain.Submission{}, nil
	}
	end := min(offset+limit, len(subs))
	out := make([]*domain.Submission, 0, end-offset)
	for i := offset; i < end; i++ {
		sub := subs[i]
		out = append(out, &sub)
	}
	return out, nil
}

// CountSubmissions counts a user's submissions.
func (s *Store) CountSubmissions(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sub := range s.submissions {
		if sub.UserID == userID {
			n++
		}
	}
	return n, nil
}

// SubmissionsSince returns submissions at or after since, oldest first.
func (s *Store) SubmissionsSince(_ context.Context, userID string, since time.Time) ([]*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.newestFirst(userID, func(sub *domain.Submission) bool { return !sub.CompletedAt.Before(since) })
	out := make([]*domain.Submission, 0, len(subs))
	for i := len(subs) - 1; i >= 0; i-- {
		sub := subs[i]
		out = append(out, &sub)
	}
	return out, nil
}

// IncorrectTopics returns the topics of incorrect submissions in subject.
func (s *Store) IncorrectTopics(_ context.Context, userID, subject string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, sub := range s.submissions {
		if sub.UserID == userID && sub.Subject == subject && !sub.IsCorrect {
			out = append(out, sub.Topics...)
		}
	}
	return out, nil
}

// SaveChallenge stores a generated challenge.
func (s *Store) SaveChallenge(_ context.Context, spec *domain.ChallengeSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[spec.ID]; ok {
		return fmt.Errorf("challenge %s: %w", spec.ID, domain.ErrAlreadyExists)
	}
	s.challenges[spec.ID] = cloneSpec(spec)
	return nil
}

// GetChallenge returns a stored challenge or domain.ErrNotFound.
func (s *Store) GetChallenge(_ context.Context, id uuid.UUID) (*domain.ChallengeSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spec, ok := s.challenges[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cloneSpec(&spec)
	return &c, nil
}

// AddToPool stores a pre-generated challenge and makes it claimable.
func (s *Store) AddToPool(_ context.Context, spec *domain.ChallengeSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[spec.ID]; ok {
		return fmt.Errorf("challenge %s: %w", spec.ID, domain.ErrAlreadyExists)
	}
	s.challenges[spec.ID] = cloneSpec(spec)
	s.pool = append(s.pool, pooled{id: spec.ID, subject: spec.Subject, difficulty: spec.Difficulty})
	return nil
}

// ClaimFromPool removes and returns the oldest pooled challenge for subject
// at difficulty, or domain.ErrNotFound when there is none.
func (s *Store) ClaimFromPool(_ context.Context, subject string, difficulty int) (*domain.ChallengeSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.pool {
		if p.subject != subject || p.difficulty != difficulty {
			continue
		}
		s.pool = slices.Delete(s.pool, i, i+1)
		stored := s.challenges[p.id]
		spec := cloneSpec(&stored)
		return &spec, nil
	}
	return nil, domain.ErrNotFound
}

// PoolSize counts unclaimed challenges for subject.
func (s *Store) PoolSize(_ context.Context, subject string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.pool {
		if p.subject == subject {
			n++
		}
	}
	return n, nil
}

func cloneSpec(spec *domain.ChallengeSpec) domain.ChallengeSpec {
	c := *spec
	c.Hints = slices.Clone(spec.Hints)
	c.TestCases = slices.Clone(spec.TestCases)
	c.Topics = slices.Clone(spec.Topics)
	return c
}

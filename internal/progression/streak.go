package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
)

// MaxWriteAttempts bounds every progression read-modify-write loop that
// retries on domain.ErrVersionConflict.
const MaxWriteAttempts = 3

var streakMessages = map[int]string{
	0:   "Start your journey today! Every expert was once a beginner.",
	1:   "Day 1: the hardest step is done. Keep it going!",
	2:   "2 days strong! Consistency beats intensity.",
	3:   "3-day streak! You're building a habit now.",
	5:   "5 days! You're on fire. Don't break the chain!",
	7:   "A full week! You're officially committed.",
	14:  "2 weeks straight! This is becoming second nature.",
	21:  "21 days. They say it takes this long to form a habit. You did it!",
	30:  "30-day streak! You're a regular now.",
	50:  "50 days! Your dedication is inspiring.",
	100: "100-DAY STREAK! Legendary status unlocked.",
}

var streakTiers = func() []int {
	tiers := make([]int, 0, len(streakMessages))
	for k := range streakMessages {
		tiers = append(tiers, k)
	}
	sort.Ints(tiers)
	return tiers
}()

// StreakMessage returns the encouragement for the greatest tier not above streak.
func StreakMessage(streak int) string {
	msg := streakMessages[0]
	for _, tier := range streakTiers {
		if tier > streak {
			break
		}
		msg = streakMessages[tier]
	}
	return msg
}

// Advance applies activity on civil date today to state. A nil state starts
// a new streak. Activity dated before the last recorded day changes nothing.
func Advance(state *domain.StreakState, userID string, today time.Time) *domain.StreakState {
	if state == nil {
		return &domain.StreakState{
			UserID:           userID,
			CurrentStreak:    1,
			LongestStreak:    1,
			LastActivityDate: today,
		}
	}

	next := *state
	switch gap := domain.DaysBetween(state.LastActivityDate, today); {
	case gap <= 0:
	case gap == 1:
		next.CurrentStreak++
		next.LongestStreak = max(next.LongestStreak, next.CurrentStreak)
		next.LastActivityDate = today
	default:
		next.CurrentStreak = 1
		next.LastActivityDate = today
	}
	return &next
}

// EffectiveStreak is the stored streak as of today: a streak whose last
// activity is older than yesterday has lapsed and counts as 0.
func EffectiveStreak(state *domain.StreakState, today time.Time) int {
	if state == nil {
		return 0
	}
	if domain.DaysBetween(state.LastActivityDate, today) > 1 {
		return 0
	}
	return state.CurrentStreak
}

// StreakView is the read model of a user's streak.
type StreakView struct {
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date"`
	IsActiveToday    bool       `json:"is_active_today"`
	Message          string     `json:"message"`
}

// ViewStreak builds the read model without changing state.
func ViewStreak(state *domain.StreakState, today time.Time) StreakView {
	if state == nil {
		return StreakView{Message: StreakMessage(0)}
	}
	effective := EffectiveStreak(state, today)
	last := state.LastActivityDate
	return StreakView{
		CurrentStreak:    effective,
		LongestStreak:    state.LongestStreak,
		LastActivityDate: &last,
		IsActiveToday:    last.Equal(today),
		Message:          StreakMessage(effective),
	}
}

// StreakTracker reads and advances streaks in a configured timezone.
type StreakTracker struct {
	store StreakStore
	loc   *time.Location
	now   func() time.Time
}

// NewStreakTracker creates a tracker. A nil loc means UTC.
func NewStreakTracker(store StreakStore, loc *time.Location) *StreakTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakTracker{store: store, loc: loc, now: time.Now}
}

// SetClock overrides the time source.
func (t *StreakTracker) SetClock(now func() time.Time) {
	t.now = now
}

// Today returns the current civil date in the tracker's timezone.
func (t *StreakTracker) Today() time.Time {
	return domain.CivilDate(t.now(), t.loc)
}

// Load returns the stored streak, or nil if the user has none.
func (t *StreakTracker) Load(ctx context.Context, userID string) (*domain.StreakState, error) {
	state, err := t.store.GetStreak(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load streak: %w", err)
	}
	return state, nil
}

// Update records activity by userID at the instant at, counted on its civil
// date in the tracker's timezone, and returns the new state. Concurrent
// writers are resolved by retrying on version conflicts.
//
// Update writes the streak alone. A graded submission instead folds Advance
// into progression.Commit so the streak, progress and history land together.
func (t *StreakTracker) Update(ctx context.Context, userID string, at time.Time) (*domain.StreakState, error) {
	today := domain.CivilDate(at, t.loc)

	var lastErr error
	for attempt := 1; attempt <= MaxWriteAttempts; attempt++ {
		state, err := t.Load(ctx, userID)
		if err != nil {
			return nil, err
		}

		next := Advance(state, userID, today)
		if state != nil && *next == *state {
			return next, nil
		}

		lastErr = t.store.SaveStreak(ctx, next)
		if lastErr == nil {
			return next, nil
		}
		if !errors.Is(lastErr, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("save streak: %w", lastErr)
		}
		slog.Debug("streak write conflict", "user", userID, "attempt", attempt)
	}
	return nil, fmt.Errorf("save streak: %w", lastErr)
}

// Get returns the streak as seen today. It never writes: a lapsed streak is
// reported as 0 and corrected by the next Update.
func (t *StreakTracker) Get(ctx context.Context, userID string) (StreakView, error) {
	state, err := t.Load(ctx, userID)
	if err != nil {
		return StreakView{}, err
	}
	return ViewStreak(state, t.Today()), nil
}

package progression

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/sensei/internal/domain"
)

const (
	// LookbackWindow is how many recent outcomes are loaded.
	LookbackWindow = 10

	minOutcomes     = 3
	promoteWindow   = 5
	promoteAccuracy = 0.80
	demoteWindow    = 3
	demoteAccuracy  = 0.40
)

// DifficultyStore is what the controller reads.
type DifficultyStore interface {
	GetProgress(ctx context.Context, userID, subject string) (*domain.ProgressState, error)
	RecentOutcomes(ctx context.Context, userID, subject string, limit int) ([]domain.OutcomeRecord, error)
}

// DifficultyController recommends the next challenge difficulty from stored
// level and recent results.
type DifficultyController struct {
	store DifficultyStore
}

// NewDifficultyController creates a controller over store.
func NewDifficultyController(store DifficultyStore) *DifficultyController {
	return &DifficultyController{store: store}
}

// NextDifficulty returns a difficulty in [1,5]. A user with no progress in
// the subject starts at 1.
func (c *DifficultyController) NextDifficulty(ctx context.Context, userID, subject string) (int, error) {
	state, err := c.store.GetProgress(ctx, userID, subject)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.MinDifficulty, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load progress: %w", err)
	}

	outcomes, err := c.store.RecentOutcomes(ctx, userID, subject, LookbackWindow)
	if err != nil {
		return 0, fmt.Errorf("load recent outcomes: %w", err)
	}

	return Recommend(state.Level, outcomes), nil
}

// Recommend applies the adjustment rule to a level and outcomes ordered
// newest first.
func Recommend(level int, outcomes []domain.OutcomeRecord) int {
	base := max(domain.MinDifficulty, min(level, domain.MaxDifficulty))

	if len(outcomes) < minOutcomes {
		return base
	}
	if len(outcomes) >= promoteWindow && accuracy(outcomes[:promoteWindow]) > promoteAccuracy {
		return min(domain.MaxDifficulty, base+1)
	}
	if accuracy(outcomes[:demoteWindow]) < demoteAccuracy {
		return max(domain.MinDifficulty, base-1)
	}
	return base
}

func accuracy(outcomes []domain.OutcomeRecord) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	correct := 0
	for _, o := range outcomes {
		if o.IsCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(outcomes))
}

package challenge

import (
	"context"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/google/uuid"
)

// Store archives generated challenges and keeps a pool of pre-generated
// ones. Get and Claim return domain.ErrNotFound when there is nothing to return.
type Store interface {
	SaveChallenge(ctx context.Context, spec *domain.ChallengeSpec) error
	GetChallenge(ctx context.Context, id uuid.UUID) (*domain.ChallengeSpec, error)

	// AddToPool archives spec and makes it claimable.
	AddToPool(ctx context.Context, spec *domain.ChallengeSpec) error

	// ClaimFromPool removes the oldest pooled challenge for subject at
	// difficulty and returns it. A claimed challenge stays archived.
	ClaimFromPool(ctx context.Context, subject string, difficulty int) (*domain.ChallengeSpec, error)
	PoolSize(ctx context.Context, subject string) (int, error)
}

package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/metrics"
	"github.com/google/uuid"
)

// DifficultyAdvisor recommends the next difficulty for a user and subject.
type DifficultyAdvisor interface {
	NextDifficulty(ctx context.Context, userID, subject string) (int, error)
}

// GenerateRequest describes the challenge to generate. Zero values mean
// "choose for me".
type GenerateRequest struct {
	Subject        string
	Type           domain.ChallengeType
	Difficulty     int
	Topic          string
	WeakTopics     []string
	UserLevel      int
	TotalCompleted int
}

// Generator builds generation prompts, issues them and validates the result.
type Generator struct {
	issuer  Issuer
	catalog *Catalog
	advisor DifficultyAdvisor
	metrics *metrics.Metrics
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand // nil uses the global source
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRand makes topic, type and difficulty selection reproducible.
func WithRand(r *rand.Rand) GeneratorOption {
	return func(g *Generator) { g.rng = r }
}

// WithDifficultyAdvisor enables GenerateAdaptive.
func WithDifficultyAdvisor(a DifficultyAdvisor) GeneratorOption {
	return func(g *Generator) { g.advisor = a }
}

// WithMetrics records validation failures.
func WithMetrics(m *metrics.Metrics) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator for the subjects in catalog.
func NewGenerator(issuer Issuer, catalog *Catalog, opts ...GeneratorOption) *Generator {
	g := &Generator{
		issuer:  issuer,
		catalog: catalog,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Catalog returns the subjects this generator serves.
func (g *Generator) Catalog() *Catalog {
	return g.catalog
}

func (g *Generator) intN(n int) int {
	if g.rng == nil {
		return rand.IntN(n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// Generate creates a new challenge. Unset topic, type and difficulty are
// drawn uniformly; difficulty is drawn from the user's level plus or minus one.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*domain.ChallengeSpec, error) {
	subject, ok := g.catalog.Get(req.Subject)
	if !ok {
		return nil, domain.NewInvalidInput("subject", "unknown subject %q", req.Subject)
	}

	typ := req.Type
	if typ == "" {
		typ = domain.ChallengeTypes[g.intN(len(domain.ChallengeTypes))]
	} else if !typ.Valid() {
		return nil, domain.NewInvalidInput("type", "unknown challenge type %q", typ)
	}

	difficulty := req.Difficulty
	if difficulty == 0 {
		lo, hi := difficultyRange(req.UserLevel)
		difficulty = lo + g.intN(hi-lo+1)
	} else if difficulty < domain.MinDifficulty || difficulty > domain.MaxDifficulty {
		return nil, domain.NewInvalidInput("difficulty", "must be in [%d,%d], got %d", domain.MinDifficulty, domain.MaxDifficulty, difficulty)
	}

	topic := req.Topic
	if topic == "" {
		topic = subject.Topics[g.intN(len(subject.Topics))]
	}

	userLevel := max(req.UserLevel, 1)
	prompt := generationPrompt{
		Subject:        subject,
		Type:           typ,
		Difficulty:     difficulty,
		Topic:          topic,
		WeakTopics:     req.WeakTopics,
		UserLevel:      userLevel,
		TotalCompleted: req.TotalCompleted,
	}.String()

	spec, err := issueValidated(ctx, g.issuer, g.metrics, ShapeChallenge, prompt, ValidateChallenge)
	if err != nil {
		return nil, fmt.Errorf("generate %s challenge: %w", subject.Slug, err)
	}

	if spec.Difficulty != difficulty {
		slog.Debug("backend changed difficulty; keeping requested",
			"subject", subject.Slug,
			"requested", difficulty,
			"returned", spec.Difficulty,
		)
	}

	spec.ID = uuid.New()
	spec.Subject = subject.Slug
	spec.Type = typ
	spec.Difficulty = difficulty
	spec.EstimatedMinutes = domain.EstimatedMinutes(difficulty)
	spec.CreatedAt = g.now().UTC()
	if len(spec.Topics) == 0 {
		spec.Topics = []string{topic}
	}

	return spec, nil
}

// GenerateAdaptive asks the difficulty advisor for the difficulty when the
// request leaves it unset.
func (g *Generator) GenerateAdaptive(ctx context.Context, userID string, req GenerateRequest) (*domain.ChallengeSpec, error) {
	if req.Difficulty == 0 && g.advisor != nil {
		if _, ok := g.catalog.Get(req.Subject); !ok {
			return nil, domain.NewInvalidInput("subject", "unknown subject %q", req.Subject)
		}
		d, err := g.advisor.NextDifficulty(ctx, userID, req.Subject)
		if err != nil {
			return nil, fmt.Errorf("next difficulty: %w", err)
		}
		req.Difficulty = d
	}
	return g.Generate(ctx, req)
}

// difficultyRange is [level-1, level+1] clamped to the difficulty scale.
func difficultyRange(level int) (lo, hi int) {
	lo = clamp(level-1, domain.MinDifficulty, domain.MaxDifficulty)
	hi = clamp(level+1, domain.MinDifficulty, domain.MaxDifficulty)
	return lo, hi
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

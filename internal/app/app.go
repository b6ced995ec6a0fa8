// Package app constructs and wires every component from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/config"
	"github.com/felixgeelhaar/sensei/internal/llm"
	"github.com/felixgeelhaar/sensei/internal/lock"
	"github.com/felixgeelhaar/sensei/internal/metrics"
	"github.com/felixgeelhaar/sensei/internal/practice"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/felixgeelhaar/sensei/internal/queue"
	"github.com/prometheus/client_golang/prometheus"
)

// App holds the wired components.
type App struct {
	Config     *config.LocalConfig
	Metrics    *metrics.Metrics
	Registry   *llm.Registry
	Gateway    *llm.Gateway
	Generator  *challenge.Generator
	Evaluator  *challenge.Evaluator
	Storage    *Storage
	Difficulty *progression.DifficultyController
	Locker     lock.Locker
	Queue      *queue.Connection // nil when the queue is disabled
	Producer   *queue.Producer   // nil when the queue is disabled
	Practice   *practice.Service

	closers []func() error
}

// Options adjust Build for a caller.
type Options struct {
	// Dir is the sensei data directory; empty uses config.SenseiDir.
	Dir string

	// Registerer receives the metrics collectors. nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Build constructs the app. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.LocalConfig, opts Options) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	dir := opts.Dir
	if dir == "" {
		if dir, err = config.SenseiDir(); err != nil {
			return nil, fmt.Errorf("get sensei dir: %w", err)
		}
	}

	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(opts.Registerer)
	}

	// Inference
	a.Registry, err = NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Registry.Close)

	provider, err := a.Registry.Default()
	if err != nil {
		return nil, fmt.Errorf("select provider: %w", err)
	}
	a.Gateway = llm.NewGateway(provider, llm.GatewayConfig{
		Model:         cfg.Gateway.Model,
		MaxAttempts:   cfg.Gateway.MaxAttempts,
		Timeout:       cfg.Gateway.Timeout,
		HealthTimeout: cfg.Gateway.HealthTimeout,
		Temperature:   cfg.Gateway.Temperature,
		MaxTokens:     cfg.Gateway.MaxTokens,
	}, a.Metrics)

	// Persistence
	a.Storage, err = OpenStorage(ctx, cfg, dir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, a.Storage.Close)

	a.Difficulty = progression.NewDifficultyController(a.Storage.Progress)
	a.Generator = challenge.NewGenerator(a.Gateway, challenge.DefaultCatalog(),
		challenge.WithDifficultyAdvisor(a.Difficulty),
		challenge.WithMetrics(a.Metrics),
	)
	a.Evaluator = challenge.NewEvaluator(a.Gateway, a.Metrics)

	// Coordination
	if cfg.Redis.Enabled {
		rl, err := lock.NewRedisLocker(ctx, lock.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
		})
		if err != nil {
			return nil, err
		}
		a.Locker = rl
		a.closers = append(a.closers, rl.Close)
		slog.Info("using redis user lock", "addr", cfg.Redis.Addr)
	} else {
		a.Locker = lock.NewLocalLocker()
	}

	a.Practice = practice.NewService(a.Generator, a.Evaluator, a.Storage.Progress, a.Storage.Challenges, a.Locker, loc)
	a.Practice.SetBackend(a.Gateway)
	a.Practice.SetMetrics(a.Metrics)

	if cfg.Queue.Enabled {
		a.Queue, err = queue.NewConnection(cfg.Queue.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Queue.Close)
		a.Producer = queue.NewProducer(a.Queue)
		a.Practice.SetEventPublisher(a.Producer)
	}

	slog.Info("app ready",
		"provider", a.Gateway.Name(),
		"providers", a.Registry.List(),
		"storage", a.Storage.Driver,
		"queue", cfg.Queue.Enabled,
		"timezone", loc.String(),
	)
	return a, nil
}

// NewRegistry registers every enabled provider, each wrapped in the
// configured resilience layers, and selects the default.
func NewRegistry(cfg *config.LocalConfig) (*llm.Registry, error) {
	registry := llm.NewRegistry()
	resilience := llm.ResilientConfig{
		EnableCircuitBreaker: cfg.Resilience.CircuitBreaker,
		EnableBulkhead:       cfg.Resilience.Bulkhead,
		EnableRateLimit:      cfg.Resilience.RateLimit,
		MaxConcurrent:        cfg.Resilience.MaxConcurrent,
		RatePerSecond:        cfg.Resilience.RatePerSecond,
		FailureThreshold:     cfg.Resilience.FailureThreshold,
		OpenTimeout:          cfg.Resilience.OpenTimeout,
		Logger:               slog.Default(),
	}

	for name, providerCfg := range cfg.LLM.Providers {
		if !providerCfg.Enabled {
			continue
		}

		var provider llm.Provider
		switch name {
		case "claude":
			if providerCfg.APIKey == "" {
				slog.Debug("Claude provider enabled but no API key set")
				continue
			}
			provider = llm.NewClaudeProvider(llm.ClaudeConfig{
				APIKey:  providerCfg.APIKey,
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			})
		case "openai":
			if providerCfg.APIKey == "" {
				slog.Debug("OpenAI provider enabled but no API key set")
				continue
			}
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey:  providerCfg.APIKey,
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			})
		case "ollama":
			provider = llm.NewOllamaProvider(llm.OllamaConfig{
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			})
		default:
			slog.Warn("unknown LLM provider in config", "name", name)
			continue
		}

		registry.Register(name, llm.NewResilientProvider(provider, resilience))
		slog.Info("registered LLM provider", "name", name, "model", providerCfg.Model)
	}

	if len(registry.List()) == 0 {
		return nil, errors.New("no LLM provider available: enable one in config or set an API key")
	}
	if def := cfg.LLM.DefaultProvider; def != "" && def != "auto" {
		if err := registry.SetDefault(def); err != nil {
			slog.Warn("default provider not registered; falling back", "provider", def, "error", err)
		}
	}
	return registry, nil
}

// StartWorkers consumes generate jobs into the challenge pool until ctx is
// done. It requires the queue to be enabled.
func (a *App) StartWorkers(ctx context.Context) (*queue.Consumer, error) {
	if a.Queue == nil {
		return nil, errors.New("queue is not enabled")
	}
	cfg := queue.DefaultConsumerConfig()
	if a.Config.Queue.Workers > 0 {
		cfg.Workers = a.Config.Queue.Workers
	}
	consumer := queue.NewConsumer(a.Queue, a.Practice.Pregenerate, cfg)
	if err := consumer.Start(ctx); err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	return consumer, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

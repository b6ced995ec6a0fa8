package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/config"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/felixgeelhaar/sensei/internal/storage/memory"
	"github.com/felixgeelhaar/sensei/internal/storage/postgres"
	"github.com/felixgeelhaar/sensei/internal/storage/sqlite"
)

// Storage is an opened, migrated persistence backend.
type Storage struct {
	Driver        string
	Progress      progression.Store
	Challenges    challenge.Store
	SchemaVersion int

	closers []func() error
}

// Close releases the backend's connections.
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// OpenStorage opens the backend selected by cfg.Storage.Driver and applies
// pending migrations. dir is the sensei data directory.
func OpenStorage(ctx context.Context, cfg *config.LocalConfig, dir string) (*Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		store := memory.New()
		return &Storage{Driver: config.DriverMemory, Progress: store, Challenges: store}, nil

	case config.DriverPostgres:
		return openPostgres(ctx, cfg)

	case config.DriverSQLite, "":
		return openSQLite(cfg, dir)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func openSQLite(cfg *config.LocalConfig, dir string) (*Storage, error) {
	path := cfg.SQLitePath(dir)
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	version, err := db.Version()
	if err != nil {
		db.Close()
		return nil, err
	}

	store := sqlite.NewStore(db)
	slog.Info("storage ready", "driver", config.DriverSQLite, "path", path, "schema_version", version)
	return &Storage{
		Driver:        config.DriverSQLite,
		Progress:      store,
		Challenges:    store,
		SchemaVersion: version,
		closers:       []func() error{store.Close},
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.LocalConfig) (*Storage, error) {
	pgCfg := postgres.Config{
		DSN:      cfg.Storage.PostgresURL,
		MaxConns: cfg.Storage.MaxConns,
	}

	pool, err := postgres.OpenPool(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	version, err := postgres.Version(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	db, err := postgres.OpenSQL(ctx, pgCfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	progress := postgres.NewProgressRepository(pool)
	challenges := postgres.NewChallengeRepository(db)
	slog.Info("storage ready", "driver", config.DriverPostgres, "schema_version", version)
	return &Storage{
		Driver:        config.DriverPostgres,
		Progress:      progress,
		Challenges:    challenges,
		SchemaVersion: version,
		closers:       []func() error{challenges.Close, progress.Close},
	}, nil
}

package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/sensei/internal/app"
	"github.com/felixgeelhaar/sensei/internal/config"
	"github.com/felixgeelhaar/sensei/internal/practice"
)

// cmdDoctor checks the inference backend and storage.
func cmdDoctor() error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("Sensei Doctor")
	fmt.Println("=============")
	fmt.Println()

	// Redis and RabbitMQ are optional; doctor only checks what every mode needs.
	cfg.Redis.Enabled = false
	cfg.Queue.Enabled = false

	a, err := app.Build(ctx, cfg, app.Options{Dir: dir})
	if err != nil {
		fmt.Printf("✗ Setup: %v\n", err)
		return err
	}
	defer a.Close()

	st := a.Practice.Status(ctx)
	fmt.Println(formatStatus(cfg, st))

	if !st.BackendAvailable || !st.StorageOK {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("All checks passed.")
	return nil
}

func formatStatus(cfg *config.LocalConfig, st practice.Status) string {
	out := ""
	if st.BackendAvailable {
		out += fmt.Sprintf("✓ Backend: %s reachable\n", st.Backend)
	} else {
		out += fmt.Sprintf("✗ Backend: %s not reachable (is it running?)\n", st.Backend)
	}

	if st.StorageOK {
		out += fmt.Sprintf("✓ Storage: %s\n", cfg.Storage.Driver)
	} else {
		out += fmt.Sprintf("✗ Storage: %s: %s\n", cfg.Storage.Driver, st.StorageError)
	}

	subjects := make([]string, 0, len(st.Pool))
	for s := range st.Pool {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	for _, s := range subjects {
		out += fmt.Sprintf("  pool %-22s %d\n", s, st.Pool[s])
	}
	return out
}

// cmdMigrate opens the configured store, which applies pending migrations.
func cmdMigrate() error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s, err := app.OpenStorage(context.Background(), cfg, dir)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("%s schema at version %d\n", s.Driver, s.SchemaVersion)
	return nil
}

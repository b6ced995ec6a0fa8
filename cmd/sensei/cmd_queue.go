package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/felixgeelhaar/sensei/internal/app"
	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/queue"
)

var errQueueDisabled = errors.New("queue is disabled: set queue.enabled in config or RABBITMQ_URL")

// cmdWorker consumes generate jobs until interrupted.
func cmdWorker() error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Queue.Enabled {
		return errQueueDisabled
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := app.Build(ctx, cfg, app.Options{Dir: dir})
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	consumer, err := a.StartWorkers(ctx)
	if err != nil {
		return err
	}
	slog.Info("worker running", "workers", cfg.Queue.Workers)

	<-ctx.Done()
	consumer.Stop()
	return nil
}

// cmdEnqueue publishes one generate job for a subject.
func cmdEnqueue(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: sensei enqueue <subject> [count] [difficulty]")
	}
	subject := args[0]
	if _, ok := challenge.DefaultCatalog().Get(subject); !ok {
		return fmt.Errorf("unknown subject %q", subject)
	}

	count, difficulty := 1, 1
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("count must be a positive integer, got %q", args[1])
		}
		count = n
	}
	if len(args) > 2 {
		d, err := strconv.Atoi(args[2])
		if err != nil || d < 1 || d > 5 {
			return fmt.Errorf("difficulty must be in 1..5, got %q", args[2])
		}
		difficulty = d
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Queue.Enabled {
		return errQueueDisabled
	}

	conn, err := queue.NewConnection(cfg.Queue.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := signalContext()
	defer cancel()

	job := queue.NewGenerateJob(subject, difficulty, count)
	if err := queue.NewProducer(conn).PublishGenerateJob(ctx, job); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	fmt.Printf("Queued %d %s challenge(s) at difficulty %d (job %s)\n", count, subject, difficulty, job.ID)
	return nil
}

// cmdWatch prints progress events, for one user or all of them.
func cmdWatch(args []string) error {
	user := ""
	if len(args) > 0 {
		user = args[0]
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Queue.Enabled {
		return errQueueDisabled
	}

	conn, err := queue.NewConnection(cfg.Queue.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := signalContext()
	defer cancel()

	events := queue.NewEventConsumer(conn)
	events.Subscribe(user, func(e *queue.ProgressEvent) {
		fmt.Println(formatEvent(e))
	})
	if err := events.Start(ctx); err != nil {
		return err
	}
	defer events.Stop()

	<-ctx.Done()
	return nil
}

func formatEvent(e *queue.ProgressEvent) string {
	verdict := "missed"
	if e.IsCorrect {
		verdict = "solved"
	}
	line := fmt.Sprintf("%s %s %s %s (%d%%) +%d XP, total %d, level %d, streak %d",
		e.OccurredAt.Local().Format("15:04:05"), e.UserID, verdict, e.Subject,
		e.CorrectnessPct, e.XPEarned, e.TotalXP, e.Level, e.Streak)
	if e.LeveledUp {
		line += " LEVEL UP"
	}
	return line
}

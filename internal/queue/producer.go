package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// publisher is satisfied by *Connection.
type publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes generate jobs and progress events
type Producer struct {
	conn publisher
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishGenerateJob queues a pre-generation job.
func (p *Producer) PublishGenerateJob(ctx context.Context, job *GenerateJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, GenerateQueueName, job); err != nil {
		return fmt.Errorf("failed to publish generate job: %w", err)
	}

	slog.Info("published generate job",
		"job_id", job.ID,
		"subject", job.Subject,
		"difficulty", job.Difficulty,
		"count", job.Count,
	)

	return nil
}

// PublishProgressEvent announces an applied submission.
func (p *Producer) PublishProgressEvent(ctx context.Context, event *ProgressEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, ProgressQueueName, event); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}

	slog.Debug("published progress event",
		"event_id", event.ID,
		"user_id", event.UserID,
		"subject", event.Subject,
		"xp_earned", event.XPEarned,
	)

	return nil
}

// NewGenerateJob creates a job for count challenges of one subject.
func NewGenerateJob(subject string, difficulty, count int) *GenerateJob {
	if count <= 0 {
		count = 1
	}
	return &GenerateJob{
		ID:         uuid.New(),
		Subject:    subject,
		Difficulty: difficulty,
		Count:      count,
		CreatedAt:  time.Now(),
	}
}

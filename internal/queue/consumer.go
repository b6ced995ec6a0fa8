package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/sensei/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// JobHandler processes generate jobs
type JobHandler func(ctx context.Context, job *GenerateJob) error

// Consumer consumes generate jobs from the queue
type Consumer struct {
	conn       *Connection
	handler    JobHandler
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Prefetch count per worker
	Timeout  time.Duration // Default per-job timeout
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  2,
		Prefetch: 1, // Generation is slow; one in flight per worker
		Timeout:  5 * time.Minute,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler JobHandler, cfg ConsumerConfig) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		GenerateQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting generate queue consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	slog.Info("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage runs one job and settles its delivery. Malformed and
// invalid jobs are dropped; other failures are requeued once.
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var job GenerateJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		slog.Error("failed to unmarshal job",
			"worker_id", workerID,
			"error", err,
		)
		_ = msg.Reject(false)
		return
	}

	slog.Info("processing generate job",
		"worker_id", workerID,
		"job_id", job.ID,
		"subject", job.Subject,
		"difficulty", job.Difficulty,
		"count", job.Count,
	)

	jobCtx, cancel := context.WithTimeout(ctx, c.jobTimeout(&job))
	defer cancel()

	err := c.handler(jobCtx, &job)
	duration := time.Since(start)

	switch {
	case err == nil:
		slog.Info("job completed",
			"worker_id", workerID,
			"job_id", job.ID,
			"duration", duration,
		)
		if err := msg.Ack(false); err != nil {
			slog.Error("failed to ack message", "worker_id", workerID, "job_id", job.ID, "error", err)
		}

	case errors.Is(err, domain.ErrInvalidInput) || msg.Redelivered:
		slog.Error("job failed, dropping",
			"worker_id", workerID,
			"job_id", job.ID,
			"error", err,
			"redelivered", msg.Redelivered,
			"duration", duration,
		)
		_ = msg.Reject(false)

	default:
		slog.Warn("job failed, requeueing",
			"worker_id", workerID,
			"job_id", job.ID,
			"error", err,
			"duration", duration,
		)
		_ = msg.Nack(false, true)
	}
}

func (c *Consumer) jobTimeout(job *GenerateJob) time.Duration {
	if job.Timeout > 0 {
		return time.Duration(job.Timeout) * time.Second
	}
	return c.timeout
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}

// EventConsumer fans progress events out to per-user subscribers.
type EventConsumer struct {
	conn       *Connection
	handlers   map[string]EventHandler
	handlersMu sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// EventHandler handles a progress event for a subscribed user
type EventHandler func(event *ProgressEvent)

// NewEventConsumer creates an event consumer
func NewEventConsumer(conn *Connection) *EventConsumer {
	return &EventConsumer{
		conn:     conn,
		handlers: make(map[string]EventHandler),
	}
}

// Subscribe registers a handler for a user's events. The empty user
// receives every event.
func (ec *EventConsumer) Subscribe(userID string, handler EventHandler) {
	ec.handlersMu.Lock()
	defer ec.handlersMu.Unlock()
	ec.handlers[userID] = handler
}

// Unsubscribe removes a handler
func (ec *EventConsumer) Unsubscribe(userID string) {
	ec.handlersMu.Lock()
	defer ec.handlersMu.Unlock()
	delete(ec.handlers, userID)
}

// Start begins consuming events
func (ec *EventConsumer) Start(ctx context.Context) error {
	ctx, ec.cancelFunc = context.WithCancel(ctx)

	ch := ec.conn.Channel()

	msgs, err := ch.Consume(
		ProgressQueueName,
		"",    // consumer tag
		true,  // auto-ack (events are fire-and-forget)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	ec.wg.Add(1)
	go ec.consume(ctx, msgs)

	return nil
}

func (ec *EventConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer ec.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ec.dispatch(msg.Body)
		}
	}
}

func (ec *EventConsumer) dispatch(body []byte) {
	var event ProgressEvent
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Error("failed to unmarshal progress event", "error", err)
		return
	}

	ec.handlersMu.RLock()
	handler, ok := ec.handlers[event.UserID]
	all, anyOK := ec.handlers[""]
	ec.handlersMu.RUnlock()

	if ok {
		handler(&event)
	}
	if anyOK && event.UserID != "" {
		all(&event)
	}
}

// Stop stops the event consumer
func (ec *EventConsumer) Stop() {
	if ec.cancelFunc != nil {
		ec.cancelFunc()
	}
	ec.wg.Wait()
}

// Package queue carries challenge pre-generation jobs and progress events
// over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names
const (
	GenerateQueueName = "sensei.generate"
	ProgressQueueName = "sensei.progress"
)

// GenerateJob asks a worker to pre-generate challenges into the pool.
type GenerateJob struct {
	ID         uuid.UUID `json:"id"`
	Subject    string    `json:"subject"`
	Type       string    `json:"type,omitempty"`
	Difficulty int       `json:"difficulty"`
	Topic      string    `json:"topic,omitempty"`
	Count      int       `json:"count"`
	Timeout    int       `json:"timeout,omitempty"` // seconds
	CreatedAt  time.Time `json:"created_at"`
}

// ProgressEvent is published after a submission updates a user's progress.
type ProgressEvent struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"user_id"`
	Subject        string    `json:"subject"`
	ChallengeID    uuid.UUID `json:"challenge_id"`
	IsCorrect      bool      `json:"is_correct"`
	CorrectnessPct int       `json:"correctness_pct"`
	XPEarned       int       `json:"xp_earned"`
	TotalXP        int       `json:"total_xp"`
	Level          int       `json:"level"`
	LeveledUp      bool      `json:"leveled_up"`
	Streak         int       `json:"streak"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// queueSpec describes a declared queue.
type queueSpec struct {
	name string
	ttl  time.Duration
}

var declaredQueues = []queueSpec{
	{name: GenerateQueueName, ttl: 30 * time.Minute},
	{name: ProgressQueueName, ttl: 5 * time.Minute},
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection creates a new RabbitMQ connection
func NewConnection(url string) (*Connection, error) {
	c := &Connection{
		url: url,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.declareQueues(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	go c.handleReconnect()

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

func (c *Connection) declareQueues() error {
	for _, q := range declaredQueues {
		_, err := c.channel.QueueDeclare(
			q.name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			amqp.Table{
				"x-message-ttl": int32(q.ttl.Milliseconds()),
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// handleReconnect listens for connection close and attempts to reconnect
func (c *Connection) handleReconnect() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || err == nil {
		return // Normal close
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	slog.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", c.reconnects,
	)

	for i := 0; i < 10; i++ {
		c.reconnects++
		time.Sleep(reconnectBackoff(i))

		if err := c.connect(); err != nil {
			slog.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}

		slog.Info("reconnected to RabbitMQ", "attempts", i+1)
		return
	}

	slog.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

// reconnectBackoff doubles from one second, capped at 30s.
func reconnectBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	return min(time.Duration(1<<attempt)*time.Second, 30*time.Second)
}

// Channel returns the current channel (thread-safe)
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// sanitizeURL hides the password in an AMQP URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "amqp://<invalid>"
	}
	return u.Redacted()
}

package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ai-agent/internal/retry"
)

// Event is an envelope published on the bus.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher exposes a minimal contract to publish events.
type Publisher interface {
	Publish(ctx context.Context, subject string, ev Event) error
	Close() error
}

// PublishWithRetry attempts to publish with retries and exponential backoff.
func PublishWithRetry(ctx context.Context, p Publisher, subject string, ev Event, attempts int, base time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := p.Publish(ctx, subject, ev); err == nil {
			return nil
		} else if attempt == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.ExponentialBackoff(attempt, base)):
		}
	}
	return nil
}

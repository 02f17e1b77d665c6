// Package events publishes session lifecycle events to Redis Streams.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/models"
)

// asyncPublishTimeout is the context timeout for async publish operations.
const asyncPublishTimeout = 5 * time.Second

// EventType identifies a session lifecycle transition.
type EventType string

const (
	SessionCreated   EventType = "session_created"
	CartLinked       EventType = "cart_linked"
	SessionConverted EventType = "session_converted"
	SessionExpired   EventType = "session_expired"
)

// SessionEvent is the wire shape pushed onto the stream. Consumers key on
// EventType; the optional fields are populated per transition.
type SessionEvent struct {
	EventID      uuid.UUID         `json:"event_id"`
	EventType    EventType         `json:"event_type"`
	SessionToken string            `json:"session_token"`
	PageID       string            `json:"page_id"`
	SourceType   models.SourceType `json:"source_type"`
	CartID       *string           `json:"cart_id,omitempty"`
	OrderID      *string           `json:"order_id,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Publisher publishes session events to a Redis stream. A nil Publisher is a
// valid no-op so callers never have to branch on whether events are enabled.
type Publisher struct {
	client *redis.Client
	stream string
	log    logger.Logger
}

// NewPublisher creates a new event publisher.
// Returns nil if client is nil.
func NewPublisher(client *redis.Client, stream string, log logger.Logger) *Publisher {
	if client == nil {
		return nil
	}
	return &Publisher{
		client: client,
		stream: stream,
		log:    log,
	}
}

// Publish sends an event to the Redis stream.
func (p *Publisher) Publish(ctx context.Context, event SessionEvent) error {
	if p == nil || p.client == nil {
		return nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event": string(payload),
		},
	})

	if publishErr := result.Err(); publishErr != nil {
		if p.log != nil {
			p.log.Error("Failed to publish event",
				logger.String("event_type", string(event.EventType)),
				logger.String("session_token", event.SessionToken),
				logger.Error(publishErr),
			)
		}
		return fmt.Errorf("publish to stream: %w", publishErr)
	}

	if p.log != nil {
		p.log.Debug("Published session event",
			logger.String("event_type", string(event.EventType)),
			logger.String("session_token", event.SessionToken),
			logger.String("stream_id", result.Val()),
		)
	}

	return nil
}

// PublishAsync publishes an event asynchronously.
// Errors are logged but not returned; event delivery never blocks a session
// operation.
func (p *Publisher) PublishAsync(event SessionEvent) {
	if p == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncPublishTimeout)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil && p.log != nil {
			p.log.Error("Async publish failed",
				logger.String("event_type", string(event.EventType)),
				logger.String("session_token", event.SessionToken),
				logger.Error(err),
			)
		}
	}()
}

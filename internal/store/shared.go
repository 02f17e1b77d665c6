package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/models"
)

const sharedKeyPrefix = "attribution:session:"

// connectionTimeout is the timeout for verifying the Redis connection.
const connectionTimeout = 5 * time.Second

// SharedConfig configures the Redis shared tier.
type SharedConfig struct {
	Address  string
	Password string
	DB       int
	// TTL matches the session inactivity horizon: a session the shared tier
	// has forgotten is one that could no longer be resumed anyway.
	TTL time.Duration
}

// SharedTier is the cross-instance cache layer backed by Redis.
type SharedTier struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

// NewSharedTier connects to Redis and verifies the connection.
func NewSharedTier(cfg SharedConfig, log logger.Logger) (*SharedTier, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &SharedTier{
		client: client,
		ttl:    cfg.TTL,
		log:    log,
	}, nil
}

func (t *SharedTier) Name() string {
	return "shared"
}

func (t *SharedTier) Get(ctx context.Context, tok string) (*models.Session, error) {
	payload, err := t.client.Get(ctx, sharedKey(tok)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("shared get: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (t *SharedTier) Set(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := t.client.Set(ctx, sharedKey(session.Token), payload, t.ttl).Err(); err != nil {
		return fmt.Errorf("shared set: %w", err)
	}
	return nil
}

func (t *SharedTier) Invalidate(ctx context.Context, tok string) error {
	if err := t.client.Del(ctx, sharedKey(tok)).Err(); err != nil {
		return fmt.Errorf("shared invalidate: %w", err)
	}
	return nil
}

// Client exposes the underlying Redis client so the event publisher can
// share the connection.
func (t *SharedTier) Client() *redis.Client {
	return t.client
}

func (t *SharedTier) Close() error {
	return t.client.Close()
}

func sharedKey(tok string) string {
	return sharedKeyPrefix + tok
}

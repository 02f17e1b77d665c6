package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/models"
)

const edgeKeyPrefix = "session:"

// EdgeConfig configures the embedded edge tier.
type EdgeConfig struct {
	// Path is the Badger directory. Empty opens an in-memory database,
	// which is also what tests use.
	Path string
	// TTL is how long an entry stays readable. Kept short so the edge tier
	// bounds staleness; the durable tier holds truth.
	TTL time.Duration
}

// EdgeTier is the in-process cache layer backed by an embedded Badger DB.
// Entries expire on a short TTL and are invalidated on every write to the
// durable tier, so a stale edge value can never outlive a newer durable
// record by more than the TTL.
type EdgeTier struct {
	db  *badger.DB
	ttl time.Duration
	log logger.Logger
}

// NewEdgeTier opens the embedded edge cache.
func NewEdgeTier(cfg EdgeConfig, log logger.Logger) (*EdgeTier, error) {
	var opts badger.Options
	if cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create edge cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Cache entries are disposable; skip sync writes and Badger's own logging.
	opts = opts.WithSyncWrites(false).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open edge cache: %w", err)
	}

	return &EdgeTier{
		db:  db,
		ttl: cfg.TTL,
		log: log,
	}, nil
}

func (t *EdgeTier) Name() string {
	return "edge"
}

func (t *EdgeTier) Get(_ context.Context, tok string) (*models.Session, error) {
	var payload []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(edgeKey(tok))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("edge get: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		// A corrupt entry behaves like a miss; the durable tier will repopulate it.
		return nil, ErrNotFound
	}
	return &session, nil
}

func (t *EdgeTier) Set(_ context.Context, session *models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	err = t.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(edgeKey(session.Token), payload).WithTTL(t.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("edge set: %w", err)
	}
	return nil
}

func (t *EdgeTier) Invalidate(_ context.Context, tok string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(edgeKey(tok))
	})
	if err != nil {
		return fmt.Errorf("edge invalidate: %w", err)
	}
	return nil
}

// Close releases the embedded database.
func (t *EdgeTier) Close() error {
	return t.db.Close()
}

func edgeKey(tok string) []byte {
	return []byte(edgeKeyPrefix + tok)
}

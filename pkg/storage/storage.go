// Package storage provides the keyed blob store credentials and schema
// snapshots are persisted in. Values are opaque bytes; callers own the encoding.
package storage

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/ajitpratap0/formsync/pkg/config"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the key has no value
var ErrNotFound = stderrors.New("storage: key not found")

// Store is a keyed blob store
type Store interface {
	// Get returns the value for key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources
	Close() error
}

// New opens the backend selected by cfg.Backend
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "storage"), zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(), nil
	case config.BackendRedis:
		return NewRedisStore(ctx, cfg.Redis, logger)
	case config.BackendMongo:
		return NewMongoStore(ctx, cfg.Mongo, logger)
	case config.BackendMySQL:
		return NewMySQLStore(ctx, cfg.MySQL, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

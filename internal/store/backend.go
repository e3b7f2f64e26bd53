package store

import (
	"context"
	"fmt"

	"github.com/verte-zerg/keyprint/internal/model"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Backend is the storage surface shared by Store and RedisStore.
type Backend interface {
	GetProfile(ctx context.Context, userID string) (*model.KeystrokeProfile, error)
	SaveProfile(ctx context.Context, p model.KeystrokeProfile) error
	DeleteProfile(ctx context.Context, userID string) error
	ListProfiles(ctx context.Context) ([]model.KeystrokeProfile, error)
	RecordAttempt(ctx context.Context, a model.Attempt) error
	ListAttempts(ctx context.Context, userID string, limit int) ([]model.Attempt, error)
	Close() error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*RedisStore)(nil)
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string
	Redis   RedisOptions
}

// OpenBackend opens the backend named by opts.Backend. Empty means SQLite.
func OpenBackend(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		s, err := Open(opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := OpenRedis(ctx, opts.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

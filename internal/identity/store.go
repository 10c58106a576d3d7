// Package identity persists the visitor's session record — one (room ID,
// visitor token) pair per owner being chatted with — so a chat survives
// restarts of the embedding page or host process.
package identity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sirojiddin1dev/carinfopro/internal/config"
	"github.com/Sirojiddin1dev/carinfopro/internal/models"
)

// Store defines the interface for persistent session records.
// FileStore, SQLiteStore and RedisStore implement this interface.
//
// Load never surfaces malformed persisted data: a corrupt record is treated
// as absent (nil, nil) so a bad write can never wedge session startup.
type Store interface {
	Load(ctx context.Context, ownerID string) (*models.SessionRecord, error)
	Save(ctx context.Context, rec *models.SessionRecord) error
	Clear(ctx context.Context, ownerID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Open selects and initializes a backend from configuration.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := NewSQLiteStore(ctx, cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Debug().Str("path", cfg.StorePath).Msg("using sqlite identity store")
		return s, nil

	case config.StoreRedis:
		s, err := NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		logger.Debug().Msg("using redis identity store")
		return s, nil

	case config.StoreFile, "":
		s, err := NewFileStore(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		logger.Debug().Str("dir", s.Dir()).Msg("using file identity store")
		return s, nil

	default:
		return nil, fmt.Errorf("unknown identity store backend: %q", cfg.Store)
	}
}

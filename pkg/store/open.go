package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"joinguard-hq/warden/pkg/config"
)

// Supported drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config selects and configures a backend.
type Config struct {
	Driver string
	SQLite SQLiteBackendConfig
	Mongo  MongoConfig

	// Cache enables the read-through policy cache when TTL is positive.
	Cache CacheConfig
}

// ConfigFrom converts the storage section of the service config.
func ConfigFrom(cfg config.StorageConfig) Config {
	out := Config{
		Driver: cfg.Driver,
		SQLite: SQLiteBackendConfig{
			DBPath:             cfg.SQLite.Path,
			BusyTimeout:        cfg.SQLite.BusyTimeout,
			CheckpointInterval: cfg.SQLite.CheckpointInterval,
		},
		Mongo: MongoConfig{
			URI:              cfg.Mongo.URI,
			Database:         cfg.Mongo.Database,
			PolicyCollection: cfg.Mongo.PolicyCollection,
			UserCollection:   cfg.Mongo.UserCollection,
			ConnectTimeout:   cfg.Mongo.ConnectTimeout,
		},
	}
	if !cfg.Cache.Disabled {
		out.Cache = CacheConfig{
			TTL:         cfg.Cache.TTL,
			NegativeTTL: cfg.Cache.NegativeTTL,
			MaxSize:     cfg.Cache.MaxSize,
		}
	}
	return out
}

// Open creates the configured backend, wrapped in a CachedBackend when
// caching is enabled.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Driver {
	case DriverMemory:
		backend = NewMemoryBackend()
	case DriverSQLite, "":
		if dir := filepath.Dir(cfg.SQLite.DBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, newStorageError("sqlite", "mkdir", err)
			}
		}
		backend, err = NewSQLiteBackendWithConfig(cfg.SQLite)
	case DriverMongo:
		backend, err = NewMongoBackend(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Cache.TTL > 0 {
		return NewCachedBackend(backend, cfg.Cache), nil
	}
	return backend, nil
}

package config

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jpalmerr/pendingtx"
	"github.com/jpalmerr/pendingtx/pending"
	"github.com/jpalmerr/pendingtx/storage"
)

// CloseFunc releases the resources held by a backend.
type CloseFunc func(ctx context.Context) error

// OpenBackend builds the configured storage backend.
//
// A memory backend lives as long as the process and is only shared within
// it. A mongo backend connects and pings the server before returning; the
// returned CloseFunc disconnects it.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (storage.Backend, CloseFunc, error) {
	switch cfg.Backend.Type {
	case "", BackendMemory:
		return storage.NewMemoryOrigin().NewContext(), func(context.Context) error { return nil }, nil

	case BackendMongo:
		m := cfg.Backend.Mongo

		connectCtx := ctx
		if m.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithTimeout(ctx, m.ConnectTimeout.Duration())
			defer cancel()
		}

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(m.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
		}

		coll := client.Database(m.Database).Collection(m.Collection)
		backend := storage.NewMongoBackend(coll, logger)
		logger.Info("connected to MongoDB",
			"database", m.Database,
			"collection", m.Collection,
			"origin", backend.Origin(),
		)

		return backend, client.Disconnect, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}

// StoreOptions converts configuration into store options.
func StoreOptions(cfg *Config, logger *slog.Logger) []pending.Option {
	return []pending.Option{
		pending.WithKey(cfg.StorageKey),
		pending.WithLogger(logger),
	}
}

// ServiceOptions converts configuration into service options on backend.
func ServiceOptions(cfg *Config, backend storage.Backend, logger *slog.Logger) []pendingtx.Option {
	opts := []pendingtx.Option{
		pendingtx.WithBackend(backend),
		pendingtx.WithStorageKey(cfg.StorageKey),
		pendingtx.WithPort(cfg.Port),
		pendingtx.WithTitle(cfg.Title),
		pendingtx.WithLogger(logger),
	}

	if t := cfg.Tracker; t != nil {
		opts = append(opts, pendingtx.WithTracker(pendingtx.TrackerConfig{
			URLTemplate:    t.URLTemplate,
			StatusPath:     t.StatusPath,
			PendingValues:  t.PendingValues,
			Headers:        t.Headers,
			Interval:       t.Interval.Duration(),
			Timeout:        t.Timeout.Duration(),
			MaxConcurrency: t.MaxConcurrency,
		}))
	}

	return opts
}

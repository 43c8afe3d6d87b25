package pending

import (
	"errors"
	"log/slog"
)

const (
	// DefaultKey is the durable slot holding the pending list.
	DefaultKey = "stackstay_pending_bookings"

	// DefaultBusName names the signal published after every mutation.
	DefaultBusName = "stackstay_pending_bookings_updated"
)

// storeConfig holds mutable state during Store construction.
type storeConfig struct {
	key    string
	bus    *Bus
	logger *slog.Logger
}

// Option configures a [Store] during construction.
//
// Built-in options: [WithKey], [WithBus], [WithLogger].
type Option func(*storeConfig) error

// WithKey sets the durable slot key. Defaults to [DefaultKey].
//
// Returns an error if key is empty.
func WithKey(key string) Option {
	return func(cfg *storeConfig) error {
		if key == "" {
			return errors.New("key cannot be empty")
		}
		cfg.key = key
		return nil
	}
}

// WithBus sets the in-context signal shared with other stores.
//
// Stores that should observe each other's mutations within one context must
// be given the same bus and a backend view of the same context. Without this
// option each store gets a private bus.
//
// Returns an error if bus is nil.
func WithBus(bus *Bus) Option {
	return func(cfg *storeConfig) error {
		if bus == nil {
			return errors.New("bus cannot be nil")
		}
		cfg.bus = bus
		return nil
	}
}

// WithLogger sets the logger for parse failures and listener panics.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

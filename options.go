package pendingtx

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/pendingtx/pending"
	"github.com/jpalmerr/pendingtx/storage"
)

// serviceConfig holds mutable state during Service construction.
type serviceConfig struct {
	title           string
	port            int
	key             string
	backend         storage.Backend
	bus             *pending.Bus
	tracker         *TrackerConfig
	logger          *slog.Logger
	changeCallbacks []func([]pending.Booking)
}

// Option is a function that configures a [Service] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithBackend], [WithStorageKey], [WithBus], [WithPort],
// [WithTitle], [WithLogger], [WithTracker], [WithChangeCallback].
type Option func(*serviceConfig) error

// TrackerConfig enables removal of settled bookings by polling a
// transaction status API. Zero values take defaults: status path
// "tx_status", pending values ["pending"], a 30s interval, a 10s timeout
// and 4 concurrent requests.
type TrackerConfig struct {
	// URLTemplate renders the status URL of a booking, e.g.
	// "https://api.hiro.so/extended/v1/tx/{{.TxID}}". Required.
	URLTemplate string

	// StatusPath is the dot path of the status field in the JSON response.
	StatusPath string

	// Extractor, when set, reads the status from a response instead of
	// StatusPath, for status APIs that do not return JSON. An empty result
	// keeps the booking. Non-2xx responses are passed through too.
	Extractor func(body []byte, statusCode int) string

	// PendingValues are the statuses that keep a booking pending.
	PendingValues []string

	// Headers are sent with every status request.
	Headers map[string]string

	Interval       time.Duration
	Timeout        time.Duration
	MaxConcurrency int
}

// WithBackend sets where the pending list is persisted.
//
// Defaults to a context of a private [storage.MemoryOrigin].
//
// Returns an error if backend is nil.
func WithBackend(backend storage.Backend) Option {
	return func(cfg *serviceConfig) error {
		if backend == nil {
			return errors.New("backend cannot be nil")
		}
		cfg.backend = backend
		return nil
	}
}

// WithStorageKey sets the durable slot key. Defaults to [pending.DefaultKey].
//
// Returns an error if key is empty.
func WithStorageKey(key string) Option {
	return func(cfg *serviceConfig) error {
		if key == "" {
			return errors.New("storage key cannot be empty")
		}
		cfg.key = key
		return nil
	}
}

// WithBus shares a same-context signal with other stores on the same
// backend context.
//
// Returns an error if bus is nil.
func WithBus(bus *pending.Bus) Option {
	return func(cfg *serviceConfig) error {
		if bus == nil {
			return errors.New("bus cannot be nil")
		}
		cfg.bus = bus
		return nil
	}
}

// WithPort sets the HTTP port for the API and dashboard.
//
// Defaults to 8080 if not specified.
//
// Returns an error if port is not in range 1-65535.
func WithPort(port int) Option {
	return func(cfg *serviceConfig) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", port)
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets a custom title for the dashboard.
//
// An empty title uses the dashboard default.
func WithTitle(title string) Option {
	return func(cfg *serviceConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom logger for the service and its components.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTracker enables the transaction status tracker.
//
// Returns an error if the URL template is empty.
func WithTracker(tc TrackerConfig) Option {
	return func(cfg *serviceConfig) error {
		if tc.URLTemplate == "" {
			return errors.New("tracker url template cannot be empty")
		}
		cfg.tracker = &tc
		return nil
	}
}

// WithChangeCallback registers a function called with the pending list
// after every change, whichever store or context caused it.
//
// Callbacks run synchronously on a goroutine that changed the store.
// Concurrent changes are coalesced, so a callback may skip intermediate
// lists but is always called last with the current one. A panicking callback is
// recovered and logged. Can be called multiple times; callbacks run in
// registration order. A nil callback is ignored.
func WithChangeCallback(fn func([]pending.Booking)) Option {
	return func(cfg *serviceConfig) error {
		if fn != nil {
			cfg.changeCallbacks = append(cfg.changeCallbacks, fn)
		}
		return nil
	}
}

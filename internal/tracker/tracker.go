package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pendingtx/pending"
)

const (
	// DefaultStatusPath is the status field of the Hiro Stacks API.
	DefaultStatusPath = "tx_status"

	// DefaultInterval is the time between checks.
	DefaultInterval = 30 * time.Second

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxConcurrency is the number of concurrent status requests.
	DefaultMaxConcurrency = 4
)

// DefaultPendingValues lists the statuses that keep a booking pending.
var DefaultPendingValues = []string{"pending"}

// Store is the part of [pending.Store] the tracker uses.
type Store interface {
	GetAll() []pending.Booking
	Remove(ctx context.Context, txID string) error
}

// Config configures a [Tracker]. Zero values take the package defaults.
type Config struct {
	// URLTemplate is a text/template rendering the status URL of a booking,
	// e.g. "https://api.hiro.so/extended/v1/tx/{{.TxID}}". TxID is path-escaped.
	URLTemplate string

	// StatusPath is the dot path of the status field in the response.
	// Ignored when Extractor is set.
	StatusPath string

	// Extractor reads the status from a response. Defaults to a
	// [JSONFieldExtractor] on StatusPath.
	Extractor StatusExtractor

	// PendingValues are the statuses (case-insensitive) that are not terminal.
	PendingValues []string

	// Headers are sent with every request.
	Headers map[string]string

	Interval       time.Duration
	Timeout        time.Duration
	MaxConcurrency int
}

// Result is the outcome of checking one booking.
type Result struct {
	TxID string

	// Status is the extracted transaction status, empty if unknown.
	Status string

	StatusCode int
	Latency    time.Duration
	CheckedAt  time.Time

	// Removed reports whether the booking was removed from the store.
	Removed bool

	// Error is set when the status could not be fetched or the removal failed.
	Error error
}

// Tracker periodically checks every pending booking against a status API
// and removes the ones whose transaction reached a terminal status.
//
// The tracker checks immediately on start, then once per interval. Lookups
// that fail keep the booking. All lifecycle methods are safe for concurrent use.
type Tracker struct {
	store          Store
	urlTemplate    *template.Template
	extractor      StatusExtractor
	pendingValues  []string
	interval       time.Duration
	maxConcurrency int
	client         *Client
	logger         *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a [Tracker] over store.
//
// Returns an error if store is nil, the URL template is empty or invalid, or
// a duration or concurrency is negative. If logger is nil, [slog.Default] is used.
func New(store Store, cfg Config, logger *slog.Logger) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.URLTemplate == "" {
		return nil, errors.New("url template cannot be empty")
	}
	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.URLTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid url template: %w", err)
	}
	if cfg.Interval < 0 || cfg.Timeout < 0 {
		return nil, errors.New("interval and timeout cannot be negative")
	}
	if cfg.MaxConcurrency < 0 {
		return nil, errors.New("max concurrency cannot be negative")
	}

	if cfg.StatusPath == "" {
		cfg.StatusPath = DefaultStatusPath
	}
	if len(cfg.PendingValues) == 0 {
		cfg.PendingValues = DefaultPendingValues
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	extractor := cfg.Extractor
	if extractor == nil {
		extractor = JSONFieldExtractor(cfg.StatusPath)
	}

	values := make([]string, len(cfg.PendingValues))
	for i, v := range cfg.PendingValues {
		values[i] = strings.ToLower(v)
	}

	return &Tracker{
		store:          store,
		urlTemplate:    tmpl,
		extractor:      extractor,
		pendingValues:  values,
		interval:       cfg.Interval,
		maxConcurrency: cfg.MaxConcurrency,
		client:         NewClient(cfg.Headers, cfg.Timeout),
		logger:         logger,
	}, nil
}

// Start begins checking in a background goroutine.
//
// Start is idempotent; subsequent calls after the first are no-ops. If Stop
// was called before Start, Start is a no-op.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()

		t.check(ctx)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.check(ctx)
			}
		}
	}()
}

// Stop halts the tracker and waits for in-flight checks to complete.
// Stop is idempotent and safe to call before Start.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.stopped {
		t.stopped = true
		if t.cancel != nil {
			t.cancel()
		}
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.client.Close()
}

// check runs one pass and logs a summary.
func (t *Tracker) check(ctx context.Context) {
	results := t.CheckOnce(ctx)
	if len(results) == 0 {
		return
	}

	removed := 0
	for _, r := range results {
		if r.Removed {
			removed++
		}
	}
	t.logger.Debug("checked pending bookings", "checked", len(results), "removed", removed)
}

// CheckOnce checks every booking currently in the store and returns one
// [Result] per booking, in store order.
func (t *Tracker) CheckOnce(ctx context.Context) []Result {
	bookings := t.store.GetAll()
	if len(bookings) == 0 {
		return nil
	}

	results := make([]Result, len(bookings))
	jobs := make(chan int, len(bookings))

	var wg sync.WaitGroup
	for i := 0; i < min(t.maxConcurrency, len(bookings)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = t.checkBooking(ctx, bookings[idx].TxID)
			}
		}()
	}

	for i := range bookings {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// checkBooking looks up one transaction and removes its booking when the
// transaction is no longer pending.
func (t *Tracker) checkBooking(ctx context.Context, txID string) Result {
	result := Result{TxID: txID}

	target, err := t.statusURL(txID)
	if err != nil {
		result.Error = err
		result.CheckedAt = time.Now()
		t.logger.Warn("failed to build status url", "tx_id", txID, "error", err)
		return result
	}

	resp := t.client.Get(ctx, target)
	result.StatusCode = resp.StatusCode
	result.Latency = resp.Latency
	result.CheckedAt = time.Now()

	if resp.Error != nil {
		result.Error = resp.Error
		t.logger.Warn("failed to fetch transaction status", "tx_id", txID, "error", resp.Error)
		return result
	}

	status, err := t.safeExtract(resp.Body, resp.StatusCode)
	result.Status = status
	if err != nil {
		result.Error = err
		return result
	}
	if status == "" {
		t.logger.Warn("transaction status unknown", "tx_id", txID, "status_code", resp.StatusCode)
		return result
	}
	if slices.Contains(t.pendingValues, status) {
		return result
	}

	if err := t.store.Remove(ctx, txID); err != nil {
		result.Error = fmt.Errorf("failed to remove settled booking: %w", err)
		t.logger.Warn("failed to remove settled booking", "tx_id", txID, "status", status, "error", err)
		return result
	}
	result.Removed = true
	t.logger.Info("transaction settled", "tx_id", txID, "status", status)
	return result
}

// statusURL renders the URL template for txID.
func (t *Tracker) statusURL(txID string) (string, error) {
	var buf bytes.Buffer
	data := struct{ TxID string }{TxID: url.PathEscape(txID)}
	if err := t.urlTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render status url: %w", err)
	}
	return buf.String(), nil
}

// safeExtract calls the extractor with panic recovery, as it may be
// supplied by the caller.
// A panic is logged with a correlation ID and reported as an error
// carrying that ID.
func (t *Tracker) safeExtract(body []byte, statusCode int) (status string, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()

			t.logger.Error("extractor panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)

			status = ""
			err = fmt.Errorf("extractor panic (correlation_id: %s)", correlationID)
		}
	}()
	return t.extractor(body, statusCode), nil
}

package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jpalmerr/pendingtx/storage"
)

// Store is an in-memory list of pending bookings mirrored to a durable slot.
//
// Mutations write the slot first and only update in-memory state once the
// write succeeded, so [Store.GetAll] always reflects the caller's own
// mutation once it returns. Subscribers registered with [Store.Subscribe]
// are called after every change of state, whichever path caused it.
//
// Store is safe for concurrent use.
type Store struct {
	backend storage.Backend
	key     string
	bus     *Bus
	logger  *slog.Logger
	ctx     context.Context

	// opMu serializes mutations made through this store.
	opMu sync.Mutex

	mu       sync.RWMutex
	bookings []Booking

	subMu          sync.RWMutex
	listeners      []listener
	nextListenerID uint64

	// notifyMu guards the delivery state. One goroutine at a time delivers;
	// changes made meanwhile set notifyPending and are delivered by it.
	notifyMu      sync.Mutex
	notifying     bool
	notifyPending bool

	closeOnce sync.Once
	stops     []func()
}

type listener struct {
	id uint64
	fn func([]Booking)
}

// NewStore creates a [Store] on backend and loads the current slot.
//
// A missing slot starts the store empty. An unreadable or corrupt slot is
// logged and also starts the store empty. If the backend cannot deliver
// external changes, the failure is logged and the store works without
// cross-context updates.
//
// ctx bounds the store's subscriptions: when it is done the store stops
// listening, as if [Store.Close] was called. Returns an error only for a nil
// backend or an invalid option.
func NewStore(ctx context.Context, backend storage.Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}

	cfg := &storeConfig{key: DefaultKey}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := cfg.bus
	if bus == nil {
		bus = NewBus(DefaultBusName)
	}

	s := &Store{
		backend: backend,
		key:     cfg.key,
		bus:     bus,
		logger:  logger.With("key", cfg.key),
		ctx:     ctx,
	}
	s.bookings = s.load()

	stopExternal, err := backend.OnExternalChange(ctx, s.key, s.handleExternalChange)
	if err != nil {
		s.logger.Error("cross-context sync disabled", "error", err)
	} else {
		s.stops = append(s.stops, stopExternal)
	}
	s.stops = append(s.stops, bus.Subscribe(s.handleSignal))

	context.AfterFunc(ctx, s.Close)

	return s, nil
}

// load reads the initial state. Any failure yields an empty list.
func (s *Store) load() []Booking {
	raw, ok, err := s.backend.Read(s.ctx, s.key)
	if err != nil {
		s.logger.Error("failed to read pending bookings", "error", err)
		return []Booking{}
	}
	if !ok || raw == "" {
		return []Booking{}
	}

	list, err := decodeBookings(raw)
	if err != nil {
		s.logger.Error("failed to parse stored pending bookings", "error", err)
		return []Booking{}
	}
	return list
}

// Key returns the durable slot key.
func (s *Store) Key() string {
	return s.key
}

// GetAll returns a snapshot of the pending bookings in insertion order.
//
// The returned slice is a copy; modifications do not affect the store.
func (s *Store) GetAll() []Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Booking, len(s.bookings))
	copy(result, s.bookings)
	return result
}

// Contains reports whether a booking with txID is pending.
func (s *Store) Contains(txID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.indexOf(txID) >= 0
}

// indexOf must be called with mu held.
func (s *Store) indexOf(txID string) int {
	return slices.IndexFunc(s.bookings, func(b Booking) bool { return b.TxID == txID })
}

// Add appends booking to the list.
//
// If a booking with the same TxID is already pending, Add does nothing. An
// empty Status is treated as [StatusPending]. Returns an error if the booking
// is invalid (see [Booking.Validate]) or the slot cannot be written; in both
// cases the store is unchanged.
func (s *Store) Add(ctx context.Context, booking Booking) error {
	if booking.Status == "" {
		booking.Status = StatusPending
	}
	if err := booking.Validate(); err != nil {
		return err
	}

	s.opMu.Lock()
	s.mu.Lock()
	if s.indexOf(booking.TxID) >= 0 {
		s.mu.Unlock()
		s.opMu.Unlock()
		return nil
	}
	next := append(slices.Clone(s.bookings), booking)
	err := s.commit(ctx, next)
	s.mu.Unlock()
	s.opMu.Unlock()

	if err != nil {
		return err
	}
	s.announce()
	return nil
}

// Remove drops the booking with txID. Removing an unknown id still rewrites
// the unchanged list and signals the context.
func (s *Store) Remove(ctx context.Context, txID string) error {
	s.opMu.Lock()
	s.mu.Lock()
	next := slices.DeleteFunc(slices.Clone(s.bookings), func(b Booking) bool { return b.TxID == txID })
	err := s.commit(ctx, next)
	s.mu.Unlock()
	s.opMu.Unlock()

	if err != nil {
		return err
	}
	s.announce()
	return nil
}

// Clear empties the list and removes the durable slot.
//
// An empty list is written and announced first so that other stores observe
// the clear, then the slot key itself is deleted. If a booking was added
// while the clear was announced, the slot is kept.
func (s *Store) Clear(ctx context.Context) error {
	s.opMu.Lock()
	s.mu.Lock()
	err := s.commit(ctx, []Booking{})
	s.mu.Unlock()
	s.opMu.Unlock()
	if err != nil {
		return err
	}
	s.announce()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	if len(s.GetAll()) > 0 {
		return nil
	}
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to delete pending bookings: %w", err)
	}
	return nil
}

// commit persists next and makes it the current state. Must be called with
// mu held.
func (s *Store) commit(ctx context.Context, next []Booking) error {
	data, err := encodeBookings(next)
	if err != nil {
		return fmt.Errorf("failed to encode pending bookings: %w", err)
	}
	if err := s.backend.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to persist pending bookings: %w", err)
	}
	s.bookings = next
	return nil
}

// announce notifies subscribers and the other stores of the context.
func (s *Store) announce() {
	s.notifyListeners()
	s.bus.Publish()
}

// replace swaps in a list received from the slot or another context.
// Subscribers are only notified when the list actually differs.
func (s *Store) replace(list []Booking) {
	s.mu.Lock()
	if slices.Equal(s.bookings, list) {
		s.mu.Unlock()
		return
	}
	s.bookings = list
	s.mu.Unlock()

	s.notifyListeners()
}

// handleSignal re-reads the slot after a mutation in this context.
func (s *Store) handleSignal() {
	raw, ok, err := s.backend.Read(s.ctx, s.key)
	if err != nil {
		s.logger.Warn("failed to re-read pending bookings", "bus", s.bus.Name(), "error", err)
		return
	}
	if !ok || raw == "" {
		return
	}

	list, err := decodeBookings(raw)
	if err != nil {
		s.logger.Error("failed to parse pending bookings after signal", "bus", s.bus.Name(), "error", err)
		return
	}
	s.replace(list)
}

// handleExternalChange applies a write made by another context.
// Deletions are ignored; a clear is observed through the empty list written
// before the slot is removed.
func (s *Store) handleExternalChange(c storage.Change) {
	if c.Key != s.key || c.Deleted || c.NewValue == "" {
		return
	}

	list, err := decodeBookings(c.NewValue)
	if err != nil {
		s.logger.Error("failed to parse pending bookings change", "error", err)
		return
	}
	s.replace(list)
}

// Subscribe registers fn to be called with the current list after every
// change of state. Listeners run synchronously, in registration order, on a
// goroutine that changed the store. Changes made while listeners are running
// are coalesced: a listener may skip intermediate lists but always receives
// the latest one last. A listener may mutate the store.
//
// Each call receives its own copy of the list. A panicking listener is
// recovered and logged. The returned func removes the listener and is safe
// to call multiple times.
func (s *Store) Subscribe(fn func([]Booking)) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextListenerID++
	id := s.nextListenerID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			s.listeners = slices.DeleteFunc(slices.Clone(s.listeners), func(l listener) bool { return l.id == id })
		})
	}
}

// notifyListeners sends the current list to every listener.
//
// If another goroutine is already delivering, the change is left for it: it
// re-reads the list and delivers again before it stops, so the last list a
// listener sees is never older than the store's state.
func (s *Store) notifyListeners() {
	s.notifyMu.Lock()
	s.notifyPending = true
	if s.notifying {
		s.notifyMu.Unlock()
		return
	}
	s.notifying = true
	for s.notifyPending {
		s.notifyPending = false
		s.notifyMu.Unlock()
		s.deliver()
		s.notifyMu.Lock()
	}
	s.notifying = false
	s.notifyMu.Unlock()
}

// deliver makes one pass over the listeners with the list as of now.
func (s *Store) deliver() {
	s.subMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.subMu.RUnlock()

	for _, l := range listeners {
		s.invokeListenerSafe(l.fn, s.GetAll())
	}
}

// invokeListenerSafe calls a listener with panic recovery.
func (s *Store) invokeListenerSafe(fn func([]Booking), list []Booking) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pending bookings listener panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(list)
}

// Close stops listening for external changes and bus signals. Mutations
// keep working but other stores in the context are no longer observed.
// Close is idempotent.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		for _, stop := range s.stops {
			stop()
		}
	})
}

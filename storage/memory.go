package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryOrigin is an in-memory storage area shared by several contexts.
//
// MemoryOrigin plays the role of an origin's local storage: every
// [MemoryContext] created by [MemoryOrigin.NewContext] reads and writes the
// same values, and a write through one context is reported to listeners in
// every other context.
//
// Notifications are delivered asynchronously and in write order on a
// goroutine per listener. Writers never block on slow listeners; undelivered
// changes queue up until the listener catches up.
type MemoryOrigin struct {
	mu     sync.RWMutex
	values map[string]string

	subMu       sync.RWMutex
	subscribers map[*memorySubscription]struct{}
}

// NewMemoryOrigin creates an empty [MemoryOrigin].
func NewMemoryOrigin() *MemoryOrigin {
	return &MemoryOrigin{
		values:      make(map[string]string),
		subscribers: make(map[*memorySubscription]struct{}),
	}
}

// NewContext returns a new [MemoryContext] attached to the origin.
func (o *MemoryOrigin) NewContext() *MemoryContext {
	return &MemoryContext{
		origin: o,
		id:     uuid.NewString(),
	}
}

// set stores value under key and notifies other contexts. Writing the value
// already stored is not a change.
func (o *MemoryOrigin) set(source, key, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	old, exists := o.values[key]
	if exists && old == value {
		return
	}
	o.values[key] = value

	// notify under the write lock so listeners observe changes in write order
	o.notifySubscribers(source, Change{Key: key, NewValue: value, OldValue: old})
}

// remove deletes key and notifies other contexts. Removing an absent key is
// not a change.
func (o *MemoryOrigin) remove(source, key string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	old, exists := o.values[key]
	if !exists {
		return
	}
	delete(o.values, key)

	o.notifySubscribers(source, Change{Key: key, OldValue: old, Deleted: true})
}

func (o *MemoryOrigin) get(key string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	v, ok := o.values[key]
	return v, ok
}

// notifySubscribers offers the change to every listener on the key that
// belongs to a context other than source. Offers never block.
func (o *MemoryOrigin) notifySubscribers(source string, c Change) {
	o.subMu.RLock()
	defer o.subMu.RUnlock()

	for sub := range o.subscribers {
		if sub.context == source || sub.key != c.Key {
			continue
		}
		sub.offer(c)
	}
}

func (o *MemoryOrigin) subscribe(sub *memorySubscription) {
	o.subMu.Lock()
	o.subscribers[sub] = struct{}{}
	o.subMu.Unlock()
}

func (o *MemoryOrigin) unsubscribe(sub *memorySubscription) {
	o.subMu.Lock()
	delete(o.subscribers, sub)
	o.subMu.Unlock()
}

// MemoryContext is one execution context's view of a [MemoryOrigin].
//
// MemoryContext implements [Backend]. It is safe for concurrent use.
type MemoryContext struct {
	origin *MemoryOrigin
	id     string
}

// ID returns the context's unique identifier.
func (c *MemoryContext) ID() string {
	return c.id
}

// Read implements [Backend].
func (c *MemoryContext) Read(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	v, ok := c.origin.get(key)
	return v, ok, nil
}

// Write implements [Backend].
func (c *MemoryContext) Write(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	c.origin.set(c.id, key, value)
	return nil
}

// Delete implements [Backend].
func (c *MemoryContext) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	c.origin.remove(c.id, key)
	return nil
}

// OnExternalChange implements [Backend].
//
// fn is called from a dedicated goroutine, one change at a time. The
// returned cancel func is safe to call multiple times.
func (c *MemoryContext) OnExternalChange(ctx context.Context, key string, fn func(Change)) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	sub := &memorySubscription{
		context: c.id,
		key:     key,
		fn:      fn,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.origin.subscribe(sub)

	cancel := func() {
		sub.stopOnce.Do(func() {
			c.origin.unsubscribe(sub)
			close(sub.done)
		})
	}

	go sub.run(ctx)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return cancel, nil
}

// memorySubscription is a single listener registered through OnExternalChange.
type memorySubscription struct {
	context string
	key     string
	fn      func(Change)

	mu      sync.Mutex
	pending []Change

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// offer queues c and wakes the delivery goroutine.
func (s *memorySubscription) offer(c Change) {
	s.mu.Lock()
	s.pending = append(s.pending, c)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
		// delivery goroutine already has a wake-up queued
	}
}

func (s *memorySubscription) run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.wake:
			s.mu.Lock()
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()

			for _, c := range batch {
				select {
				case <-s.done:
					return
				default:
				}
				s.fn(c)
			}
		}
	}
}

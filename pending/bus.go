package pending

import "sync"

// Bus is a payload-less signal shared by the stores of one context.
//
// A store publishes on its bus after every mutation. Every store subscribed
// to the same bus then re-reads the durable slot itself. Subscribers are
// called synchronously, in registration order, from the publishing goroutine.
type Bus struct {
	name string

	mu     sync.Mutex
	nextID uint64
	subs   []busSubscriber
}

type busSubscriber struct {
	id uint64
	fn func()
}

// NewBus creates a [Bus]. The name only appears in logs.
func NewBus(name string) *Bus {
	return &Bus{name: name}
}

// Name returns the bus name.
func (b *Bus) Name() string {
	return b.name
}

// Subscribe registers fn and returns a func that removes it. The returned
// func is safe to call multiple times, including from within fn.
func (b *Bus) Subscribe(fn func()) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, busSubscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish calls every current subscriber.
func (b *Bus) Publish() {
	b.mu.Lock()
	subs := make([]busSubscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn()
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

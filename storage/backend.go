package storage

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned when an operation is called with an empty key.
var ErrEmptyKey = errors.New("storage key cannot be empty")

// Change describes a modification of a slot made by another context.
type Change struct {
	// Key is the slot that changed.
	Key string

	// NewValue is the value after the change. Empty when Deleted is true.
	NewValue string

	// OldValue is the value before the change, when the backend knows it.
	OldValue string

	// Deleted reports whether the slot was removed.
	Deleted bool
}

// Backend is a string-keyed durable store shared by several contexts.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Read returns the value stored under key. ok is false when the key is absent.
	Read(ctx context.Context, key string) (value string, ok bool, err error)

	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// OnExternalChange registers fn to be called when another context changes
	// key. Changes made through this backend are never reported to it.
	// Delivery stops when ctx is done or the returned cancel func is called.
	OnExternalChange(ctx context.Context, key string, fn func(Change)) (cancel func(), err error)
}

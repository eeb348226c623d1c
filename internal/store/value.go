// Package store provides the console's state containers. Each container is
// constructed once and handed to the components that need it.
package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when an operation targets an item that is not in
// the store.
var ErrNotFound = errors.New("item not found")

// CommitFunc persists a new state before it becomes visible. A non-nil error
// aborts the mutation and leaves the previous state in place.
type CommitFunc[T any] func(ctx context.Context, next T) error

// Value is a state cell that accepts either a replacement value (Set) or a
// function of the current value (Update). Mutations are serialized; the last
// write wins.
type Value[T any] struct {
	mu     sync.RWMutex
	value  T
	commit CommitFunc[T]
}

// NewValue creates a cell holding initial. commit may be nil.
func NewValue[T any](initial T, commit CommitFunc[T]) *Value[T] {
	return &Value[T]{value: initial, commit: commit}
}

// Get returns the current state.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set replaces the state with next.
func (v *Value[T]) Set(ctx context.Context, next T) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.commitLocked(ctx, next)
}

// Update replaces the state with fn(current). The value returned by fn is
// stored as is; nothing is merged.
func (v *Value[T]) Update(ctx context.Context, fn func(current T) T) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.commitLocked(ctx, fn(v.value))
}

func (v *Value[T]) commitLocked(ctx context.Context, next T) error {
	if v.commit != nil {
		if err := v.commit(ctx, next); err != nil {
			return err
		}
	}
	v.value = next
	return nil
}

// Package syncx provides small generic synchronization helpers.
package syncx

import "sync"

// RWGuard owns a value and only exposes it under its lock.
type RWGuard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *RWGuard[T] {
	return &RWGuard[T]{value: initial}
}

// Read runs fn under the read lock. fn must not retain or mutate v.
func (g *RWGuard[T]) Read(fn func(v *T)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(&g.value)
}

// Write runs fn under the write lock.
func (g *RWGuard[T]) Write(fn func(v *T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// Get returns a shallow copy of the value.
func (g *RWGuard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set replaces the value.
func (g *RWGuard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Swap replaces the value and returns the previous one.
func (g *RWGuard[T]) Swap(v T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.value
	g.value = v
	return old
}

// View projects the guarded value under the read lock.
func View[T, R any](g *RWGuard[T], fn func(v *T) R) R {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(&g.value)
}

// Modify mutates the guarded value under the write lock and returns fn's result.
func Modify[T, R any](g *RWGuard[T], fn func(v *T) R) R {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(&g.value)
}

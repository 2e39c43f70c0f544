// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package collection

import (
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// =============================================================================
// CACHE
// =============================================================================

// Cache is an ordered list of items keyed by ID. It is safe for concurrent use.
type Cache[T any] struct {
	mu     sync.RWMutex
	items  []T
	key    func(T) model.ID
	loaded bool
}

// NewCache creates an empty cache using key to identify items.
func NewCache[T any](key func(T) model.ID) *Cache[T] {
	return &Cache[T]{key: key}
}

// Replace sets the cache contents to items.
func (c *Cache[T]) Replace(items []T) {
	cp := append([]T(nil), items...)
	c.mu.Lock()
	c.items = cp
	c.loaded = true
	c.mu.Unlock()
}

// Reset empties the cache and marks it unloaded.
func (c *Cache[T]) Reset() {
	c.mu.Lock()
	c.items = nil
	c.loaded = false
	c.mu.Unlock()
}

// Loaded reports whether a list has succeeded since the last reset.
func (c *Cache[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Items returns a copy of the cached items in order.
func (c *Cache[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

// Len returns the number of cached items.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Get returns the item with id.
func (c *Cache[T]) Get(id model.ID) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if c.key(it) == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Prepend inserts item at the head, replacing any item with the same ID.
func (c *Cache[T]) Prepend(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.key(item)
	out := make([]T, 0, len(c.items)+1)
	out = append(out, item)
	for _, it := range c.items {
		if c.key(it) != id {
			out = append(out, it)
		}
	}
	c.items = out
}

// Patch replaces the item with the same ID in place. It reports whether
// the item was present.
func (c *Cache[T]) Patch(item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.key(item)
	for i, it := range c.items {
		if c.key(it) == id {
			c.items[i] = item
			return true
		}
	}
	return false
}

// Update applies fn to the item with id in place.
func (c *Cache[T]) Update(id model.ID, fn func(*T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.key(c.items[i]) == id {
			fn(&c.items[i])
			return true
		}
	}
	return false
}

// Remove deletes the item with id. It reports whether the item was present.
func (c *Cache[T]) Remove(id model.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, it := range c.items {
		if c.key(it) == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// =============================================================================
// FILTERING AND PAGINATION
// =============================================================================

// Filter returns the items whose text contains query, case-insensitively,
// sorted by time descending. An empty query matches everything.
func Filter[T any](items []T, query string, text func(T) string, at func(T) time.Time) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if util.FoldContains(text(it), query) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return at(out[i]).After(at(out[j]))
	})
	return out
}

// Page returns page n (0-based) of items and the total number of pages.
// Out-of-range pages are clamped.
func Page[T any](items []T, n, size int) ([]T, int) {
	if size <= 0 {
		return items, 1
	}
	pages := (len(items) + size - 1) / size
	if pages == 0 {
		return nil, 1
	}
	if n < 0 {
		n = 0
	}
	if n >= pages {
		n = pages - 1
	}
	end := (n + 1) * size
	if end > len(items) {
		end = len(items)
	}
	return items[n*size : end], pages
}

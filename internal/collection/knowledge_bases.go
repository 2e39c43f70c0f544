// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package collection

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
)

// KnowledgeBaseAPI is the backend surface used by KnowledgeBases.
type KnowledgeBaseAPI interface {
	ListKnowledgeBases(ctx context.Context) ([]model.KnowledgeBase, error)
	CreateKnowledgeBase(ctx context.Context, title string) (model.KnowledgeBase, error)
	RenameKnowledgeBase(ctx context.Context, id model.ID, title string) (model.KnowledgeBase, error)
	DeleteKnowledgeBase(ctx context.Context, id model.ID) error
}

// KnowledgeBases is the cached collection of the account's knowledge bases.
//
// Reset bumps the epoch and every local mutation bumps the generation. A
// list result is applied only if neither moved while it was in flight.
type KnowledgeBases struct {
	api      KnowledgeBaseAPI
	notifier notify.Notifier
	cache    *Cache[model.KnowledgeBase]
	group    singleflight.Group

	mu       sync.Mutex
	epoch    uint64
	gen      uint64
	loading  bool
	err      error
	onDelete []func(model.ID)
}

// NewKnowledgeBases creates an empty collection.
func NewKnowledgeBases(client KnowledgeBaseAPI, notifier notify.Notifier) *KnowledgeBases {
	return &KnowledgeBases{
		api:      client,
		notifier: notify.Or(notifier),
		cache:    NewCache(func(kb model.KnowledgeBase) model.ID { return kb.ID }),
	}
}

// OnDelete registers fn to run after a knowledge base is deleted, so
// dependents can drop selections that reference it.
func (k *KnowledgeBases) OnDelete(fn func(model.ID)) {
	k.mu.Lock()
	k.onDelete = append(k.onDelete, fn)
	k.mu.Unlock()
}

// Items returns the cached knowledge bases in cache order.
func (k *KnowledgeBases) Items() []model.KnowledgeBase {
	return k.cache.Items()
}

// Get returns a cached knowledge base.
func (k *KnowledgeBases) Get(id model.ID) (model.KnowledgeBase, bool) {
	return k.cache.Get(id)
}

// Loaded reports whether a list has succeeded.
func (k *KnowledgeBases) Loaded() bool {
	return k.cache.Loaded()
}

// Loading reports whether a list is in flight.
func (k *KnowledgeBases) Loading() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loading
}

// Err returns the last list failure, cleared by the next success.
func (k *KnowledgeBases) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}

// Reset empties the cache. Used when the session ends; lists still in
// flight for the previous account are discarded.
func (k *KnowledgeBases) Reset() {
	k.mu.Lock()
	k.epoch++
	k.gen++
	k.err = nil
	k.loading = false
	k.cache.Reset()
	k.mu.Unlock()
}

// mark returns the current epoch and generation.
func (k *KnowledgeBases) mark() (epoch, gen uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.epoch, k.gen
}

// maxListAttempts bounds re-fetches when mutations keep overlapping a list.
const maxListAttempts = 3

// apply replaces the cache with items if nothing changed since gen was
// read. A list that overlapped a mutation in the same session is fetched
// again; one that overlapped a Reset is dropped.
func (k *KnowledgeBases) apply(epoch, gen uint64, items []model.KnowledgeBase) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.epoch != epoch {
		return true
	}
	if k.gen != gen {
		return false
	}
	k.cache.Replace(items)
	return true
}

// mutate applies a local change made during epoch and bumps the
// generation so an overlapping list does not undo it. Changes that finish
// after a Reset are dropped.
func (k *KnowledgeBases) mutate(epoch uint64, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.epoch != epoch {
		return
	}
	k.gen++
	fn()
}

// Filter returns knowledge bases whose title contains query, newest first.
func (k *KnowledgeBases) Filter(query string) []model.KnowledgeBase {
	return Filter(k.cache.Items(), query,
		func(kb model.KnowledgeBase) string { return kb.Title },
		func(kb model.KnowledgeBase) time.Time { return kb.CreatedAt.Time })
}

// List fetches the knowledge bases and replaces the cache. On failure the
// previous cache is kept, Err is set, and a notice is sent. Concurrent
// calls share one request. A result that overlapped a Reset or a local
// mutation is dropped.
func (k *KnowledgeBases) List(ctx context.Context) error {
	epoch, _ := k.mark()
	k.mu.Lock()
	k.loading = true
	k.mu.Unlock()

	_, err, _ := k.group.Do("list:"+strconv.FormatUint(epoch, 10), func() (any, error) {
		for attempt := 0; attempt < maxListAttempts; attempt++ {
			e, gen := k.mark()
			if e != epoch {
				return nil, nil
			}
			items, err := k.api.ListKnowledgeBases(ctx)
			if err != nil {
				return nil, err
			}
			if k.apply(epoch, gen, items) {
				return nil, nil
			}
			logging.L().Debug("discarding stale knowledge base list", "attempt", attempt+1)
		}
		return nil, nil
	})

	k.mu.Lock()
	if k.epoch != epoch {
		k.mu.Unlock()
		return nil
	}
	k.loading = false
	k.err = err
	k.mu.Unlock()

	if err != nil {
		logging.L().Warn("failed to list knowledge bases", "error", err)
		k.notifier.Notify(notify.Error("Could not load bookshelves", err))
	}
	return err
}

// Create creates a knowledge base and inserts it at the head of the cache.
// A blank title or a duplicate reported by the backend is returned as a
// *api.FieldError on "title" and the cache is untouched.
func (k *KnowledgeBases) Create(ctx context.Context, title string) (model.KnowledgeBase, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.KnowledgeBase{}, api.NewFieldError("title", "Title is required")
	}

	epoch, _ := k.mark()
	kb, err := k.api.CreateKnowledgeBase(ctx, title)
	if err != nil {
		return model.KnowledgeBase{}, api.AsFieldError(err, "title")
	}
	k.mutate(epoch, func() { k.cache.Prepend(kb) })
	logging.L().Info("knowledge base created", "id", kb.ID)
	return kb, nil
}

// Rename renames a knowledge base and patches it in place. An unchanged
// title is a no-op that makes no request.
func (k *KnowledgeBases) Rename(ctx context.Context, id model.ID, title string) (model.KnowledgeBase, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.KnowledgeBase{}, api.NewFieldError("title", "Title is required")
	}
	current, ok := k.cache.Get(id)
	if ok && current.Title == title {
		return current, nil
	}

	epoch, _ := k.mark()
	kb, err := k.api.RenameKnowledgeBase(ctx, id, title)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			k.mutate(epoch, func() { k.cache.Remove(id) })
			return model.KnowledgeBase{}, &GoneError{Kind: "Bookshelf", Name: current.Title, Err: err}
		}
		return model.KnowledgeBase{}, api.AsFieldError(err, "title")
	}
	if kb.ID.IsZero() {
		kb = current
		kb.ID = id
		kb.Title = title
	}
	k.mutate(epoch, func() { k.cache.Patch(kb) })
	return kb, nil
}

// Delete deletes a knowledge base, removes it from the cache, and runs the
// OnDelete callbacks. A knowledge base already gone on the server is
// treated as deleted.
func (k *KnowledgeBases) Delete(ctx context.Context, id model.ID) error {
	epoch, _ := k.mark()
	if err := k.api.DeleteKnowledgeBase(ctx, id); err != nil && !errors.Is(err, api.ErrNotFound) {
		return err
	}
	k.mutate(epoch, func() { k.cache.Remove(id) })

	k.mu.Lock()
	hooks := append([]func(model.ID){}, k.onDelete...)
	k.mu.Unlock()
	for _, fn := range hooks {
		fn(id)
	}
	logging.L().Info("knowledge base deleted", "id", id)
	return nil
}

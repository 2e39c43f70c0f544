// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package association

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// =============================================================================
// STATUS
// =============================================================================

// Status classifies one knowledge base bound to a chat.
type Status string

const (
	// StatusOK means at least one document is enabled.
	StatusOK Status = "ok"
	// StatusAllDisabled means documents exist but none is enabled.
	StatusAllDisabled Status = "all-disabled"
	// StatusDeleted means the knowledge base has no documents at all.
	StatusDeleted Status = "deleted"
	// StatusMissing means the knowledge base itself no longer exists.
	StatusMissing Status = "missing-kb"
	// StatusUnavailable means its documents could not be fetched right now.
	StatusUnavailable Status = "unavailable"
)

// Messages shown for each non-ok status.
const (
	MsgAllDisabled = "All documents in this bookshelf are disabled"
	MsgDeleted     = "All documents in this bookshelf have been deleted"
	MsgMissing     = "This bookshelf no longer exists"
	MsgUnavailable = "Could not load documents for this bookshelf"
)

// Healthy reports whether the chat can draw on this knowledge base.
func (s Status) Healthy() bool {
	return s == StatusOK
}

// =============================================================================
// ASSOCIATION
// =============================================================================

// Association is one classified knowledge base.
type Association struct {
	KnowledgeBaseID model.ID
	// KnowledgeBase is nil when the id did not resolve.
	KnowledgeBase *model.KnowledgeBase
	Status        Status
	Enabled       []model.Document
	Disabled      []model.Document
	// Err is the fetch failure behind StatusUnavailable.
	Err error
}

// Title returns the knowledge base title, or a placeholder naming the id.
func (a Association) Title() string {
	if a.KnowledgeBase != nil {
		return a.KnowledgeBase.Title
	}
	return fmt.Sprintf("Bookshelf #%s", a.KnowledgeBaseID)
}

// Total is the number of documents in the knowledge base.
func (a Association) Total() int {
	return len(a.Enabled) + len(a.Disabled)
}

// Message is the user-visible explanation for the status.
func (a Association) Message() string {
	switch a.Status {
	case StatusOK:
		return fmt.Sprintf("%d of %d documents enabled", len(a.Enabled), a.Total())
	case StatusAllDisabled:
		return MsgAllDisabled
	case StatusDeleted:
		return MsgDeleted
	case StatusMissing:
		return MsgMissing
	}
	return MsgUnavailable
}

// EnabledNames lists the enabled document names.
func (a Association) EnabledNames() []string {
	names := make([]string, len(a.Enabled))
	for i, d := range a.Enabled {
		names[i] = d.Name
	}
	return names
}

func classify(kb model.KnowledgeBase, docs []model.Document) Association {
	a := Association{KnowledgeBaseID: kb.ID, KnowledgeBase: &kb}
	for _, d := range docs {
		if d.Enabled {
			a.Enabled = append(a.Enabled, d)
		} else {
			a.Disabled = append(a.Disabled, d)
		}
	}
	switch {
	case len(a.Enabled) > 0:
		a.Status = StatusOK
	case len(a.Disabled) > 0:
		a.Status = StatusAllDisabled
	default:
		a.Status = StatusDeleted
	}
	return a
}

// =============================================================================
// RESOLVER
// =============================================================================

// Backend is the read-only API surface the resolver needs.
type Backend interface {
	ListKnowledgeBases(ctx context.Context) ([]model.KnowledgeBase, error)
	ListDocuments(ctx context.Context, kbID model.ID) ([]model.Document, error)
}

// DefaultConcurrency bounds parallel document fetches.
const DefaultConcurrency = 4

// Resolver classifies the knowledge bases a chat is bound to.
type Resolver struct {
	api         Backend
	concurrency int
}

// NewResolver creates a resolver over client.
func NewResolver(client Backend) *Resolver {
	return &Resolver{api: client, concurrency: DefaultConcurrency}
}

// WithConcurrency sets the number of parallel document fetches.
func (r *Resolver) WithConcurrency(n int) *Resolver {
	if n > 0 {
		r.concurrency = n
	}
	return r
}

// Resolve returns one Association per id, in input order. Only a failure
// to list the knowledge bases themselves is returned as an error; per
// bookshelf failures are reported through StatusUnavailable.
func (r *Resolver) Resolve(ctx context.Context, ids []model.ID) ([]Association, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	kbs, err := r.api.ListKnowledgeBases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}
	byID := make(map[model.ID]model.KnowledgeBase, len(kbs))
	for _, kb := range kbs {
		byID[kb.ID] = kb
	}

	out := make([]Association, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, id := range ids {
		i := i
		kb, ok := byID[id]
		if !ok {
			out[i] = Association{KnowledgeBaseID: id, Status: StatusMissing}
			continue
		}
		g.Go(func() error {
			out[i] = r.resolveOne(gctx, kb)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, kb model.KnowledgeBase) Association {
	docs, err := r.api.ListDocuments(ctx, kb.ID)
	switch {
	case err == nil:
		return classify(kb, docs)
	case errors.Is(err, api.ErrNotFound):
		// Deleted between the two requests.
		return Association{KnowledgeBaseID: kb.ID, Status: StatusMissing}
	default:
		logging.L().Warn("association fetch failed", "kb", kb.ID, "error", err)
		return Association{KnowledgeBaseID: kb.ID, KnowledgeBase: &kb, Status: StatusUnavailable, Err: err}
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View keeps the association panel of the chat screen. Results resolved for
// a chat that is no longer displayed are dropped.
type View struct {
	resolver *Resolver

	mu      sync.Mutex
	chatID  model.ID
	gen     uint64
	items   []Association
	loading bool
	err     error
}

// NewView creates a view over resolver.
func NewView(resolver *Resolver) *View {
	return &View{resolver: resolver}
}

// Load resolves the associations of chat and applies them if chat is still
// the displayed one. It reports whether the result was applied.
func (v *View) Load(ctx context.Context, chat model.Chat) (bool, error) {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	if v.chatID != chat.ID {
		v.items = nil
	}
	v.chatID = chat.ID
	v.loading = true
	v.err = nil
	v.mu.Unlock()

	items, err := v.resolver.Resolve(ctx, chat.KnowledgeBaseIDs)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return false, err
	}
	v.loading = false
	v.err = err
	if err == nil {
		v.items = items
	}
	return true, err
}

// Clear forgets the displayed chat and drops pending results.
func (v *View) Clear() {
	v.mu.Lock()
	v.gen++
	v.chatID = ""
	v.items = nil
	v.loading = false
	v.err = nil
	v.mu.Unlock()
}

// ChatID is the chat whose associations are displayed.
func (v *View) ChatID() model.ID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.chatID
}

// Items returns the current associations.
func (v *View) Items() []Association {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Association(nil), v.items...)
}

// Loading reports whether a resolution is pending for the displayed chat.
func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// Err is the last resolution failure for the displayed chat.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package collection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
)

// DocumentAPI is the backend surface used by Documents.
type DocumentAPI interface {
	ListDocuments(ctx context.Context, kbID model.ID) ([]model.Document, error)
	RenameDocument(ctx context.Context, kbID, docID model.ID, name string) (model.Document, error)
	DeleteDocument(ctx context.Context, kbID, docID model.ID) error
	ToggleDocument(ctx context.Context, kbID, docID model.ID, enabled *bool) (model.Document, error)
	UploadDocument(ctx context.Context, kbID model.ID, filename string, r io.Reader) (model.Document, error)
	DownloadDocument(ctx context.Context, kbID, docID model.ID, fallbackName string) (*api.Download, error)
	StartParsing(ctx context.Context, kbID, docID model.ID) (api.ParseState, error)
	ParsingStatus(ctx context.Context, kbID, docID model.ID) (api.ParseState, error)
	ListParsedVersions(ctx context.Context, kbID, docID model.ID) ([]model.ParsedVersion, error)
	ParsedContent(ctx context.Context, kbID, docID, parsedID model.ID) (string, error)
}

// Limits bounds uploads and bulk requests.
type Limits struct {
	// MaxUploadBytes is the largest file accepted for upload.
	MaxUploadBytes int64
	// Concurrency bounds parallel uploads and bulk toggles.
	Concurrency int
}

// DefaultLimits returns a 20 MB upload limit and three parallel requests.
func DefaultLimits() Limits {
	return Limits{MaxUploadBytes: 20 * 1024 * 1024, Concurrency: 3}
}

// Documents is the cached document list of the selected knowledge base.
// Switching knowledge base with Use bumps a generation; results that
// arrive for an earlier generation are discarded.
type Documents struct {
	api      DocumentAPI
	notifier notify.Notifier
	limits   Limits
	cache    *Cache[model.Document]

	mu      sync.Mutex
	kbID    model.ID
	gen     uint64
	loading bool
	err     error
}

// NewDocuments creates a collection with no knowledge base selected.
func NewDocuments(client DocumentAPI, notifier notify.Notifier, limits Limits) *Documents {
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = DefaultLimits().MaxUploadBytes
	}
	if limits.Concurrency <= 0 {
		limits.Concurrency = 1
	}
	return &Documents{
		api:      client,
		notifier: notify.Or(notifier),
		limits:   limits,
		cache:    NewCache(func(d model.Document) model.ID { return d.ID }),
	}
}

// Use selects the knowledge base whose documents the collection holds.
// Selecting a different one empties the cache.
func (d *Documents) Use(kbID model.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.kbID == kbID {
		return
	}
	d.kbID = kbID
	d.gen++
	d.err = nil
	d.loading = false
	d.cache.Reset()
}

// KnowledgeBaseID returns the selected knowledge base.
func (d *Documents) KnowledgeBaseID() model.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kbID
}

// DropKnowledgeBase deselects kbID if it is selected. It is the cascade
// target for KnowledgeBases.OnDelete.
func (d *Documents) DropKnowledgeBase(kbID model.ID) {
	if d.KnowledgeBaseID() == kbID {
		d.Use("")
	}
}

// Limits returns the upload limits.
func (d *Documents) Limits() Limits {
	return d.limits
}

// Items returns the cached documents.
func (d *Documents) Items() []model.Document {
	return d.cache.Items()
}

// Get returns a cached document.
func (d *Documents) Get(id model.ID) (model.Document, bool) {
	return d.cache.Get(id)
}

// Loaded reports whether the selected knowledge base has been listed.
func (d *Documents) Loaded() bool {
	return d.cache.Loaded()
}

// Loading reports whether a list is in flight.
func (d *Documents) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

// Err returns the last list failure.
func (d *Documents) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Filter returns documents whose name contains query, newest upload first.
func (d *Documents) Filter(query string) []model.Document {
	return Filter(d.cache.Items(), query,
		func(doc model.Document) string { return doc.Name },
		func(doc model.Document) time.Time { return doc.UploadedAt.Time })
}

// scope captures the selected knowledge base and generation.
func (d *Documents) scope() (model.ID, uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.kbID.IsZero() {
		return "", 0, ErrNoKnowledgeBase
	}
	return d.kbID, d.gen, nil
}

// current reports whether gen is still the live generation.
func (d *Documents) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen == gen
}

// =============================================================================
// LIST / RENAME / DELETE
// =============================================================================

// List fetches the documents of the selected knowledge base and replaces
// the cache. A result for a knowledge base that is no longer selected is
// dropped.
func (d *Documents) List(ctx context.Context) error {
	kbID, gen, err := d.scope()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.loading = true
	d.mu.Unlock()

	items, err := d.api.ListDocuments(ctx, kbID)

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return nil
	}
	d.loading = false
	d.err = err
	d.mu.Unlock()

	if err != nil {
		logging.L().Warn("failed to list documents", "kb", kbID, "error", err)
		d.notifier.Notify(notify.Error("Could not load documents", err))
		return err
	}
	d.cache.Replace(items)
	return nil
}

// Rename renames a document in place. An unchanged name makes no request.
// A document deleted elsewhere is removed from the cache and reported as
// a *GoneError.
func (d *Documents) Rename(ctx context.Context, id model.ID, name string) (model.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Document{}, api.NewFieldError("name", "Name is required")
	}
	kbID, gen, err := d.scope()
	if err != nil {
		return model.Document{}, err
	}
	current, ok := d.cache.Get(id)
	if ok && current.Name == name {
		return current, nil
	}

	doc, err := d.api.RenameDocument(ctx, kbID, id, name)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			if d.current(gen) {
				d.cache.Remove(id)
			}
			return model.Document{}, &GoneError{Kind: "Document", Name: current.Name, Err: err}
		}
		return model.Document{}, api.AsFieldError(err, "name")
	}
	doc = fillDocument(doc, current, id, kbID)
	doc.Name = name
	if d.current(gen) {
		d.cache.Patch(doc)
	}
	return doc, nil
}

// Delete deletes a document. A document already gone on the server is
// treated as deleted.
func (d *Documents) Delete(ctx context.Context, id model.ID) error {
	kbID, gen, err := d.scope()
	if err != nil {
		return err
	}
	if err := d.api.DeleteDocument(ctx, kbID, id); err != nil && !errors.Is(err, api.ErrNotFound) {
		return err
	}
	if d.current(gen) {
		d.cache.Remove(id)
	}
	return nil
}

// BulkDelete deletes each document independently. Successful deletions
// stay applied when others fail.
func (d *Documents) BulkDelete(ctx context.Context, ids []model.ID) BulkReport {
	return d.bulk(ctx, ids, func(ctx context.Context, id model.ID) (bool, error) {
		return true, d.Delete(ctx, id)
	})
}

// =============================================================================
// ENABLEMENT
// =============================================================================

// Toggle flips one document's enabled flag. The explicit target is sent so
// a repeated request cannot flip it back.
func (d *Documents) Toggle(ctx context.Context, id model.ID) (model.Document, error) {
	current, ok := d.cache.Get(id)
	if !ok {
		return model.Document{}, &GoneError{Kind: "Document", Err: api.ErrNotFound}
	}
	return d.setEnabled(ctx, current, !current.Enabled)
}

// SetEnabled sets one document's enabled flag. A document already in the
// target state makes no request.
func (d *Documents) SetEnabled(ctx context.Context, id model.ID, enabled bool) (model.Document, error) {
	current, ok := d.cache.Get(id)
	if !ok {
		return model.Document{}, &GoneError{Kind: "Document", Err: api.ErrNotFound}
	}
	if current.Enabled == enabled {
		return current, nil
	}
	return d.setEnabled(ctx, current, enabled)
}

func (d *Documents) setEnabled(ctx context.Context, current model.Document, enabled bool) (model.Document, error) {
	kbID, gen, err := d.scope()
	if err != nil {
		return model.Document{}, err
	}
	doc, err := d.api.ToggleDocument(ctx, kbID, current.ID, &enabled)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			if d.current(gen) {
				d.cache.Remove(current.ID)
			}
			return model.Document{}, &GoneError{Kind: "Document", Name: current.Name, Err: err}
		}
		return model.Document{}, err
	}
	doc = fillDocument(doc, current, current.ID, kbID)
	doc.Enabled = enabled
	if d.current(gen) {
		d.cache.Patch(doc)
	}
	return doc, nil
}

// BulkSetEnabled sets the enabled flag on every listed document. Items
// already in the target state are skipped without a request. Failures are
// reported per item and never roll back the items that succeeded.
func (d *Documents) BulkSetEnabled(ctx context.Context, ids []model.ID, enabled bool) BulkReport {
	return d.bulk(ctx, ids, func(ctx context.Context, id model.ID) (bool, error) {
		current, ok := d.cache.Get(id)
		if !ok {
			return true, &GoneError{Kind: "Document", Err: api.ErrNotFound}
		}
		if current.Enabled == enabled {
			return false, nil
		}
		_, err := d.setEnabled(ctx, current, enabled)
		return true, err
	})
}

// bulk runs op for each id with bounded concurrency. op reports whether it
// acted; false means the item was skipped.
func (d *Documents) bulk(ctx context.Context, ids []model.ID, op func(context.Context, model.ID) (bool, error)) BulkReport {
	results := make([]BulkItem, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limits.Concurrency)
	for i, id := range ids {
		i, id := i, id
		name := ""
		if doc, ok := d.cache.Get(id); ok {
			name = doc.Name
		}
		g.Go(func() error {
			acted, err := op(gctx, id)
			results[i] = BulkItem{ID: id, Name: name, Skipped: !acted && err == nil, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	report := BulkReport{Items: results}
	if report.Failed() > 0 {
		d.notifier.Notify(notify.Notice{
			Level:   notify.LevelError,
			Title:   "Some documents could not be updated",
			Message: report.Summary(),
			Err:     report.Err(),
		})
	}
	return report
}

// BulkItem is the outcome for one item of a bulk operation.
type BulkItem struct {
	ID      model.ID
	Name    string
	Skipped bool
	Err     error
}

// BulkReport aggregates per-item outcomes in input order.
type BulkReport struct {
	Items []BulkItem
}

// Succeeded counts items that were changed.
func (r BulkReport) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if !it.Skipped && it.Err == nil {
			n++
		}
	}
	return n
}

// Skipped counts items that were already in the target state.
func (r BulkReport) Skipped() int {
	n := 0
	for _, it := range r.Items {
		if it.Skipped {
			n++
		}
	}
	return n
}

// Failed counts items that failed.
func (r BulkReport) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// Err joins the per-item failures, nil when everything succeeded.
func (r BulkReport) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Err != nil {
			label := it.Name
			if label == "" {
				label = it.ID.String()
			}
			errs = append(errs, fmt.Errorf("%s: %w", label, it.Err))
		}
	}
	return errors.Join(errs...)
}

// Summary renders the counts, e.g. "2 updated, 1 unchanged, 1 failed".
func (r BulkReport) Summary() string {
	parts := []string{fmt.Sprintf("%d updated", r.Succeeded())}
	if s := r.Skipped(); s > 0 {
		parts = append(parts, fmt.Sprintf("%d unchanged", s))
	}
	if f := r.Failed(); f > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", f))
	}
	return strings.Join(parts, ", ")
}

// fillDocument completes a partial backend response from the cached copy.
func fillDocument(doc, current model.Document, id, kbID model.ID) model.Document {
	if doc.ID.IsZero() {
		merged := current
		merged.ID = id
		doc = merged
	}
	if doc.KnowledgeBaseID.IsZero() {
		doc.KnowledgeBaseID = kbID
	}
	if doc.Name == "" {
		doc.Name = current.Name
	}
	if doc.ParsingStatus == "" {
		doc.ParsingStatus = current.ParsingStatus
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = current.UploadedAt
	}
	if doc.Size == 0 {
		doc.Size = current.Size
	}
	return doc
}

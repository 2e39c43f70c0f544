// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package collection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// =============================================================================
// PARSING
// =============================================================================

// StartParsing starts or retries ingestion of a document. This is the only
// operation that retries work on the user's behalf.
func (d *Documents) StartParsing(ctx context.Context, id model.ID) (model.Document, error) {
	kbID, gen, err := d.scope()
	if err != nil {
		return model.Document{}, err
	}
	state, err := d.api.StartParsing(ctx, kbID, id)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			current, _ := d.cache.Get(id)
			if d.current(gen) {
				d.cache.Remove(id)
			}
			return model.Document{}, &GoneError{Kind: "Document", Name: current.Name, Err: err}
		}
		return model.Document{}, err
	}
	return d.applyParseState(id, gen, state), nil
}

// WatchParsing polls the parse status of a document every interval while it
// is pending or processing, patching the cache and calling fn on each
// change. It returns nil once the status is terminal, ctx.Err() when
// cancelled, or the first poll error.
func (d *Documents) WatchParsing(ctx context.Context, id model.ID, interval time.Duration, fn func(model.Document)) error {
	kbID, gen, err := d.scope()
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	last, _ := d.cache.Get(id)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := d.api.ParsingStatus(ctx, kbID, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.L().Warn("parse status poll failed", "doc", id, "error", err)
			return err
		}
		if !d.current(gen) {
			return nil
		}

		doc := d.applyParseState(id, gen, state)
		if doc.ParsingStatus != last.ParsingStatus || doc.Pages() != last.Pages() {
			last = doc
			if fn != nil {
				fn(doc)
			}
		}
		if state.Status.IsTerminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ParsingInFlight returns the cached documents that are pending or processing.
func (d *Documents) ParsingInFlight() []model.Document {
	var out []model.Document
	for _, doc := range d.cache.Items() {
		if !doc.ParsingStatus.IsTerminal() {
			out = append(out, doc)
		}
	}
	return out
}

func (d *Documents) applyParseState(id model.ID, gen uint64, state api.ParseState) model.Document {
	var doc model.Document
	apply := func(cur *model.Document) {
		cur.ParsingStatus = state.Status
		if state.ParsedPages != nil {
			pages := *state.ParsedPages
			cur.ParsedPages = &pages
		}
		doc = *cur
	}
	if !d.current(gen) || !d.cache.Update(id, apply) {
		doc = model.Document{ID: id, ParsingStatus: state.Status, ParsedPages: state.ParsedPages}
	}
	return doc
}

// =============================================================================
// DOWNLOAD
// =============================================================================

// Open starts a download of the original file. The caller closes Body.
func (d *Documents) Open(ctx context.Context, id model.ID) (*api.Download, error) {
	kbID, _, err := d.scope()
	if err != nil {
		return nil, err
	}
	current, _ := d.cache.Get(id)
	dl, err := d.api.DownloadDocument(ctx, kbID, id, current.Name)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, &GoneError{Kind: "Document", Name: current.Name, Err: err}
		}
		return nil, err
	}
	return dl, nil
}

// ParsedVersions lists the server's stored parses of a document, newest
// first. A document that was never parsed returns an empty slice.
func (d *Documents) ParsedVersions(ctx context.Context, id model.ID) ([]model.ParsedVersion, error) {
	kbID, _, err := d.scope()
	if err != nil {
		return nil, err
	}
	versions, err := d.api.ListParsedVersions(ctx, kbID, id)
	if err != nil {
		return nil, d.gone(id, err)
	}
	return versions, nil
}

// ParsedContent returns the extracted text of one parsed version.
func (d *Documents) ParsedContent(ctx context.Context, id, parsedID model.ID) (string, error) {
	kbID, _, err := d.scope()
	if err != nil {
		return "", err
	}
	content, err := d.api.ParsedContent(ctx, kbID, id, parsedID)
	if err != nil {
		return "", d.gone(id, err)
	}
	return content, nil
}

// gone wraps a not-found error for document id in a *GoneError.
func (d *Documents) gone(id model.ID, err error) error {
	if !errors.Is(err, api.ErrNotFound) {
		return err
	}
	current, _ := d.cache.Get(id)
	return &GoneError{Kind: "Document", Name: current.Name, Err: err}
}

// Download saves the original file into dir under the server-supplied name,
// adding a numeric suffix instead of overwriting. It returns the path written.
func (d *Documents) Download(ctx context.Context, id model.ID, dir string) (string, error) {
	dl, err := d.Open(ctx, id)
	if err != nil {
		return "", err
	}
	defer dl.Body.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".bookshelf-download-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, dl.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("download interrupted: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	target := uniquePath(dir, dl.Filename)
	if err := os.Rename(tmpName, target); err != nil {
		return "", err
	}
	logging.L().Info("document downloaded", "doc", id, "path", target)
	return target, nil
}

// uniquePath returns dir/name, or dir/name (n).ext when taken.
func uniquePath(dir, name string) string {
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		return target
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

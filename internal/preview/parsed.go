// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package preview

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// KindParsed is text extracted by the backend parser.
const KindParsed Kind = "parsed"

// Source is the document access needed to build a preview.
type Source interface {
	ParsedVersions(ctx context.Context, id model.ID) ([]model.ParsedVersion, error)
	ParsedContent(ctx context.Context, id, parsedID model.ID) (string, error)
	Open(ctx context.Context, id model.ID) (*api.Download, error)
}

// Document is a preview together with the parsed versions it can switch
// between. Without versions, Preview is the original file rendered locally.
type Document struct {
	ID       model.ID
	Name     string
	Versions []model.ParsedVersion
	// Index is the shown version.
	Index   int
	Preview Preview
}

// Parsed reports whether the preview shows a parsed version.
func (d Document) Parsed() bool {
	return len(d.Versions) > 0
}

// Version returns the shown version.
func (d Document) Version() (model.ParsedVersion, bool) {
	if d.Index < 0 || d.Index >= len(d.Versions) {
		return model.ParsedVersion{}, false
	}
	return d.Versions[d.Index], true
}

// Load shows the newest parsed version of doc, or the original file when
// the backend has none.
func Load(ctx context.Context, src Source, doc model.Document, opts Options) (Document, error) {
	versions, err := src.ParsedVersions(ctx, doc.ID)
	if err != nil {
		return Document{ID: doc.ID, Name: doc.Name}, err
	}
	if len(versions) == 0 {
		return Original(ctx, src, doc, opts)
	}
	return LoadVersion(ctx, src, doc, versions, 0, opts)
}

// LoadVersion shows versions[index] of doc.
func LoadVersion(ctx context.Context, src Source, doc model.Document, versions []model.ParsedVersion, index int, opts Options) (Document, error) {
	out := Document{ID: doc.ID, Name: doc.Name, Versions: versions, Index: index}
	if index < 0 || index >= len(versions) {
		return out, fmt.Errorf("version %d does not exist (%d available)", index+1, len(versions))
	}
	content, err := src.ParsedContent(ctx, doc.ID, versions[index].ID)
	if err != nil {
		return out, err
	}
	out.Preview = FromParsed(doc.Name, content, opts)
	return out, nil
}

// Original downloads doc and renders it locally.
func Original(ctx context.Context, src Source, doc model.Document, opts Options) (Document, error) {
	out := Document{ID: doc.ID, Name: doc.Name}
	dl, err := src.Open(ctx, doc.ID)
	if err != nil {
		return out, err
	}
	defer dl.Body.Close()
	out.Preview, err = FromReader(dl.Filename, dl.ContentType, dl.Body, opts)
	return out, err
}

// FromParsed builds a preview of parser output. The backend emits markdown.
func FromParsed(name, content string, opts Options) Preview {
	p := Preview{
		Name: name,
		Kind: KindParsed,
		Size: int64(len(content)),
	}
	p.Text, p.Truncated = clipLines(strings.ToValidUTF8(content, "�"), opts.MaxLines)
	p.Highlighted = p.Text
	if opts.Highlight {
		p.Highlighted = Highlight("parsed.md", p.Text, opts.Style)
	}
	return p
}

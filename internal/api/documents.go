// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// UploadDocument uploads one file into a knowledge base as multipart field "file".
// The body is streamed; r is read exactly once.
func (c *Client) UploadDocument(ctx context.Context, kbID model.ID, filename string, r io.Reader) (model.Document, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", path.Base(filename))
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var out model.Document
	err := c.call(ctx, request{
		method:      http.MethodPost,
		path:        pathf("/api/documents/%s/upload", kbID),
		rawBody:     pr,
		contentType: mw.FormDataContentType(),
	}, &out)
	// Unblock the writer if the request ended before consuming the body.
	pr.CloseWithError(io.ErrClosedPipe)
	return out, err
}

// ListDocuments returns the documents of one knowledge base.
func (c *Client) ListDocuments(ctx context.Context, kbID model.ID) ([]model.Document, error) {
	var out []model.Document
	err := c.call(ctx, request{method: http.MethodGet, path: pathf("/api/documents/%s", kbID)}, &out)
	return out, err
}

// RenameDocument renames a document.
func (c *Client) RenameDocument(ctx context.Context, kbID, docID model.ID, name string) (model.Document, error) {
	var out model.Document
	err := c.call(ctx, request{
		method:   http.MethodPatch,
		path:     pathf("/api/documents/%s/%s/rename", kbID, docID),
		jsonBody: map[string]string{"name": name},
	}, &out)
	return out, err
}

// DeleteDocument deletes a document.
func (c *Client) DeleteDocument(ctx context.Context, kbID, docID model.ID) error {
	return c.call(ctx, request{method: http.MethodDelete, path: pathf("/api/documents/%s/%s", kbID, docID)}, nil)
}

// ToggleDocument sets the enabled flag. A nil target asks the backend to flip it.
func (c *Client) ToggleDocument(ctx context.Context, kbID, docID model.ID, enabled *bool) (model.Document, error) {
	var body any = struct{}{}
	if enabled != nil {
		body = map[string]bool{"enabled": *enabled}
	}
	var out model.Document
	err := c.call(ctx, request{
		method:   http.MethodPatch,
		path:     pathf("/api/documents/%s/%s/toggle", kbID, docID),
		jsonBody: body,
	}, &out)
	return out, err
}

// Download is an open document download. The caller must close Body.
type Download struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// DownloadDocument opens the original file. The filename comes from
// Content-Disposition, falling back to fallbackName.
func (c *Client) DownloadDocument(ctx context.Context, kbID, docID model.ID, fallbackName string) (*Download, error) {
	r := request{method: http.MethodGet, path: pathf("/api/documents/%s/%s/download", kbID, docID)}
	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, readErr := readResponse(resp)
		if readErr != nil {
			return nil, readErr
		}
		return nil, c.check(r, resp, body)
	}

	return &Download{
		Filename:    filenameFromDisposition(resp.Header.Get("Content-Disposition"), fallbackName),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

// filenameFromDisposition extracts a safe base filename.
func filenameFromDisposition(header, fallback string) string {
	name := ""
	if _, params, err := mime.ParseMediaType(header); err == nil {
		name = params["filename"]
	}
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" || name == ".." {
		name = path.Base(fallback)
	}
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	return name
}

// ParseState is the backend's view of a document's ingestion.
type ParseState struct {
	Status      model.ParsingStatus `json:"status"`
	ParsedPages *int                `json:"parsed_pages,omitempty"`
	Detail      string              `json:"detail,omitempty"`
}

// StartParsing starts (or retries) ingestion of a document.
func (c *Client) StartParsing(ctx context.Context, kbID, docID model.ID) (ParseState, error) {
	var out ParseState
	err := c.call(ctx, request{method: http.MethodPost, path: pathf("/api/documents/%s/%s/parse", kbID, docID)}, &out)
	if err == nil && out.Status == "" {
		out.Status = model.ParsingProcessing
	}
	return out, err
}

// ParsingStatus polls the ingestion state of a document.
func (c *Client) ParsingStatus(ctx context.Context, kbID, docID model.ID) (ParseState, error) {
	var out ParseState
	err := c.call(ctx, request{method: http.MethodGet, path: pathf("/api/documents/%s/%s/parse-status", kbID, docID)}, &out)
	if err == nil && !out.Status.IsValid() {
		return out, fmt.Errorf("unknown parsing status %q", out.Status)
	}
	return out, err
}

// =============================================================================
// PARSED VERSIONS
// =============================================================================

// ListParsedVersions returns the stored parses of a document, newest first.
// A document that was never parsed has none.
func (c *Client) ListParsedVersions(ctx context.Context, kbID, docID model.ID) ([]model.ParsedVersion, error) {
	var out []model.ParsedVersion
	err := c.call(ctx, request{method: http.MethodGet, path: pathf("/api/parsed-documents/%s/%s/parsed", kbID, docID)}, &out)
	return out, err
}

// ParsedContent returns the extracted text of one parsed version.
func (c *Client) ParsedContent(ctx context.Context, kbID, docID, parsedID model.ID) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   pathf("/api/parsed-documents/%s/%s/parsed/%s/content", kbID, docID, parsedID),
	}, &out)
	return out.Content, err
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// ListKnowledgeBases returns every knowledge base of the account.
func (c *Client) ListKnowledgeBases(ctx context.Context) ([]model.KnowledgeBase, error) {
	var out []model.KnowledgeBase
	err := c.call(ctx, request{method: http.MethodGet, path: "/api/knowledge-bases/"}, &out)
	return out, err
}

// CreateKnowledgeBase creates a knowledge base. Duplicate titles fail with
// an error matching ErrConflict.
func (c *Client) CreateKnowledgeBase(ctx context.Context, title string) (model.KnowledgeBase, error) {
	var out model.KnowledgeBase
	err := c.call(ctx, request{
		method:   http.MethodPost,
		path:     "/api/knowledge-bases/",
		jsonBody: map[string]string{"title": title},
	}, &out)
	return out, err
}

// RenameKnowledgeBase changes a knowledge base title.
func (c *Client) RenameKnowledgeBase(ctx context.Context, id model.ID, title string) (model.KnowledgeBase, error) {
	var out model.KnowledgeBase
	err := c.call(ctx, request{
		method:   http.MethodPatch,
		path:     pathf("/api/knowledge-bases/%s", id),
		jsonBody: map[string]string{"title": title},
	}, &out)
	return out, err
}

// DeleteKnowledgeBase deletes a knowledge base and, server-side, its documents.
func (c *Client) DeleteKnowledgeBase(ctx context.Context, id model.ID) error {
	return c.call(ctx, request{method: http.MethodDelete, path: pathf("/api/knowledge-bases/%s/", id)}, nil)
}

// decodeJSON unmarshals body with the operation name in any error.
func decodeJSON(r request, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", r.op(), err)
	}
	return nil
}

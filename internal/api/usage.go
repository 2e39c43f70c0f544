// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// ChatTokenUsage returns chat token samples for month ("YYYY-MM").
func (c *Client) ChatTokenUsage(ctx context.Context, month string) ([]model.UsagePoint, error) {
	return c.usage(ctx, "/api/usage/tokens", month)
}

// DocumentTokenUsage returns document ingestion token samples for month ("YYYY-MM").
func (c *Client) DocumentTokenUsage(ctx context.Context, month string) ([]model.UsagePoint, error) {
	return c.usage(ctx, "/api/usage/document-tokens", month)
}

func (c *Client) usage(ctx context.Context, path, month string) ([]model.UsagePoint, error) {
	var out []model.UsagePoint
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   path,
		query:  url.Values{"month": {month}},
	}, &out)
	return out, err
}

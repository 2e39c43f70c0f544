// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the REST client for the bookshelf backend.
//
// Every backend capability is a method on Client. Failures are returned as
// *APIError values that unwrap to a sentinel (ErrUnauthorized, ErrNotFound,
// ErrNoMessages, ErrConflict, ErrValidation, ErrServer) so callers branch
// with errors.Is. Inline form errors use *FieldError.
//
// # Key Types
//
//   - Client: the HTTP client with rate limiting, request IDs and logging
//   - Carrier: how the session credential travels (CookieCarrier, BearerCarrier)
//   - APIError, FieldError: normalized error values
//   - Download: a streamed document download with its filename
//
// # Usage
//
//	carrier, _ := api.NewCarrier(cfg.API.Carrier, cfg.API.BaseURL)
//	client := api.New(cfg.API.BaseURL, carrier).
//	    WithTimeout(cfg.Timeout()).
//	    WithRateLimit(cfg.API.RequestsPerSecond)
//	client.OnUnauthorized(provider.SessionEnded)
//
//	kbs, err := client.ListKnowledgeBases(ctx)
//	if errors.Is(err, api.ErrUnauthorized) { ... }
//
// # Security
//
// Headers and bodies are never logged. Only method, path, status, duration
// and the X-Request-ID are recorded.
package api

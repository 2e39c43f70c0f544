// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the domain types shared by the API client, the
// collection caches and the chat manager.
//
// All entities are owned by the backend. The values here are cached copies
// and are reconciled by ID after every mutation.
//
// # Key Types
//
//   - Identity: the signed-in account (email, optional ID)
//   - KnowledgeBase: a named bookshelf of documents
//   - Document: an uploaded file with parse and enablement state
//   - Chat: a conversation thread bound to one or more knowledge bases
//   - Message: a single user or assistant turn
//   - UsagePoint: one token-usage sample returned by the usage endpoints
//
// # Usage
//
//	var kb model.KnowledgeBase
//	_ = json.Unmarshal(body, &kb)
//	fmt.Println(kb.ID, kb.Title, kb.CreatedAt.Format(time.DateOnly))
package model

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package collection keeps read-through caches of knowledge bases and
// documents and reconciles them after every mutation.
//
// The backend is the source of truth. Each operation has one
// reconciliation rule: a successful list replaces the cache, a create
// inserts at the head, a rename patches the one matching item in place, a
// delete removes it. A failed operation leaves the cache exactly as it was.
//
// # Key Types
//
//   - Cache: generic ordered cache keyed by model.ID
//   - KnowledgeBases: the account's bookshelves
//   - Documents: the documents of one selected knowledge base
//   - BulkReport, BatchReport: per-item outcomes of bulk operations
//
// # Usage
//
//	kbs := collection.NewKnowledgeBases(client, notifier)
//	_ = kbs.List(ctx)
//	kb, err := kbs.Create(ctx, "Research")
//	if fe := (*api.FieldError)(nil); errors.As(err, &fe) { /* inline error */ }
//
//	docs := collection.NewDocuments(client, notifier, collection.DefaultLimits())
//	docs.Use(kb.ID)
//	report := docs.Upload(ctx, files)
//	bulk := docs.BulkSetEnabled(ctx, ids, true)
package collection

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package association explains what a chat can see.
//
// Given the knowledge base ids a chat is bound to, the resolver lists the
// knowledge bases once, then fetches each one's documents and classifies
// it. A bookshelf that cannot be resolved never fails the whole view; it
// gets its own status and message instead.
//
// Resolution is read-only. It talks to the backend directly and never
// touches the collection caches owned by the bookshelf screens.
//
// # Key Types
//
//   - Status: ok, all-disabled, deleted, missing-kb or unavailable
//   - Association: one classified knowledge base
//   - Resolver: stateless classification of a set of ids
//   - View: a resolver bound to the currently displayed chat
//
// # Usage
//
//	r := association.NewResolver(client)
//	list, err := r.Resolve(ctx, chat.KnowledgeBaseIDs)
//	for _, a := range list {
//	    fmt.Println(a.Title(), a.Message())
//	}
package association

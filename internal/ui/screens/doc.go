// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package screens holds the full-screen views of the TUI other than chat:
// sign-in, bookshelves, documents and usage.
//
// Screens are thin. State lives in the services they are given; a screen
// renders that state, turns keys into service calls wrapped in tea.Cmds,
// and routes returned errors to the field they concern or to a toast.
//
// # Key Types
//
//   - Screen: the interface the root model drives
//   - Auth: login and registration form with remember-me
//   - Bookshelves: knowledge base list with create, rename, delete and filter
//   - Documents: document table with upload, toggles, bulk actions and preview
//   - Usage: monthly token dashboard
//
// # Usage
//
//	shelves := screens.NewBookshelves(ctx, a.KnowledgeBases, toasts, theme, pageSize)
//	cmd := shelves.Init()
//	...
//	cmd = shelves.Update(msg)
//	out := shelves.View()
package screens

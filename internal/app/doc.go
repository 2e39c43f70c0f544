// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the composition root shared by the TUI and the CLI.
//
// It builds the API client from configuration, opens local storage, and
// wires the identity provider, the resource collections, the chat manager,
// the association view and the usage service together. Cross-cutting
// reactions live here and nowhere else:
//
//   - a 401 from any authenticated call ends the session
//   - the session ending persists the typed draft before state is cleared
//   - signing out empties every cache
//   - deleting a bookshelf deselects it in the document collection
//
// # Key Types
//
//   - App: the wired service graph
//   - Options: storage locations, notifier and navigator overrides
//
// # Usage
//
//	a, err := app.New(app.Options{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	_ = a.Session.Init(ctx)
package app

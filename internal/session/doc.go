// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the identity provider for bookshelf.
//
// A Provider owns the signed-in identity and its lifecycle: resolving a
// remembered session at start-up, login, registration, logout, and the
// "session ended" path taken when any authenticated call returns 401.
// It is created in the composition root and passed down; there is no
// package-level state.
//
// # Key Types
//
//   - Provider: identity state machine (Unresolved, Resolving, Authenticated, Anonymous)
//   - Gate: what a protected view should do right now (loading, allow, redirect)
//   - Navigator: routing sink, so the provider never imports the UI
//   - Snapshot: immutable copy of the provider state for rendering
//
// # Usage
//
//	p := session.NewProvider(client, creds, nav, session.Config{RememberFor: cfg.RememberFor()})
//	client.OnUnauthorized(p.SessionEnded)
//	_ = p.Init(ctx)
//
//	switch p.Gate() {
//	case session.GateLoading:  // render a spinner, never redirect yet
//	case session.GateRedirect: // show the login form
//	case session.GateAllow:    // render protected content
//	}
//
// A protected view must never redirect while the gate reports loading.
package session

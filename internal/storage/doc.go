// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides local persistence for bookshelf.
//
// Nothing here is a source of truth for backend data. The package keeps
// the two pieces of state that must outlive the process: the remembered
// session credential and unsent chat drafts.
//
// # Key Types
//
//   - CredentialStore: AES-256-GCM encrypted credential file
//   - Credential: the remembered session (email, user id, token, expiry)
//   - DraftStore: SQLite table of unsent chat input keyed by chat id
//
// # Usage
//
// Remember a session:
//
//	creds := storage.NewCredentialStore(config.ConfigDir())
//	err := creds.Save(storage.Credential{Email: email, Token: tok, ExpiresAt: exp})
//
// Keep a draft across a failed send:
//
//	drafts, err := storage.OpenDraftStore(config.DataPath("drafts.db"))
//	defer drafts.Close()
//	_ = drafts.Save(ctx, chatID, text)
package storage

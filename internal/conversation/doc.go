// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation implements the chat session manager.
//
// The Manager exclusively owns the chat list, the selected chat and its
// message history. It moves through NoChatSelected, LoadingHistory, Idle
// and Sending, and guards every asynchronous result with a generation so a
// late response for a chat that is no longer selected is dropped.
//
// # Key Types
//
//   - Manager: the state machine
//   - Snapshot: an immutable copy of the state for rendering
//   - CreateChatInput: the create-chat form
//
// # Usage
//
//	mgr := conversation.NewManager(client, notifier, drafts)
//	_ = mgr.ListChats(ctx)
//	_ = mgr.SelectChat(ctx, chat)
//	res, err := mgr.SendMessage(ctx, text)
//	if errors.Is(err, conversation.ErrSendInFlight) { /* ignore keypress */ }
//
// At most one send is in flight per chat. A second send is rejected, never
// queued.
package conversation

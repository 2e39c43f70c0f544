// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"

	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// CreateChatRequest is the body of POST /api/chats/.
type CreateChatRequest struct {
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	KnowledgeBaseIDs []model.ID `json:"knowledge_base_ids"`
}

// ListChats returns all chats, most recently modified first.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	var out []model.Chat
	err := c.call(ctx, request{method: http.MethodGet, path: "/api/chats/"}, &out)
	return out, err
}

// CreateChat creates a chat bound to the given knowledge bases.
func (c *Client) CreateChat(ctx context.Context, in CreateChatRequest) (model.Chat, error) {
	var out model.Chat
	err := c.call(ctx, request{method: http.MethodPost, path: "/api/chats/", jsonBody: in}, &out)
	return out, err
}

// DeleteChat deletes a chat.
func (c *Client) DeleteChat(ctx context.Context, id model.ID) error {
	return c.call(ctx, request{method: http.MethodDelete, path: pathf("/api/chats/%s", id)}, nil)
}

// ListMessages returns a chat's history in display order. A chat without
// history may fail with ErrNoMessages.
func (c *Client) ListMessages(ctx context.Context, chatID model.ID) ([]model.Message, error) {
	var out []model.Message
	err := c.call(ctx, request{method: http.MethodGet, path: pathf("/api/chats/%s/messages", chatID)}, &out)
	return out, err
}

// SendMessage posts a user message and returns it with the paired reply.
func (c *Client) SendMessage(ctx context.Context, chatID model.ID, content string) (model.SendResult, error) {
	var out model.SendResult
	err := c.call(ctx, request{
		method:   http.MethodPost,
		path:     pathf("/api/chats/%s/messages", chatID),
		jsonBody: map[string]string{"content": content},
	}, &out)
	return out, err
}

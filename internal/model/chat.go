// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"

	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// CHAT
// =============================================================================

// Chat is a conversation thread. Its knowledge-base set is fixed at creation.
type Chat struct {
	ID               ID        `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	KnowledgeBaseIDs []ID      `json:"knowledge_base_ids"`
	LastModified     Timestamp `json:"last_modified"`
	CreatedAt        Timestamp `json:"created_at"`
}

// BoundTo reports whether the chat references the given knowledge base.
func (c Chat) BoundTo(kbID ID) bool {
	for _, id := range c.KnowledgeBaseIDs {
		if id == kbID {
			return true
		}
	}
	return false
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is one turn in a chat. Content may contain markdown and LaTeX.
// Display order is the order the backend returns.
type Message struct {
	ID      ID     `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// IsUser returns true if this is a user message.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant returns true if this is an assistant message.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// Preview returns a single-line preview of the content.
func (m Message) Preview(maxRunes int) string {
	line := strings.Join(strings.Fields(m.Content), " ")
	return util.TruncateRunes(line, maxRunes)
}

// SendResult is the atomic reply to a sent message: the stored user message
// and exactly one paired assistant message.
type SendResult struct {
	UserMessage      Message `json:"user_message"`
	AssistantMessage Message `json:"assistant_message"`
}

// =============================================================================
// USAGE
// =============================================================================

// UsagePoint is one token-usage sample.
type UsagePoint struct {
	Timestamp   Timestamp `json:"timestamp"`
	TotalTokens int       `json:"total_tokens"`
}

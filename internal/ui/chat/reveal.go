// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// =============================================================================
// INCREMENTAL REVEAL
// =============================================================================

// Default reveal pacing, overridden by ui.reveal_interval_ms and ui.reveal_chunk.
const (
	DefaultRevealInterval = 15 * time.Millisecond
	DefaultRevealChunk    = 2
)

// CursorGlyph trails the visible text while a reveal is running.
const CursorGlyph = "▌"

// Reveal plays back a reply whose full text is already known, a few runes
// per tick. It is owned by the update loop and is not safe for concurrent use.
//
// Visible text only ever grows. Once Done, the message is rendered as
// formatted markdown instead of raw text.
type Reveal struct {
	id    model.ID
	runes []rune
	pos   int
	chunk int
}

// NewReveal starts a reveal of text for message id.
func NewReveal(id model.ID, text string, chunk int) *Reveal {
	if chunk <= 0 {
		chunk = DefaultRevealChunk
	}
	return &Reveal{id: id, runes: []rune(text), chunk: chunk}
}

// ID returns the message being revealed.
func (r *Reveal) ID() model.ID {
	return r.id
}

// Tick advances the cursor by one chunk and reports whether more remains.
func (r *Reveal) Tick() bool {
	if r.pos < len(r.runes) {
		r.pos += r.chunk
		if r.pos > len(r.runes) {
			r.pos = len(r.runes)
		}
	}
	return !r.Done()
}

// Visible returns the text revealed so far.
func (r *Reveal) Visible() string {
	return string(r.runes[:r.pos])
}

// Done reports whether the full text is visible.
func (r *Reveal) Done() bool {
	return r.pos >= len(r.runes)
}

// Finish reveals the remaining text at once.
func (r *Reveal) Finish() {
	r.pos = len(r.runes)
}

// Progress returns the number of visible runes and the total.
func (r *Reveal) Progress() (int, int) {
	return r.pos, len(r.runes)
}

// =============================================================================
// TICK COMMAND
// =============================================================================

// RevealTickMsg advances the reveal of message ID. Ticks for any other
// message are stale and ignored.
type RevealTickMsg struct {
	ID model.ID
}

// revealTickCmd schedules the next reveal step.
func revealTickCmd(id model.ID, interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = DefaultRevealInterval
	}
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return RevealTickMsg{ID: id}
	})
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/bookshelf-tui/internal/logging"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// Markdown renders assistant answers with glamour. Renderers are cached per
// wrap width. A renderer failure or panic degrades to the raw text, so a bad
// message can never take the screen down.
type Markdown struct {
	mu        sync.Mutex
	style     string
	wrap      int
	renderers map[int]*glamour.TermRenderer
	cache     map[string]string
}

// NewMarkdown creates a renderer wrapping at width cells with the terminal's
// auto style.
func NewMarkdown(width int) *Markdown {
	return &Markdown{
		style:     "auto",
		wrap:      width,
		renderers: make(map[int]*glamour.TermRenderer),
		cache:     make(map[string]string),
	}
}

// WithStyle selects a glamour standard style ("dark", "light", "notty").
func (m *Markdown) WithStyle(style string) *Markdown {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.style = style
	m.renderers = make(map[int]*glamour.TermRenderer)
	m.cache = make(map[string]string)
	return m
}

// SetWidth changes the wrap width.
func (m *Markdown) SetWidth(width int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if width != m.wrap {
		m.wrap = width
		m.cache = make(map[string]string)
	}
}

// Render returns the formatted text, or the raw text when rendering fails.
func (m *Markdown) Render(text string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%d\x00%s", m.wrap, text)
	if out, ok := m.cache[key]; ok {
		return out
	}
	out, err := m.renderLocked(text)
	if err != nil {
		logging.L().Warn("markdown render failed", "error", err)
		return text
	}
	if len(m.cache) > 256 {
		m.cache = make(map[string]string)
	}
	m.cache[key] = out
	return out
}

func (m *Markdown) renderLocked(text string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("markdown renderer panicked: %v", r)
		}
	}()

	r, ok := m.renderers[m.wrap]
	if !ok {
		opts := []glamour.TermRendererOption{glamour.WithWordWrap(m.wrap)}
		if m.style == "auto" {
			opts = append(opts, glamour.WithAutoStyle())
		} else {
			opts = append(opts, glamour.WithStandardStyle(m.style))
		}
		r, err = glamour.NewTermRenderer(opts...)
		if err != nil {
			return "", err
		}
		m.renderers[m.wrap] = r
	}

	out, err = r.Render(text)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}

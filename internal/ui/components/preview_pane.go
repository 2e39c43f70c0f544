// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bookshelf-tui/internal/preview"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// PreviewPane shows a document preview in a scrollable viewport. Parsed
// documents get a version selector in the header.
type PreviewPane struct {
	viewport viewport.Model
	doc      preview.Document
	loaded   bool
	// switching is set while another version is loading.
	switching bool
}

// NewPreviewPane creates a pane of the given size.
func NewPreviewPane(width, height int) *PreviewPane {
	return &PreviewPane{viewport: viewport.New(width, height)}
}

// SetSize resizes the pane.
func (p *PreviewPane) SetSize(width, height int) {
	p.viewport.Width = width
	p.viewport.Height = height
}

// SetPreview shows a preview that has no parsed versions.
func (p *PreviewPane) SetPreview(pv preview.Preview) {
	p.SetDocument(preview.Document{Name: pv.Name, Preview: pv})
}

// SetDocument replaces the content and scrolls to the top.
func (p *PreviewPane) SetDocument(d preview.Document) {
	p.doc = d
	p.loaded = true
	p.switching = false
	p.viewport.SetContent(d.Preview.Render())
	p.viewport.GotoTop()
}

// Document returns what is shown.
func (p *PreviewPane) Document() preview.Document {
	return p.doc
}

// Step returns the version index delta away from the shown one, or -1
// when there is nothing to switch to.
func (p *PreviewPane) Step(delta int) int {
	n := len(p.doc.Versions)
	if !p.loaded || p.switching || n < 2 {
		return -1
	}
	next := p.doc.Index + delta
	if next < 0 || next >= n {
		return -1
	}
	return next
}

// SetSwitching marks a version load as in flight.
func (p *PreviewPane) SetSwitching(on bool) {
	p.switching = on
}

// Loaded reports whether a preview is shown.
func (p *PreviewPane) Loaded() bool {
	return p.loaded
}

// Update forwards scrolling keys to the viewport.
func (p *PreviewPane) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return cmd
}

// View renders the header line and the viewport.
func (p *PreviewPane) View() string {
	if !p.loaded {
		return "Loading preview..."
	}
	pv := p.doc.Preview
	meta := fmt.Sprintf("%s  %s  %s", pv.Name, pv.Kind, util.FormatBytes(pv.Size))
	if pv.Pages > 0 {
		meta += fmt.Sprintf("  %d pages", pv.Pages)
	}
	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan).Render(meta)}

	hint := "esc close"
	if v, ok := p.doc.Version(); ok {
		label := fmt.Sprintf("Parsed version %d of %d  %s", p.doc.Index+1, len(p.doc.Versions), v.Label())
		if p.switching {
			label += "  loading..."
		}
		lines = append(lines, lipgloss.NewStyle().Foreground(styles.TextSecondary).Render(label))
		if len(p.doc.Versions) > 1 {
			hint = "[ newer  ] older  esc close"
		}
	}
	footer := lipgloss.NewStyle().Foreground(styles.TextMuted).
		Render(fmt.Sprintf("%3.f%%  %s", p.viewport.ScrollPercent()*100, hint))
	lines = append(lines, p.viewport.View(), footer)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

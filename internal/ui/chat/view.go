// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/conversation"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	inputHeight    = 3
	minMainWidth   = 20
	libraryRows    = 4
	chromeRows     = 4 // header, input border, help line
	defaultSidebar = 28
)

func (m *Model) sidebarWidth() int {
	if m.width <= 0 {
		return defaultSidebar
	}
	w := styles.SidebarWidthFor(m.width)
	if w == 0 && m.focus == focusSidebar {
		// Narrow terminals show one pane at a time.
		return m.width
	}
	return w
}

func (m *Model) mainWidth() int {
	w := m.width - m.sidebarWidth() - 2
	if w < minMainWidth {
		w = minMainWidth
	}
	return w
}

func (m *Model) layout() {
	w := m.mainWidth()
	h := m.height - inputHeight - chromeRows
	if m.showLibraries {
		h -= libraryRows
	}
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.SetWidth(w - 2)
	m.markdown.SetWidth(w - 6)
}

// refresh rebuilds the history pane from the manager's state.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages(m.deps.Chats.Snapshot()))
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the screen.
func (m *Model) View() string {
	snap := m.deps.Chats.Snapshot()

	var main string
	if m.form != nil {
		loading := m.deps.KnowledgeBases != nil && m.deps.KnowledgeBases.Loading()
		main = m.theme.Focused.Width(m.mainWidth()).Render(m.form.view(m.theme, m.libraries(), loading))
	} else {
		main = m.renderMain(snap)
	}

	sw := m.sidebarWidth()
	if sw == 0 {
		return main
	}
	sidebar := m.renderSidebar(snap, sw)
	if sw >= m.width && m.width > 0 {
		return sidebar
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
}

func (m *Model) renderSidebar(snap conversation.Snapshot, width int) string {
	var b strings.Builder
	title := "Chats"
	if snap.ChatsLoading {
		title += " " + m.spinner.View()
	}
	b.WriteString(m.theme.Title.Render(title))
	b.WriteString("\n\n")

	if len(snap.Chats) == 0 && !snap.ChatsLoading {
		b.WriteString(m.theme.Muted.Render("No chats yet.\nPress n to start one."))
		b.WriteString("\n")
	}
	for i, c := range snap.Chats {
		line := util.TruncateRunes(c.Title, width-4)
		if snap.Selected != nil && snap.Selected.ID == c.ID {
			line = "> " + line
		} else {
			line = "  " + line
		}
		switch {
		case m.confirmDelete == c.ID:
			b.WriteString(m.theme.Warning.Render(line + "  delete? y/n"))
		case m.focus == focusSidebar && i == m.cursor:
			b.WriteString(m.theme.SelectedRow.Render(line))
		default:
			b.WriteString(m.theme.Row.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(components.HelpLine(m.theme, helpPairs(m.keys.NewChat, m.keys.Delete, m.keys.Reload)...))
	return m.theme.Sidebar.Width(width - 2).Render(b.String())
}

func (m *Model) renderMain(snap conversation.Snapshot) string {
	if snap.Selected == nil {
		empty := m.theme.Subtitle.Render("Select a chat on the left, or press n to start one.")
		return lipgloss.NewStyle().Width(m.mainWidth()).Padding(1, 2).Render(empty)
	}

	var b strings.Builder
	header := m.theme.Title.Render(snap.Selected.Title)
	if snap.Selected.Description != "" {
		header += "  " + m.theme.Subtitle.Render(snap.Selected.Description)
	}
	b.WriteString(header)
	b.WriteString("\n")

	if m.showLibraries {
		b.WriteString(m.renderLibraries())
	}

	if snap.State == conversation.StateLoadingHistory {
		b.WriteString(m.spinner.View() + " " + m.theme.Muted.Render("Loading messages..."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
	}

	if snap.Sending() {
		b.WriteString(m.theme.Muted.Render(m.spinner.View() + " Waiting for the answer..."))
		b.WriteString("\n")
		b.WriteString(m.theme.Panel.Render(m.theme.Muted.Render(m.input.Value())))
	} else {
		style := m.theme.Panel
		if m.focus == focusInput {
			style = m.theme.Focused
		}
		b.WriteString(style.Render(m.input.View()))
	}
	b.WriteString("\n")
	b.WriteString(components.HelpLine(m.theme,
		helpPairs(m.keys.Send, m.keys.Newline, m.keys.Focus, m.keys.Libraries, m.keys.PageUp)...))
	return lipgloss.NewStyle().Width(m.mainWidth()).Render(b.String())
}

// renderLibraries shows the bookshelves the selected chat searches.
func (m *Model) renderLibraries() string {
	view := m.deps.Associations
	if view == nil {
		return ""
	}
	var lines []string
	switch {
	case view.Loading():
		lines = append(lines, m.spinner.View()+" "+m.theme.Muted.Render("Checking bookshelves..."))
	case view.Err() != nil:
		lines = append(lines, m.theme.Error.Render("Could not load bookshelves: "+api.Message(view.Err())))
	default:
		for _, a := range view.Items() {
			lines = append(lines, components.AssociationLine(a))
		}
		if len(lines) == 0 {
			lines = append(lines, m.theme.Muted.Render("No bookshelves attached."))
		}
	}
	if len(lines) > libraryRows-1 {
		more := len(lines) - (libraryRows - 2)
		lines = append(lines[:libraryRows-2], m.theme.Muted.Render(
			"... and "+strconv.Itoa(more)+" more"))
	}
	return strings.Join(lines, "\n") + "\n"
}

// =============================================================================
// MESSAGE RENDERING
// =============================================================================

func (m *Model) renderMessages(snap conversation.Snapshot) string {
	if snap.Selected == nil {
		return ""
	}
	if len(snap.Messages) == 0 {
		return m.theme.Muted.Render("No messages yet. Ask a question about the attached bookshelves.")
	}
	parts := make([]string, 0, len(snap.Messages))
	for _, msg := range snap.Messages {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderMessage(msg model.Message) string {
	width := m.viewport.Width - 6
	if width < 10 {
		width = 10
	}
	if msg.IsUser() {
		return m.theme.Role.Render("You") + "\n" +
			m.theme.UserMessage.Render(components.WrapText(msg.Content, width))
	}

	var body string
	if m.reveal != nil && m.reveal.ID() == msg.ID && !m.reveal.Done() {
		// Mid-reveal text is raw; formatting is applied once it is complete.
		body = components.WrapText(m.reveal.Visible(), width) + m.theme.Cursor.Render(CursorGlyph)
	} else {
		body = m.markdown.Render(msg.Content)
	}
	return m.theme.Role.Render(msg.Role.DisplayName()) + "\n" + m.theme.AssistantMessage.Render(body)
}

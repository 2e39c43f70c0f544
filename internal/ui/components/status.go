// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// =============================================================================
// LOADING AND ERROR SCREENS
// =============================================================================

// LoadingView is the full-screen placeholder shown while the session resolves.
func LoadingView(theme *styles.Theme, spinner, message string) string {
	body := theme.Brand.Render("bookshelf") + "\n\n" + spinner + " " + message
	if theme.Width <= 0 || theme.Height <= 0 {
		return body
	}
	return lipgloss.Place(theme.Width, theme.Height, lipgloss.Center, lipgloss.Center, body)
}

// ErrorView is the screen shown after a render failure. The rest of the
// application state is kept so a reload can recover.
type ErrorView struct {
	Title  string
	Detail string
}

// View renders the error and the recovery keys.
func (e ErrorView) View(theme *styles.Theme) string {
	title := e.Title
	if title == "" {
		title = "Something went wrong"
	}
	var b strings.Builder
	b.WriteString(theme.Error.Render(styles.StatusIndicators.Error + " " + title))
	b.WriteString("\n\n")
	if e.Detail != "" {
		width := theme.Width - 4
		if width < 20 {
			width = 60
		}
		b.WriteString(theme.Muted.Render(WrapText(e.Detail, width)))
		b.WriteString("\n\n")
	}
	b.WriteString(theme.Help.Render("r reload  q quit"))
	return theme.Panel.Render(b.String())
}

// HelpLine joins key hints as "key action" pairs.
func HelpLine(theme *styles.Theme, pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, fmt.Sprintf("%s %s", theme.Brand.Render(pairs[i]), pairs[i+1]))
	}
	return theme.Help.Render(strings.Join(parts, "  "))
}

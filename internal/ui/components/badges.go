// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bookshelf-tui/internal/association"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// ParsingBadge renders a document's parse state with a shape marker.
func ParsingBadge(status model.ParsingStatus) string {
	switch status {
	case model.ParsingDone:
		return lipgloss.NewStyle().Foreground(styles.Emerald).Render(styles.StatusIndicators.Success + " parsed")
	case model.ParsingFailed:
		return lipgloss.NewStyle().Foreground(styles.Rose).Render(styles.StatusIndicators.Error + " failed")
	case model.ParsingProcessing:
		return lipgloss.NewStyle().Foreground(styles.Amber).Render(styles.StatusIndicators.Active + " parsing")
	}
	return lipgloss.NewStyle().Foreground(styles.TextMuted).Render(styles.StatusIndicators.Pending + " pending")
}

// EnabledBadge renders a document's enablement.
func EnabledBadge(enabled bool) string {
	if enabled {
		return lipgloss.NewStyle().Foreground(styles.Emerald).Render("on")
	}
	return lipgloss.NewStyle().Foreground(styles.TextMuted).Render("off")
}

// AssociationLine renders one association as "marker title: message".
func AssociationLine(a association.Association) string {
	var color lipgloss.AdaptiveColor
	var icon string
	switch a.Status {
	case association.StatusOK:
		color, icon = styles.Emerald, styles.StatusIndicators.Success
	case association.StatusAllDisabled:
		color, icon = styles.Amber, styles.StatusIndicators.Warning
	case association.StatusDeleted:
		color, icon = styles.Amber, styles.StatusIndicators.Pending
	case association.StatusMissing:
		color, icon = styles.Rose, styles.StatusIndicators.Error
	default:
		color, icon = styles.TextMuted, styles.StatusIndicators.Info
	}
	title := lipgloss.NewStyle().Bold(true).Render(a.Title())
	return lipgloss.NewStyle().Foreground(color).Render(icon) + " " + title + ": " + a.Message()
}

// FormatTime renders a backend timestamp for tables.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
	"github.com/jeranaias/bookshelf-tui/internal/usage"
	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// =============================================================================
// USAGE DASHBOARD
// =============================================================================

// DashboardView determines what the dashboard displays.
type DashboardView int

const (
	ViewDaily DashboardView = iota
	ViewTop
)

// UsageDashboard renders a month of token usage.
type UsageDashboard struct {
	report  usage.Report
	view    DashboardView
	width   int
	barMax  int
	loaded  bool
	topDays int
}

// NewUsageDashboard creates an empty dashboard.
func NewUsageDashboard() *UsageDashboard {
	return &UsageDashboard{barMax: 30, topDays: 5}
}

// SetReport replaces the data shown.
func (d *UsageDashboard) SetReport(r usage.Report) {
	d.report = r
	d.loaded = true
}

// SetView changes the dashboard view.
func (d *UsageDashboard) SetView(view DashboardView) {
	d.view = view
}

// ToggleView flips between the daily chart and the busiest days.
func (d *UsageDashboard) ToggleView() {
	if d.view == ViewDaily {
		d.view = ViewTop
	} else {
		d.view = ViewDaily
	}
}

// SetSize adapts the bar length to the width.
func (d *UsageDashboard) SetSize(width int) {
	d.width = width
	d.barMax = width - 40
	if d.barMax > 50 {
		d.barMax = 50
	}
	if d.barMax < 10 {
		d.barMax = 10
	}
}

// View renders the dashboard.
func (d *UsageDashboard) View() string {
	if !d.loaded {
		return "No usage loaded"
	}

	var b strings.Builder
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)
	b.WriteString(titleStyle.Render("Token usage " + d.report.Month))
	b.WriteString("\n\n")
	b.WriteString(d.renderTotals())
	b.WriteString("\n")

	if d.report.Empty() {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.TextMuted).Render("No usage recorded this month"))
		return b.String()
	}

	if d.view == ViewTop {
		b.WriteString(d.renderTop())
	} else {
		b.WriteString(d.renderDaily())
	}
	return b.String()
}

func (d *UsageDashboard) renderTotals() string {
	r := d.report
	var b strings.Builder
	fmt.Fprintf(&b, "Chat tokens:      %s\n", util.FormatCount(r.ChatTokens))
	fmt.Fprintf(&b, "Document tokens:  %s\n", util.FormatCount(r.DocumentTokens))
	fmt.Fprintf(&b, "Total:            %s\n", util.FormatCount(r.Total()))
	if peak := r.Peak(); peak.Total() > 0 {
		fmt.Fprintf(&b, "Peak day:         %s (%s)\n", peak.Date.Format("Mon Jan 2"), util.FormatCount(peak.Total()))
	}
	return b.String()
}

func (d *UsageDashboard) renderDaily() string {
	var b strings.Builder
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)
	b.WriteString(sectionStyle.Render("Daily breakdown"))
	b.WriteString("\n")

	peak := d.report.Peak().Total()
	for _, day := range d.report.Days {
		if day.Total() == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-10s %s %s\n",
			day.Date.Format("Mon Jan 2"),
			d.renderBar(day, peak),
			util.FormatCount(day.Total()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *UsageDashboard) renderTop() string {
	var b strings.Builder
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)
	b.WriteString(sectionStyle.Render("Busiest days"))
	b.WriteString("\n")

	top := d.report.Top(d.topDays)
	for i, day := range top {
		fmt.Fprintf(&b, "  %d. %-10s chat %s, documents %s\n",
			i+1,
			day.Date.Format("Mon Jan 2"),
			util.FormatCount(day.ChatTokens),
			util.FormatCount(day.DocumentTokens))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderBar draws chat tokens then document tokens, scaled to the peak day.
func (d *UsageDashboard) renderBar(day usage.Day, peak int) string {
	if peak <= 0 {
		return strings.Repeat("-", d.barMax)
	}
	chat := day.ChatTokens * d.barMax / peak
	docs := day.DocumentTokens * d.barMax / peak
	if chat+docs == 0 && day.Total() > 0 {
		chat = 1
	}
	if chat+docs > d.barMax {
		docs = d.barMax - chat
	}

	chatStyle := lipgloss.NewStyle().Foreground(styles.Purple)
	docStyle := lipgloss.NewStyle().Foreground(styles.Emerald)
	emptyStyle := lipgloss.NewStyle().Foreground(styles.TextMuted)
	return chatStyle.Render(strings.Repeat("#", chat)) +
		docStyle.Render(strings.Repeat("=", docs)) +
		emptyStyle.Render(strings.Repeat("-", d.barMax-chat-docs))
}

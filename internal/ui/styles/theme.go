// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme modes accepted by the ui.theme setting.
const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// Theme holds every style the screens use. It detects the terminal's color
// capability once and is rebuilt when the theme mode changes.
type Theme struct {
	Mode         string
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// Frame
	App      lipgloss.Style
	Header   lipgloss.Style
	Brand    lipgloss.Style
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Footer   lipgloss.Style
	Help     lipgloss.Style
	Panel    lipgloss.Style
	Focused  lipgloss.Style

	// Lists and tables
	Row         lipgloss.Style
	SelectedRow lipgloss.Style
	Marked      lipgloss.Style
	Column      lipgloss.Style
	Muted       lipgloss.Style

	// Forms
	Label      lipgloss.Style
	FieldError lipgloss.Style
	Button     lipgloss.Style

	// Chat
	Sidebar          lipgloss.Style
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	Role             lipgloss.Style
	Cursor           lipgloss.Style

	// States
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
}

// NewTheme creates a theme for mode ("auto", "dark" or "light").
func NewTheme(mode string) *Theme {
	mode = NormalizeMode(mode)
	profile := termenv.ColorProfile()

	isDark := termenv.HasDarkBackground()
	switch mode {
	case ModeDark:
		isDark = true
	case ModeLight:
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{Mode: mode, IsDark: isDark, ColorProfile: profile}
	t.initStyles()
	return t
}

// NormalizeMode maps unknown values to auto.
func NormalizeMode(mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case ModeDark, ModeLight:
		return m
	}
	return ModeAuto
}

func (t *Theme) initStyles() {
	t.App = lipgloss.NewStyle().Padding(0, 1)

	t.Header = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.Brand = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.Title = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.Subtitle = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.Footer = lipgloss.NewStyle().Foreground(TextMuted).Padding(0, 1)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)

	t.Panel = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.Focused = t.Panel.BorderForeground(Cyan)

	t.Row = lipgloss.NewStyle().Foreground(TextPrimary)
	t.SelectedRow = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SelectionBg).
		Bold(true)
	t.Marked = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.Column = lipgloss.NewStyle().Foreground(TextSecondary).Bold(true).Underline(true)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)

	t.Label = lipgloss.NewStyle().Foreground(TextSecondary)
	t.FieldError = lipgloss.NewStyle().Foreground(Rose)
	t.Button = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Purple).
		Padding(0, 2)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)
	t.UserMessage = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1).
		MarginLeft(4)
	t.AssistantMessage = lipgloss.NewStyle().
		Foreground(AssistantBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(AssistantBubbleBorder).
		Padding(0, 1).
		MarginRight(4)
	t.Role = lipgloss.NewStyle().Bold(true).Foreground(TextSecondary)
	t.Cursor = lipgloss.NewStyle().Foreground(Purple).Bold(true)

	t.Success = lipgloss.NewStyle().Foreground(Emerald)
	t.Error = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Warning = lipgloss.NewStyle().Foreground(Amber)
	t.Info = lipgloss.NewStyle().Foreground(Cyan)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	return LayoutFor(t.Width)
}

// SidebarWidth is the chat list width for the current layout.
func (t *Theme) SidebarWidth() int {
	return SidebarWidthFor(t.Width)
}

// LayoutFor returns the layout mode for a terminal width.
func LayoutFor(width int) LayoutMode {
	if width < 60 {
		return LayoutNarrow
	}
	if width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// SidebarWidthFor returns the list pane width for a terminal width. Narrow
// terminals get no side pane.
func SidebarWidthFor(width int) int {
	switch LayoutFor(width) {
	case LayoutNarrow:
		return 0
	case LayoutMedium:
		return 24
	}
	return 32
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

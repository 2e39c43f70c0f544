// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and lipgloss styles of the bookshelf TUI.

All colors are lipgloss AdaptiveColor values so one palette serves light
and dark terminals. The theme mode comes from the ui.theme setting; "auto"
asks termenv for the terminal background.

# Key Types

  - Theme: every style a screen needs, built for one mode
  - LayoutMode: narrow, medium or wide, derived from the window width
  - StatusIndicatorSet: ASCII markers shown beside colored states

# Usage

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.SetSize(msg.Width, msg.Height)
	fmt.Println(theme.Title.Render("Bookshelves"))
	fmt.Println(styles.RenderError("Could not load chats"))
*/
package styles

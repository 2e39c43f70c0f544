// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the reusable pieces of the bookshelf TUI.

Components are plain structs with View-style render methods. They hold no
network state; screens pass them snapshots from the managers.

# Key Types

  - ToastManager: non-blocking notices, fed by notify.Notifier
  - Markdown: glamour renderer that never panics the caller
  - Table: width-aware rows with a cursor and marks
  - UsageDashboard: per-day token bar chart for one month
  - PreviewPane: a document preview in a scrollable viewport
  - ErrorView: the recovery screen shown after a render failure

# Usage

	toasts := components.NewToastManager()
	manager := conversation.NewManager(client, toasts, drafts)

	md := components.NewMarkdown(80)
	fmt.Println(md.Render("**hello**"))

	fmt.Println(components.RenderToastStack(toasts.TickToasts(), width, height))
*/
package components

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the chat screen of the bookshelf TUI.

The screen is a thin view over conversation.Manager: the manager owns the
chat list, the selection, the history and the single in-flight send; this
package renders them and turns keys into manager calls run as tea.Cmds.

# Key Components

## Model (model.go)

The sidebar of chats, the history viewport, the message input and the
bookshelf panel. The input is blurred while a send is in flight and keeps
its text when a send fails.

## Reveal (reveal.go)

A reply arrives whole. Reveal plays it back a few runes per tick with a
trailing cursor, then hands the message to the markdown renderer. Messages
loaded from history are formatted immediately.

## Create form (form.go)

Title, optional description and the bookshelves to search. Blank titles
and empty selections are rejected before any request; backend validation
errors are shown under the field they name.

# Usage

	screen := chat.New(ctx, chat.Deps{
	    Chats:          a.Chats,
	    Associations:   a.Associations,
	    KnowledgeBases: a.KnowledgeBases,
	}, theme, chat.Options{RevealChunk: cfg.UI.RevealChunk})
	cmd := screen.Init()
*/
package chat

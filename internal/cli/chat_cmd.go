// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/bookshelf-tui/internal/association"
	"github.com/jeranaias/bookshelf-tui/internal/conversation"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
)

const chatUsage = "bookshelf chat list|create|delete|history|send|libraries|repl ..."

// HandleChat runs "bookshelf chat ...".
func HandleChat(env *Env) error {
	if err := env.requireSession(); err != nil {
		return err
	}
	p := NewArgParser(env.Args.Raw, "yes", "y", "raw")

	switch p.Subcommand() {
	case "", "list", "ls":
		return chatList(env)
	case "create", "new":
		return chatCreate(env, p)
	case "delete", "rm":
		return chatDelete(env, p)
	case "history", "show":
		return chatHistory(env, p)
	case "send", "ask":
		return chatSend(env, p)
	case "libraries", "libs", "kbs":
		return chatLibraries(env, p)
	case "repl":
		return RunREPL(env, p.Positional(1))
	}
	return &UsageError{Usage: chatUsage, Message: fmt.Sprintf("unknown chat subcommand %q", p.Subcommand())}
}

// markdown returns a renderer for assistant answers sized to the terminal.
func (e *Env) markdown() *components.Markdown {
	md := components.NewMarkdown(GetTerminalWidth() - 4)
	if !ColorsEnabled() {
		md = md.WithStyle("notty")
	}
	return md
}

// =============================================================================
// LIST / CREATE / DELETE
// =============================================================================

func chatList(env *Env) error {
	if err := env.App.Chats.ListChats(env.Ctx); err != nil {
		return err
	}
	chats := env.App.Chats.Snapshot().Chats

	return env.emit("chat list", chats, func(w io.Writer) {
		if len(chats) == 0 {
			fmt.Fprintln(w, "No chats yet. Start one with 'bookshelf chat create <title> --kb <bookshelf>'.")
			return
		}
		writeChatTable(w, chats)
	})
}

func writeChatTable(w io.Writer, chats []model.Chat) {
	t := newTable("ID", "TITLE", "BOOKSHELVES", "UPDATED").alignRight(2)
	for _, c := range chats {
		t.add(c.ID.String(), c.Title, fmt.Sprint(len(c.KnowledgeBaseIDs)), components.FormatTime(c.LastModified.Time))
	}
	fmt.Fprint(w, t.render())
}

func chatCreate(env *Env, p *ArgParser) error {
	in := conversation.CreateChatInput{
		Title:       JoinPositionalArgs(p, 1),
		Description: p.Flag("description"),
	}
	for _, ref := range splitList(p.Flag("kb")) {
		kb, err := env.knowledgeBase(ref)
		if err != nil {
			return err
		}
		in.KnowledgeBaseIDs = append(in.KnowledgeBaseIDs, kb.ID)
	}

	chat, err := env.App.Chats.CreateChat(env.Ctx, in)
	if err != nil {
		return err
	}
	return env.emit("chat create", chat, func(io.Writer) {
		env.done("Created chat %q (id %s)", chat.Title, chat.ID)
	})
}

func chatDelete(env *Env, p *ArgParser) error {
	if p.Positional(1) == "" {
		return ErrMissingArgument("chat", "bookshelf chat delete <chat> [--yes]")
	}
	chat, err := env.chat(p.Positional(1))
	if err != nil {
		return err
	}
	if !confirmed(env, p, fmt.Sprintf("Delete chat %q and its history?", chat.Title)) {
		return &UsageError{Message: "not deleted; pass --yes to confirm"}
	}
	if err := env.App.Chats.DeleteChat(env.Ctx, chat.ID); err != nil {
		return err
	}
	return env.emit("chat delete", map[string]model.ID{"deleted": chat.ID}, func(io.Writer) {
		env.done("Deleted chat %q", chat.Title)
	})
}

// =============================================================================
// HISTORY / SEND
// =============================================================================

// selectChat resolves ref and loads its history.
func (e *Env) selectChat(ref, usage string) (model.Chat, error) {
	if ref == "" {
		return model.Chat{}, ErrMissingArgument("chat", usage)
	}
	chat, err := e.chat(ref)
	if err != nil {
		return chat, err
	}
	return chat, e.App.Chats.SelectChat(e.Ctx, chat)
}

func chatHistory(env *Env, p *ArgParser) error {
	chat, err := env.selectChat(p.Positional(1), "bookshelf chat history <chat> [--raw]")
	if err != nil {
		return err
	}
	msgs := env.App.Chats.Snapshot().Messages

	return env.emit("chat history", msgs, func(w io.Writer) {
		fmt.Fprintln(w, TitleStyle.Render(chat.Title))
		if len(msgs) == 0 {
			fmt.Fprintln(w, DimStyle.Render("No messages yet."))
			return
		}
		writeMessages(w, env, msgs, p.BoolFlag("raw"))
	})
}

func writeMessages(w io.Writer, env *Env, msgs []model.Message, raw bool) {
	md := env.markdown()
	for _, m := range msgs {
		fmt.Fprintln(w)
		if m.IsUser() {
			fmt.Fprintln(w, UserStyle.Render(m.Role.DisplayName()+":"))
			fmt.Fprintln(w, m.Content)
			continue
		}
		fmt.Fprintln(w, AssistantStyle.Render(m.Role.DisplayName()+":"))
		if raw {
			fmt.Fprintln(w, m.Content)
		} else {
			fmt.Fprintln(w, strings.TrimRight(md.Render(m.Content), "\n"))
		}
	}
}

// readMessage returns the message text from the arguments, or stdin for "-".
func readMessage(env *Env, p *ArgParser) (string, error) {
	text := JoinPositionalArgs(p, 2)
	if text != "-" {
		return text, nil
	}
	data, err := io.ReadAll(env.In)
	if err != nil {
		return "", fmt.Errorf("failed to read message from stdin: %w", err)
	}
	return string(data), nil
}

func chatSend(env *Env, p *ArgParser) error {
	const usage = "bookshelf chat send <chat> <message|->"
	chat, err := env.selectChat(p.Positional(1), usage)
	if err != nil {
		return err
	}
	text, err := readMessage(env, p)
	if err != nil {
		return err
	}

	var res model.SendResult
	sp := newSpinner(env, fmt.Sprintf("Asking %s...", chat.Title))
	res, err = env.App.Chats.SendMessage(env.Ctx, text)
	sp.stop()
	if err != nil {
		return err
	}

	return env.emit("chat send", res, func(w io.Writer) {
		if p.BoolFlag("raw") {
			fmt.Fprintln(w, res.AssistantMessage.Content)
			return
		}
		fmt.Fprintln(w, strings.TrimRight(env.markdown().Render(res.AssistantMessage.Content), "\n"))
	})
}

// =============================================================================
// LIBRARIES
// =============================================================================

// LibraryInfo is the JSON form of an association.
type LibraryInfo struct {
	ID       model.ID `json:"id"`
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Enabled  []string `json:"enabled"`
	Disabled int      `json:"disabled"`
}

func chatLibraries(env *Env, p *ArgParser) error {
	if p.Positional(1) == "" {
		return ErrMissingArgument("chat", "bookshelf chat libraries <chat>")
	}
	chat, err := env.chat(p.Positional(1))
	if err != nil {
		return err
	}
	assocs, err := env.App.Resolver.Resolve(env.Ctx, chat.KnowledgeBaseIDs)
	if err != nil {
		return err
	}

	infos := make([]LibraryInfo, len(assocs))
	for i, a := range assocs {
		infos[i] = LibraryInfo{
			ID:       a.KnowledgeBaseID,
			Title:    a.Title(),
			Status:   string(a.Status),
			Message:  a.Message(),
			Enabled:  a.EnabledNames(),
			Disabled: len(a.Disabled),
		}
	}
	return env.emit("chat libraries", infos, func(w io.Writer) {
		writeLibraries(w, assocs)
	})
}

func writeLibraries(w io.Writer, assocs []association.Association) {
	if len(assocs) == 0 {
		fmt.Fprintln(w, "This chat has no bookshelves.")
		return
	}
	for _, a := range assocs {
		style := SuccessStyle
		if !a.Status.Healthy() {
			style = WarningStyle
		}
		fmt.Fprintf(w, "%s %s\n", HeaderStyle.Render(a.Title()), style.Render(a.Message()))
		for _, name := range a.EnabledNames() {
			fmt.Fprintf(w, "  • %s\n", name)
		}
	}
}

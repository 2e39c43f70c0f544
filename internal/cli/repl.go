// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/bookshelf-tui/internal/config"
	"github.com/jeranaias/bookshelf-tui/internal/conversation"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader is the line editor behind the REPL.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// historyReader wraps liner with a persistent input history.
type historyReader struct {
	line *liner.State
	path string
}

func newHistoryReader() *historyReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &historyReader{line: line, path: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.path); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *historyReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history owner-only and restores the terminal.
func (r *historyReader) Close() error {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// plainReader reads lines from a non-terminal input, for pipes and tests.
type plainReader struct {
	p *Prompter
}

func (r plainReader) Prompt(prompt string) (string, error) {
	line, err := r.p.Line(prompt)
	var tty *TTYRequiredError
	if errors.As(err, &tty) {
		return "", io.EOF
	}
	return line, err
}

func (plainReader) Close() error { return nil }

// =============================================================================
// REPL
// =============================================================================

const replHelp = `Commands:
  /chats           List chats
  /use <chat>      Switch to another chat
  /libraries       Show the bookshelves this chat draws on
  /history [raw]   Show the conversation so far
  /help            Show this help
  /exit            Leave (also Ctrl+D)

Anything else is sent as a message.`

// repl is one interactive chat session.
type repl struct {
	env    *Env
	reader lineReader
	chat   model.Chat
}

// RunREPL chats interactively with the chat named by ref. Without ref the
// most recently modified chat is used.
func RunREPL(env *Env, ref string) error {
	if env.Args.JSON {
		return &UsageError{Message: "chat repl is interactive and has no JSON mode"}
	}

	r := &repl{env: env}
	if f, ok := env.In.(*os.File); ok && f == os.Stdin && IsTTY() {
		r.reader = newHistoryReader()
	} else {
		r.reader = plainReader{p: env.Prompter()}
	}
	defer r.reader.Close()

	if err := r.use(ref); err != nil {
		return err
	}
	return r.loop()
}

func (r *repl) use(ref string) error {
	env := r.env
	if ref == "" {
		if err := env.App.Chats.ListChats(env.Ctx); err != nil {
			return err
		}
		chats := env.App.Chats.Snapshot().Chats
		if len(chats) == 0 {
			return &UsageError{Message: "no chats yet; create one with 'bookshelf chat create <title> --kb <bookshelf>'"}
		}
		ref = chats[0].ID.String()
	}
	chat, err := env.selectChat(ref, "/use <chat>")
	if err != nil {
		return err
	}
	r.chat = chat
	fmt.Fprintf(env.Out, "%s %s\n", TitleStyle.Render(chat.Title), DimStyle.Render("(/help for commands)"))
	if draft := env.App.Chats.Snapshot().Draft; draft != "" {
		fmt.Fprintf(env.Out, "%s %s\n", DimStyle.Render("Unsent draft:"), draft)
	}
	return nil
}

func (r *repl) loop() error {
	env := r.env
	for {
		input, err := r.reader.Prompt(PromptStyle.Render(r.chat.Title + "> "))
		if err != nil {
			// Ctrl+C, Ctrl+D and end of input all leave quietly.
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(env.Out)
				return nil
			}
			return err
		}
		if env.Ctx.Err() != nil {
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			more, err := r.command(input)
			if err != nil {
				fmt.Fprintf(env.ErrOut, "%s %s\n", ErrorStyle.Render("Error:"), Message(err))
			}
			if !more {
				return nil
			}
			continue
		}

		if err := r.send(input); err != nil {
			fmt.Fprintf(env.ErrOut, "%s %s\n", ErrorStyle.Render("Error:"), Message(err))
			if !errors.Is(err, conversation.ErrSendInFlight) {
				fmt.Fprintln(env.ErrOut, DimStyle.Render("Your message was kept as a draft."))
			}
		}
	}
}

func (r *repl) send(text string) error {
	env := r.env
	sp := newSpinner(env, "Thinking...")
	res, err := env.App.Chats.SendMessage(env.Ctx, text)
	sp.stop()
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Out)
	fmt.Fprintln(env.Out, AssistantStyle.Render(res.AssistantMessage.Role.DisplayName()+":"))
	fmt.Fprintln(env.Out, strings.TrimRight(env.markdown().Render(res.AssistantMessage.Content), "\n"))
	fmt.Fprintln(env.Out)
	return nil
}

// command runs a slash command and reports whether the REPL continues.
func (r *repl) command(input string) (bool, error) {
	env := r.env
	fields := strings.Fields(input)
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
	logging.L().Debug("repl command", "command", fields[0])

	switch strings.ToLower(fields[0]) {
	case "/exit", "/quit", "/q":
		return false, nil
	case "/help", "/?":
		fmt.Fprintln(env.Out, replHelp)
	case "/chats":
		if err := env.App.Chats.ListChats(env.Ctx); err != nil {
			return true, err
		}
		writeChatTable(env.Out, env.App.Chats.Snapshot().Chats)
	case "/use":
		if arg == "" {
			return true, ErrMissingArgument("chat", "/use <chat>")
		}
		return true, r.use(arg)
	case "/libraries", "/libs":
		assocs, err := env.App.Resolver.Resolve(env.Ctx, r.chat.KnowledgeBaseIDs)
		if err != nil {
			return true, err
		}
		writeLibraries(env.Out, assocs)
	case "/history":
		msgs := env.App.Chats.Snapshot().Messages
		if len(msgs) == 0 {
			fmt.Fprintln(env.Out, DimStyle.Render("No messages yet."))
			break
		}
		writeMessages(env.Out, env, msgs, arg == "raw")
	default:
		return true, &UsageError{Message: fmt.Sprintf("unknown command %s (try /help)", fields[0])}
	}
	return true, nil
}

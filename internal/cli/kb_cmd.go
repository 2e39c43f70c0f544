// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
)

// HandleKB runs "bookshelf kb ...".
func HandleKB(env *Env) error {
	if err := env.requireSession(); err != nil {
		return err
	}
	p := NewArgParser(env.Args.Raw, "yes", "y")

	switch p.Subcommand() {
	case "", "list", "ls":
		return kbList(env, p)
	case "create", "new":
		return kbCreate(env, p)
	case "rename", "mv":
		return kbRename(env, p)
	case "delete", "rm":
		return kbDelete(env, p)
	}
	return &UsageError{Usage: "bookshelf kb list|create|rename|delete", Message: fmt.Sprintf("unknown kb subcommand %q", p.Subcommand())}
}

func kbList(env *Env, p *ArgParser) error {
	kbs := env.App.KnowledgeBases
	if err := kbs.List(env.Ctx); err != nil {
		return err
	}
	items := kbs.Filter(p.Flag("filter"))

	return env.emit("kb list", items, func(w io.Writer) {
		if len(items) == 0 {
			if p.Flag("filter") != "" {
				fmt.Fprintf(w, "No bookshelves match %q.\n", p.Flag("filter"))
			} else {
				fmt.Fprintln(w, "No bookshelves yet. Create one with 'bookshelf kb create <title>'.")
			}
			return
		}
		t := newTable("ID", "TITLE", "CREATED")
		for _, kb := range items {
			t.add(kb.ID.String(), kb.Title, components.FormatTime(kb.CreatedAt.Time))
		}
		fmt.Fprint(w, t.render())
	})
}

func kbCreate(env *Env, p *ArgParser) error {
	title := JoinPositionalArgs(p, 1)
	kb, err := env.App.KnowledgeBases.Create(env.Ctx, title)
	if err != nil {
		return err
	}
	return env.emit("kb create", kb, func(io.Writer) {
		env.done("Created %q (id %s)", kb.Title, kb.ID)
	})
}

func kbRename(env *Env, p *ArgParser) error {
	const usage = "bookshelf kb rename <kb> <title>"
	if p.Positional(1) == "" {
		return ErrMissingArgument("bookshelf", usage)
	}
	kb, err := env.knowledgeBase(p.Positional(1))
	if err != nil {
		return err
	}
	renamed, err := env.App.KnowledgeBases.Rename(env.Ctx, kb.ID, JoinPositionalArgs(p, 2))
	if err != nil {
		return err
	}
	return env.emit("kb rename", renamed, func(io.Writer) {
		env.done("Renamed %q to %q", kb.Title, renamed.Title)
	})
}

func kbDelete(env *Env, p *ArgParser) error {
	const usage = "bookshelf kb delete <kb> [--yes]"
	if p.Positional(1) == "" {
		return ErrMissingArgument("bookshelf", usage)
	}
	kb, err := env.knowledgeBase(p.Positional(1))
	if err != nil {
		return err
	}
	if !confirmed(env, p, fmt.Sprintf("Delete %q and all of its documents?", kb.Title)) {
		return &UsageError{Message: "not deleted; pass --yes to confirm"}
	}
	if err := env.App.KnowledgeBases.Delete(env.Ctx, kb.ID); err != nil {
		return err
	}
	return env.emit("kb delete", map[string]model.ID{"deleted": kb.ID}, func(io.Writer) {
		env.done("Deleted %q", kb.Title)
	})
}

// confirmed reports whether a destructive action may go ahead: --yes, or
// an interactive yes. JSON mode never prompts.
func confirmed(env *Env, p *ArgParser, question string) bool {
	if p.BoolFlag("yes", "y") {
		return true
	}
	if env.Args.JSON {
		return false
	}
	return env.Prompter().Confirm(question)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/conversation"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// =============================================================================
// CREATE-CHAT FORM
// =============================================================================

const (
	fieldTitle = iota
	fieldDescription
	fieldLibraries
	fieldCount
)

// createForm collects a title, an optional description and at least one
// bookshelf. Errors are shown next to the field they belong to.
type createForm struct {
	title       textinput.Model
	description textinput.Model
	field       int
	cursor      int
	chosen      map[model.ID]bool
	errs        map[string]string
	submitting  bool
}

func newCreateForm() *createForm {
	title := textinput.New()
	title.Placeholder = "Chat title"
	title.CharLimit = 200
	title.Focus()

	desc := textinput.New()
	desc.Placeholder = "Optional description"
	desc.CharLimit = 500

	return &createForm{
		title:       title,
		description: desc,
		chosen:      make(map[model.ID]bool),
		errs:        make(map[string]string),
	}
}

// input builds the request, keeping bookshelves in list order.
func (f *createForm) input(kbs []model.KnowledgeBase) conversation.CreateChatInput {
	var ids []model.ID
	for _, kb := range kbs {
		if f.chosen[kb.ID] {
			ids = append(ids, kb.ID)
		}
	}
	return conversation.CreateChatInput{
		Title:            f.title.Value(),
		Description:      f.description.Value(),
		KnowledgeBaseIDs: ids,
	}
}

// setError routes err to the field it names. Other errors go to the form.
func (f *createForm) setError(err error) {
	f.errs = make(map[string]string)
	if err == nil {
		return
	}
	var fe *api.FieldError
	if errors.As(err, &fe) {
		switch fe.Field {
		case conversation.FieldKnowledgeBaseIDs:
			f.errs[conversation.FieldKnowledgeBaseIDs] = fe.Message
			f.focusField(fieldLibraries)
		case conversation.FieldTitle, "":
			f.errs[conversation.FieldTitle] = fe.Message
			f.focusField(fieldTitle)
		default:
			f.errs[""] = fe.Message
		}
		return
	}
	f.errs[""] = api.Message(err)
}

func (f *createForm) focusField(i int) {
	f.field = (i + fieldCount) % fieldCount
	f.title.Blur()
	f.description.Blur()
	switch f.field {
	case fieldTitle:
		f.title.Focus()
	case fieldDescription:
		f.description.Focus()
	}
}

// update handles one key. It reports whether the form should be submitted
// or dismissed.
func (f *createForm) update(msg tea.KeyMsg, keys KeyMap, kbs []model.KnowledgeBase) (submit, cancel bool, cmd tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		return false, true, nil
	case key.Matches(msg, keys.Focus):
		f.focusField(f.field + 1)
		return false, false, nil
	case msg.String() == "shift+tab":
		f.focusField(f.field - 1)
		return false, false, nil
	case key.Matches(msg, keys.Select):
		return !f.submitting, false, nil
	}

	switch f.field {
	case fieldTitle:
		f.title, cmd = f.title.Update(msg)
		delete(f.errs, conversation.FieldTitle)
	case fieldDescription:
		f.description, cmd = f.description.Update(msg)
	case fieldLibraries:
		switch {
		case key.Matches(msg, keys.Up):
			if f.cursor > 0 {
				f.cursor--
			}
		case key.Matches(msg, keys.Down):
			if f.cursor < len(kbs)-1 {
				f.cursor++
			}
		case key.Matches(msg, keys.Toggle):
			if f.cursor < len(kbs) {
				id := kbs[f.cursor].ID
				f.chosen[id] = !f.chosen[id]
				delete(f.errs, conversation.FieldKnowledgeBaseIDs)
			}
		}
	}
	return false, false, cmd
}

func (f *createForm) view(theme *styles.Theme, kbs []model.KnowledgeBase, loading bool) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render("New chat"))
	b.WriteString("\n\n")

	b.WriteString(theme.Label.Render("Title"))
	b.WriteString("\n")
	b.WriteString(f.title.View())
	b.WriteString("\n")
	if msg := f.errs[conversation.FieldTitle]; msg != "" {
		b.WriteString(theme.FieldError.Render(msg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(theme.Label.Render("Description"))
	b.WriteString("\n")
	b.WriteString(f.description.View())
	b.WriteString("\n\n")

	label := "Bookshelves"
	if f.field == fieldLibraries {
		label += " (space to choose)"
	}
	b.WriteString(theme.Label.Render(label))
	b.WriteString("\n")
	switch {
	case loading && len(kbs) == 0:
		b.WriteString(theme.Muted.Render("Loading bookshelves..."))
		b.WriteString("\n")
	case len(kbs) == 0:
		b.WriteString(theme.Muted.Render("No bookshelves yet. Create one first."))
		b.WriteString("\n")
	}
	for i, kb := range kbs {
		box := "[ ]"
		if f.chosen[kb.ID] {
			box = "[x]"
		}
		line := box + " " + kb.Title
		if f.field == fieldLibraries && i == f.cursor {
			b.WriteString(theme.SelectedRow.Render(line))
		} else {
			b.WriteString(theme.Row.Render(line))
		}
		b.WriteString("\n")
	}
	if msg := f.errs[conversation.FieldKnowledgeBaseIDs]; msg != "" {
		b.WriteString(theme.FieldError.Render(msg))
		b.WriteString("\n")
	}
	if msg := f.errs[""]; msg != "" {
		b.WriteString("\n")
		b.WriteString(theme.Error.Render(msg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if f.submitting {
		b.WriteString(theme.Muted.Render("Creating..."))
	} else {
		b.WriteString(theme.Button.Render("Create"))
	}
	return b.String()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package screens

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/collection"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// =============================================================================
// BOOKSHELVES SCREEN
// =============================================================================

// shelvesLoadedMsg follows a list. Failures are already reported by the
// collection.
type shelvesLoadedMsg struct{ err error }

type shelfSavedMsg struct {
	kind promptKind
	kb   model.KnowledgeBase
	err  error
}

type shelfDeletedMsg struct {
	kb  model.KnowledgeBase
	err error
}

// Bookshelves lists knowledge bases with inline create, rename and delete.
type Bookshelves struct {
	ctx      context.Context
	kbs      *collection.KnowledgeBases
	notifier notify.Notifier
	theme    *styles.Theme
	keys     ListKeys

	pager   pager
	filter  textinput.Model
	query   string
	prompt  *prompt
	confirm *model.KnowledgeBase
	spinner spinner.Model

	width, height int
}

// NewBookshelves creates the screen. pageSize 0 disables pagination.
func NewBookshelves(ctx context.Context, kbs *collection.KnowledgeBases, notifier notify.Notifier, theme *styles.Theme, pageSize int) *Bookshelves {
	f := textinput.New()
	f.Prompt = "/ "
	f.Placeholder = "filter by title"
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	return &Bookshelves{
		ctx:      ctx,
		kbs:      kbs,
		notifier: notify.Or(notifier),
		theme:    theme,
		keys:     DefaultListKeys(),
		pager:    pager{size: pageSize},
		filter:   f,
		spinner:  sp,
	}
}

func (s *Bookshelves) Init() tea.Cmd {
	return tea.Batch(s.load(), s.spinner.Tick)
}

func (s *Bookshelves) SetSize(width, height int) {
	s.width, s.height = width, height
	s.filter.Width = width - 6
}

func (s *Bookshelves) Focused() bool {
	return s.prompt != nil || s.filter.Focused()
}

// Visible returns the filtered knowledge bases, newest first.
func (s *Bookshelves) Visible() []model.KnowledgeBase {
	return s.kbs.Filter(s.query)
}

// Current returns the knowledge base under the cursor.
func (s *Bookshelves) Current() (model.KnowledgeBase, bool) {
	items := s.Visible()
	if len(items) == 0 {
		return model.KnowledgeBase{}, false
	}
	s.pager.clamp(len(items))
	return items[s.pager.cursor], true
}

func (s *Bookshelves) load() tea.Cmd {
	ctx, kbs := s.ctx, s.kbs
	return func() tea.Msg {
		return shelvesLoadedMsg{err: kbs.List(ctx)}
	}
}

func (s *Bookshelves) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !s.kbs.Loading() {
			return nil
		}
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return cmd

	case shelvesLoadedMsg:
		s.pager.clamp(len(s.Visible()))
		return nil

	case shelfSavedMsg:
		if s.prompt == nil {
			return nil
		}
		if msg.err != nil {
			s.prompt.fail(msg.err)
			return nil
		}
		s.prompt = nil
		s.focusOn(msg.kb.ID)
		if msg.kind == promptCreate {
			s.notifier.Notify(notify.Success(fmt.Sprintf("Created %q", msg.kb.Title)))
		}
		return nil

	case shelfDeletedMsg:
		if msg.err != nil {
			s.notifier.Notify(notify.Error("Could not delete "+msg.kb.Title, msg.err))
			return nil
		}
		s.notifier.Notify(notify.Success(fmt.Sprintf("Deleted %q", msg.kb.Title)))
		s.pager.clamp(len(s.Visible()))
		return nil

	case tea.KeyMsg:
		return s.handleKey(msg)
	}
	return nil
}

func (s *Bookshelves) handleKey(msg tea.KeyMsg) tea.Cmd {
	if s.prompt != nil {
		switch {
		case key.Matches(msg, s.keys.Back):
			if !s.prompt.busy {
				s.prompt = nil
			}
			return nil
		case msg.Type == tea.KeyEnter:
			return s.submitPrompt()
		}
		return s.prompt.update(msg)
	}

	if s.filter.Focused() {
		switch msg.Type {
		case tea.KeyEsc:
			s.filter.Reset()
			s.filter.Blur()
			s.query = ""
			return nil
		case tea.KeyEnter:
			s.filter.Blur()
			return nil
		}
		var cmd tea.Cmd
		s.filter, cmd = s.filter.Update(msg)
		s.query = s.filter.Value()
		s.pager.cursor = 0
		return cmd
	}

	if s.confirm != nil {
		kb := *s.confirm
		s.confirm = nil
		if key.Matches(msg, s.keys.Confirm) {
			return s.remove(kb)
		}
		return nil
	}

	n := len(s.Visible())
	switch {
	case key.Matches(msg, s.keys.Up):
		s.pager.move(-1, n)
	case key.Matches(msg, s.keys.Down):
		s.pager.move(1, n)
	case key.Matches(msg, s.keys.PageUp):
		s.pager.movePage(-1, n)
	case key.Matches(msg, s.keys.PageDown):
		s.pager.movePage(1, n)
	case key.Matches(msg, s.keys.Filter):
		s.filter.Focus()
		return textinput.Blink
	case key.Matches(msg, s.keys.Reload):
		return tea.Batch(s.load(), s.spinner.Tick)
	case key.Matches(msg, s.keys.Create):
		s.prompt = newPrompt(promptCreate, "New bookshelf title", "", "")
		return textinput.Blink
	case key.Matches(msg, s.keys.Rename):
		if kb, ok := s.Current(); ok {
			s.prompt = newPrompt(promptRename, "Rename bookshelf", kb.Title, kb.ID)
			return textinput.Blink
		}
	case key.Matches(msg, s.keys.Delete):
		if kb, ok := s.Current(); ok {
			s.confirm = &kb
		}
	case key.Matches(msg, s.keys.Open):
		if kb, ok := s.Current(); ok {
			return openDocuments(kb)
		}
	}
	return nil
}

func (s *Bookshelves) submitPrompt() tea.Cmd {
	p := s.prompt
	if p.busy {
		return nil
	}
	title := p.value()
	if title == "" {
		p.err = "Title is required"
		return nil
	}
	p.busy = true
	p.err = ""
	ctx, kbs, kind, id := s.ctx, s.kbs, p.kind, p.target
	return func() tea.Msg {
		var kb model.KnowledgeBase
		var err error
		if kind == promptRename {
			kb, err = kbs.Rename(ctx, id, title)
		} else {
			kb, err = kbs.Create(ctx, title)
		}
		return shelfSavedMsg{kind: kind, kb: kb, err: err}
	}
}

func (s *Bookshelves) remove(kb model.KnowledgeBase) tea.Cmd {
	ctx, kbs := s.ctx, s.kbs
	return func() tea.Msg {
		return shelfDeletedMsg{kb: kb, err: kbs.Delete(ctx, kb.ID)}
	}
}

// focusOn moves the cursor to id if it is visible.
func (s *Bookshelves) focusOn(id model.ID) {
	for i, kb := range s.Visible() {
		if kb.ID == id {
			s.pager.cursor = i
			return
		}
	}
}

func (s *Bookshelves) View() string {
	t := s.theme
	var b strings.Builder
	b.WriteString(t.Title.Render("Bookshelves"))
	b.WriteString("\n")

	if s.filter.Focused() || s.query != "" {
		b.WriteString(s.filter.View())
		b.WriteString("\n")
	}

	items := s.Visible()
	switch {
	case s.kbs.Loading() && !s.kbs.Loaded():
		b.WriteString(s.spinner.View() + " Loading bookshelves...")
		b.WriteString("\n")
	case s.kbs.Err() != nil && !s.kbs.Loaded():
		b.WriteString(t.Error.Render(api.Message(s.kbs.Err())))
		b.WriteString("\n")
		b.WriteString(t.Help.Render("R to retry"))
		b.WriteString("\n")
	default:
		s.pager.clamp(len(items))
		page, pages := collection.Page(items, s.pager.page(), s.pager.size)
		table := components.Table{
			Columns: []components.Column{
				{Title: "Title"},
				{Title: "Created", Width: 16},
			},
			Cursor: s.pager.rowCursor(),
			Width:  s.width,
			Empty:  "No bookshelves yet. Press n to create one.",
		}
		if s.query != "" {
			table.Empty = "Nothing matches " + fmt.Sprintf("%q", s.query)
		}
		for _, kb := range page {
			table.Rows = append(table.Rows, components.Row{
				Cells: []string{kb.Title, components.FormatTime(kb.CreatedAt.Time)},
			})
		}
		b.WriteString(table.View(t))
		b.WriteString("\n")
		if pages > 1 {
			b.WriteString(t.Muted.Render(fmt.Sprintf("Page %d of %d", s.pager.page()+1, pages)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case s.prompt != nil:
		b.WriteString(s.prompt.view(t))
	case s.confirm != nil:
		b.WriteString(t.Warning.Render(fmt.Sprintf("Delete %q and all of its documents? y/n", s.confirm.Title)))
	default:
		b.WriteString(components.HelpLine(t, pairs(s.keys.Open, s.keys.Create, s.keys.Rename, s.keys.Delete, s.keys.Filter, s.keys.Reload)...))
	}
	return b.String()
}

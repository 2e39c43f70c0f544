// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package screens

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// Screen is a full-screen view driven by the root model.
type Screen interface {
	Init() tea.Cmd
	Update(tea.Msg) tea.Cmd
	View() string
	SetSize(width, height int)
	// Focused reports whether a text field is capturing keys, in which
	// case the root model must not treat letters as shortcuts.
	Focused() bool
}

// =============================================================================
// NAVIGATION MESSAGES
// =============================================================================

// OpenDocumentsMsg asks the root model to show a bookshelf's documents.
type OpenDocumentsMsg struct {
	KnowledgeBase model.KnowledgeBase
}

// BackMsg asks the root model to return to the previous screen.
type BackMsg struct{}

func openDocuments(kb model.KnowledgeBase) tea.Cmd {
	return func() tea.Msg { return OpenDocumentsMsg{KnowledgeBase: kb} }
}

func back() tea.Msg { return BackMsg{} }

// =============================================================================
// KEYS
// =============================================================================

// ListKeys are the bindings shared by the list screens.
type ListKeys struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Open     key.Binding
	Back     key.Binding
	Create   key.Binding
	Rename   key.Binding
	Delete   key.Binding
	Confirm  key.Binding
	Filter   key.Binding
	Reload   key.Binding
	Mark     key.Binding
	MarkAll  key.Binding
	Toggle   key.Binding
	Enable   key.Binding
	Disable  key.Binding
	Upload   key.Binding
	Parse    key.Binding
	Preview  key.Binding
	Download key.Binding
	Prev     key.Binding
	Next     key.Binding
	View     key.Binding
	Newer    key.Binding
	Older    key.Binding
}

// DefaultListKeys returns the default list bindings.
func DefaultListKeys() ListKeys {
	return ListKeys{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down/j", "down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("PgUp", "prev page")),
		PageDown: key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("PgDn", "next page")),
		Open:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Create:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		Rename:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
		Delete:   key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
		Confirm:  key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "confirm")),
		Filter:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		Reload:   key.NewBinding(key.WithKeys("R", "ctrl+r"), key.WithHelp("R", "reload")),
		Mark:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "mark")),
		MarkAll:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "mark all")),
		Toggle:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "toggle")),
		Enable:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "enable")),
		Disable:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "disable")),
		Upload:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload")),
		Parse:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "parse")),
		Preview:  key.NewBinding(key.WithKeys("o", "enter"), key.WithHelp("o", "preview")),
		Download: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save")),
		Prev:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("left", "previous")),
		Next:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("right", "next")),
		View:     key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "switch view")),
		Newer:    key.NewBinding(key.WithKeys("["), key.WithHelp("[", "newer version")),
		Older:    key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "older version")),
	}
}

func pairs(bindings ...key.Binding) []string {
	out := make([]string, 0, len(bindings)*2)
	for _, b := range bindings {
		h := b.Help()
		out = append(out, h.Key, h.Desc)
	}
	return out
}

// =============================================================================
// PROMPT
// =============================================================================

// promptKind identifies what a prompt's value is for.
type promptKind int

const (
	promptCreate promptKind = iota
	promptRename
	promptUpload
	promptDownload
)

// prompt is a one-line inline form with its own field error.
type prompt struct {
	kind   promptKind
	label  string
	target model.ID
	input  textinput.Model
	err    string
	busy   bool
}

func newPrompt(kind promptKind, label, value string, target model.ID) *prompt {
	in := textinput.New()
	in.CharLimit = 1024
	in.SetValue(value)
	in.CursorEnd()
	in.Focus()
	return &prompt{kind: kind, label: label, target: target, input: in}
}

func (p *prompt) value() string {
	return strings.TrimSpace(p.input.Value())
}

// fail shows err under the input. Field errors show their message.
func (p *prompt) fail(err error) {
	p.busy = false
	var fe *api.FieldError
	if errors.As(err, &fe) {
		p.err = fe.Message
		return
	}
	p.err = api.Message(err)
}

func (p *prompt) update(msg tea.Msg) tea.Cmd {
	if p.busy {
		return nil
	}
	var cmd tea.Cmd
	before := p.input.Value()
	p.input, cmd = p.input.Update(msg)
	if p.input.Value() != before {
		p.err = ""
	}
	return cmd
}

func (p *prompt) view(theme *styles.Theme) string {
	var b strings.Builder
	b.WriteString(theme.Label.Render(p.label))
	b.WriteString("\n")
	b.WriteString(p.input.View())
	if p.busy {
		b.WriteString("  " + theme.Muted.Render("working..."))
	}
	if p.err != "" {
		b.WriteString("\n")
		b.WriteString(theme.FieldError.Render(p.err))
	}
	b.WriteString("\n")
	b.WriteString(theme.Help.Render("enter confirm  esc cancel"))
	return theme.Focused.Render(b.String())
}

// =============================================================================
// PAGING
// =============================================================================

// pager keeps a cursor over a filtered list and derives the visible page.
type pager struct {
	cursor int
	size   int
}

func (p *pager) clamp(n int) {
	if p.cursor >= n {
		p.cursor = n - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

func (p *pager) move(delta, n int) {
	p.cursor += delta
	p.clamp(n)
}

func (p *pager) page() int {
	if p.size <= 0 {
		return 0
	}
	return p.cursor / p.size
}

func (p *pager) movePage(delta, n int) {
	if p.size <= 0 {
		return
	}
	p.cursor = (p.page() + delta) * p.size
	p.clamp(n)
}

// rowCursor is the cursor's index within the visible page.
func (p *pager) rowCursor() int {
	if p.size <= 0 {
		return p.cursor
	}
	return p.cursor % p.size
}

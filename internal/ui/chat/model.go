// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bookshelf-tui/internal/association"
	"github.com/jeranaias/bookshelf-tui/internal/collection"
	"github.com/jeranaias/bookshelf-tui/internal/conversation"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// Deps are the services the chat screen drives.
type Deps struct {
	Chats          *conversation.Manager
	Associations   *association.View
	KnowledgeBases *collection.KnowledgeBases
}

// Options tune rendering.
type Options struct {
	RevealInterval time.Duration
	RevealChunk    int
	// MarkdownStyle is a glamour style name; "" means auto.
	MarkdownStyle string
}

type focus int

const (
	focusSidebar focus = iota
	focusInput
)

// Model is the chat screen: the chat list, the selected chat's history, the
// message input and the bookshelf panel.
type Model struct {
	ctx   context.Context
	deps  Deps
	opts  Options
	theme *styles.Theme
	keys  KeyMap

	width  int
	height int
	focus  focus

	cursor        int
	confirmDelete model.ID
	showLibraries bool

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	markdown *components.Markdown

	reveal *Reveal
	form   *createForm
}

// New creates the chat screen. ctx bounds every request it starts.
func New(ctx context.Context, deps Deps, theme *styles.Theme, opts Options) *Model {
	if opts.RevealInterval <= 0 {
		opts.RevealInterval = DefaultRevealInterval
	}
	if opts.RevealChunk <= 0 {
		opts.RevealChunk = DefaultRevealChunk
	}

	keys := DefaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Ask about your documents..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = keys.Newline

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	md := components.NewMarkdown(80)
	if opts.MarkdownStyle != "" {
		md.WithStyle(opts.MarkdownStyle)
	}

	return &Model{
		ctx:           ctx,
		deps:          deps,
		opts:          opts,
		theme:         theme,
		keys:          keys,
		viewport:      viewport.New(80, 20),
		input:         ta,
		spinner:       sp,
		markdown:      md,
		showLibraries: true,
	}
}

// SetOptions applies new pacing, e.g. after a config reload.
func (m *Model) SetOptions(opts Options) {
	if opts.RevealInterval > 0 {
		m.opts.RevealInterval = opts.RevealInterval
	}
	if opts.RevealChunk > 0 {
		m.opts.RevealChunk = opts.RevealChunk
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

type chatsLoadedMsg struct{ err error }

type historyLoadedMsg struct {
	chatID model.ID
	err    error
}

type sentMsg struct {
	chatID model.ID
	result model.SendResult
	err    error
}

type createdMsg struct {
	chat model.Chat
	err  error
}

type deletedMsg struct {
	id  model.ID
	err error
}

type librariesLoadedMsg struct {
	chatID  model.ID
	applied bool
	err     error
}

type formLibrariesMsg struct{ err error }

// =============================================================================
// COMMANDS
// =============================================================================

func (m *Model) loadChats() tea.Cmd {
	chats, ctx := m.deps.Chats, m.ctx
	return func() tea.Msg {
		return chatsLoadedMsg{err: chats.ListChats(ctx)}
	}
}

func (m *Model) selectChat(chat model.Chat) tea.Cmd {
	m.reveal = nil
	m.confirmDelete = ""
	m.input.Reset()
	chats, ctx := m.deps.Chats, m.ctx
	load := func() tea.Msg {
		// The previous chat's unsent text is persisted before switching.
		chats.FlushDraft(ctx)
		return historyLoadedMsg{chatID: chat.ID, err: chats.SelectChat(ctx, chat)}
	}
	return tea.Batch(load, m.loadLibraries(chat), m.spinner.Tick)
}

func (m *Model) loadLibraries(chat model.Chat) tea.Cmd {
	view, ctx := m.deps.Associations, m.ctx
	if view == nil {
		return nil
	}
	return func() tea.Msg {
		applied, err := view.Load(ctx, chat)
		return librariesLoadedMsg{chatID: chat.ID, applied: applied, err: err}
	}
}

func (m *Model) send(text string) tea.Cmd {
	snap := m.deps.Chats.Snapshot()
	if snap.Selected == nil || snap.Sending() || strings.TrimSpace(text) == "" {
		return nil
	}
	chatID := snap.Selected.ID
	chats, ctx := m.deps.Chats, m.ctx
	// The sending state is set synchronously by the manager once the
	// command runs; blur now so no second Enter reaches the input.
	m.input.Blur()
	return tea.Batch(func() tea.Msg {
		res, err := chats.SendMessage(ctx, text)
		return sentMsg{chatID: chatID, result: res, err: err}
	}, m.spinner.Tick)
}

func (m *Model) create() tea.Cmd {
	if m.form == nil || m.form.submitting {
		return nil
	}
	in := m.form.input(m.libraries())
	if err := in.Validate(); err != nil {
		m.form.setError(err)
		return nil
	}
	m.form.submitting = true
	chats, ctx := m.deps.Chats, m.ctx
	return func() tea.Msg {
		chat, err := chats.CreateChat(ctx, in)
		return createdMsg{chat: chat, err: err}
	}
}

func (m *Model) remove(id model.ID) tea.Cmd {
	chats, ctx := m.deps.Chats, m.ctx
	return func() tea.Msg {
		return deletedMsg{id: id, err: chats.DeleteChat(ctx, id)}
	}
}

func (m *Model) openForm() tea.Cmd {
	m.form = newCreateForm()
	kbs, ctx := m.deps.KnowledgeBases, m.ctx
	if kbs == nil {
		return nil
	}
	return func() tea.Msg {
		return formLibrariesMsg{err: kbs.List(ctx)}
	}
}

func (m *Model) libraries() []model.KnowledgeBase {
	if m.deps.KnowledgeBases == nil {
		return nil
	}
	return m.deps.KnowledgeBases.Items()
}

// =============================================================================
// BUBBLE TEA
// =============================================================================

// Init loads the chat list.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadChats(), m.spinner.Tick)
}

// SetSize lays the screen out for a width x height area.
func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	m.layout()
	m.refresh()
}

// Focused reports whether the message input has focus. The root model
// uses it to decide whether single-letter keys are global shortcuts.
func (m *Model) Focused() bool {
	return m.form != nil || m.focus == focusInput
}

// Update handles a message and returns the next command.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		snap := m.deps.Chats.Snapshot()
		if !snap.Sending() && !snap.ChatsLoading && snap.State != conversation.StateLoadingHistory {
			return nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd

	case chatsLoadedMsg:
		m.clampCursor()
		return nil

	case historyLoadedMsg:
		snap := m.deps.Chats.Snapshot()
		if snap.Selected == nil || snap.Selected.ID != msg.chatID {
			return nil
		}
		if m.input.Value() == "" && snap.Draft != "" {
			m.input.SetValue(snap.Draft)
		}
		m.refresh()
		m.viewport.GotoBottom()
		return nil

	case sentMsg:
		return m.handleSent(msg)

	case RevealTickMsg:
		return m.handleRevealTick(msg)

	case createdMsg:
		if m.form == nil {
			return nil
		}
		m.form.submitting = false
		if msg.err != nil {
			m.form.setError(msg.err)
			return nil
		}
		m.form = nil
		m.cursor = 0
		m.focus = focusInput
		m.input.Focus()
		m.refresh()
		return tea.Batch(m.loadLibraries(msg.chat), textarea.Blink)

	case deletedMsg:
		m.clampCursor()
		if _, ok := m.deps.Chats.Selected(); !ok {
			m.reveal = nil
			m.input.Reset()
			if m.deps.Associations != nil {
				m.deps.Associations.Clear()
			}
			m.focus = focusSidebar
		}
		m.refresh()
		return nil

	case librariesLoadedMsg, formLibrariesMsg:
		return nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) handleSent(msg sentMsg) tea.Cmd {
	if errors.Is(msg.err, conversation.ErrSendInFlight) {
		// The first send still owns the input; it is refocused when that
		// send finishes.
		logging.L().Debug("send rejected while another is in flight", "chat", msg.chatID)
		return nil
	}
	sel, ok := m.deps.Chats.Selected()
	current := ok && sel.ID == msg.chatID
	if current {
		m.focus = focusInput
		m.input.Focus()
	}
	if msg.err != nil {
		// The manager already reported the failure. The typed text stays
		// in the input so the user can retry.
		return textarea.Blink
	}
	if !current {
		return nil
	}
	m.input.Reset()
	reply := msg.result.AssistantMessage
	m.reveal = NewReveal(reply.ID, reply.Content, m.opts.RevealChunk)
	m.refresh()
	m.viewport.GotoBottom()
	if m.reveal.Done() {
		return m.finishReveal()
	}
	return tea.Batch(revealTickCmd(reply.ID, m.opts.RevealInterval), textarea.Blink)
}

func (m *Model) handleRevealTick(msg RevealTickMsg) tea.Cmd {
	if m.reveal == nil || m.reveal.ID() != msg.ID {
		return nil
	}
	follow := m.viewport.AtBottom()
	more := m.reveal.Tick()
	if !more {
		return m.finishReveal()
	}
	m.refresh()
	if follow {
		m.viewport.GotoBottom()
	}
	return revealTickCmd(msg.ID, m.opts.RevealInterval)
}

func (m *Model) finishReveal() tea.Cmd {
	if m.reveal == nil {
		return nil
	}
	m.deps.Chats.AcknowledgeArrival(m.reveal.ID())
	m.reveal = nil
	follow := m.viewport.AtBottom()
	m.refresh()
	if follow {
		m.viewport.GotoBottom()
	}
	return nil
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.form != nil {
		submit, cancel, cmd := m.form.update(msg, m.keys, m.libraries())
		switch {
		case cancel:
			m.form = nil
			return nil
		case submit:
			return m.create()
		}
		return cmd
	}

	if m.confirmDelete != "" {
		id := m.confirmDelete
		m.confirmDelete = ""
		if key.Matches(msg, m.keys.Confirm) {
			return m.remove(id)
		}
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Libraries):
		m.showLibraries = !m.showLibraries
		m.layout()
		m.refresh()
		return nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil
	}

	if m.focus == focusInput {
		return m.handleInputKey(msg)
	}
	return m.handleSidebarKey(msg)
}

func (m *Model) handleSidebarKey(msg tea.KeyMsg) tea.Cmd {
	chats := m.deps.Chats.Snapshot().Chats
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(chats)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Select):
		if m.cursor < len(chats) {
			m.focus = focusInput
			m.input.Focus()
			return tea.Batch(m.selectChat(chats[m.cursor]), textarea.Blink)
		}
	case key.Matches(msg, m.keys.Focus):
		if _, ok := m.deps.Chats.Selected(); ok {
			m.focus = focusInput
			m.input.Focus()
			return textarea.Blink
		}
	case key.Matches(msg, m.keys.NewChat):
		return m.openForm()
	case key.Matches(msg, m.keys.Delete):
		if m.cursor < len(chats) {
			m.confirmDelete = chats[m.cursor].ID
		}
	case key.Matches(msg, m.keys.Reload):
		return m.loadChats()
	}
	return nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Focus):
		m.focus = focusSidebar
		m.input.Blur()
		return nil
	case key.Matches(msg, m.keys.Send) && !key.Matches(msg, m.keys.Newline):
		return m.send(m.input.Value())
	}

	if m.deps.Chats.Snapshot().Sending() {
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.deps.Chats.SetDraft(m.input.Value())
	return cmd
}

func (m *Model) clampCursor() {
	n := len(m.deps.Chats.Snapshot().Chats)
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/app"
	"github.com/jeranaias/bookshelf-tui/internal/config"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
	"github.com/jeranaias/bookshelf-tui/internal/session"
	"github.com/jeranaias/bookshelf-tui/internal/ui/chat"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
	"github.com/jeranaias/bookshelf-tui/internal/ui/screens"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// =============================================================================
// APPLICATION MODEL
// =============================================================================

// Tab is one of the signed-in sections.
type Tab int

const (
	TabChats       Tab = iota // Chat threads
	TabBookshelves            // Knowledge bases and their documents
	TabUsage                  // Monthly token usage
)

var tabNames = [...]string{"Chats", "Bookshelves", "Usage"}

func (t Tab) String() string {
	if t < 0 || int(t) >= len(tabNames) {
		return "Unknown"
	}
	return tabNames[t]
}

// headerRows is the height taken by the tab bar.
const headerRows = 2

// Model is the root Bubble Tea model. It gates on the session, owns the
// tab bar and routes messages to the screens.
type Model struct {
	ctx   context.Context
	app   *app.App
	cfg   *config.Config
	theme *styles.Theme

	width  int
	height int

	toasts  *components.ToastManager
	routes  *routeBridge
	spinner spinner.Model

	auth    *screens.Auth
	chat    *chat.Model
	shelves *screens.Bookshelves
	docs    *screens.Documents
	usage   *screens.Usage

	// Signed-in state
	home       bool
	tab        Tab
	inDocs     bool
	started    map[Tab]bool
	loggingOut bool

	crash *components.ErrorView
}

// NewModel builds the root model and takes over the app's notifier and
// navigator. ctx bounds every request started from the UI.
func NewModel(ctx context.Context, a *app.App, theme *styles.Theme) *Model {
	cfg := a.Config
	toasts := components.NewToastManager()
	a.SetNotifier(toasts)

	routes := newRouteBridge(ctx)
	a.SetNavigator(routes)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	docOpts := screens.DefaultDocumentOptions()
	docOpts.PageSize = cfg.UI.PageSize
	docOpts.PollInterval = cfg.PollInterval()

	return &Model{
		ctx:     ctx,
		app:     a,
		cfg:     cfg,
		theme:   theme,
		toasts:  toasts,
		routes:  routes,
		spinner: sp,
		auth:    screens.NewAuth(ctx, a.Session, theme, cfg.Session.RememberMe),
		chat: chat.New(ctx, chat.Deps{
			Chats:          a.Chats,
			Associations:   a.Associations,
			KnowledgeBases: a.KnowledgeBases,
		}, theme, chatOptions(cfg)),
		shelves: screens.NewBookshelves(ctx, a.KnowledgeBases, toasts, theme, cfg.UI.PageSize),
		docs:    screens.NewDocuments(ctx, a.Documents, toasts, theme, docOpts),
		usage:   screens.NewUsage(ctx, a.Usage, theme),
		started: make(map[Tab]bool),
	}
}

func chatOptions(cfg *config.Config) chat.Options {
	return chat.Options{
		RevealInterval: cfg.RevealInterval(),
		RevealChunk:    cfg.UI.RevealChunk,
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

// sessionResolvedMsg reports the startup session check.
type sessionResolvedMsg struct {
	err error
}

// routeMsg carries a navigation request from the identity provider.
type routeMsg struct {
	route session.Route
}

// configChangedMsg is sent by the config watcher.
type configChangedMsg struct {
	cfg *config.Config
	err error
}

// routeBridge turns provider navigation into tea messages. Navigate is
// called from command goroutines, so routes are queued on a channel that a
// listening command drains.
type routeBridge struct {
	ctx context.Context
	ch  chan session.Route
}

func newRouteBridge(ctx context.Context) *routeBridge {
	return &routeBridge{ctx: ctx, ch: make(chan session.Route, 8)}
}

// Navigate implements session.Navigator.
func (b *routeBridge) Navigate(r session.Route) {
	select {
	case b.ch <- r:
	case <-b.ctx.Done():
	}
}

// listen waits for the next route. It is re-issued after every routeMsg.
func (b *routeBridge) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case r := <-b.ch:
			return routeMsg{route: r}
		case <-b.ctx.Done():
			return nil
		}
	}
}

func (m *Model) resolveSession() tea.Cmd {
	provider := m.app.Session
	ctx := m.ctx
	return func() tea.Msg {
		return sessionResolvedMsg{err: provider.Init(ctx)}
	}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the session check and the background tickers.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.routes.listen(),
		m.resolveSession(),
		m.spinner.Tick,
		components.ToastTickCmd(),
		m.auth.Init(),
	)
}

// Update handles messages. A panic inside a screen is turned into the
// error view instead of tearing down the terminal.
func (m *Model) Update(msg tea.Msg) (_ tea.Model, cmd tea.Cmd) {
	defer func() {
		if r := recover(); r != nil {
			m.crashed("update", r)
			cmd = nil
		}
	}()
	return m, m.update(msg)
}

func (m *Model) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.home && m.crash == nil {
			return m.active().Update(msg)
		}
		return nil

	case components.ToastTickMsg:
		m.toasts.TickToasts()
		return components.ToastTickCmd()

	case sessionResolvedMsg:
		if msg.err != nil {
			m.toasts.Notify(notify.Notice{
				Level:   notify.LevelWarning,
				Title:   "Could not check your session",
				Message: api.Message(msg.err),
			})
		}
		if m.app.Session.Gate() == session.GateAllow {
			return m.enterHome()
		}
		return nil

	case routeMsg:
		var cmd tea.Cmd
		switch msg.route {
		case session.RouteHome:
			cmd = m.enterHome()
		case session.RouteLanding:
			m.leaveHome()
		}
		return tea.Batch(cmd, m.routes.listen())

	case configChangedMsg:
		m.applyConfig(msg.cfg, msg.err)
		return nil

	case screens.OpenDocumentsMsg:
		m.inDocs = true
		m.docs.SetSize(m.width, m.bodyHeight())
		return m.docs.Open(msg.KnowledgeBase)

	case screens.BackMsg:
		m.inDocs = false
		return nil
	}

	return m.broadcast(msg)
}

// broadcast hands a non-key message to every live screen. Results of
// requests started on one tab still land after the user switched away.
func (m *Model) broadcast(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	if sp, ok := msg.(spinner.TickMsg); ok && m.app.Session.Gate() == session.GateLoading {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(sp)
		cmds = append(cmds, cmd)
	}
	if !m.home {
		cmds = append(cmds, m.auth.Update(msg))
		return tea.Batch(cmds...)
	}
	for _, s := range m.liveScreens() {
		cmds = append(cmds, s.Update(msg))
	}
	return tea.Batch(cmds...)
}

func (m *Model) liveScreens() []screens.Screen {
	live := make([]screens.Screen, 0, 4)
	if m.started[TabChats] {
		live = append(live, m.chat)
	}
	if m.started[TabBookshelves] {
		live = append(live, m.shelves)
		if !m.docs.KnowledgeBase().ID.IsZero() {
			live = append(live, m.docs)
		}
	}
	if m.started[TabUsage] {
		live = append(live, m.usage)
	}
	return live
}

// active returns the screen that receives keys.
func (m *Model) active() screens.Screen {
	switch m.tab {
	case TabBookshelves:
		if m.inDocs {
			return m.docs
		}
		return m.shelves
	case TabUsage:
		return m.usage
	}
	return m.chat
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if key == "ctrl+c" {
		return tea.Quit
	}

	if m.crash != nil {
		switch key {
		case "r":
			m.crash = nil
			if m.home {
				return m.active().Init()
			}
			return nil
		case "q":
			return tea.Quit
		}
		return nil
	}

	switch m.app.Session.Gate() {
	case session.GateLoading:
		return nil
	case session.GateRedirect:
		return m.auth.Update(msg)
	}
	if !m.home {
		return nil
	}

	active := m.active()
	if !active.Focused() {
		switch key {
		case "1":
			return m.switchTab(TabChats)
		case "2":
			return m.switchTab(TabBookshelves)
		case "3":
			return m.switchTab(TabUsage)
		case "q":
			return tea.Quit
		case "L":
			return m.logout()
		}
	}
	return active.Update(msg)
}

// =============================================================================
// NAVIGATION
// =============================================================================

func (m *Model) enterHome() tea.Cmd {
	if m.home {
		return nil
	}
	m.home = true
	m.loggingOut = false
	m.tab = TabChats
	m.inDocs = false
	m.started = make(map[Tab]bool)
	logging.L().Info("entered home", "email", m.app.Session.Identity().Email)
	return m.activate(TabChats)
}

// leaveHome returns to the sign-in form. Per-account caches are already
// cleared by the app when the session ends.
func (m *Model) leaveHome() {
	wasHome := m.home
	m.home = false
	m.inDocs = false
	m.started = make(map[Tab]bool)
	m.docs.Close()
	m.auth.Reset()
	if wasHome && !m.loggingOut {
		m.toasts.Notify(notify.Notice{
			Level:   notify.LevelWarning,
			Title:   "Session expired",
			Message: "Sign in again to continue",
		})
	}
	m.loggingOut = false
}

func (m *Model) switchTab(t Tab) tea.Cmd {
	if t == m.tab {
		return nil
	}
	m.tab = t
	return m.activate(t)
}

// activate initializes a tab the first time it is shown.
func (m *Model) activate(t Tab) tea.Cmd {
	if m.started[t] {
		return nil
	}
	m.started[t] = true
	var s screens.Screen
	switch t {
	case TabChats:
		s = m.chat
	case TabBookshelves:
		s = m.shelves
	case TabUsage:
		s = m.usage
	}
	s.SetSize(m.width, m.bodyHeight())
	return s.Init()
}

func (m *Model) logout() tea.Cmd {
	m.loggingOut = true
	provider := m.app.Session
	ctx := m.ctx
	return func() tea.Msg {
		provider.Logout(ctx)
		return nil
	}
}

// =============================================================================
// LAYOUT AND CONFIG
// =============================================================================

func (m *Model) bodyHeight() int {
	if h := m.height - headerRows; h > 0 {
		return h
	}
	return 0
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.theme.SetSize(width, height)
	m.auth.SetSize(width, height)
	body := m.bodyHeight()
	m.chat.SetSize(width, body)
	m.shelves.SetSize(width, body)
	m.docs.SetSize(width, body)
	m.usage.SetSize(width, body)
}

// applyConfig takes a reloaded config. Only settings that can change
// without rebuilding the service graph are applied.
func (m *Model) applyConfig(cfg *config.Config, err error) {
	if err != nil {
		m.toasts.Notify(notify.Notice{
			Level:   notify.LevelWarning,
			Title:   "Config reload failed",
			Message: err.Error(),
		})
		return
	}
	if cfg == nil {
		return
	}
	if styles.NormalizeMode(cfg.UI.Theme) != m.theme.Mode {
		// Screens hold the theme pointer, so it is replaced in place.
		*m.theme = *styles.NewTheme(cfg.UI.Theme)
		m.theme.SetSize(m.width, m.height)
	}
	m.chat.SetOptions(chatOptions(cfg))
	if cfg.API.BaseURL != m.cfg.API.BaseURL {
		m.toasts.Notify(notify.Notice{
			Level:   notify.LevelInfo,
			Title:   "Server changed",
			Message: "Restart bookshelf to connect to " + cfg.API.BaseURL,
		})
	}
	m.cfg = cfg
	m.toasts.Notify(notify.Notice{Level: notify.LevelSuccess, Title: "Configuration reloaded"})
}

// crashed records a recovered panic and switches to the error view.
func (m *Model) crashed(where string, r any) {
	logging.L().Error("recovered panic", "in", where, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	m.crash = &components.ErrorView{
		Title:  "Something went wrong",
		Detail: fmt.Sprint(r),
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the current gate and screen.
func (m *Model) View() (out string) {
	defer func() {
		if r := recover(); r != nil {
			m.crashed("view", r)
			out = m.crash.View(m.theme)
		}
	}()

	if m.crash != nil {
		return m.crash.View(m.theme)
	}

	var content string
	switch {
	case m.app.Session.Gate() == session.GateLoading:
		content = components.LoadingView(m.theme, m.spinner.View(), "Checking your session...")
	case !m.home:
		content = m.auth.View()
	default:
		content = m.renderHeader() + "\n\n" + m.active().View()
	}

	toasts := m.toasts.Toasts()
	if len(toasts) == 0 {
		return content
	}
	stack := components.RenderToastStack(toasts, m.width, m.height)
	if m.width > 0 {
		stack = lipgloss.PlaceHorizontal(m.width, lipgloss.Right, stack)
	}
	return lipgloss.JoinVertical(lipgloss.Left, content, stack)
}

func (m *Model) renderHeader() string {
	tabs := make([]string, 0, len(tabNames))
	for i, name := range tabNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if Tab(i) == m.tab {
			tabs = append(tabs, m.theme.Title.Render(label))
		} else {
			tabs = append(tabs, m.theme.Muted.Render(label))
		}
	}
	left := m.theme.Brand.Render("bookshelf") + "  " + strings.Join(tabs, "  ")

	snap := m.app.Session.Snapshot()
	right := snap.Identity.Email
	if remaining := snap.Remaining(time.Now()); remaining > 0 && remaining < 24*time.Hour {
		right += " (" + session.FormatDuration(remaining) + " left)"
	}
	right = m.theme.Muted.Render(right + "  L log out")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	line := left + strings.Repeat(" ", gap) + right
	if m.width > 0 {
		return m.theme.Header.Width(m.width).Render(line)
	}
	return m.theme.Header.Render(line)
}

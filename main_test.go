// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/api/apitest"
	"github.com/jeranaias/bookshelf-tui/internal/app"
	"github.com/jeranaias/bookshelf-tui/internal/config"
	"github.com/jeranaias/bookshelf-tui/internal/session"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// newTestModel builds the root model against a fake backend. Init is not
// run because the route listener blocks; tests deliver messages directly.
func newTestModel(t *testing.T) (*Model, *apitest.Server, *app.App) {
	t.Helper()
	srv := apitest.Start(t)
	srv.AddUser("reader@example.com", "pw")

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.API.Carrier = "bearer"
	cfg.API.RequestsPerSecond = 0

	dir := t.TempDir()
	a, err := app.New(app.Options{
		Config:        cfg,
		CredentialDir: dir,
		DraftPath:     filepath.Join(dir, "drafts.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := NewModel(ctx, a, styles.NewTheme(styles.ModeDark))
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, srv, a
}

// resolve delivers the startup session check.
func resolve(m *Model) {
	m.Update(m.resolveSession()())
}

// signIn logs in and delivers the resulting navigation.
func signIn(t *testing.T, m *Model, a *app.App) {
	t.Helper()
	require.NoError(t, a.Session.Login(context.Background(), "reader@example.com", "pw", false))
	m.Update(m.routes.listen()())
	require.True(t, m.home)
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func toastTitles(m *Model) []string {
	var out []string
	for _, t := range m.toasts.Toasts() {
		out = append(out, t.Title)
	}
	return out
}

// =============================================================================
// SESSION GATE
// =============================================================================

func TestModel_LoadingUntilSessionResolves(t *testing.T) {
	m, _, _ := newTestModel(t)
	require.Contains(t, m.View(), "Checking your session")

	// Keys are ignored while loading.
	m.Update(key('q'))
	require.False(t, m.home)

	resolve(m)
	require.False(t, m.home)
	require.Contains(t, m.View(), "Sign in")
}

func TestModel_RememberedSessionGoesStraightHome(t *testing.T) {
	m, srv, a := newTestModel(t)
	token := srv.IssueToken("reader@example.com")
	a.Client.Carrier().Restore(token)

	resolve(m)
	require.True(t, m.home)
	require.Equal(t, TabChats, m.tab)
	require.Contains(t, m.View(), "reader@example.com")
}

func TestModel_LoginShowsTabs(t *testing.T) {
	m, _, a := newTestModel(t)
	resolve(m)
	signIn(t, m, a)

	view := m.View()
	require.Contains(t, view, "1 Chats")
	require.Contains(t, view, "2 Bookshelves")
	require.Contains(t, view, "3 Usage")
	require.True(t, m.started[TabChats])
	require.False(t, m.started[TabUsage])
}

// =============================================================================
// TABS
// =============================================================================

func TestModel_NumberKeysSwitchTabs(t *testing.T) {
	m, _, a := newTestModel(t)
	resolve(m)
	signIn(t, m, a)

	m.Update(key('2'))
	require.Equal(t, TabBookshelves, m.tab)
	require.True(t, m.started[TabBookshelves])

	m.Update(key('3'))
	require.Equal(t, TabUsage, m.tab)

	m.Update(key('1'))
	require.Equal(t, TabChats, m.tab)
	require.Len(t, m.liveScreens(), 3)
}

// =============================================================================
// SESSION END
// =============================================================================

func TestModel_ExpiryReturnsToSignInWithNotice(t *testing.T) {
	m, _, a := newTestModel(t)
	resolve(m)
	signIn(t, m, a)
	m.Update(key('2'))

	m.Update(routeMsg{route: session.RouteLanding})
	require.False(t, m.home)
	require.Empty(t, m.started)
	require.Contains(t, toastTitles(m), "Session expired")
}

func TestModel_LogoutHasNoExpiryNotice(t *testing.T) {
	m, _, a := newTestModel(t)
	resolve(m)
	signIn(t, m, a)

	_, cmd := m.Update(key('L'))
	require.NotNil(t, cmd)
	require.True(t, m.loggingOut)

	// The command runs the logout; the navigation it causes is delivered next.
	require.Nil(t, cmd())
	m.Update(m.routes.listen()())

	require.False(t, m.home)
	require.NotContains(t, toastTitles(m), "Session expired")
}

// =============================================================================
// CONFIG AND CRASHES
// =============================================================================

func TestModel_ConfigReloadAppliesTheme(t *testing.T) {
	m, _, _ := newTestModel(t)
	theme := m.theme

	next := m.cfg.Clone()
	next.UI.Theme = "light"
	m.Update(configChangedMsg{cfg: next})

	require.Same(t, theme, m.theme)
	require.Equal(t, styles.ModeLight, m.theme.Mode)
	require.Contains(t, toastTitles(m), "Configuration reloaded")

	m.Update(configChangedMsg{err: context.Canceled})
	require.Contains(t, toastTitles(m), "Config reload failed")
}

func TestModel_PanicShowsErrorView(t *testing.T) {
	m, _, a := newTestModel(t)
	resolve(m)
	signIn(t, m, a)

	chat := m.chat
	m.chat = nil
	m.Update(key('x'))
	require.NotNil(t, m.crash)
	require.Contains(t, m.View(), "Something went wrong")

	m.chat = chat
	m.Update(key('r'))
	require.Nil(t, m.crash)
	require.Contains(t, m.View(), "1 Chats")
}

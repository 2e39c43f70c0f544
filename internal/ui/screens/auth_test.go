// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package screens

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/api/apitest"
	"github.com/jeranaias/bookshelf-tui/internal/session"
	"github.com/jeranaias/bookshelf-tui/internal/storage"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

type memCreds struct {
	mu   sync.Mutex
	cred *storage.Credential
}

func (m *memCreds) Save(c storage.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = &c
	return nil
}

func (m *memCreds) Load() (storage.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return storage.Credential{}, storage.ErrNoCredential
	}
	return *m.cred, nil
}

func (m *memCreds) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	return nil
}

func (m *memCreds) saved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred != nil
}

type authFixture struct {
	srv    *apitest.Server
	creds  *memCreds
	routes chan session.Route
	a      *Auth
}

func newAuthFixture(t *testing.T, remember bool) *authFixture {
	t.Helper()
	srv := apitest.Start(t)
	srv.AddUser("a@b.com", "pw")
	client := api.New(srv.URL, api.NewBearerCarrier())
	f := &authFixture{srv: srv, creds: &memCreds{}, routes: make(chan session.Route, 4)}
	nav := session.NavigatorFunc(func(r session.Route) { f.routes <- r })
	provider := session.NewProvider(client, f.creds, nav, session.DefaultConfig())
	f.a = NewAuth(context.Background(), provider, styles.NewTheme(styles.ModeDark), remember)
	f.a.SetSize(100, 30)
	return f
}

// fill types into the visible fields in order, pressing enter after each.
func (f *authFixture) fill(values ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, v := range values {
		typeText(f.a, v)
		cmd = press(f.a, tea.KeyEnter)
	}
	return cmd
}

func TestAuth_LoginNavigatesHome(t *testing.T) {
	f := newAuthFixture(t, false)

	settle(f.a, f.fill("a@b.com", "pw"))

	require.Equal(t, session.RouteHome, <-f.routes)
	require.Empty(t, f.a.FieldError(""))
	require.False(t, f.a.Busy())
	require.False(t, f.creds.saved())
}

func TestAuth_RememberMePersistsCredential(t *testing.T) {
	f := newAuthFixture(t, false)
	press(f.a, tea.KeyCtrlR)
	require.True(t, f.a.Remember())

	settle(f.a, f.fill("a@b.com", "pw"))

	require.True(t, f.creds.saved())
}

func TestAuth_WrongPasswordShowsFormError(t *testing.T) {
	f := newAuthFixture(t, true)

	settle(f.a, f.fill("a@b.com", "nope"))

	require.Equal(t, "Incorrect email or password", f.a.FieldError(""))
	require.Contains(t, f.a.View(), "Incorrect email or password")
	require.Empty(t, f.routes)
}

func TestAuth_BlankFieldsAreRejectedLocally(t *testing.T) {
	f := newAuthFixture(t, false)

	settle(f.a, press(f.a, tea.KeyEnter))

	require.Equal(t, "Email is required", f.a.FieldError("email"))
	require.Equal(t, "Password is required", f.a.FieldError("password"))
	require.Zero(t, f.srv.CallCount("POST", "/auth/login"))
}

func TestAuth_RegisterPasswordMismatch(t *testing.T) {
	f := newAuthFixture(t, false)
	press(f.a, tea.KeyCtrlT)
	require.Equal(t, ModeRegister, f.a.Mode())

	settle(f.a, f.fill("new@b.com", "secret", "secreT"))

	require.Equal(t, "Passwords do not match", f.a.FieldError("confirm"))
	require.Zero(t, f.srv.CallCount("POST", "/auth/register"))
}

func TestAuth_RegisterSignsIn(t *testing.T) {
	f := newAuthFixture(t, false)
	press(f.a, tea.KeyCtrlT)

	settle(f.a, f.fill("new@b.com", "secret", "secret"))

	require.Equal(t, session.RouteHome, <-f.routes)
	require.Equal(t, 1, f.srv.CallCount("POST", "/auth/register"))
}

func TestAuth_RegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, false)
	press(f.a, tea.KeyCtrlT)

	settle(f.a, f.fill("a@b.com", "pw", "pw"))

	require.Contains(t, f.a.FieldError(""), "already registered")
	require.Empty(t, f.routes)
}

func TestAuth_SwitchingModesClearsErrors(t *testing.T) {
	f := newAuthFixture(t, false)
	settle(f.a, press(f.a, tea.KeyEnter))
	require.NotEmpty(t, f.a.FieldError("email"))

	press(f.a, tea.KeyCtrlT)
	require.Empty(t, f.a.FieldError("email"))
	require.Contains(t, f.a.View(), "Confirm")

	press(f.a, tea.KeyCtrlT)
	require.Equal(t, ModeLogin, f.a.Mode())
	require.NotContains(t, f.a.View(), "Confirm")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package screens

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/session"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// =============================================================================
// AUTH SCREEN
// =============================================================================

// AuthMode selects between signing in and creating an account.
type AuthMode int

const (
	ModeLogin AuthMode = iota
	ModeRegister
)

const (
	authEmail = iota
	authPassword
	authConfirm
)

type authKeys struct {
	Next     key.Binding
	Prev     key.Binding
	Submit   key.Binding
	Switch   key.Binding
	Remember key.Binding
}

func defaultAuthKeys() authKeys {
	return authKeys{
		Next:     key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		Prev:     key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "previous")),
		Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
		Switch:   key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "login/register")),
		Remember: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "remember me")),
	}
}

// authDoneMsg carries the outcome of a login or registration.
type authDoneMsg struct {
	mode AuthMode
	err  error
}

// Auth is the sign-in screen. On success the session provider navigates
// away; the screen only reports failures.
type Auth struct {
	ctx     context.Context
	session *session.Provider
	theme   *styles.Theme
	keys    authKeys

	mode     AuthMode
	inputs   []textinput.Model
	focus    int
	remember bool

	errs    map[int]string
	formErr string
	busy    bool

	width, height int
}

// NewAuth creates the screen. remember is the initial state of the
// remember-me checkbox.
func NewAuth(ctx context.Context, provider *session.Provider, theme *styles.Theme, remember bool) *Auth {
	a := &Auth{
		ctx:      ctx,
		session:  provider,
		theme:    theme,
		keys:     defaultAuthKeys(),
		remember: remember,
		errs:     map[int]string{},
	}

	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Prompt = "Email     "

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.Prompt = "Password  "

	confirm := textinput.New()
	confirm.Placeholder = "repeat password"
	confirm.EchoMode = textinput.EchoPassword
	confirm.EchoCharacter = '•'
	confirm.Prompt = "Confirm   "

	a.inputs = []textinput.Model{email, password, confirm}
	a.setFocus(authEmail)
	return a
}

// Mode returns the current mode.
func (a *Auth) Mode() AuthMode { return a.mode }

// Remember reports the remember-me checkbox state.
func (a *Auth) Remember() bool { return a.remember }

// Busy reports whether a request is in flight.
func (a *Auth) Busy() bool { return a.busy }

// FieldError returns the inline error shown under a field ("email",
// "password" or "confirm"), or the form-level error for "".
func (a *Auth) FieldError(field string) string {
	switch field {
	case "email":
		return a.errs[authEmail]
	case "password":
		return a.errs[authPassword]
	case "confirm":
		return a.errs[authConfirm]
	}
	return a.formErr
}

// Reset clears the form. Called when the session ends so the next user
// starts from a blank form.
func (a *Auth) Reset() {
	for i := range a.inputs {
		a.inputs[i].Reset()
	}
	a.clearErrors()
	a.busy = false
	a.setFocus(authEmail)
}

func (a *Auth) Init() tea.Cmd { return textinput.Blink }

func (a *Auth) SetSize(width, height int) {
	a.width, a.height = width, height
	w := width / 2
	if w < 30 {
		w = width - 4
	}
	for i := range a.inputs {
		a.inputs[i].Width = w - 12
	}
}

func (a *Auth) Focused() bool { return true }

func (a *Auth) fields() int {
	if a.mode == ModeRegister {
		return 3
	}
	return 2
}

func (a *Auth) setFocus(i int) {
	a.focus = i
	for j := range a.inputs {
		if j == i {
			a.inputs[j].Focus()
		} else {
			a.inputs[j].Blur()
		}
	}
}

func (a *Auth) clearErrors() {
	a.errs = map[int]string{}
	a.formErr = ""
}

func (a *Auth) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case authDoneMsg:
		a.busy = false
		if msg.err != nil {
			a.showError(msg.err)
			a.inputs[authPassword].Reset()
			a.inputs[authConfirm].Reset()
		}
		return nil

	case tea.KeyMsg:
		if a.busy {
			return nil
		}
		switch {
		case key.Matches(msg, a.keys.Switch):
			if a.mode == ModeLogin {
				a.mode = ModeRegister
			} else {
				a.mode = ModeLogin
				if a.focus == authConfirm {
					a.setFocus(authPassword)
				}
			}
			a.clearErrors()
			return nil
		case key.Matches(msg, a.keys.Remember):
			a.remember = !a.remember
			return nil
		case key.Matches(msg, a.keys.Next):
			a.setFocus((a.focus + 1) % a.fields())
			return nil
		case key.Matches(msg, a.keys.Prev):
			a.setFocus((a.focus + a.fields() - 1) % a.fields())
			return nil
		case key.Matches(msg, a.keys.Submit):
			if a.focus < a.fields()-1 && strings.TrimSpace(a.inputs[a.focus].Value()) != "" {
				a.setFocus(a.focus + 1)
				return nil
			}
			return a.submit()
		}
	}

	var cmd tea.Cmd
	before := a.inputs[a.focus].Value()
	a.inputs[a.focus], cmd = a.inputs[a.focus].Update(msg)
	if a.inputs[a.focus].Value() != before {
		delete(a.errs, a.focus)
		a.formErr = ""
	}
	return cmd
}

// submit validates locally and starts the request.
func (a *Auth) submit() tea.Cmd {
	a.clearErrors()
	email := strings.TrimSpace(a.inputs[authEmail].Value())
	password := a.inputs[authPassword].Value()

	if email == "" {
		a.errs[authEmail] = "Email is required"
	} else if !strings.Contains(email, "@") {
		a.errs[authEmail] = "Enter a valid email address"
	}
	if password == "" {
		a.errs[authPassword] = "Password is required"
	}
	if a.mode == ModeRegister && a.inputs[authConfirm].Value() != password {
		a.errs[authConfirm] = "Passwords do not match"
	}
	if len(a.errs) > 0 {
		for i := 0; i < a.fields(); i++ {
			if _, bad := a.errs[i]; bad {
				a.setFocus(i)
				break
			}
		}
		return nil
	}

	a.busy = true
	mode, remember, ctx, provider := a.mode, a.remember, a.ctx, a.session
	return func() tea.Msg {
		var err error
		if mode == ModeRegister {
			err = provider.Register(ctx, email, password)
		} else {
			err = provider.Login(ctx, email, password, remember)
		}
		return authDoneMsg{mode: mode, err: err}
	}
}

func (a *Auth) showError(err error) {
	var fe *api.FieldError
	if errors.As(err, &fe) {
		switch strings.ToLower(fe.Field) {
		case "email", "username":
			a.errs[authEmail] = fe.Message
			a.setFocus(authEmail)
			return
		case "password":
			a.errs[authPassword] = fe.Message
			a.setFocus(authPassword)
			return
		}
	}
	if errors.Is(err, api.ErrUnauthorized) {
		a.formErr = "Incorrect email or password"
		a.setFocus(authPassword)
		return
	}
	a.formErr = api.Message(err)
}

func (a *Auth) View() string {
	t := a.theme
	var b strings.Builder

	title := "Sign in"
	if a.mode == ModeRegister {
		title = "Create an account"
	}
	b.WriteString(t.Brand.Render("bookshelf"))
	b.WriteString("\n")
	b.WriteString(t.Title.Render(title))
	b.WriteString("\n\n")

	for i := 0; i < a.fields(); i++ {
		b.WriteString(a.inputs[i].View())
		b.WriteString("\n")
		if msg := a.errs[i]; msg != "" {
			b.WriteString(t.FieldError.Render("          " + msg))
			b.WriteString("\n")
		}
	}

	if a.mode == ModeLogin {
		box := "[ ]"
		if a.remember {
			box = "[x]"
		}
		b.WriteString("\n")
		b.WriteString(t.Label.Render(box + " Remember me"))
		b.WriteString("\n")
	}

	if a.formErr != "" {
		b.WriteString("\n")
		b.WriteString(t.Error.Render(styles.StatusIndicators.Error + " " + a.formErr))
		b.WriteString("\n")
	}
	if a.busy {
		b.WriteString("\n")
		b.WriteString(t.Muted.Render("Contacting server..."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	help := pairs(a.keys.Next, a.keys.Submit, a.keys.Switch)
	if a.mode == ModeLogin {
		help = append(help, pairs(a.keys.Remember)...)
	}
	b.WriteString(components.HelpLine(t, help...))

	form := t.Panel.Render(b.String())
	if a.width <= 0 || a.height <= 0 {
		return form
	}
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, form)
}

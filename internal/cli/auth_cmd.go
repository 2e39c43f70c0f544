// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/session"
)

// PasswordEnv supplies the password non-interactively.
const PasswordEnv = "BOOKSHELF_PASSWORD"

// AccountInfo is the JSON payload of login, register and whoami.
type AccountInfo struct {
	Email      string     `json:"email"`
	ID         string     `json:"id,omitempty"`
	Server     string     `json:"server"`
	Remembered bool       `json:"remembered"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (e *Env) accountInfo() AccountInfo {
	snap := e.App.Session.Snapshot()
	info := AccountInfo{
		Email:  snap.Identity.Email,
		ID:     snap.Identity.ID.String(),
		Server: e.Config.API.BaseURL,
	}
	if _, err := e.App.Credentials.Load(); err == nil {
		info.Remembered = true
	}
	if !snap.ExpiresAt.IsZero() {
		t := snap.ExpiresAt
		info.ExpiresAt = &t
	}
	return info
}

// credentials reads the email (flag, positional or prompt) and password
// (environment or prompt).
func (e *Env) credentials(p *ArgParser) (email, password string, err error) {
	email = p.FlagOrDefault("email", p.Positional(0))
	if email == "" {
		if email, err = e.Prompter().Line("Email: "); err != nil {
			return "", "", err
		}
	}
	password = os.Getenv(PasswordEnv)
	if password == "" {
		if password, err = e.Prompter().Password("Password: "); err != nil {
			return "", "", err
		}
	}
	return email, password, nil
}

// =============================================================================
// LOGIN / REGISTER
// =============================================================================

// HandleLogin signs in. Only a remembered session outlives the process.
func HandleLogin(env *Env) error {
	p := NewArgParser(env.Args.Raw, "remember")
	email, password, err := env.credentials(p)
	if err != nil {
		return err
	}
	remember := p.BoolFlag("remember") || env.Config.Session.RememberMe

	if err := env.App.Session.Login(env.Ctx, email, password, remember); err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return fmt.Errorf("%w: %w", ErrBadCredentials, err)
		}
		return err
	}

	info := env.accountInfo()
	return env.emit("login", info, func(w io.Writer) {
		env.done("Signed in as %s", info.Email)
		if !info.Remembered && !env.Args.Quiet {
			fmt.Fprintln(w, DimStyle.Render("This session is not remembered. Use --remember to stay signed in for other commands."))
		}
	})
}

// HandleRegister creates an account and signs in.
func HandleRegister(env *Env) error {
	p := NewArgParser(env.Args.Raw, "remember")
	email, password, err := env.credentials(p)
	if err != nil {
		return err
	}
	if os.Getenv(PasswordEnv) == "" {
		confirm, err := env.Prompter().Password("Confirm password: ")
		if err != nil {
			return err
		}
		if confirm != password {
			return api.NewFieldError("confirm", "Passwords do not match")
		}
	}

	if err := env.App.Session.Register(env.Ctx, email, password); err != nil {
		return api.AsFieldError(err, "email")
	}
	if p.BoolFlag("remember") || env.Config.Session.RememberMe {
		// Register signs in without persisting; sign in again to remember.
		if err := env.App.Session.Login(env.Ctx, email, password, true); err != nil {
			return err
		}
	}

	info := env.accountInfo()
	return env.emit("register", info, func(io.Writer) {
		env.done("Registered and signed in as %s", info.Email)
	})
}

// =============================================================================
// LOGOUT / WHOAMI
// =============================================================================

// HandleLogout ends the remembered session, server-side when possible.
func HandleLogout(env *Env) error {
	if err := env.App.Session.Init(env.Ctx); err != nil {
		// Unreachable server: still forget the local credential.
		_ = env.App.Credentials.Clear()
		return err
	}
	if env.App.Session.State() != session.StateAuthenticated {
		_ = env.App.Credentials.Clear()
		return env.emit("logout", map[string]bool{"signed_out": false}, func(w io.Writer) {
			if !env.Args.Quiet {
				fmt.Fprintln(w, "Not signed in.")
			}
		})
	}
	email := env.App.Session.Identity().Email
	env.App.Session.Logout(env.Ctx)
	return env.emit("logout", map[string]interface{}{"signed_out": true, "email": email}, func(io.Writer) {
		env.done("Signed out %s", email)
	})
}

// HandleWhoami shows the restored account.
func HandleWhoami(env *Env) error {
	if err := env.requireSession(); err != nil {
		return err
	}
	info := env.accountInfo()
	return env.emit("whoami", info, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Email: "), info.Email)
		if info.ID != "" {
			fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("ID:    "), info.ID)
		}
		fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Server:"), info.Server)
		if info.ExpiresAt != nil {
			left := session.FormatDuration(time.Until(*info.ExpiresAt))
			fmt.Fprintf(w, "%s %s (%s left)\n", LabelStyle.Render("Until: "), info.ExpiresAt.Local().Format("2006-01-02 15:04"), left)
		}
	})
}

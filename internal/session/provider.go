// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/storage"
)

// =============================================================================
// STATES AND ROUTES
// =============================================================================

// State is the identity resolution state.
type State int

const (
	// StateUnresolved is the state before Init runs.
	StateUnresolved State = iota
	// StateResolving means a remembered session is being checked.
	StateResolving
	// StateAuthenticated means an identity is established.
	StateAuthenticated
	// StateAnonymous means no session exists.
	StateAnonymous
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return "unresolved"
}

// Gate tells a protected view how to render.
type Gate int

const (
	// GateLoading means the session is not resolved yet; show a loading state.
	GateLoading Gate = iota
	// GateAllow means render protected content.
	GateAllow
	// GateRedirect means send the user to the unauthenticated entry point.
	GateRedirect
)

// Route is a navigation target.
type Route string

const (
	// RouteLanding is the unauthenticated entry point.
	RouteLanding Route = "landing"
	// RouteHome is the authenticated landing view.
	RouteHome Route = "home"
)

// Navigator receives navigation requests.
type Navigator interface {
	Navigate(Route)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Route)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(r Route) { f(r) }

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Backend is the subset of the API client the provider uses.
type Backend interface {
	Login(ctx context.Context, email, password string) (api.LoginResponse, error)
	Register(ctx context.Context, email, password string) (api.LoginResponse, error)
	Me(ctx context.Context) (api.UserInfo, error)
	Logout(ctx context.Context) error
	Carrier() api.Carrier
}

// CredentialStore persists a remembered session.
type CredentialStore interface {
	Save(storage.Credential) error
	Load() (storage.Credential, error)
	Clear() error
}

// Config holds provider settings.
type Config struct {
	// RememberFor is the lifetime of a remembered credential whose token
	// carries no expiry of its own.
	RememberFor time.Duration
}

// DefaultConfig returns the default provider configuration.
func DefaultConfig() Config {
	return Config{RememberFor: 7 * 24 * time.Hour}
}

// =============================================================================
// PROVIDER
// =============================================================================

// Snapshot is an immutable view of the provider.
type Snapshot struct {
	State     State
	Identity  model.Identity
	Loading   bool
	Err       error
	ExpiresAt time.Time
}

// Provider owns the signed-in identity. It is safe for concurrent use; the
// mutex is never held across network calls.
type Provider struct {
	mu sync.Mutex

	backend Backend
	creds   CredentialStore
	nav     Navigator
	cfg     Config
	now     func() time.Time

	state     State
	identity  model.Identity
	loading   bool
	err       error
	expiresAt time.Time

	// epoch changes on every identity transition so late results from a
	// superseded login or resolve are dropped.
	epoch uint64

	onEnd     []func()
	listeners []func(Snapshot)
}

// NewProvider creates a provider. creds may be nil to disable remember-me.
func NewProvider(backend Backend, creds CredentialStore, nav Navigator, cfg Config) *Provider {
	if cfg.RememberFor <= 0 {
		cfg.RememberFor = DefaultConfig().RememberFor
	}
	if nav == nil {
		nav = NavigatorFunc(func(Route) {})
	}
	return &Provider{
		backend: backend,
		creds:   creds,
		nav:     nav,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetNavigator replaces the navigation sink.
func (p *Provider) SetNavigator(nav Navigator) {
	p.mu.Lock()
	p.nav = nav
	p.mu.Unlock()
}

// OnEnd registers fn to run when the session ends because of a 401, before
// state is cleared. Used to preserve in-progress input.
func (p *Provider) OnEnd(fn func()) {
	p.mu.Lock()
	p.onEnd = append(p.onEnd, fn)
	p.mu.Unlock()
}

// Subscribe registers fn to receive a snapshot after every change.
func (p *Provider) Subscribe(fn func(Snapshot)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Snapshot returns the current state.
func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Provider) snapshotLocked() Snapshot {
	return Snapshot{State: p.state, Identity: p.identity, Loading: p.loading, Err: p.err, ExpiresAt: p.expiresAt}
}

// State returns the resolution state.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Identity returns the signed-in identity, zero when anonymous.
func (p *Provider) Identity() model.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

// Loading reports whether a login or registration is in progress.
func (p *Provider) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Err returns the last login or registration error.
func (p *Provider) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Gate reports how a protected view should render.
func (p *Provider) Gate() Gate {
	switch p.State() {
	case StateAuthenticated:
		return GateAllow
	case StateAnonymous:
		return GateRedirect
	}
	return GateLoading
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Init resolves an existing session: a remembered credential is restored
// into the carrier and confirmed with the backend. Without one the backend
// is still asked, since a cookie may already be present.
func (p *Provider) Init(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateUnresolved && p.state != StateAnonymous {
		p.mu.Unlock()
		return nil
	}
	p.state = StateResolving
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()
	p.notify()

	log := logging.L()
	var remembered storage.Credential
	if p.creds != nil {
		cred, err := p.creds.Load()
		switch {
		case err == nil && cred.Expired(p.now()):
			log.Info("remembered session expired", "expires_at", cred.ExpiresAt)
			_ = p.creds.Clear()
		case err == nil:
			remembered = cred
			p.backend.Carrier().Restore(cred.Token)
		case !errors.Is(err, storage.ErrNoCredential):
			log.Warn("discarding unreadable credential", "error", err)
			_ = p.creds.Clear()
		}
	}

	user, err := p.backend.Me(ctx)

	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return nil
	}
	if err != nil {
		p.clearLocked()
		p.state = StateAnonymous
		p.mu.Unlock()
		if p.creds != nil && remembered.Token != "" {
			_ = p.creds.Clear()
		}
		p.backend.Carrier().Clear()
		p.notify()
		if errors.Is(err, api.ErrUnauthorized) {
			return nil
		}
		log.Warn("session check failed", "error", err)
		return err
	}

	email := user.Email
	if email == "" {
		email = remembered.Email
	}
	p.identity = model.Identity{Email: email, ID: user.ID}
	p.expiresAt = remembered.ExpiresAt
	p.state = StateAuthenticated
	p.mu.Unlock()
	p.notify()
	return nil
}

// Close drops listeners and callbacks. The session itself is left intact.
func (p *Provider) Close() {
	p.mu.Lock()
	p.listeners = nil
	p.onEnd = nil
	p.mu.Unlock()
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Login authenticates. On failure the error is recorded, returned, and no
// navigation happens. On success the identity is set and the provider
// navigates home. With rememberMe the credential is persisted.
func (p *Provider) Login(ctx context.Context, email, password string, rememberMe bool) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return p.fail(api.NewFieldError("email", "Email is required"))
	}
	if password == "" {
		return p.fail(api.NewFieldError("password", "Password is required"))
	}

	p.mu.Lock()
	p.loading = true
	p.err = nil
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()
	p.notify()

	defer func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
		p.notify()
	}()

	resp, err := p.backend.Login(ctx, email, password)
	if err != nil {
		logging.L().Info("login failed", "email", email, "error", err)
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		return err
	}

	identity := model.Identity{Email: email}
	if resp.User != nil {
		identity.ID = resp.User.ID
	}
	carrier := p.backend.Carrier()
	expires := tokenExpiry(carrier.Credential(), p.now().Add(p.cfg.RememberFor))

	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return nil
	}
	p.identity = identity
	p.state = StateAuthenticated
	p.expiresAt = expires
	nav := p.nav
	p.mu.Unlock()

	if p.creds != nil {
		if rememberMe {
			err := p.creds.Save(storage.Credential{
				Email:     identity.Email,
				UserID:    identity.ID,
				Carrier:   carrier.Name(),
				Token:     carrier.Credential(),
				ExpiresAt: expires,
			})
			if err != nil {
				logging.L().Warn("failed to remember session", "error", err)
			}
		} else {
			_ = p.creds.Clear()
		}
	}

	logging.L().Info("signed in", "email", identity.Email)
	nav.Navigate(RouteHome)
	return nil
}

// Register creates an account and then logs in with the same credentials.
func (p *Provider) Register(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return p.fail(api.NewFieldError("email", "Email is required"))
	}
	if password == "" {
		return p.fail(api.NewFieldError("password", "Password is required"))
	}

	p.mu.Lock()
	p.loading = true
	p.err = nil
	p.mu.Unlock()
	p.notify()

	_, err := p.backend.Register(ctx, email, password)

	p.mu.Lock()
	p.loading = false
	if err != nil {
		p.err = err
	}
	p.mu.Unlock()
	p.notify()
	if err != nil {
		return err
	}
	return p.Login(ctx, email, password, false)
}

// Logout revokes the session server-side on a best-effort basis. Local
// state is always cleared and the provider navigates to the landing view.
func (p *Provider) Logout(ctx context.Context) {
	if err := p.backend.Logout(ctx); err != nil {
		logging.L().Warn("server logout failed", "error", err)
	}
	p.endLocal()
	logging.L().Info("signed out")
}

// SessionEnded handles a 401 from an authenticated call. OnEnd callbacks
// run first, then the identity is cleared and the provider navigates to
// the landing view. Repeated 401s while already anonymous are ignored.
func (p *Provider) SessionEnded() {
	p.mu.Lock()
	if p.state != StateAuthenticated {
		p.mu.Unlock()
		return
	}
	hooks := append([]func(){}, p.onEnd...)
	p.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	logging.L().Info("session ended by server")
	p.endLocal()
}

func (p *Provider) endLocal() {
	p.backend.Carrier().Clear()
	if p.creds != nil {
		if err := p.creds.Clear(); err != nil {
			logging.L().Warn("failed to clear remembered session", "error", err)
		}
	}

	p.mu.Lock()
	p.clearLocked()
	p.state = StateAnonymous
	p.epoch++
	nav := p.nav
	p.mu.Unlock()

	p.notify()
	nav.Navigate(RouteLanding)
}

func (p *Provider) clearLocked() {
	p.identity = model.Identity{}
	p.expiresAt = time.Time{}
	p.loading = false
}

func (p *Provider) fail(err error) error {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.notify()
	return err
}

func (p *Provider) notify() {
	p.mu.Lock()
	snap := p.snapshotLocked()
	listeners := append([]func(Snapshot){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

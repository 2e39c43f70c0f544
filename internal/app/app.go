// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/association"
	"github.com/jeranaias/bookshelf-tui/internal/collection"
	"github.com/jeranaias/bookshelf-tui/internal/config"
	"github.com/jeranaias/bookshelf-tui/internal/conversation"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
	"github.com/jeranaias/bookshelf-tui/internal/session"
	"github.com/jeranaias/bookshelf-tui/internal/storage"
	"github.com/jeranaias/bookshelf-tui/internal/usage"
)

// UsageTTL is how long a month of usage data is served from memory.
const UsageTTL = time.Minute

// flushTimeout bounds the draft write made while a session ends.
const flushTimeout = 2 * time.Second

// Options controls how New builds the graph. Zero values select the
// defaults under the config directory.
type Options struct {
	// Config is required.
	Config *config.Config

	// Notifier receives background notices. It may be replaced later with
	// SetNotifier, e.g. once the TUI has created its toast manager.
	Notifier notify.Notifier

	// Navigator receives route changes from the identity provider.
	Navigator session.Navigator

	// CredentialDir holds the remembered-session file. "" uses the config dir.
	CredentialDir string

	// DraftPath is the sqlite draft database. "" uses drafts.db in the config dir.
	DraftPath string

	// DisableDrafts skips opening the draft database.
	DisableDrafts bool

	// HTTPClient replaces the transport, mostly for tests.
	HTTPClient *http.Client

	// UserAgent is sent with every request.
	UserAgent string
}

// App is the wired service graph.
type App struct {
	Config         *config.Config
	Client         *api.Client
	Credentials    *storage.CredentialStore
	Drafts         *storage.DraftStore
	Session        *session.Provider
	KnowledgeBases *collection.KnowledgeBases
	Documents      *collection.Documents
	Chats          *conversation.Manager
	Resolver       *association.Resolver
	Associations   *association.View
	Usage          *usage.Service

	relay *relay
}

// New builds the graph. Nothing is fetched until the caller initializes the
// session.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}

	carrier, err := api.NewCarrier(cfg.API.Carrier, cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create session carrier: %w", err)
	}
	client := api.New(cfg.API.BaseURL, carrier).
		WithTimeout(cfg.Timeout()).
		WithMaxRetries(cfg.API.MaxRetries).
		WithRateLimit(cfg.API.RequestsPerSecond).
		WithLogger(logging.L())
	if opts.HTTPClient != nil {
		client.WithHTTPClient(opts.HTTPClient)
	}
	if opts.UserAgent != "" {
		client.WithUserAgent(opts.UserAgent)
	}

	credDir := opts.CredentialDir
	if credDir == "" {
		if credDir, err = config.ConfigDir(); err != nil {
			return nil, err
		}
	}
	creds := storage.NewCredentialStore(credDir)

	var drafts *storage.DraftStore
	if !opts.DisableDrafts {
		path := opts.DraftPath
		if path == "" {
			if path, err = config.DataPath("drafts.db"); err != nil {
				return nil, err
			}
		}
		drafts, err = storage.OpenDraftStore(path)
		if err != nil {
			// Drafts are a convenience; the client works without them.
			logging.L().Warn("draft store unavailable", "path", path, "error", err)
			drafts = nil
		}
	}

	r := &relay{n: notify.Or(opts.Notifier)}

	a := &App{
		Config:      cfg,
		Client:      client,
		Credentials: creds,
		Drafts:      drafts,
		relay:       r,
	}

	a.Session = session.NewProvider(client, creds, opts.Navigator, session.Config{RememberFor: cfg.RememberFor()})
	a.KnowledgeBases = collection.NewKnowledgeBases(client, r)
	a.Documents = collection.NewDocuments(client, r, collection.Limits{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Concurrency:    cfg.Upload.Concurrency,
	})
	if drafts != nil {
		a.Chats = conversation.NewManager(client, r, drafts)
	} else {
		a.Chats = conversation.NewManager(client, r, nil)
	}
	a.Resolver = association.NewResolver(client)
	a.Associations = association.NewView(a.Resolver)
	a.Usage = usage.NewService(client, UsageTTL)

	a.wire()
	return a, nil
}

// wire installs the cross-cutting reactions between services.
func (a *App) wire() {
	a.Client.OnUnauthorized(a.Session.SessionEnded)

	a.Session.OnEnd(func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		a.Chats.FlushDraft(ctx)
	})

	var mu sync.Mutex
	last := session.StateUnresolved
	a.Session.Subscribe(func(s session.Snapshot) {
		mu.Lock()
		prev := last
		last = s.State
		mu.Unlock()
		if s.State == session.StateAnonymous && prev != session.StateAnonymous {
			a.Reset()
		}
	})

	a.KnowledgeBases.OnDelete(a.Documents.DropKnowledgeBase)
}

// Reset empties every per-account cache. It runs whenever the session
// ends so a different account never sees the previous one's data.
func (a *App) Reset() {
	a.Chats.Reset()
	a.KnowledgeBases.Reset()
	a.Documents.Use("")
	a.Associations.Clear()
	a.Usage.Invalidate()
	logging.L().Debug("per-account state cleared")
}

// SetNotifier replaces the notice sink for every service.
func (a *App) SetNotifier(n notify.Notifier) {
	a.relay.set(n)
}

// SetNavigator replaces the provider's navigation sink.
func (a *App) SetNavigator(nav session.Navigator) {
	a.Session.SetNavigator(nav)
}

// Close releases local storage and drops provider callbacks.
func (a *App) Close() error {
	a.Session.Close()
	if a.Drafts != nil {
		return a.Drafts.Close()
	}
	return nil
}

// =============================================================================
// NOTIFIER RELAY
// =============================================================================

// relay forwards notices to a sink that can be swapped after the services
// holding it were built.
type relay struct {
	mu sync.RWMutex
	n  notify.Notifier
}

func (r *relay) Notify(n notify.Notice) {
	r.mu.RLock()
	sink := r.n
	r.mu.RUnlock()
	sink.Notify(n)
}

func (r *relay) set(n notify.Notifier) {
	r.mu.Lock()
	r.n = notify.Or(n)
	r.mu.Unlock()
}

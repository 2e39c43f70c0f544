// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/api/apitest"
	"github.com/jeranaias/bookshelf-tui/internal/config"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
	"github.com/jeranaias/bookshelf-tui/internal/session"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type routes struct {
	mu   sync.Mutex
	seen []session.Route
}

func (r *routes) Navigate(to session.Route) {
	r.mu.Lock()
	r.seen = append(r.seen, to)
	r.mu.Unlock()
}

func (r *routes) last() session.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return ""
	}
	return r.seen[len(r.seen)-1]
}

func newTestApp(t *testing.T, srv *apitest.Server) (*App, *routes, *notify.Recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.API.Carrier = "bearer"
	cfg.API.RequestsPerSecond = 0

	dir := t.TempDir()
	nav := &routes{}
	rec := &notify.Recorder{}
	a, err := New(Options{
		Config:        cfg,
		Notifier:      rec,
		Navigator:     nav,
		CredentialDir: dir,
		DraftPath:     filepath.Join(dir, "drafts.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, nav, rec
}

func signIn(t *testing.T, a *App, srv *apitest.Server) {
	t.Helper()
	srv.AddUser("reader@example.com", "pw")
	require.NoError(t, a.Session.Login(context.Background(), "reader@example.com", "pw", false))
	require.Equal(t, session.StateAuthenticated, a.Session.State())
}

// =============================================================================
// CONSTRUCTION TESTS
// =============================================================================

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestNew_RejectsUnknownCarrier(t *testing.T) {
	cfg := config.Default()
	cfg.API.Carrier = "carrier-pigeon"
	_, err := New(Options{Config: cfg, CredentialDir: t.TempDir(), DisableDrafts: true})
	require.Error(t, err)
}

func TestNew_WithoutDrafts(t *testing.T) {
	cfg := config.Default()
	a, err := New(Options{Config: cfg, CredentialDir: t.TempDir(), DisableDrafts: true})
	require.NoError(t, err)
	require.Nil(t, a.Drafts)
	require.NoError(t, a.Close())
}

// =============================================================================
// WIRING TESTS
// =============================================================================

func TestUnauthorized_EndsSessionAndPreservesDraft(t *testing.T) {
	srv := apitest.Start(t)
	a, nav, _ := newTestApp(t, srv)
	signIn(t, a, srv)
	ctx := context.Background()

	kb := srv.SeedKnowledgeBase("Papers")
	chat := srv.SeedChat("Reading group", kb.ID)
	require.NoError(t, a.KnowledgeBases.List(ctx))
	require.NoError(t, a.Chats.ListChats(ctx))
	require.NoError(t, a.Chats.SelectChat(ctx, chat))
	a.Chats.SetDraft("what does chapter two argue")

	srv.ExpireSessions()
	err := a.Chats.ListChats(ctx)
	require.ErrorIs(t, err, api.ErrUnauthorized)

	require.Equal(t, session.StateAnonymous, a.Session.State())
	require.Equal(t, session.RouteLanding, nav.last())

	// Every per-account cache is empty.
	snap := a.Chats.Snapshot()
	require.Empty(t, snap.Chats)
	require.Nil(t, snap.Selected)
	require.False(t, a.KnowledgeBases.Loaded())

	saved, err := a.Drafts.Load(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, "what does chapter two argue", saved)
}

func TestLogout_ClearsCaches(t *testing.T) {
	srv := apitest.Start(t)
	a, nav, _ := newTestApp(t, srv)
	signIn(t, a, srv)
	ctx := context.Background()

	kb := srv.SeedKnowledgeBase("Papers")
	srv.SeedDocument(kb.ID, "notes.txt", true)
	require.NoError(t, a.KnowledgeBases.List(ctx))
	a.Documents.Use(kb.ID)
	require.NoError(t, a.Documents.List(ctx))
	require.Len(t, a.Documents.Items(), 1)

	a.Session.Logout(ctx)

	require.Equal(t, session.RouteLanding, nav.last())
	require.Empty(t, a.KnowledgeBases.Items())
	require.Empty(t, a.Documents.Items())
	require.True(t, a.Documents.KnowledgeBaseID().IsZero())
}

func TestDeleteKnowledgeBase_DeselectsDocuments(t *testing.T) {
	srv := apitest.Start(t)
	a, _, _ := newTestApp(t, srv)
	signIn(t, a, srv)
	ctx := context.Background()

	kb := srv.SeedKnowledgeBase("Scratch")
	require.NoError(t, a.KnowledgeBases.List(ctx))
	a.Documents.Use(kb.ID)

	require.NoError(t, a.KnowledgeBases.Delete(ctx, kb.ID))
	require.True(t, a.Documents.KnowledgeBaseID().IsZero())
}

func TestSetNotifier_RedirectsNotices(t *testing.T) {
	srv := apitest.Start(t)
	a, _, first := newTestApp(t, srv)
	signIn(t, a, srv)

	second := &notify.Recorder{}
	a.SetNotifier(second)

	srv.Fail("GET", "/api/knowledge-bases/", 500, "boom", 1)
	require.Error(t, a.KnowledgeBases.List(context.Background()))

	require.Empty(t, first.Errors())
	require.NotEmpty(t, second.Errors())
	require.True(t, second.HasError(api.ErrServer))
}

func TestRelay_NilFallsBackToDiscard(t *testing.T) {
	r := &relay{n: notify.Discard}
	r.set(nil)
	require.NotPanics(t, func() { r.Notify(notify.Error("x", errors.New("y"))) })
}

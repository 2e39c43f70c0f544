// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// CREDENTIAL STORE TESTS
// =============================================================================

func TestCredentialStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewCredentialStore(dir)

	_, err := store.Load()
	require.ErrorIs(t, err, ErrNoCredential)

	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(Credential{Email: "ada@example.com", UserID: "7", Carrier: "cookie", Token: "tok", ExpiresAt: exp}))

	raw, err := os.ReadFile(filepath.Join(dir, CredentialFile))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "ada@example.com")
	require.NotContains(t, string(raw), "tok")

	// A fresh store re-derives the key from the salt on disk.
	got, err := NewCredentialStore(dir).Load()
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", got.Email)
	require.Equal(t, "tok", got.Token)
	require.True(t, exp.Equal(got.ExpiresAt))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = store.Load()
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestCredentialStore_OtherIdentityCannotRead(t *testing.T) {
	dir := t.TempDir()
	store := NewCredentialStore(dir)
	require.NoError(t, store.Save(Credential{Email: "a@b.c", Token: "t"}))

	other := NewCredentialStore(dir)
	other.secret = func() string { return "someone-else" }
	_, err := other.Load()
	require.ErrorIs(t, err, ErrCredentialCorrupt)
}

func TestCredentialStore_Tampered(t *testing.T) {
	dir := t.TempDir()
	store := NewCredentialStore(dir)
	require.NoError(t, store.Save(Credential{Email: "a@b.c", Token: "t"}))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(store.Path(), data, 0600))

	_, err = store.Load()
	require.ErrorIs(t, err, ErrCredentialCorrupt)
}

func TestCredential_Expired(t *testing.T) {
	now := time.Now()
	require.False(t, Credential{}.Expired(now))
	require.True(t, Credential{ExpiresAt: now.Add(-time.Minute)}.Expired(now))
	require.False(t, Credential{ExpiresAt: now.Add(time.Minute)}.Expired(now))
}

// =============================================================================
// DRAFT STORE TESTS
// =============================================================================

func openDrafts(t *testing.T) *DraftStore {
	t.Helper()
	s, err := OpenDraftStore(filepath.Join(t.TempDir(), "data", "drafts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDraftStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := openDrafts(t)

	got, err := s.Load(ctx, "1")
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.Save(ctx, "1", "first"))
	require.NoError(t, s.Save(ctx, "1", "second"))
	got, err = s.Load(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "second", got)

	require.NoError(t, s.Save(ctx, "1", "   "))
	got, err = s.Load(ctx, "1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDraftStore_ListOrder(t *testing.T) {
	ctx := context.Background()
	s := openDrafts(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	require.NoError(t, s.Save(ctx, "a", "old"))
	require.NoError(t, s.Save(ctx, "b", "new"))

	drafts, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	require.Equal(t, "b", string(drafts[0].ChatID))
	require.Equal(t, "old", drafts[1].Content)
}

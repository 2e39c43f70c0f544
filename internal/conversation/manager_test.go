// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/api/apitest"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
	"github.com/jeranaias/bookshelf-tui/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixture struct {
	srv    *apitest.Server
	client *api.Client
	rec    *notify.Recorder
	drafts *storage.DraftStore
	m      *Manager
	kb     model.KnowledgeBase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := apitest.Start(t)
	srv.AddUser("a@b.com", "pw")
	client := api.New(srv.URL, api.NewBearerCarrier())
	client.Carrier().Restore(srv.IssueToken("a@b.com"))

	drafts, err := storage.OpenDraftStore(filepath.Join(t.TempDir(), "drafts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { drafts.Close() })

	rec := &notify.Recorder{}
	return &fixture{
		srv:    srv,
		client: client,
		rec:    rec,
		drafts: drafts,
		m:      NewManager(client, rec, drafts),
		kb:     srv.SeedKnowledgeBase("Library"),
	}
}

func chatIDs(chats []model.Chat) []model.ID {
	out := make([]model.ID, len(chats))
	for i, c := range chats {
		out[i] = c.ID
	}
	return out
}

// =============================================================================
// LIST AND CREATE TESTS
// =============================================================================

func TestListChats_BackendOrderAndFailureKeepsList(t *testing.T) {
	f := newFixture(t)
	a := f.srv.SeedChat("A", f.kb.ID)
	b := f.srv.SeedChat("B", f.kb.ID)
	ctx := context.Background()

	require.NoError(t, f.m.ListChats(ctx))
	require.Equal(t, []model.ID{b.ID, a.ID}, chatIDs(f.m.Snapshot().Chats))

	f.srv.Fail(http.MethodGet, "/api/chats/", http.StatusBadGateway, "", 1)
	require.ErrorIs(t, f.m.ListChats(ctx), api.ErrServer)
	require.Len(t, f.m.Snapshot().Chats, 2)
	require.False(t, f.m.Snapshot().ChatsLoading)
	require.True(t, f.rec.HasError(api.ErrServer))
}

func TestCreateChat_EmptyTitleRejectedLocally(t *testing.T) {
	f := newFixture(t)
	f.srv.ResetCalls()

	_, err := f.m.CreateChat(context.Background(), CreateChatInput{Title: "", KnowledgeBaseIDs: []model.ID{f.kb.ID}})

	var fe *api.FieldError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, FieldTitle, fe.Field)
	require.Equal(t, "Chat name is required", fe.Message)
	require.Empty(t, f.srv.Calls())
}

func TestCreateChat_NoKnowledgeBaseRejectedLocally(t *testing.T) {
	f := newFixture(t)
	f.srv.ResetCalls()

	_, err := f.m.CreateChat(context.Background(), CreateChatInput{Title: "Thesis"})

	var fe *api.FieldError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, FieldKnowledgeBaseIDs, fe.Field)
	require.Equal(t, "Please select at least one knowledge base", fe.Message)
	require.Empty(t, f.srv.Calls())
}

func TestCreateChat_PrependsAndSelects(t *testing.T) {
	f := newFixture(t)
	old := f.srv.SeedChat("Old", f.kb.ID)
	ctx := context.Background()
	require.NoError(t, f.m.ListChats(ctx))

	chat, err := f.m.CreateChat(ctx, CreateChatInput{Title: " Thesis ", KnowledgeBaseIDs: []model.ID{f.kb.ID}})
	require.NoError(t, err)
	require.Equal(t, "Thesis", chat.Title)

	snap := f.m.Snapshot()
	require.Equal(t, []model.ID{chat.ID, old.ID}, chatIDs(snap.Chats))
	require.Equal(t, chat.ID, snap.Selected.ID)
	require.Equal(t, StateIdle, snap.State)
	require.Empty(t, snap.Messages)
	require.Empty(t, f.rec.Errors(), "empty history is not an error")
}

// =============================================================================
// SELECTION TESTS
// =============================================================================

func TestSelectChat_LoadsHistory(t *testing.T) {
	f := newFixture(t)
	chat := f.srv.SeedChat("C", f.kb.ID)
	f.srv.SeedMessages(chat.ID,
		model.Message{Role: model.RoleUser, Content: "hi"},
		model.Message{Role: model.RoleAssistant, Content: "hello"})

	require.NoError(t, f.m.SelectChat(context.Background(), chat))
	snap := f.m.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.True(t, snap.NewlyArrived.IsZero(), "history is never revealed incrementally")
}

func TestSelectChat_FailureSurfacesAndLeavesHistoryEmpty(t *testing.T) {
	f := newFixture(t)
	chat := f.srv.SeedChat("C", f.kb.ID)
	f.srv.Fail(http.MethodGet, fmt.Sprintf("/api/chats/%s/messages", chat.ID), http.StatusInternalServerError, "boom", 1)

	err := f.m.SelectChat(context.Background(), chat)
	require.ErrorIs(t, err, api.ErrServer)
	snap := f.m.Snapshot()
	require.Empty(t, snap.Messages)
	require.Equal(t, StateIdle, snap.State, "loading flag is always reset")
	require.Len(t, f.rec.Errors(), 1)
}

// blockingChats delays history for one chat until released.
type blockingChats struct {
	ChatAPI
	entered chan model.ID
	hold    map[model.ID]chan struct{}
	history map[model.ID][]model.Message
}

func (b *blockingChats) ListMessages(ctx context.Context, id model.ID) ([]model.Message, error) {
	b.entered <- id
	if ch := b.hold[id]; ch != nil {
		<-ch
	}
	return b.history[id], nil
}

func TestSelectChat_LateHistoryIgnored(t *testing.T) {
	stub := &blockingChats{
		entered: make(chan model.ID, 2),
		hold:    map[model.ID]chan struct{}{"1": make(chan struct{})},
		history: map[model.ID][]model.Message{
			"1": {{ID: "a", Content: "from chat one"}},
			"2": {{ID: "b", Content: "from chat two"}},
		},
	}
	m := NewManager(stub, nil, nil)

	done := make(chan error)
	go func() { done <- m.SelectChat(context.Background(), model.Chat{ID: "1"}) }()
	require.Equal(t, model.ID("1"), <-stub.entered)

	require.NoError(t, m.SelectChat(context.Background(), model.Chat{ID: "2"}))
	close(stub.hold["1"])
	require.NoError(t, <-done)

	snap := m.Snapshot()
	require.Equal(t, model.ID("2"), snap.Selected.ID)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "from chat two", snap.Messages[0].Content)
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSendMessage_AppendsInOrderAndRefreshesList(t *testing.T) {
	f := newFixture(t)
	older := f.srv.SeedChat("Older", f.kb.ID)
	chat := f.srv.SeedChat("Newer", f.kb.ID)
	ctx := context.Background()
	require.NoError(t, f.m.ListChats(ctx))
	require.NoError(t, f.m.SelectChat(ctx, model.Chat{ID: older.ID}))

	res, err := f.m.SendMessage(ctx, "  what is in here?  ")
	require.NoError(t, err)
	require.Equal(t, "what is in here?", res.UserMessage.Content)

	snap := f.m.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.True(t, snap.Messages[0].IsUser())
	require.True(t, snap.Messages[1].IsAssistant())
	require.Equal(t, res.AssistantMessage.ID, snap.NewlyArrived)
	require.Equal(t, []model.ID{older.ID, chat.ID}, chatIDs(snap.Chats), "list re-sorted by last_modified")
	require.Equal(t, StateIdle, snap.State)

	f.m.AcknowledgeArrival(res.AssistantMessage.ID)
	require.True(t, f.m.Snapshot().NewlyArrived.IsZero())
}

func TestSendMessage_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.SendMessage(ctx, "hello")
	require.ErrorIs(t, err, ErrNoChatSelected)

	chat := f.srv.SeedChat("C", f.kb.ID)
	require.NoError(t, f.m.SelectChat(ctx, chat))
	f.srv.ResetCalls()

	_, err = f.m.SendMessage(ctx, "   \n ")
	var fe *api.FieldError
	require.ErrorAs(t, err, &fe)
	require.Empty(t, f.srv.Calls())
}

func TestSendMessage_SingleInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.srv.SeedChat("C", f.kb.ID)
	require.NoError(t, f.m.SelectChat(ctx, chat))
	arrived, release := f.srv.HoldSends()
	defer release()

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = f.m.SendMessage(ctx, "first")
	}()

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("first send never reached the server")
	}
	require.Equal(t, StateSending, f.m.State())

	_, err := f.m.SendMessage(ctx, "second")
	require.ErrorIs(t, err, ErrSendInFlight)
	require.Equal(t, 1, f.srv.CallCount(http.MethodPost, "/api/chats/"))

	release()
	wg.Wait()
	require.NoError(t, firstErr)
	require.Equal(t, StateIdle, f.m.State())
	require.Len(t, f.m.Snapshot().Messages, 2)

	_, err = f.m.SendMessage(ctx, "third")
	require.NoError(t, err)
}

func TestSendMessage_ResultShownAfterReselectingChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.srv.SeedChat("A", f.kb.ID)
	b := f.srv.SeedChat("B", f.kb.ID)
	require.NoError(t, f.m.SelectChat(ctx, a))
	arrived, release := f.srv.HoldSends()
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := f.m.SendMessage(ctx, "hello")
		done <- err
	}()
	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("send never reached the server")
	}

	require.NoError(t, f.m.SelectChat(ctx, b))
	require.NoError(t, f.m.SelectChat(ctx, a))
	require.Empty(t, f.m.Snapshot().Messages, "history loaded before the send was committed")

	release()
	require.NoError(t, <-done)

	snap := f.m.Snapshot()
	require.Equal(t, a.ID, snap.Selected.ID)
	require.Len(t, snap.Messages, 2)
	require.Equal(t, "hello", snap.Messages[0].Content)
	require.Equal(t, snap.Messages[1].ID, snap.NewlyArrived)
}

func TestSendMessage_ResultNotShownInOtherChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.srv.SeedChat("A", f.kb.ID)
	b := f.srv.SeedChat("B", f.kb.ID)
	require.NoError(t, f.m.SelectChat(ctx, a))
	arrived, release := f.srv.HoldSends()
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := f.m.SendMessage(ctx, "hello")
		done <- err
	}()
	<-arrived
	require.NoError(t, f.m.SelectChat(ctx, b))
	release()
	require.NoError(t, <-done)

	snap := f.m.Snapshot()
	require.Equal(t, b.ID, snap.Selected.ID)
	require.Empty(t, snap.Messages)
	require.True(t, snap.NewlyArrived.IsZero())
}

func TestSendMessage_FailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.srv.SeedChat("C", f.kb.ID)
	require.NoError(t, f.m.SelectChat(ctx, chat))
	f.srv.Fail(http.MethodPost, fmt.Sprintf("/api/chats/%s/messages", chat.ID), http.StatusServiceUnavailable, "busy", 1)

	_, err := f.m.SendMessage(ctx, "keep me")
	require.ErrorIs(t, err, api.ErrServer)
	require.Equal(t, StateIdle, f.m.State())
	require.Empty(t, f.m.Snapshot().Messages)

	saved, err := f.drafts.Load(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, "keep me", saved)

	// Re-selecting restores the draft; a successful send clears it.
	f.m.Deselect()
	require.NoError(t, f.m.SelectChat(ctx, chat))
	require.Equal(t, "keep me", f.m.Snapshot().Draft)
	_, err = f.m.SendMessage(ctx, "keep me")
	require.NoError(t, err)
	saved, _ = f.drafts.Load(ctx, chat.ID)
	require.Empty(t, saved)
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestDeleteChat_ActiveClearsSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.srv.SeedChat("C", f.kb.ID)
	f.srv.SeedMessages(chat.ID, model.Message{Role: model.RoleUser, Content: "x"})
	require.NoError(t, f.m.ListChats(ctx))
	require.NoError(t, f.m.SelectChat(ctx, chat))

	require.NoError(t, f.m.DeleteChat(ctx, chat.ID))

	snap := f.m.Snapshot()
	require.Nil(t, snap.Selected)
	require.Empty(t, snap.Messages)
	require.Empty(t, snap.Chats)
	require.Equal(t, StateNoChatSelected, snap.State)
}

func TestDeleteChat_OtherKeepsSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keep := f.srv.SeedChat("Keep", f.kb.ID)
	drop := f.srv.SeedChat("Drop", f.kb.ID)
	f.srv.SeedMessages(keep.ID, model.Message{Role: model.RoleUser, Content: "x"})
	require.NoError(t, f.m.ListChats(ctx))
	require.NoError(t, f.m.SelectChat(ctx, keep))

	require.NoError(t, f.m.DeleteChat(ctx, drop.ID))

	snap := f.m.Snapshot()
	require.Equal(t, keep.ID, snap.Selected.ID)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, []model.ID{keep.ID}, chatIDs(snap.Chats))
}

func TestDeleteChat_InvalidatesPendingLoad(t *testing.T) {
	stub := &blockingChats{
		entered: make(chan model.ID, 1),
		hold:    map[model.ID]chan struct{}{"1": make(chan struct{})},
		history: map[model.ID][]model.Message{"1": {{ID: "a"}}},
	}
	deleter := &deletingChats{blockingChats: stub}
	m := NewManager(deleter, nil, nil)

	done := make(chan error)
	go func() { done <- m.SelectChat(context.Background(), model.Chat{ID: "1"}) }()
	<-stub.entered

	require.NoError(t, m.DeleteChat(context.Background(), "1"))
	close(stub.hold["1"])
	require.NoError(t, <-done)

	snap := m.Snapshot()
	require.Nil(t, snap.Selected)
	require.Empty(t, snap.Messages)
}

type deletingChats struct {
	*blockingChats
}

func (d *deletingChats) DeleteChat(context.Context, model.ID) error { return nil }

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.srv.SeedChat("C", f.kb.ID)
	require.NoError(t, f.m.ListChats(ctx))
	require.NoError(t, f.m.SelectChat(ctx, chat))

	f.m.Reset()
	snap := f.m.Snapshot()
	require.Empty(t, snap.Chats)
	require.Nil(t, snap.Selected)
}

func TestFlushDraft_PersistsTypedInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.srv.SeedChat("C", f.kb.ID)

	f.m.SetDraft("ignored without a chat")
	f.m.FlushDraft(ctx)

	require.NoError(t, f.m.SelectChat(ctx, chat))
	f.m.SetDraft("half a question")
	f.m.FlushDraft(ctx)

	saved, err := f.drafts.Load(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, "half a question", saved)
}

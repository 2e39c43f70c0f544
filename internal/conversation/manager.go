// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoChatSelected indicates an operation that needs an active chat.
	ErrNoChatSelected = errors.New("no chat selected")

	// ErrSendInFlight indicates a send is already pending for the chat.
	ErrSendInFlight = errors.New("a message is already being sent")
)

// Field-level messages for the create-chat form.
const (
	MsgTitleRequired         = "Chat name is required"
	MsgKnowledgeBaseRequired = "Please select at least one knowledge base"
	MsgMessageRequired       = "Message cannot be empty"
	FieldTitle               = "title"
	FieldKnowledgeBaseIDs    = "knowledge_base_ids"
	FieldContent             = "content"
)

// =============================================================================
// STATE
// =============================================================================

// State is the manager's position in the chat state machine.
type State int

const (
	// StateNoChatSelected means no chat is active.
	StateNoChatSelected State = iota
	// StateLoadingHistory means the active chat's messages are loading.
	StateLoadingHistory
	// StateIdle means the active chat is ready for input.
	StateIdle
	// StateSending means a send is in flight for the active chat.
	StateSending
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateLoadingHistory:
		return "loading-history"
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	}
	return "no-chat-selected"
}

// Snapshot is an immutable copy of the manager state.
type Snapshot struct {
	State        State
	Chats        []model.Chat
	ChatsLoading bool
	Selected     *model.Chat
	Messages     []model.Message
	// NewlyArrived is the id of the assistant message to reveal
	// incrementally, empty when none.
	NewlyArrived model.ID
	// Draft is unsent input restored for the selected chat.
	Draft string
}

// Sending reports whether a send is in flight for the selected chat.
func (s Snapshot) Sending() bool {
	return s.State == StateSending
}

// =============================================================================
// DEPENDENCIES
// =============================================================================

// ChatAPI is the backend surface used by the manager.
type ChatAPI interface {
	ListChats(ctx context.Context) ([]model.Chat, error)
	CreateChat(ctx context.Context, in api.CreateChatRequest) (model.Chat, error)
	DeleteChat(ctx context.Context, id model.ID) error
	ListMessages(ctx context.Context, chatID model.ID) ([]model.Message, error)
	SendMessage(ctx context.Context, chatID model.ID, content string) (model.SendResult, error)
}

// DraftStore keeps unsent input per chat.
type DraftStore interface {
	Save(ctx context.Context, chatID model.ID, content string) error
	Load(ctx context.Context, chatID model.ID) (string, error)
	Delete(ctx context.Context, chatID model.ID) error
}

// CreateChatInput is the create-chat form.
type CreateChatInput struct {
	Title            string
	Description      string
	KnowledgeBaseIDs []model.ID
}

// Validate checks the form without contacting the backend.
func (in CreateChatInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return api.NewFieldError(FieldTitle, MsgTitleRequired)
	}
	if len(in.KnowledgeBaseIDs) == 0 {
		return api.NewFieldError(FieldKnowledgeBaseIDs, MsgKnowledgeBaseRequired)
	}
	return nil
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager is the chat session state machine. It is safe for concurrent
// use; its mutex is never held across a network call.
type Manager struct {
	api      ChatAPI
	notifier notify.Notifier
	drafts   DraftStore

	mu           sync.Mutex
	chats        []model.Chat
	listSeq      uint64
	listApplied  uint64
	chatsLoading bool

	selected       *model.Chat
	selGen         uint64
	messages       []model.Message
	loadingHistory bool
	newlyArrived   model.ID
	draft          string

	sending map[model.ID]bool
}

// NewManager creates a manager. drafts may be nil.
func NewManager(client ChatAPI, notifier notify.Notifier, drafts DraftStore) *Manager {
	return &Manager{
		api:      client,
		notifier: notify.Or(notifier),
		drafts:   drafts,
		sending:  make(map[model.ID]bool),
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:        m.stateLocked(),
		Chats:        append([]model.Chat(nil), m.chats...),
		ChatsLoading: m.chatsLoading,
		Messages:     append([]model.Message(nil), m.messages...),
		NewlyArrived: m.newlyArrived,
		Draft:        m.draft,
	}
	if m.selected != nil {
		sel := *m.selected
		sel.KnowledgeBaseIDs = append([]model.ID(nil), sel.KnowledgeBaseIDs...)
		snap.Selected = &sel
	}
	return snap
}

func (m *Manager) stateLocked() State {
	switch {
	case m.selected == nil:
		return StateNoChatSelected
	case m.sending[m.selected.ID]:
		return StateSending
	case m.loadingHistory:
		return StateLoadingHistory
	}
	return StateIdle
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Selected returns the active chat.
func (m *Manager) Selected() (model.Chat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == nil {
		return model.Chat{}, false
	}
	return *m.selected, true
}

// =============================================================================
// CHAT LIST
// =============================================================================

// ListChats fetches the chats in backend order (most recently modified
// first). On failure a notice is sent and the previous list is kept. A
// response older than one already applied is dropped.
func (m *Manager) ListChats(ctx context.Context) error {
	m.mu.Lock()
	m.listSeq++
	seq := m.listSeq
	m.chatsLoading = true
	m.mu.Unlock()

	chats, err := m.api.ListChats(ctx)

	m.mu.Lock()
	if seq == m.listSeq {
		m.chatsLoading = false
	}
	if err != nil {
		m.mu.Unlock()
		logging.L().Warn("failed to list chats", "error", err)
		m.notifier.Notify(notify.Error("Could not load chats", err))
		return err
	}
	if seq > m.listApplied {
		m.listApplied = seq
		m.chats = chats
		m.refreshSelectedLocked()
	}
	m.mu.Unlock()
	return nil
}

// refreshSelectedLocked updates the selected chat's metadata from the list.
func (m *Manager) refreshSelectedLocked() {
	if m.selected == nil {
		return
	}
	for _, c := range m.chats {
		if c.ID == m.selected.ID {
			sel := c
			m.selected = &sel
			return
		}
	}
}

// CreateChat validates the form, creates the chat, prepends it and selects
// it. A blank title or an empty knowledge base selection is rejected with
// a *api.FieldError and no request is made.
func (m *Manager) CreateChat(ctx context.Context, in CreateChatInput) (model.Chat, error) {
	if err := in.Validate(); err != nil {
		return model.Chat{}, err
	}

	chat, err := m.api.CreateChat(ctx, api.CreateChatRequest{
		Title:            strings.TrimSpace(in.Title),
		Description:      strings.TrimSpace(in.Description),
		KnowledgeBaseIDs: in.KnowledgeBaseIDs,
	})
	if err != nil {
		return model.Chat{}, api.AsFieldError(err, FieldTitle)
	}
	if len(chat.KnowledgeBaseIDs) == 0 {
		chat.KnowledgeBaseIDs = in.KnowledgeBaseIDs
	}

	m.mu.Lock()
	out := make([]model.Chat, 0, len(m.chats)+1)
	out = append(out, chat)
	for _, c := range m.chats {
		if c.ID != chat.ID {
			out = append(out, c)
		}
	}
	m.chats = out
	m.mu.Unlock()

	logging.L().Info("chat created", "chat", chat.ID)
	_ = m.SelectChat(ctx, chat)
	return chat, nil
}

// DeleteChat deletes a chat. Deleting the active chat clears the selection,
// the history and the newly-arrived marker, and invalidates pending loads.
func (m *Manager) DeleteChat(ctx context.Context, id model.ID) error {
	if err := m.api.DeleteChat(ctx, id); err != nil && !errors.Is(err, api.ErrNotFound) {
		m.notifier.Notify(notify.Error("Could not delete chat", err))
		return err
	}

	m.mu.Lock()
	for i, c := range m.chats {
		if c.ID == id {
			m.chats = append(m.chats[:i:i], m.chats[i+1:]...)
			break
		}
	}
	if m.selected != nil && m.selected.ID == id {
		m.clearSelectionLocked()
	}
	m.mu.Unlock()

	if m.drafts != nil {
		_ = m.drafts.Delete(ctx, id)
	}
	logging.L().Info("chat deleted", "chat", id)
	return nil
}

func (m *Manager) clearSelectionLocked() {
	m.selected = nil
	m.messages = nil
	m.newlyArrived = ""
	m.draft = ""
	m.loadingHistory = false
	m.selGen++
}

// Deselect returns to NoChatSelected.
func (m *Manager) Deselect() {
	m.mu.Lock()
	m.clearSelectionLocked()
	m.mu.Unlock()
}

// Reset forgets everything. Used when the session ends.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.clearSelectionLocked()
	m.chats = nil
	m.listSeq++
	m.listApplied = m.listSeq
	m.chatsLoading = false
	m.sending = make(map[model.ID]bool)
	m.mu.Unlock()
}

// =============================================================================
// SELECTION AND HISTORY
// =============================================================================

// SelectChat makes chat active, resets the newly-arrived marker and loads
// its history. A "no messages yet" response is an empty history. Any other
// failure sends a notice, leaves the history empty and is returned. A
// result for a chat that is no longer selected is dropped.
func (m *Manager) SelectChat(ctx context.Context, chat model.Chat) error {
	m.mu.Lock()
	sel := chat
	m.selected = &sel
	m.selGen++
	gen := m.selGen
	m.messages = nil
	m.newlyArrived = ""
	m.draft = ""
	m.loadingHistory = true
	m.mu.Unlock()

	draft := ""
	if m.drafts != nil {
		if d, err := m.drafts.Load(ctx, chat.ID); err == nil {
			draft = d
		}
	}

	msgs, err := m.api.ListMessages(ctx, chat.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.selGen {
		return nil
	}
	m.loadingHistory = false
	m.draft = draft

	// Messages already present arrived from a send that finished while the
	// history was loading; they are kept after the loaded history.
	landed := m.messages
	switch {
	case err == nil:
		m.messages = appendUnique(msgs, landed...)
	case errors.Is(err, api.ErrNoMessages):
		m.messages = appendUnique([]model.Message{}, landed...)
	default:
		m.messages = appendUnique([]model.Message{}, landed...)
		logging.L().Warn("failed to load history", "chat", chat.ID, "error", err)
		m.notifier.Notify(notify.Error("Could not load messages", err))
		return err
	}
	return nil
}

// AcknowledgeArrival clears the newly-arrived marker once its reveal is done.
func (m *Manager) AcknowledgeArrival(id model.ID) {
	m.mu.Lock()
	if m.newlyArrived == id {
		m.newlyArrived = ""
	}
	m.mu.Unlock()
}

// =============================================================================
// SENDING
// =============================================================================

// SendMessage sends text to the selected chat. It is rejected when the text
// is blank, no chat is selected, or a send is already in flight for the
// chat. On success the user and assistant messages are appended in that
// order, the assistant message is marked newly arrived and the chat list is
// refreshed. On failure a notice is sent, the text is kept as a draft and
// the error is returned so the caller leaves its input intact.
func (m *Manager) SendMessage(ctx context.Context, text string) (model.SendResult, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return model.SendResult{}, api.NewFieldError(FieldContent, MsgMessageRequired)
	}

	m.mu.Lock()
	if m.selected == nil {
		m.mu.Unlock()
		return model.SendResult{}, ErrNoChatSelected
	}
	chatID := m.selected.ID
	if m.sending[chatID] {
		m.mu.Unlock()
		return model.SendResult{}, ErrSendInFlight
	}
	m.sending[chatID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sending, chatID)
		m.mu.Unlock()
	}()

	res, err := m.api.SendMessage(ctx, chatID, content)
	if err != nil {
		logging.L().Warn("send failed", "chat", chatID, "error", err)
		m.notifier.Notify(notify.Error("Message not sent", err))
		m.saveDraft(ctx, chatID, text)
		return model.SendResult{}, err
	}

	m.mu.Lock()
	// The result is shown whenever the chat is selected, including after
	// the user switched away and back while the send was in flight.
	if m.selected != nil && m.selected.ID == chatID {
		m.messages = appendUnique(m.messages, res.UserMessage, res.AssistantMessage)
		m.newlyArrived = res.AssistantMessage.ID
		m.draft = ""
	}
	m.mu.Unlock()

	if m.drafts != nil {
		_ = m.drafts.Delete(ctx, chatID)
	}
	_ = m.ListChats(ctx)
	return res, nil
}

// SetDraft records the input being typed for the selected chat without
// persisting it. FlushDraft writes it out later.
func (m *Manager) SetDraft(text string) {
	m.mu.Lock()
	if m.selected != nil {
		m.draft = text
	}
	m.mu.Unlock()
}

// FlushDraft persists the recorded input of the selected chat. It runs
// when the session ends so typed text survives a forced sign-out.
func (m *Manager) FlushDraft(ctx context.Context) {
	m.mu.Lock()
	if m.selected == nil || strings.TrimSpace(m.draft) == "" {
		m.mu.Unlock()
		return
	}
	chatID, text := m.selected.ID, m.draft
	m.mu.Unlock()
	m.saveDraft(ctx, chatID, text)
}

// SaveDraft stores unsent input for the selected chat, e.g. when the
// session ends mid-typing.
func (m *Manager) SaveDraft(ctx context.Context, text string) {
	m.mu.Lock()
	if m.selected == nil {
		m.mu.Unlock()
		return
	}
	chatID := m.selected.ID
	m.draft = text
	m.mu.Unlock()
	m.saveDraft(ctx, chatID, text)
}

func (m *Manager) saveDraft(ctx context.Context, chatID model.ID, text string) {
	if m.drafts == nil {
		return
	}
	if err := m.drafts.Save(ctx, chatID, text); err != nil {
		logging.L().Warn("failed to save draft", "chat", chatID, "error", err)
	}
}

// appendUnique appends msgs whose IDs are not already present.
func appendUnique(history []model.Message, msgs ...model.Message) []model.Message {
	seen := make(map[model.ID]bool, len(history))
	for _, h := range history {
		if !h.ID.IsZero() {
			seen[h.ID] = true
		}
	}
	for _, msg := range msgs {
		if !msg.ID.IsZero() && seen[msg.ID] {
			continue
		}
		history = append(history, msg)
	}
	return history
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apitest provides an in-memory bookshelf backend for tests.
//
// The server speaks the same REST contract as the real backend, issues both
// a session cookie and a bearer token on login, records every call, and can
// inject failures or hold message sends open.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// CookieName is the session cookie the fake backend sets.
const CookieName = "access_token"

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
}

// String renders the call as "METHOD /path".
func (c Call) String() string {
	return c.Method + " " + c.Path
}

type failure struct {
	status int
	detail string
	times  int
}

// Server is a fake backend. All exported methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[string]string
	userIDs  map[string]model.ID
	sessions map[string]string
	kbs      []*model.KnowledgeBase
	docs     map[model.ID][]*model.Document
	content  map[model.ID][]byte
	parseSeq map[model.ID][]model.ParsingStatus
	parsed   map[model.ID][]parsedVersion
	chats    []*model.Chat
	messages map[model.ID][]model.Message
	usage    map[string][]model.UsagePoint
	calls    []Call
	failures map[string]*failure
	nextID   int
	clock    time.Time

	// EmptyHistoryAs404 makes empty histories answer 404 "No messages found".
	EmptyHistoryAs404 bool

	// Reply produces the assistant answer for a user message.
	Reply func(content string) string

	sendGate chan struct{}
	sendSeen chan struct{}
}

// NewServer starts a fake backend. It is closed by t.Cleanup when used via
// Start; callers of NewServer must Close it.
func NewServer() *Server {
	s := &Server{
		users:             map[string]string{},
		userIDs:           map[string]model.ID{},
		sessions:          map[string]string{},
		docs:              map[model.ID][]*model.Document{},
		content:           map[model.ID][]byte{},
		parseSeq:          map[model.ID][]model.ParsingStatus{},
		parsed:            map[model.ID][]parsedVersion{},
		messages:          map[model.ID][]model.Message{},
		usage:             map[string][]model.UsagePoint{},
		failures:          map[string]*failure{},
		clock:             time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		EmptyHistoryAs404: true,
		Reply: func(content string) string {
			return "You said: **" + content + "**"
		},
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// parsedVersion is a stored parse together with its extracted text.
type parsedVersion struct {
	model.ParsedVersion
	content string
}

// Cleaner is the subset of testing.TB used by Start.
type Cleaner interface {
	Cleanup(func())
}

// Start is NewServer with automatic shutdown at test end.
func Start(t Cleaner) *Server {
	s := NewServer()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.inject)

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/me", s.handleMe)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/knowledge-bases/", s.handleListKBs)
		r.Post("/knowledge-bases/", s.handleCreateKB)
		r.Patch("/knowledge-bases/{kb}", s.handleRenameKB)
		r.Delete("/knowledge-bases/{kb}/", s.handleDeleteKB)

		r.Post("/documents/{kb}/upload", s.handleUpload)
		r.Get("/documents/{kb}", s.handleListDocs)
		r.Patch("/documents/{kb}/{doc}/rename", s.handleRenameDoc)
		r.Delete("/documents/{kb}/{doc}", s.handleDeleteDoc)
		r.Patch("/documents/{kb}/{doc}/toggle", s.handleToggleDoc)
		r.Get("/documents/{kb}/{doc}/download", s.handleDownload)
		r.Post("/documents/{kb}/{doc}/parse", s.handleStartParse)
		r.Get("/documents/{kb}/{doc}/parse-status", s.handleParseStatus)
		r.Get("/parsed-documents/{kb}/{doc}/parsed", s.handleListParsed)
		r.Get("/parsed-documents/{kb}/{doc}/parsed/{parsed}/content", s.handleParsedContent)

		r.Get("/chats/", s.handleListChats)
		r.Post("/chats/", s.handleCreateChat)
		r.Delete("/chats/{chat}", s.handleDeleteChat)
		r.Get("/chats/{chat}/messages", s.handleListMessages)
		r.Post("/chats/{chat}/messages", s.handleSendMessage)

		r.Get("/usage/tokens", s.handleUsage("tokens"))
		r.Get("/usage/document-tokens", s.handleUsage("document-tokens"))
	})
	return r
}

// =============================================================================
// TEST CONTROLS
// =============================================================================

// AddUser registers an account without going through the API.
func (s *Server) AddUser(email, password string) model.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password)
}

func (s *Server) addUserLocked(email, password string) model.ID {
	s.users[email] = password
	id := s.newIDLocked()
	s.userIDs[email] = id
	return id
}

// IssueToken creates a valid session for email, as a login would.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.sessions[token] = email
	return token
}

// ExpireSessions invalidates every issued session.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]string{}
}

// SeedKnowledgeBase creates a knowledge base directly.
func (s *Server) SeedKnowledgeBase(title string) model.KnowledgeBase {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb := &model.KnowledgeBase{ID: s.newIDLocked(), Title: title, CreatedAt: s.tickLocked()}
	s.kbs = append(s.kbs, kb)
	return *kb
}

// SeedDocument creates a document directly.
func (s *Server) SeedDocument(kbID model.ID, name string, enabled bool) model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := &model.Document{
		ID:              s.newIDLocked(),
		KnowledgeBaseID: kbID,
		Name:            name,
		Size:            1024,
		Enabled:         enabled,
		ParsingStatus:   model.ParsingDone,
		UploadedAt:      s.tickLocked(),
	}
	s.docs[kbID] = append(s.docs[kbID], doc)
	s.content[doc.ID] = []byte("content of " + name)
	return *doc
}

// SetContent replaces the stored bytes of a document.
func (s *Server) SetContent(docID model.ID, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[docID] = data
}

// SetParseSequence scripts the statuses successive parse-status polls return.
// The last status repeats.
func (s *Server) SetParseSequence(docID model.ID, statuses ...model.ParsingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parseSeq[docID] = statuses
	if d := s.findDocLocked(docID); d != nil && len(statuses) > 0 {
		d.ParsingStatus = statuses[0]
	}
}

// SeedParsedVersion stores a new parsed version of a document. It becomes
// the newest version.
func (s *Server) SeedParsedVersion(docID model.ID, content string) model.ParsedVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := model.ParsedVersion{ID: s.newIDLocked(), ParsedAt: s.tickLocked()}
	s.parsed[docID] = append([]parsedVersion{{ParsedVersion: v, content: content}}, s.parsed[docID]...)
	return v
}

// RemoveKnowledgeBase deletes a knowledge base behind the client's back.
func (s *Server) RemoveKnowledgeBase(id model.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteKBLocked(id)
}

// RemoveDocument deletes a document behind the client's back.
func (s *Server) RemoveDocument(kbID, docID model.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteDocLocked(kbID, docID)
}

// SeedChat creates a chat directly.
func (s *Server) SeedChat(title string, kbIDs ...model.ID) model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tickLocked()
	c := &model.Chat{ID: s.newIDLocked(), Title: title, KnowledgeBaseIDs: kbIDs, CreatedAt: now, LastModified: now}
	s.chats = append(s.chats, c)
	return *c
}

// SeedMessages appends history to a chat directly.
func (s *Server) SeedMessages(chatID model.ID, msgs ...model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = s.newIDLocked()
		}
		s.messages[chatID] = append(s.messages[chatID], m)
	}
}

// SetUsage sets the samples returned for kind ("tokens" or "document-tokens") and month.
func (s *Server) SetUsage(kind, month string, points ...model.UsagePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[kind+":"+month] = points
}

// Fail makes the next times requests to "METHOD /path" fail with status.
// times < 0 fails forever.
func (s *Server) Fail(method, path string, status int, detail string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = &failure{status: status, detail: detail, times: times}
}

// HoldSends blocks message sends until the returned release func is called.
// The returned channel receives once per send that reached the server.
func (s *Server) HoldSends() (arrived <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	seen := make(chan struct{}, 16)
	s.sendGate = gate
	s.sendSeen = seen
	var once sync.Once
	return seen, func() { once.Do(func() { close(gate) }) }
}

// Calls returns every recorded request.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts recorded requests with the method whose path has prefix.
func (s *Server) CallCount(method, prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded requests.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// KnowledgeBases returns the server's knowledge bases, newest first.
func (s *Server) KnowledgeBases() []model.KnowledgeBase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listKBsLocked()
}

// Documents returns the server's documents of a knowledge base, newest first.
func (s *Server) Documents(kbID model.ID) []model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listDocsLocked(kbID)
}

// Chats returns the server's chats, most recently modified first.
func (s *Server) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listChatsLocked()
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		f := s.failures[key]
		if f != nil {
			if f.times > 0 {
				f.times--
				if f.times == 0 {
					delete(s.failures, key)
				}
			}
		}
		s.mu.Unlock()
		if f != nil {
			writeError(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.sessionEmail(r); !ok {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionEmail(r *http.Request) (string, bool) {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	} else if ck, err := r.Cookie(CookieName); err == nil {
		token = ck.Value
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.sessions[token]
	return email, ok
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed form")
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")

	s.mu.Lock()
	want, ok := s.users[email]
	id := s.userIDs[email]
	s.mu.Unlock()
	if !ok || want != password {
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	token := s.IssueToken(email)
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: token, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         map[string]any{"id": id, "email": email},
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "Email and password are required")
		return
	}
	s.mu.Lock()
	_, exists := s.users[body.Email]
	if !exists {
		s.addUserLocked(body.Email, body.Password)
	}
	s.mu.Unlock()
	if exists {
		writeError(w, http.StatusBadRequest, "Email already registered")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"email": body.Email})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(CookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, ck.Value)
		s.mu.Unlock()
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		s.mu.Lock()
		delete(s.sessions, strings.TrimPrefix(h, "Bearer "))
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	email, ok := s.sessionEmail(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	s.mu.Lock()
	id := s.userIDs[email]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": id, "email": email}})
}

// =============================================================================
// KNOWLEDGE BASE HANDLERS
// =============================================================================

func (s *Server) handleListKBs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.KnowledgeBases())
}

func (s *Server) handleCreateKB(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Title) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"title": []string{"Title is required"}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.titleTakenLocked(body.Title, "") {
		writeError(w, http.StatusBadRequest, "Knowledge base with this title already exists")
		return
	}
	kb := &model.KnowledgeBase{ID: s.newIDLocked(), Title: body.Title, CreatedAt: s.tickLocked()}
	s.kbs = append(s.kbs, kb)
	writeJSON(w, http.StatusCreated, kb)
}

func (s *Server) handleRenameKB(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "kb"))
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Title) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"title": []string{"Title is required"}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kb := s.findKBLocked(id)
	if kb == nil {
		writeError(w, http.StatusNotFound, "Knowledge base not found")
		return
	}
	if s.titleTakenLocked(body.Title, id) {
		writeError(w, http.StatusConflict, "Knowledge base with this title already exists")
		return
	}
	kb.Title = body.Title
	writeJSON(w, http.StatusOK, kb)
}

func (s *Server) handleDeleteKB(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "kb"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findKBLocked(id) == nil {
		writeError(w, http.StatusNotFound, "Knowledge base not found")
		return
	}
	s.deleteKBLocked(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Knowledge base deleted"})
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	kbID := model.ID(chi.URLParam(r, "kb"))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unreadable upload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findKBLocked(kbID) == nil {
		writeError(w, http.StatusNotFound, "Knowledge base not found")
		return
	}
	for _, d := range s.docs[kbID] {
		if d.Name == header.Filename {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Document %s already exists", header.Filename))
			return
		}
	}
	doc := &model.Document{
		ID:              s.newIDLocked(),
		KnowledgeBaseID: kbID,
		Name:            header.Filename,
		Size:            int64(len(data)),
		Enabled:         true,
		ParsingStatus:   model.ParsingPending,
		UploadedAt:      s.tickLocked(),
	}
	s.docs[kbID] = append(s.docs[kbID], doc)
	s.content[doc.ID] = data
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocs(w http.ResponseWriter, r *http.Request) {
	kbID := model.ID(chi.URLParam(r, "kb"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findKBLocked(kbID) == nil {
		writeError(w, http.StatusNotFound, "Knowledge base not found")
		return
	}
	writeJSON(w, http.StatusOK, s.listDocsLocked(kbID))
}

func (s *Server) handleRenameDoc(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"name": []string{"Name is required"}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docFromRequestLocked(r)
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	doc.Name = body.Name
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDoc(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docFromRequestLocked(r)
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	s.deleteDocLocked(doc.KnowledgeBaseID, doc.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted"})
}

func (s *Server) handleToggleDoc(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docFromRequestLocked(r)
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if body.Enabled != nil {
		doc.Enabled = *body.Enabled
	} else {
		doc.Enabled = !doc.Enabled
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc := s.docFromRequestLocked(r)
	var data []byte
	var name string
	if doc != nil {
		data = s.content[doc.ID]
		name = doc.Name
	}
	s.mu.Unlock()
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleStartParse(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docFromRequestLocked(r)
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	doc.ParsingStatus = model.ParsingProcessing
	if _, scripted := s.parseSeq[doc.ID]; !scripted {
		s.parseSeq[doc.ID] = []model.ParsingStatus{model.ParsingProcessing, model.ParsingDone}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": doc.ParsingStatus})
}

func (s *Server) handleParseStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docFromRequestLocked(r)
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if seq := s.parseSeq[doc.ID]; len(seq) > 0 {
		doc.ParsingStatus = seq[0]
		if len(seq) > 1 {
			s.parseSeq[doc.ID] = seq[1:]
		}
	}
	resp := map[string]any{"status": doc.ParsingStatus}
	if doc.ParsingStatus == model.ParsingDone {
		pages := 3
		doc.ParsedPages = &pages
		resp["parsed_pages"] = pages
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListParsed(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docFromRequestLocked(r)
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	out := make([]model.ParsedVersion, 0, len(s.parsed[doc.ID]))
	for _, v := range s.parsed[doc.ID] {
		out = append(out, v.ParsedVersion)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleParsedContent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docFromRequestLocked(r)
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	id := model.ID(chi.URLParam(r, "parsed"))
	for _, v := range s.parsed[doc.ID] {
		if v.ID == id {
			writeJSON(w, http.StatusOK, map[string]string{"content": v.content})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Parsed document not found")
}

// =============================================================================
// CHAT HANDLERS
// =============================================================================

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Chats())
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title            string     `json:"title"`
		Description      string     `json:"description"`
		KnowledgeBaseIDs []model.ID `json:"knowledge_base_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Malformed body")
		return
	}
	if strings.TrimSpace(body.Title) == "" || len(body.KnowledgeBaseIDs) == 0 {
		writeError(w, http.StatusBadRequest, "Title and at least one knowledge base are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tickLocked()
	c := &model.Chat{
		ID:               s.newIDLocked(),
		Title:            body.Title,
		Description:      body.Description,
		KnowledgeBaseIDs: body.KnowledgeBaseIDs,
		CreatedAt:        now,
		LastModified:     now,
	}
	s.chats = append(s.chats, c)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "chat"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.chats {
		if c.ID == id {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			delete(s.messages, id)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Chat deleted"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Chat not found")
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "chat"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findChatLocked(id) == nil {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	msgs := s.messages[id]
	if len(msgs) == 0 && s.EmptyHistoryAs404 {
		writeError(w, http.StatusNotFound, "No messages found for this chat")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "chat"))
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusUnprocessableEntity, "Content is required")
		return
	}

	s.mu.Lock()
	gate, seen := s.sendGate, s.sendSeen
	s.mu.Unlock()
	if seen != nil {
		seen <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findChatLocked(id)
	if c == nil {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	user := model.Message{ID: s.newIDLocked(), Role: model.RoleUser, Content: body.Content}
	assistant := model.Message{ID: s.newIDLocked(), Role: model.RoleAssistant, Content: s.Reply(body.Content)}
	s.messages[id] = append(s.messages[id], user, assistant)
	c.LastModified = s.tickLocked()
	writeJSON(w, http.StatusOK, model.SendResult{UserMessage: user, AssistantMessage: assistant})
}

func (s *Server) handleUsage(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		month := r.URL.Query().Get("month")
		if _, err := time.Parse("2006-01", month); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "month must be YYYY-MM")
			return
		}
		s.mu.Lock()
		points := append([]model.UsagePoint{}, s.usage[kind+":"+month]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, points)
	}
}

// =============================================================================
// STATE HELPERS (callers hold s.mu)
// =============================================================================

func (s *Server) newIDLocked() model.ID {
	s.nextID++
	return model.ID(strconv.Itoa(s.nextID))
}

func (s *Server) tickLocked() model.Timestamp {
	s.clock = s.clock.Add(time.Second)
	return model.NewTimestamp(s.clock)
}

func (s *Server) titleTakenLocked(title string, except model.ID) bool {
	for _, kb := range s.kbs {
		if kb.ID != except && kb.Title == title {
			return true
		}
	}
	return false
}

func (s *Server) findKBLocked(id model.ID) *model.KnowledgeBase {
	for _, kb := range s.kbs {
		if kb.ID == id {
			return kb
		}
	}
	return nil
}

func (s *Server) findDocLocked(id model.ID) *model.Document {
	for _, docs := range s.docs {
		for _, d := range docs {
			if d.ID == id {
				return d
			}
		}
	}
	return nil
}

func (s *Server) docFromRequestLocked(r *http.Request) *model.Document {
	kbID := model.ID(chi.URLParam(r, "kb"))
	docID := model.ID(chi.URLParam(r, "doc"))
	for _, d := range s.docs[kbID] {
		if d.ID == docID {
			return d
		}
	}
	return nil
}

func (s *Server) findChatLocked(id model.ID) *model.Chat {
	for _, c := range s.chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Server) deleteKBLocked(id model.ID) {
	for i, kb := range s.kbs {
		if kb.ID == id {
			s.kbs = append(s.kbs[:i], s.kbs[i+1:]...)
			break
		}
	}
	for _, d := range s.docs[id] {
		delete(s.content, d.ID)
		delete(s.parsed, d.ID)
	}
	delete(s.docs, id)
}

func (s *Server) deleteDocLocked(kbID, docID model.ID) {
	docs := s.docs[kbID]
	for i, d := range docs {
		if d.ID == docID {
			s.docs[kbID] = append(docs[:i], docs[i+1:]...)
			delete(s.content, docID)
			delete(s.parsed, docID)
			return
		}
	}
}

func (s *Server) listKBsLocked() []model.KnowledgeBase {
	out := make([]model.KnowledgeBase, 0, len(s.kbs))
	for _, kb := range s.kbs {
		out = append(out, *kb)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt.Time) })
	return out
}

func (s *Server) listDocsLocked(kbID model.ID) []model.Document {
	out := make([]model.Document, 0, len(s.docs[kbID]))
	for _, d := range s.docs[kbID] {
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt.Time) })
	return out
}

func (s *Server) listChatsLocked() []model.Chat {
	out := make([]model.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified.Time) })
	return out
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

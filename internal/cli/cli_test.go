// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/api/apitest"
	"github.com/jeranaias/bookshelf-tui/internal/app"
	"github.com/jeranaias/bookshelf-tui/internal/collection"
	"github.com/jeranaias/bookshelf-tui/internal/config"
	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// =============================================================================
// HARNESS
// =============================================================================

// harness runs commands the way main does, one app per command, sharing
// one credential directory so a remembered session carries over.
type harness struct {
	t   *testing.T
	srv *apitest.Server
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("BOOKSHELF_HOME", t.TempDir())
	t.Setenv(PasswordEnv, "")
	return &harness{t: t, srv: apitest.Start(t), dir: t.TempDir()}
}

type result struct {
	out    string
	errOut string
	err    error
}

func (h *harness) run(stdin string, argv ...string) result {
	h.t.Helper()
	cmd, args := Parse(argv)

	cfg := config.Default()
	cfg.API.BaseURL = h.srv.URL
	cfg.API.Carrier = "bearer"
	cfg.API.RequestsPerSecond = 0

	a, err := app.New(app.Options{
		Config:        cfg,
		Notifier:      logNotifier{},
		CredentialDir: h.dir,
		DraftPath:     filepath.Join(h.dir, "drafts.db"),
	})
	require.NoError(h.t, err)
	defer a.Close()

	var out, errOut bytes.Buffer
	env := NewEnv(context.Background(), args, a)
	env.Out, env.ErrOut, env.In = &out, &errOut, strings.NewReader(stdin)

	err = Execute(env, cmd)
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

// signIn registers a user and remembers the session.
func (h *harness) signIn() {
	h.t.Helper()
	h.srv.AddUser("reader@example.com", "pw")
	h.t.Setenv(PasswordEnv, "pw")
	res := h.run("", "login", "reader@example.com", "--remember")
	require.NoError(h.t, res.err)
}

// decode unwraps a JSON envelope into data.
func decode(t *testing.T, out string, data interface{}) JSONResponse {
	t.Helper()
	var raw struct {
		JSONResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.JSONResponse
}

// =============================================================================
// PARSING
// =============================================================================

func TestParse(t *testing.T) {
	cmd, args := Parse(nil)
	require.Equal(t, CmdTUI, cmd)

	cmd, args = Parse([]string{"--json", "KB", "List", "--filter", "math"})
	require.Equal(t, CmdKB, cmd)
	require.True(t, args.JSON)
	require.Equal(t, "kb", args.Name)
	require.Equal(t, "list", args.Subcommand)
	require.Equal(t, []string{"List", "--filter", "math"}, args.Raw)

	cmd, args = Parse([]string{"docs", "--server=http://backend:9000", "ls", "7", "--config", "/tmp/b.toml", "-q"})
	require.Equal(t, CmdDocs, cmd)
	require.Equal(t, "http://backend:9000", args.Server)
	require.Equal(t, "/tmp/b.toml", args.ConfigPath)
	require.True(t, args.Quiet)
	require.Equal(t, []string{"ls", "7"}, args.Raw)

	cmd, _ = Parse([]string{"signin"})
	require.Equal(t, CmdLogin, cmd)

	cmd, args = Parse([]string{"frobnicate"})
	require.Equal(t, CmdUnknown, cmd)
	require.Equal(t, "frobnicate", args.Name)
}

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"--remember", "reader@example.com"}, "remember")
	require.True(t, p.BoolFlag("remember"))
	require.Equal(t, "reader@example.com", p.Positional(0))

	p = NewArgParser([]string{"delete", "7", "a.pdf", "b.pdf", "-y", "--dir", "out"}, "yes", "y")
	require.Equal(t, "delete", p.Subcommand())
	require.Equal(t, []string{"a.pdf", "b.pdf"}, p.PositionalFrom(2))
	require.True(t, p.BoolFlag("yes", "y"))
	require.Equal(t, "out", p.Flag("dir"))
	require.Equal(t, ".", NewArgParser(nil).FlagOrDefault("dir", "."))

	p = NewArgParser([]string{"show", "--lines=20", "--plain=false", "--", "--odd-name.txt"}, "plain")
	require.Equal(t, 20, p.FlagIntOrDefault("lines", 400))
	require.False(t, p.BoolFlag("plain"))
	require.Equal(t, "--odd-name.txt", p.Positional(1))

	p = NewArgParser([]string{"send", "7", "-"})
	require.Equal(t, "-", JoinPositionalArgs(p, 2))
	require.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("boom"), ExitGeneralError},
		{&UsageError{Message: "bad"}, ExitUsageError},
		{api.NewFieldError("title", "Title is required"), ExitUsageError},
		{&AmbiguousError{Resource: "chat", Ref: "x", Count: 2}, ExitUsageError},
		{&collection.RejectedFileError{Name: "a.exe", Reason: "nope"}, ExitUsageError},
		{&ConfigError{Err: errors.New("bad toml")}, ExitConfigError},
		{ErrNotSignedIn, ExitAuthError},
		{fmt.Errorf("%w: %w", ErrBadCredentials, api.ErrUnauthorized), ExitAuthError},
		{&NotFoundError{Resource: "bookshelf", Ref: "x"}, ExitNotFound},
		{&collection.GoneError{Kind: "Document", Err: api.ErrNotFound}, ExitNotFound},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), ExitTimeout},
		{&silentError{err: ErrNotSignedIn}, ExitAuthError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, GetExitCode(tt.err), "%v", tt.err)
	}
}

func TestDisplayErrorJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	DisplayError(&out, &errOut, "kb list", ErrNotSignedIn, true)
	require.Empty(t, errOut.String())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, false, got["success"])
	require.Equal(t, "auth_error", got["error_type"])
	require.EqualValues(t, ExitAuthError, got["exit_code"])
	require.Contains(t, got["error"], "bookshelf login --remember")

	out.Reset()
	DisplayError(&out, &errOut, "kb create", api.NewFieldError("title", "Title is required"), false)
	require.Empty(t, out.String())
	require.Contains(t, errOut.String(), "Title is required")

	errOut.Reset()
	DisplayError(&out, &errOut, "docs upload", &silentError{err: errors.New("x")}, false)
	require.Empty(t, errOut.String())
}

func TestMatchRef(t *testing.T) {
	kbs := []model.KnowledgeBase{
		{ID: "1", Title: "Physics"},
		{ID: "2", Title: "physics"},
		{ID: "3", Title: "Straße"},
	}
	id := func(kb model.KnowledgeBase) model.ID { return kb.ID }
	title := func(kb model.KnowledgeBase) string { return kb.Title }

	kb, err := matchRef("bookshelf", "2", kbs, id, title)
	require.NoError(t, err)
	require.Equal(t, "physics", kb.Title)

	kb, err = matchRef("bookshelf", "STRASSE", kbs, id, title)
	require.NoError(t, err)
	require.Equal(t, model.ID("3"), kb.ID)

	_, err = matchRef("bookshelf", "PHYSICS", kbs, id, title)
	var amb *AmbiguousError
	require.ErrorAs(t, err, &amb)
	require.Equal(t, 2, amb.Count)

	_, err = matchRef("bookshelf", "chemistry", kbs, id, title)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

// =============================================================================
// AUTH COMMANDS
// =============================================================================

func TestCommandsRequireRememberedSession(t *testing.T) {
	h := newHarness(t)
	res := h.run("", "kb", "list")
	require.ErrorIs(t, res.err, ErrNotSignedIn)
	require.Equal(t, ExitAuthError, GetExitCode(res.err))

	h.srv.AddUser("reader@example.com", "pw")
	t.Setenv(PasswordEnv, "pw")
	res = h.run("", "login", "reader@example.com")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "Signed in as reader@example.com")
	require.Contains(t, res.out, "not remembered")

	res = h.run("", "whoami")
	require.ErrorIs(t, res.err, ErrNotSignedIn)
}

func TestLoginRememberThenWhoami(t *testing.T) {
	h := newHarness(t)
	h.signIn()

	res := h.run("", "--json", "whoami")
	require.NoError(t, res.err)
	var info AccountInfo
	env := decode(t, res.out, &info)
	require.True(t, env.Success)
	require.Equal(t, "reader@example.com", info.Email)
	require.True(t, info.Remembered)
	require.NotNil(t, info.ExpiresAt)

	res = h.run("", "logout")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "Signed out reader@example.com")

	res = h.run("", "whoami")
	require.ErrorIs(t, res.err, ErrNotSignedIn)
}

func TestLoginPromptsAndRejectsBadPassword(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("reader@example.com", "pw")

	res := h.run("reader@example.com\nwrong\n", "login")
	require.ErrorIs(t, res.err, ErrBadCredentials)
	require.Equal(t, "Incorrect email or password", Message(res.err))
	require.Contains(t, res.errOut, "Email: ")

	res = h.run("", "login")
	var tty *TTYRequiredError
	require.ErrorAs(t, res.err, &tty)
}

func TestRegisterChecksConfirmation(t *testing.T) {
	h := newHarness(t)

	res := h.run("new@example.com\nsecret\nsecreT\n", "register")
	var fe *api.FieldError
	require.ErrorAs(t, res.err, &fe)
	require.Equal(t, "confirm", fe.Field)

	res = h.run("new@example.com\nsecret\nsecret\n", "register", "--remember")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "Registered and signed in as new@example.com")

	res = h.run("", "whoami")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "new@example.com")
}

// =============================================================================
// KNOWLEDGE BASE COMMANDS
// =============================================================================

func TestKBCreateListJSON(t *testing.T) {
	h := newHarness(t)
	h.signIn()

	res := h.run("", "--json", "kb", "create", "Quantum", "Notes")
	require.NoError(t, res.err)
	var kb model.KnowledgeBase
	decode(t, res.out, &kb)
	require.Equal(t, "Quantum Notes", kb.Title)

	res = h.run("", "--json", "kb", "create", " ")
	require.Error(t, res.err)
	require.Equal(t, ExitUsageError, GetExitCode(res.err))

	res = h.run("", "--json", "kb", "list")
	require.NoError(t, res.err)
	var kbs []model.KnowledgeBase
	decode(t, res.out, &kbs)
	require.Len(t, kbs, 1)
	require.Equal(t, kb.ID, kbs[0].ID)

	res = h.run("", "kb", "ls", "--filter", "zzz")
	require.NoError(t, res.err)
	require.Contains(t, res.out, `No bookshelves match "zzz"`)
}

func TestKBRenameAndDelete(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	kb := h.srv.SeedKnowledgeBase("Drafts")

	res := h.run("", "kb", "rename", "drafts", "Final")
	require.NoError(t, res.err)
	require.Contains(t, res.out, `Renamed "Drafts" to "Final"`)

	res = h.run("n\n", "kb", "delete", "Final")
	var ue *UsageError
	require.ErrorAs(t, res.err, &ue)
	require.Len(t, h.srv.KnowledgeBases(), 1)

	res = h.run("", "kb", "rm", kb.ID.String(), "--yes")
	require.NoError(t, res.err)
	require.Empty(t, h.srv.KnowledgeBases())
}

// =============================================================================
// DOCUMENT COMMANDS
// =============================================================================

func TestDocsUploadAndList(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	kb := h.srv.SeedKnowledgeBase("Papers")

	dir := t.TempDir()
	good := filepath.Join(dir, "notes.txt")
	bad := filepath.Join(dir, "tool.exe")
	require.NoError(t, os.WriteFile(good, []byte("hello shelf"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("MZ"), 0644))

	res := h.run("", "docs", "upload", "papers", good, bad, filepath.Join(dir, "missing.pdf"))
	require.Error(t, res.err)
	require.Contains(t, res.out, "Uploaded notes.txt")
	require.Contains(t, res.errOut, "tool.exe")
	require.Contains(t, res.errOut, "missing.pdf")
	require.Len(t, h.srv.Documents(kb.ID), 1)

	res = h.run("", "docs", "list", kb.ID.String())
	require.NoError(t, res.err)
	require.Contains(t, res.out, "notes.txt")
	require.Contains(t, res.out, "NAME")

	res = h.run("", "--json", "docs", "upload", "papers", bad)
	require.Error(t, res.err)
	require.Equal(t, ExitUsageError, GetExitCode(res.err))
	resp := decode(t, res.out, nil)
	require.False(t, resp.Success)
}

func TestDocsToggleAndDelete(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	kb := h.srv.SeedKnowledgeBase("Papers")
	a := h.srv.SeedDocument(kb.ID, "a.pdf", true)
	h.srv.SeedDocument(kb.ID, "b.pdf", false)

	res := h.run("", "docs", "disable", "Papers", "--all")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "1 updated, 1 unchanged")
	for _, d := range h.srv.Documents(kb.ID) {
		require.False(t, d.Enabled)
	}

	res = h.run("", "docs", "rename", "Papers", "a.pdf", "alpha.pdf")
	require.NoError(t, res.err)

	res = h.run("", "docs", "delete", "Papers", a.ID.String(), "b.pdf", "--yes")
	require.NoError(t, res.err)
	require.Empty(t, h.srv.Documents(kb.ID))
}

func TestDocsShowAndDownload(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	kb := h.srv.SeedKnowledgeBase("Papers")
	doc := h.srv.SeedDocument(kb.ID, "readme.md", true)
	h.srv.SetContent(doc.ID, []byte("# Title\nline two\n"))

	res := h.run("", "docs", "show", "Papers", "readme.md", "--plain")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "line two")

	out := t.TempDir()
	res = h.run("", "docs", "download", "Papers", "readme.md", "--dir", out)
	require.NoError(t, res.err)
	data, err := os.ReadFile(filepath.Join(out, "readme.md"))
	require.NoError(t, err)
	require.Equal(t, "# Title\nline two\n", string(data))
}

func TestDocsShowParsedVersions(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	kb := h.srv.SeedKnowledgeBase("Papers")
	doc := h.srv.SeedDocument(kb.ID, "scan.txt", true)
	h.srv.SetContent(doc.ID, []byte("plain original"))
	older := h.srv.SeedParsedVersion(doc.ID, "older extraction")
	newer := h.srv.SeedParsedVersion(doc.ID, "newer extraction")

	res := h.run("", "docs", "show", "Papers", "scan.txt", "--plain")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "Parsed version 1 of 2")
	require.Contains(t, res.out, "newer extraction")

	res = h.run("", "docs", "show", "Papers", "scan.txt", "--version", "2", "--plain")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "older extraction")

	res = h.run("", "docs", "show", "Papers", "scan.txt", "--version", "3")
	require.ErrorContains(t, res.err, "version 3 does not exist")

	res = h.run("", "docs", "show", "Papers", "scan.txt", "--version", "x")
	var ue *UsageError
	require.ErrorAs(t, res.err, &ue)

	res = h.run("", "docs", "show", "Papers", "scan.txt", "--original", "--plain")
	require.NoError(t, res.err)
	require.NotContains(t, res.out, "Parsed version")
	require.Contains(t, res.out, "plain original")

	res = h.run("", "--json", "docs", "versions", "Papers", "scan.txt")
	require.NoError(t, res.err)
	var versions []model.ParsedVersion
	decode(t, res.out, &versions)
	require.Equal(t, []model.ID{newer.ID, older.ID}, []model.ID{versions[0].ID, versions[1].ID})

	res = h.run("", "docs", "versions", "Papers", "scan.txt")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "PARSED")
	require.Contains(t, res.out, older.ID.String())
}

func TestDocsVersions_NoneParsed(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	kb := h.srv.SeedKnowledgeBase("Papers")
	h.srv.SeedDocument(kb.ID, "notes.txt", true)

	res := h.run("", "docs", "versions", "Papers", "notes.txt")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "has no parsed versions")

	res = h.run("", "docs", "show", "Papers", "notes.txt", "--version", "1")
	require.ErrorContains(t, res.err, "has no parsed versions")

	res = h.run("", "docs", "show", "Papers", "notes.txt", "--plain")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "content of notes.txt")
}

func TestDocsParseWait(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	kb := h.srv.SeedKnowledgeBase("Papers")
	doc := h.srv.SeedDocument(kb.ID, "scan.pdf", true)
	h.srv.SetParseSequence(doc.ID, model.ParsingDone)

	res := h.run("", "--json", "docs", "parse", "Papers", "scan.pdf", "--wait")
	require.NoError(t, res.err)
	var docs []model.Document
	decode(t, res.out, &docs)
	require.Len(t, docs, 1)
	require.Equal(t, model.ParsingDone, docs[0].ParsingStatus)
}

// =============================================================================
// CHAT COMMANDS
// =============================================================================

func TestChatCreateAndSend(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	kb := h.srv.SeedKnowledgeBase("Papers")
	h.srv.SeedDocument(kb.ID, "a.pdf", true)

	res := h.run("", "chat", "create", "Research", "--kb", "papers")
	require.NoError(t, res.err)
	require.Len(t, h.srv.Chats(), 1)

	res = h.run("", "chat", "create", "Orphan")
	var fe *api.FieldError
	require.ErrorAs(t, res.err, &fe)

	res = h.run("", "chat", "send", "research", "what", "is", "light", "--raw")
	require.NoError(t, res.err)
	require.Equal(t, "You said: **what is light**\n", res.out)

	res = h.run("from stdin\n", "--json", "chat", "send", "Research", "-")
	require.NoError(t, res.err)
	var sent model.SendResult
	decode(t, res.out, &sent)
	require.Equal(t, "from stdin", sent.UserMessage.Content)
	require.Equal(t, model.RoleAssistant, sent.AssistantMessage.Role)

	res = h.run("", "chat", "history", "Research", "--raw")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "what is light")
	require.Contains(t, res.out, "You said: **from stdin**")

	res = h.run("", "--json", "chat", "libraries", "Research")
	require.NoError(t, res.err)
	var libs []LibraryInfo
	decode(t, res.out, &libs)
	require.Len(t, libs, 1)
	require.Equal(t, "ok", libs[0].Status)
	require.Equal(t, []string{"a.pdf"}, libs[0].Enabled)
}

func TestChatREPL(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	kb := h.srv.SeedKnowledgeBase("Papers")
	h.srv.SeedChat("Research", kb.ID)

	res := h.run("/help\nhello there\n/history raw\n/nope\n/exit\n", "chat", "repl", "Research")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "/libraries")
	require.Contains(t, res.out, "hello there")
	require.Contains(t, res.errOut, "unknown command /nope")
	require.Equal(t, 1, h.srv.CallCount("POST", "/api/chats/"))
}

// =============================================================================
// USAGE / CONFIG
// =============================================================================

func TestUsageJSON(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	day := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	h.srv.SetUsage("tokens", "2024-05", model.UsagePoint{Timestamp: model.NewTimestamp(day), TotalTokens: 120})
	h.srv.SetUsage("document-tokens", "2024-05", model.UsagePoint{Timestamp: model.NewTimestamp(day), TotalTokens: 30})

	res := h.run("", "--json", "usage", "--month", "2024-05")
	require.NoError(t, res.err)
	var sum UsageSummary
	decode(t, res.out, &sum)
	require.Equal(t, 150, sum.Total)
	require.Len(t, sum.Days, 31)
	require.Equal(t, 120, sum.Days[2].ChatTokens)

	res = h.run("", "usage", "2024-05")
	require.NoError(t, res.err)
	require.Contains(t, res.out, "May 3")

	res = h.run("", "usage", "--month", "May")
	require.Equal(t, ExitUsageError, GetExitCode(res.err))
}

func TestConfigSetAndGet(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "config", "set", "ui.theme", "light")
	require.NoError(t, res.err)

	path, err := config.ConfigPathTOML()
	require.NoError(t, err)
	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "light", cfg.UI.Theme)

	res = h.run("", "config", "set", "ui.theme", "purple")
	var ce *ConfigError
	require.ErrorAs(t, res.err, &ce)

	res = h.run("", "config", "set", "ui.nope", "1")
	var ue *UsageError
	require.ErrorAs(t, res.err, &ue)

	res = h.run("", "config", "get", "api.carrier")
	require.NoError(t, res.err)
	require.Equal(t, "bearer\n", res.out)

	res = h.run("", "config", "path")
	require.NoError(t, res.err)
	require.Equal(t, path+"\n", res.out)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package collection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/api/apitest"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newBackend(t *testing.T) (*apitest.Server, *api.Client) {
	t.Helper()
	srv := apitest.Start(t)
	srv.AddUser("a@b.com", "pw")
	client := api.New(srv.URL, api.NewBearerCarrier())
	client.Carrier().Restore(srv.IssueToken("a@b.com"))
	return srv, client
}

func ids[T any](items []T, key func(T) model.ID) []model.ID {
	out := make([]model.ID, len(items))
	for i, it := range items {
		out[i] = key(it)
	}
	return out
}

func kbKey(kb model.KnowledgeBase) model.ID { return kb.ID }
func docKey(d model.Document) model.ID      { return d.ID }

func memFile(name string, data string) UploadFile {
	return UploadFile{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(data)), nil },
	}
}

// =============================================================================
// CACHE TESTS
// =============================================================================

func TestCache_Reconciliation(t *testing.T) {
	c := NewCache(kbKey)
	c.Replace([]model.KnowledgeBase{{ID: "1", Title: "a"}, {ID: "2", Title: "b"}})
	require.True(t, c.Loaded())

	c.Prepend(model.KnowledgeBase{ID: "3", Title: "c"})
	require.Equal(t, []model.ID{"3", "1", "2"}, ids(c.Items(), kbKey))

	require.True(t, c.Patch(model.KnowledgeBase{ID: "1", Title: "A"}))
	got, _ := c.Get("1")
	require.Equal(t, "A", got.Title)
	require.Equal(t, []model.ID{"3", "1", "2"}, ids(c.Items(), kbKey), "patch keeps position")

	require.True(t, c.Remove("3"))
	require.False(t, c.Remove("3"))
	require.False(t, c.Patch(model.KnowledgeBase{ID: "9"}))
	require.Equal(t, 2, c.Len())

	c.Reset()
	require.False(t, c.Loaded())
	require.Zero(t, c.Len())
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	page, total := Page(items, 1, 2)
	require.Equal(t, []int{3, 4}, page)
	require.Equal(t, 3, total)

	page, _ = Page(items, 10, 2)
	require.Equal(t, []int{5}, page)

	page, total = Page([]int{}, 0, 2)
	require.Empty(t, page)
	require.Equal(t, 1, total)
}

func TestFilter_CaseInsensitiveNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []model.KnowledgeBase{
		{ID: "1", Title: "Café notes", CreatedAt: model.NewTimestamp(base)},
		{ID: "2", Title: "Recipes", CreatedAt: model.NewTimestamp(base.Add(time.Hour))},
		{ID: "3", Title: "CAFÉ menus", CreatedAt: model.NewTimestamp(base.Add(2 * time.Hour))},
	}
	got := Filter(items, "café", func(kb model.KnowledgeBase) string { return kb.Title },
		func(kb model.KnowledgeBase) time.Time { return kb.CreatedAt.Time })
	require.Equal(t, []model.ID{"3", "1"}, ids(got, kbKey))
}

// =============================================================================
// KNOWLEDGE BASE TESTS
// =============================================================================

func TestKnowledgeBases_ListFailureKeepsCache(t *testing.T) {
	srv, client := newBackend(t)
	srv.SeedKnowledgeBase("Research")
	rec := &notify.Recorder{}
	kbs := NewKnowledgeBases(client, rec)

	require.NoError(t, kbs.List(context.Background()))
	require.Len(t, kbs.Items(), 1)

	srv.Fail(http.MethodGet, "/api/knowledge-bases/", http.StatusInternalServerError, "db down", 1)
	err := kbs.List(context.Background())
	require.ErrorIs(t, err, api.ErrServer)
	require.Len(t, kbs.Items(), 1)
	require.ErrorIs(t, kbs.Err(), api.ErrServer)
	require.True(t, rec.HasError(api.ErrServer))
	require.False(t, kbs.Loading())

	require.NoError(t, kbs.List(context.Background()))
	require.NoError(t, kbs.Err())
}

func TestKnowledgeBases_DuplicateTitleIsFieldError(t *testing.T) {
	srv, client := newBackend(t)
	srv.SeedKnowledgeBase("Notes")
	kbs := NewKnowledgeBases(client, nil)
	require.NoError(t, kbs.List(context.Background()))

	_, err := kbs.Create(context.Background(), "Notes")

	var fe *api.FieldError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "title", fe.Field)
	require.ErrorIs(t, err, api.ErrConflict)
	require.Len(t, kbs.Items(), 1)
}

func TestKnowledgeBases_CreateBlankMakesNoCall(t *testing.T) {
	srv, client := newBackend(t)
	kbs := NewKnowledgeBases(client, nil)

	_, err := kbs.Create(context.Background(), "   ")
	var fe *api.FieldError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "title", fe.Field)
	require.Empty(t, srv.Calls())
}

func TestKnowledgeBases_RenameUnchangedIsNoop(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("Notes")
	kbs := NewKnowledgeBases(client, nil)
	require.NoError(t, kbs.List(context.Background()))
	srv.ResetCalls()

	got, err := kbs.Rename(context.Background(), kb.ID, "Notes")
	require.NoError(t, err)
	require.Equal(t, "Notes", got.Title)
	require.Empty(t, srv.Calls())
}

func TestKnowledgeBases_RenamePatchesInPlace(t *testing.T) {
	srv, client := newBackend(t)
	a := srv.SeedKnowledgeBase("A")
	srv.SeedKnowledgeBase("B")
	kbs := NewKnowledgeBases(client, nil)
	require.NoError(t, kbs.List(context.Background()))
	before := ids(kbs.Items(), kbKey)

	_, err := kbs.Rename(context.Background(), a.ID, "A2")
	require.NoError(t, err)
	require.Equal(t, before, ids(kbs.Items(), kbKey))
	got, _ := kbs.Get(a.ID)
	require.Equal(t, "A2", got.Title)
}

func TestKnowledgeBases_RenameGone(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("Old")
	kbs := NewKnowledgeBases(client, nil)
	require.NoError(t, kbs.List(context.Background()))
	srv.RemoveKnowledgeBase(kb.ID)

	_, err := kbs.Rename(context.Background(), kb.ID, "New")
	var gone *GoneError
	require.ErrorAs(t, err, &gone)
	require.ErrorIs(t, err, api.ErrNotFound)
	require.Equal(t, `Bookshelf "Old" no longer exists`, api.Message(err))
	require.Empty(t, kbs.Items())
}

func TestKnowledgeBases_DeleteCascades(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("Doomed")
	kbs := NewKnowledgeBases(client, nil)
	docs := NewDocuments(client, nil, DefaultLimits())
	kbs.OnDelete(docs.DropKnowledgeBase)
	require.NoError(t, kbs.List(context.Background()))
	docs.Use(kb.ID)

	require.NoError(t, kbs.Delete(context.Background(), kb.ID))
	require.Empty(t, kbs.Items())
	require.True(t, docs.KnowledgeBaseID().IsZero())
}

func TestKnowledgeBases_CacheMatchesFreshList(t *testing.T) {
	srv, client := newBackend(t)
	srv.SeedKnowledgeBase("Seed 1")
	srv.SeedKnowledgeBase("Seed 2")
	ctx := context.Background()
	kbs := NewKnowledgeBases(client, nil)
	require.NoError(t, kbs.List(ctx))

	a, err := kbs.Create(ctx, "A")
	require.NoError(t, err)
	b, err := kbs.Create(ctx, "B")
	require.NoError(t, err)
	_, err = kbs.Create(ctx, "A")
	require.Error(t, err)
	_, err = kbs.Rename(ctx, a.ID, "A renamed")
	require.NoError(t, err)
	require.NoError(t, kbs.Delete(ctx, b.ID))
	_, err = kbs.Create(ctx, "C")
	require.NoError(t, err)

	fresh := srv.KnowledgeBases()
	require.Equal(t, ids(fresh, kbKey), ids(kbs.Items(), kbKey))
	for i, kb := range kbs.Items() {
		assert.Equal(t, fresh[i].Title, kb.Title)
	}
}

// stubKBs holds the first list response until release is closed.
type stubKBs struct {
	KnowledgeBaseAPI
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	items []model.KnowledgeBase
	calls int
}

func (s *stubKBs) ListKnowledgeBases(ctx context.Context) ([]model.KnowledgeBase, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	items := append([]model.KnowledgeBase(nil), s.items...)
	s.mu.Unlock()
	if first {
		s.entered <- struct{}{}
		<-s.release
	}
	return items, nil
}

func (s *stubKBs) CreateKnowledgeBase(ctx context.Context, title string) (model.KnowledgeBase, error) {
	kb := model.KnowledgeBase{ID: model.ID("new-" + title), Title: title}
	s.mu.Lock()
	s.items = append([]model.KnowledgeBase{kb}, s.items...)
	s.mu.Unlock()
	return kb, nil
}

func newStubKBs(items ...model.KnowledgeBase) *stubKBs {
	return &stubKBs{entered: make(chan struct{}, 1), release: make(chan struct{}), items: items}
}

func TestKnowledgeBases_LateListAfterResetDiscarded(t *testing.T) {
	stub := newStubKBs(model.KnowledgeBase{ID: "1", Title: "previous account"})
	rec := &notify.Recorder{}
	kbs := NewKnowledgeBases(stub, rec)

	done := make(chan error)
	go func() { done <- kbs.List(context.Background()) }()
	<-stub.entered

	kbs.Reset()
	close(stub.release)
	require.NoError(t, <-done)

	require.Empty(t, kbs.Items())
	require.False(t, kbs.Loaded())
	require.False(t, kbs.Loading())
	require.Empty(t, rec.Notices())
}

func TestKnowledgeBases_CreateDuringListSurvives(t *testing.T) {
	stub := newStubKBs(model.KnowledgeBase{ID: "1", Title: "Existing"})
	kbs := NewKnowledgeBases(stub, nil)

	done := make(chan error)
	go func() { done <- kbs.List(context.Background()) }()
	<-stub.entered

	_, err := kbs.Create(context.Background(), "Fresh")
	require.NoError(t, err)
	close(stub.release)
	require.NoError(t, <-done)

	require.Equal(t, []model.ID{"new-Fresh", "1"}, ids(kbs.Items(), kbKey))
	require.True(t, kbs.Loaded())
	require.Equal(t, 2, stub.calls, "overlapped list is fetched again")
}

func TestKnowledgeBases_CreateAfterResetDropped(t *testing.T) {
	stub := newStubKBs()
	kbs := NewKnowledgeBases(stub, nil)
	epoch, _ := kbs.mark()

	kbs.Reset()
	kbs.mutate(epoch, func() { kbs.cache.Prepend(model.KnowledgeBase{ID: "9"}) })
	require.Empty(t, kbs.Items())
}

// =============================================================================
// DOCUMENT TESTS
// =============================================================================

func TestDocuments_BulkEnableIsIdempotent(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d1 := srv.SeedDocument(kb.ID, "one.pdf", true)
	d2 := srv.SeedDocument(kb.ID, "two.pdf", false)
	d3 := srv.SeedDocument(kb.ID, "three.pdf", false)

	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))
	srv.ResetCalls()

	all := []model.ID{d1.ID, d2.ID, d3.ID}
	first := docs.BulkSetEnabled(context.Background(), all, true)
	require.Equal(t, 2, first.Succeeded())
	require.Equal(t, 1, first.Skipped())
	require.NoError(t, first.Err())
	require.Equal(t, 2, srv.CallCount(http.MethodPatch, "/api/documents/"))

	second := docs.BulkSetEnabled(context.Background(), all, true)
	require.Equal(t, 3, second.Skipped())
	require.Equal(t, 2, srv.CallCount(http.MethodPatch, "/api/documents/"), "no requests for already-enabled documents")

	for _, doc := range docs.Items() {
		require.True(t, doc.Enabled, doc.Name)
	}
	for _, doc := range srv.Documents(kb.ID) {
		require.True(t, doc.Enabled, doc.Name)
	}
}

func TestDocuments_BulkPartialFailureNoRollback(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d1 := srv.SeedDocument(kb.ID, "one.pdf", true)
	d2 := srv.SeedDocument(kb.ID, "two.pdf", true)
	rec := &notify.Recorder{}
	docs := NewDocuments(client, rec, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))

	srv.Fail(http.MethodPatch, fmt.Sprintf("/api/documents/%s/%s/toggle", kb.ID, d2.ID), http.StatusInternalServerError, "boom", 1)
	report := docs.BulkSetEnabled(context.Background(), []model.ID{d1.ID, d2.ID}, false)

	require.Equal(t, 1, report.Succeeded())
	require.Equal(t, 1, report.Failed())
	require.Equal(t, d2.ID, report.Items[1].ID)
	require.ErrorIs(t, report.Items[1].Err, api.ErrServer)
	require.Contains(t, report.Err().Error(), "two.pdf")
	require.Equal(t, "1 updated, 1 failed", report.Summary())

	got1, _ := docs.Get(d1.ID)
	got2, _ := docs.Get(d2.ID)
	require.False(t, got1.Enabled)
	require.True(t, got2.Enabled)
	require.Len(t, rec.Errors(), 1)
}

func TestDocuments_ToggleFlips(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d := srv.SeedDocument(kb.ID, "one.pdf", true)
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))

	got, err := docs.Toggle(context.Background(), d.ID)
	require.NoError(t, err)
	require.False(t, got.Enabled)
	require.Equal(t, "one.pdf", got.Name)
}

func TestDocuments_RenameDeletedElsewhere(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d := srv.SeedDocument(kb.ID, "draft.docx", true)
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))
	srv.RemoveDocument(kb.ID, d.ID)

	_, err := docs.Rename(context.Background(), d.ID, "final.docx")
	require.ErrorIs(t, err, api.ErrNotFound)
	require.Equal(t, `Document "draft.docx" no longer exists`, api.Message(err))
	_, ok := docs.Get(d.ID)
	require.False(t, ok)
}

func TestDocuments_RenameUnchangedIsNoop(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d := srv.SeedDocument(kb.ID, "a.txt", true)
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))
	srv.ResetCalls()

	_, err := docs.Rename(context.Background(), d.ID, " a.txt ")
	require.NoError(t, err)
	require.Empty(t, srv.Calls())
}

func TestDocuments_BulkDelete(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d1 := srv.SeedDocument(kb.ID, "a.txt", true)
	d2 := srv.SeedDocument(kb.ID, "b.txt", true)
	srv.SeedDocument(kb.ID, "c.txt", true)
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))

	report := docs.BulkDelete(context.Background(), []model.ID{d1.ID, d2.ID})
	require.Equal(t, 2, report.Succeeded())
	require.Len(t, docs.Items(), 1)
	require.Len(t, srv.Documents(kb.ID), 1)
}

func TestDocuments_NoKnowledgeBase(t *testing.T) {
	_, client := newBackend(t)
	docs := NewDocuments(client, nil, DefaultLimits())
	require.ErrorIs(t, docs.List(context.Background()), ErrNoKnowledgeBase)
}

// stubDocs lets a test control when a list response arrives.
type stubDocs struct {
	DocumentAPI
	entered chan model.ID
	release map[model.ID]chan struct{}
	items   map[model.ID][]model.Document
}

func (s *stubDocs) ListDocuments(ctx context.Context, kbID model.ID) ([]model.Document, error) {
	s.entered <- kbID
	if ch := s.release[kbID]; ch != nil {
		<-ch
	}
	return s.items[kbID], nil
}

func TestDocuments_LateListForPreviousKnowledgeBaseDiscarded(t *testing.T) {
	stub := &stubDocs{
		entered: make(chan model.ID, 2),
		release: map[model.ID]chan struct{}{"1": make(chan struct{})},
		items: map[model.ID][]model.Document{
			"1": {{ID: "10", Name: "old.pdf"}},
			"2": {{ID: "20", Name: "new.pdf"}},
		},
	}
	docs := NewDocuments(stub, nil, DefaultLimits())
	docs.Use("1")

	done := make(chan error)
	go func() { done <- docs.List(context.Background()) }()
	require.Equal(t, model.ID("1"), <-stub.entered)

	docs.Use("2")
	require.NoError(t, docs.List(context.Background()))
	close(stub.release["1"])
	require.NoError(t, <-done)

	require.Equal(t, []model.ID{"20"}, ids(docs.Items(), docKey))
}

// =============================================================================
// UPLOAD TESTS
// =============================================================================

func TestUpload_OversizedRejectedLocally(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	srv.ResetCalls()

	big := UploadFile{
		Name: "huge-scan.pdf",
		Size: 25 * 1024 * 1024,
		Open: func() (io.ReadCloser, error) { return nil, errors.New("must not be opened") },
	}
	report := docs.Upload(context.Background(), []UploadFile{big})

	require.Len(t, report.Outcomes, 1)
	require.True(t, report.Outcomes[0].Rejected())
	msg := api.Message(report.Outcomes[0].Err)
	require.Contains(t, msg, "huge-scan.pdf")
	require.Contains(t, msg, "20.0 MB")
	require.Empty(t, srv.Calls())
}

func TestUpload_MixedBatchKeepsInputOrder(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	rec := &notify.Recorder{}
	docs := NewDocuments(client, rec, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))

	report := docs.Upload(context.Background(), []UploadFile{
		memFile("notes.md", "# hi"),
		memFile("virus.exe", "MZ"),
		memFile("data.csv", "a,b\n1,2"),
		memFile("README", "x"),
	})

	require.Len(t, report.Outcomes, 4)
	require.True(t, report.Outcomes[0].Success())
	require.True(t, report.Outcomes[1].Rejected())
	require.Equal(t, "virus.exe: .exe files are not supported", api.Message(report.Outcomes[1].Err))
	require.True(t, report.Outcomes[2].Success())
	require.True(t, report.Outcomes[3].Rejected())
	require.Len(t, report.Succeeded(), 2)
	require.Len(t, report.Failed(), 2)

	require.Equal(t, 2, srv.CallCount(http.MethodPost, "/api/documents/"))
	require.Len(t, docs.Items(), 2)
	require.Equal(t, model.ParsingPending, docs.Items()[0].ParsingStatus)
	require.Equal(t, notify.LevelSuccess, rec.Notices()[0].Level)
}

func TestUpload_BatchLandsNewestFirst(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	srv.SeedDocument(kb.ID, "old.txt", true)
	limits := DefaultLimits()
	limits.Concurrency = 1
	docs := NewDocuments(client, nil, limits)
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))

	report := docs.Upload(context.Background(), []UploadFile{
		memFile("a.txt", "a"), memFile("b.txt", "b"), memFile("c.txt", "c"),
	})
	require.Len(t, report.Succeeded(), 3)

	names := func(items []model.Document) []string {
		out := make([]string, len(items))
		for i, d := range items {
			out[i] = d.Name
		}
		return out
	}
	require.Equal(t, []string{"c.txt", "b.txt", "a.txt", "old.txt"}, names(docs.Items()))
	require.Equal(t, names(docs.Filter("")), names(docs.Items()))
}

func TestUpload_ServerFailureIsPerFile(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	srv.SeedDocument(kb.ID, "dup.txt", true)
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)

	report := docs.Upload(context.Background(), []UploadFile{memFile("dup.txt", "x"), memFile("ok.txt", "y")})
	require.ErrorIs(t, report.Outcomes[0].Err, api.ErrConflict)
	require.True(t, report.Outcomes[1].Success())
}

func TestValidateUpload(t *testing.T) {
	require.NoError(t, ValidateUpload(UploadFile{Name: "Slides.PPTX", Size: 10}, 100))
	require.Error(t, ValidateUpload(UploadFile{Name: "empty.txt", Size: 0}, 100))
	require.Error(t, ValidateUpload(UploadFile{Name: "a.txt", Size: 101}, 100))
	require.NoError(t, ValidateUpload(UploadFile{Name: "a.txt", Size: 100}, 100))
	require.Contains(t, AllowedExtensions(), "md")
}

func TestFileFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0644))

	f, err := FileFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "paper.pdf", f.Name)
	require.EqualValues(t, 8, f.Size)

	_, err = FileFromPath(t.TempDir())
	require.Error(t, err)
}

// =============================================================================
// PARSING AND DOWNLOAD TESTS
// =============================================================================

func TestWatchParsing_StopsAtTerminal(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d := srv.SeedDocument(kb.ID, "paper.pdf", true)
	srv.SetParseSequence(d.ID, model.ParsingPending, model.ParsingProcessing, model.ParsingProcessing, model.ParsingDone)
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))

	var seen []model.ParsingStatus
	err := docs.WatchParsing(context.Background(), d.ID, 5*time.Millisecond, func(doc model.Document) {
		seen = append(seen, doc.ParsingStatus)
	})
	require.NoError(t, err)
	require.Equal(t, []model.ParsingStatus{model.ParsingProcessing, model.ParsingDone}, seen)

	got, _ := docs.Get(d.ID)
	require.Equal(t, model.ParsingDone, got.ParsingStatus)
	require.Equal(t, 3, got.Pages())
	require.Empty(t, docs.ParsingInFlight())
}

func TestWatchParsing_Cancel(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d := srv.SeedDocument(kb.ID, "paper.pdf", true)
	srv.SetParseSequence(d.ID, model.ParsingProcessing)
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := docs.WatchParsing(ctx, d.ID, 5*time.Millisecond, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartParsing(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d := srv.SeedDocument(kb.ID, "paper.pdf", true)
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))

	got, err := docs.StartParsing(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, model.ParsingProcessing, got.ParsingStatus)
	require.Len(t, docs.ParsingInFlight(), 1)
}

func TestDownload_DoesNotOverwrite(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d := srv.SeedDocument(kb.ID, "notes.txt", true)
	srv.SetContent(d.ID, []byte("hello"))
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))
	dir := t.TempDir()

	first, err := docs.Download(context.Background(), d.ID, dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "notes.txt"), first)

	second, err := docs.Download(context.Background(), d.ID, dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "notes (1).txt"), second)

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestParsedVersions_NewestFirstWithContent(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d := srv.SeedDocument(kb.ID, "paper.pdf", true)
	first := srv.SeedParsedVersion(d.ID, "first pass")
	second := srv.SeedParsedVersion(d.ID, "second pass")
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))

	versions, err := docs.ParsedVersions(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, []model.ID{second.ID, first.ID}, ids(versions, func(v model.ParsedVersion) model.ID { return v.ID }))

	content, err := docs.ParsedContent(context.Background(), d.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, "first pass", content)
}

func TestParsedVersions_RemovedDocumentIsGone(t *testing.T) {
	srv, client := newBackend(t)
	kb := srv.SeedKnowledgeBase("KB")
	d := srv.SeedDocument(kb.ID, "paper.pdf", true)
	docs := NewDocuments(client, nil, DefaultLimits())
	docs.Use(kb.ID)
	require.NoError(t, docs.List(context.Background()))

	versions, err := docs.ParsedVersions(context.Background(), d.ID)
	require.NoError(t, err)
	require.Empty(t, versions)

	srv.RemoveDocument(kb.ID, d.ID)
	_, err = docs.ParsedVersions(context.Background(), d.ID)
	var gone *GoneError
	require.ErrorAs(t, err, &gone)
	require.Equal(t, "paper.pdf", gone.Name)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package screens

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/collection"
	"github.com/jeranaias/bookshelf-tui/internal/logging"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
	"github.com/jeranaias/bookshelf-tui/internal/preview"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// =============================================================================
// OPTIONS
// =============================================================================

// DocumentOptions configures the documents screen.
type DocumentOptions struct {
	// PageSize is the number of rows per page; 0 shows everything.
	PageSize int
	// PollInterval is how often parse status is polled.
	PollInterval time.Duration
	// DownloadDir is the default target directory for downloads.
	DownloadDir string
	// Preview bounds the preview pane.
	Preview preview.Options
}

// DefaultDocumentOptions returns the defaults.
func DefaultDocumentOptions() DocumentOptions {
	return DocumentOptions{
		PageSize:     20,
		PollInterval: 3 * time.Second,
		DownloadDir:  ".",
		Preview:      preview.DefaultOptions(),
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

type docsLoadedMsg struct {
	kbID model.ID
	err  error
}

type docRenamedMsg struct {
	doc model.Document
	err error
}

type docsDeletedMsg struct {
	names  []string
	report collection.BulkReport
	err    error
}

type docToggledMsg struct {
	doc model.Document
	err error
}

type docsEnabledMsg struct {
	enabled bool
	report  collection.BulkReport
}

type uploadedMsg struct {
	report  collection.BatchReport
	missing []error
}

type parseStartedMsg struct {
	doc model.Document
	err error
}

type parseWatchedMsg struct {
	id  model.ID
	err error
}

type parseTickMsg struct{ gen int }

type previewMsg struct {
	seq int
	doc preview.Document
	// switching is set for a version change inside an open pane.
	switching bool
	err       error
}

type downloadedMsg struct {
	path string
	err  error
}

// deleteRequest is a pending delete waiting for confirmation.
type deleteRequest struct {
	ids   []model.ID
	label string
}

// =============================================================================
// DOCUMENTS SCREEN
// =============================================================================

// Documents lists the documents of one knowledge base.
type Documents struct {
	ctx      context.Context
	docs     *collection.Documents
	notifier notify.Notifier
	theme    *styles.Theme
	keys     ListKeys
	opts     DocumentOptions

	kb     model.KnowledgeBase
	pager  pager
	filter textinput.Model
	query  string
	marked map[model.ID]bool

	prompt  *prompt
	confirm *deleteRequest
	spinner spinner.Model

	// Parse watchers are scoped to the open knowledge base.
	watchCtx    context.Context
	watchCancel context.CancelFunc
	watching    map[model.ID]bool
	tickGen     int

	uploading int
	pane       *components.PreviewPane
	previewSeq int

	width, height int
}

// NewDocuments creates the screen. Call Open to show a knowledge base.
func NewDocuments(ctx context.Context, docs *collection.Documents, notifier notify.Notifier, theme *styles.Theme, opts DocumentOptions) *Documents {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultDocumentOptions().PollInterval
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}
	f := textinput.New()
	f.Prompt = "/ "
	f.Placeholder = "filter by name"
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	return &Documents{
		ctx:      ctx,
		docs:     docs,
		notifier: notify.Or(notifier),
		theme:    theme,
		keys:     DefaultListKeys(),
		opts:     opts,
		pager:    pager{size: opts.PageSize},
		filter:   f,
		marked:   map[model.ID]bool{},
		spinner:  sp,
		watching: map[model.ID]bool{},
	}
}

// Open shows kb and loads its documents. Watchers of the previous
// knowledge base are cancelled.
func (s *Documents) Open(kb model.KnowledgeBase) tea.Cmd {
	s.Close()
	s.kb = kb
	s.docs.Use(kb.ID)
	s.pager.cursor = 0
	s.filter.Reset()
	s.filter.Blur()
	s.query = ""
	s.marked = map[model.ID]bool{}
	s.prompt = nil
	s.confirm = nil
	s.pane = nil
	s.watchCtx, s.watchCancel = context.WithCancel(s.ctx)
	return tea.Batch(s.load(), s.spinner.Tick)
}

// Close cancels parse watchers.
func (s *Documents) Close() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	s.watching = map[model.ID]bool{}
	s.tickGen++
}

// KnowledgeBase returns the knowledge base shown.
func (s *Documents) KnowledgeBase() model.KnowledgeBase { return s.kb }

// Watching reports whether parse status of id is being polled.
func (s *Documents) Watching(id model.ID) bool { return s.watching[id] }

// Marked returns the marked document IDs in display order.
func (s *Documents) Marked() []model.ID {
	var out []model.ID
	for _, d := range s.Visible() {
		if s.marked[d.ID] {
			out = append(out, d.ID)
		}
	}
	return out
}

// Visible returns the filtered documents, newest first.
func (s *Documents) Visible() []model.Document {
	return s.docs.Filter(s.query)
}

// Current returns the document under the cursor.
func (s *Documents) Current() (model.Document, bool) {
	items := s.Visible()
	if len(items) == 0 {
		return model.Document{}, false
	}
	s.pager.clamp(len(items))
	return items[s.pager.cursor], true
}

func (s *Documents) Init() tea.Cmd {
	if s.kb.ID.IsZero() {
		return nil
	}
	return s.load()
}

func (s *Documents) SetSize(width, height int) {
	s.width, s.height = width, height
	s.filter.Width = width - 6
	if s.pane != nil {
		s.pane.SetSize(width, height-4)
	}
}

func (s *Documents) Focused() bool {
	return s.prompt != nil || s.filter.Focused()
}

// =============================================================================
// COMMANDS
// =============================================================================

func (s *Documents) load() tea.Cmd {
	ctx, docs, kbID := s.ctx, s.docs, s.kb.ID
	return func() tea.Msg {
		return docsLoadedMsg{kbID: kbID, err: docs.List(ctx)}
	}
}

// targets returns the marked documents, or the current one when none are.
func (s *Documents) targets() []model.ID {
	if ids := s.Marked(); len(ids) > 0 {
		return ids
	}
	if d, ok := s.Current(); ok {
		return []model.ID{d.ID}
	}
	return nil
}

func (s *Documents) toggle(id model.ID) tea.Cmd {
	ctx, docs := s.ctx, s.docs
	return func() tea.Msg {
		doc, err := docs.Toggle(ctx, id)
		return docToggledMsg{doc: doc, err: err}
	}
}

func (s *Documents) setEnabled(ids []model.ID, enabled bool) tea.Cmd {
	ctx, docs := s.ctx, s.docs
	return func() tea.Msg {
		return docsEnabledMsg{enabled: enabled, report: docs.BulkSetEnabled(ctx, ids, enabled)}
	}
}

func (s *Documents) remove(req deleteRequest) tea.Cmd {
	ctx, docs := s.ctx, s.docs
	return func() tea.Msg {
		if len(req.ids) == 1 {
			return docsDeletedMsg{names: []string{req.label}, err: docs.Delete(ctx, req.ids[0])}
		}
		return docsDeletedMsg{report: docs.BulkDelete(ctx, req.ids)}
	}
}

func (s *Documents) startParsing(id model.ID) tea.Cmd {
	ctx, docs := s.ctx, s.docs
	return func() tea.Msg {
		doc, err := docs.StartParsing(ctx, id)
		return parseStartedMsg{doc: doc, err: err}
	}
}

// watch polls id until its parse status is terminal. The first watcher
// also starts the refresh tick.
func (s *Documents) watch(id model.ID) tea.Cmd {
	if s.watching[id] || s.watchCtx == nil {
		return nil
	}
	first := len(s.watching) == 0
	s.watching[id] = true

	ctx, docs, interval := s.watchCtx, s.docs, s.opts.PollInterval
	cmd := func() tea.Msg {
		err := docs.WatchParsing(ctx, id, interval, func(doc model.Document) {
			logging.L().Debug("parse status changed", "doc", doc.ID, "status", doc.ParsingStatus)
		})
		return parseWatchedMsg{id: id, err: err}
	}
	if first {
		s.tickGen++
		return tea.Batch(cmd, s.tick())
	}
	return cmd
}

func (s *Documents) tick() tea.Cmd {
	gen := s.tickGen
	return tea.Tick(s.opts.PollInterval, func(time.Time) tea.Msg {
		return parseTickMsg{gen: gen}
	})
}

// openPreview shows the newest parsed version of doc, or the original file
// rendered locally when it has never been parsed.
func (s *Documents) openPreview(doc model.Document) tea.Cmd {
	s.previewSeq++
	ctx, docs, opts, seq := s.ctx, s.docs, s.opts.Preview, s.previewSeq
	return func() tea.Msg {
		d, err := preview.Load(ctx, docs, doc, opts)
		return previewMsg{seq: seq, doc: d, err: err}
	}
}

// switchVersion loads another parsed version into the open pane.
func (s *Documents) switchVersion(index int) tea.Cmd {
	cur := s.pane.Document()
	doc, ok := s.docs.Get(cur.ID)
	if !ok {
		doc = model.Document{ID: cur.ID, Name: cur.Name}
	}
	s.previewSeq++
	s.pane.SetSwitching(true)
	ctx, docs, opts, seq := s.ctx, s.docs, s.opts.Preview, s.previewSeq
	versions := cur.Versions
	return func() tea.Msg {
		d, err := preview.LoadVersion(ctx, docs, doc, versions, index, opts)
		return previewMsg{seq: seq, doc: d, switching: true, err: err}
	}
}

func (s *Documents) download(id model.ID, dir string) tea.Cmd {
	ctx, docs := s.ctx, s.docs
	return func() tea.Msg {
		path, err := docs.Download(ctx, id, dir)
		return downloadedMsg{path: path, err: err}
	}
}

func (s *Documents) upload(raw string) tea.Cmd {
	paths := SplitPaths(raw)
	s.uploading = len(paths)
	ctx, docs := s.ctx, s.docs
	return func() tea.Msg {
		var files []collection.UploadFile
		var missing []error
		for _, p := range paths {
			f, err := collection.FileFromPath(p)
			if err != nil {
				missing = append(missing, err)
				continue
			}
			files = append(files, f)
		}
		var report collection.BatchReport
		if len(files) > 0 {
			report = docs.Upload(ctx, files)
		}
		return uploadedMsg{report: report, missing: missing}
	}
}

// SplitPaths splits user input into file paths. Commas separate paths when
// present so names with spaces survive; otherwise whitespace does. A
// leading ~ expands to the home directory.
func SplitPaths(raw string) []string {
	var parts []string
	if strings.Contains(raw, ",") {
		parts = strings.Split(raw, ",")
	} else {
		parts = strings.Fields(raw)
	}
	home, _ := os.UserHomeDir()
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p == "" {
			continue
		}
		if home != "" && (p == "~" || strings.HasPrefix(p, "~/")) {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
		out = append(out, p)
	}
	return out
}

// =============================================================================
// UPDATE
// =============================================================================

func (s *Documents) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !s.docs.Loading() && s.uploading == 0 {
			return nil
		}
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return cmd

	case docsLoadedMsg:
		if msg.kbID != s.kb.ID || msg.err != nil {
			return nil
		}
		s.pager.clamp(len(s.Visible()))
		s.pruneMarks()
		var cmds []tea.Cmd
		for _, d := range s.docs.ParsingInFlight() {
			if d.ParsingStatus == model.ParsingProcessing {
				cmds = append(cmds, s.watch(d.ID))
			}
		}
		return tea.Batch(cmds...)

	case parseTickMsg:
		if msg.gen != s.tickGen || len(s.watching) == 0 {
			return nil
		}
		return s.tick()

	case parseStartedMsg:
		if msg.err != nil {
			s.notifier.Notify(notify.Error("Could not start parsing", msg.err))
			return nil
		}
		return s.watch(msg.doc.ID)

	case parseWatchedMsg:
		if !s.watching[msg.id] {
			return nil
		}
		delete(s.watching, msg.id)
		if msg.err != nil {
			if !errors.Is(msg.err, context.Canceled) {
				s.notifier.Notify(notify.Error("Lost track of parsing", msg.err))
			}
			return nil
		}
		if doc, ok := s.docs.Get(msg.id); ok {
			switch doc.ParsingStatus {
			case model.ParsingDone:
				s.notifier.Notify(notify.Success(fmt.Sprintf("Parsed %s", doc.Name)))
			case model.ParsingFailed:
				s.notifier.Notify(notify.Warning("Parsing failed", doc.Name+" could not be parsed. Press p to retry."))
			}
		}
		return nil

	case docRenamedMsg:
		if s.prompt == nil {
			return nil
		}
		var gone *collection.GoneError
		if errors.As(msg.err, &gone) {
			s.prompt = nil
			s.notifier.Notify(notify.Error("Rename failed", msg.err))
			s.pager.clamp(len(s.Visible()))
			return nil
		}
		if msg.err != nil {
			s.prompt.fail(msg.err)
			return nil
		}
		s.prompt = nil
		return nil

	case docToggledMsg:
		if msg.err != nil {
			s.notifier.Notify(notify.Error("Could not update document", msg.err))
			s.pager.clamp(len(s.Visible()))
		}
		return nil

	case docsEnabledMsg:
		if msg.report.Failed() == 0 {
			verb := "Disabled"
			if msg.enabled {
				verb = "Enabled"
			}
			s.notifier.Notify(notify.Success(fmt.Sprintf("%s: %s", verb, msg.report.Summary())))
			s.marked = map[model.ID]bool{}
		}
		s.pager.clamp(len(s.Visible()))
		return nil

	case docsDeletedMsg:
		switch {
		case msg.err != nil:
			s.notifier.Notify(notify.Error("Could not delete document", msg.err))
		case len(msg.names) == 1:
			s.notifier.Notify(notify.Success(fmt.Sprintf("Deleted %s", msg.names[0])))
		case msg.report.Failed() == 0:
			s.notifier.Notify(notify.Success(fmt.Sprintf("Deleted %d documents", msg.report.Succeeded())))
		}
		s.pruneMarks()
		s.pager.clamp(len(s.Visible()))
		return nil

	case uploadedMsg:
		s.uploading = 0
		for _, err := range msg.missing {
			s.notifier.Notify(notify.Error("Cannot upload", err))
		}
		for _, o := range msg.report.Failed() {
			if o.Rejected() {
				s.notifier.Notify(notify.Warning("Skipped "+o.Name, api.Message(o.Err)))
			} else {
				s.notifier.Notify(notify.Error("Upload failed", o.Err))
			}
		}
		s.pager.cursor = 0
		return nil

	case previewMsg:
		if msg.seq != s.previewSeq || s.pane == nil {
			return nil
		}
		if msg.err != nil {
			if msg.switching {
				s.pane.SetSwitching(false)
				s.notifier.Notify(notify.Error("Could not load version", msg.err))
				return nil
			}
			s.pane = nil
			s.notifier.Notify(notify.Error("Could not open preview", msg.err))
			return nil
		}
		s.pane.SetDocument(msg.doc)
		return nil

	case downloadedMsg:
		if s.prompt == nil || s.prompt.kind != promptDownload {
			if msg.err != nil {
				s.notifier.Notify(notify.Error("Download failed", msg.err))
			}
			return nil
		}
		if msg.err != nil {
			s.prompt.fail(msg.err)
			return nil
		}
		s.prompt = nil
		s.notifier.Notify(notify.Success("Saved to " + msg.path))
		return nil

	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	if s.pane != nil {
		return s.pane.Update(msg)
	}
	return nil
}

func (s *Documents) pruneMarks() {
	for id := range s.marked {
		if _, ok := s.docs.Get(id); !ok {
			delete(s.marked, id)
		}
	}
}

func (s *Documents) handleKey(msg tea.KeyMsg) tea.Cmd {
	if s.pane != nil {
		switch {
		case key.Matches(msg, s.keys.Back) || msg.String() == "q":
			s.pane = nil
			return nil
		case key.Matches(msg, s.keys.Newer):
			if i := s.pane.Step(-1); i >= 0 {
				return s.switchVersion(i)
			}
			return nil
		case key.Matches(msg, s.keys.Older):
			if i := s.pane.Step(1); i >= 0 {
				return s.switchVersion(i)
			}
			return nil
		}
		return s.pane.Update(msg)
	}

	if s.prompt != nil {
		switch {
		case key.Matches(msg, s.keys.Back):
			if !s.prompt.busy {
				s.prompt = nil
			}
			return nil
		case msg.Type == tea.KeyEnter:
			return s.submitPrompt()
		}
		return s.prompt.update(msg)
	}

	if s.filter.Focused() {
		switch msg.Type {
		case tea.KeyEsc:
			s.filter.Reset()
			s.filter.Blur()
			s.query = ""
			return nil
		case tea.KeyEnter:
			s.filter.Blur()
			return nil
		}
		var cmd tea.Cmd
		s.filter, cmd = s.filter.Update(msg)
		s.query = s.filter.Value()
		s.pager.cursor = 0
		return cmd
	}

	if s.confirm != nil {
		req := *s.confirm
		s.confirm = nil
		if key.Matches(msg, s.keys.Confirm) {
			return s.remove(req)
		}
		return nil
	}

	n := len(s.Visible())
	switch {
	case key.Matches(msg, s.keys.Back):
		if s.query != "" {
			s.filter.Reset()
			s.query = ""
			return nil
		}
		if len(s.marked) > 0 {
			s.marked = map[model.ID]bool{}
			return nil
		}
		s.Close()
		return back
	case key.Matches(msg, s.keys.Up):
		s.pager.move(-1, n)
	case key.Matches(msg, s.keys.Down):
		s.pager.move(1, n)
	case key.Matches(msg, s.keys.PageUp):
		s.pager.movePage(-1, n)
	case key.Matches(msg, s.keys.PageDown):
		s.pager.movePage(1, n)
	case key.Matches(msg, s.keys.Filter):
		s.filter.Focus()
		return textinput.Blink
	case key.Matches(msg, s.keys.Reload):
		return tea.Batch(s.load(), s.spinner.Tick)
	case key.Matches(msg, s.keys.Mark):
		if d, ok := s.Current(); ok {
			if s.marked[d.ID] {
				delete(s.marked, d.ID)
			} else {
				s.marked[d.ID] = true
			}
			s.pager.move(1, n)
		}
	case key.Matches(msg, s.keys.MarkAll):
		if len(s.marked) == n {
			s.marked = map[model.ID]bool{}
		} else {
			for _, d := range s.Visible() {
				s.marked[d.ID] = true
			}
		}
	case key.Matches(msg, s.keys.Toggle):
		if d, ok := s.Current(); ok {
			return s.toggle(d.ID)
		}
	case key.Matches(msg, s.keys.Enable):
		if ids := s.targets(); len(ids) > 0 {
			return s.setEnabled(ids, true)
		}
	case key.Matches(msg, s.keys.Disable):
		if ids := s.targets(); len(ids) > 0 {
			return s.setEnabled(ids, false)
		}
	case key.Matches(msg, s.keys.Upload):
		s.prompt = newPrompt(promptUpload, "Upload files (separate paths with spaces, or commas if names contain spaces)", "", "")
		return textinput.Blink
	case key.Matches(msg, s.keys.Rename):
		if d, ok := s.Current(); ok {
			s.prompt = newPrompt(promptRename, "Rename document", d.Name, d.ID)
			return textinput.Blink
		}
	case key.Matches(msg, s.keys.Download):
		if d, ok := s.Current(); ok {
			s.prompt = newPrompt(promptDownload, "Save "+d.Name+" to directory", s.opts.DownloadDir, d.ID)
			return textinput.Blink
		}
	case key.Matches(msg, s.keys.Delete):
		ids := s.targets()
		switch len(ids) {
		case 0:
		case 1:
			d, _ := s.docs.Get(ids[0])
			s.confirm = &deleteRequest{ids: ids, label: d.Name}
		default:
			s.confirm = &deleteRequest{ids: ids, label: fmt.Sprintf("%d documents", len(ids))}
		}
	case key.Matches(msg, s.keys.Parse):
		if d, ok := s.Current(); ok {
			if d.IsParsing() && s.watching[d.ID] {
				return nil
			}
			return s.startParsing(d.ID)
		}
	case key.Matches(msg, s.keys.Preview):
		if d, ok := s.Current(); ok {
			s.pane = components.NewPreviewPane(s.width, s.height-4)
			return s.openPreview(d)
		}
	}
	return nil
}

func (s *Documents) submitPrompt() tea.Cmd {
	p := s.prompt
	if p.busy {
		return nil
	}
	value := p.value()
	switch p.kind {
	case promptUpload:
		if value == "" {
			p.err = "Enter at least one file path"
			return nil
		}
		s.prompt = nil
		return tea.Batch(s.upload(value), s.spinner.Tick)
	case promptDownload:
		if value == "" {
			p.err = "Enter a directory"
			return nil
		}
		p.busy = true
		return s.download(p.target, value)
	case promptRename:
		if value == "" {
			p.err = "Name is required"
			return nil
		}
		p.busy = true
		ctx, docs, id := s.ctx, s.docs, p.target
		return func() tea.Msg {
			doc, err := docs.Rename(ctx, id, value)
			return docRenamedMsg{doc: doc, err: err}
		}
	}
	return nil
}

// =============================================================================
// VIEW
// =============================================================================

func (s *Documents) View() string {
	t := s.theme
	if s.pane != nil {
		return s.pane.View()
	}

	var b strings.Builder
	b.WriteString(t.Title.Render(s.kb.Title))
	b.WriteString(t.Muted.Render("  documents"))
	b.WriteString("\n")

	if s.filter.Focused() || s.query != "" {
		b.WriteString(s.filter.View())
		b.WriteString("\n")
	}

	items := s.Visible()
	switch {
	case s.docs.Loading() && !s.docs.Loaded():
		b.WriteString(s.spinner.View() + " Loading documents...")
		b.WriteString("\n")
	case s.docs.Err() != nil && !s.docs.Loaded():
		b.WriteString(t.Error.Render(api.Message(s.docs.Err())))
		b.WriteString("\n")
		b.WriteString(t.Help.Render("R to retry"))
		b.WriteString("\n")
	default:
		s.pager.clamp(len(items))
		page, pages := collection.Page(items, s.pager.page(), s.pager.size)
		table := components.Table{
			Columns: []components.Column{
				{Title: "Name"},
				{Title: "Size", Width: 9, Right: true},
				{Title: "Parsing", Width: 14},
				{Title: "Chat", Width: 10},
				{Title: "Uploaded", Width: 16},
			},
			Cursor: s.pager.rowCursor(),
			Width:  s.width,
			Empty:  "No documents yet. Press u to upload.",
		}
		if s.query != "" {
			table.Empty = fmt.Sprintf("Nothing matches %q", s.query)
		}
		for _, d := range page {
			status := components.ParsingBadge(d.ParsingStatus)
			if s.watching[d.ID] {
				status = s.spinner.View() + " " + status
			}
			table.Rows = append(table.Rows, components.Row{
				Cells: []string{
					d.Name,
					util.FormatBytes(d.Size),
					status,
					components.EnabledBadge(d.Enabled),
					components.FormatTime(d.UploadedAt.Time),
				},
				Marked: s.marked[d.ID],
			})
		}
		b.WriteString(table.View(t))
		b.WriteString("\n")

		var status []string
		if pages > 1 {
			status = append(status, fmt.Sprintf("Page %d of %d", s.pager.page()+1, pages))
		}
		if n := len(s.marked); n > 0 {
			status = append(status, fmt.Sprintf("%d marked", n))
		}
		if n := len(s.watching); n > 0 {
			status = append(status, fmt.Sprintf("parsing %d", n))
		}
		if s.uploading > 0 {
			status = append(status, fmt.Sprintf("%s uploading %d files", s.spinner.View(), s.uploading))
		}
		if len(status) > 0 {
			b.WriteString(t.Muted.Render(strings.Join(status, "  ·  ")))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case s.prompt != nil:
		b.WriteString(s.prompt.view(t))
	case s.confirm != nil:
		b.WriteString(t.Warning.Render(fmt.Sprintf("Delete %s? y/n", s.confirm.label)))
	default:
		b.WriteString(components.HelpLine(t, pairs(
			s.keys.Upload, s.keys.Mark, s.keys.Toggle, s.keys.Enable, s.keys.Disable,
			s.keys.Parse, s.keys.Preview, s.keys.Download, s.keys.Rename, s.keys.Delete,
			s.keys.Filter, s.keys.Back,
		)...))
	}
	return b.String()
}

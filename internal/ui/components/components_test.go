// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/association"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/notify"
	"github.com/jeranaias/bookshelf-tui/internal/preview"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
	"github.com/jeranaias/bookshelf-tui/internal/usage"
)

// =============================================================================
// TOAST TESTS
// =============================================================================

func TestToastManager_NotifyAndExpire(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewToastManager()
	m.now = func() time.Time { return now }

	m.Notify(notify.Error("Could not load chats", errors.New("boom")))
	m.Notify(notify.Success("Uploaded 2 files"))

	toasts := m.Toasts()
	require.Len(t, toasts, 2)
	require.Equal(t, ToastKindSuccess, toasts[0].Kind, "newest first")
	require.Equal(t, "Could not load chats: boom", toasts[1].Text())

	now = now.Add(DefaultToastDuration)
	remaining := m.TickToasts()
	require.Len(t, remaining, 1, "success expires before error")
	require.Equal(t, ToastKindError, remaining[0].Kind)

	now = now.Add(ErrorToastDuration)
	require.Empty(t, m.TickToasts())
}

func TestToastManager_DedupesAndCaps(t *testing.T) {
	m := NewToastManager()
	for i := 0; i < 3; i++ {
		m.AddError("same")
	}
	require.Len(t, m.Toasts(), 1)

	for i := 0; i < 10; i++ {
		m.AddError(strings.Repeat("x", i+1))
	}
	require.Len(t, m.Toasts(), 5)

	m.DismissNewest()
	require.Len(t, m.Toasts(), 4)
	m.Clear()
	require.Empty(t, m.Toasts())
}

func TestRenderToast_ContainsIndicator(t *testing.T) {
	out := RenderToast(Toast{Message: "Message not sent", Kind: ToastKindError}, 80)
	require.Contains(t, out, styles.StatusIndicators.Error)
	require.Contains(t, out, "Message not sent")
}

func TestWrapText(t *testing.T) {
	require.Equal(t, "one two\nthree", WrapText("one two three", 8))
	require.Equal(t, "短い 文章", WrapText("短い 文章", 10))
	require.Equal(t, "", WrapText("", 10))
}

// =============================================================================
// MARKDOWN TESTS
// =============================================================================

func TestMarkdown_RendersAndCaches(t *testing.T) {
	md := NewMarkdown(40).WithStyle("dark")
	out := md.Render("# Title\n\nSome **bold** text")
	require.Contains(t, out, "Title")
	require.Contains(t, out, "bold")
	require.NotContains(t, out, "**")
	require.Equal(t, out, md.Render("# Title\n\nSome **bold** text"))
}

func TestMarkdown_BadStyleFallsBackToRaw(t *testing.T) {
	md := NewMarkdown(40).WithStyle("no-such-style")
	require.Equal(t, "plain *text*", md.Render("plain *text*"))
}

// =============================================================================
// TABLE TESTS
// =============================================================================

func TestTable_AlignsWideRunes(t *testing.T) {
	theme := styles.NewTheme(styles.ModeDark)
	table := &Table{
		Columns: []Column{{Title: "Name", Width: 10}, {Title: "Size", Width: 6, Right: true}},
		Rows: []Row{
			{Cells: []string{"論文.pdf", "1 KB"}},
			{Cells: []string{"report.pdf", "20 MB"}, Marked: true},
		},
		Width: 40,
	}
	lines := strings.Split(table.View(theme), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, lipgloss.Width(lines[1]), lipgloss.Width(lines[2]))
	require.Contains(t, lines[2], "✓")
}

func TestTable_CursorClampedAndEmpty(t *testing.T) {
	theme := styles.NewTheme(styles.ModeDark)
	table := &Table{Columns: []Column{{Title: "Name"}}, Width: 30, Empty: "No documents"}
	table.MoveCursor(5)
	require.Equal(t, 0, table.Cursor)
	require.Contains(t, table.View(theme), "No documents")

	table.Rows = []Row{{Cells: []string{"a"}}, {Cells: []string{"b"}}}
	table.MoveCursor(5)
	require.Equal(t, 1, table.Cursor)
	table.MoveCursor(-9)
	require.Equal(t, 0, table.Cursor)
}

func TestFitCell(t *testing.T) {
	require.Equal(t, "abc  ", fitCell("abc", 5, false))
	require.Equal(t, "  abc", fitCell("abc", 5, true))
	require.Equal(t, 5, lipgloss.Width(fitCell("abcdefghij", 5, false)))
	require.Equal(t, "plain", stripANSI("\x1b[31mplain\x1b[0m"))
}

// =============================================================================
// BADGE TESTS
// =============================================================================

func TestAssociationLine_DistinctMessages(t *testing.T) {
	kb := &model.KnowledgeBase{ID: "1", Title: "Thesis"}
	lines := map[string]bool{}
	for _, a := range []association.Association{
		{KnowledgeBase: kb, Status: association.StatusOK, Enabled: []model.Document{{Name: "a"}}},
		{KnowledgeBase: kb, Status: association.StatusAllDisabled},
		{KnowledgeBase: kb, Status: association.StatusDeleted},
		{KnowledgeBaseID: "9", Status: association.StatusMissing},
		{KnowledgeBase: kb, Status: association.StatusUnavailable},
	} {
		line := AssociationLine(a)
		require.Contains(t, line, a.Message())
		lines[line] = true
	}
	require.Len(t, lines, 5)
}

func TestParsingBadge(t *testing.T) {
	require.Contains(t, ParsingBadge(model.ParsingDone), "parsed")
	require.Contains(t, ParsingBadge(model.ParsingFailed), "failed")
	require.Contains(t, ParsingBadge(model.ParsingProcessing), "parsing")
	require.Contains(t, ParsingBadge(model.ParsingPending), "pending")
	require.Equal(t, "-", FormatTime(time.Time{}))
}

// =============================================================================
// DASHBOARD AND PREVIEW TESTS
// =============================================================================

func TestUsageDashboard(t *testing.T) {
	d := NewUsageDashboard()
	require.Equal(t, "No usage loaded", d.View())

	day := func(n, tokens int) model.UsagePoint {
		return model.UsagePoint{Timestamp: model.NewTimestamp(time.Date(2024, 2, n, 12, 0, 0, 0, time.UTC)), TotalTokens: tokens}
	}
	report, err := usage.Aggregate("2024-02", []model.UsagePoint{day(1, 1000), day(2, 250)}, []model.UsagePoint{day(2, 250)})
	require.NoError(t, err)
	d.SetReport(report)
	d.SetSize(80)

	out := d.View()
	require.Contains(t, out, "Token usage 2024-02")
	require.Contains(t, out, "Daily breakdown")
	require.Contains(t, out, "Thu Feb 1")

	d.ToggleView()
	require.Contains(t, d.View(), "Busiest days")

	empty, _ := usage.Aggregate("2024-03", nil, nil)
	d.SetReport(empty)
	require.Contains(t, d.View(), "No usage recorded")
}

func TestPreviewPane(t *testing.T) {
	p := NewPreviewPane(40, 5)
	require.False(t, p.Loaded())
	pv, err := preview.FromBytes("notes.txt", "text/plain", []byte("hello preview"), preview.Options{})
	require.NoError(t, err)
	p.SetPreview(pv)
	out := p.View()
	require.Contains(t, out, "notes.txt")
	require.Contains(t, out, "hello preview")
}

func TestPreviewPane_VersionSelector(t *testing.T) {
	p := NewPreviewPane(60, 5)
	require.Equal(t, -1, p.Step(1))

	versions := []model.ParsedVersion{{ID: "2"}, {ID: "1"}}
	p.SetDocument(preview.Document{
		Name:     "paper.pdf",
		Versions: versions,
		Preview:  preview.FromParsed("paper.pdf", "parsed text", preview.Options{}),
	})
	out := p.View()
	require.Contains(t, out, "Parsed version 1 of 2")
	require.Contains(t, out, "parsed text")
	require.Contains(t, out, "] older")

	require.Equal(t, 1, p.Step(1))
	require.Equal(t, -1, p.Step(-1))

	p.SetSwitching(true)
	require.Equal(t, -1, p.Step(1))
	require.Contains(t, p.View(), "loading...")
}

func TestErrorView(t *testing.T) {
	theme := styles.NewTheme(styles.ModeDark)
	out := ErrorView{Detail: "nil pointer"}.View(theme)
	require.Contains(t, out, "Something went wrong")
	require.Contains(t, out, "r reload")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
)

// =============================================================================
// TABLE
// =============================================================================

// Column is one table column. Width 0 means the column takes the space the
// fixed columns leave over.
type Column struct {
	Title string
	Width int
	Right bool
}

// Row is one table row. Cells may already carry ANSI styling.
type Row struct {
	Cells  []string
	Marked bool
}

// Table renders rows with a cursor. Cell widths are measured in display
// cells so CJK names and emoji keep columns aligned.
type Table struct {
	Columns []Column
	Rows    []Row
	Cursor  int
	Width   int
	Empty   string
}

// MoveCursor moves the cursor by delta, clamped to the rows.
func (t *Table) MoveCursor(delta int) {
	t.Cursor += delta
	t.clamp()
}

func (t *Table) clamp() {
	if t.Cursor >= len(t.Rows) {
		t.Cursor = len(t.Rows) - 1
	}
	if t.Cursor < 0 {
		t.Cursor = 0
	}
}

// widths resolves flexible columns against the table width.
func (t *Table) widths() []int {
	out := make([]int, len(t.Columns))
	fixed, flex := 0, 0
	for i, c := range t.Columns {
		out[i] = c.Width
		fixed += c.Width
		if c.Width == 0 {
			flex++
		}
	}
	// Two marker cells plus one space between columns.
	fixed += 2 + len(t.Columns) - 1
	if flex > 0 {
		share := (t.Width - fixed) / flex
		if share < 8 {
			share = 8
		}
		for i := range out {
			if out[i] == 0 {
				out[i] = share
			}
		}
	}
	return out
}

// View renders the header and rows.
func (t *Table) View(theme *styles.Theme) string {
	t.clamp()
	widths := t.widths()

	var b strings.Builder
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = fitCell(c.Title, widths[i], c.Right)
	}
	b.WriteString("  ")
	b.WriteString(theme.Column.Render(strings.Join(header, " ")))
	b.WriteString("\n")

	if len(t.Rows) == 0 {
		empty := t.Empty
		if empty == "" {
			empty = "Nothing here yet"
		}
		b.WriteString(theme.Muted.Render("  " + empty))
		return b.String()
	}

	for r, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cell := ""
			if i < len(row.Cells) {
				cell = row.Cells[i]
			}
			cells[i] = fitCell(cell, widths[i], c.Right)
		}
		marker := "  "
		if row.Marked {
			marker = theme.Marked.Render("✓ ")
		}
		line := strings.Join(cells, " ")
		if r == t.Cursor {
			line = theme.SelectedRow.Render(line)
		} else {
			line = theme.Row.Render(line)
		}
		b.WriteString(marker + line)
		if r < len(t.Rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// fitCell pads or truncates s to exactly width display cells. Styled cells
// are measured without their escape sequences.
func fitCell(s string, width int, right bool) string {
	if width <= 0 {
		return ""
	}
	w := lipgloss.Width(s)
	if w > width {
		s = runewidth.Truncate(stripANSI(s), width, "…")
		w = runewidth.StringWidth(s)
	}
	pad := strings.Repeat(" ", width-w)
	if right {
		return pad + s
	}
	return s + pad
}

// stripANSI removes CSI escape sequences.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/bookshelf-tui/internal/usage"
	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// UsageDay is one day of the JSON usage report.
type UsageDay struct {
	Date           string `json:"date"`
	ChatTokens     int    `json:"chat_tokens"`
	DocumentTokens int    `json:"document_tokens"`
}

// UsageSummary is the JSON usage report.
type UsageSummary struct {
	Month          string     `json:"month"`
	ChatTokens     int        `json:"chat_tokens"`
	DocumentTokens int        `json:"document_tokens"`
	Total          int        `json:"total"`
	Days           []UsageDay `json:"days"`
}

// HandleUsage runs "bookshelf usage [--month YYYY-MM] [--top N]".
func HandleUsage(env *Env) error {
	p := NewArgParser(env.Args.Raw)
	month := p.FlagOrDefault("month", p.Positional(0))
	if month == "" {
		month = usage.CurrentMonth(time.Now())
	}
	if _, err := usage.ParseMonth(month); err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}
	report, err := env.App.Usage.Month(env.Ctx, month)
	if err != nil {
		return err
	}

	summary := UsageSummary{
		Month:          report.Month,
		ChatTokens:     report.ChatTokens,
		DocumentTokens: report.DocumentTokens,
		Total:          report.Total(),
		Days:           make([]UsageDay, len(report.Days)),
	}
	for i, d := range report.Days {
		summary.Days[i] = UsageDay{Date: d.Date.Format("2006-01-02"), ChatTokens: d.ChatTokens, DocumentTokens: d.DocumentTokens}
	}

	return env.emit("usage", summary, func(w io.Writer) {
		writeUsage(w, report, p.FlagIntOrDefault("top", 5))
	})
}

func writeUsage(w io.Writer, r usage.Report, top int) {
	fmt.Fprintln(w, TitleStyle.Render("Token usage "+r.Month))
	if r.Empty() {
		fmt.Fprintln(w, DimStyle.Render("No usage recorded this month."))
		return
	}
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Chat:     "), util.FormatCount(r.ChatTokens))
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Documents:"), util.FormatCount(r.DocumentTokens))
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Total:    "), util.FormatCount(r.Total()))

	peak := r.Peak()
	fmt.Fprintf(w, "%s %s (%s)\n", LabelStyle.Render("Peak day: "), peak.Date.Format("Jan 2"), util.FormatCount(peak.Total()))

	days := r.Top(top)
	if len(days) == 0 {
		return
	}
	fmt.Fprintln(w)
	t := newTable("DAY", "CHAT", "DOCUMENTS", "TOTAL").alignRight(1).alignRight(2).alignRight(3)
	for _, d := range days {
		t.add(d.Date.Format("Mon Jan 2"), util.FormatCount(d.ChatTokens), util.FormatCount(d.DocumentTokens), util.FormatCount(d.Total()))
	}
	fmt.Fprint(w, t.render())
}

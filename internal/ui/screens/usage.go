// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package screens

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/ui/components"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
	"github.com/jeranaias/bookshelf-tui/internal/usage"
)

// =============================================================================
// USAGE SCREEN
// =============================================================================

type usageLoadedMsg struct {
	month  string
	report usage.Report
	err    error
}

// Usage shows token usage for one month at a time.
type Usage struct {
	ctx       context.Context
	service   *usage.Service
	theme     *styles.Theme
	keys      ListKeys
	dashboard *components.UsageDashboard
	spinner   spinner.Model

	month   string
	loading bool
	err     error
	now     func() time.Time

	width, height int
}

// NewUsage creates the screen showing the current month.
func NewUsage(ctx context.Context, service *usage.Service, theme *styles.Theme) *Usage {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	u := &Usage{
		ctx:       ctx,
		service:   service,
		theme:     theme,
		keys:      DefaultListKeys(),
		dashboard: components.NewUsageDashboard(),
		spinner:   sp,
		now:       time.Now,
	}
	u.month = usage.CurrentMonth(u.now())
	return u
}

// Month returns the month shown, "YYYY-MM".
func (u *Usage) Month() string { return u.month }

// SetMonth switches to month and reloads.
func (u *Usage) SetMonth(month string) tea.Cmd {
	u.month = month
	return u.load()
}

func (u *Usage) Init() tea.Cmd { return u.load() }

func (u *Usage) SetSize(width, height int) {
	u.width, u.height = width, height
	u.dashboard.SetSize(width)
}

func (u *Usage) Focused() bool { return false }

func (u *Usage) load() tea.Cmd {
	u.loading = true
	u.err = nil
	ctx, svc, month := u.ctx, u.service, u.month
	fetch := func() tea.Msg {
		report, err := svc.Month(ctx, month)
		return usageLoadedMsg{month: month, report: report, err: err}
	}
	return tea.Batch(fetch, u.spinner.Tick)
}

func (u *Usage) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !u.loading {
			return nil
		}
		var cmd tea.Cmd
		u.spinner, cmd = u.spinner.Update(msg)
		return cmd

	case usageLoadedMsg:
		// Results for a month the user has already paged away from are dropped.
		if msg.month != u.month {
			return nil
		}
		u.loading = false
		u.err = msg.err
		if msg.err == nil {
			u.dashboard.SetReport(msg.report)
		}
		return nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, u.keys.Prev):
			return u.SetMonth(usage.ShiftMonth(u.month, -1))
		case key.Matches(msg, u.keys.Next):
			next := usage.ShiftMonth(u.month, 1)
			if next > usage.CurrentMonth(u.now()) {
				return nil
			}
			return u.SetMonth(next)
		case key.Matches(msg, u.keys.View):
			u.dashboard.ToggleView()
		case key.Matches(msg, u.keys.Reload):
			u.service.Invalidate()
			return u.load()
		}
	}
	return nil
}

func (u *Usage) View() string {
	t := u.theme
	var b strings.Builder
	b.WriteString(t.Title.Render("Usage"))
	b.WriteString("\n\n")
	switch {
	case u.err != nil:
		b.WriteString(t.Error.Render(api.Message(u.err)))
		b.WriteString("\n")
		b.WriteString(t.Help.Render("R to retry"))
	case u.loading:
		b.WriteString(u.spinner.View() + " Loading usage for " + u.month + "...")
	default:
		b.WriteString(u.dashboard.View())
	}
	b.WriteString("\n\n")
	b.WriteString(components.HelpLine(t, pairs(u.keys.Prev, u.keys.Next, u.keys.View, u.keys.Reload)...))
	return b.String()
}

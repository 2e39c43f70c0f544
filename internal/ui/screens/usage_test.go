// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package screens

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/api/apitest"
	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/ui/styles"
	"github.com/jeranaias/bookshelf-tui/internal/usage"
)

func newUsageFixture(t *testing.T) (*apitest.Server, *Usage) {
	t.Helper()
	srv, client := signedIn(t)
	at := func(day int) model.Timestamp {
		return model.Timestamp{Time: time.Date(2024, 5, day, 12, 0, 0, 0, time.UTC)}
	}
	srv.SetUsage("tokens", "2024-05",
		model.UsagePoint{Timestamp: at(3), TotalTokens: 120},
		model.UsagePoint{Timestamp: at(3), TotalTokens: 80})
	srv.SetUsage("document-tokens", "2024-05", model.UsagePoint{Timestamp: at(9), TotalTokens: 50})

	u := NewUsage(context.Background(), usage.NewService(client, time.Minute), styles.NewTheme(styles.ModeDark))
	u.now = func() time.Time { return time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC) }
	u.month = usage.CurrentMonth(u.now())
	u.SetSize(120, 30)
	settle(u, u.Init())
	return srv, u
}

func TestUsage_ShowsMonthTotals(t *testing.T) {
	_, u := newUsageFixture(t)

	view := u.View()
	require.Contains(t, view, "Token usage 2024-05")
	require.Contains(t, view, "Chat tokens:      200")
	require.Contains(t, view, "Document tokens:  50")
	require.Contains(t, view, "Total:            250")
	require.Contains(t, view, "Daily breakdown")

	pressRune(u, 'v')
	require.Contains(t, u.View(), "Busiest days")
}

func TestUsage_MonthNavigation(t *testing.T) {
	_, u := newUsageFixture(t)

	settle(u, press(u, tea.KeyLeft))
	require.Equal(t, "2024-04", u.Month())
	require.Contains(t, u.View(), "No usage recorded this month")

	settle(u, press(u, tea.KeyRight))
	require.Equal(t, "2024-05", u.Month())

	require.Nil(t, press(u, tea.KeyRight))
	require.Equal(t, "2024-05", u.Month())
}

func TestUsage_StaleMonthIgnored(t *testing.T) {
	_, u := newUsageFixture(t)

	u.Update(usageLoadedMsg{month: "2023-01", report: usage.Report{Month: "2023-01"}})

	require.Contains(t, u.View(), "Token usage 2024-05")
}

func TestUsage_ErrorThenRetry(t *testing.T) {
	srv, u := newUsageFixture(t)
	srv.Fail("GET", "/api/usage/tokens", 500, "usage service down", 1)

	settle(u, press(u, tea.KeyLeft))
	require.Contains(t, u.View(), "usage service down")

	settle(u, pressRune(u, 'R'))
	require.NotContains(t, u.View(), "usage service down")
	require.Contains(t, u.View(), "Token usage 2024-04")
}

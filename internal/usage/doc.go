// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package usage builds the monthly token usage dashboard.
//
// The backend returns raw samples for two series: tokens spent in chats and
// tokens spent ingesting documents. The service fetches both for a month,
// caches each series briefly, and folds the samples into one row per day.
//
// # Key Types
//
//   - Service: fetches and aggregates a month
//   - Report: per-day rows, totals and the peak day
//   - Day: chat and document tokens of one calendar day
//
// # Usage
//
//	svc := usage.NewService(client, time.Minute)
//	report, err := svc.Month(ctx, usage.CurrentMonth(time.Now()))
//	fmt.Println(report.Total(), report.Peak().Date)
package usage

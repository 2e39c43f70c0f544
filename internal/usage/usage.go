// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package usage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// =============================================================================
// MONTHS
// =============================================================================

// MonthLayout is the month format the usage endpoints accept.
const MonthLayout = "2006-01"

// ErrInvalidMonth is returned for a month that is not YYYY-MM.
var ErrInvalidMonth = errors.New("month must be YYYY-MM")

// ParseMonth validates month and returns its first day in UTC.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, &api.FieldError{Field: "month", Message: ErrInvalidMonth.Error(), Err: ErrInvalidMonth}
	}
	return t, nil
}

// CurrentMonth formats now as YYYY-MM.
func CurrentMonth(now time.Time) string {
	return now.Format(MonthLayout)
}

// ShiftMonth moves month by delta months. Invalid input is returned unchanged.
func ShiftMonth(month string, delta int) string {
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return month
	}
	return t.AddDate(0, delta, 0).Format(MonthLayout)
}

// =============================================================================
// REPORT
// =============================================================================

// Day is the usage of one calendar day.
type Day struct {
	Date           time.Time
	ChatTokens     int
	DocumentTokens int
}

// Total is chat plus document tokens.
func (d Day) Total() int {
	return d.ChatTokens + d.DocumentTokens
}

// Report is the aggregated usage of one month. Days has one row per
// calendar day of the month, zero-filled.
type Report struct {
	Month          string
	Days           []Day
	ChatTokens     int
	DocumentTokens int
	// Samples is the number of raw points behind the report.
	Samples int
}

// Total is the month's chat plus document tokens.
func (r Report) Total() int {
	return r.ChatTokens + r.DocumentTokens
}

// Peak returns the day with the most tokens. The earliest day wins ties; a
// month without usage returns the zero Day.
func (r Report) Peak() Day {
	var peak Day
	for _, d := range r.Days {
		if d.Total() > peak.Total() {
			peak = d
		}
	}
	return peak
}

// Empty reports whether the month has no usage at all.
func (r Report) Empty() bool {
	return r.Total() == 0
}

// Aggregate folds raw samples into a report for month. Samples outside the
// month are ignored.
func Aggregate(month string, chat, documents []model.UsagePoint) (Report, error) {
	start, err := ParseMonth(month)
	if err != nil {
		return Report{}, err
	}
	end := start.AddDate(0, 1, 0)
	days := int(end.Sub(start).Hours() / 24)

	r := Report{Month: month, Days: make([]Day, days)}
	for i := range r.Days {
		r.Days[i].Date = start.AddDate(0, 0, i)
	}

	add := func(points []model.UsagePoint, chatSeries bool) {
		for _, p := range points {
			ts := p.Timestamp.UTC()
			if ts.Before(start) || !ts.Before(end) {
				continue
			}
			d := &r.Days[ts.Day()-1]
			if chatSeries {
				d.ChatTokens += p.TotalTokens
				r.ChatTokens += p.TotalTokens
			} else {
				d.DocumentTokens += p.TotalTokens
				r.DocumentTokens += p.TotalTokens
			}
			r.Samples++
		}
	}
	add(chat, true)
	add(documents, false)
	return r, nil
}

// Top returns the n busiest days, most tokens first.
func (r Report) Top(n int) []Day {
	out := make([]Day, 0, len(r.Days))
	for _, d := range r.Days {
		if d.Total() > 0 {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total() > out[j].Total() })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// =============================================================================
// SERVICE
// =============================================================================

// Backend is the API surface used by the service.
type Backend interface {
	ChatTokenUsage(ctx context.Context, month string) ([]model.UsagePoint, error)
	DocumentTokenUsage(ctx context.Context, month string) ([]model.UsagePoint, error)
}

// DefaultTTL is how long a fetched series is reused.
const DefaultTTL = time.Minute

// Service fetches and aggregates monthly usage. Cache keys carry a
// generation that Invalidate bumps, so a fetch that started before an
// invalidation is never served afterwards.
type Service struct {
	api   Backend
	cache *gocache.Cache
	gen   atomic.Uint64
}

// NewService creates a service caching each series for ttl.
func NewService(client Backend, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{api: client, cache: gocache.New(ttl, 2*ttl)}
}

// Month returns the report for month ("YYYY-MM"). An invalid month is
// rejected without a request.
func (s *Service) Month(ctx context.Context, month string) (Report, error) {
	if _, err := ParseMonth(month); err != nil {
		return Report{}, err
	}

	var chat, docs []model.UsagePoint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chat, err = s.series(gctx, "chat", month, s.api.ChatTokenUsage)
		return err
	})
	g.Go(func() error {
		var err error
		docs, err = s.series(gctx, "document", month, s.api.DocumentTokenUsage)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return Aggregate(month, chat, docs)
}

func (s *Service) series(ctx context.Context, kind, month string, fetch func(context.Context, string) ([]model.UsagePoint, error)) ([]model.UsagePoint, error) {
	key := fmt.Sprintf("%d:%s:%s", s.gen.Load(), kind, month)
	if v, ok := s.cache.Get(key); ok {
		return v.([]model.UsagePoint), nil
	}
	points, err := fetch(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("%s usage: %w", kind, err)
	}
	s.cache.SetDefault(key, points)
	return points, nil
}

// Invalidate drops cached series so the next Month call refetches.
// Fetches still in flight store under the old generation, which no later
// lookup uses.
func (s *Service) Invalidate() {
	s.gen.Add(1)
	s.cache.Flush()
}

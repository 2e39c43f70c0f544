// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package usage

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/api/apitest"
	"github.com/jeranaias/bookshelf-tui/internal/model"
)

func point(day, hour, tokens int) model.UsagePoint {
	return model.UsagePoint{
		Timestamp:   model.NewTimestamp(time.Date(2024, 2, day, hour, 0, 0, 0, time.UTC)),
		TotalTokens: tokens,
	}
}

func TestAggregate(t *testing.T) {
	chat := []model.UsagePoint{point(1, 9, 100), point(1, 15, 50), point(29, 23, 10)}
	docs := []model.UsagePoint{point(3, 12, 400)}
	outside := model.UsagePoint{Timestamp: model.NewTimestamp(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), TotalTokens: 999}

	r, err := Aggregate("2024-02", append(chat, outside), docs)
	require.NoError(t, err)
	require.Len(t, r.Days, 29, "leap year february")
	require.Equal(t, 160, r.ChatTokens)
	require.Equal(t, 400, r.DocumentTokens)
	require.Equal(t, 560, r.Total())
	require.Equal(t, 4, r.Samples)
	require.Equal(t, 150, r.Days[0].ChatTokens)
	require.Equal(t, 3, r.Peak().Date.Day())

	top := r.Top(2)
	require.Len(t, top, 2)
	require.Equal(t, 400, top[0].Total())
	require.Equal(t, 150, top[1].Total())
}

func TestAggregate_EmptyMonth(t *testing.T) {
	r, err := Aggregate("2024-04", nil, nil)
	require.NoError(t, err)
	require.True(t, r.Empty())
	require.Len(t, r.Days, 30)
	require.True(t, r.Peak().Date.IsZero())
}

func TestParseMonth(t *testing.T) {
	_, err := ParseMonth("2024-13")
	require.ErrorIs(t, err, ErrInvalidMonth)
	var fe *api.FieldError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "month", fe.Field)

	require.Equal(t, "2024-01", ShiftMonth("2023-12", 1))
	require.Equal(t, "2023-12", ShiftMonth("2024-01", -1))
	require.Equal(t, "bad", ShiftMonth("bad", 1))
	require.Equal(t, "2024-05", CurrentMonth(time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC)))
}

func newService(t *testing.T) (*apitest.Server, *Service) {
	t.Helper()
	srv := apitest.Start(t)
	srv.AddUser("a@b.com", "pw")
	client := api.New(srv.URL, api.NewBearerCarrier())
	client.Carrier().Restore(srv.IssueToken("a@b.com"))
	return srv, NewService(client, time.Minute)
}

func TestService_MonthCachesSeries(t *testing.T) {
	srv, svc := newService(t)
	srv.SetUsage("tokens", "2024-02", point(2, 10, 70))
	srv.SetUsage("document-tokens", "2024-02", point(2, 11, 30))
	ctx := context.Background()

	r, err := svc.Month(ctx, "2024-02")
	require.NoError(t, err)
	require.Equal(t, 100, r.Days[1].Total())

	_, err = svc.Month(ctx, "2024-02")
	require.NoError(t, err)
	require.Equal(t, 1, srv.CallCount(http.MethodGet, "/api/usage/tokens"))
	require.Equal(t, 1, srv.CallCount(http.MethodGet, "/api/usage/document-tokens"))

	svc.Invalidate()
	_, err = svc.Month(ctx, "2024-02")
	require.NoError(t, err)
	require.Equal(t, 2, srv.CallCount(http.MethodGet, "/api/usage/tokens"))
}

func TestService_InvalidMonthMakesNoCall(t *testing.T) {
	srv, svc := newService(t)
	_, err := svc.Month(context.Background(), "Feb 2024")
	require.ErrorIs(t, err, ErrInvalidMonth)
	require.Empty(t, srv.Calls())
}

func TestService_FailureNotCached(t *testing.T) {
	srv, svc := newService(t)
	srv.Fail(http.MethodGet, "/api/usage/document-tokens", http.StatusInternalServerError, "", 1)
	ctx := context.Background()

	_, err := svc.Month(ctx, "2024-02")
	require.ErrorIs(t, err, api.ErrServer)

	_, err = svc.Month(ctx, "2024-02")
	require.NoError(t, err)
}

// heldBackend blocks the first chat series fetch until release is closed.
type heldBackend struct {
	entered chan struct{}
	release chan struct{}
	tokens  atomic.Int64
	calls   atomic.Int64
}

func (b *heldBackend) ChatTokenUsage(ctx context.Context, month string) ([]model.UsagePoint, error) {
	tokens := int(b.tokens.Load())
	if b.calls.Add(1) == 1 {
		b.entered <- struct{}{}
		<-b.release
	}
	return []model.UsagePoint{point(1, 9, tokens)}, nil
}

func (b *heldBackend) DocumentTokenUsage(ctx context.Context, month string) ([]model.UsagePoint, error) {
	return nil, nil
}

func TestService_FetchOverlappingInvalidateNotServedLater(t *testing.T) {
	backend := &heldBackend{entered: make(chan struct{}, 1), release: make(chan struct{})}
	backend.tokens.Store(500)
	svc := NewService(backend, time.Hour)

	done := make(chan error)
	go func() {
		_, err := svc.Month(context.Background(), "2024-02")
		done <- err
	}()
	<-backend.entered

	svc.Invalidate()
	backend.tokens.Store(7)
	close(backend.release)
	require.NoError(t, <-done)

	r, err := svc.Month(context.Background(), "2024-02")
	require.NoError(t, err)
	require.Equal(t, 7, r.ChatTokens)
	require.EqualValues(t, 2, backend.calls.Load())
}

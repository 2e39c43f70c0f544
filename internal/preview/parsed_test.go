// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package preview

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/model"
)

type memSource struct {
	versions []model.ParsedVersion
	content  map[model.ID]string
	original string
	opened   int
}

func (m *memSource) ParsedVersions(ctx context.Context, id model.ID) ([]model.ParsedVersion, error) {
	return m.versions, nil
}

func (m *memSource) ParsedContent(ctx context.Context, id, parsedID model.ID) (string, error) {
	c, ok := m.content[parsedID]
	if !ok {
		return "", api.ErrNotFound
	}
	return c, nil
}

func (m *memSource) Open(ctx context.Context, id model.ID) (*api.Download, error) {
	m.opened++
	return &api.Download{
		Filename: "notes.txt",
		Body:     io.NopCloser(strings.NewReader(m.original)),
	}, nil
}

var paper = model.Document{ID: "7", Name: "paper.pdf"}

func TestLoad_ShowsNewestParsedVersion(t *testing.T) {
	src := &memSource{
		versions: []model.ParsedVersion{{ID: "2"}, {ID: "1"}},
		content:  map[model.ID]string{"1": "old", "2": "new"},
	}
	opts := Options{MaxLines: 10}

	d, err := Load(context.Background(), src, paper, opts)
	require.NoError(t, err)
	require.True(t, d.Parsed())
	require.Equal(t, 0, d.Index)
	require.Equal(t, KindParsed, d.Preview.Kind)
	require.Equal(t, "new", d.Preview.Render())
	require.Zero(t, src.opened)

	d, err = LoadVersion(context.Background(), src, paper, d.Versions, 1, opts)
	require.NoError(t, err)
	v, ok := d.Version()
	require.True(t, ok)
	require.Equal(t, model.ID("1"), v.ID)
	require.Equal(t, "old", d.Preview.Text)

	_, err = LoadVersion(context.Background(), src, paper, d.Versions, 2, opts)
	require.ErrorContains(t, err, "version 3 does not exist")
}

func TestLoad_NoVersionsRendersOriginal(t *testing.T) {
	src := &memSource{original: "hello\nworld\n"}

	d, err := Load(context.Background(), src, paper, Options{MaxLines: 10})
	require.NoError(t, err)
	require.False(t, d.Parsed())
	require.Equal(t, 1, src.opened)
	require.Equal(t, KindText, d.Preview.Kind)
	require.Equal(t, "hello\nworld\n", d.Preview.Text)
	_, ok := d.Version()
	require.False(t, ok)
}

func TestLoadVersion_MissingContent(t *testing.T) {
	src := &memSource{versions: []model.ParsedVersion{{ID: "9"}}}
	_, err := LoadVersion(context.Background(), src, paper, src.versions, 0, Options{})
	require.True(t, errors.Is(err, api.ErrNotFound))
}

func TestFromParsed_ClipsLines(t *testing.T) {
	p := FromParsed("paper.pdf", strings.Repeat("row\n", 5), Options{MaxLines: 2})
	require.Equal(t, "row\nrow\n", p.Text)
	require.True(t, p.Truncated)
	require.Equal(t, "row\nrow\n", p.Highlighted)
}

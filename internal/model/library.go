// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// =============================================================================
// KNOWLEDGE BASE
// =============================================================================

// KnowledgeBase is a named collection of documents ("bookshelf").
// Titles are unique per account; the backend enforces it.
type KnowledgeBase struct {
	ID        ID        `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
}

// =============================================================================
// PARSING STATUS
// =============================================================================

// ParsingStatus is the server-side ingestion state of a document.
type ParsingStatus string

const (
	ParsingPending    ParsingStatus = "pending"
	ParsingProcessing ParsingStatus = "processing"
	ParsingDone       ParsingStatus = "done"
	ParsingFailed     ParsingStatus = "failed"
)

// String returns the status as a string.
func (s ParsingStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the server will not change the status on its own.
func (s ParsingStatus) IsTerminal() bool {
	return s == ParsingDone || s == ParsingFailed
}

// IsValid reports whether s is one of the known statuses.
func (s ParsingStatus) IsValid() bool {
	switch s {
	case ParsingPending, ParsingProcessing, ParsingDone, ParsingFailed:
		return true
	}
	return false
}

// NormalizeParsingStatus maps backend spellings onto the known statuses.
// Older backends report "completed" and "error"; an empty value is pending.
func NormalizeParsingStatus(raw string) ParsingStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pending", "queued":
		return ParsingPending
	case "processing", "parsing", "running":
		return ParsingProcessing
	case "done", "completed", "complete", "success":
		return ParsingDone
	case "failed", "error":
		return ParsingFailed
	}
	return ParsingStatus(raw)
}

// UnmarshalJSON normalizes the status as it is decoded.
func (s *ParsingStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NormalizeParsingStatus(raw)
	return nil
}

// Label returns a short human-readable label.
func (s ParsingStatus) Label() string {
	switch s {
	case ParsingPending:
		return "Pending"
	case ParsingProcessing:
		return "Processing"
	case ParsingDone:
		return "Parsed"
	case ParsingFailed:
		return "Failed"
	}
	return string(s)
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is an uploaded file. It always belongs to exactly one knowledge base.
type Document struct {
	ID              ID            `json:"id"`
	KnowledgeBaseID ID            `json:"knowledge_base_id"`
	Name            string        `json:"name"`
	Size            int64         `json:"size"`
	Enabled         bool          `json:"enabled"`
	ParsingStatus   ParsingStatus `json:"parsing_status"`
	UploadedAt      Timestamp     `json:"uploaded_at"`
	ParsedPages     *int          `json:"parsed_pages,omitempty"`
}

// Extension returns the lower-cased file extension without the dot.
func (d Document) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Name)), ".")
}

// IsParsing reports whether the document is still being ingested.
func (d Document) IsParsing() bool {
	return !d.ParsingStatus.IsTerminal()
}

// Pages returns the parsed page count, or 0 when unknown.
func (d Document) Pages() int {
	if d.ParsedPages == nil {
		return 0
	}
	return *d.ParsedPages
}

// ParsedVersion is one stored extraction of a document produced by the
// backend parser. Versions are listed newest first.
type ParsedVersion struct {
	ID       ID        `json:"id"`
	ParsedAt Timestamp `json:"parsed_at"`
}

// Label is the version's display name, its parse time.
func (v ParsedVersion) Label() string {
	if v.ParsedAt.IsZero() {
		return string(v.ID)
	}
	return v.ParsedAt.Local().Format("Jan 2, 2006 15:04")
}

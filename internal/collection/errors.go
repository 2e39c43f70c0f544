// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package collection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// ErrNoKnowledgeBase indicates a document operation without a selected knowledge base.
var ErrNoKnowledgeBase = errors.New("no knowledge base selected")

// GoneError reports an item that was deleted elsewhere. The stale cache
// row has already been removed when it is returned.
type GoneError struct {
	Kind string
	Name string
	Err  error
}

// Error implements the error interface.
func (e *GoneError) Error() string {
	return e.UserMessage()
}

// UserMessage returns the text shown to the user.
func (e *GoneError) UserMessage() string {
	if e.Name == "" {
		return fmt.Sprintf("This %s no longer exists", strings.ToLower(e.Kind))
	}
	return fmt.Sprintf("%s %q no longer exists", e.Kind, e.Name)
}

// Unwrap returns the backend error.
func (e *GoneError) Unwrap() error {
	return e.Err
}

// RejectedFileError is a client-side upload rejection. No request was made.
type RejectedFileError struct {
	Name   string
	Reason string
}

// Error implements the error interface.
func (e *RejectedFileError) Error() string {
	return e.UserMessage()
}

// UserMessage returns the text shown to the user.
func (e *RejectedFileError) UserMessage() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

func tooLarge(name string, size, limit int64) *RejectedFileError {
	return &RejectedFileError{
		Name:   name,
		Reason: fmt.Sprintf("file is %s, larger than the %s limit", util.FormatBytes(size), util.FormatBytes(limit)),
	}
}

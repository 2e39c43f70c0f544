// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify carries fire-and-forget notices from background operations
// to whatever surface shows them: toasts in the TUI, stderr in the CLI.
package notify

import (
	"errors"
	"sync"

	"github.com/jeranaias/bookshelf-tui/internal/api"
)

// Level is the severity of a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "info"
}

// Notice is one user-visible message.
type Notice struct {
	Level   Level
	Title   string
	Message string
	Err     error
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(Notice)
}

// Func adapts a function to Notifier.
type Func func(Notice)

// Notify implements Notifier.
func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Error builds an error notice with the error's user-facing message.
func Error(title string, err error) Notice {
	return Notice{Level: LevelError, Title: title, Message: api.Message(err), Err: err}
}

// Success builds a success notice.
func Success(msg string) Notice {
	return Notice{Level: LevelSuccess, Message: msg}
}

// Warning builds a warning notice.
func Warning(title, msg string) Notice {
	return Notice{Level: LevelWarning, Title: title, Message: msg}
}

// Or returns n, or Discard when n is nil.
func Or(n Notifier) Notifier {
	if n == nil {
		return Discard
	}
	return n
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder keeps every notice. Tests use it to assert on toasts.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Notifier.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Errors returns only error notices.
func (r *Recorder) Errors() []Notice {
	var out []Notice
	for _, n := range r.Notices() {
		if n.Level == LevelError {
			out = append(out, n)
		}
	}
	return out
}

// HasError reports whether an error notice wrapping target was recorded.
func (r *Recorder) HasError(target error) bool {
	for _, n := range r.Errors() {
		if errors.Is(n.Err, target) {
			return true
		}
	}
	return false
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/bookshelf-tui/internal/api"
	"github.com/jeranaias/bookshelf-tui/internal/collection"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError covers bad arguments and rejected input.
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitNetworkError = 5
	ExitNotFound     = 7
	ExitTimeout      = 8
)

// ErrNotSignedIn is returned by commands that need a session when none
// could be restored.
var ErrNotSignedIn = errors.New("not signed in")

// ErrBadCredentials is returned by login when the backend rejects the
// email or password.
var ErrBadCredentials = errors.New("incorrect email or password")

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports a malformed command line.
type UsageError struct {
	Usage   string
	Message string
}

func (e *UsageError) Error() string {
	if e.Usage == "" {
		return e.Message
	}
	return fmt.Sprintf("%s\nUsage: %s", e.Message, e.Usage)
}

// ErrMissingArgument builds a UsageError for a missing positional.
func ErrMissingArgument(name, usage string) error {
	return &UsageError{Usage: usage, Message: "missing " + name}
}

// NotFoundError reports a name or id that matched nothing.
type NotFoundError struct {
	Resource string
	Ref      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Ref)
}

// AmbiguousError reports a name that matched more than one item.
type AmbiguousError struct {
	Resource string
	Ref      string
	Count    int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d %ss are named %q; use the id instead", e.Count, e.Resource, e.Ref)
}

// ConfigError wraps a failure to load or change the configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "config: " + e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// silentError carries a failure whose details were already written as part
// of the command's JSON output. It still sets the exit code.
type silentError struct {
	err error
}

func (e *silentError) Error() string { return e.err.Error() }

func (e *silentError) Unwrap() error { return e.err }

// =============================================================================
// DISPLAY
// =============================================================================

// Message returns the user-facing text for err.
func Message(err error) string {
	var ue *UsageError
	var nf *NotFoundError
	var amb *AmbiguousError
	var ce *ConfigError
	var tty *TTYRequiredError
	switch {
	case errors.As(err, &ue):
		return ue.Error()
	case errors.As(err, &nf):
		return nf.Error()
	case errors.As(err, &amb):
		return amb.Error()
	case errors.As(err, &ce):
		return ce.Error()
	case errors.As(err, &tty):
		return tty.Error()
	case errors.Is(err, ErrBadCredentials):
		return "Incorrect email or password"
	case errors.Is(err, ErrNotSignedIn):
		return "Not signed in. Run 'bookshelf login --remember' first."
	case errors.Is(err, api.ErrUnauthorized):
		return "Your session has expired. Run 'bookshelf login --remember' again."
	}
	return api.Message(err)
}

// DisplayError writes err in the current output mode. In JSON mode the
// error envelope goes to out so scripts see one JSON document; otherwise a
// styled line goes to errOut.
func DisplayError(out, errOut io.Writer, command string, err error, jsonMode bool) {
	var silent *silentError
	if err == nil || errors.As(err, &silent) {
		return
	}
	if jsonMode {
		DisplayErrorJSON(out, command, err)
		return
	}
	fmt.Fprintf(errOut, "%s %s\n", ErrorStyle.Render("Error:"), Message(err))
}

// DisplayErrorJSON writes the error envelope with a machine-readable type.
func DisplayErrorJSON(w io.Writer, command string, err error) {
	output := map[string]interface{}{
		"success":    false,
		"command":    command,
		"error":      Message(err),
		"error_type": errorType(err),
		"exit_code":  GetExitCode(err),
	}
	var fe *api.FieldError
	if errors.As(err, &fe) {
		output["field"] = fe.Field
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		output["status"] = apiErr.Status
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(output)
}

func errorType(err error) string {
	switch GetExitCode(err) {
	case ExitUsageError:
		return "validation_error"
	case ExitConfigError:
		return "config_error"
	case ExitAuthError:
		return "auth_error"
	case ExitNetworkError:
		return "network_error"
	case ExitNotFound:
		return "not_found_error"
	case ExitTimeout:
		return "timeout_error"
	}
	return "generic_error"
}

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ue *UsageError
	var fe *api.FieldError
	var amb *AmbiguousError
	var rej *collection.RejectedFileError
	var ce *ConfigError
	var nf *NotFoundError
	var gone *collection.GoneError

	switch {
	case errors.As(err, &ue), errors.As(err, &fe), errors.As(err, &amb), errors.As(err, &rej):
		return ExitUsageError
	case errors.Is(err, api.ErrValidation), errors.Is(err, api.ErrConflict):
		return ExitUsageError
	case errors.As(err, &ce):
		return ExitConfigError
	case errors.Is(err, ErrNotSignedIn), errors.Is(err, ErrBadCredentials), errors.Is(err, api.ErrUnauthorized):
		return ExitAuthError
	case errors.As(err, &nf), errors.As(err, &gone), errors.Is(err, api.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.Is(err, api.ErrTransport):
		return ExitNetworkError
	}
	return ExitGeneralError
}

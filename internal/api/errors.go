// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error variables for the backend's failure classes.
var (
	// ErrUnauthorized indicates a missing, expired or rejected session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the entity no longer exists.
	ErrNotFound = errors.New("not found")

	// ErrNoMessages indicates a chat that exists but has no history yet.
	ErrNoMessages = errors.New("no messages yet")

	// ErrConflict indicates a uniqueness violation, e.g. a duplicate title.
	ErrConflict = errors.New("already exists")

	// ErrValidation indicates the backend rejected the request payload.
	ErrValidation = errors.New("invalid request")

	// ErrServer indicates a 5xx response.
	ErrServer = errors.New("server error")

	// ErrTransport indicates the request never produced a response.
	ErrTransport = errors.New("network error")
)

// APIError is a non-2xx response decoded from the backend.
type APIError struct {
	Status int
	// Detail is the human-readable message from the response body.
	Detail string
	// Field names the offending input when the backend reported one.
	Field string
	// Op is the endpoint that failed, "METHOD /path".
	Op string

	kind error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, msg, e.Status)
}

// Unwrap returns the sentinel for the error's class.
func (e *APIError) Unwrap() error {
	return e.kind
}

// Message returns text suitable for a toast or inline error.
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return http.StatusText(e.Status)
}

// FieldError is an inline, field-level validation error. It is produced both
// by client-side preconditions and by backend validation responses.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap exposes the underlying backend error, if any.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// NewFieldError builds a client-side validation error.
func NewFieldError(field, message string) *FieldError {
	return &FieldError{Field: field, Message: message, Err: ErrValidation}
}

// AsFieldError converts validation and conflict responses into a FieldError
// on the given field. The backend's own field name wins when present.
// Other errors are returned unchanged.
func AsFieldError(err error, field string) error {
	var fe *FieldError
	if errors.As(err, &fe) {
		return err
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrValidation) {
		return err
	}
	if apiErr.Field != "" {
		field = apiErr.Field
	}
	return &FieldError{Field: field, Message: apiErr.Message(), Err: err}
}

// Message extracts a human-readable message from any error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Message
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	if errors.Is(err, ErrTransport) {
		return "Could not reach the server"
	}
	return err.Error()
}

// =============================================================================
// RESPONSE DECODING
// =============================================================================

// decodeError builds an APIError from a non-2xx response body.
// Recognized bodies:
//
//	{"detail": "message"}
//	{"detail": [{"loc": ["body", "title"], "msg": "message"}]}
//	{"title": ["message"]} or {"title": "message"}
func decodeError(op string, status int, body []byte) *APIError {
	e := &APIError{Status: status, Op: op}
	e.Detail, e.Field = parseErrorBody(body)
	e.kind = classify(status, e.Detail)
	return e
}

func classify(status int, detail string) error {
	lower := strings.ToLower(detail)
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusNotFound && strings.Contains(lower, "no messages"):
		return ErrNoMessages
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusBadRequest && (strings.Contains(lower, "already exists") || strings.Contains(lower, "duplicate")):
		return ErrConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusRequestEntityTooLarge:
		return ErrValidation
	case status >= 500:
		return ErrServer
	}
	return nil
}

func parseErrorBody(body []byte) (detail, field string) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return strings.TrimSpace(string(body)), ""
	}

	if d, ok := raw["detail"]; ok {
		var s string
		if json.Unmarshal(d, &s) == nil {
			return s, ""
		}
		var items []struct {
			Loc []any  `json:"loc"`
			Msg string `json:"msg"`
		}
		if json.Unmarshal(d, &items) == nil && len(items) > 0 {
			if n := len(items[0].Loc); n > 0 {
				field, _ = items[0].Loc[n-1].(string)
			}
			return items[0].Msg, field
		}
	}

	// Field-keyed bodies: the first key with a message wins.
	for k, v := range raw {
		if k == "message" || k == "error" {
			k = ""
		}
		var s string
		if json.Unmarshal(v, &s) == nil && s != "" {
			return s, k
		}
		var list []string
		if json.Unmarshal(v, &list) == nil && len(list) > 0 {
			return list[0], k
		}
	}
	return "", ""
}

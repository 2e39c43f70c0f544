// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// UserInfo is the account object embedded in auth responses.
type UserInfo struct {
	ID    model.ID `json:"id"`
	Email string   `json:"email"`
}

// LoginResponse is the body of a successful login.
// AccessToken is absent when the backend uses cookie sessions only.
type LoginResponse struct {
	AccessToken string    `json:"access_token,omitempty"`
	TokenType   string    `json:"token_type,omitempty"`
	User        *UserInfo `json:"user,omitempty"`
}

// Login authenticates with form-encoded credentials and lets the carrier
// capture the issued session. The email is sent as "username".
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	r := request{
		method:      http.MethodPost,
		path:        "/auth/login",
		rawBody:     strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		public:      true,
	}

	resp, err := c.do(ctx, r)
	if err != nil {
		return LoginResponse{}, err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return LoginResponse{}, err
	}
	if err := c.check(r, resp, body); err != nil {
		return LoginResponse{}, err
	}

	var out LoginResponse
	if len(body) > 0 {
		if err := decodeJSON(r, body, &out); err != nil {
			return LoginResponse{}, err
		}
	}
	c.carrier.Capture(resp, out)
	return out, nil
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, email, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.call(ctx, request{
		method:   http.MethodPost,
		path:     "/auth/register",
		jsonBody: map[string]string{"email": email, "password": password},
		public:   true,
	}, &out)
	return out, err
}

// Me returns the account behind the current session.
// A missing or expired session yields ErrUnauthorized.
func (c *Client) Me(ctx context.Context) (UserInfo, error) {
	var out struct {
		User *UserInfo `json:"user"`
		UserInfo
	}
	if err := c.call(ctx, request{method: http.MethodGet, path: "/auth/me", public: true}, &out); err != nil {
		return UserInfo{}, err
	}
	if out.User != nil {
		return *out.User, nil
	}
	return out.UserInfo, nil
}

// Logout revokes the session server-side. The carrier is not cleared here;
// local sign-out is the session provider's job and must not depend on this call.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, request{method: http.MethodPost, path: "/auth/logout", public: true}, nil)
}

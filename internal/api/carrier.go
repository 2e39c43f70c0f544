// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
)

// =============================================================================
// SESSION CARRIERS
// =============================================================================

// Carrier transports the session credential on every request. The client
// and everything above it are unaware of which carrier is in use.
type Carrier interface {
	// Name identifies the carrier ("cookie" or "bearer").
	Name() string
	// Install prepares the HTTP client, e.g. attaching a cookie jar.
	Install(hc *http.Client)
	// Apply adds the credential to an outbound request.
	Apply(req *http.Request)
	// Capture records the credential issued by a successful login.
	Capture(resp *http.Response, login LoginResponse)
	// Credential returns the current credential for persistence.
	Credential() string
	// Restore installs a previously persisted credential.
	Restore(credential string)
	// Clear forgets the credential.
	Clear()
}

// NewCarrier returns the carrier named by kind ("cookie" or "bearer").
func NewCarrier(kind, baseURL string) (Carrier, error) {
	switch strings.ToLower(kind) {
	case "", "cookie":
		return NewCookieCarrier(baseURL, DefaultCookieName)
	case "bearer":
		return NewBearerCarrier(), nil
	}
	return nil, fmt.Errorf("unknown session carrier %q", kind)
}

// -----------------------------------------------------------------------------
// Bearer
// -----------------------------------------------------------------------------

// BearerCarrier sends "Authorization: Bearer <token>".
type BearerCarrier struct {
	mu    sync.RWMutex
	token string
}

// NewBearerCarrier creates an empty bearer carrier.
func NewBearerCarrier() *BearerCarrier {
	return &BearerCarrier{}
}

// Name implements Carrier.
func (b *BearerCarrier) Name() string { return "bearer" }

// Install implements Carrier. Bearer tokens need no client setup.
func (b *BearerCarrier) Install(*http.Client) {}

// Apply implements Carrier.
func (b *BearerCarrier) Apply(req *http.Request) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
}

// Capture implements Carrier.
func (b *BearerCarrier) Capture(_ *http.Response, login LoginResponse) {
	if login.AccessToken == "" {
		return
	}
	b.mu.Lock()
	b.token = login.AccessToken
	b.mu.Unlock()
}

// Credential implements Carrier.
func (b *BearerCarrier) Credential() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

// Restore implements Carrier.
func (b *BearerCarrier) Restore(credential string) {
	b.mu.Lock()
	b.token = credential
	b.mu.Unlock()
}

// Clear implements Carrier.
func (b *BearerCarrier) Clear() {
	b.Restore("")
}

// -----------------------------------------------------------------------------
// Cookie
// -----------------------------------------------------------------------------

// DefaultCookieName is the session cookie the backend sets on login.
const DefaultCookieName = "access_token"

// CookieCarrier keeps the HTTP-only session cookie in a jar. It implements
// http.CookieJar itself so Clear can swap the underlying jar in place.
type CookieCarrier struct {
	mu   sync.RWMutex
	jar  *cookiejar.Jar
	base *url.URL
	name string
}

// NewCookieCarrier creates a cookie carrier scoped to baseURL.
func NewCookieCarrier(baseURL, cookieName string) (*CookieCarrier, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &CookieCarrier{jar: jar, base: u, name: cookieName}, nil
}

// Name implements Carrier.
func (c *CookieCarrier) Name() string { return "cookie" }

// Install implements Carrier.
func (c *CookieCarrier) Install(hc *http.Client) {
	hc.Jar = c
}

// Apply implements Carrier. The jar attaches the cookie.
func (c *CookieCarrier) Apply(*http.Request) {}

// Capture implements Carrier. Set-Cookie has already reached the jar; a
// token in the body is stored as the cookie for backends that send both.
func (c *CookieCarrier) Capture(_ *http.Response, login LoginResponse) {
	if c.Credential() == "" && login.AccessToken != "" {
		c.Restore(login.AccessToken)
	}
}

// Credential implements Carrier.
func (c *CookieCarrier) Credential() string {
	for _, ck := range c.Cookies(c.base) {
		if ck.Name == c.name {
			return ck.Value
		}
	}
	return ""
}

// Restore implements Carrier.
func (c *CookieCarrier) Restore(credential string) {
	if credential == "" {
		c.Clear()
		return
	}
	c.SetCookies(c.base, []*http.Cookie{{Name: c.name, Value: credential, Path: "/"}})
}

// Clear implements Carrier.
func (c *CookieCarrier) Clear() {
	jar, _ := cookiejar.New(nil)
	c.mu.Lock()
	c.jar = jar
	c.mu.Unlock()
}

// SetCookies implements http.CookieJar.
func (c *CookieCarrier) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.mu.RLock()
	jar := c.jar
	c.mu.RUnlock()
	jar.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar.
func (c *CookieCarrier) Cookies(u *url.URL) []*http.Cookie {
	c.mu.RLock()
	jar := c.jar
	c.mu.RUnlock()
	return jar.Cookies(u)
}

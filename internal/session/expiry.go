// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// tokenExpiry returns the exp claim of a JWT credential, or fallback when
// the credential is opaque or carries no expiry. The signature is not
// verified; the backend remains the authority on validity.
func tokenExpiry(credential string, fallback time.Time) time.Time {
	if credential == "" {
		return fallback
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	if exp.Time.Before(fallback) {
		return exp.Time
	}
	return fallback
}

// Remaining returns how long the current session has left, zero when it
// has no known expiry or has expired.
func (s Snapshot) Remaining(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// FormatDuration returns a compact human-readable duration, e.g. "3d 4h",
// "5h 12m", "7m" or "42s".
func FormatDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		days := int(d.Hours()) / 24
		hours := int(d.Hours()) % 24
		if hours == 0 {
			return util.IntToString(days) + "d"
		}
		return util.IntToString(days) + "d " + util.IntToString(hours) + "h"
	case d >= time.Hour:
		mins := int(d.Minutes()) % 60
		if mins == 0 {
			return util.IntToString(int(d.Hours())) + "h"
		}
		return util.IntToString(int(d.Hours())) + "h " + util.IntToString(mins) + "m"
	case d >= time.Minute:
		return util.IntToString(int(d.Minutes())) + "m"
	}
	return util.IntToString(int(d.Seconds())) + "s"
}

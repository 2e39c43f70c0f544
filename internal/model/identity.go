// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Identity is the authenticated account. At most one is active per client.
type Identity struct {
	Email string `json:"email"`
	ID    ID     `json:"id,omitempty"`
}

// IsZero reports whether no identity is set.
func (i Identity) IsZero() bool {
	return i.Email == "" && i.ID == ""
}

// DisplayName returns the email, falling back to the ID.
func (i Identity) DisplayName() string {
	if i.Email != "" {
		return i.Email
	}
	return i.ID.String()
}

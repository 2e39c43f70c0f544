// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/bookshelf-tui/internal/model"
	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// CredentialFile is the encrypted credential file name in the config dir.
	CredentialFile = "credentials"

	// keySize is the AES-256 key size in bytes.
	keySize = 32

	// saltSize is the size of the per-install salt.
	saltSize = 32

	// nonceSize is the GCM nonce size.
	nonceSize = 12

	// keyIterations is the PBKDF2-SHA-256 iteration count.
	keyIterations = 600000
)

// Errors returned by CredentialStore.
var (
	// ErrNoCredential indicates nothing is remembered.
	ErrNoCredential = errors.New("no remembered credential")

	// ErrCredentialCorrupt indicates the file could not be decrypted or parsed.
	ErrCredentialCorrupt = errors.New("remembered credential is unreadable")
)

// =============================================================================
// CREDENTIAL
// =============================================================================

// Credential is a remembered session.
type Credential struct {
	Email     string    `json:"email"`
	UserID    model.ID  `json:"id,omitempty"`
	Carrier   string    `json:"carrier"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the credential is past its expiry at now.
// A zero expiry never expires.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Identity returns the account the credential belongs to.
func (c Credential) Identity() model.Identity {
	return model.Identity{Email: c.Email, ID: c.UserID}
}

// =============================================================================
// CREDENTIAL STORE
// =============================================================================

// CredentialStore keeps one Credential encrypted at rest. The key is derived
// from a random per-install salt and the local account identity, so the file
// is useless when copied to another machine or user.
type CredentialStore struct {
	mu       sync.Mutex
	path     string
	saltPath string
	key      []byte
	secret   func() string
}

// NewCredentialStore creates a store rooted at dir.
func NewCredentialStore(dir string) *CredentialStore {
	path := filepath.Join(dir, CredentialFile)
	return &CredentialStore{
		path:     path,
		saltPath: path + ".salt",
		secret:   localIdentity,
	}
}

// Path returns the credential file path.
func (s *CredentialStore) Path() string {
	return s.path
}

// Save encrypts and writes c, replacing any previous credential.
func (s *CredentialStore) Save(c Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gcm, err := s.cipherLocked(true)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	if err := util.AtomicWriteFile(s.path, sealed, 0600); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Load decrypts the remembered credential.
// It returns ErrNoCredential when nothing is stored.
func (s *CredentialStore) Load() (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Credential{}, ErrNoCredential
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}

	gcm, err := s.cipherLocked(false)
	if errors.Is(err, os.ErrNotExist) {
		return Credential{}, ErrCredentialCorrupt
	}
	if err != nil {
		return Credential{}, err
	}
	if len(data) < nonceSize {
		return Credential{}, ErrCredentialCorrupt
	}
	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return Credential{}, ErrCredentialCorrupt
	}

	var c Credential
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return Credential{}, ErrCredentialCorrupt
	}
	return c, nil
}

// Clear removes the remembered credential. Clearing an empty store is not an error.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}

// cipherLocked returns the AEAD, deriving the key on first use. When create
// is set a missing salt is generated.
func (s *CredentialStore) cipherLocked(create bool) (cipher.AEAD, error) {
	if s.key == nil {
		salt, err := os.ReadFile(s.saltPath)
		if errors.Is(err, os.ErrNotExist) && create {
			salt = make([]byte, saltSize)
			if _, err := io.ReadFull(rand.Reader, salt); err != nil {
				return nil, fmt.Errorf("failed to generate salt: %w", err)
			}
			if err := util.AtomicWriteFile(s.saltPath, salt, 0600); err != nil {
				return nil, fmt.Errorf("failed to save salt: %w", err)
			}
		} else if err != nil {
			return nil, err
		}
		s.key = pbkdf2.Key([]byte(s.secret()), salt, keyIterations, keySize, sha256.New)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// localIdentity binds the key to this user on this host.
func localIdentity() string {
	host, _ := os.Hostname()
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username + ":" + u.Uid
	}
	return "bookshelf:" + name + "@" + host
}

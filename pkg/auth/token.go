// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth manages the client-side session: secure in-memory token
// holding, token persistence across CLI invocations, and the account
// operations (login, register, patient profile) against the gateway.
//
// The session token lives in a memguard enclave while the process runs,
// so it is encrypted at rest in memory and never swapped to disk in the
// clear. Persistence between invocations is a 0600 file under the
// user's config directory, the CLI analogue of the browser original's
// localStorage.
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/telessaude/telessaude/pkg/chat"
	"github.com/telessaude/telessaude/pkg/logging"
)

// sessionFileName is the token file under the config directory.
const sessionFileName = "session"

// =============================================================================
// Token Store
// =============================================================================

// TokenStore holds the session token. It satisfies the orchestrator's
// TokenProvider contract and is safe for concurrent use.
type TokenStore struct {
	mu      sync.Mutex
	enclave *memguard.Enclave
	dir     string
	logger  *logging.Logger
}

var _ chat.TokenProvider = (*TokenStore)(nil)

// NewTokenStore opens the token store rooted at dir (created if
// missing, ~ expanded). A token persisted by a previous invocation is
// loaded into the enclave.
func NewTokenStore(dir string, logger *logging.Logger) (*TokenStore, error) {
	if logger == nil {
		logger = logging.Default()
	}
	expanded := expandPath(dir)
	if err := os.MkdirAll(expanded, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	store := &TokenStore{dir: expanded, logger: logger}

	data, err := os.ReadFile(store.sessionPath())
	switch {
	case err == nil:
		token := strings.TrimSpace(string(data))
		if token != "" {
			store.enclave = memguard.NewEnclave([]byte(token))
			logger.Debug("session token loaded", "path", store.sessionPath())
		}
	case os.IsNotExist(err):
		// First run, no session yet.
	default:
		return nil, fmt.Errorf("read session file: %w", err)
	}

	return store, nil
}

// Token returns the current session token and whether one is held.
func (s *TokenStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enclave == nil {
		return "", false
	}
	buf, err := s.enclave.Open()
	if err != nil {
		s.logger.Error("session enclave unreadable, discarding", "error", err)
		s.enclave = nil
		return "", false
	}
	defer buf.Destroy()
	// buf.String() aliases the locked region, which Destroy wipes and
	// unmaps. Copy the bytes out so the returned token stays valid.
	return string(buf.Bytes()), true
}

// Set stores a freshly issued token in the enclave and persists it
// with owner-only permissions.
func (s *TokenStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = memguard.NewEnclave([]byte(token))
	if err := os.WriteFile(s.sessionPath(), []byte(token), 0600); err != nil {
		return fmt.Errorf("persist session token: %w", err)
	}
	s.logger.Debug("session token stored")
	return nil
}

// Invalidate discards the held token and removes the persisted file.
// Called on logout and when the server rejects the token as stale.
func (s *TokenStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	if err := os.Remove(s.sessionPath()); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("could not remove session file", "error", err)
	}
	s.logger.Debug("session token invalidated")
}

func (s *TokenStore) sessionPath() string {
	return filepath.Join(s.dir, sessionFileName)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

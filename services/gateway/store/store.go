// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists gateway state (users, sessions, patient
// profiles) in an embedded badger database.
//
// Key layout:
//
//	user:{username}     -> credentialRecord JSON (salted SHA-256)
//	session:{token}     -> username, with a TTL
//	patient:{username}  -> PatientInfo JSON
//
// Sessions are opaque UUIDs. Expiry is delegated to badger's entry TTL,
// so a stale token simply stops resolving.
package store

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/telessaude/telessaude/pkg/logging"
	"github.com/telessaude/telessaude/services/gateway/datatypes"
)

// SessionTTL is how long an issued session token stays valid.
const SessionTTL = 24 * time.Hour

const saltSize = 16

var (
	// ErrUserExists means registration hit a taken username.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials covers unknown users and wrong passwords
	// uniformly, so responses do not leak which usernames exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionInvalid means the token is unknown or expired.
	ErrSessionInvalid = errors.New("invalid session")

	// ErrPatientNotFound means the user has no stored profile yet.
	ErrPatientNotFound = errors.New("patient profile not found")
)

// credentialRecord is the stored password verifier.
type credentialRecord struct {
	Salt string `json:"salt"`
	Hash string `json:"hash"`
}

// =============================================================================
// Store
// =============================================================================

// Store wraps the badger database. Safe for concurrent use; badger
// handles its own transaction isolation.
type Store struct {
	db     *badger.DB
	logger *logging.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is noisy; we log at this layer
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	logger.Info("store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens a throwaway in-memory database, used by tests and
// offline runs.
func OpenInMemory(logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Users
// =============================================================================

// CreateUser registers a new user with a salted password hash.
func (s *Store) CreateUser(username, password string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	record, err := json.Marshal(credentialRecord{
		Salt: hex.EncodeToString(salt),
		Hash: hashPassword(salt, password),
	})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	key := userKey(username)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrUserExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, record)
	})
	if err != nil {
		return err
	}
	s.logger.Info("user created", "username", username)
	return nil
}

// Authenticate verifies a username/password pair.
func (s *Store) Authenticate(username, password string) error {
	var record credentialRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	salt, err := hex.DecodeString(record.Salt)
	if err != nil {
		return fmt.Errorf("decode salt: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(record.Hash), []byte(hashPassword(salt, password))) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// =============================================================================
// Sessions
// =============================================================================

// CreateSession issues an opaque session token for username.
func (s *Store) CreateSession(username string) (string, error) {
	token := uuid.NewString()
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(sessionKey(token), []byte(username)).WithTTL(SessionTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	s.logger.Debug("session created", "username", username)
	return token, nil
}

// ResolveSession maps a token back to its username. Unknown and
// expired tokens both yield ErrSessionInvalid.
func (s *Store) ResolveSession(token string) (string, error) {
	var username string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(token))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			username = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrSessionInvalid
	}
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	return username, nil
}

// DeleteSession revokes a token. Unknown tokens are a no-op.
func (s *Store) DeleteSession(token string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(token))
	})
}

// =============================================================================
// Patient Profiles
// =============================================================================

// SavePatient stores (or replaces) the patient profile for username.
func (s *Store) SavePatient(username string, patient datatypes.PatientInfo) error {
	data, err := json.Marshal(patient)
	if err != nil {
		return fmt.Errorf("encode patient: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(patientKey(username), data)
	})
	if err != nil {
		return fmt.Errorf("save patient: %w", err)
	}
	s.logger.Debug("patient profile saved", "username", username)
	return nil
}

// GetPatient loads the stored patient profile for username.
func (s *Store) GetPatient(username string) (datatypes.PatientInfo, error) {
	var patient datatypes.PatientInfo
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(patientKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &patient)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.PatientInfo{}, ErrPatientNotFound
	}
	if err != nil {
		return datatypes.PatientInfo{}, fmt.Errorf("load patient: %w", err)
	}
	return patient, nil
}

// =============================================================================
// Helpers
// =============================================================================

func userKey(username string) []byte    { return []byte("user:" + username) }
func sessionKey(token string) []byte    { return []byte("session:" + token) }
func patientKey(username string) []byte { return []byte("patient:" + username) }

func hashPassword(salt []byte, password string) string {
	sum := sha256.Sum256(append(salt, []byte(password)...))
	return hex.EncodeToString(sum[:])
}

// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/telessaude/telessaude/pkg/logging"
)

// =============================================================================
// Wire Types
// =============================================================================

// Credentials is the login/register request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PatientInfo is the patient profile as it travels on the wire.
type PatientInfo struct {
	Name   string  `json:"name"`
	Age    int32   `json:"age"`
	Gender string  `json:"gender"`
	Weight float32 `json:"weight"`
	Height float32 `json:"height"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type patientResponse struct {
	Patient PatientInfo `json:"patient"`
}

type savePatientRequest struct {
	Token   string      `json:"token"`
	Patient PatientInfo `json:"patient"`
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidCredentials means the gateway rejected the username or
	// password.
	ErrInvalidCredentials = errors.New("credenciais inválidas")

	// ErrSessionExpired means the gateway rejected the held token.
	ErrSessionExpired = errors.New("sessão expirada")

	// ErrUserExists means registration hit an already-taken username.
	ErrUserExists = errors.New("usuário já existe")

	// ErrNoSession means an authenticated call was attempted without a
	// held token.
	ErrNoSession = errors.New("usuário não autenticado")
)

// =============================================================================
// Account Client
// =============================================================================

// AccountClient performs session and profile operations against the
// gateway. Issued tokens land in the TokenStore, which the chat
// orchestrator reads from independently.
type AccountClient struct {
	baseURL string
	client  *http.Client
	tokens  *TokenStore
	logger  *logging.Logger
}

// NewAccountClient creates a client for the gateway at baseURL
// (e.g. "http://localhost:8080").
func NewAccountClient(baseURL string, tokens *TokenStore, logger *logging.Logger) *AccountClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &AccountClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		logger:  logger,
	}
}

// Login authenticates and stores the issued session token.
func (c *AccountClient) Login(ctx context.Context, username, password string) error {
	return c.authenticate(ctx, "/api/login", username, password)
}

// Register creates an account and stores the issued session token; the
// gateway logs a new user straight in, as the original client did.
func (c *AccountClient) Register(ctx context.Context, username, password string) error {
	return c.authenticate(ctx, "/api/register", username, password)
}

// Logout discards the session locally. Tokens are opaque and expire
// server-side; there is no revocation endpoint to call.
func (c *AccountClient) Logout() {
	c.tokens.Invalidate()
}

// Patient fetches the stored patient profile for the current session.
func (c *AccountClient) Patient(ctx context.Context) (PatientInfo, error) {
	token, ok := c.tokens.Token()
	if !ok {
		return PatientInfo{}, ErrNoSession
	}

	endpoint := c.baseURL + "/api/patient?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PatientInfo{}, fmt.Errorf("build patient request: %w", err)
	}

	var payload patientResponse
	if err := c.do(req, &payload); err != nil {
		return PatientInfo{}, err
	}
	return payload.Patient, nil
}

// SavePatient stores the patient profile for the current session.
func (c *AccountClient) SavePatient(ctx context.Context, patient PatientInfo) error {
	token, ok := c.tokens.Token()
	if !ok {
		return ErrNoSession
	}

	body, err := json.Marshal(savePatientRequest{Token: token, Patient: patient})
	if err != nil {
		return fmt.Errorf("encode patient: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/patient", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build patient request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

// authenticate POSTs credentials to path and stores the issued token.
func (c *AccountClient) authenticate(ctx context.Context, path, username, password string) error {
	body, err := json.Marshal(Credentials{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var payload tokenResponse
	if err := c.do(req, &payload); err != nil {
		return err
	}
	if payload.Token == "" {
		return fmt.Errorf("gateway returned no token")
	}
	if err := c.tokens.Set(payload.Token); err != nil {
		return err
	}
	c.logger.Info("session established", "username", username)
	return nil
}

// do executes the request, maps failure statuses, and decodes a JSON
// response into out when non-nil.
func (c *AccountClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("não foi possível conectar ao servidor: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized:
		if strings.HasSuffix(req.URL.Path, "/login") {
			return ErrInvalidCredentials
		}
		return ErrSessionExpired
	case resp.StatusCode == http.StatusConflict:
		return ErrUserExists
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotAuthenticated is returned by Send when no session token is
	// available. The conversation is not mutated in this case.
	ErrNotAuthenticated = errors.New("usuário não autenticado")

	// ErrExchangeInFlight is returned by Send while a previous exchange
	// has not reached a terminal state.
	ErrExchangeInFlight = errors.New("exchange already in flight")

	// ErrStreamConsumed is returned when Stream is called a second time
	// on the same adapter instance.
	ErrStreamConsumed = errors.New("stream adapter already consumed")
)

// =============================================================================
// Failure Taxonomy
// =============================================================================

// FailureCategory classifies terminal exchange failures. Every failed
// exchange maps to exactly one category.
type FailureCategory int

const (
	// FailureUnknown covers unexpected statuses and exceptions.
	FailureUnknown FailureCategory = iota

	// FailureUnauthenticated means no token was present. The request
	// never reaches the network.
	FailureUnauthenticated

	// FailureAuthRejected means the server returned 401. The held
	// session token is stale.
	FailureAuthRejected

	// FailureBadRequest means the server returned 400.
	FailureBadRequest

	// FailureUnreachable means the connection itself failed. No HTTP
	// status was received.
	FailureUnreachable

	// FailureTimeout means the exchange exceeded its time budget.
	FailureTimeout
)

// String returns the category name for logging.
func (c FailureCategory) String() string {
	switch c {
	case FailureUnauthenticated:
		return "unauthenticated"
	case FailureAuthRejected:
		return "auth_rejected"
	case FailureBadRequest:
		return "bad_request"
	case FailureUnreachable:
		return "unreachable"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// LocalizedMessage returns the pt-BR text shown to the user in place of
// the assistant's answer when the exchange fails with this category.
func (c FailureCategory) LocalizedMessage() string {
	switch c {
	case FailureUnauthenticated:
		return "Usuário não autenticado. Por favor, faça login novamente."
	case FailureAuthRejected:
		return "Sessão expirada. Por favor, faça login novamente."
	case FailureBadRequest:
		return "Mensagem inválida. Por favor, tente novamente."
	case FailureUnreachable:
		return "Não foi possível conectar ao servidor."
	case FailureTimeout:
		return "Tempo de resposta esgotado. Por favor, tente novamente."
	default:
		return "Ocorreu um erro. Por favor, tente novamente."
	}
}

// ExchangeError is the terminal failure of one exchange.
type ExchangeError struct {
	Category FailureCategory

	// Status is the HTTP status received, or 0 when the connection
	// failed before a status arrived.
	Status int

	// Cause is the underlying transport or protocol error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ExchangeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("exchange failed (%s, status %d): %v", e.Category, e.Status, e.Cause)
	}
	return fmt.Sprintf("exchange failed (%s, status %d)", e.Category, e.Status)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

// categorizeStatus maps a non-success HTTP status to its failure
// category, mirroring the status handling of the original client.
func categorizeStatus(status int) FailureCategory {
	switch status {
	case 401:
		return FailureAuthRejected
	case 400:
		return FailureBadRequest
	case 0:
		return FailureUnreachable
	default:
		return FailureUnknown
	}
}

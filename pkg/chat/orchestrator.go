// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/telessaude/telessaude/pkg/logging"
)

// =============================================================================
// Interfaces
// =============================================================================

// TokenProvider supplies the session token for outgoing exchanges.
type TokenProvider interface {
	// Token returns the current session token and whether one exists.
	Token() (string, bool)

	// Invalidate discards the held token. Called when the server
	// rejects it as stale.
	Invalidate()
}

// StreamerFactory builds a fresh single-use stream adapter per
// exchange.
type StreamerFactory func() ExchangeStreamer

// =============================================================================
// Chat Orchestrator
// =============================================================================

// Orchestrator drives one message exchange end to end: authentication
// check, transcript mutation, transport streaming, and failure mapping.
//
// The transcript invariants it maintains:
//
//   - A send appends exactly two turns (user, then a pending assistant
//     placeholder), or zero when no token is present.
//   - The placeholder's content only ever grows or is finalized; it is
//     never left permanently pending after a terminal event.
//   - Failures replace the placeholder content with a localized
//     message; the conversation is never rolled back.
type Orchestrator struct {
	store    *ConversationStore
	tokens   TokenProvider
	streamer StreamerFactory
	logger   *logging.Logger
	inFlight atomic.Bool
}

// NewOrchestrator wires an orchestrator to its store, token provider,
// and per-exchange streamer factory. A nil logger falls back to the
// package default.
func NewOrchestrator(store *ConversationStore, tokens TokenProvider, streamer StreamerFactory, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		store:    store,
		tokens:   tokens,
		streamer: streamer,
		logger:   logger,
	}
}

// Busy reports whether an exchange is currently in flight.
func (o *Orchestrator) Busy() bool {
	return o.inFlight.Load()
}

// Send submits one user message and streams the assistant's answer
// into the conversation.
//
// # Description
//
// Fails fast with ErrNotAuthenticated when no token is held (nothing
// is appended). Otherwise appends the user turn and an empty pending
// assistant turn, snapshots the history for the wire request, and
// drives the stream adapter's events into the placeholder: progress
// events replace its content with the accumulated text, a complete
// event finalizes it, and an error event finalizes it with the
// category's localized message. A 401 additionally invalidates the
// held token. Cancellation settles the placeholder with whatever
// partial text it holds.
//
// Send is not reentrant: a second call while one is in flight returns
// ErrExchangeInFlight without touching the conversation. The guard
// lives here, not in any UI.
//
// # Inputs
//   - ctx: cancelling it aborts the exchange.
//   - text: the user's message, sent verbatim.
//
// # Outputs
//   - error: nil on success; ErrNotAuthenticated, ErrExchangeInFlight,
//     ctx.Err() on cancellation, or the terminal *ExchangeError.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrExchangeInFlight
	}
	defer o.inFlight.Store(false)

	token, ok := o.tokens.Token()
	if !ok {
		return ErrNotAuthenticated
	}

	exchangeID := uuid.NewString()
	logger := o.logger.With("exchange_id", exchangeID)
	logger.Debug("exchange started", "history_len", o.store.Len())

	// History snapshot before mutation, then the new user turn. The
	// placeholder never reaches the wire.
	messages := wireHistory(o.store.Snapshot())
	messages = append(messages, WireMessage{Role: string(RoleUser), Content: text})

	o.store.Append(NewUserTurn(text))
	placeholder := o.store.Append(NewPendingAssistantTurn())

	var terminal *ExchangeError
	err := o.streamer().Stream(ctx, ExchangeRequest{Token: token, Messages: messages}, func(event StreamEvent) {
		switch event.Kind {
		case EventProgress:
			o.store.ReplaceContentAt(placeholder, event.Text)
		case EventComplete:
			o.store.Finalize(placeholder, event.Text)
		case EventError:
			terminal = event.Err
			o.store.Finalize(placeholder, event.Err.Category.LocalizedMessage())
		}
	})
	if err != nil {
		// Cancellation (or adapter misuse). No terminal event was
		// emitted; settle the placeholder so the transcript is not
		// left with a forever-pending turn.
		o.store.Settle(placeholder)
		logger.Info("exchange aborted", "reason", err)
		return err
	}

	if terminal != nil {
		if terminal.Category == FailureAuthRejected {
			o.tokens.Invalidate()
		}
		logger.Warn("exchange failed",
			"category", terminal.Category.String(),
			"status", terminal.Status,
		)
		return terminal
	}

	logger.Debug("exchange complete")
	return nil
}

// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokens is an in-memory TokenProvider.
type fakeTokens struct {
	mu          sync.Mutex
	token       string
	invalidated bool
}

func (f *fakeTokens) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.invalidated = true
}

func (f *fakeTokens) wasInvalidated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

// scriptedStreamer replays a fixed event sequence and records the
// request it was given. A nil script with abort set simulates
// cancellation: no events, an error return.
type scriptedStreamer struct {
	script  []StreamEvent
	abort   error
	request ExchangeRequest
	started chan struct{} // closed when Stream begins, if non-nil
	release chan struct{} // Stream blocks on this before replaying, if non-nil
}

func (s *scriptedStreamer) Stream(ctx context.Context, req ExchangeRequest, emit EmitFunc) error {
	s.request = req
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	if s.abort != nil {
		return s.abort
	}
	for _, event := range s.script {
		emit(event)
	}
	return nil
}

func factoryFor(s *scriptedStreamer) StreamerFactory {
	return func() ExchangeStreamer { return s }
}

func TestSendStreamsIntoPlaceholder(t *testing.T) {
	store := NewConversationStore()
	tokens := &fakeTokens{token: "tok"}
	streamer := &scriptedStreamer{script: []StreamEvent{
		{Kind: EventProgress, Text: "Quais são"},
		{Kind: EventProgress, Text: "Quais são os sintomas?"},
		{Kind: EventComplete, Text: "Quais são os sintomas?"},
	}}
	orch := NewOrchestrator(store, tokens, factoryFor(streamer), nil)

	require.NoError(t, orch.Send(context.Background(), "estou com dor de cabeça"))

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, RoleUser, snapshot[0].Role)
	assert.Equal(t, "estou com dor de cabeça", snapshot[0].Content)
	assert.Equal(t, RoleAssistant, snapshot[1].Role)
	assert.Equal(t, "Quais são os sintomas?", snapshot[1].Content)
	assert.False(t, snapshot[1].Pending)
}

func TestSendWithoutTokenAppendsNothing(t *testing.T) {
	store := NewConversationStore()
	streamer := &scriptedStreamer{}
	orch := NewOrchestrator(store, &fakeTokens{}, factoryFor(streamer), nil)

	err := orch.Send(context.Background(), "olá")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, 0, store.Len())
}

func TestSendBuildsWireHistory(t *testing.T) {
	store := NewConversationStore()
	store.Append(Turn{Role: RoleUser, Content: "primeira pergunta"})
	store.Append(Turn{Role: RoleAssistant, Content: "primeira resposta"})

	tokens := &fakeTokens{token: "session-token"}
	streamer := &scriptedStreamer{script: []StreamEvent{
		{Kind: EventComplete, Text: "segunda resposta"},
	}}
	orch := NewOrchestrator(store, tokens, factoryFor(streamer), nil)

	require.NoError(t, orch.Send(context.Background(), "segunda pergunta"))

	assert.Equal(t, "session-token", streamer.request.Token)
	require.Len(t, streamer.request.Messages, 3)
	assert.Equal(t, WireMessage{Role: "user", Content: "primeira pergunta"}, streamer.request.Messages[0])
	assert.Equal(t, WireMessage{Role: "assistant", Content: "primeira resposta"}, streamer.request.Messages[1])
	assert.Equal(t, WireMessage{Role: "user", Content: "segunda pergunta"}, streamer.request.Messages[2])
}

func TestSendFailureReplacesPlaceholderWithLocalizedMessage(t *testing.T) {
	tests := []struct {
		name     string
		category FailureCategory
		status   int
		message  string
	}{
		{"bad request", FailureBadRequest, 400, "Mensagem inválida. Por favor, tente novamente."},
		{"unreachable", FailureUnreachable, 0, "Não foi possível conectar ao servidor."},
		{"timeout", FailureTimeout, 0, "Tempo de resposta esgotado. Por favor, tente novamente."},
		{"unknown", FailureUnknown, 500, "Ocorreu um erro. Por favor, tente novamente."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewConversationStore()
			tokens := &fakeTokens{token: "tok"}
			streamer := &scriptedStreamer{script: []StreamEvent{
				{Kind: EventError, Err: &ExchangeError{Category: tt.category, Status: tt.status}},
			}}
			orch := NewOrchestrator(store, tokens, factoryFor(streamer), nil)

			err := orch.Send(context.Background(), "oi")
			var exErr *ExchangeError
			require.ErrorAs(t, err, &exErr)
			assert.Equal(t, tt.category, exErr.Category)

			snapshot := store.Snapshot()
			require.Len(t, snapshot, 2)
			assert.Equal(t, tt.message, snapshot[1].Content)
			assert.False(t, snapshot[1].Pending)
			assert.False(t, tokens.wasInvalidated())
		})
	}
}

func TestSendAuthRejectionInvalidatesToken(t *testing.T) {
	store := NewConversationStore()
	tokens := &fakeTokens{token: "stale"}
	streamer := &scriptedStreamer{script: []StreamEvent{
		{Kind: EventError, Err: &ExchangeError{Category: FailureAuthRejected, Status: 401}},
	}}
	orch := NewOrchestrator(store, tokens, factoryFor(streamer), nil)

	err := orch.Send(context.Background(), "oi")
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, FailureAuthRejected, exErr.Category)
	assert.True(t, tokens.wasInvalidated())

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "Sessão expirada. Por favor, faça login novamente.", snapshot[1].Content)
}

// The failed turn stays in the transcript; the conversation is never
// rolled back on error.
func TestSendFailureDoesNotRollBackHistory(t *testing.T) {
	store := NewConversationStore()
	store.Append(Turn{Role: RoleUser, Content: "anterior"})
	store.Append(Turn{Role: RoleAssistant, Content: "resposta anterior"})

	tokens := &fakeTokens{token: "tok"}
	streamer := &scriptedStreamer{script: []StreamEvent{
		{Kind: EventProgress, Text: "começou"},
		{Kind: EventError, Err: &ExchangeError{Category: FailureUnknown, Status: 502}},
	}}
	orch := NewOrchestrator(store, tokens, factoryFor(streamer), nil)

	_ = orch.Send(context.Background(), "nova pergunta")

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 4)
	assert.Equal(t, "anterior", snapshot[0].Content)
	assert.Equal(t, "resposta anterior", snapshot[1].Content)
	assert.Equal(t, "nova pergunta", snapshot[2].Content)
}

func TestConcurrentSendIsRejected(t *testing.T) {
	store := NewConversationStore()
	tokens := &fakeTokens{token: "tok"}
	streamer := &scriptedStreamer{
		script:  []StreamEvent{{Kind: EventComplete, Text: "ok"}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	orch := NewOrchestrator(store, tokens, factoryFor(streamer), nil)

	done := make(chan error, 1)
	go func() {
		done <- orch.Send(context.Background(), "primeira")
	}()

	<-streamer.started
	assert.True(t, orch.Busy())

	lenBefore := store.Len()
	err := orch.Send(context.Background(), "segunda")
	assert.ErrorIs(t, err, ErrExchangeInFlight)
	assert.Equal(t, lenBefore, store.Len(), "rejected send must not mutate the conversation")

	close(streamer.release)
	require.NoError(t, <-done)
	assert.False(t, orch.Busy())
}

func TestCancelledSendSettlesPlaceholder(t *testing.T) {
	store := NewConversationStore()
	tokens := &fakeTokens{token: "tok"}
	streamer := &scriptedStreamer{abort: context.Canceled}
	orch := NewOrchestrator(store, tokens, factoryFor(streamer), nil)

	err := orch.Send(context.Background(), "oi")
	assert.ErrorIs(t, err, context.Canceled)

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)
	assert.False(t, snapshot[1].Pending, "aborted exchange must not leave a pending turn")
	assert.False(t, tokens.wasInvalidated())
}

func TestSequentialSendsAccumulateTurns(t *testing.T) {
	store := NewConversationStore()
	tokens := &fakeTokens{token: "tok"}

	answers := []string{"primeira resposta", "segunda resposta"}
	calls := 0
	factory := func() ExchangeStreamer {
		s := &scriptedStreamer{script: []StreamEvent{
			{Kind: EventComplete, Text: answers[calls]},
		}}
		calls++
		return s
	}
	orch := NewOrchestrator(store, tokens, factory, nil)

	require.NoError(t, orch.Send(context.Background(), "primeira pergunta"))
	require.NoError(t, orch.Send(context.Background(), "segunda pergunta"))

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 4)
	assert.Equal(t, "primeira pergunta", snapshot[0].Content)
	assert.Equal(t, "primeira resposta", snapshot[1].Content)
	assert.Equal(t, "segunda pergunta", snapshot[2].Content)
	assert.Equal(t, "segunda resposta", snapshot[3].Content)
	for _, turn := range snapshot {
		assert.False(t, turn.Pending)
	}
}

func TestWireHistorySkipsPendingTurns(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Content: "oi"},
		{Role: RoleAssistant, Content: "parcial", Pending: true},
	}
	messages := wireHistory(turns)
	require.Len(t, messages, 1)
	assert.Equal(t, "oi", messages[0].Content)
}

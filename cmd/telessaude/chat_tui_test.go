// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telessaude/telessaude/pkg/chat"
)

// stubTokens always reports a live session.
type stubTokens struct{}

func (stubTokens) Token() (string, bool) { return "tok", true }
func (stubTokens) Invalidate()           {}

// stubStreamer completes immediately with a fixed answer.
type stubStreamer struct{ answer string }

func (s *stubStreamer) Stream(ctx context.Context, req chat.ExchangeRequest, emit chat.EmitFunc) error {
	emit(chat.StreamEvent{Kind: chat.EventComplete, Text: s.answer})
	return nil
}

func newTestModel() (*chatModel, *chat.ConversationStore) {
	store := chat.NewConversationStore()
	orch := chat.NewOrchestrator(store, stubTokens{}, func() chat.ExchangeStreamer {
		return &stubStreamer{answer: "resposta"}
	}, nil)
	return newChatModel(store, orch), store
}

func TestRenderTurnsEmptyConversation(t *testing.T) {
	out := renderTurns(nil, 80)
	assert.Contains(t, out, "Envie uma mensagem")
}

func TestRenderTurnsLabelsAndPending(t *testing.T) {
	turns := []chat.Turn{
		{Role: chat.RoleUser, Content: "estou com tosse"},
		{Role: chat.RoleAssistant, Pending: true},
	}
	out := renderTurns(turns, 80)
	assert.Contains(t, out, "Você")
	assert.Contains(t, out, "Médico")
	assert.Contains(t, out, "estou com tosse")
	assert.Contains(t, out, "...")
}

func TestClearCommandEmptiesConversation(t *testing.T) {
	model, store := newTestModel()
	store.Append(chat.NewUserTurn("oi"))

	model.input.SetValue("/clear")
	_, cmd := model.handleSubmit()
	assert.Nil(t, cmd)
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, model.input.Value())
}

func TestClearIsIgnoredWhileBusy(t *testing.T) {
	model, store := newTestModel()
	store.Append(chat.NewUserTurn("oi"))
	model.busy = true

	model.input.SetValue("/clear")
	model.handleSubmit()
	assert.Equal(t, 1, store.Len())
}

func TestExitCommandQuits(t *testing.T) {
	model, _ := newTestModel()

	model.input.SetValue("/exit")
	_, cmd := model.handleSubmit()
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSubmitMarksBusyAndBlursInput(t *testing.T) {
	model, _ := newTestModel()

	model.input.SetValue("estou com febre")
	_, cmd := model.handleSubmit()
	require.NotNil(t, cmd)
	assert.True(t, model.busy)
	assert.False(t, model.input.Focused())

	// The returned command runs the exchange to its terminal state.
	msg := cmd()
	done, ok := msg.(sendDoneMsg)
	require.True(t, ok)
	assert.NoError(t, done.err)
}

func TestSubmitWhileBusyIsIgnored(t *testing.T) {
	model, store := newTestModel()
	model.busy = true

	model.input.SetValue("segunda mensagem")
	_, cmd := model.handleSubmit()
	assert.Nil(t, cmd)
	assert.Equal(t, 0, store.Len())
}

func TestEmptySubmitIsIgnored(t *testing.T) {
	model, _ := newTestModel()

	model.input.SetValue("   ")
	_, cmd := model.handleSubmit()
	assert.Nil(t, cmd)
	assert.False(t, model.busy)
}

func TestSendDoneRestoresInput(t *testing.T) {
	model, _ := newTestModel()
	model.busy = true
	model.input.Blur()

	updated, _ := model.Update(sendDoneMsg{err: nil})
	m := updated.(*chatModel)
	assert.False(t, m.busy)
	assert.True(t, m.input.Focused())
	assert.Empty(t, m.status)
}

func TestSendDoneShowsAuthStatus(t *testing.T) {
	model, _ := newTestModel()
	model.busy = true

	updated, _ := model.Update(sendDoneMsg{err: chat.ErrNotAuthenticated})
	m := updated.(*chatModel)
	assert.Contains(t, m.status, "não autenticado")
}

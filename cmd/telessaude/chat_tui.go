// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/telessaude/telessaude/pkg/chat"
)

// =============================================================================
// Styles
// =============================================================================

var (
	userLabelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	doctorLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	pendingStyle     = lipgloss.NewStyle().Faint(true)
	statusStyle      = lipgloss.NewStyle().Faint(true)
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// =============================================================================
// Messages
// =============================================================================

// snapshotMsg carries a fresh conversation snapshot from the store.
type snapshotMsg []chat.Turn

// sendDoneMsg signals that an exchange reached a terminal state.
type sendDoneMsg struct{ err error }

// =============================================================================
// Model
// =============================================================================

// chatModel is the interactive conversation UI. It renders snapshots
// from the ConversationStore; it never mutates turns itself, so the
// transcript on screen is exactly the orchestrator's view of it.
type chatModel struct {
	store *chat.ConversationStore
	orch  *chat.Orchestrator

	snapshots   <-chan []chat.Turn
	unsubscribe func()
	cancelSend  context.CancelFunc

	viewport viewport.Model
	input    textinput.Model
	turns    []chat.Turn
	busy     bool
	status   string
	ready    bool
}

func newChatModel(store *chat.ConversationStore, orch *chat.Orchestrator) *chatModel {
	input := textinput.New()
	input.Placeholder = "Descreva seus sintomas... (/clear limpa, /exit sai)"
	input.CharLimit = 4096
	input.Focus()

	snapshots, unsubscribe := store.Subscribe()

	return &chatModel{
		store:       store,
		orch:        orch,
		snapshots:   snapshots,
		unsubscribe: unsubscribe,
		input:       input,
	}
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(m.waitSnapshot(), textinput.Blink)
}

// waitSnapshot blocks for the next store snapshot.
func (m *chatModel) waitSnapshot() tea.Cmd {
	return func() tea.Msg {
		snapshot, ok := <-m.snapshots
		if !ok {
			return nil
		}
		return snapshotMsg(snapshot)
	}
}

// sendCmd launches one exchange. The orchestrator owns the re-entrancy
// guard; the UI merely greys out the input while busy.
func (m *chatModel) sendCmd(text string) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelSend = cancel
	return func() tea.Msg {
		return sendDoneMsg{err: m.orch.Send(ctx, text)}
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		inputHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - inputHeight
		}
		m.input.Width = msg.Width - 4
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, m.quit()
		case tea.KeyEnter:
			return m.handleSubmit()
		}

	case snapshotMsg:
		m.turns = msg
		m.refreshViewport()
		return m, m.waitSnapshot()

	case sendDoneMsg:
		m.busy = false
		m.cancelSend = nil
		m.input.Focus()
		m.status = ""
		if errors.Is(msg.err, chat.ErrNotAuthenticated) {
			m.status = chat.FailureUnauthenticated.LocalizedMessage()
		}
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	switch text {
	case "/exit", "/quit":
		return m, m.quit()
	case "/clear":
		if !m.busy {
			m.store.Clear()
			m.status = ""
		}
		m.input.Reset()
		return m, nil
	}

	if m.busy {
		return m, nil
	}

	m.busy = true
	m.status = ""
	m.input.Reset()
	m.input.Blur()
	return m, m.sendCmd(text)
}

func (m *chatModel) quit() tea.Cmd {
	if m.cancelSend != nil {
		m.cancelSend()
	}
	m.unsubscribe()
	return tea.Quit
}

// refreshViewport re-renders the transcript and keeps the view pinned
// to the newest content.
func (m *chatModel) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTurns(m.turns, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m *chatModel) View() string {
	if !m.ready {
		return "carregando..."
	}

	var footer string
	switch {
	case m.status != "":
		footer = errorStyle.Render(m.status)
	case m.busy:
		footer = statusStyle.Render("o médico está respondendo...")
	default:
		footer = m.input.View()
	}

	return m.viewport.View() + "\n\n" + footer
}

// renderTurns formats the transcript for the viewport.
func renderTurns(turns []chat.Turn, width int) string {
	if len(turns) == 0 {
		return statusStyle.Render("Envie uma mensagem para começar a consulta.")
	}

	body := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		switch turn.Role {
		case chat.RoleUser:
			b.WriteString(userLabelStyle.Render("Você"))
		default:
			b.WriteString(doctorLabelStyle.Render("Médico"))
		}
		b.WriteString("\n")

		content := turn.Content
		if turn.Pending && content == "" {
			b.WriteString(pendingStyle.Render("..."))
		} else {
			b.WriteString(body.Render(content))
		}
		b.WriteString("\n")
	}
	return b.String()
}

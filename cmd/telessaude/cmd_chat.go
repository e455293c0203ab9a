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
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/telessaude/telessaude/cmd/telessaude/config"
	"github.com/telessaude/telessaude/pkg/chat"
)

var flagMessage string

func init() {
	chatCmd.Flags().StringVarP(&flagMessage, "message", "m", "", "envia uma única mensagem e imprime a resposta")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Conversar com o médico virtual",
	Long: `Abre a conversa interativa com o médico virtual. A resposta chega em
tempo real, conforme é gerada. Use /clear para limpar a conversa e
/exit para sair. Com --message envia uma única mensagem sem abrir a
interface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Close()

		tokens, _, err := newSession(logger)
		if err != nil {
			return err
		}

		store := chat.NewConversationStore()
		orch := chat.NewOrchestrator(store, tokens, newStreamerFactory(), logger)

		if flagMessage != "" {
			return runOneShot(store, orch, flagMessage)
		}
		if !isatty.IsTerminal(os.Stdout.Fd()) {
			return errors.New("sem terminal interativo; use --message para enviar uma única mensagem")
		}
		return runChatTUI(store, orch)
	},
}

// newStreamerFactory builds one single-use stream adapter per
// exchange, targeting the configured gateway.
func newStreamerFactory() chat.StreamerFactory {
	endpoint := config.Global.Gateway.BaseURL + "/api/chat"
	timeout := time.Duration(config.Global.Gateway.ExchangeTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = chat.DefaultExchangeTimeout
	}
	return func() chat.ExchangeStreamer {
		return chat.NewHTTPStreamer(endpoint, chat.WithTimeout(timeout))
	}
}

// runOneShot sends a single message and streams the answer to stdout.
//
// Progress snapshots are cumulative, so printing works by emitting the
// suffix beyond what was already written.
func runOneShot(store *chat.ConversationStore, orch *chat.Orchestrator, message string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshots, unsubscribe := store.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		done <- orch.Send(ctx, message)
	}()

	printed := 0
	flush := func(turns []chat.Turn) {
		if len(turns) < 2 {
			return
		}
		answer := turns[len(turns)-1].Content
		if len(answer) > printed {
			fmt.Print(answer[printed:])
			printed = len(answer)
		}
	}

	var sendErr error
	for {
		select {
		case snapshot := <-snapshots:
			flush(snapshot)
		case sendErr = <-done:
			// The terminal snapshot may still be queued.
			flush(store.Snapshot())
			if printed > 0 {
				fmt.Println()
			}
			if errors.Is(sendErr, context.Canceled) {
				return nil
			}
			var exErr *chat.ExchangeError
			if errors.As(sendErr, &exErr) {
				// The localized message was already printed as the
				// turn content; signal failure via exit code only.
				return fmt.Errorf("a conversa falhou (%s)", exErr.Category)
			}
			return sendErr
		}
	}
}

// runChatTUI runs the interactive bubbletea conversation.
func runChatTUI(store *chat.ConversationStore, orch *chat.Orchestrator) error {
	model := newChatModel(store, orch)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

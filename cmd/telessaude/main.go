// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// telessaude is the terminal client for the telemedicine chat service:
// account management, patient profile, and the streaming symptom chat.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telessaude/telessaude/cmd/telessaude/config"
	"github.com/telessaude/telessaude/pkg/auth"
	"github.com/telessaude/telessaude/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "telessaude",
	Short: "Cliente de telessaúde por linha de comando",
	Long: `telessaude conecta você ao serviço de telessaúde: crie sua conta,
preencha o perfil de paciente e converse com o médico virtual.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load()
	},
}

func main() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(patientCmd)
	rootCmd.AddCommand(chatCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Erro:", err)
		os.Exit(1)
	}
}

// newLogger builds the CLI logger from the loaded config.
func newLogger() *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Global.Log.Level),
		LogDir:  config.Global.Log.Dir,
		Service: "telessaude-cli",
		Quiet:   true, // CLI output goes through the UI, not the logger
	})
}

// newSession opens the token store and the account client for the
// configured gateway.
func newSession(logger *logging.Logger) (*auth.TokenStore, *auth.AccountClient, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, nil, err
	}
	tokens, err := auth.NewTokenStore(dir, logger)
	if err != nil {
		return nil, nil, err
	}
	client := auth.NewAccountClient(config.Global.Gateway.BaseURL, tokens, logger)
	return tokens, client, nil
}

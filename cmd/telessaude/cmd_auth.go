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
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	flagUsername string
	flagPassword string
)

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVarP(&flagUsername, "username", "u", "", "nome de usuário")
		cmd.Flags().StringVarP(&flagPassword, "password", "p", "", "senha (prefira o prompt interativo)")
	}
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Entrar na sua conta",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(false)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Criar uma nova conta",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(true)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sair da conta neste computador",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Close()

		_, client, err := newSession(logger)
		if err != nil {
			return err
		}
		client.Logout()
		fmt.Println("Sessão encerrada.")
		return nil
	},
}

func runAuth(register bool) error {
	logger := newLogger()
	defer logger.Close()

	_, client, err := newSession(logger)
	if err != nil {
		return err
	}

	username, password := flagUsername, flagPassword
	if username == "" || password == "" {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			return errors.New("informe --username e --password quando não houver terminal interativo")
		}
		if err := credentialsForm(&username, &password, register); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if register {
		if err := client.Register(ctx, username, password); err != nil {
			return err
		}
		fmt.Println("Conta criada. Você já está conectado.")
		fmt.Println("Use 'telessaude patient' para preencher seu perfil de paciente.")
		return nil
	}

	if err := client.Login(ctx, username, password); err != nil {
		return err
	}
	fmt.Println("Login realizado com sucesso.")
	return nil
}

// credentialsForm collects username and password interactively.
func credentialsForm(username, password *string, register bool) error {
	title := "Entrar"
	if register {
		title = "Criar conta"
	}

	confirm := *password
	fields := []huh.Field{
		huh.NewInput().
			Title("Usuário").
			Value(username).
			Validate(func(s string) error {
				if len(s) < 3 {
					return errors.New("o usuário precisa de ao menos 3 caracteres")
				}
				return nil
			}),
		huh.NewInput().
			Title("Senha").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(func(s string) error {
				if len(s) < 6 {
					return errors.New("a senha precisa de ao menos 6 caracteres")
				}
				return nil
			}),
	}
	if register {
		fields = append(fields, huh.NewInput().
			Title("Confirme a senha").
			EchoMode(huh.EchoModePassword).
			Value(&confirm))
	}

	form := huh.NewForm(huh.NewGroup(fields...).Title(title))
	if err := form.Run(); err != nil {
		return err
	}
	if register && confirm != *password {
		return errors.New("as senhas não conferem")
	}
	return nil
}

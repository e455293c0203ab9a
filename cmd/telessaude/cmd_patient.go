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
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/telessaude/telessaude/pkg/auth"
)

var flagEditPatient bool

func init() {
	patientCmd.Flags().BoolVarP(&flagEditPatient, "edit", "e", false, "editar o perfil de paciente")
}

var patientCmd = &cobra.Command{
	Use:   "patient",
	Short: "Ver ou editar seu perfil de paciente",
	Long: `Mostra o perfil de paciente armazenado no servidor. Com --edit (ou
quando ainda não existe perfil) abre o formulário de preenchimento. O
perfil alimenta o diagnóstico, então mantenha os dados atualizados.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Close()

		_, client, err := newSession(logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		current, err := client.Patient(ctx)
		switch {
		case err == nil && !flagEditPatient:
			printPatient(current)
			return nil
		case err == nil:
			// fall through to the form, pre-filled
		case errors.Is(err, auth.ErrSessionExpired):
			// No profile yet (or stale session). The form below will
			// surface a session error on save if the token is bad.
			current = auth.PatientInfo{}
		default:
			return err
		}

		updated, err := patientForm(current)
		if err != nil {
			return err
		}
		if err := client.SavePatient(ctx, updated); err != nil {
			return err
		}
		fmt.Println("Perfil de paciente salvo.")
		return nil
	},
}

func printPatient(p auth.PatientInfo) {
	fmt.Println("Perfil de paciente:")
	fmt.Printf("  Nome:   %s\n", p.Name)
	fmt.Printf("  Idade:  %d\n", p.Age)
	fmt.Printf("  Sexo:   %s\n", p.Gender)
	fmt.Printf("  Peso:   %.1f kg\n", p.Weight)
	fmt.Printf("  Altura: %.0f cm\n", p.Height)
	fmt.Println("\nUse 'telessaude patient --edit' para alterar.")
}

// patientForm collects the profile, pre-filled with current values.
func patientForm(current auth.PatientInfo) (auth.PatientInfo, error) {
	name := current.Name
	gender := current.Gender
	age := formatInt(current.Age)
	weight := formatFloat(current.Weight, 1)
	height := formatFloat(current.Height, 0)

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Nome completo").
			Value(&name).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("o nome é obrigatório")
				}
				return nil
			}),
		huh.NewInput().
			Title("Idade").
			Value(&age).
			Validate(validateIntRange(1, 130, "idade")),
		huh.NewSelect[string]().
			Title("Sexo").
			Options(
				huh.NewOption("Feminino", "feminino"),
				huh.NewOption("Masculino", "masculino"),
				huh.NewOption("Outro", "outro"),
			).
			Value(&gender),
		huh.NewInput().
			Title("Peso (kg)").
			Value(&weight).
			Validate(validateFloatRange(1, 500, "peso")),
		huh.NewInput().
			Title("Altura (cm)").
			Value(&height).
			Validate(validateFloatRange(30, 300, "altura")),
	).Title("Perfil de paciente"))

	if err := form.Run(); err != nil {
		return auth.PatientInfo{}, err
	}

	ageValue, _ := strconv.ParseInt(age, 10, 32)
	weightValue, _ := strconv.ParseFloat(weight, 32)
	heightValue, _ := strconv.ParseFloat(height, 32)

	return auth.PatientInfo{
		Name:   name,
		Age:    int32(ageValue),
		Gender: gender,
		Weight: float32(weightValue),
		Height: float32(heightValue),
	}, nil
}

func formatInt(v int32) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(int64(v), 10)
}

func formatFloat(v float32, decimals int) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', decimals, 32)
}

func validateIntRange(min, max int64, field string) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil || v < min || v > max {
			return fmt.Errorf("informe uma %s válida (%d a %d)", field, min, max)
		}
		return nil
	}
}

func validateFloatRange(min, max float64, field string) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil || v < min || v > max {
			return fmt.Errorf("informe um valor de %s válido (%.0f a %.0f)", field, min, max)
		}
		return nil
	}
}

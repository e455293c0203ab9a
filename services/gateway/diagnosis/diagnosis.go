// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diagnosis generates streamed medical guidance from a patient
// profile and conversation history.
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/telessaude/telessaude/pkg/logging"
	"github.com/telessaude/telessaude/services/gateway/datatypes"
)

// systemPromptTemplate is the doctor persona. Responses are plain
// pt-BR text so they can stream straight into a text/plain body.
const systemPromptTemplate = `Você é um médico que recebe informações de um paciente e os atuais
sintomas que ele está apresentando.

Você deve retornar um diagnóstico baseado nas informações recebidas.

Suas respostas devem ser sempre em português brasileiro, em texto
simples, sem formatação HTML ou Markdown.

Não alucine, apenas use as informações recebidas para retornar um
diagnóstico. Caso não seja possível retornar um diagnóstico, responda
que não há como determinar o diagnóstico.

Informações do paciente:
%s`

// =============================================================================
// Interfaces
// =============================================================================

// Diagnoser streams a diagnosis for the given patient and history.
//
// Deltas are INCREMENTAL text fragments in arrival order; the caller
// accumulates them. A non-nil error from emit aborts the stream (the
// client went away). Implementations must respect ctx cancellation.
type Diagnoser interface {
	Diagnose(ctx context.Context, patient datatypes.PatientInfo, messages []datatypes.Message, emit func(delta string) error) error
}

// =============================================================================
// OpenAI Implementation
// =============================================================================

// openAIDiagnoser drives a streamed chat completion.
type openAIDiagnoser struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *logging.Logger
}

var _ Diagnoser = (*openAIDiagnoser)(nil)

// NewOpenAIDiagnoser creates a Diagnoser backed by the OpenAI API.
// An empty model defaults to gpt-4o; temperature is fixed low because
// diagnosis should be conservative, not creative.
func NewOpenAIDiagnoser(apiKey, model string, logger *logging.Logger) Diagnoser {
	if model == "" {
		model = openai.GPT4o
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &openAIDiagnoser{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: 0.2,
		logger:      logger,
	}
}

// Diagnose streams completion deltas into emit until the model
// finishes or the context is cancelled.
func (d *openAIDiagnoser) Diagnose(ctx context.Context, patient datatypes.PatientInfo, messages []datatypes.Message, emit func(string) error) error {
	request := openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: d.temperature,
		Stream:      true,
		Messages:    buildPrompt(patient, messages),
	}

	stream, err := d.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive completion delta: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := emit(delta); err != nil {
			d.logger.Debug("diagnosis stream consumer gone", "error", err)
			return err
		}
	}
}

// buildPrompt folds the patient profile into the system prompt and
// appends the conversation history.
func buildPrompt(patient datatypes.PatientInfo, messages []datatypes.Message) []openai.ChatCompletionMessage {
	prompt := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	prompt = append(prompt, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(systemPromptTemplate, formatPatient(patient)),
	})
	for _, message := range messages {
		prompt = append(prompt, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	return prompt
}

// formatPatient renders the profile block the doctor prompt expects.
func formatPatient(patient datatypes.PatientInfo) string {
	return fmt.Sprintf("Nome: %s\nIdade: %d\nSexo: %s\nPeso: %.1fkg\nAltura: %.0fcm",
		patient.Name, patient.Age, patient.Gender, patient.Weight, patient.Height)
}

// =============================================================================
// Scripted Implementation
// =============================================================================

// ScriptedDiagnoser replays a fixed answer in small chunks. Used by
// tests and by offline gateway runs where no API key is configured.
type ScriptedDiagnoser struct {
	// Answer is the full text to stream.
	Answer string

	// ChunkSize controls fragment granularity; zero means 16 bytes.
	ChunkSize int

	// Err, when non-nil, is returned after streaming whatever fits
	// before the failure.
	Err error
}

var _ Diagnoser = (*ScriptedDiagnoser)(nil)

// Diagnose streams the scripted answer.
func (d *ScriptedDiagnoser) Diagnose(ctx context.Context, _ datatypes.PatientInfo, _ []datatypes.Message, emit func(string) error) error {
	chunkSize := d.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 16
	}
	remaining := d.Answer
	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := chunkSize
		if n > len(remaining) {
			n = len(remaining)
		}
		// Do not split a UTF-8 sequence across chunks.
		for n < len(remaining) && !utf8Start(remaining[n]) {
			n++
		}
		if err := emit(remaining[:n]); err != nil {
			return err
		}
		remaining = remaining[n:]
	}
	return d.Err
}

// utf8Start reports whether b begins a UTF-8 sequence.
func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

// NewOfflineDiagnoser returns a scripted engine with a fixed pt-BR
// notice, for gateway runs without an API key.
func NewOfflineDiagnoser() Diagnoser {
	return &ScriptedDiagnoser{
		Answer: strings.TrimSpace(`
Não há um motor de diagnóstico configurado neste servidor. Configure a
variável OPENAI_API_KEY para habilitar o diagnóstico automático.`),
	}
}

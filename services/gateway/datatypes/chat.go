// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request and response types for the gateway
// service, with validation limits on user-supplied payloads.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Payload Limits
// =============================================================================

const (
	// MaxMessageContentBytes caps a single message's content. Byte
	// length, not rune count, so oversized UTF-8 payloads cannot slip
	// under the limit.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest caps the conversation history per request.
	// The client sends full history on every turn, so this bounds
	// memory per request.
	MaxMessagesPerRequest = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// gatewayValidate is the validator for gateway datatypes, with the
// custom maxbytes validator registered in init.
var gatewayValidate *validator.Validate

func init() {
	gatewayValidate = validator.New()
	_ = gatewayValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxMessageContentBytes on a string field.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Types
// =============================================================================

// Message is one conversation turn on the wire.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// ChatRequest is the POST /api/chat body: the session token plus the
// full conversation history, newest message last.
//
// The response to a valid request is not JSON; it is a streamed
// text/plain body carrying the diagnosis incrementally.
type ChatRequest struct {
	Token    string    `json:"token" validate:"required"`
	Messages []Message `json:"messages" validate:"required,min=1,max=100,dive"`
}

// Validate checks the request against its validation tags.
func (r *ChatRequest) Validate() error {
	return gatewayValidate.Struct(r)
}

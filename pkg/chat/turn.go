// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chat implements the streaming chat delivery pipeline: the
// conversation state store, the HTTP streaming transport adapter, and
// the orchestrator that drives one exchange from user input to a
// finalized assistant turn.
//
// The pipeline is UI-agnostic. Callers observe the conversation through
// ConversationStore.Subscribe and submit messages through
// Orchestrator.Send; everything else (placeholder turns, incremental
// updates, failure mapping) happens inside the package.
package chat

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one entry in a conversation transcript.
//
// While an exchange is in flight the assistant's answer exists as a
// pending turn whose Content grows monotonically. Once the exchange
// reaches a terminal state the turn is settled and never mutated again.
type Turn struct {
	Role      Role
	Content   string
	CreatedAt time.Time

	// Pending marks the assistant placeholder that is still being
	// streamed into. Settled turns are immutable.
	Pending bool
}

// NewUserTurn builds a settled user turn stamped with the current time.
func NewUserTurn(content string) Turn {
	return Turn{
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewPendingAssistantTurn builds the empty assistant placeholder that
// receives streamed content.
func NewPendingAssistantTurn() Turn {
	return Turn{
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
		Pending:   true,
	}
}

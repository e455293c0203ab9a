// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

// WireMessage is one conversation turn as serialized on the wire.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExchangeRequest is the body of one POST /api/chat exchange. The full
// conversation history travels on every turn; the server holds no
// conversation state between requests.
type ExchangeRequest struct {
	Token    string        `json:"token"`
	Messages []WireMessage `json:"messages"`
}

// wireHistory converts settled turns into wire messages. Pending turns
// never appear on the wire; an unfinished answer is not history.
func wireHistory(turns []Turn) []WireMessage {
	messages := make([]WireMessage, 0, len(turns))
	for _, turn := range turns {
		if turn.Pending {
			continue
		}
		messages = append(messages, WireMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	return messages
}

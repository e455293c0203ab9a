// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import "sync"

// =============================================================================
// Conversation State Store
// =============================================================================

// ConversationStore holds the append-only conversation transcript and
// notifies subscribers with full snapshots on every mutation.
//
// The store is in-memory only. It is safe for concurrent use, and it
// never blocks on a slow subscriber: each subscriber channel coalesces
// to the latest snapshot, so a consumer that falls behind skips
// intermediate states but always converges on the current one.
type ConversationStore struct {
	mu      sync.Mutex
	turns   []Turn
	subs    map[int]chan []Turn
	nextSub int
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		subs: make(map[int]chan []Turn),
	}
}

// Append adds a turn to the end of the transcript and returns its
// index. Subscribers are notified.
func (s *ConversationStore) Append(turn Turn) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	s.notifyLocked()
	return len(s.turns) - 1
}

// ReplaceContentAt overwrites the content of the turn at index,
// preserving its role, timestamp, and pending state. This is the sole
// mutation path during streaming: each call carries the full
// accumulated text, not a delta.
//
// An out-of-range index is a silent no-op. The caller-held index can
// outlive the turn it pointed at (the conversation was cleared), and
// a late chunk must not corrupt whatever lives there now.
func (s *ConversationStore) ReplaceContentAt(index int, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.turns) {
		return
	}
	s.turns[index].Content = content
	s.notifyLocked()
}

// Finalize writes the terminal content of the turn at index and clears
// its pending flag. Out-of-range indexes are ignored.
func (s *ConversationStore) Finalize(index int, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.turns) {
		return
	}
	s.turns[index].Content = content
	s.turns[index].Pending = false
	s.notifyLocked()
}

// Settle clears the pending flag of the turn at index without touching
// its content. Used when an exchange is cancelled: whatever partial
// text the turn holds stays, but no further events will arrive for it.
func (s *ConversationStore) Settle(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.turns) {
		return
	}
	if !s.turns[index].Pending {
		return
	}
	s.turns[index].Pending = false
	s.notifyLocked()
}

// Clear empties the conversation and notifies subscribers.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = nil
	s.notifyLocked()
}

// Snapshot returns a copy of the current transcript.
func (s *ConversationStore) Snapshot() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of turns in the transcript.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Subscribe registers a snapshot feed. The channel immediately carries
// the current snapshot, then a new one after every mutation. The
// returned cancel function unregisters the subscriber and closes the
// channel; it is safe to call more than once.
func (s *ConversationStore) Subscribe() (<-chan []Turn, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++

	ch := make(chan []Turn, 1)
	ch <- s.snapshotLocked()
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// notifyLocked pushes the current snapshot to every subscriber,
// replacing any stale snapshot still sitting in the channel. Callers
// must hold s.mu.
func (s *ConversationStore) notifyLocked() {
	snapshot := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func (s *ConversationStore) snapshotLocked() []Turn {
	snapshot := make([]Turn, len(s.turns))
	copy(snapshot, s.turns)
	return snapshot
}

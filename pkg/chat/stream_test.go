// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedServer streams the given chunks as a plain text body, flushing
// after each one so the client observes them incrementally.
func chunkedServer(t *testing.T, chunks []string, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok, "test server must support flushing")

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		for _, chunk := range chunks {
			if delay > 0 {
				time.Sleep(delay)
			}
			_, _ = w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
}

func collectEvents(t *testing.T, streamer ExchangeStreamer, ctx context.Context, req ExchangeRequest) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	err := streamer.Stream(ctx, req, func(event StreamEvent) {
		events = append(events, event)
	})
	return events, err
}

func TestStreamEmitsCumulativeProgressThenComplete(t *testing.T) {
	server := chunkedServer(t, []string{"Olá", ", como posso", " ajudar?"}, 10*time.Millisecond)
	defer server.Close()

	streamer := NewHTTPStreamer(server.URL)
	events, err := collectEvents(t, streamer, context.Background(), ExchangeRequest{Token: "tok"})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Kind)
	assert.Equal(t, "Olá, como posso ajudar?", last.Text)

	// Progress text is cumulative and monotonically non-shrinking, and
	// each snapshot is a prefix of the final answer.
	prev := ""
	for _, event := range events[:len(events)-1] {
		require.Equal(t, EventProgress, event.Kind)
		assert.True(t, strings.HasPrefix(event.Text, prev),
			"progress text must extend the previous snapshot")
		assert.True(t, strings.HasPrefix(last.Text, event.Text))
		prev = event.Text
	}
}

func TestStreamSendsTokenAndHistory(t *testing.T) {
	var received ExchangeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	req := ExchangeRequest{
		Token: "session-token",
		Messages: []WireMessage{
			{Role: "user", Content: "estou com febre"},
		},
	}
	streamer := NewHTTPStreamer(server.URL)
	_, err := collectEvents(t, streamer, context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req, received)
}

func TestStreamStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		category FailureCategory
	}{
		{"unauthorized", http.StatusUnauthorized, FailureAuthRejected},
		{"bad request", http.StatusBadRequest, FailureBadRequest},
		{"server error", http.StatusInternalServerError, FailureUnknown},
		{"too many requests", http.StatusTooManyRequests, FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			streamer := NewHTTPStreamer(server.URL)
			events, err := collectEvents(t, streamer, context.Background(), ExchangeRequest{})
			require.NoError(t, err)
			require.Len(t, events, 1)
			require.Equal(t, EventError, events[0].Kind)
			assert.Equal(t, tt.category, events[0].Err.Category)
			assert.Equal(t, tt.status, events[0].Err.Status)
		})
	}
}

func TestStreamConnectionFailureIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening anymore

	streamer := NewHTTPStreamer(server.URL)
	events, err := collectEvents(t, streamer, context.Background(), ExchangeRequest{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventError, events[0].Kind)
	assert.Equal(t, FailureUnreachable, events[0].Err.Category)
	assert.Equal(t, 0, events[0].Err.Status)
}

func TestStreamBudgetExpiryIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	streamer := NewHTTPStreamer(server.URL, WithTimeout(50*time.Millisecond))
	events, err := collectEvents(t, streamer, context.Background(), ExchangeRequest{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventError, events[0].Kind)
	assert.Equal(t, FailureTimeout, events[0].Err.Category)
}

// Cancellation must suppress ALL further events, including the
// terminal one; the caller learns about the abort from the return
// value alone.
func TestStreamCancellationEmitsNothingFurther(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("começo"))
		flusher.Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	streamer := NewHTTPStreamer(server.URL)

	var events []StreamEvent
	err := streamer.Stream(ctx, ExchangeRequest{}, func(event StreamEvent) {
		events = append(events, event)
		cancel() // abort as soon as the first chunk arrives
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, events, 1)
	assert.Equal(t, EventProgress, events[0].Kind)
}

func TestStreamIsSingleUse(t *testing.T) {
	server := chunkedServer(t, []string{"resposta"}, 0)
	defer server.Close()

	streamer := NewHTTPStreamer(server.URL)
	_, err := collectEvents(t, streamer, context.Background(), ExchangeRequest{})
	require.NoError(t, err)

	err = streamer.Stream(context.Background(), ExchangeRequest{}, func(StreamEvent) {
		t.Fatal("consumed adapter must not emit")
	})
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestExchangeErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ExchangeError{Category: FailureUnknown, Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "unknown")
}

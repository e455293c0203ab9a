// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// =============================================================================
// Stream Events
// =============================================================================

// EventKind discriminates StreamEvent variants.
type EventKind int

const (
	// EventProgress carries the accumulated response text so far.
	EventProgress EventKind = iota

	// EventComplete carries the final, full response text. Always the
	// last event of a successful exchange.
	EventComplete

	// EventError carries the terminal failure. Always the last event
	// of a failed exchange.
	EventError
)

// StreamEvent is one observation of an in-flight exchange.
//
// Text is CUMULATIVE for both EventProgress and EventComplete: each
// event carries the whole response so far, never a delta. Consumers
// replace, they do not append.
type StreamEvent struct {
	Kind EventKind
	Text string
	Err  *ExchangeError
}

// EmitFunc receives stream events in order. It is called from the
// goroutine running Stream; implementations must not block on it.
type EmitFunc func(StreamEvent)

// =============================================================================
// Transport Stream Adapter
// =============================================================================

// DefaultExchangeTimeout is the hard budget for one exchange, matching
// the generating backend's own timeout.
const DefaultExchangeTimeout = 60 * time.Second

// streamChunkSize is the transport read granularity. Small enough that
// progress events feel incremental, large enough not to thrash.
const streamChunkSize = 256

// ExchangeStreamer runs one request/streaming-response exchange.
//
// The event sequence is finite and ordered: zero or more EventProgress,
// then exactly one of EventComplete or EventError. If ctx is cancelled
// the connection is aborted and NO further events are emitted, terminal
// or otherwise; Stream returns ctx's error instead.
//
// An instance serves exactly one exchange. A second Stream call fails
// with ErrStreamConsumed.
type ExchangeStreamer interface {
	Stream(ctx context.Context, req ExchangeRequest, emit EmitFunc) error
}

// httpStreamer implements ExchangeStreamer over a plain HTTP POST whose
// response body surfaces incrementally.
type httpStreamer struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	consumed atomic.Bool
}

var _ ExchangeStreamer = (*httpStreamer)(nil)

// StreamerOption configures an httpStreamer.
type StreamerOption func(*httpStreamer)

// WithHTTPClient overrides the HTTP client (for tests and custom
// transports). The client must NOT set its own Timeout; the adapter
// owns the exchange budget via context.
func WithHTTPClient(client *http.Client) StreamerOption {
	return func(s *httpStreamer) { s.client = client }
}

// WithTimeout overrides the 60s exchange budget.
func WithTimeout(d time.Duration) StreamerOption {
	return func(s *httpStreamer) { s.timeout = d }
}

// NewHTTPStreamer creates a single-use stream adapter targeting the
// given chat endpoint URL.
func NewHTTPStreamer(endpoint string, opts ...StreamerOption) ExchangeStreamer {
	s := &httpStreamer{
		endpoint: endpoint,
		client:   &http.Client{},
		timeout:  DefaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream runs the exchange.
//
// # Description
//
// Serializes the request, POSTs it, and reads the response body in
// small chunks, emitting a cumulative EventProgress per chunk and a
// terminal EventComplete at EOF. Failures (non-2xx status, connection
// errors, budget expiry) surface as a single terminal EventError; no
// transport error escapes as a returned error except cancellation and
// re-entry.
//
// # Inputs
//   - ctx: caller's context. Cancelling it aborts the connection and
//     suppresses all further events.
//   - req: token plus full conversation history.
//   - emit: event sink, called sequentially from this goroutine.
//
// # Outputs
//   - error: nil once a terminal event has been emitted;
//     ErrStreamConsumed on re-entry; ctx.Err() on cancellation.
func (s *httpStreamer) Stream(ctx context.Context, req ExchangeRequest, emit EmitFunc) error {
	if !s.consumed.CompareAndSwap(false, true) {
		return ErrStreamConsumed
	}

	body, err := json.Marshal(req)
	if err != nil {
		emit(StreamEvent{Kind: EventError, Err: &ExchangeError{
			Category: FailureUnknown,
			Cause:    fmt.Errorf("encode request: %w", err),
		}})
		return nil
	}

	// The budget is a child context so that a caller cancel and a
	// budget expiry remain distinguishable afterwards.
	budgetCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(budgetCtx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		emit(StreamEvent{Kind: EventError, Err: &ExchangeError{
			Category: FailureUnknown,
			Cause:    fmt.Errorf("build request: %w", err),
		}})
		return nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return s.emitTransportFailure(ctx, emit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		emit(StreamEvent{Kind: EventError, Err: &ExchangeError{
			Category: categorizeStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Cause:    fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
		}})
		return nil
	}

	var accumulated strings.Builder
	buf := make([]byte, streamChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			accumulated.Write(buf[:n])
			emit(StreamEvent{Kind: EventProgress, Text: accumulated.String()})
		}
		if readErr == io.EOF {
			emit(StreamEvent{Kind: EventComplete, Text: accumulated.String()})
			return nil
		}
		if readErr != nil {
			return s.emitTransportFailure(ctx, emit, readErr)
		}
	}
}

// emitTransportFailure classifies a connection-level failure. Caller
// cancellation emits nothing and returns the context error; everything
// else becomes a terminal EventError.
func (s *httpStreamer) emitTransportFailure(callerCtx context.Context, emit EmitFunc, err error) error {
	if callerCtx.Err() != nil {
		return callerCtx.Err()
	}
	category := FailureUnreachable
	if errors.Is(err, context.DeadlineExceeded) {
		category = FailureTimeout
	}
	emit(StreamEvent{Kind: EventError, Err: &ExchangeError{
		Category: category,
		Cause:    err,
	}})
	return nil
}

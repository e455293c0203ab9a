// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/telessaude/telessaude/pkg/logging"
	"github.com/telessaude/telessaude/services/gateway/datatypes"
	"github.com/telessaude/telessaude/services/gateway/diagnosis"
	"github.com/telessaude/telessaude/services/gateway/observability"
	"github.com/telessaude/telessaude/services/gateway/store"
)

// diagnosisBudget bounds one diagnosis stream server-side. The client
// applies the same 60s budget on its end.
const diagnosisBudget = 60 * time.Second

// Chat validates a conversation request, resolves the session and its
// patient profile, and streams the diagnosis as a plain text body.
//
// # Description
//
// The response is NOT JSON: on success the handler answers 200 with
// Content-Type text/plain and writes diagnosis fragments as they
// arrive, flushing after each one so the client sees the body grow.
// Status codes follow the original contract: 400 malformed or
// over-limit payload, 401 invalid session or missing patient profile,
// 500 when the engine fails before the first byte. A failure after
// bytes have been written can only truncate the body; the status is
// already on the wire.
func Chat(st *store.Store, diagnoser diagnosis.Diagnoser, logger *logging.Logger) gin.HandlerFunc {
	metrics := observability.InitMetrics()

	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		username, err := st.ResolveSession(req.Token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		patient, err := st.GetPatient(username)
		if err != nil {
			// A session without a profile cannot be diagnosed; the
			// client redirects to the profile form on 401.
			if !errors.Is(err, store.ErrPatientNotFound) {
				logger.Error("patient lookup failed", "error", err)
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), diagnosisBudget)
		defer cancel()

		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		metrics.ActiveDiagnoses.Inc()
		defer metrics.ActiveDiagnoses.Dec()
		start := time.Now()

		written := 0
		streamErr := diagnoser.Diagnose(ctx, patient, req.Messages, func(delta string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := c.Writer.WriteString(delta)
			if err != nil {
				return fmt.Errorf("write to client: %w", err)
			}
			written += n
			metrics.DiagnosisBytesTotal.Add(float64(n))
			c.Writer.Flush()
			return nil
		})

		status := "success"
		if streamErr != nil {
			status = "error"
			if errors.Is(streamErr, context.Canceled) {
				metrics.ClientDisconnectsTotal.Inc()
				logger.Debug("client disconnected mid-diagnosis", "username", username)
			} else {
				logger.Error("diagnosis failed", "error", streamErr, "bytes_written", written)
			}
			if !c.Writer.Written() {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Diagnosis failed"})
			}
		}
		metrics.DiagnosisDurationSeconds.WithLabelValues(status).Observe(time.Since(start).Seconds())

		if streamErr == nil && !c.Writer.Written() {
			// Empty diagnosis still needs a committed 200 body.
			c.Status(http.StatusOK)
			c.Writer.Flush()
		}
	}
}

// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telessaude/telessaude/pkg/logging"
	"github.com/telessaude/telessaude/services/gateway/datatypes"
	"github.com/telessaude/telessaude/services/gateway/store"
)

// GetPatient returns the patient profile for the session in the token
// query parameter. Both an invalid token and a missing profile answer
// 401, matching the contract the original client was written against.
func GetPatient(st *store.Store, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Token is required"})
			return
		}

		username, err := st.ResolveSession(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		patient, err := st.GetPatient(username)
		if err != nil {
			if !errors.Is(err, store.ErrPatientNotFound) {
				logger.Error("patient lookup failed", "error", err)
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.JSON(http.StatusOK, datatypes.GetPatientResponse{Patient: patient})
	}
}

// SavePatient stores the patient profile for the session in the body.
func SavePatient(st *store.Store, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SavePatientRequest
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

		if err := st.SavePatient(username, req.Patient); err != nil {
			logger.Error("patient save failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save patient"})
			return
		}

		c.JSON(http.StatusOK, datatypes.SavePatientResponse{Success: true})
	}
}

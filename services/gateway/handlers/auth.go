// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides the gateway's HTTP request handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telessaude/telessaude/pkg/logging"
	"github.com/telessaude/telessaude/services/gateway/datatypes"
	"github.com/telessaude/telessaude/services/gateway/store"
)

// Login authenticates credentials and issues a session token.
func Login(st *store.Store, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AuthRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		if err := st.Authenticate(req.Username, req.Password); err != nil {
			// Unknown user and wrong password respond identically.
			logger.Warn("login rejected", "username", req.Username)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		token, err := st.CreateSession(req.Username)
		if err != nil {
			logger.Error("session creation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		logger.Info("login succeeded", "username", req.Username)
		c.JSON(http.StatusOK, datatypes.AuthResponse{Token: token})
	}
}

// Register creates an account and logs the new user straight in.
func Register(st *store.Store, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AuthRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		if err := st.CreateUser(req.Username, req.Password); err != nil {
			if errors.Is(err, store.ErrUserExists) {
				c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
				return
			}
			logger.Error("registration failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
			return
		}

		token, err := st.CreateSession(req.Username)
		if err != nil {
			logger.Error("session creation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
			return
		}

		logger.Info("user registered", "username", req.Username)
		c.JSON(http.StatusOK, datatypes.AuthResponse{Token: token})
	}
}

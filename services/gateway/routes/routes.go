// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the gateway's endpoints to their handlers.
package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telessaude/telessaude/pkg/logging"
	"github.com/telessaude/telessaude/services/gateway/diagnosis"
	"github.com/telessaude/telessaude/services/gateway/handlers"
	"github.com/telessaude/telessaude/services/gateway/middleware"
	"github.com/telessaude/telessaude/services/gateway/store"
)

// SetupRoutes registers middleware and the full API surface on router.
func SetupRoutes(router *gin.Engine, st *store.Store, diagnoser diagnosis.Diagnoser, logger *logging.Logger) {
	router.Use(middleware.RequestLogger(logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	limiter := middleware.NewRateLimiter(10, 20)

	router.GET("/healthz", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(limiter.Middleware())
	{
		api.POST("/login", handlers.Login(st, logger))
		api.POST("/register", handlers.Register(st, logger))
		api.POST("/chat", handlers.Chat(st, diagnoser, logger))
		api.GET("/patient", handlers.GetPatient(st, logger))
		api.POST("/patient", handlers.SavePatient(st, logger))
	}
}

// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the CLI configuration, loaded from
// ~/.telessaude/config.yaml and created with defaults on first run.
package config

// TelessaudeConfig is the CLI's persisted configuration.
type TelessaudeConfig struct {
	// Gateway is the server the client talks to.
	Gateway GatewayConfig `yaml:"gateway"`

	// Log controls client-side logging.
	Log LogConfig `yaml:"log"`
}

type GatewayConfig struct {
	// BaseURL of the gateway, e.g. http://localhost:8080
	BaseURL string `yaml:"base_url"`

	// ExchangeTimeoutSeconds is the hard budget for one chat exchange.
	ExchangeTimeoutSeconds int `yaml:"exchange_timeout_seconds"`
}

type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`

	// Dir enables JSON file logging when set; ~ is expanded.
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() TelessaudeConfig {
	return TelessaudeConfig{
		Gateway: GatewayConfig{
			BaseURL:                "http://localhost:8080",
			ExchangeTimeoutSeconds: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

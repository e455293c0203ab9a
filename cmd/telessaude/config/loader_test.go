// Copyright (C) 2025 The telessaude authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:8080", cfg.Gateway.BaseURL)
	assert.Equal(t, 60, cfg.Gateway.ExchangeTimeoutSeconds)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestCreateDefaultWritesParseableYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, createDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg TelessaudeConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	data := []byte("gateway:\n  base_url: https://telessaude.example.org\n")

	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "https://telessaude.example.org", cfg.Gateway.BaseURL)
	assert.Equal(t, 60, cfg.Gateway.ExchangeTimeoutSeconds, "unset keys keep defaults")
}

// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch service.
type Config struct {
	// Postgres
	DatabaseURL string
	DBMaxConns  int32

	// Redis (blocklist cache); empty disables the cache.
	RedisURL string

	// Meta webhook verification secret (hub.verify_token).
	VerifyToken string

	// Fallback automation endpoint for tenants without their own.
	DefaultForwardURL string

	// HTTP
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL      string `yaml:"url"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Webhook struct {
		VerifyToken       string `yaml:"verify_token"`
		DefaultForwardURL string `yaml:"default_forward_url"`
	} `yaml:"webhook"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. The YAML file is optional — a deployment may run
// on environment variables alone.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL:       firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		DBMaxConns:        raw.Database.MaxConns,
		RedisURL:          firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		VerifyToken:       firstNonEmpty(raw.Webhook.VerifyToken, os.Getenv("VERIFY_TOKEN")),
		DefaultForwardURL: firstNonEmpty(raw.Webhook.DefaultForwardURL, os.Getenv("N8N_WEBHOOK_URL")),
		Port:              raw.Server.Port,
	}

	if cfg.DBMaxConns == 0 {
		cfg.DBMaxConns = 5
	}
	if cfg.Port == 0 {
		cfg.Port = envOrDefaultInt("PORT", 8000)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required, set it in the environment or config.yaml")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

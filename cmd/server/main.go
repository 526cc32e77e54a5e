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

// WhatsApp Dispatch Service
//
// Entry point for the inbound dispatch service. It:
//  1. Loads configuration from config.yaml / environment
//  2. Connects to PostgreSQL (fixed pool of 5) and optionally Redis
//  3. Initialises the tenant store, blocklist filter and message store
//  4. Serves the Meta webhook endpoints and forwards messages downstream
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/softpachuca/dispatch/internal/blocklist"
	"github.com/softpachuca/dispatch/internal/config"
	"github.com/softpachuca/dispatch/internal/message"
	"github.com/softpachuca/dispatch/internal/notify"
	"github.com/softpachuca/dispatch/internal/tenant"
	"github.com/softpachuca/dispatch/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting WhatsApp dispatch service")

	// Local development convenience; production sets real env vars.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.VerifyToken == "" {
		slog.Error("VERIFY_TOKEN is required, Meta webhook verification cannot work without it")
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"db_max_conns", cfg.DBMaxConns,
		"default_forward_url_set", cfg.DefaultForwardURL != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		slog.Error("invalid DATABASE_URL", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DBMaxConns

	pgPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis (optional blocklist cache) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The filter falls back to Postgres on every lookup anyway.
			slog.Warn("Redis unreachable, blocklist cache disabled", "error", err)
			rdb = nil
		} else {
			slog.Info("connected to Redis")
		}
	}

	// --- Stores ---
	tenants, err := tenant.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise tenant store", "error", err)
		os.Exit(1)
	}

	spam, err := blocklist.NewFilter(ctx, pgPool, rdb)
	if err != nil {
		slog.Error("failed to initialise blocklist filter", "error", err)
		os.Exit(1)
	}

	messages, err := message.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise message store", "error", err)
		os.Exit(1)
	}

	// --- Notifier ---
	notifier := notify.NewNotifier(notify.Config{
		DefaultURL: cfg.DefaultForwardURL,
	})

	// --- Webhook Server ---
	handler := webhook.NewHandler(tenants, spam, messages, notifier, cfg.VerifyToken)
	ready, err := webhook.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start webhook server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("dispatch service ready")

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stops the webhook server

	if rdb != nil {
		rdb.Close()
	}
	pgPool.Close()

	slog.Info("dispatch service stopped")
}

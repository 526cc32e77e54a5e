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

// Package blocklist filters spam senders against a Postgres deny-list,
// with a Redis read-through cache in front so the hot path rarely touches
// the database. Lookups fail open: an infrastructure hiccup lets a
// message through rather than rejecting legitimate traffic.
package blocklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	// cacheTTL bounds how long a stale verdict can live after an admin
	// blocks or unblocks a number on another instance.
	cacheTTL = 5 * time.Minute

	// keyPrefix namespaces blocklist keys in Redis.
	keyPrefix = "dispatch:blocklist:"
)

// Entry is one blocked phone number.
type Entry struct {
	Phone     string
	Reason    string
	CreatedAt time.Time
}

// Filter answers "is this sender blocked" against the blacklist table.
type Filter struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewFilter creates a blocklist filter. It ensures the blacklist table
// exists on creation. rdb may be nil, in which case every lookup goes to
// Postgres.
func NewFilter(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client) (*Filter, error) {
	f := &Filter{pool: pool, rdb: rdb}
	if err := f.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure blocklist schema: %w", err)
	}
	slog.Info("blocklist filter initialised")
	return f, nil
}

func (f *Filter) ensureSchema(ctx context.Context) error {
	_, err := f.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS blacklist (
			telefono   TEXT PRIMARY KEY,
			motivo     TEXT DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// IsBlocked reports whether the normalized phone number is on the
// deny-list. Cache and storage errors are logged and answered with false
// (fail-open): a false negative only lets one spam message through, while
// failing closed would drop legitimate traffic on every hiccup.
func (f *Filter) IsBlocked(ctx context.Context, phone string) bool {
	if f.rdb != nil {
		cached, err := f.rdb.Get(ctx, keyPrefix+phone).Result()
		switch {
		case err == nil:
			return cached == "1"
		case err != redis.Nil:
			slog.Warn("blocklist cache read failed, falling back to Postgres",
				"phone", phone,
				"error", err,
			)
		}
	}

	var one int
	err := f.pool.QueryRow(ctx, `
		SELECT 1 FROM blacklist WHERE telefono = $1
	`, phone).Scan(&one)

	var blocked bool
	switch {
	case err == nil:
		blocked = true
	case errors.Is(err, pgx.ErrNoRows):
		blocked = false
	default:
		slog.Error("blocklist lookup failed, failing open",
			"phone", phone,
			"error", err,
		)
		return false
	}

	f.cacheVerdict(ctx, phone, blocked)
	return blocked
}

// cacheVerdict stores both positive and negative answers so clean senders
// also skip the database.
func (f *Filter) cacheVerdict(ctx context.Context, phone string, blocked bool) {
	if f.rdb == nil {
		return
	}
	val := "0"
	if blocked {
		val = "1"
	}
	if err := f.rdb.Set(ctx, keyPrefix+phone, val, cacheTTL).Err(); err != nil {
		slog.Warn("blocklist cache write failed", "phone", phone, "error", err)
	}
}

// Block adds a phone number to the deny-list and invalidates its cache
// entry. Blocking an already-blocked number updates the reason.
func (f *Filter) Block(ctx context.Context, phone, reason string) error {
	_, err := f.pool.Exec(ctx, `
		INSERT INTO blacklist (telefono, motivo)
		VALUES ($1, $2)
		ON CONFLICT (telefono) DO UPDATE SET motivo = EXCLUDED.motivo
	`, phone, reason)
	if err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}

	if f.rdb != nil {
		if err := f.rdb.Del(ctx, keyPrefix+phone).Err(); err != nil {
			slog.Warn("blocklist cache invalidation failed", "phone", phone, "error", err)
		}
	}
	return nil
}

// List returns all blocked numbers ordered by when they were blocked.
func (f *Filter) List(ctx context.Context) ([]Entry, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT telefono, motivo, created_at FROM blacklist ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Phone, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

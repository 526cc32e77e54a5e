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

// Package message persists inbound messages exactly once. Deduplication
// relies solely on the unique constraint on the provider message id; Meta
// redelivers webhooks aggressively and multiple service instances may
// race on the same delivery, so the database is the only arbiter.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

// SaveOutcome reports how a save attempt resolved.
type SaveOutcome int

const (
	// Inserted means the message was new and persisted.
	Inserted SaveOutcome = iota
	// Duplicate means the message id was already stored.
	Duplicate
)

// Store writes inbound messages to the mensajes table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a message store backed by the given Postgres pool.
// It ensures the mensajes table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure message schema: %w", err)
	}
	slog.Info("message store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mensajes (
			id             BIGSERIAL PRIMARY KEY,
			negocio_id     BIGINT NOT NULL,
			message_id     TEXT NOT NULL UNIQUE,
			telefono       TEXT NOT NULL,
			nombre_cliente TEXT DEFAULT '',
			texto_mensaje  TEXT DEFAULT '',
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_mensajes_negocio ON mensajes(negocio_id);
	`)
	return err
}

// Save inserts one inbound message. The unique constraint on message_id
// guarantees that concurrent saves of the same delivery produce exactly
// one Inserted; the losers get Duplicate. Any other storage failure is
// returned as an error.
func (s *Store) Save(ctx context.Context, tenantID int64, messageID, phone, name, body string) (SaveOutcome, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mensajes (negocio_id, message_id, telefono, nombre_cliente, texto_mensaje)
		VALUES ($1, $2, $3, $4, $5)
	`, tenantID, messageID, phone, name, body)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Duplicate, nil
		}
		return 0, fmt.Errorf("insert message %s: %w", messageID, err)
	}

	return Inserted, nil
}

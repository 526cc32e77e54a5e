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

// Package tenant provides a Postgres-backed store for registered businesses.
// Each business owns one WhatsApp phone number; the Cloud API's
// phone_number_id is the channel id that multiplexes all tenants behind
// the single shared webhook endpoint.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tenant represents one registered business.
//
// Column names follow the production schema the admin tooling writes to
// (Spanish, including the historical "acces_token" spelling).
type Tenant struct {
	ID            int64
	Name          string
	PhoneNumberID string // Meta phone_number_id, unique per tenant
	WebhookURL    string // tenant automation endpoint; empty = use default
	AccessToken   string // opaque Meta token, relayed downstream
	Active        bool
	CreatedAt     time.Time
}

// Store provides tenant lookups and admin mutations in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a tenant store backed by the given Postgres pool.
// It ensures the negocios table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure tenant schema: %w", err)
	}
	slog.Info("tenant store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS negocios (
			id               BIGSERIAL PRIMARY KEY,
			nombre           TEXT NOT NULL,
			telefono_id_meta TEXT NOT NULL UNIQUE,
			webhook_n8n      TEXT DEFAULT '',
			acces_token      TEXT NOT NULL,
			activo           BOOLEAN DEFAULT TRUE,
			created_at       TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_negocios_activo ON negocios(activo);
	`)
	return err
}

// Resolve looks up the active tenant owning the given phone_number_id.
// An unknown or inactive channel id is a normal outcome and returns
// (nil, nil); only storage failures return an error.
func (s *Store) Resolve(ctx context.Context, phoneNumberID string) (*Tenant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, nombre, telefono_id_meta, webhook_n8n, acces_token, activo, created_at
		FROM negocios
		WHERE telefono_id_meta = $1 AND activo = TRUE
	`, phoneNumberID)
	return scanTenant(row)
}

// Insert registers a new business. The phone_number_id uniqueness
// constraint rejects double registration.
func (s *Store) Insert(ctx context.Context, t Tenant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO negocios (nombre, telefono_id_meta, webhook_n8n, acces_token, activo)
		VALUES ($1, $2, $3, $4, TRUE)
	`, t.Name, t.PhoneNumberID, t.WebhookURL, t.AccessToken)
	return err
}

// List returns all tenants, active or not, ordered by id.
func (s *Store) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, nombre, telefono_id_meta, webhook_n8n, acces_token, activo, created_at
		FROM negocios
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(
			&t.ID, &t.Name, &t.PhoneNumberID, &t.WebhookURL,
			&t.AccessToken, &t.Active, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// SetActive enables or disables a tenant without deleting its history.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE negocios SET activo = $1 WHERE id = $2
	`, active, id)
	return err
}

// scanTenant scans a single row into a Tenant, mapping no-rows to nil.
func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.PhoneNumberID, &t.WebhookURL,
		&t.AccessToken, &t.Active, &t.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

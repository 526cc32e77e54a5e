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

// WhatsApp Dispatch — Admin Command
//
// Standalone CLI for tenant and blocklist management. Runs against the
// same database as the dispatch service.
//
// Usage:
//
//	go run ./cmd/admin/ list-tenants
//	go run ./cmd/admin/ add-tenant --name "Barberia Centro" --phone-id 1234567890 --token EAAG...
//	go run ./cmd/admin/ block --phone 525512345678 --reason "spam loop"
//	go run ./cmd/admin/ list-blocked
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/softpachuca/dispatch/internal/blocklist"
	"github.com/softpachuca/dispatch/internal/config"
	"github.com/softpachuca/dispatch/internal/tenant"
)

func main() {
	// Plain text logging; this is an operator-facing CLI.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: connect to Postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if opt, err := redis.ParseURL(cfg.RedisURL); err == nil {
			rdb = redis.NewClient(opt)
			defer rdb.Close()
		}
	}

	switch command {
	case "list-tenants":
		err = listTenants(ctx, pgPool)
	case "add-tenant":
		err = addTenant(ctx, pgPool, args)
	case "block":
		err = blockNumber(ctx, pgPool, rdb, args)
	case "list-blocked":
		err = listBlocked(ctx, pgPool, rdb)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: admin <command> [flags]

Commands:
  list-tenants    List registered businesses
  add-tenant      Register a new business (--name, --phone-id, --token, [--webhook])
  block           Add a phone number to the blocklist (--phone, [--reason])
  list-blocked    List blocked phone numbers
`)
}

func listTenants(ctx context.Context, pool *pgxpool.Pool) error {
	store, err := tenant.NewStore(ctx, pool)
	if err != nil {
		return err
	}

	tenants, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	fmt.Printf("%-5s %-30s %-20s %-8s\n", "ID", "NAME", "PHONE NUMBER ID", "ACTIVE")
	fmt.Println(strings.Repeat("-", 70))
	for _, t := range tenants {
		active := "no"
		if t.Active {
			active = "yes"
		}
		fmt.Printf("%-5d %-30s %-20s %-8s\n", t.ID, t.Name, t.PhoneNumberID, active)
	}
	fmt.Printf("\n%d tenant(s)\n", len(tenants))
	return nil
}

func addTenant(ctx context.Context, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("add-tenant", flag.ExitOnError)
	name := fs.String("name", "", "Business name (required)")
	phoneID := fs.String("phone-id", "", "Meta phone_number_id (required)")
	token := fs.String("token", "", "Meta permanent access token (required)")
	webhookURL := fs.String("webhook", "", "Automation endpoint URL (default: derived from the name)")
	fs.Parse(args)

	if *name == "" || *phoneID == "" || *token == "" {
		return fmt.Errorf("--name, --phone-id and --token are required")
	}

	url := *webhookURL
	if url == "" {
		// Same convention the n8n workflows use: one webhook per business,
		// slugged from its name.
		slug := strings.ToLower(strings.ReplaceAll(*name, " ", "-"))
		url = fmt.Sprintf("http://cerebro-n8n:5678/webhook/%s", slug)
	}

	store, err := tenant.NewStore(ctx, pool)
	if err != nil {
		return err
	}

	if err := store.Insert(ctx, tenant.Tenant{
		Name:          *name,
		PhoneNumberID: *phoneID,
		WebhookURL:    url,
		AccessToken:   *token,
	}); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}

	fmt.Printf("Tenant %q registered\n", *name)
	fmt.Printf("  phone_number_id: %s\n", *phoneID)
	fmt.Printf("  webhook:         %s\n", url)
	return nil
}

func blockNumber(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client, args []string) error {
	fs := flag.NewFlagSet("block", flag.ExitOnError)
	phone := fs.String("phone", "", "Phone number to block, digits only (required)")
	reason := fs.String("reason", "", "Why the number is blocked")
	fs.Parse(args)

	if *phone == "" {
		return fmt.Errorf("--phone is required")
	}

	filter, err := blocklist.NewFilter(ctx, pool, rdb)
	if err != nil {
		return err
	}

	if err := filter.Block(ctx, *phone, *reason); err != nil {
		return err
	}

	fmt.Printf("Number %s blocked\n", *phone)
	return nil
}

func listBlocked(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client) error {
	filter, err := blocklist.NewFilter(ctx, pool, rdb)
	if err != nil {
		return err
	}

	entries, err := filter.List(ctx)
	if err != nil {
		return fmt.Errorf("list blocklist: %w", err)
	}

	fmt.Printf("%-16s %-40s %s\n", "PHONE", "REASON", "BLOCKED AT")
	fmt.Println(strings.Repeat("-", 80))
	for _, e := range entries {
		fmt.Printf("%-16s %-40s %s\n", e.Phone, e.Reason, e.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("\n%d blocked number(s)\n", len(entries))
	return nil
}

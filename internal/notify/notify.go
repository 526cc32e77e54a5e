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

// Package notify delivers normalized inbound messages to each tenant's
// automation endpoint (n8n). Delivery is best-effort at-least-once: a
// bounded retry loop with exponential backoff, and a final failure is
// logged and dropped — the webhook response to Meta never depends on it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const (
	// maxAttempts bounds total delivery attempts per message.
	maxAttempts = 3

	// attemptTimeout is the per-attempt HTTP timeout.
	attemptTimeout = 10 * time.Second
)

// Payload is the JSON body POSTed to the automation endpoint. Field names
// are the established n8n workflow contract.
type Payload struct {
	TenantName  string `json:"negocio"`
	Phone       string `json:"telefono"`
	SenderName  string `json:"nombre"`
	MessageType string `json:"tipo"`
	Body        string `json:"mensaje"`
	ChannelID   string `json:"id_emisor"`
	TenantToken string `json:"negocio_token"`
}

// Notifier posts payloads to tenant endpoints with retry.
type Notifier struct {
	client     *http.Client
	defaultURL string
	baseDelay  time.Duration
}

// Config holds notifier settings.
type Config struct {
	// DefaultURL is used when a tenant has no endpoint of its own.
	// Empty means messages for such tenants are silently not forwarded.
	DefaultURL string

	// BaseDelay scales the backoff between attempts (delay = BaseDelay *
	// 2^attempt). Zero means the production default of one second.
	BaseDelay time.Duration
}

// NewNotifier creates a notifier.
func NewNotifier(cfg Config) *Notifier {
	delay := cfg.BaseDelay
	if delay == 0 {
		delay = time.Second
	}
	return &Notifier{
		client:     &http.Client{Timeout: attemptTimeout},
		defaultURL: cfg.DefaultURL,
		baseDelay:  delay,
	}
}

// Send delivers the payload to endpointURL, falling back to the default
// endpoint when the tenant has none. No endpoint at all is a silent no-op.
// Retries up to maxAttempts on transport errors and non-200 responses,
// sleeping baseDelay*2^attempt between attempts. All outcomes are logged;
// exhaustion is dropped without informing the caller.
func (n *Notifier) Send(ctx context.Context, endpointURL string, p Payload) {
	target := endpointURL
	if target == "" {
		target = n.defaultURL
	}
	if target == "" {
		return
	}

	body, err := json.Marshal(p)
	if err != nil {
		slog.Error("marshal notification payload", "tenant", p.TenantName, "error", err)
		return
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if n.post(ctx, target, body, p.TenantName, attempt) {
			return
		}

		if attempt < maxAttempts-1 {
			wait := n.baseDelay * (1 << attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				slog.Warn("notification abandoned, context cancelled",
					"tenant", p.TenantName,
					"attempt", attempt+1,
				)
				return
			}
		}
	}

	slog.Error("notification dropped after retries exhausted",
		"tenant", p.TenantName,
		"url", target,
		"attempts", maxAttempts,
	)
}

// post performs a single delivery attempt. Returns true on HTTP 200.
func (n *Notifier) post(ctx context.Context, url string, body []byte, tenantName string, attempt int) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("build notification request", "url", url, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Error("notification attempt failed",
			"tenant", tenantName,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"error", err,
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("notification endpoint returned non-200",
			"tenant", tenantName,
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
		return false
	}

	slog.Info("notification delivered",
		"tenant", tenantName,
		"attempt", attempt+1,
	)
	return true
}

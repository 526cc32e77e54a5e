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

// Package webhook handles incoming WhatsApp Cloud API deliveries. Meta
// POSTs every message for every registered business to the one shared
// endpoint; the handler resolves the tenant from the channel id, filters
// spam, persists the message exactly once and forwards it to the tenant's
// automation endpoint.
//
// The POST endpoint always answers HTTP 200. A non-200 would make Meta
// re-deliver the same event with growing intensity, so even internal
// failures are acknowledged and reported only through the status body.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/softpachuca/dispatch/internal/message"
	"github.com/softpachuca/dispatch/internal/notify"
	"github.com/softpachuca/dispatch/internal/phone"
	"github.com/softpachuca/dispatch/internal/tenant"
	"github.com/softpachuca/dispatch/internal/wacloud"
)

// Dispatch status strings returned to Meta. These are contract: the
// provider ignores them, but operators grep for them in logs and the
// end-to-end tests assert on them.
const (
	StatusIgnored          = "ignored"
	StatusIgnoredNoContent = "ignored_no_message_content"
	StatusUnknownBusiness  = "unknown_business"
	StatusIgnoredNoID      = "ignored_no_id"
	StatusIgnoredSpam      = "ignored_spam"
	StatusReceived         = "received"
	StatusErrorHandled     = "error_handled"
)

// unknownSenderName is stored when the envelope carries no contact profile.
const unknownSenderName = "Desconocido"

// TenantResolver resolves a channel id to an active tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, phoneNumberID string) (*tenant.Tenant, error)
}

// SpamFilter answers whether a sender is blocked.
type SpamFilter interface {
	IsBlocked(ctx context.Context, phone string) bool
}

// MessageStore persists inbound messages idempotently.
type MessageStore interface {
	Save(ctx context.Context, tenantID int64, messageID, phone, name, body string) (message.SaveOutcome, error)
}

// Notifier forwards a payload to a tenant endpoint, best-effort.
type Notifier interface {
	Send(ctx context.Context, endpointURL string, p notify.Payload)
}

// Handler processes WhatsApp webhook deliveries.
type Handler struct {
	tenants     TenantResolver
	spam        SpamFilter
	store       MessageStore
	notifier    Notifier
	verifyToken string
}

// NewHandler creates a webhook handler.
func NewHandler(tenants TenantResolver, spam SpamFilter, store MessageStore, notifier Notifier, verifyToken string) *Handler {
	return &Handler{
		tenants:     tenants,
		spam:        spam,
		store:       store,
		notifier:    notifier,
		verifyToken: verifyToken,
	}
}

// ServeVerify handles the Meta webhook verification handshake
// (GET /webhook). Meta calls it once when the webhook URL is registered:
// if hub.verify_token matches our secret we must echo hub.challenge as
// plain text; anything else is rejected with 403. This is the only path
// in the service allowed to answer non-200.
func (h *Handler) ServeVerify(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if params.Get("hub.verify_token") != h.verifyToken {
		slog.Warn("webhook verification failed", "remote_addr", r.RemoteAddr)
		http.Error(w, "verification token mismatch", http.StatusForbidden)
		return
	}

	slog.Info("webhook verification succeeded")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(params.Get("hub.challenge")))
}

// ServeEvent handles message deliveries (POST /webhook). Each gate either
// passes the request to the next stage or short-circuits to a terminal
// status; none of the terminal statuses is an error to Meta.
func (h *Handler) ServeEvent(w http.ResponseWriter, r *http.Request) {
	dispatchID := uuid.New().String()

	// A panic anywhere in the pipeline must still produce a 200 so Meta
	// does not start a retry storm.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("dispatch panicked",
				"dispatch_id", dispatchID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			writeStatus(w, StatusErrorHandled)
		}
	}()

	status := h.dispatch(r.Context(), dispatchID, r)
	writeStatus(w, status)
}

// dispatch runs the gate sequence for one delivery and returns the
// terminal status.
func (h *Handler) dispatch(ctx context.Context, dispatchID string, r *http.Request) string {
	var payload wacloud.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Error("webhook body is not valid JSON",
			"dispatch_id", dispatchID,
			"error", err,
		)
		return StatusErrorHandled
	}

	value := payload.FirstValue()
	if value == nil {
		return StatusIgnored
	}

	// Status receipts (delivered/read) arrive on the same endpoint with
	// no messages array. Nothing to do with them.
	if len(value.Messages) == 0 {
		return StatusIgnoredNoContent
	}

	channelID := value.Metadata.PhoneNumberID
	biz, err := h.tenants.Resolve(ctx, channelID)
	if err != nil {
		// Fail closed: without a tenant there is no destination.
		slog.Error("tenant lookup failed",
			"dispatch_id", dispatchID,
			"channel_id", channelID,
			"error", err,
		)
		return StatusUnknownBusiness
	}
	if biz == nil {
		slog.Warn("delivery for unknown channel id",
			"dispatch_id", dispatchID,
			"channel_id", channelID,
		)
		return StatusUnknownBusiness
	}

	msg := &value.Messages[0]
	if msg.ID == "" {
		return StatusIgnoredNoID
	}

	sender := phone.Normalize(msg.From)
	senderName := value.SenderName(unknownSenderName)

	if h.spam.IsBlocked(ctx, sender) {
		slog.Warn("blocked sender dropped",
			"dispatch_id", dispatchID,
			"tenant", biz.Name,
			"phone", sender,
		)
		return StatusIgnoredSpam
	}

	storeBody, forwardBody := wacloud.Normalize(msg)

	outcome, err := h.store.Save(ctx, biz.ID, msg.ID, sender, senderName, storeBody)
	if err != nil {
		// Storage failure is non-fatal to the request, but without a
		// confirmed first insert we must not notify: a later redelivery
		// will get a clean save and forward exactly once.
		slog.Error("message save failed",
			"dispatch_id", dispatchID,
			"tenant", biz.Name,
			"message_id", msg.ID,
			"error", err,
		)
		return StatusReceived
	}
	if outcome == message.Duplicate {
		slog.Warn("duplicate delivery ignored",
			"dispatch_id", dispatchID,
			"message_id", msg.ID,
		)
		return StatusReceived
	}

	slog.Info("message stored",
		"dispatch_id", dispatchID,
		"tenant", biz.Name,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	// Awaited within the request: Meta gets its 200 only after delivery
	// was attempted or skipped. The outcome never changes the response.
	h.notifier.Send(ctx, biz.WebhookURL, notify.Payload{
		TenantName:  biz.Name,
		Phone:       sender,
		SenderName:  senderName,
		MessageType: msg.Type,
		Body:        forwardBody,
		ChannelID:   channelID,
		TenantToken: biz.AccessToken,
	})

	return StatusReceived
}

// ServeHealth answers liveness probes with a static body.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok", "mode": "multi-tenant-retry"}`))
}

// writeStatus writes the small JSON status object. Always HTTP 200.
func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// Serve starts the webhook HTTP server on the given port. It binds the
// port immediately and signals readiness via the returned channel before
// starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhook", handler.ServeVerify)
	mux.HandleFunc("POST /webhook", handler.ServeEvent)
	mux.HandleFunc("GET /health", handler.ServeHealth)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("webhook server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("webhook server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	return ready, nil
}

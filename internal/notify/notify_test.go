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

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// TestSend_Success verifies a single successful delivery and the Spanish
// field contract.
func TestSend_Success(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode notification body: %v", err)
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(Config{BaseDelay: time.Millisecond})
	n.Send(context.Background(), server.URL, Payload{
		TenantName:  "Barberia Centro",
		Phone:       "525512345678",
		SenderName:  "Maria",
		MessageType: "text",
		Body:        "quiero una cita",
		ChannelID:   "pn-1",
		TenantToken: "tok-1",
	})

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("attempts = %d, want 1", len(bodies))
	}

	got := bodies[0]
	want := map[string]string{
		"negocio":       "Barberia Centro",
		"telefono":      "525512345678",
		"nombre":        "Maria",
		"tipo":          "text",
		"mensaje":       "quiero una cita",
		"id_emisor":     "pn-1",
		"negocio_token": "tok-1",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %s = %q, want %q", k, got[k], v)
		}
	}
}

// TestSend_RetriesOnNon200 verifies exactly 3 attempts with exponential
// backoff when the endpoint keeps failing, and that exhaustion does not
// surface to the caller.
func TestSend_RetriesOnNon200(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	base := 20 * time.Millisecond
	n := NewNotifier(Config{BaseDelay: base})
	n.Send(context.Background(), server.URL, Payload{TenantName: "t"})

	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 3 {
		t.Fatalf("attempts = %d, want 3", len(hits))
	}

	// Delays follow base*2^attempt: ~1x base, then ~2x base.
	gap1 := hits[1].Sub(hits[0])
	gap2 := hits[2].Sub(hits[1])
	if gap1 < base {
		t.Errorf("first backoff = %v, want >= %v", gap1, base)
	}
	if gap2 < 2*base {
		t.Errorf("second backoff = %v, want >= %v", gap2, 2*base)
	}
}

// TestSend_RecoversMidRetry verifies delivery stops retrying once an
// attempt succeeds.
func TestSend_RecoversMidRetry(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		cur := attempts
		mu.Unlock()
		if cur < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(Config{BaseDelay: time.Millisecond})
	n.Send(context.Background(), server.URL, Payload{TenantName: "t"})

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

// TestSend_NoEndpointIsNoOp verifies the silent no-op when neither the
// tenant nor the config provides an endpoint.
func TestSend_NoEndpointIsNoOp(t *testing.T) {
	n := NewNotifier(Config{})
	// Must return immediately without panicking or dialing anything.
	n.Send(context.Background(), "", Payload{TenantName: "t"})
}

// TestSend_FallsBackToDefaultURL verifies the default endpoint is used
// when the tenant has none configured.
func TestSend_FallsBackToDefaultURL(t *testing.T) {
	var mu sync.Mutex
	hits := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(Config{DefaultURL: server.URL, BaseDelay: time.Millisecond})
	n.Send(context.Background(), "", Payload{TenantName: "t"})

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("default endpoint hits = %d, want 1", hits)
	}
}

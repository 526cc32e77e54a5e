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

package wacloud

import (
	"encoding/json"
	"testing"
)

// TestNormalize covers every message type branch.
func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		msg         *Message
		wantStore   string
		wantForward string
	}{
		{
			name:        "text",
			msg:         &Message{Type: "text", Text: &Text{Body: "hola, quiero una cita"}},
			wantStore:   "hola, quiero una cita",
			wantForward: "hola, quiero una cita",
		},
		{
			name:        "text with missing body struct",
			msg:         &Message{Type: "text"},
			wantStore:   "",
			wantForward: "",
		},
		{
			name: "button reply",
			msg: &Message{Type: "interactive", Interactive: &Interactive{
				Type:        "button_reply",
				ButtonReply: &Reply{ID: "btn-1", Title: "Agendar cita"},
			}},
			wantStore:   "Agendar cita",
			wantForward: "Agendar cita",
		},
		{
			name: "list reply",
			msg: &Message{Type: "interactive", Interactive: &Interactive{
				Type:      "list_reply",
				ListReply: &Reply{ID: "opt-2", Title: "Corte de cabello"},
			}},
			wantStore:   "Corte de cabello",
			wantForward: "Corte de cabello",
		},
		{
			name: "unknown interactive subtype",
			msg: &Message{Type: "interactive", Interactive: &Interactive{
				Type: "nfm_reply",
			}},
			wantStore:   "[INTERACTION UNKNOWN]",
			wantForward: "unknown_interaction",
		},
		{
			name:        "interactive without payload",
			msg:         &Message{Type: "interactive"},
			wantStore:   "[INTERACTION UNKNOWN]",
			wantForward: "unknown_interaction",
		},
		{
			name:        "image with caption",
			msg:         &Message{Type: "image", Image: &Media{Caption: "mi comprobante"}},
			wantStore:   "[IMAGE] mi comprobante",
			wantForward: "mi comprobante",
		},
		{
			name:        "image without caption",
			msg:         &Message{Type: "image", Image: &Media{}},
			wantStore:   "[IMAGE]",
			wantForward: "",
		},
		{
			name:        "audio",
			msg:         &Message{Type: "audio", Audio: &Media{ID: "media-1"}},
			wantStore:   "[AUDIO]",
			wantForward: "",
		},
		{
			name:        "document",
			msg:         &Message{Type: "document", Document: &Document{Filename: "factura.pdf"}},
			wantStore:   "[DOC] factura.pdf",
			wantForward: "factura.pdf",
		},
		{
			name:        "unrecognized type",
			msg:         &Message{Type: "sticker"},
			wantStore:   "[STICKER]",
			wantForward: "",
		},
		{
			name:        "empty type",
			msg:         &Message{},
			wantStore:   "[]",
			wantForward: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, forward := Normalize(tt.msg)
			if store != tt.wantStore {
				t.Errorf("store body = %q, want %q", store, tt.wantStore)
			}
			if forward != tt.wantForward {
				t.Errorf("forward body = %q, want %q", forward, tt.wantForward)
			}
		})
	}
}

// TestFirstValue verifies envelope traversal on empty and populated payloads.
func TestFirstValue(t *testing.T) {
	var empty Payload
	if v := empty.FirstValue(); v != nil {
		t.Errorf("FirstValue on empty payload = %+v, want nil", v)
	}

	noChanges := Payload{Entry: []Entry{{ID: "123"}}}
	if v := noChanges.FirstValue(); v != nil {
		t.Errorf("FirstValue with no changes = %+v, want nil", v)
	}

	raw := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "123",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "pn-1"},
					"messages": [{"id": "wamid.1", "from": "5215512345678", "type": "text", "text": {"body": "hola"}}]
				}
			}]
		}]
	}`
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	v := p.FirstValue()
	if v == nil {
		t.Fatal("FirstValue = nil, want value")
	}
	if v.Metadata.PhoneNumberID != "pn-1" {
		t.Errorf("phone_number_id = %q, want %q", v.Metadata.PhoneNumberID, "pn-1")
	}
	if len(v.Messages) != 1 || v.Messages[0].ID != "wamid.1" {
		t.Errorf("messages = %+v, want one message with id wamid.1", v.Messages)
	}
}

// TestSenderName verifies profile extraction and the fallback.
func TestSenderName(t *testing.T) {
	v := &Value{Contacts: []Contact{{Profile: Profile{Name: "Maria"}}}}
	if got := v.SenderName("Desconocido"); got != "Maria" {
		t.Errorf("SenderName = %q, want Maria", got)
	}

	v = &Value{}
	if got := v.SenderName("Desconocido"); got != "Desconocido" {
		t.Errorf("SenderName fallback = %q, want Desconocido", got)
	}
}

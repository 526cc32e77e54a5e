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

// Package wacloud defines the WhatsApp Business Cloud API webhook envelope
// and normalizes incoming messages into the two projections the pipeline
// needs: a display body for storage and a raw body for forwarding.
package wacloud

// Payload is the top-level webhook delivery from Meta.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents one business account entry.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps a single change notification.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value holds the message data for one change.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
}

// Metadata identifies the receiving business phone number. PhoneNumberID
// is the channel id used to multiplex tenants behind the shared endpoint.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact carries the sender's profile.
type Contact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

// Profile has the sender's display name.
type Profile struct {
	Name string `json:"name"`
}

// Message is one incoming message. Exactly one of the typed fields is
// populated, matching the Type tag.
type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Image       *Media       `json:"image,omitempty"`
	Audio       *Media       `json:"audio,omitempty"`
	Document    *Document    `json:"document,omitempty"`
}

// Text holds a plain text body.
type Text struct {
	Body string `json:"body"`
}

// Interactive holds a button or list reply.
type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

// Reply is the selected option of an interactive message.
type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Media holds image/audio metadata.
type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
}

// Document holds an attached file.
type Document struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
}

// FirstValue returns the value of the first change of the first entry, or
// nil when the envelope is empty. Meta batches are processed one value at
// a time.
func (p *Payload) FirstValue() *Value {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil
	}
	return &p.Entry[0].Changes[0].Value
}

// SenderName returns the display name of the first contact, or fallback
// when the envelope carries no profile.
func (v *Value) SenderName(fallback string) string {
	if len(v.Contacts) == 0 || v.Contacts[0].Profile.Name == "" {
		return fallback
	}
	return v.Contacts[0].Profile.Name
}

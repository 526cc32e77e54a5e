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

import "strings"

// Sentinels stored for message types that have no usable text content.
const (
	unknownInteractionBody    = "[INTERACTION UNKNOWN]"
	unknownInteractionForward = "unknown_interaction"
	audioBody                 = "[AUDIO]"
)

// Normalize maps a message onto its two projections: storeBody is the
// human-readable form persisted to the message table (media types are
// prefixed with a bracket tag), forwardBody is the raw content relayed to
// the tenant's automation endpoint.
//
// Normalize is total: unrecognized types and missing nested fields produce
// sentinel/empty values rather than errors, so a new message type rolled
// out by Meta can never fail a dispatch.
func Normalize(msg *Message) (storeBody, forwardBody string) {
	switch msg.Type {
	case "text":
		body := ""
		if msg.Text != nil {
			body = msg.Text.Body
		}
		return body, body

	case "interactive":
		if msg.Interactive == nil {
			return unknownInteractionBody, unknownInteractionForward
		}
		switch msg.Interactive.Type {
		case "button_reply":
			title := ""
			if msg.Interactive.ButtonReply != nil {
				title = msg.Interactive.ButtonReply.Title
			}
			return title, title
		case "list_reply":
			title := ""
			if msg.Interactive.ListReply != nil {
				title = msg.Interactive.ListReply.Title
			}
			return title, title
		default:
			return unknownInteractionBody, unknownInteractionForward
		}

	case "image":
		caption := ""
		if msg.Image != nil {
			caption = msg.Image.Caption
		}
		return strings.TrimSpace("[IMAGE] " + caption), caption

	case "audio":
		return audioBody, ""

	case "document":
		filename := ""
		if msg.Document != nil {
			filename = msg.Document.Filename
		}
		return "[DOC] " + filename, filename

	default:
		return "[" + strings.ToUpper(msg.Type) + "]", ""
	}
}

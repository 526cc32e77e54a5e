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

// Package phone normalizes Mexican WhatsApp phone numbers. The Cloud API
// reports mobile senders as 521XXXXXXXXXX (13 digits), but downstream
// systems and the blocklist store numbers without the mobile "1" marker.
package phone

import "strings"

// Normalize strips the "1" after the country code from Mexican mobile
// numbers: "521" + 10 digits becomes "52" + 10 digits. Anything else is
// returned unchanged.
func Normalize(raw string) string {
	if strings.HasPrefix(raw, "521") && len(raw) == 13 {
		return strings.Replace(raw, "521", "52", 1)
	}
	return raw
}

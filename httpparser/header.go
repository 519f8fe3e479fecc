// Copyright 2015 Matthew Holt and The Caddy Authors
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

package httpparser

import "strings"

// Headers is an ordered, case-insensitively-keyed header map: lookups
// match names case-insensitively, insertion order is preserved for
// iteration, and setting an existing name overwrites its value
// (last-value-wins) rather than appending a duplicate.
type Headers struct {
	names  []string // original-case names, in insertion order
	values map[string]string
}

// NewHeaders returns an empty Headers map.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string]string)}
}

// Set stores value under name, overwriting any prior value for the
// same name (case-insensitive).
func (h *Headers) Set(name, value string) {
	key := strings.ToLower(name)
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, name)
	}
	h.values[key] = value
}

// Get returns the value stored for name (case-insensitive) and whether
// it was present.
func (h *Headers) Get(name string) (string, bool) {
	v, ok := h.values[strings.ToLower(name)]
	return v, ok
}

// Del removes name (case-insensitive) from the map.
func (h *Headers) Del(name string) {
	key := strings.ToLower(name)
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			h.names = append(h.names[:i], h.names[i+1:]...)
			break
		}
	}
}

// Names returns the header names in insertion order.
func (h *Headers) Names() []string {
	return append([]string(nil), h.names...)
}

// Len returns the number of distinct header names stored.
func (h *Headers) Len() int { return len(h.names) }

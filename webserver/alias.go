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

package webserver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// aliasBody is the immutable payload of one alias generation. Grabbing
// an alias hands out a pointer to the same aliasBody that Set
// installed; Set never mutates an aliasBody in place; it swaps in a
// new one, so existing grabs keep seeing consistent bytes even across
// a concurrent Set.
type aliasBody struct {
	name         string
	bytes        []byte
	lastModified time.Time
	etag         string

	mu       sync.Mutex
	refcount int
}

// AliasCache is the miniserver's single-slot in-memory document cache:
// only one alias document is live at a time, swapped as a whole under
// the cache lock.
type AliasCache struct {
	mu      sync.Mutex
	current *aliasBody
}

// NewAliasCache returns an empty cache (no alias set).
func NewAliasCache() *AliasCache { return &AliasCache{} }

// Set installs bytes as the alias document named name, replacing
// whatever was there before. name must begin with "/". Existing grabs
// on a prior generation remain valid until released.
func (c *AliasCache) Set(name string, body []byte, lastModified time.Time) {
	ab := &aliasBody{
		name:         name,
		bytes:        append([]byte(nil), body...),
		lastModified: lastModified,
		etag:         uuid.NewString(),
		refcount:     1,
	}
	c.mu.Lock()
	c.current = ab
	c.mu.Unlock()
}

// Clear removes the alias document, if any.
func (c *AliasCache) Clear() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// Alias is a reader's handle on one generation of the alias document.
// Callers must call Release exactly once when done.
type Alias struct {
	body *aliasBody
}

// Grab returns a reader handle for name if it matches the currently
// installed alias, incrementing its refcount. The second return value
// is false if no alias is set or the name doesn't match.
func (c *AliasCache) Grab(name string) (*Alias, bool) {
	c.mu.Lock()
	ab := c.current
	c.mu.Unlock()
	if ab == nil || ab.name != name {
		return nil, false
	}
	ab.mu.Lock()
	ab.refcount++
	ab.mu.Unlock()
	return &Alias{body: ab}, true
}

// Release decrements the refcount on the alias generation this handle
// points to. The bytes are kept alive (by this handle's own reference)
// regardless of what the cache's "current" pointer now is.
func (a *Alias) Release() {
	a.body.mu.Lock()
	a.body.refcount--
	a.body.mu.Unlock()
}

func (a *Alias) Bytes() []byte           { return a.body.bytes }
func (a *Alias) LastModified() time.Time { return a.body.lastModified }
func (a *Alias) ETag() string            { return a.body.etag }
func (a *Alias) Name() string            { return a.body.name }
func (a *Alias) Len() int                { return len(a.body.bytes) }

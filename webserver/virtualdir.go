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
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// RequestInfo is the request-side context handed to a virtual
// directory's GetInfo: the control point's IP, its User-Agent, and a
// copy of every request header.
type RequestInfo struct {
	CtrlPtIP  net.IP
	UserAgent string
	Headers   map[string]string
}

// FileInfo is what a virtual directory's GetInfo reports about a path,
// what the resolver needs to build response headers for it.
// ExtraHeaders are surfaced verbatim on the response.
type FileInfo struct {
	IsDirectory  bool
	IsReadable   bool
	FileLength   int64
	LastModified time.Time
	ContentType  string
	ExtraHeaders map[string]string
}

// VirtualFile is the open handle a virtual directory's Open call
// returns; it is read, sought for Range requests, written for POST
// uploads, and closed.
type VirtualFile interface {
	io.ReadWriteCloser
	Seek(offset int64, whence int) (int64, error)
}

// VirtualDirCallbacks is the opaque, registered callback set behind a
// virtual directory entry.
type VirtualDirCallbacks interface {
	GetInfo(path string, cookie interface{}, req *RequestInfo) (*FileInfo, error)
	Open(path string, cookie interface{}, forWrite bool) (VirtualFile, error)
}

// VirtualDirEntry is one registered path prefix.
type VirtualDirEntry struct {
	Name      string
	Cookie    interface{}
	Callbacks VirtualDirCallbacks
}

// VirtualDirRegistry holds the set of registered virtual directories
// and performs longest-prefix matching over them. It is read-mostly:
// entries are registered during initialization and read concurrently
// by request handlers.
type VirtualDirRegistry struct {
	mu      sync.RWMutex
	entries []*VirtualDirEntry
}

// NewVirtualDirRegistry returns an empty registry.
func NewVirtualDirRegistry() *VirtualDirRegistry {
	return &VirtualDirRegistry{}
}

// Register adds a virtual directory at name (which should begin with
// "/") with the given cookie and callback set.
func (r *VirtualDirRegistry) Register(name string, cookie interface{}, cb VirtualDirCallbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &VirtualDirEntry{Name: name, Cookie: cookie, Callbacks: cb})
}

// Match returns the longest registered virtual directory entry whose
// name is a prefix of path, where the character immediately following
// the prefix in path is '/', '?', end-of-string, or the entry name
// itself already ends in '/'.
func (r *VirtualDirRegistry) Match(path string) (*VirtualDirEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *VirtualDirEntry
	for _, e := range r.entries {
		if !strings.HasPrefix(path, e.Name) {
			continue
		}
		if strings.HasSuffix(e.Name, "/") {
			if best == nil || len(e.Name) > len(best.Name) {
				best = e
			}
			continue
		}
		rest := path[len(e.Name):]
		if rest == "" || rest[0] == '/' || rest[0] == '?' {
			if best == nil || len(e.Name) > len(best.Name) {
				best = e
			}
		}
	}
	return best, best != nil
}

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

// Package httpparser implements the incremental HTTP/1.1 message
// parser, its URI decomposition, and the chunked transfer codec that
// the miniserver listener and HTTP client share.
package httpparser

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// AddressType classifies whether a URI was written in absolute or
// relative form on the wire.
type AddressType int

const (
	AddressRelative AddressType = iota
	AddressAbsolute
)

// PathType distinguishes a hierarchical ("abs-path") URI from an
// opaque one (e.g. "mailto:foo").
type PathType int

const (
	PathAbs PathType = iota
	PathOpaque
)

// URI is a decomposed HTTP(S) URI. HostText is the literal text as it
// appeared on the wire (possibly a DNS name); Addr is the numeric
// socket address resolved for it, set once at parse time.
type URI struct {
	Type     AddressType
	PathType PathType
	Scheme   string
	HostText string
	Addr     *net.TCPAddr
	Path     string
	Fragment string
}

// ParseURI decomposes raw into a URI. It performs exactly one name
// resolution of the host part; callers that only need the literal text
// (e.g. Host-header validation) should not call this for every request.
func ParseURI(raw string) (*URI, error) {
	u := &URI{Type: AddressRelative, PathType: PathAbs}

	rest := raw
	if idx := strings.Index(rest, "://"); idx >= 0 && isScheme(rest[:idx]) {
		u.Type = AddressAbsolute
		u.Scheme = strings.ToLower(rest[:idx])
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("uri: unsupported scheme %q", u.Scheme)
		}
		rest = rest[idx+3:]
		hostEnd := strings.IndexAny(rest, "/?#")
		if hostEnd < 0 {
			u.HostText = rest
			rest = ""
		} else {
			u.HostText = rest[:hostEnd]
			rest = rest[hostEnd:]
		}
		if u.HostText == "" {
			return nil, fmt.Errorf("uri: empty host")
		}
	}

	if fragIdx := strings.IndexByte(rest, '#'); fragIdx >= 0 {
		u.Fragment = rest[fragIdx+1:]
		rest = rest[:fragIdx]
	}

	if rest == "" {
		rest = "/"
	}
	if !strings.HasPrefix(rest, "/") {
		if u.Type == AddressAbsolute {
			u.PathType = PathOpaque
		} else {
			return nil, fmt.Errorf("uri: relative path must begin with '/'")
		}
	}
	u.Path = rest

	if u.HostText != "" {
		addr, err := resolveHostPort(u.HostText, u.Scheme)
		if err != nil {
			return nil, fmt.Errorf("uri: resolving host %q: %w", u.HostText, err)
		}
		u.Addr = addr
	}

	return u, nil
}

// Fix canonicalizes u in place and returns it, so that
// Fix(Fix(u)) == Fix(u): the empty path becomes "/", and the host text
// is lower-cased.
func Fix(u *URI) *URI {
	if u.Path == "" {
		u.Path = "/"
	}
	u.HostText = strings.ToLower(u.HostText)
	return u
}

func isScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

func resolveHostPort(hostport, scheme string) (*net.TCPAddr, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
		port = ""
	}
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q", port)
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return &net.TCPAddr{IP: ip, Port: portNum}, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %q", host)
	}
	return &net.TCPAddr{IP: ips[0], Port: portNum}, nil
}

// IsNumericLiteral reports whether hostport's host component is a
// numeric IPv4 or bracketed IPv6 literal. An IPv6 literal must be
// bracketed; a bare "::1" in a Host header is rejected. It does not
// perform any name resolution.
func IsNumericLiteral(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	bracketed := strings.HasPrefix(host, "[") || strings.HasPrefix(hostport, "[")
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip.To4() == nil && !bracketed {
		return false
	}
	return true
}

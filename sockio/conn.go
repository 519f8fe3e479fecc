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

// Package sockio provides the blocking-with-per-call-timeout socket
// primitives that the miniserver listener, the web resolver, and the
// HTTP client all read and write through. A Conn is a thin
// abstraction over net.Conn so TLS can be substituted transparently
// for the https scheme; this package never manages certificates
// itself (an external collaborator, per the miniserver's design scope).
package sockio

import (
	"net"
	"time"

	"github.com/upnpstack/miniserver/uerrors"
)

// Conn wraps a net.Conn (plain or TLS) with per-call read/write
// timeouts.
type Conn struct {
	NetConn      net.Conn
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New wraps an already-established net.Conn.
func New(c net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{NetConn: c, ReadTimeout: readTimeout, WriteTimeout: writeTimeout}
}

// Read fills buf as much as possible within the configured read
// timeout, returning however many bytes were read before the deadline
// or an error/EOF. Partial reads are not an error; the caller loops.
func (c *Conn) Read(buf []byte) (int, error) {
	if c.ReadTimeout > 0 {
		if err := c.NetConn.SetReadDeadline(time.Now().Add(c.ReadTimeout)); err != nil {
			return 0, uerrors.E("sockio.Read", uerrors.KindSocketRead, err)
		}
	}
	n, err := c.NetConn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return n, uerrors.E("sockio.Read", uerrors.KindTimeout, err)
		}
		return n, uerrors.E("sockio.Read", uerrors.KindSocketRead, err)
	}
	return n, nil
}

// ReadFull repeatedly calls Read, accumulating into buf until it is
// full, the deadline is hit, or an error occurs.
func (c *Conn) ReadFull(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}

// Write writes all of buf within the configured write timeout,
// accumulating partial writes.
func (c *Conn) Write(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		if c.WriteTimeout > 0 {
			if err := c.NetConn.SetWriteDeadline(time.Now().Add(c.WriteTimeout)); err != nil {
				return total, uerrors.E("sockio.Write", uerrors.KindSocketWrite, err)
			}
		}
		n, err := c.NetConn.Write(buf[total:])
		total += n
		if err != nil {
			if isTimeout(err) {
				return total, uerrors.E("sockio.Write", uerrors.KindTimeout, err)
			}
			return total, uerrors.E("sockio.Write", uerrors.KindSocketWrite, err)
		}
	}
	return total, nil
}

// Shutdown performs a graceful half-close in both directions before
// Close.
func (c *Conn) Shutdown() {
	if tc, ok := c.NetConn.(*net.TCPConn); ok {
		tc.CloseRead()
		tc.CloseWrite()
		return
	}
	c.NetConn.Close()
}

// Close releases the underlying connection. Callers should Shutdown
// first when a graceful close is possible.
func (c *Conn) Close() error {
	return c.NetConn.Close()
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

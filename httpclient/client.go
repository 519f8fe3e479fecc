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

// Package httpclient is the miniserver's outbound half: the same
// httpparser state machine and sockio primitives the listener uses,
// driven the other direction to issue a GET/HEAD/POST and read back a
// response.
package httpclient

import (
	"fmt"
	"sync/atomic"

	"github.com/upnpstack/miniserver/httpparser"
	"github.com/upnpstack/miniserver/sockio"
	"github.com/upnpstack/miniserver/uerrors"
)

// Sentinel body lengths for MakeRequest: UsingChunked emits
// Transfer-Encoding: chunked; UntilClose omits any length header and
// leaves the connection open until the caller closes it.
const (
	UsingChunked = -3
	UntilClose   = -1
)

// Client is a single request/response exchange over one connection.
// It is not safe for concurrent use; callers needing concurrency open
// one Client per in-flight request, matching how the miniserver's own
// request handlers are dispatched one goroutine per connection.
type Client struct {
	conn      *sockio.Conn
	req       *httpparser.Message
	reqHeader *httpparser.Headers

	parser     *httpparser.Parser
	cancelled  int32
	entitySent int64
}

// Open dials addr (host:port) and prepares to send a request. useTLS
// selects the https scheme.
func Open(addr string, useTLS bool) (*Client, error) {
	conn, err := sockio.Dial(addr, useTLS)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, reqHeader: httpparser.NewHeaders()}, nil
}

// OpenURL parses rawurl, resolves its host (once, at parse time), and
// dials the resolved address, with TLS when the scheme is https. The
// returned target is the path to pass to MakeRequest and host the
// Host-header value.
func OpenURL(rawurl string) (c *Client, host, target string, err error) {
	u, err := httpparser.ParseURI(rawurl)
	if err != nil {
		return nil, "", "", uerrors.E("httpclient.OpenURL", uerrors.KindInvalidURL, err)
	}
	if u.Addr == nil {
		return nil, "", "", uerrors.E("httpclient.OpenURL", uerrors.KindInvalidURL, nil)
	}
	c, err = Open(u.Addr.String(), u.Scheme == "https")
	if err != nil {
		return nil, "", "", err
	}
	return c, u.HostText, u.Path, nil
}

// Cancel asks any blocked Read/Write on this client to fail with
// uerrors.KindCancelled at the next opportunity, so long-lived
// downloads can be abandoned promptly.
func (c *Client) Cancel() { atomic.StoreInt32(&c.cancelled, 1) }

func (c *Client) isCancelled() bool { return atomic.LoadInt32(&c.cancelled) != 0 }

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// SetHeader stages a header to be sent with the next MakeRequest.
func (c *Client) SetHeader(name, value string) { c.reqHeader.Set(name, value) }

// MakeRequest writes the request line and staged headers for method
// and target (an absolute or relative URI string). bodyLen >= 0 emits a
// literal Content-Length; UsingChunked emits Transfer-Encoding: chunked;
// UntilClose emits neither.
func (c *Client) MakeRequest(method, host, target string, bodyLen int64) error {
	var b []byte
	b = append(b, method...)
	b = append(b, ' ')
	b = append(b, target...)
	b = append(b, " HTTP/1.1\r\n"...)
	b = append(b, "Host: "...)
	b = append(b, host...)
	b = append(b, "\r\n"...)

	for _, name := range c.reqHeader.Names() {
		v, _ := c.reqHeader.Get(name)
		b = append(b, name...)
		b = append(b, ": "...)
		b = append(b, v...)
		b = append(b, "\r\n"...)
	}

	switch {
	case bodyLen == UsingChunked:
		b = append(b, "Transfer-Encoding: chunked\r\n"...)
	case bodyLen >= 0:
		b = append(b, fmt.Sprintf("Content-Length: %d\r\n", bodyLen)...)
	}
	b = append(b, "\r\n"...)

	_, err := c.conn.Write(b)
	return err
}

// WriteBody sends one chunk of request body. If chunked is set (the
// request was made with UsingChunked), each call is framed as its own chunk;
// otherwise the bytes are written as-is and the caller is responsible
// for matching the Content-Length declared in MakeRequest.
func (c *Client) WriteBody(chunked bool, data []byte) error {
	if c.isCancelled() {
		return uerrors.E("httpclient.WriteBody", uerrors.KindCancelled, nil)
	}
	if chunked {
		header := fmt.Sprintf("%x\r\n", len(data))
		if _, err := c.conn.Write([]byte(header)); err != nil {
			return err
		}
		if _, err := c.conn.Write(data); err != nil {
			return err
		}
		_, err := c.conn.Write([]byte("\r\n"))
		return err
	}
	_, err := c.conn.Write(data)
	if err == nil {
		c.entitySent += int64(len(data))
	}
	return err
}

// EndRequest finalizes the request body. For chunked requests it
// writes the terminating zero-size chunk and empty trailer.
func (c *Client) EndRequest(chunked bool) error {
	if !chunked {
		return nil
	}
	_, err := c.conn.Write([]byte("0\r\n\r\n"))
	return err
}

// ReadResponseMeta reads and parses the status line and headers,
// leaving the entity (if any) for ReadResponseBody.
func (c *Client) ReadResponseMeta() (*httpparser.Message, error) {
	p := httpparser.NewParser(true, true)
	buf := make([]byte, 4096)
	for {
		if c.isCancelled() {
			return nil, uerrors.E("httpclient.ReadResponseMeta", uerrors.KindCancelled, nil)
		}
		res := p.Parse()
		switch res {
		case httpparser.ResultOk, httpparser.ResultIncompleteEntity:
			c.parser = p
			return p.Message(), nil
		case httpparser.ResultFailure, httpparser.ResultNoMatch:
			return nil, uerrors.E("httpclient.ReadResponseMeta", uerrors.KindBadResponse, nil)
		}
		if p.Position() != httpparser.PositionEntity {
			n, err := c.conn.Read(buf)
			if n > 0 {
				p.Append(buf[:n])
			}
			if err != nil {
				return nil, err
			}
			continue
		}
		c.parser = p
		return p.Message(), nil
	}
}

// ReadResponseBody drains the remainder of the response entity into
// sink, returning once the parser reaches PositionComplete. delivered
// counts entity bytes already surfaced, so each sink call sees only the
// new tail regardless of how the parser relocates the entity internally
// (chunk decoding rewrites the buffer when framing completes).
func (c *Client) ReadResponseBody(sink func([]byte) error) error {
	if c.parser == nil {
		return uerrors.E("httpclient.ReadResponseBody", uerrors.KindInternalError, nil)
	}
	buf := make([]byte, 32*1024)
	delivered := 0
	flush := func() error {
		ent := c.parser.Entity()
		if len(ent) > delivered {
			if err := sink(ent[delivered:]); err != nil {
				return err
			}
			delivered = len(ent)
			c.parser.Message().AmountDiscarded = int64(delivered)
		}
		return nil
	}
	for {
		if c.isCancelled() {
			return uerrors.E("httpclient.ReadResponseBody", uerrors.KindCancelled, nil)
		}
		if err := flush(); err != nil {
			return err
		}
		if c.parser.Position() == httpparser.PositionComplete {
			return nil
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.parser.Append(buf[:n])
		}
		if err != nil {
			c.parser.Finish()
			if c.parser.Position() == httpparser.PositionComplete {
				return flush()
			}
			return err
		}
		res := c.parser.Parse()
		if res == httpparser.ResultFailure {
			return uerrors.E("httpclient.ReadResponseBody", uerrors.KindBadResponse, nil)
		}
	}
}

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

package miniserver

import (
	"fmt"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/upnpstack/miniserver/httpparser"
	"github.com/upnpstack/miniserver/sockio"
	"github.com/upnpstack/miniserver/webserver"
)

// ConnectionConfig bounds how long a single request/response exchange
// is allowed to take and how large its entity may grow.
type ConnectionConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxContentLength int64
	Dispatcher       *Dispatcher
	Logger           *zap.Logger
}

func (c *ConnectionConfig) setDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = 16 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// handleConnection is the per-connection control flow: parse request
// headers, invoke the dispatcher, write the response, close. It is run
// as one thread-pool job per accepted TCP connection.
func handleConnection(nc net.Conn, cfg ConnectionConfig) {
	cfg.setDefaults()
	conn := sockio.New(nc, cfg.ReadTimeout, cfg.WriteTimeout)
	defer func() {
		conn.Shutdown()
		conn.Close()
	}()

	remoteAddr := nc.RemoteAddr()
	localAddr := nc.LocalAddr()

	parser := httpparser.NewParser(false, false)
	buf := make([]byte, 8192)
	sentContinue := false

	for {
		res := parser.Parse()
		// Reject an oversized body as soon as the declared length exceeds
		// the limit, before buffering the rest. A chunked body's decoded
		// total is only known, and checked, once its last chunk is decoded.
		if cfg.MaxContentLength > 0 && parser.Position() >= httpparser.PositionEntity {
			msg := parser.Message()
			if msg.ContentLength > cfg.MaxContentLength || int64(msg.EntityLen) > cfg.MaxContentLength {
				writeEntityTooLarge(conn, msg, cfg.MaxContentLength)
				return
			}
		}
		switch res {
		case httpparser.ResultOk:
			msg := parser.Message()
			cfg.Dispatcher.Dispatch(conn, msg, parser.Entity(), remoteAddr, localAddr)
			cfg.Logger.Debug("request handled",
				zap.Stringer("remote_addr", remoteAddr),
				zap.String("method", msg.Method.String()))
			return
		case httpparser.ResultContinue1:
			if !sentContinue {
				if _, err := conn.Write([]byte("HTTP/1.1 100 Continue\r\n\r\n")); err != nil {
					return
				}
				sentContinue = true
				// The entity may already be buffered; re-enter the parser
				// before blocking on another read.
				continue
			}
		case httpparser.ResultIncompleteEntity:
			// until-close body: keep reading; EOF finalizes it below.
		case httpparser.ResultNoMatch, httpparser.ResultFailure:
			writeBadRequest(conn)
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			parser.Append(buf[:n])
		}
		if err != nil {
			if res == httpparser.ResultIncompleteEntity {
				parser.Finish()
				if parser.Position() == httpparser.PositionComplete {
					cfg.Dispatcher.Dispatch(conn, parser.Message(), parser.Entity(), remoteAddr, localAddr)
				}
			}
			return
		}
	}
}

func writeBadRequest(conn *sockio.Conn) {
	body := "<html><body><h1>400 Bad Request</h1></body></html>"
	headers := fmt.Sprintf("HTTP/1.1 400 Bad Request\r\nDate: %s\r\nContent-Length: %d\r\n\r\n",
		time.Now().UTC().Format(webserver.HTTPTimeFormat), len(body))
	conn.Write([]byte(headers))
	conn.Write([]byte(body))
}

func writeEntityTooLarge(conn *sockio.Conn, msg *httpparser.Message, maxContentLength int64) {
	version := "1.0"
	if msg.HTTP11() {
		version = "1.1"
	}
	body := fmt.Sprintf("<html><body><h1>413 Request Entity Too Large</h1><p>limit is %s</p></body></html>",
		humanize.Bytes(uint64(maxContentLength)))
	headers := fmt.Sprintf("HTTP/%s 413 Request Entity Too Large\r\nDate: %s\r\nContent-Length: %d\r\n\r\n",
		version, time.Now().UTC().Format(webserver.HTTPTimeFormat), len(body))
	conn.Write([]byte(headers))
	conn.Write([]byte(body))
}

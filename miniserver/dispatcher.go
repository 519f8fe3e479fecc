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
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/upnpstack/miniserver/httpparser"
	"github.com/upnpstack/miniserver/webserver"
)

// SOAPHandler is the opaque SOAP action-invocation callback set,
// registered by the control subsystem.
type SOAPHandler interface {
	HandleSOAP(conn Responder, req *httpparser.Message) error
}

// GENAHandler is the opaque event-subscription/notification callback
// set, registered by the eventing subsystem.
type GENAHandler interface {
	HandleGENA(conn Responder, req *httpparser.Message) error
}

// Responder is what SOAP/GENA handlers and the Web path write their
// response onto; *sockio.Conn satisfies it.
type Responder interface {
	Write(b []byte) (int, error)
}

// HostValidateFunc is an externally registered DNS-rebinding override:
// if set, its verdict is terminal. rejectStatus is only
// meaningful when accept is false; it is written verbatim as the
// response status (e.g. 400 or a custom code).
type HostValidateFunc func(hostHeader, remoteAddr string) (accept bool, rejectStatus int)

// DispatcherConfig bounds a Dispatcher's behavior.
type DispatcherConfig struct {
	AllowLiteralHostRedirection bool
	Logger                      *zap.Logger
}

// Dispatcher routes parsed requests: once a connection's request
// headers are in, it validates the Host header and hands off to SOAP,
// GENA, or the web-server Resolver.
type Dispatcher struct {
	cfg          DispatcherConfig
	resolver     *webserver.Resolver
	soap         SOAPHandler
	gena         GENAHandler
	hostValidate HostValidateFunc
}

// NewDispatcher builds a Dispatcher over resolver. SOAP/GENA handlers
// and a host-validate override are registered afterward via
// RegisterSOAP/RegisterGENA/RegisterHostValidate since they are
// optional; a request whose callback set is absent gets a 500.
func NewDispatcher(cfg DispatcherConfig, resolver *webserver.Resolver) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, resolver: resolver}
}

func (d *Dispatcher) RegisterSOAP(h SOAPHandler)               { d.soap = h }
func (d *Dispatcher) RegisterGENA(h GENAHandler)               { d.gena = h }
func (d *Dispatcher) RegisterHostValidate(fn HostValidateFunc) { d.hostValidate = fn }

// routeKind names which callback set a method resolves to.
type routeKind int

const (
	routeNone routeKind = iota
	routeSOAP
	routeGENA
	routeWeb
)

// resolveRoute maps a method to its callback set, evaluated in a fixed
// order: POST|M-POST -> SOAP first (if registered); then
// NOTIFY|SUBSCRIBE|UNSUBSCRIBE -> GENA; then GET|POST|HEAD|SIMPLEGET ->
// Web. The SOAP-before-Web preference for POST is an explicit, visible
// evaluation order rather than an accidental fallthrough.
func (d *Dispatcher) resolveRoute(m httpparser.Method) routeKind {
	if (m == httpparser.MethodPost || m == httpparser.MethodMPost) && d.soap != nil {
		return routeSOAP
	}
	switch m {
	case httpparser.MethodNotify, httpparser.MethodSubscribe, httpparser.MethodUnsubscribe:
		if d.gena != nil {
			return routeGENA
		}
	}
	switch m {
	case httpparser.MethodGet, httpparser.MethodPost, httpparser.MethodHead, httpparser.MethodSimpleGet:
		return routeWeb
	}
	return routeNone
}

// Dispatch routes req to its callback set and writes the response onto
// conn. localAddr is the accepting socket's bound address, used to
// build the numeric Location on a literal-host redirect.
func (d *Dispatcher) Dispatch(conn Responder, req *httpparser.Message, entity []byte, remoteAddr, localAddr net.Addr) {
	if req.Method != httpparser.MethodSimpleGet {
		if ok, status := d.validateHost(req, remoteAddr, localAddr); !ok {
			d.writeSimpleStatus(conn, req, status, locationFor(status, localAddr))
			return
		}
	}

	switch d.resolveRoute(req.Method) {
	case routeSOAP:
		if err := d.soap.HandleSOAP(conn, req); err != nil {
			d.cfg.Logger.Warn("soap handler failed", zap.Error(err))
		}
	case routeGENA:
		if err := d.gena.HandleGENA(conn, req); err != nil {
			d.cfg.Logger.Warn("gena handler failed", zap.Error(err))
		}
	case routeWeb:
		d.dispatchWeb(conn, req, entity, remoteAddr)
	default:
		d.writeSimpleStatus(conn, req, 500, "")
	}
}

// validateHost is the DNS-rebinding defense. If an
// external HostValidateFunc is registered its verdict is terminal;
// otherwise the Host header's literal host must be a numeric IPv4/IPv6
// literal, else the response is 400 (default) or a 307 redirect to the
// numeric address if AllowLiteralHostRedirection is enabled.
func (d *Dispatcher) validateHost(req *httpparser.Message, remoteAddr, _ net.Addr) (bool, int) {
	host, _ := req.Headers.Get("Host")

	if d.hostValidate != nil {
		remote := ""
		if remoteAddr != nil {
			remote = remoteAddr.String()
		}
		accept, status := d.hostValidate(host, remote)
		if !accept {
			d.cfg.Logger.Warn("host validation rejected request",
				zap.String("host", host), zap.Int("status", status))
		}
		return accept, status
	}

	if httpparser.IsNumericLiteral(host) {
		return true, 0
	}

	if d.cfg.AllowLiteralHostRedirection {
		return false, 307
	}
	d.cfg.Logger.Warn("Possible DNS Rebind attack prevented.", zap.String("host", host))
	return false, 400
}

func locationFor(status int, localAddr net.Addr) string {
	if status != 307 || localAddr == nil {
		return ""
	}
	tcpAddr, ok := localAddr.(*net.TCPAddr)
	if !ok {
		return ""
	}
	return "http://" + net.JoinHostPort(tcpAddr.IP.String(), strconv.Itoa(tcpAddr.Port)) + "/"
}

// writeSimpleStatus writes a short, self-contained error response:
// status line, Date, Server, an optional Location (for 307 redirects),
// Content-Length, and an HTML one-liner body.
func (d *Dispatcher) writeSimpleStatus(conn Responder, req *httpparser.Message, status int, location string) {
	http11 := req != nil && req.HTTP11()
	body := fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", status, reasonPhraseFor(status))

	version := "1.0"
	if http11 {
		version = "1.1"
	}
	var headers []byte
	headers = append(headers, fmt.Sprintf("HTTP/%s %d %s\r\n", version, status, reasonPhraseFor(status))...)
	headers = append(headers, fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(webserver.HTTPTimeFormat))...)
	headers = append(headers, fmt.Sprintf("Server: %s\r\n", webserver.ServerString())...)
	if location != "" {
		headers = append(headers, fmt.Sprintf("Location: %s\r\n", location)...)
	}
	headers = append(headers, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))...)

	conn.Write(headers)
	conn.Write([]byte(body))
}

func reasonPhraseFor(status int) string {
	switch status {
	case 200:
		return "OK"
	case 307:
		return "Temporary Redirect"
	case 400:
		return "Bad Request"
	case 500:
		return "Internal Server Error"
	default:
		return "Error"
	}
}

// dispatchWeb runs the request through the webserver.Resolver and
// streams the response, handling the POST-to-file/virtualdir upload
// path.
func (d *Dispatcher) dispatchWeb(conn Responder, req *httpparser.Message, entity []byte, remoteAddr net.Addr) {
	resolved, err := d.resolver.ProcessRequest(req, remoteAddr)
	if err != nil {
		d.cfg.Logger.Warn("resolver failed", zap.Error(err))
		d.writeSimpleStatus(conn, req, 500, "")
		return
	}

	if resolved.Kind == webserver.KindPost {
		d.dispatchPost(conn, req, resolved, entity)
		return
	}

	if err := webserver.WriteHeaders(conn, resolved); err != nil {
		d.cfg.Logger.Warn("write headers failed", zap.Error(err))
		return
	}
	if err := webserver.WriteBody(conn, resolved); err != nil {
		d.cfg.Logger.Warn("write body failed", zap.Error(err))
	}
}

// dispatchPost streams the already chunk-decoded request entity into
// the resolved destination (virtual file or on-disk file), then writes
// the status response with an empty body.
func (d *Dispatcher) dispatchPost(conn Responder, req *httpparser.Message, resolved *webserver.Resolved, entity []byte) {
	dst, err := webserver.OpenPostDestination(resolved)
	if err != nil {
		d.cfg.Logger.Warn("open post destination failed", zap.Error(err))
		d.writeSimpleStatus(conn, req, 500, "")
		return
	}
	if err := webserver.ReadPostBody(dst, entity); err != nil {
		dst.Close()
		d.cfg.Logger.Warn("write post body failed", zap.Error(err))
		d.writeSimpleStatus(conn, req, 500, "")
		return
	}
	if err := dst.Close(); err != nil {
		d.cfg.Logger.Warn("close post destination failed", zap.Error(err))
		d.writeSimpleStatus(conn, req, 500, "")
		return
	}

	version := "1.0"
	if req.HTTP11() {
		version = "1.1"
	}
	headers := fmt.Sprintf("HTTP/%s %d %s\r\nDate: %s\r\nServer: %s\r\nContent-Length: 0\r\n\r\n",
		version, resolved.Status, reasonPhraseFor(resolved.Status),
		time.Now().UTC().Format(webserver.HTTPTimeFormat), webserver.ServerString())
	conn.Write([]byte(headers))
}

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
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/upnpstack/miniserver/httpparser"
	"github.com/upnpstack/miniserver/webserver"
)

func newTestRequest(t *testing.T, raw string) (*httpparser.Message, []byte) {
	t.Helper()
	p := httpparser.NewParser(false, false)
	p.Append([]byte(raw))
	res := p.Parse()
	require.Equal(t, httpparser.ResultOk, res)
	return p.Message(), p.Entity()
}

func newTestDispatcher(t *testing.T, cfg DispatcherConfig) (*Dispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	resolver := webserver.NewResolver(webserver.Config{DocumentRoot: dir}, webserver.NewAliasCache(), webserver.NewVirtualDirRegistry())
	return NewDispatcher(cfg, resolver), dir
}

type fakeHandler struct {
	called bool
}

func (f *fakeHandler) HandleSOAP(conn Responder, req *httpparser.Message) error {
	f.called = true
	conn.Write([]byte("soap handled"))
	return nil
}

func (f *fakeHandler) HandleGENA(conn Responder, req *httpparser.Message) error {
	f.called = true
	conn.Write([]byte("gena handled"))
	return nil
}

func TestResolveRoutePOSTPrefersSOAPWhenRegistered(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{})
	soap := &fakeHandler{}
	d.RegisterSOAP(soap)

	require.Equal(t, routeSOAP, d.resolveRoute(httpparser.MethodPost))
}

func TestResolveRoutePOSTFallsBackToWebWithoutSOAP(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{})
	require.Equal(t, routeWeb, d.resolveRoute(httpparser.MethodPost))
}

func TestResolveRouteNotifyRequiresGENA(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{})
	require.Equal(t, routeNone, d.resolveRoute(httpparser.MethodNotify))

	d.RegisterGENA(&fakeHandler{})
	require.Equal(t, routeGENA, d.resolveRoute(httpparser.MethodNotify))
}

func TestDispatchRoutesPostToSOAPOverWeb(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{})
	soap := &fakeHandler{}
	d.RegisterSOAP(soap)

	req, entity := newTestRequest(t, "POST /control HTTP/1.1\r\nHost: 127.0.0.1:49152\r\nContent-Length: 0\r\n\r\n")
	var buf bytes.Buffer
	d.Dispatch(&buf, req, entity, nil, nil)

	require.True(t, soap.called)
	require.Equal(t, "soap handled", buf.String())
}

func TestValidateHostRejectsNonNumericLiteral(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{AllowLiteralHostRedirection: false})
	req, _ := newTestRequest(t, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	ok, status := d.validateHost(req, nil, nil)
	require.False(t, ok)
	require.Equal(t, 400, status)
}

func TestValidateHostRedirectsWhenAllowed(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{AllowLiteralHostRedirection: true})
	req, _ := newTestRequest(t, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	ok, status := d.validateHost(req, nil, nil)
	require.False(t, ok)
	require.Equal(t, 307, status)
}

func TestValidateHostAcceptsNumericLiteral(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{})
	req, _ := newTestRequest(t, "GET / HTTP/1.1\r\nHost: 127.0.0.1:49152\r\n\r\n")

	ok, _ := d.validateHost(req, nil, nil)
	require.True(t, ok)
}

func TestDispatchWebServesFilesystemGet(t *testing.T) {
	d, dir := newTestDispatcher(t, DispatcherConfig{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi\n"), 0o644))

	req, entity := newTestRequest(t, "GET /hello.txt HTTP/1.1\r\nHost: 127.0.0.1:49152\r\n\r\n")
	var buf bytes.Buffer
	d.Dispatch(&buf, req, entity, nil, nil)

	require.Contains(t, buf.String(), "200 OK")
	require.Contains(t, buf.String(), "hi\n")
}

func TestDispatchWritesLocationOnRedirect(t *testing.T) {
	d, _ := newTestDispatcher(t, DispatcherConfig{AllowLiteralHostRedirection: true})
	req, entity := newTestRequest(t, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")
	local := &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 49152}

	var buf bytes.Buffer
	d.Dispatch(&buf, req, entity, nil, local)

	require.Contains(t, buf.String(), "307 Temporary Redirect")
	require.Contains(t, buf.String(), "Location: http://192.0.2.1:49152/")
}

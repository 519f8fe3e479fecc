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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildStatusLineAndDate(t *testing.T) {
	ctx := &Context{StatusCode: 200, Reason: "OK", HTTP11: true}
	out, err := Build(Pipeline{CodeStatusLine, CodeDateNow, CodeCRLF}, ctx)
	require.NoError(t, err)

	s := string(out)
	require.True(t, strings.HasPrefix(s, "HTTP/1.1 200 OK\r\n"))
	require.Contains(t, s, "Date: ")
	require.True(t, strings.Contains(s, "GMT\r\n"), "HTTP-date must use the GMT zone: %q", s)
	require.True(t, strings.HasSuffix(s, "\r\n\r\n"))
}

func TestBuildContentRangeArithmetic(t *testing.T) {
	send := &SendInstruction{RangeActive: true, RangeFirst: 1, RangeLast: 2, TotalLength: 3}
	ctx := &Context{StatusCode: 206, Reason: "Partial Content", HTTP11: true, Send: send}
	out, err := Build(Pipeline{CodeContentRange}, ctx)
	require.NoError(t, err)
	require.Contains(t, string(out), "Content-Range: bytes 1-2/3\r\n")
	require.Contains(t, string(out), "Content-Length: 2\r\n")
}

func TestBuildContentLengthAddsAcceptRanges(t *testing.T) {
	send := &SendInstruction{ReadSendSize: 3}
	ctx := &Context{Send: send}
	out, err := Build(Pipeline{CodeContentLength}, ctx)
	require.NoError(t, err)
	require.Contains(t, string(out), "Content-Length: 3\r\n")
	require.Contains(t, string(out), "Accept-Ranges: bytes\r\n")
}

func TestBuildContentLengthSkipsSentinels(t *testing.T) {
	send := &SendInstruction{ReadSendSize: UsingChunked}
	out, err := Build(Pipeline{CodeContentLength}, &Context{Send: send})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestBuildContentLanguageRequiresAcceptLanguage(t *testing.T) {
	ctx := &Context{ContentLanguage: "en"}
	out, err := Build(Pipeline{CodeContentLanguage}, ctx)
	require.NoError(t, err)
	require.Empty(t, out, "Content-Language must be omitted when the client sent no Accept-Language")

	ctx.AcceptLanguage = "en-US"
	out, err = Build(Pipeline{CodeContentLanguage}, ctx)
	require.NoError(t, err)
	require.Equal(t, "Content-Language: en\r\n", string(out))
}

func TestBuildLastModifiedAt(t *testing.T) {
	at := time.Date(1994, 11, 6, 8, 49, 37, 0, time.UTC)
	out, err := Build(Pipeline{CodeDateAt}, &Context{At: at})
	require.NoError(t, err)
	require.Equal(t, "Last-Modified: Sun, 06 Nov 1994 08:49:37 GMT\r\n", string(out))
}

func TestBuildConnectionCloseOnlyForHTTP11(t *testing.T) {
	out, err := Build(Pipeline{CodeConnectionClose}, &Context{HTTP11: false, ConnectionClose: true})
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = Build(Pipeline{CodeConnectionClose}, &Context{HTTP11: true, ConnectionClose: true})
	require.NoError(t, err)
	require.Equal(t, "Connection: close\r\n", string(out))
}

func TestBuildRequestLineWithHost(t *testing.T) {
	ctx := &Context{Method: "GET", RequestURI: "/desc.xml", HTTP11: true, Host: "192.0.2.7:49152"}
	out, err := Build(Pipeline{CodeRequestLineHost}, ctx)
	require.NoError(t, err)
	require.Equal(t, "GET /desc.xml HTTP/1.1\r\nHost: 192.0.2.7:49152\r\n", string(out))
}

func TestServerStringCarriesSDKBanner(t *testing.T) {
	require.Contains(t, ServerString(), "UPnP/1.0, Portable SDK for UPnP devices/")
}

func TestContentTypeForUnknownExtension(t *testing.T) {
	require.Equal(t, "application/octet-stream", ContentTypeFor("/payload.weird"))
	require.Equal(t, "application/octet-stream", ContentTypeFor("/noextension"))
	require.Equal(t, "text/plain", ContentTypeFor("/hello.TXT"))
	require.Equal(t, `text/xml; charset="utf-8"`, ContentTypeFor("/desc.xml"))
}

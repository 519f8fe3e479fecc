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
	"bytes"
	"fmt"
	"runtime"
	"time"

	"github.com/upnpstack/miniserver/uerrors"
)

// sdkVersion is the build-time version string reported in the Server
// and User-Agent banner (ServerString).
var sdkVersion = "1.0.0"

// HTTPTimeFormat is the RFC 1123 HTTP-date layout with the literal GMT
// zone the wire format requires; time.RFC1123 against a UTC time would
// render "UTC" instead.
const HTTPTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Code is one message-formatter directive: each letter maps to a
// distinct header builder, assembled into response or request heads
// by Build.
type Code byte

const (
	CodeStatusLine      Code = 'R'
	CodeRequestLine     Code = 'Q'
	CodeRequestLineHost Code = 'q'
	CodeSimpleBody      Code = 'B'
	CodeRawBuffer       Code = 'b'
	CodeString          Code = 's'
	CodeCRLF            Code = 'c'
	CodeDateNow         Code = 'D'
	CodeDateAt          Code = 't'
	CodeConnectionClose Code = 'C'
	CodeTransferChunked Code = 'K'
	CodeContentRange    Code = 'G'
	CodeContentLength   Code = 'N'
	CodeContentType     Code = 'T'
	CodeServer          Code = 'S'
	CodeUserAgent       Code = 'U'
	CodeXUserAgent      Code = 'X'
	CodeContentLanguage Code = 'L'
	CodeExtraHeaders    Code = 'E'
)

// Pipeline is an ordered list of Codes evaluated by Build.
type Pipeline []Code

// The four response header-set variants, keyed by
// (range-active, chunk-active).
var (
	PipelineNoRangeNoChunk = Pipeline{CodeStatusLine, CodeDateNow, CodeServer, CodeContentType, CodeContentLanguage, CodeContentLength, CodeExtraHeaders, CodeCRLF}
	PipelineRangeNoChunk   = Pipeline{CodeStatusLine, CodeDateNow, CodeServer, CodeContentType, CodeContentLanguage, CodeContentRange, CodeExtraHeaders, CodeCRLF}
	PipelineNoRangeChunk   = Pipeline{CodeStatusLine, CodeDateNow, CodeServer, CodeContentType, CodeContentLanguage, CodeTransferChunked, CodeExtraHeaders, CodeCRLF}
	PipelineRangeChunk     = Pipeline{CodeStatusLine, CodeDateNow, CodeServer, CodeContentType, CodeContentLanguage, CodeContentRange, CodeTransferChunked, CodeExtraHeaders, CodeCRLF}
)

// Context carries everything a Pipeline might need to render headers
// for one response.
type Context struct {
	StatusCode int
	Reason     string
	HTTP11     bool
	Method     string
	RequestURI string
	Host       string

	ContentType     string
	ContentLanguage string
	AcceptLanguage  string

	Send *SendInstruction

	ConnectionClose bool

	Body []byte // used by CodeSimpleBody/CodeRawBuffer
	Text string // used by CodeString
	At   time.Time
}

// Formatter renders a Pipeline against a Context into a growable
// buffer.
type Formatter struct {
	buf bytes.Buffer
}

// Build runs codes against ctx, returning the assembled header block.
func Build(codes Pipeline, ctx *Context) ([]byte, error) {
	f := &Formatter{}
	for _, c := range codes {
		if err := f.apply(c, ctx); err != nil {
			return nil, err
		}
	}
	return f.buf.Bytes(), nil
}

func (f *Formatter) apply(c Code, ctx *Context) error {
	switch c {
	case CodeStatusLine:
		fmt.Fprintf(&f.buf, "HTTP/%s %d %s\r\n", versionString(ctx.HTTP11), ctx.StatusCode, ctx.Reason)
	case CodeRequestLine:
		fmt.Fprintf(&f.buf, "%s %s HTTP/%s\r\n", ctx.Method, ctx.RequestURI, versionString(ctx.HTTP11))
	case CodeRequestLineHost:
		fmt.Fprintf(&f.buf, "%s %s HTTP/%s\r\nHost: %s\r\n", ctx.Method, ctx.RequestURI, versionString(ctx.HTTP11), ctx.Host)
	case CodeSimpleBody:
		fmt.Fprintf(&f.buf, "<html><body><h1>%d %s</h1></body></html>", ctx.StatusCode, ctx.Reason)
	case CodeRawBuffer:
		f.buf.Write(ctx.Body)
	case CodeString:
		f.buf.WriteString(ctx.Text)
	case CodeCRLF:
		f.buf.WriteString("\r\n")
	case CodeDateNow:
		fmt.Fprintf(&f.buf, "Date: %s\r\n", time.Now().UTC().Format(HTTPTimeFormat))
	case CodeDateAt:
		fmt.Fprintf(&f.buf, "Last-Modified: %s\r\n", ctx.At.UTC().Format(HTTPTimeFormat))
	case CodeConnectionClose:
		if ctx.HTTP11 && ctx.ConnectionClose {
			f.buf.WriteString("Connection: close\r\n")
		}
	case CodeTransferChunked:
		f.buf.WriteString("Transfer-Encoding: chunked\r\n")
	case CodeContentRange:
		if ctx.Send != nil && ctx.Send.RangeActive {
			fmt.Fprintf(&f.buf, "Content-Range: bytes %d-%d/%d\r\n", ctx.Send.RangeFirst, ctx.Send.RangeLast, ctx.Send.TotalLength)
			fmt.Fprintf(&f.buf, "Content-Length: %d\r\n", ctx.Send.RangeLast-ctx.Send.RangeFirst+1)
		}
	case CodeContentLength:
		if ctx.Send != nil && ctx.Send.ReadSendSize >= 0 {
			fmt.Fprintf(&f.buf, "Content-Length: %d\r\n", ctx.Send.ReadSendSize)
			f.buf.WriteString("Accept-Ranges: bytes\r\n")
		}
	case CodeContentType:
		if ctx.ContentType != "" {
			fmt.Fprintf(&f.buf, "Content-Type: %s\r\n", ctx.ContentType)
		}
	case CodeServer:
		fmt.Fprintf(&f.buf, "Server: %s\r\n", ServerString())
	case CodeUserAgent:
		fmt.Fprintf(&f.buf, "User-Agent: %s\r\n", ServerString())
	case CodeXUserAgent:
		f.buf.WriteString("X-User-Agent: redsonic\r\n")
	case CodeContentLanguage:
		if ctx.ContentLanguage != "" && ctx.AcceptLanguage != "" {
			fmt.Fprintf(&f.buf, "Content-Language: %s\r\n", ctx.ContentLanguage)
		}
	case CodeExtraHeaders:
		if ctx.Send != nil {
			for k, v := range ctx.Send.ExtraHeaders {
				fmt.Fprintf(&f.buf, "%s: %s\r\n", k, v)
			}
		}
	default:
		return uerrors.E("webserver.Formatter.apply", uerrors.KindInvalidParam, nil)
	}
	return nil
}

func versionString(http11 bool) string {
	if http11 {
		return "1.1"
	}
	return "1.0"
}

// ServerString is the
// "<sysname>/<release>, UPnP/1.0, Portable SDK for UPnP devices/<ver>"
// banner, shared with the dispatcher's own error responses so every
// response uses the same one.
func ServerString() string {
	return fmt.Sprintf("%s/%s, UPnP/1.0, Portable SDK for UPnP devices/%s", runtime.GOOS, runtime.Version(), sdkVersion)
}

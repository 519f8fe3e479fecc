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
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/upnpstack/miniserver/httpparser"
	"github.com/upnpstack/miniserver/uerrors"
)

// ResponseKind tells the connection writer how to stream the body
// resolved for a request.
type ResponseKind int

const (
	KindFileDoc ResponseKind = iota
	KindXMLDoc               // alias
	KindWebDoc               // virtual directory
	KindHeaders              // HEAD, or an error response carried in Headers
	KindPost
)

// Resolved is everything ProcessRequest hands back to the caller: the
// HTTP status to write, the rendered header block, the kind of body
// source, and (for FileDoc/WebDoc) how to stream it.
type Resolved struct {
	Status  int
	Headers []byte
	Kind    ResponseKind

	FilePath string // KindFileDoc
	Alias    *Alias // KindXMLDoc; caller must Release
	Virtual  *VirtualDirEntry
	VPath    string // path to pass to Virtual.Callbacks

	Send SendInstruction
}

// Config bounds a Resolver's filesystem/alias/virtual-dir behavior.
type Config struct {
	DocumentRoot          string
	ContentLanguage       string
	AllowPostToFilesystem bool
	MaxContentLength      int64
}

// Resolver turns a parsed request into a response plan: it classifies a
// request path as virtual, alias, or filesystem and builds the
// resulting response headers.
type Resolver struct {
	cfg     Config
	aliases *AliasCache
	vdirs   *VirtualDirRegistry
}

// NewResolver builds a Resolver over the given alias cache and virtual
// directory registry.
func NewResolver(cfg Config, aliases *AliasCache, vdirs *VirtualDirRegistry) *Resolver {
	return &Resolver{cfg: cfg, aliases: aliases, vdirs: vdirs}
}

// ProcessRequest resolves one request. remote is
// the control point's address, surfaced to virtual-directory GetInfo
// callbacks; it may be nil.
func (r *Resolver) ProcessRequest(req *httpparser.Message, remote net.Addr) (*Resolved, error) {
	reqPath, query, err := decodeAndCanonicalize(req.RequestURI.Path)
	if err != nil {
		return errorResolved(403, req), nil
	}
	if !strings.HasPrefix(reqPath, "/") {
		return errorResolved(400, req), nil
	}

	send := SendInstruction{ExtraHeaders: map[string]string{}}
	if al, ok := req.Headers.Get("Accept-Language"); ok {
		send.AcceptLanguage = al
		send.ContentLanguage = r.cfg.ContentLanguage
	}

	// Virtual directories match on path+query since '?' is a valid
	// terminator for the registered prefix; aliases and the filesystem
	// only ever see the path.
	if entry, ok := r.vdirs.Match(reqPath + query); ok {
		return r.resolveVirtual(req, remote, entry, reqPath+query, &send)
	}
	if al, ok := r.aliases.Grab(reqPath); ok {
		return r.resolveAlias(req, al, &send)
	}
	return r.resolveFilesystem(req, reqPath, &send)
}

// decodeAndCanonicalize URL-decodes raw's path component and removes
// "." / ".." segments, rejecting any ".." that would climb above the
// document root. The query string, if any, is returned separately with
// its leading '?'.
func decodeAndCanonicalize(raw string) (reqPath, query string, err error) {
	p := raw
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		p, query = raw[:idx], raw[idx:]
	}
	decoded, err := url.PathUnescape(p)
	if err != nil {
		return "", "", uerrors.E("webserver.decodeAndCanonicalize", uerrors.KindInvalidURL, err)
	}
	if strings.Contains(decoded, "..") {
		// Check escape depth on the raw segments: once path.Clean has
		// run, a ".." that tried to climb above "/" is gone.
		depth := 0
		for _, seg := range strings.Split(decoded, "/") {
			switch seg {
			case "", ".":
			case "..":
				depth--
				if depth < 0 {
					return "", "", uerrors.E("webserver.decodeAndCanonicalize", uerrors.KindInvalidParam, nil)
				}
			default:
				depth++
			}
		}
	}
	return path.Clean("/" + decoded), query, nil
}

func (r *Resolver) resolveVirtual(req *httpparser.Message, remote net.Addr, entry *VirtualDirEntry, vpath string, send *SendInstruction) (*Resolved, error) {
	if req.Method == httpparser.MethodPost {
		return &Resolved{Kind: KindPost, Virtual: entry, VPath: vpath, Status: 200}, nil
	}

	reqInfo := requestInfoFor(req, remote)
	info, err := entry.Callbacks.GetInfo(vpath, entry.Cookie, reqInfo)
	if err != nil {
		return errorResolved(404, req), nil
	}
	if info.IsDirectory {
		vpath = strings.TrimSuffix(vpath, "/") + "/index.html"
		info, err = entry.Callbacks.GetInfo(vpath, entry.Cookie, reqInfo)
		if err != nil {
			return errorResolved(404, req), nil
		}
	}
	if !info.IsReadable {
		return errorResolved(403, req), nil
	}

	for k, v := range info.ExtraHeaders {
		send.ExtraHeaders[k] = v
	}
	if !info.LastModified.IsZero() {
		send.ExtraHeaders["Last-Modified"] = httpDate(info.LastModified)
	}

	send.TotalLength = info.FileLength
	if resolved := r.applyRangeAndTransfer(req, send, info.FileLength); resolved != nil {
		return resolved, nil
	}

	headers, status, err := r.buildHeaders(req, 200, info.ContentType, send)
	if err != nil {
		return nil, err
	}
	kind := KindWebDoc
	if req.Method == httpparser.MethodHead {
		kind = KindHeaders
	}
	return &Resolved{Status: status, Headers: headers, Kind: kind, Virtual: entry, VPath: vpath, Send: *send}, nil
}

func (r *Resolver) resolveAlias(req *httpparser.Message, al *Alias, send *SendInstruction) (*Resolved, error) {
	send.ExtraHeaders["Last-Modified"] = httpDate(al.LastModified())
	send.ExtraHeaders["ETag"] = `"` + al.ETag() + `"`

	send.TotalLength = int64(al.Len())
	if resolved := r.applyRangeAndTransfer(req, send, int64(al.Len())); resolved != nil {
		al.Release()
		return resolved, nil
	}

	headers, status, err := r.buildHeaders(req, 200, "text/xml; charset=\"utf-8\"", send)
	if err != nil {
		al.Release()
		return nil, err
	}
	kind := KindXMLDoc
	if req.Method == httpparser.MethodHead {
		kind = KindHeaders
		al.Release()
	}
	return &Resolved{Status: status, Headers: headers, Kind: kind, Alias: al, Send: *send}, nil
}

func (r *Resolver) resolveFilesystem(req *httpparser.Message, reqPath string, send *SendInstruction) (*Resolved, error) {
	if r.cfg.DocumentRoot == "" {
		return errorResolved(500, req), nil
	}
	full := filepath.Join(r.cfg.DocumentRoot, filepath.FromSlash(strings.TrimSuffix(reqPath, "/")))

	if req.Method == httpparser.MethodPost {
		if !r.cfg.AllowPostToFilesystem {
			return errorResolved(401, req), nil
		}
		if _, err := os.Stat(full); err != nil {
			return errorResolved(404, req), nil
		}
		return &Resolved{Status: 200, Kind: KindPost, FilePath: full}, nil
	}

	st, err := os.Stat(full)
	if err != nil {
		if os.IsPermission(err) {
			return errorResolved(403, req), nil
		}
		return errorResolved(404, req), nil
	}
	if st.IsDir() {
		full = filepath.Join(full, "index.html")
		st, err = os.Stat(full)
		if err != nil {
			return errorResolved(404, req), nil
		}
	}
	if st.Mode().Perm()&0o444 == 0 {
		return errorResolved(403, req), nil
	}

	send.ExtraHeaders["Last-Modified"] = httpDate(st.ModTime())

	send.TotalLength = st.Size()
	if resolved := r.applyRangeAndTransfer(req, send, st.Size()); resolved != nil {
		return resolved, nil
	}

	headers, status, err := r.buildHeaders(req, 200, ContentTypeFor(full), send)
	if err != nil {
		return nil, err
	}
	kind := KindFileDoc
	if req.Method == httpparser.MethodHead {
		kind = KindHeaders
	}
	return &Resolved{Status: status, Headers: headers, Kind: kind, FilePath: full, Send: *send}, nil
}

// requestInfoFor copies the request's headers, User-Agent, and the
// control point's IP into the RequestInfo handed to GetInfo.
func requestInfoFor(req *httpparser.Message, remote net.Addr) *RequestInfo {
	info := &RequestInfo{Headers: map[string]string{}}
	for _, name := range req.Headers.Names() {
		v, _ := req.Headers.Get(name)
		info.Headers[name] = v
	}
	if ua, ok := req.Headers.Get("User-Agent"); ok {
		info.UserAgent = ua
	}
	switch a := remote.(type) {
	case *net.TCPAddr:
		info.CtrlPtIP = a.IP
	case *net.UDPAddr:
		info.CtrlPtIP = a.IP
	}
	return info
}

// applyRangeAndTransfer parses Range/TE headers into send. It
// returns a non-nil error Resolved (406 for
// chunked requested by a pre-1.1 client, 416 for an unsatisfiable
// range) when the request cannot be served, nil when send is ready.
func (r *Resolver) applyRangeAndTransfer(req *httpparser.Message, send *SendInstruction, total int64) *Resolved {
	send.ReadSendSize = total

	if te, ok := req.Headers.Get("TE"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		if !req.HTTP11() {
			return errorResolved(406, req)
		}
		send.ChunkActive = true
		send.ReadSendSize = UsingChunked
	}

	rangeHeader, ok := req.Headers.Get("Range")
	if !ok {
		return nil
	}
	first, last, err := parseRange(rangeHeader, total)
	if err != nil {
		return rangeErrorResolved(req, total)
	}
	send.RangeActive = true
	send.RangeFirst = first
	send.RangeLast = last
	send.ReadSendSize = last - first + 1
	return nil
}

// parseRange accepts "bytes=FIRST-LAST", "bytes=FIRST-", or
// "bytes=-SUFFIX"; multiple range specifiers are rejected.
func parseRange(header string, total int64) (first, last int64, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, uerrors.E("webserver.parseRange", uerrors.KindInvalidParam, nil)
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, uerrors.E("webserver.parseRange", uerrors.KindInvalidParam, nil)
	}
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, 0, uerrors.E("webserver.parseRange", uerrors.KindInvalidParam, nil)
	}
	firstStr, lastStr := spec[:dash], spec[dash+1:]

	switch {
	case firstStr == "" && lastStr != "":
		suffix, perr := strconv.ParseInt(lastStr, 10, 64)
		if perr != nil {
			return 0, 0, uerrors.E("webserver.parseRange", uerrors.KindInvalidParam, perr)
		}
		if suffix > total {
			suffix = total
		}
		first = total - suffix
		last = total - 1
	case firstStr != "" && lastStr == "":
		f, perr := strconv.ParseInt(firstStr, 10, 64)
		if perr != nil {
			return 0, 0, uerrors.E("webserver.parseRange", uerrors.KindInvalidParam, perr)
		}
		first = f
		last = total - 1
	case firstStr != "" && lastStr != "":
		f, perr1 := strconv.ParseInt(firstStr, 10, 64)
		l, perr2 := strconv.ParseInt(lastStr, 10, 64)
		if perr1 != nil || perr2 != nil {
			return 0, 0, uerrors.E("webserver.parseRange", uerrors.KindInvalidParam, nil)
		}
		first, last = f, l
	default:
		return 0, 0, uerrors.E("webserver.parseRange", uerrors.KindInvalidParam, nil)
	}

	if first < 0 || last >= total || first > last {
		return 0, 0, uerrors.E("webserver.parseRange", uerrors.KindOutOfBounds, nil)
	}
	return first, last, nil
}

func (r *Resolver) buildHeaders(req *httpparser.Message, status int, contentType string, send *SendInstruction) ([]byte, int, error) {
	if send.RangeActive {
		status = 206
	}
	ctx := &Context{
		StatusCode:      status,
		Reason:          reasonPhrase(status),
		HTTP11:          req.HTTP11(),
		ContentType:     contentType,
		ContentLanguage: send.ContentLanguage,
		AcceptLanguage:  send.AcceptLanguage,
		Send:            send,
	}
	pipeline := pipelineFor(send)
	h, err := Build(pipeline, ctx)
	if err != nil {
		return nil, 0, err
	}
	return h, status, nil
}

func pipelineFor(send *SendInstruction) Pipeline {
	switch {
	case send.RangeActive && send.ChunkActive:
		return PipelineRangeChunk
	case send.RangeActive:
		return PipelineRangeNoChunk
	case send.ChunkActive:
		return PipelineNoRangeChunk
	default:
		return PipelineNoRangeNoChunk
	}
}

// errorResolved builds a complete, self-contained error response:
// status line, Date, Server, a short HTML body with its Content-Length
// for every rejection the resolver can produce. The body rides along in
// Headers so the caller's WriteHeaders is the only write needed.
func errorResolved(status int, req *httpparser.Message) *Resolved {
	body := fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", status, reasonPhrase(status))
	send := &SendInstruction{ReadSendSize: int64(len(body))}
	ctx := &Context{
		StatusCode:  status,
		Reason:      reasonPhrase(status),
		HTTP11:      req != nil && req.HTTP11(),
		ContentType: "text/html",
		Send:        send,
		Body:        []byte(body),
	}
	headers, _ := Build(Pipeline{CodeStatusLine, CodeDateNow, CodeServer, CodeContentType, CodeContentLength, CodeCRLF, CodeRawBuffer}, ctx)
	return &Resolved{Status: status, Headers: headers, Kind: KindHeaders}
}

// rangeErrorResolved answers an unsatisfiable Range with 416 and the
// representation's total length.
func rangeErrorResolved(req *httpparser.Message, total int64) *Resolved {
	ctx := &Context{StatusCode: 416, Reason: reasonPhrase(416), HTTP11: req.HTTP11()}
	headers, _ := Build(Pipeline{CodeStatusLine, CodeDateNow, CodeServer}, ctx)
	headers = append(headers, fmt.Sprintf("Content-Range: bytes */%d\r\n\r\n", total)...)
	return &Resolved{Status: 416, Headers: headers, Kind: KindHeaders}
}

// httpDate renders t as an RFC 1123 HTTP-date in GMT.
func httpDate(t time.Time) string {
	return t.UTC().Format(HTTPTimeFormat)
}

func reasonPhrase(status int) string {
	switch status {
	case 200:
		return "OK"
	case 206:
		return "Partial Content"
	case 307:
		return "Temporary Redirect"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 406:
		return "Not Acceptable"
	case 413:
		return "Request Entity Too Large"
	case 416:
		return "Requested Range Not Satisfiable"
	case 500:
		return "Internal Server Error"
	default:
		return "Unknown"
	}
}

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
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memVDir serves one in-memory document for every path under its
// prefix, recording the RequestInfo it was last asked with.
type memVDir struct {
	content  []byte
	modTime  time.Time
	lastInfo *RequestInfo
	written  bytes.Buffer
}

type memVFile struct {
	*bytes.Reader
	d *memVDir
}

func (f *memVFile) Write(p []byte) (int, error) { return f.d.written.Write(p) }
func (f *memVFile) Close() error                { return nil }

func (d *memVDir) GetInfo(path string, cookie interface{}, req *RequestInfo) (*FileInfo, error) {
	d.lastInfo = req
	return &FileInfo{
		IsReadable:   true,
		FileLength:   int64(len(d.content)),
		LastModified: d.modTime,
		ContentType:  "text/xml; charset=\"utf-8\"",
	}, nil
}

func (d *memVDir) Open(path string, cookie interface{}, forWrite bool) (VirtualFile, error) {
	return &memVFile{Reader: bytes.NewReader(d.content), d: d}, nil
}

func TestVirtualDirMatchTerminators(t *testing.T) {
	r := NewVirtualDirRegistry()
	r.Register("/vdir", nil, &memVDir{})

	for _, path := range []string{"/vdir", "/vdir/upload", "/vdir?q=1"} {
		_, ok := r.Match(path)
		require.True(t, ok, "expected %q to match /vdir", path)
	}
	for _, path := range []string{"/vdirx", "/vdi", "/other/vdir"} {
		_, ok := r.Match(path)
		require.False(t, ok, "expected %q not to match /vdir", path)
	}
}

func TestVirtualDirMatchTrailingSlashEntry(t *testing.T) {
	r := NewVirtualDirRegistry()
	r.Register("/media/", nil, &memVDir{})

	_, ok := r.Match("/media/track1.mp3")
	require.True(t, ok)
	_, ok = r.Match("/mediax")
	require.False(t, ok)
}

func TestVirtualDirMatchPrefersLongestPrefix(t *testing.T) {
	r := NewVirtualDirRegistry()
	short := &memVDir{}
	long := &memVDir{}
	r.Register("/a", nil, short)
	r.Register("/a/b", nil, long)

	e, ok := r.Match("/a/b/c")
	require.True(t, ok)
	require.Same(t, long, e.Callbacks.(*memVDir))
}

func TestResolveVirtualPassesRequestInfo(t *testing.T) {
	vd := &memVDir{content: []byte("<svc/>"), modTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	vdirs := NewVirtualDirRegistry()
	vdirs.Register("/vdir", "cookie", vd)
	r := NewResolver(Config{}, NewAliasCache(), vdirs)

	req := newTestRequest(t, "GET /vdir/svc.xml HTTP/1.1\r\nHost: 127.0.0.1:49152\r\nUser-Agent: test-cp/1.0\r\n\r\n")
	remote := &net.TCPAddr{IP: net.IPv4(192, 0, 2, 9), Port: 50000}

	resolved, err := r.ProcessRequest(req, remote)
	require.NoError(t, err)
	require.Equal(t, 200, resolved.Status)
	require.Equal(t, KindWebDoc, resolved.Kind)

	require.NotNil(t, vd.lastInfo)
	require.Equal(t, "test-cp/1.0", vd.lastInfo.UserAgent)
	require.True(t, vd.lastInfo.CtrlPtIP.Equal(net.IPv4(192, 0, 2, 9)))
	require.Equal(t, "127.0.0.1:49152", vd.lastInfo.Headers["Host"])
	require.Contains(t, string(resolved.Headers), "Last-Modified: Wed, 01 Jan 2020 00:00:00 GMT")
}

func TestResolveVirtualRangeUsesSeek(t *testing.T) {
	vd := &memVDir{content: []byte("0123456789")}
	vdirs := NewVirtualDirRegistry()
	vdirs.Register("/vdir", nil, vd)
	r := NewResolver(Config{}, NewAliasCache(), vdirs)

	req := newTestRequest(t, "GET /vdir/doc HTTP/1.1\r\nHost: 127.0.0.1:49152\r\nRange: bytes=2-5\r\n\r\n")
	resolved, err := r.ProcessRequest(req, nil)
	require.NoError(t, err)
	require.Equal(t, 206, resolved.Status)
	require.Contains(t, string(resolved.Headers), "Content-Range: bytes 2-5/10")

	var buf bytes.Buffer
	require.NoError(t, WriteBody(&buf, resolved))
	require.Equal(t, "2345", buf.String())
}

func TestResolveChunkedToHTTP10Is406(t *testing.T) {
	vd := &memVDir{content: []byte("abc")}
	vdirs := NewVirtualDirRegistry()
	vdirs.Register("/vdir", nil, vd)
	r := NewResolver(Config{}, NewAliasCache(), vdirs)

	req := newTestRequest(t, "GET /vdir/doc HTTP/1.0\r\nHost: 127.0.0.1:49152\r\nTE: chunked\r\n\r\n")
	resolved, err := r.ProcessRequest(req, nil)
	require.NoError(t, err)
	require.Equal(t, 406, resolved.Status)
}

func TestResolveRangeUnsatisfiableIs416WithTotal(t *testing.T) {
	vd := &memVDir{content: []byte("abc")}
	vdirs := NewVirtualDirRegistry()
	vdirs.Register("/vdir", nil, vd)
	r := NewResolver(Config{}, NewAliasCache(), vdirs)

	req := newTestRequest(t, "GET /vdir/doc HTTP/1.1\r\nHost: 127.0.0.1:49152\r\nRange: bytes=10-20\r\n\r\n")
	resolved, err := r.ProcessRequest(req, nil)
	require.NoError(t, err)
	require.Equal(t, 416, resolved.Status)
	require.Contains(t, string(resolved.Headers), "Content-Range: bytes */3")
}

var _ io.ReadWriteCloser = (*memVFile)(nil)

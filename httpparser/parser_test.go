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

package httpparser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParserWholeVsByteAtATime(t *testing.T) {
	raw := []byte("GET /hello.txt HTTP/1.1\r\nHost: 127.0.0.1:49152\r\nContent-Length: 3\r\n\r\nabc")

	whole := NewParser(false, false)
	whole.Append(raw)
	require.Equal(t, ResultOk, whole.Parse())

	piecemeal := NewParser(false, false)
	var last Result
	for i := range raw {
		piecemeal.Append(raw[i : i+1])
		last = piecemeal.Parse()
	}
	require.Equal(t, ResultOk, last)

	require.Equal(t, whole.Message().Headers.Names(), piecemeal.Message().Headers.Names())
	require.Equal(t, string(whole.Entity()), string(piecemeal.Entity()))
	require.Equal(t, "abc", string(piecemeal.Entity()))
}

func TestParserSimpleGet(t *testing.T) {
	p := NewParser(false, false)
	p.Append([]byte("GET /desc.xml HTTP/1.0\r\n\r\n"))
	require.Equal(t, ResultOk, p.Parse())
	require.Equal(t, MethodSimpleGet, p.Message().Method)
}

func TestParserChunked(t *testing.T) {
	p := NewParser(false, false)
	p.Append([]byte("POST /vdir/upload HTTP/1.1\r\nHost: 127.0.0.1:49152\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"))
	require.Equal(t, ResultOk, p.Parse())
	require.Equal(t, TransferChunked, p.Message().Transfer)
	require.Equal(t, "hello", string(p.Entity()))
}

func TestParserTransferCodingPriority(t *testing.T) {
	p := NewParser(false, false)
	p.Append([]byte("POST / HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n0\r\n\r\n"))
	require.Equal(t, ResultOk, p.Parse())
	require.Equal(t, TransferChunked, p.Message().Transfer, "chunked must win over Content-Length")
}

func TestURIFixIdempotent(t *testing.T) {
	u, err := ParseURI("http://192.0.2.10:8080/Device/desc.xml")
	require.NoError(t, err)
	once := Fix(u)
	twice := Fix(once)
	require.Equal(t, once, twice)
}

func TestURIEmptyPathBecomesSlash(t *testing.T) {
	u, err := ParseURI("http://192.0.2.10:8080")
	require.NoError(t, err)
	require.Equal(t, "/", Fix(u).Path)
	require.Equal(t, 8080, u.Addr.Port)
}

func TestIsNumericLiteral(t *testing.T) {
	require.True(t, IsNumericLiteral("127.0.0.1:49152"))
	require.True(t, IsNumericLiteral("[::1]:49152"))
	require.False(t, IsNumericLiteral("example.com:49152"))
}

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

package sockio

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/upnpstack/miniserver/uerrors"
)

// ConnectTimeout bounds the TCP connect and TLS handshake.
const ConnectTimeout = 5 * time.Second

// Dial connects to addr (host:port), performing a TLS handshake if
// useTLS is set. The returned Conn has no read/write timeout set;
// callers assign one per request.
func Dial(addr string, useTLS bool) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		return nil, uerrors.E("sockio.Dial", uerrors.KindSocketConnect, err)
	}
	if useTLS {
		host, _, splitErr := net.SplitHostPort(addr)
		if splitErr != nil {
			host = addr
		}
		tc := tls.Client(nc, &tls.Config{ServerName: host})
		if err := tc.SetDeadline(time.Now().Add(ConnectTimeout)); err == nil {
			defer tc.SetDeadline(time.Time{})
		}
		if err := tc.Handshake(); err != nil {
			tc.Close()
			return nil, uerrors.E("sockio.Dial", uerrors.KindSocketConnect, err)
		}
		nc = tc
	}
	return New(nc, 0, 0), nil
}

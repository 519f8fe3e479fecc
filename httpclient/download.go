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

package httpclient

import (
	"bytes"
	"fmt"

	"github.com/upnpstack/miniserver/httpparser"
	"github.com/upnpstack/miniserver/uerrors"
)

// DownloadGet issues a GET for target on host:addr and returns the
// full response body. It is the Go equivalent of the SDK's
// http_Download helper: one connection, one request, fully buffered.
func DownloadGet(addr, host, target string, useTLS bool) (*httpparser.Message, []byte, error) {
	return doGet(addr, host, target, useTLS, -1, -1)
}

// RangeGet issues a GET with a byte-range header covering
// [rangeStart, rangeEnd] (inclusive, per HTTP semantics), the Go
// equivalent of the SDK's open_http_get_ex entry point, for control
// points fetching partial device descriptions.
func RangeGet(addr, host, target string, useTLS bool, rangeStart, rangeEnd int64) (*httpparser.Message, []byte, error) {
	if rangeStart < 0 {
		return nil, nil, uerrors.E("httpclient.RangeGet", uerrors.KindInvalidParam, nil)
	}
	return doGet(addr, host, target, useTLS, rangeStart, rangeEnd)
}

func doGet(addr, host, target string, useTLS bool, rangeStart, rangeEnd int64) (*httpparser.Message, []byte, error) {
	c, err := Open(addr, useTLS)
	if err != nil {
		return nil, nil, err
	}
	defer c.Close()

	if rangeStart >= 0 {
		if rangeEnd >= 0 {
			c.SetHeader("Range", fmt.Sprintf("bytes=%d-%d", rangeStart, rangeEnd))
		} else {
			c.SetHeader("Range", fmt.Sprintf("bytes=%d-", rangeStart))
		}
	}

	if err := c.MakeRequest("GET", host, target, UntilClose); err != nil {
		return nil, nil, err
	}

	msg, err := c.ReadResponseMeta()
	if err != nil {
		return nil, nil, err
	}

	var body bytes.Buffer
	if err := c.ReadResponseBody(func(b []byte) error {
		_, werr := body.Write(b)
		return werr
	}); err != nil {
		return nil, nil, err
	}

	return msg, body.Bytes(), nil
}

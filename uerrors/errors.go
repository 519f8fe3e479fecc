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

// Package uerrors is the shared error taxonomy used across
// the miniserver stack: sockio, httpclient, webserver, threadpool and
// miniserver itself all return *uerrors.Error so a
// caller can map a Kind to an HTTP status without caring which layer
// produced it.
package uerrors

import "fmt"

// Kind classifies a miniserver-level failure. It mirrors the abstract
// error taxonomy of the UPnP SDK this package generalizes.
type Kind int

const (
	KindInvalidParam Kind = iota
	KindInvalidURL
	KindBadHTTPMsg
	KindBadResponse
	KindSocketError
	KindSocketBind
	KindSocketConnect
	KindSocketWrite
	KindSocketRead
	KindListen
	KindOutOfSocket
	KindOutOfMemory
	KindOutOfBounds
	KindFileReadError
	KindFileNotFound
	KindTimeout
	KindCancelled
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParam:
		return "InvalidParam"
	case KindInvalidURL:
		return "InvalidUrl"
	case KindBadHTTPMsg:
		return "BadHttpMsg"
	case KindBadResponse:
		return "BadResponse"
	case KindSocketError:
		return "SocketError"
	case KindSocketBind:
		return "SocketBind"
	case KindSocketConnect:
		return "SocketConnect"
	case KindSocketWrite:
		return "SocketWrite"
	case KindSocketRead:
		return "SocketRead"
	case KindListen:
		return "Listen"
	case KindOutOfSocket:
		return "OutOfSocket"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindOutOfBounds:
		return "OutOfBounds"
	case KindFileReadError:
		return "FileReadError"
	case KindFileNotFound:
		return "FileNotFound"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	default:
		return "InternalError"
	}
}

// Error is the common error type returned across the miniserver stack.
// Its Kind is stable and meant to be switched on by callers that map
// failures to HTTP status codes; its wrapped Err carries the underlying
// cause for logs.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &uerrors.Error{Kind: ...}) comparisons
// against just the Kind, ignoring Op/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// E constructs an *Error, the one-line idiom used across this module
// instead of ad hoc fmt.Errorf calls whenever a caller needs to switch
// on Kind later.
func E(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

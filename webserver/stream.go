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
	"io"
	"os"

	"github.com/upnpstack/miniserver/uerrors"
)

// readSeeker is the minimal surface WriteBody needs from whatever a
// Resolved points at: an *os.File, a bytes.Reader over alias bytes, or
// a caller's VirtualFile all satisfy it.
type readSeeker interface {
	io.Reader
	Seek(offset int64, whence int) (int64, error)
}

// WriteHeaders writes the rendered header block for resolved to w.
func WriteHeaders(w io.Writer, resolved *Resolved) error {
	_, err := w.Write(resolved.Headers)
	if err != nil {
		return uerrors.E("webserver.WriteHeaders", uerrors.KindSocketWrite, err)
	}
	return nil
}

// WriteBody streams resolved's body to w, honoring the range and
// chunk-active directives in resolved.Send. KindHeaders and KindPost have no
// response body to stream here; a POST body is handled by the caller
// via ReadPostBody instead, since it is the request entity, not the
// response.
func WriteBody(w io.Writer, resolved *Resolved) error {
	switch resolved.Kind {
	case KindHeaders, KindPost:
		return nil
	case KindXMLDoc:
		defer resolved.Alias.Release()
		return writeRanged(w, bytes.NewReader(resolved.Alias.Bytes()), resolved.Send)
	case KindFileDoc:
		f, err := os.Open(resolved.FilePath)
		if err != nil {
			return uerrors.E("webserver.WriteBody", uerrors.KindFileReadError, err)
		}
		defer f.Close()
		return writeRanged(w, f, resolved.Send)
	case KindWebDoc:
		vf, err := resolved.Virtual.Callbacks.Open(resolved.VPath, resolved.Virtual.Cookie, false)
		if err != nil {
			return uerrors.E("webserver.WriteBody", uerrors.KindFileReadError, err)
		}
		defer vf.Close()
		return writeRanged(w, vf, resolved.Send)
	default:
		return nil
	}
}

// writeRanged seeks to the range start (if any) and copies either an
// exact byte count or until EOF, chunk-encoding the output if
// ChunkActive is set. A ReadSendSize of UsingChunked or UntilClose with
// no range means "copy until EOF": the source's EOF is the sole
// loop-exit condition.
func writeRanged(w io.Writer, rs readSeeker, send SendInstruction) error {
	if send.RangeActive {
		if _, err := rs.Seek(send.RangeFirst, io.SeekStart); err != nil {
			return uerrors.E("webserver.writeRanged", uerrors.KindFileReadError, err)
		}
	}

	var r io.Reader = rs
	if limit := sendLimit(send); limit >= 0 {
		r = io.LimitReader(rs, limit)
	}

	if send.ChunkActive {
		return writeChunked(w, r)
	}
	_, err := io.Copy(w, r)
	if err != nil {
		return uerrors.E("webserver.writeRanged", uerrors.KindSocketWrite, err)
	}
	return nil
}

// sendLimit returns the exact number of bytes to copy, or -1 for
// "until EOF/close".
func sendLimit(send SendInstruction) int64 {
	if send.RangeActive {
		return send.RangeLast - send.RangeFirst + 1
	}
	if send.ReadSendSize == UsingChunked || send.ReadSendSize == UntilClose {
		return -1
	}
	return send.ReadSendSize
}

// writeChunked frames r's output per RFC 7230 §4.1: each Read becomes
// one chunk, terminated by the "0\r\n\r\n" marker once r is exhausted.
func writeChunked(w io.Writer, r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := fmt.Fprintf(w, "%x\r\n", n); werr != nil {
				return uerrors.E("webserver.writeChunked", uerrors.KindSocketWrite, werr)
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return uerrors.E("webserver.writeChunked", uerrors.KindSocketWrite, werr)
			}
			if _, werr := w.Write([]byte("\r\n")); werr != nil {
				return uerrors.E("webserver.writeChunked", uerrors.KindSocketWrite, werr)
			}
		}
		if err == io.EOF {
			if _, werr := w.Write([]byte("0\r\n\r\n")); werr != nil {
				return uerrors.E("webserver.writeChunked", uerrors.KindSocketWrite, werr)
			}
			return nil
		}
		if err != nil {
			return uerrors.E("webserver.writeChunked", uerrors.KindSocketRead, err)
		}
	}
}

// ReadPostBody drains a request entity into dst. A chunked entity has
// already been fully decoded by the parser at parse time, so this is
// always a literal byte copy. It exists as a named entry point so the miniserver
// dispatcher's POST handling has one
// place that writes into either a virtual file or an on-disk file the
// same way.
func ReadPostBody(dst io.Writer, entity []byte) error {
	if _, err := dst.Write(entity); err != nil {
		return uerrors.E("webserver.ReadPostBody", uerrors.KindSocketWrite, err)
	}
	return nil
}

// OpenPostDestination opens resolved's POST target for writing: the
// virtual directory's Open(forWrite=true) callback, or the on-disk
// file at FilePath.
func OpenPostDestination(resolved *Resolved) (io.WriteCloser, error) {
	if resolved.Virtual != nil {
		vf, err := resolved.Virtual.Callbacks.Open(resolved.VPath, resolved.Virtual.Cookie, true)
		if err != nil {
			return nil, uerrors.E("webserver.OpenPostDestination", uerrors.KindFileReadError, err)
		}
		return vf, nil
	}
	f, err := os.OpenFile(resolved.FilePath, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, uerrors.E("webserver.OpenPostDestination", uerrors.KindFileReadError, err)
	}
	return f, nil
}

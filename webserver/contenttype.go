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

// Package webserver implements the document resolver: the part of the
// miniserver that turns a parsed request path into a filesystem file,
// an in-memory alias document, or a virtual-directory callback, and
// builds the response headers for it.
package webserver

import "strings"

// contentTypes maps a lowercased file extension (without the dot) to
// its MIME type. Extensions absent from this table fall
// back to application/octet-stream.
var contentTypes = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"xml":  "text/xml; charset=\"utf-8\"",
	"txt":  "text/plain",
	"css":  "text/css",
	"csv":  "text/csv",
	"js":   "text/javascript",
	"json": "application/json",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"pdf":  "application/pdf",
	"zip":  "application/zip",
	"gz":   "application/gzip",
	"tar":  "application/x-tar",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"mp4":  "video/mp4",
	"mpeg": "video/mpeg",
	"avi":  "video/x-msvideo",
}

// defaultContentType is returned for extensions outside contentTypes.
const defaultContentType = "application/octet-stream"

// ContentTypeFor looks up the MIME type for name's extension, matched
// case-insensitively after the last '.'.
func ContentTypeFor(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 || dot == len(name)-1 {
		return defaultContentType
	}
	ext := strings.ToLower(name[dot+1:])
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return defaultContentType
}

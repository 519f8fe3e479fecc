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

// Sentinels for ReadSendSize.
const (
	UsingChunked = -3
	UntilClose   = -1
)

// SendInstruction carries the per-response streaming directives the
// resolver hands back to the connection writer.
type SendInstruction struct {
	ReadSendSize int64 // >=0 exact bytes, UsingChunked, or UntilClose

	RangeActive bool
	RangeFirst  int64
	RangeLast   int64
	TotalLength int64

	ChunkActive bool

	AcceptLanguage  string
	ContentLanguage string

	ExtraHeaders map[string]string
}

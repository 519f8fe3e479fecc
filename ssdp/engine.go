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

// Package ssdp is the boundary between the miniserver listener and the
// SSDP (discovery) subsystem: it owns the multicast group memberships
// and hands off received datagrams to an opaque Engine, which is
// implemented and registered by the discovery layer itself (an
// external collaborator per the miniserver's scope).
package ssdp

import "net"

// Engine receives datagrams the miniserver listener read off an SSDP
// socket. It is an opaque callback boundary: the listener hands the
// payload off and never interprets it.
type Engine interface {
	HandleDatagram(src *net.UDPAddr, data []byte)
}

// NopEngine discards every datagram; useful as a default before the
// discovery layer registers its real Engine.
type NopEngine struct{}

func (NopEngine) HandleDatagram(*net.UDPAddr, []byte) {}

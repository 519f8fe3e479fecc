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

package ssdp

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/upnpstack/miniserver/uerrors"
)

// Port is the fixed SSDP multicast port.
const Port = 1900

// GroupIPv4 is the SSDP multicast group address for IPv4.
var GroupIPv4 = net.IPv4(239, 255, 255, 250)

// LinkLocalGroupIPv6 and SiteLocalGroupIPv6 are the SSDP multicast
// group addresses for the IPv6 link-local and site-local (ULA/GUA)
// scopes.
var (
	LinkLocalGroupIPv6 = net.ParseIP("ff02::c")
	SiteLocalGroupIPv6 = net.ParseIP("ff05::c")
)

// JoinIPv4 opens a UDP socket bound to Port and joins GroupIPv4 on
// ifi (nil means the system-assigned multicast interface).
func JoinIPv4(ifi *net.Interface) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: Port})
	if err != nil {
		return nil, uerrors.E("ssdp.JoinIPv4", uerrors.KindSocketBind, err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: GroupIPv4}); err != nil {
		conn.Close()
		return nil, uerrors.E("ssdp.JoinIPv4", uerrors.KindSocketBind, err)
	}
	return conn, nil
}

// JoinIPv6 opens a UDP socket bound to Port and joins group (link-local
// or site-local) on ifi. x/net/ipv6's PacketConn.JoinGroup is used
// instead of net.ListenMulticastUDP because the miniserver must control
// membership per-interface for the link-local/ULA-GUA split the plain
// standard library API cannot express.
func JoinIPv6(ifi *net.Interface, group net.IP) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp6", &net.UDPAddr{Port: Port})
	if err != nil {
		return nil, uerrors.E("ssdp.JoinIPv6", uerrors.KindSocketBind, err)
	}
	pc := ipv6.NewPacketConn(conn)
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
		conn.Close()
		return nil, uerrors.E("ssdp.JoinIPv6", uerrors.KindSocketBind, err)
	}
	return conn, nil
}

// ReceiveLoop reads datagrams off conn until it closes or returns an
// error, handing each one to engine. The caller runs this under the
// listener's persistent thread-pool job.
func ReceiveLoop(conn *net.UDPConn, engine Engine) error {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return uerrors.E("ssdp.ReceiveLoop", uerrors.KindSocketRead, err)
		}
		payload := append([]byte(nil), buf[:n]...)
		engine.HandleDatagram(addr, payload)
	}
}

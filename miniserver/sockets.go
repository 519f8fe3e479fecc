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

// Package miniserver is the listener multiplexer and request
// dispatcher: the part of the stack that owns every listening socket,
// accepts/receives on them, and routes parsed requests to the SOAP,
// GENA, or Web callback set.
package miniserver

import (
	"context"
	"net"
	"strconv"
	"syscall"

	"github.com/upnpstack/miniserver/uerrors"
)

// ApplicationListeningPort is the default HTTP listen port hint used
// when a caller passes 0.
const ApplicationListeningPort = 49152

const (
	minEphemeralPort = 1024
	maxPort          = 65535
)

// reservedFDs names the stdio descriptor range [0,3) that a
// select()-style loop would have to skip; the goroutine-per-socket
// model here never builds an fd_set, so no EBADF guard is needed.
const reservedFDs = 3

// Sockets is the fixed-cardinality record of every listening socket
// the miniserver owns. Every field is either nil (not requested, or
// bind failed and was logged) or bound.
type Sockets struct {
	HTTPv4       net.Listener
	HTTPv6       net.Listener
	HTTPv6ULAGUA net.Listener

	SSDPv4          *net.UDPConn
	SSDPv6LinkLocal *net.UDPConn
	SSDPv6ULAGUA    *net.UDPConn

	Stop     *net.UDPConn
	StopPort int

	Port4, Port6, Port6ULAGUA int
}

// bindTCP binds a TCP listener on ip at startPort, retrying at the
// next higher port (wrapping at maxPort back to minEphemeralPort) if
// the port is already in use.
// It gives up and returns SocketBind once it has tried every port back
// around to startPort.
func bindTCP(ip net.IP, startPort int, reuseAddr bool) (net.Listener, int, error) {
	network := "tcp4"
	if ip.To4() == nil {
		network = "tcp6"
	}
	lc := net.ListenConfig{}
	if reuseAddr {
		lc.Control = reuseAddrControl
	}

	port := startPort
	for {
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))
		ln, err := lc.Listen(context.Background(), network, addr)
		if err == nil {
			return ln, ln.Addr().(*net.TCPAddr).Port, nil
		}
		port = nextPort(port)
		if port == startPort {
			return nil, 0, uerrors.E("miniserver.bindTCP", uerrors.KindSocketBind, err)
		}
	}
}

func nextPort(p int) int {
	p++
	if p > maxPort {
		return minEphemeralPort
	}
	return p
}

// reuseAddrControl enables SO_REUSEADDR on the socket before bind, per
// the MINISERVER_REUSEADDR configuration option.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// bindLoopbackUDP binds the stop-sentinel's loopback UDP socket on
// its own ephemeral port, separate from the SSDP sockets.
func bindLoopbackUDP() (*net.UDPConn, int, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return nil, 0, uerrors.E("miniserver.bindLoopbackUDP", uerrors.KindSocketBind, err)
	}
	return conn, conn.LocalAddr().(*net.UDPAddr).Port, nil
}

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

package miniserver

import (
	"bytes"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/upnpstack/miniserver/ssdp"
	"github.com/upnpstack/miniserver/threadpool"
	"github.com/upnpstack/miniserver/uerrors"
)

// stopSentinel is the exact byte sequence that terminates the listener
// when received on the loopback stop socket.
var stopSentinel = []byte("ShutDown\x00")

// Config bounds a Listener's behavior: listen port hints, whether
// IPv6 is attempted, SO_REUSEADDR, connection timeouts, and the
// collaborators every accepted connection is dispatched through.
type Config struct {
	Port4       int
	Port6       int
	Port6ULAGUA int
	EnableIPv6  bool
	ReuseAddr   bool

	ConnectionConfig ConnectionConfig

	SSDPEngine ssdp.Engine
	SSDPIfi    *net.Interface

	Pool   *threadpool.Pool
	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.SSDPEngine == nil {
		c.SSDPEngine = ssdp.NopEngine{}
	}
}

// Listener owns every listening socket the miniserver multiplexes
// over: one goroutine per bound socket, fanned out with an errgroup
// that collects the first fatal error, woken for shutdown by a
// stop-sentinel datagram rather than a select(2) timeout.
type Listener struct {
	cfg     Config
	sockets *Sockets

	group   *errgroup.Group
	stopped bool
	closed  chan struct{}
}

// NewListener builds a Listener. Start must be called to bind sockets
// and begin serving.
func NewListener(cfg Config) *Listener {
	cfg.setDefaults()
	return &Listener{cfg: cfg, closed: make(chan struct{})}
}

// Start binds every listening socket, spawns the listener's persistent
// pool job, and returns the actual ports
// chosen for the three HTTP listeners.
func (l *Listener) Start() (port4, port6, port6ulagua int, err error) {
	sockets := &Sockets{}

	ip4 := net.IPv4(0, 0, 0, 0)
	startPort4 := l.cfg.Port4
	if startPort4 == 0 {
		startPort4 = ApplicationListeningPort
	}
	ln4, actual4, err := bindTCP(ip4, startPort4, l.cfg.ReuseAddr)
	if err != nil {
		return 0, 0, 0, err
	}
	sockets.HTTPv4 = ln4
	sockets.Port4 = actual4

	if l.cfg.EnableIPv6 {
		startPort6 := l.cfg.Port6
		if startPort6 == 0 {
			startPort6 = actual4
		}
		if ln6, actual6, err := bindTCP(net.IPv6unspecified, startPort6, l.cfg.ReuseAddr); err != nil {
			l.cfg.Logger.Warn("ipv6 http listener unavailable, continuing on ipv4 only", zap.Error(err))
		} else {
			sockets.HTTPv6 = ln6
			sockets.Port6 = actual6

			startPortULAGUA := l.cfg.Port6ULAGUA
			if startPortULAGUA == 0 {
				startPortULAGUA = actual6 + 1
			}
			if ln6ulagua, actualULAGUA, err := bindTCP(net.IPv6unspecified, startPortULAGUA, l.cfg.ReuseAddr); err != nil {
				l.cfg.Logger.Warn("ipv6 ula/gua http listener unavailable", zap.Error(err))
			} else {
				sockets.HTTPv6ULAGUA = ln6ulagua
				sockets.Port6ULAGUA = actualULAGUA
			}
		}
	}

	if conn, err := ssdp.JoinIPv4(l.cfg.SSDPIfi); err != nil {
		l.cfg.Logger.Warn("ssdp ipv4 socket unavailable", zap.Error(err))
	} else {
		sockets.SSDPv4 = conn
	}
	if l.cfg.EnableIPv6 {
		if conn, err := ssdp.JoinIPv6(l.cfg.SSDPIfi, ssdp.LinkLocalGroupIPv6); err != nil {
			l.cfg.Logger.Warn("ssdp ipv6 link-local socket unavailable", zap.Error(err))
		} else {
			sockets.SSDPv6LinkLocal = conn
		}
		if conn, err := ssdp.JoinIPv6(l.cfg.SSDPIfi, ssdp.SiteLocalGroupIPv6); err != nil {
			l.cfg.Logger.Warn("ssdp ipv6 ula/gua socket unavailable", zap.Error(err))
		} else {
			sockets.SSDPv6ULAGUA = conn
		}
	}

	stopConn, stopPort, err := bindLoopbackUDP()
	if err != nil {
		l.closeAll(sockets)
		return 0, 0, 0, err
	}
	sockets.Stop = stopConn
	sockets.StopPort = stopPort

	l.sockets = sockets
	l.spawnLoops()

	return sockets.Port4, sockets.Port6, sockets.Port6ULAGUA, nil
}

// spawnLoops fans every bound socket's accept/receive loop out as an
// errgroup goroutine, then registers the errgroup's Wait as the single
// persistent thread-pool job the listener occupies.
func (l *Listener) spawnLoops() {
	s := l.sockets
	g := &errgroup.Group{}

	if s.HTTPv4 != nil {
		g.Go(func() error { l.acceptLoop(s.HTTPv4); return nil })
	}
	if s.HTTPv6 != nil {
		g.Go(func() error { l.acceptLoop(s.HTTPv6); return nil })
	}
	if s.HTTPv6ULAGUA != nil {
		g.Go(func() error { l.acceptLoop(s.HTTPv6ULAGUA); return nil })
	}
	if s.SSDPv4 != nil {
		g.Go(func() error { return ssdp.ReceiveLoop(s.SSDPv4, l.cfg.SSDPEngine) })
	}
	if s.SSDPv6LinkLocal != nil {
		g.Go(func() error { return ssdp.ReceiveLoop(s.SSDPv6LinkLocal, l.cfg.SSDPEngine) })
	}
	if s.SSDPv6ULAGUA != nil {
		g.Go(func() error { return ssdp.ReceiveLoop(s.SSDPv6ULAGUA, l.cfg.SSDPEngine) })
	}
	g.Go(func() error { l.stopLoop(); return nil })

	l.group = g
	l.cfg.Pool.AddPersistent("miniserver-listener", func() {
		if err := g.Wait(); err != nil && !l.stopped {
			l.cfg.Logger.Warn("listener socket loop exited with error", zap.Error(err))
		}
	})
}

// acceptLoop accepts connections off ln until it is closed, scheduling
// each one as a medium-priority thread-pool job.
func (l *Listener) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return // socket closed by Stop; each socket is closed exactly once
		}
		l.cfg.Logger.Info("accepted connection", zap.Stringer("remote_addr", conn.RemoteAddr()))
		connCfg := l.cfg.ConnectionConfig
		connCfg.Logger = l.cfg.Logger
		job := threadpool.NewJob(func() { handleConnection(conn, connCfg) }, threadpool.Medium)
		if err := l.cfg.Pool.Add(job); err != nil {
			l.cfg.Logger.Warn("failed to schedule accepted connection, closing", zap.Error(err))
			conn.Close()
		}
	}
}

// stopLoop reads datagrams off the loopback stop socket until it
// matches the exact sentinel from 127.0.0.1: any other source or
// payload is logged and ignored, a defense against remote termination.
func (l *Listener) stopLoop() {
	buf := make([]byte, 64)
	for {
		n, addr, err := l.sockets.Stop.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		if !addr.IP.Equal(net.IPv4(127, 0, 0, 1)) || !bytes.Equal(buf[:n], stopSentinel) {
			l.cfg.Logger.Warn("ignoring unrecognized stop datagram", zap.Stringer("source", addr))
			continue
		}
		l.stopped = true
		l.shutdownSockets()
		close(l.closed)
		return
	}
}

// StopPort returns the ephemeral loopback port the stop socket bound
// to. Valid only after Start has returned successfully; callers that
// need to trigger shutdown from a separate process (cmd/miniserverd's
// stop subcommand) persist this value themselves.
func (l *Listener) StopPort() int {
	return l.sockets.StopPort
}

// Stop sends the sentinel datagram from 127.0.0.1 and waits for the
// listener to observe it and close every socket.
func (l *Listener) Stop() error {
	raddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: l.sockets.StopPort}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return uerrors.E("miniserver.Stop", uerrors.KindSocketWrite, err)
	}
	defer conn.Close()
	if _, err := conn.Write(stopSentinel); err != nil {
		return uerrors.E("miniserver.Stop", uerrors.KindSocketWrite, err)
	}

	select {
	case <-l.closed:
		return nil
	case <-time.After(5 * time.Second):
		return uerrors.E("miniserver.Stop", uerrors.KindTimeout, nil)
	}
}

func (l *Listener) shutdownSockets() {
	l.closeAll(l.sockets)
}

func (l *Listener) closeAll(s *Sockets) {
	if s.HTTPv4 != nil {
		s.HTTPv4.Close()
	}
	if s.HTTPv6 != nil {
		s.HTTPv6.Close()
	}
	if s.HTTPv6ULAGUA != nil {
		s.HTTPv6ULAGUA.Close()
	}
	if s.SSDPv4 != nil {
		s.SSDPv4.Close()
	}
	if s.SSDPv6LinkLocal != nil {
		s.SSDPv6LinkLocal.Close()
	}
	if s.SSDPv6ULAGUA != nil {
		s.SSDPv6ULAGUA.Close()
	}
	if s.Stop != nil {
		s.Stop.Close()
	}
}

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

package main

import (
	"go.uber.org/zap"

	"github.com/upnpstack/miniserver/internal/config"
	"github.com/upnpstack/miniserver/miniserver"
	"github.com/upnpstack/miniserver/ssdp"
	"github.com/upnpstack/miniserver/threadpool"
	"github.com/upnpstack/miniserver/webserver"
)

// application is every long-lived collaborator one miniserverd process
// wires together: thread pool, timer queue, web-server resolver over a
// filesystem root, and the listener that serves it. SOAP/GENA handlers
// are registered by embedders of this daemon; a bare miniserverd
// therefore only answers Web requests.
type application struct {
	pool     *threadpool.Pool
	timers   *threadpool.TimerQueue
	resolver *webserver.Resolver
	aliases  *webserver.AliasCache
	vdirs    *webserver.VirtualDirRegistry
	listener *miniserver.Listener
}

func newApplication(cfg config.Config, logger *zap.Logger) *application {
	pool := threadpool.New(threadpool.Config{
		MinThreads:     cfg.Pool.MinThreads,
		MaxThreads:     cfg.Pool.MaxThreads,
		JobsPerThread:  cfg.Pool.JobsPerThread,
		MaxIdleTime:    cfg.Pool.MaxIdleTime,
		StarvationTime: cfg.Pool.StarvationTime,
		Logger:         logger.Named("threadpool"),
	})
	timers := threadpool.NewTimerQueue(pool, logger.Named("timer"))

	aliases := webserver.NewAliasCache()
	vdirs := webserver.NewVirtualDirRegistry()
	resolver := webserver.NewResolver(webserver.Config{
		DocumentRoot:          cfg.Server.DocumentRoot,
		ContentLanguage:       cfg.Server.ContentLanguage,
		AllowPostToFilesystem: cfg.Server.AllowPostToFilesystem,
		MaxContentLength:      cfg.Server.MaxContentLength,
	}, aliases, vdirs)

	dispatcher := miniserver.NewDispatcher(miniserver.DispatcherConfig{
		AllowLiteralHostRedirection: cfg.Server.AllowLiteralHostRedirection,
		Logger:                      logger.Named("dispatcher"),
	}, resolver)

	listener := miniserver.NewListener(miniserver.Config{
		Port4:       cfg.Listen.Port4,
		Port6:       cfg.Listen.Port6,
		Port6ULAGUA: cfg.Listen.Port6ULAGUA,
		EnableIPv6:  cfg.Listen.EnableIPv6,
		ReuseAddr:   cfg.Listen.ReuseAddr,
		ConnectionConfig: miniserver.ConnectionConfig{
			ReadTimeout:      cfg.Server.ReadTimeout,
			WriteTimeout:     cfg.Server.WriteTimeout,
			MaxContentLength: cfg.Server.MaxContentLength,
			Dispatcher:       dispatcher,
			Logger:           logger.Named("connection"),
		},
		SSDPEngine: ssdp.NopEngine{},
		Pool:       pool,
		Logger:     logger.Named("listener"),
	})

	return &application{
		pool:     pool,
		timers:   timers,
		resolver: resolver,
		aliases:  aliases,
		vdirs:    vdirs,
		listener: listener,
	}
}

func (a *application) stopPort() int {
	return a.listener.StopPort()
}

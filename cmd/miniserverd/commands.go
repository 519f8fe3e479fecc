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
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/upnpstack/miniserver/internal/config"
	"github.com/upnpstack/miniserver/internal/logging"
)

// appVersion is the build-time version string the version subcommand
// prints; the Server banner (webserver.ServerString) carries webserver's
// own sdkVersion instead.
const appVersion = "1.0.0"

// defaultStateFile is where serve records the stop socket's ephemeral
// port so a separate `miniserverd stop` invocation can find it.
const defaultStateFile = "miniserverd.port"

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "miniserverd",
		Short: "UPnP miniserver daemon",
		Long: `miniserverd starts a miniserver instance: a listener
multiplexer serving HTTP description/control requests and SSDP
discovery datagrams, backed by a thread pool and a web-server resolver
over a filesystem document root, the single-slot alias cache, and any
registered virtual directories.`,
	}
	root.AddCommand(serveCommand(), stopCommand(), versionCommand())
	return root
}

func serveCommand() *cobra.Command {
	var configFile, stateFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the miniserver in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile, stateFile)
		},
	}
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.StringVar(&configFile, "config", "", "path to a TOML configuration file")
	fs.StringVar(&stateFile, "state-file", defaultStateFile, "path to record the stop socket's port")
	cmd.Flags().AddFlagSet(fs)
	return cmd
}

func stopCommand() *cobra.Command {
	var stateFile string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running miniserverd by its stop-socket port",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(stateFile)
		},
	}
	cmd.Flags().StringVar(&stateFile, "state-file", defaultStateFile, "path the running instance recorded its stop socket's port to")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(appVersion)
			return nil
		},
	}
}

func runServe(configFile, stateFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)
	defer logger.Sync()

	app := newApplication(cfg, logger)

	port4, port6, port6ulagua, err := app.listener.Start()
	if err != nil {
		return err
	}
	logger.Info("miniserver listening",
		zap.Int("port4", port4), zap.Int("port6", port6), zap.Int("port6_ula_gua", port6ulagua))

	if err := os.WriteFile(stateFile, []byte(strconv.Itoa(app.stopPort())), 0o600); err != nil {
		logger.Warn("failed to write state file, stop command will not find this instance", zap.Error(err))
	}
	defer os.Remove(stateFile)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	if err := app.listener.Stop(); err != nil {
		logger.Warn("listener stop", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.timers.Stop()
	return app.pool.Shutdown(ctx)
}

func runStop(stateFile string) error {
	raw, err := os.ReadFile(stateFile)
	if err != nil {
		return fmt.Errorf("reading state file %s: %w", stateFile, err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("state file %s does not contain a port: %w", stateFile, err)
	}

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return fmt.Errorf("dialing stop socket: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("ShutDown\x00")); err != nil {
		return fmt.Errorf("sending stop sentinel: %w", err)
	}
	fmt.Println("stop sentinel sent")
	return nil
}

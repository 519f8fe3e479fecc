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

// Package config loads the daemon's TOML configuration file: parsed
// once at startup into a plain struct, never re-read.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/upnpstack/miniserver/uerrors"
)

// Config is the daemon's complete, parsed configuration.
type Config struct {
	Listen  Listen  `toml:"listen"`
	Server  Server  `toml:"server"`
	Pool    Pool    `toml:"pool"`
	Logging Logging `toml:"logging"`
}

// Listen bounds the ports the miniserver.Listener binds.
type Listen struct {
	Port4       int  `toml:"port4"`
	Port6       int  `toml:"port6"`
	Port6ULAGUA int  `toml:"port6_ula_gua"`
	EnableIPv6  bool `toml:"enable_ipv6"`
	ReuseAddr   bool `toml:"reuse_addr"` // MINISERVER_REUSEADDR
}

// Server bounds the web-server resolver and connection handling.
type Server struct {
	DocumentRoot                string        `toml:"document_root"`
	ContentLanguage             string        `toml:"content_language"` // WEB_SERVER_CONTENT_LANGUAGE
	AllowPostToFilesystem       bool          `toml:"allow_post_to_filesystem"`
	AllowLiteralHostRedirection bool          `toml:"allow_literal_host_redirection"`
	MaxContentLength            int64         `toml:"max_content_length"` // g_maxContentLength
	ReadTimeout                 time.Duration `toml:"read_timeout"`
	WriteTimeout                time.Duration `toml:"write_timeout"`
}

// Pool bounds the thread pool.
type Pool struct {
	MinThreads     int           `toml:"min_threads"`
	MaxThreads     int           `toml:"max_threads"`
	JobsPerThread  float64       `toml:"jobs_per_thread"`
	MaxIdleTime    time.Duration `toml:"max_idle_time"`
	StarvationTime time.Duration `toml:"starvation_time"`
}

// Logging bounds logger construction (internal/logging).
type Logging struct {
	Level      string `toml:"level"`
	Production bool   `toml:"production"`
}

// Default returns the configuration used when no file is given: no
// document root, IPv4-only, no redirection on a non-numeric Host.
func Default() Config {
	return Config{
		Listen: Listen{EnableIPv6: false, ReuseAddr: true},
		Server: Server{
			MaxContentLength: 16 * 1024 * 1024,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
		},
		Pool: Pool{
			MinThreads:     2,
			MaxThreads:     10,
			JobsPerThread:  10,
			MaxIdleTime:    10 * time.Second,
			StarvationTime: 500 * time.Millisecond,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load parses path as TOML into a Config seeded with Default values, so
// a config file only needs to set what it wants to override.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, uerrors.E("config.Load", uerrors.KindInvalidParam, err)
	}
	return cfg, nil
}

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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "miniserverd.toml")
	const toml = `
[listen]
port4 = 8080
enable_ipv6 = true

[server]
document_root = "/srv/www"
allow_literal_host_redirection = true
`
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Listen.Port4)
	require.True(t, cfg.Listen.EnableIPv6)
	require.True(t, cfg.Listen.ReuseAddr) // unset in file, default carries over

	require.Equal(t, "/srv/www", cfg.Server.DocumentRoot)
	require.True(t, cfg.Server.AllowLiteralHostRedirection)
	require.Equal(t, Default().Server.MaxContentLength, cfg.Server.MaxContentLength)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

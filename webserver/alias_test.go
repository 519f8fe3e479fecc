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

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAliasGrabMatchesNameOnly(t *testing.T) {
	c := NewAliasCache()
	c.Set("/desc.xml", []byte("<root/>"), time.Now())

	_, ok := c.Grab("/other.xml")
	require.False(t, ok)

	a, ok := c.Grab("/desc.xml")
	require.True(t, ok)
	require.Equal(t, "<root/>", string(a.Bytes()))
	a.Release()
}

func TestAliasClearRemovesDocument(t *testing.T) {
	c := NewAliasCache()
	c.Set("/desc.xml", []byte("<root/>"), time.Now())
	c.Clear()
	_, ok := c.Grab("/desc.xml")
	require.False(t, ok)
}

func TestAliasSetReplacesWhileGrabHeld(t *testing.T) {
	c := NewAliasCache()
	c.Set("/desc.xml", []byte("generation-1"), time.Now())

	a, ok := c.Grab("/desc.xml")
	require.True(t, ok)

	c.Set("/desc.xml", []byte("generation-2"), time.Now())

	// The held grab keeps seeing its own generation.
	require.Equal(t, "generation-1", string(a.Bytes()))
	a.Release()

	b, ok := c.Grab("/desc.xml")
	require.True(t, ok)
	require.Equal(t, "generation-2", string(b.Bytes()))
	b.Release()
}

func TestAliasConcurrentGrabReleaseSeeConsistentBytes(t *testing.T) {
	c := NewAliasCache()
	c.Set("/desc.xml", []byte("stable-bytes"), time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				a, ok := c.Grab("/desc.xml")
				if !ok {
					continue
				}
				if string(a.Bytes()) != "stable-bytes" && string(a.Bytes()) != "swapped-bytes" {
					t.Error("grab observed torn alias bytes")
					a.Release()
					return
				}
				a.Release()
			}
		}()
	}
	for i := 0; i < 20; i++ {
		c.Set("/desc.xml", []byte("swapped-bytes"), time.Now())
	}
	wg.Wait()
}

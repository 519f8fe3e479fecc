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

package threadpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p := New(Config{
		MinThreads:     2,
		MaxThreads:     4,
		JobsPerThread:  2,
		MaxIdleTime:    50 * time.Millisecond,
		StarvationTime: 30 * time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Shutdown(ctx)
	})
	return p
}

func TestPoolRunsJobs(t *testing.T) {
	p := newTestPool(t)

	var n int32
	var wg sync.WaitGroup
	wg.Add(20)
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Add(NewJob(func() {
			atomic.AddInt32(&n, 1)
			wg.Done()
		}, Medium)))
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not complete in time")
	}
	require.EqualValues(t, 20, atomic.LoadInt32(&n))
}

func TestPoolStarvationPromotion(t *testing.T) {
	p := newTestPool(t)

	block := make(chan struct{})
	// Occupy both core workers with a blocking High job so a Low job sits
	// and ages (two jobs on two workers stay under JobsPerThread, so no
	// extra worker is spawned).
	var started sync.WaitGroup
	started.Add(p.cfg.MinThreads)
	for i := 0; i < p.cfg.MinThreads; i++ {
		require.NoError(t, p.Add(NewJob(func() {
			started.Done()
			<-block
		}, High)))
	}
	started.Wait()

	order := make(chan Priority, 1)
	require.NoError(t, p.Add(NewJob(func() {
		select {
		case order <- Low:
		default:
		}
	}, Low)))

	time.Sleep(100 * time.Millisecond)
	p.mu.Lock()
	// Promotion happens at the start of a dequeue; every worker is
	// blocked, so run that step here as the next dequeue would.
	p.promoteStarvedLocked()
	promoted := len(p.queues[Medium]) > 0 || len(p.queues[High]) > 2
	p.mu.Unlock()
	close(block)
	require.True(t, promoted, "expected starved low-priority job to be promoted")
	<-order
}

func TestPoolAddPersistentBypassesQueue(t *testing.T) {
	p := newTestPool(t)

	ran := make(chan struct{})
	require.NoError(t, p.AddPersistent("test-persistent", func() {
		close(ran)
	}))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("persistent job never ran")
	}
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	p := New(Config{MinThreads: 1, MaxThreads: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	err := p.Add(NewJob(func() {}, Low))
	require.Error(t, err)
}

func TestTimerQueueFiresJobThroughPool(t *testing.T) {
	p := newTestPool(t)
	tq := NewTimerQueue(p, nil)
	defer tq.Stop()

	fired := make(chan struct{})
	tq.After(20*time.Millisecond, Medium, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer job did not fire")
	}
}

func TestTimerQueueCancel(t *testing.T) {
	p := newTestPool(t)
	tq := NewTimerQueue(p, nil)
	defer tq.Stop()

	fired := int32(0)
	h := tq.After(30*time.Millisecond, Medium, func() { atomic.AddInt32(&fired, 1) })
	h.Cancel()

	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&fired))
}

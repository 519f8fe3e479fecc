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
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"
)

// timerEntry is one (deadline, job) pair tracked by the TimerQueue.
type timerEntry struct {
	deadline time.Time
	priority Priority
	fn       func()
	index    int
	canceled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerQueue holds an ordered set of (deadline, job) pairs. Due jobs
// are pushed into a Pool rather than run inline: the timer's only
// responsibility is waking up, not executing.
type TimerQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   timerHeap
	pool   *Pool
	logger *zap.Logger
	stop   bool
}

// NewTimerQueue creates a TimerQueue that enqueues due jobs into pool
// at the Priority each was scheduled with, and starts its persistent
// waiter goroutine.
func NewTimerQueue(pool *Pool, logger *zap.Logger) *TimerQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &TimerQueue{pool: pool, logger: logger}
	t.cond = sync.NewCond(&t.mu)
	pool.AddPersistent("timer-queue", t.run)
	return t
}

// Handle cancels a scheduled timer job when still pending.
type Handle struct {
	entry *timerEntry
	q     *TimerQueue
}

// Cancel prevents a not-yet-fired timer job from running. It is a
// no-op if the job already fired or was already canceled.
func (h *Handle) Cancel() {
	h.q.mu.Lock()
	defer h.q.mu.Unlock()
	h.entry.canceled = true
}

// Schedule arranges for fn to run (via the Pool, at priority) once at
// or after deadline.
func (t *TimerQueue) Schedule(deadline time.Time, priority Priority, fn func()) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &timerEntry{deadline: deadline, priority: priority, fn: fn}
	heap.Push(&t.heap, e)
	t.cond.Signal()
	return &Handle{entry: e, q: t}
}

// After is shorthand for Schedule(time.Now().Add(d), priority, fn).
func (t *TimerQueue) After(d time.Duration, priority Priority, fn func()) *Handle {
	return t.Schedule(time.Now().Add(d), priority, fn)
}

// Stop halts the timer queue's waiter goroutine after its current wait.
func (t *TimerQueue) Stop() {
	t.mu.Lock()
	t.stop = true
	t.mu.Unlock()
	t.cond.Broadcast()
}

// run is the TimerQueue's persistent pool job: it wakes at the earliest
// deadline (or waits indefinitely when empty), pops every due entry and
// resubmits it to the pool, then sleeps again.
func (t *TimerQueue) run() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.stop {
			return
		}
		if len(t.heap) == 0 {
			t.cond.Wait()
			continue
		}
		next := t.heap[0].deadline
		wait := time.Until(next)
		if wait > 0 {
			timer := time.AfterFunc(wait, func() {
				t.mu.Lock()
				t.cond.Broadcast()
				t.mu.Unlock()
			})
			t.cond.Wait()
			timer.Stop()
			continue
		}
		t.fireDueLocked()
	}
}

func (t *TimerQueue) fireDueLocked() {
	now := time.Now()
	for len(t.heap) > 0 && !t.heap[0].deadline.After(now) {
		e := heap.Pop(&t.heap).(*timerEntry)
		if e.canceled {
			continue
		}
		fn := e.fn
		if err := t.pool.Add(NewJob(fn, e.priority)); err != nil {
			t.logger.Warn("timer queue failed to enqueue due job", zap.Error(err))
		}
	}
}

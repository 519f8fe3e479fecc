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
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/upnpstack/miniserver/uerrors"
)

// Config bounds a Pool's behavior.
type Config struct {
	MinThreads     int
	MaxThreads     int
	JobsPerThread  float64
	MaxIdleTime    time.Duration
	StarvationTime time.Duration
	Logger         *zap.Logger
	Metrics        *Metrics // optional
}

func (c *Config) setDefaults() {
	if c.MinThreads <= 0 {
		c.MinThreads = 2
	}
	if c.MaxThreads < c.MinThreads {
		c.MaxThreads = c.MinThreads * 5
	}
	if c.JobsPerThread <= 0 {
		c.JobsPerThread = 10
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 10 * time.Second
	}
	if c.StarvationTime <= 0 {
		c.StarvationTime = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Pool is a priority-queued worker pool with min/max worker bounds and
// starvation-based priority promotion.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	cond    *sync.Cond
	queues  [numPriorities][]*Job
	current int // workers currently alive (excludes persistent jobs)
	idle    int
	closed  bool

	sem *semaphore.Weighted
}

// New creates a Pool and starts MinThreads workers.
func New(cfg Config) *Pool {
	cfg.setDefaults()
	p := &Pool{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxThreads)),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < cfg.MinThreads; i++ {
		p.spawnWorker(true)
	}
	return p
}

// Add enqueues job at its priority, then spawns another worker if the
// jobs-per-thread ratio is exceeded and MaxThreads hasn't been reached.
func (p *Pool) Add(job *Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return uerrors.E("threadpool.Add", uerrors.KindInternalError, errPoolClosed)
	}
	p.queues[job.Priority] = append(p.queues[job.Priority], job)
	total := p.queueLenLocked()
	current := p.current
	p.mu.Unlock()

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.observeEnqueue(job.Priority)
	}

	if current > 0 && float64(total)/float64(current) > p.cfg.JobsPerThread {
		p.spawnWorker(false)
	}

	p.cond.Signal()
	return nil
}

// AddPersistent runs fn on its own dedicated, long-lived goroutine; it
// is never subject to starvation aging or the jobs-per-thread ratio.
// The listener and the timer queue each occupy one persistent slot.
func (p *Pool) AddPersistent(name string, fn func()) error {
	if !p.sem.TryAcquire(1) {
		return uerrors.E("threadpool.AddPersistent", uerrors.KindInternalError, errMaxThreads)
	}
	go func() {
		defer p.sem.Release(1)
		p.cfg.Logger.Debug("persistent job starting", zap.String("job", name))
		fn()
		p.cfg.Logger.Debug("persistent job exited", zap.String("job", name))
	}()
	return nil
}

// Shutdown waits for all queued jobs to drain, then signals every
// worker to exit and waits for them to do so (or ctx to expire).
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	for {
		p.mu.Lock()
		empty := p.queueLenLocked() == 0 && p.current == 0
		p.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-ctx.Done():
			return uerrors.E("threadpool.Shutdown", uerrors.KindTimeout, ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
		p.cond.Broadcast()
	}
}

func (p *Pool) queueLenLocked() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

func (p *Pool) spawnWorker(core bool) {
	if !core && !p.sem.TryAcquire(1) {
		return // at MaxThreads; caller's job stays queued for an existing worker
	}
	if core {
		p.sem.TryAcquire(1)
	}
	p.mu.Lock()
	p.current++
	p.mu.Unlock()
	go p.workerLoop(core)
}

func (p *Pool) workerLoop(core bool) {
	defer p.sem.Release(1)
	for {
		job := p.dequeue(core)
		if job == nil {
			return // retired (idle past MaxIdleTime, above MinThreads) or pool closed
		}
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.observeDequeue(job.Priority, job.age())
		}
		job.Func()
	}
}

// dequeue blocks until a job is available, the idle timeout retires
// this worker, or the pool closes. It promotes any job that has waited
// longer than StarvationTime to the next-higher priority before
// popping.
func (p *Pool) dequeue(core bool) *Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		p.promoteStarvedLocked()
		if job, ok := p.popHighestLocked(); ok {
			return job
		}
		if p.closed {
			p.current--
			return nil
		}
		if !core && p.current > p.cfg.MinThreads {
			waited := p.waitIdleLocked()
			if !waited {
				p.current--
				if p.cfg.Metrics != nil {
					p.cfg.Metrics.observeRetire()
				}
				return nil
			}
			continue
		}
		p.idle++
		p.cond.Wait()
		p.idle--
	}
}

// waitIdleLocked waits up to MaxIdleTime for a signal, returning false
// if it timed out (the caller should then retire).
func (p *Pool) waitIdleLocked() bool {
	done := make(chan struct{})
	timer := time.AfterFunc(p.cfg.MaxIdleTime, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		close(done)
		p.cond.Broadcast()
	})
	defer timer.Stop()

	p.idle++
	p.cond.Wait()
	p.idle--

	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (p *Pool) promoteStarvedLocked() {
	// Walk from the highest promotable class down so a job moved up this
	// pass is not examined again and promoted a second time.
	for prio := High - 1; prio >= Low; prio-- {
		q := p.queues[prio]
		kept := q[:0]
		for _, j := range q {
			if !j.persistent && j.age() > p.cfg.StarvationTime {
				p.queues[prio+1] = append(p.queues[prio+1], j)
				if p.cfg.Metrics != nil {
					p.cfg.Metrics.observePromotion()
				}
				continue
			}
			kept = append(kept, j)
		}
		p.queues[prio] = kept
	}
}

func (p *Pool) popHighestLocked() (*Job, bool) {
	for prio := High; prio >= Low; prio-- {
		q := p.queues[prio]
		if len(q) > 0 {
			job := q[0]
			p.queues[prio] = q[1:]
			return job, true
		}
	}
	return nil, false
}

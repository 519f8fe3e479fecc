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

// Package threadpool implements the priority-queued worker pool and
// timer queue that execute miniserver request jobs.
package threadpool

import (
	"time"

	"github.com/google/uuid"
)

// Priority is one of the pool's three FIFO classes.
type Priority int

const (
	Low Priority = iota
	Medium
	High

	numPriorities
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Job is one unit of work submitted to the pool.
type Job struct {
	ID       string
	Priority Priority
	Func     func()

	enqueuedAt time.Time
	persistent bool
}

// NewJob wraps fn as a Job at the given priority, stamping it with a
// unique correlation id in Job.ID; the pool itself does not log it.
func NewJob(fn func(), priority Priority) *Job {
	return &Job{ID: uuid.NewString(), Priority: priority, Func: fn, enqueuedAt: time.Now()}
}

func (j *Job) age() time.Duration { return time.Since(j.enqueuedAt) }

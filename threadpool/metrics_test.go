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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountEnqueueAndDequeue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	p := New(Config{MinThreads: 1, MaxThreads: 2, Metrics: m})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Shutdown(ctx)
	})

	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Add(NewJob(func() { wg.Done() }, Medium)))
	}
	wg.Wait()

	require.EqualValues(t, 5, testutil.ToFloat64(m.enqueued.WithLabelValues("medium")))
	require.EqualValues(t, 5, testutil.ToFloat64(m.dequeued.WithLabelValues("medium")))
}

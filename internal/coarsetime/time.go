// Package coarsetime provides a clock that is cheap to read and precise to
// about one Resolution.
//
// The clock is refreshed by a background goroutine started on first use.
// It is meant for bookkeeping on hot paths, e.g. stamping the last use of a
// connection after every request, not for measuring latencies.
package coarsetime

import (
	"sync"
	"sync/atomic"
	"time"
)

// Resolution is the refresh interval of the clock.
const Resolution = 50 * time.Millisecond

var (
	nowNanos atomic.Int64
	start    sync.Once
)

func run() {
	nowNanos.Store(time.Now().UnixNano())

	ticker := time.NewTicker(Resolution)
	go func() {
		for t := range ticker.C {
			nowNanos.Store(t.UnixNano())
		}
	}()
}

// Now returns the current coarse time. It never runs ahead of time.Now().
func Now() time.Time {
	start.Do(run)
	return time.Unix(0, nowNanos.Load())
}

// Since returns the coarse time elapsed since t, never negative.
func Since(t time.Time) time.Duration {
	return max(Now().Sub(t), 0)
}

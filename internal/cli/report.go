package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/pior/linebuf/memcache"
)

func printReaderResults(w io.Writer, results []readerResult) {
	fmt.Fprintf(w, "\n%-10s %12s %10s %14s %12s %14s %12s\n",
		"Reader", "Responses", "Duration", "Responses/sec", "Avg Batch", "Allocs/resp", "Bytes read")
	for _, r := range results {
		fmt.Fprintf(w, "%-10s %12s %10s %14s %12s %14.2f %12s\n",
			r.reader,
			formatNumber(r.responses),
			formatDuration(r.duration),
			formatNumber(int64(r.responsesPerSec())),
			formatDuration(r.avgPerBatch),
			r.allocsPerResponse(),
			formatNumber(r.bytes),
		)
	}
}

func printClientResults(w io.Writer, results []clientResult) {
	fmt.Fprintf(w, "\n%-20s %12s %10s %12s %12s %12s\n",
		"Operation", "Count", "Duration", "Ops/sec", "Items/sec", "Avg Latency")
	for _, r := range results {
		itemsPerSec := "-"
		if r.itemsPerOp > 1 {
			itemsPerSec = formatNumber(int64(r.itemsPerSec))
		}
		fmt.Fprintf(w, "%-20s %12s %10s %12s %12s %12s\n",
			r.name,
			formatNumber(int64(r.count)),
			formatDuration(r.duration),
			formatNumber(int64(r.opsPerSec)),
			itemsPerSec,
			formatDuration(r.avgLatency),
		)
	}
}

func printPoolStats(w io.Writer, stats []memcache.ServerPoolStats) {
	fmt.Fprintf(w, "\nPool Statistics\n")
	fmt.Fprintf(w, "===============\n")
	for _, server := range stats {
		pool := server.PoolStats
		fmt.Fprintf(w, "\nServer: %s (circuit breaker %s)\n", server.Addr, server.CircuitBreakerState)
		fmt.Fprintf(w, "Connections:\n")
		fmt.Fprintf(w, "  Total:     %d\n", pool.TotalConns)
		fmt.Fprintf(w, "  Active:    %d\n", pool.ActiveConns)
		fmt.Fprintf(w, "  Idle:      %d\n", pool.IdleConns)
		fmt.Fprintf(w, "  Created:   %s\n", formatNumber(int64(pool.CreatedConns)))
		fmt.Fprintf(w, "  Destroyed: %s\n", formatNumber(int64(pool.DestroyedConns)))

		fmt.Fprintf(w, "Acquires:\n")
		fmt.Fprintf(w, "  Total:     %s\n", formatNumber(int64(pool.AcquireCount)))
		if pool.AcquireWaitCount > 0 {
			waitPct := float64(pool.AcquireWaitCount) / float64(pool.AcquireCount) * 100
			avgWait := time.Duration(pool.AcquireWaitTimeNs / pool.AcquireWaitCount)
			fmt.Fprintf(w, "  Waited:    %s (%.1f%%, avg %s)\n",
				formatNumber(int64(pool.AcquireWaitCount)), waitPct, formatDuration(avgWait))
		}
		if pool.AcquireErrors > 0 {
			fmt.Fprintf(w, "  Errors:    %s\n", formatNumber(int64(pool.AcquireErrors)))
		}
	}
}

func formatNumber(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.2fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000)
}

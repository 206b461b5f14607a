package memcache

import (
	"sync/atomic"

	"github.com/sony/gobreaker/v2"
)

// PoolStats is a snapshot of the connection pool of one server.
//
// For Prometheus, TotalConns, IdleConns and ActiveConns are gauges, the
// other fields are counters.
type PoolStats struct {
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait for a connection
	CreatedConns      uint64 // Connections dialed
	DestroyedConns    uint64 // Connections closed
	AcquireErrors     uint64 // Canceled acquires and dial failures
	AcquireWaitTimeNs uint64 // Total time spent waiting for a connection

	TotalConns  int32
	IdleConns   int32
	ActiveConns int32
}

// ServerPoolStats is the state of one server: its pool and circuit breaker.
type ServerPoolStats struct {
	Addr                 string
	PoolStats            PoolStats
	CircuitBreakerState  gobreaker.State
	CircuitBreakerCounts gobreaker.Counts
}

// ClientStats is a snapshot of the client operation counters.
type ClientStats struct {
	Gets       uint64
	GetHits    uint64 // Gets that found the key
	Sets       uint64
	Adds       uint64
	Deletes    uint64
	Increments uint64
	Errors     uint64 // Failed operations, all kinds
}

type clientStatsCollector struct {
	gets       atomic.Uint64
	getHits    atomic.Uint64
	sets       atomic.Uint64
	adds       atomic.Uint64
	deletes    atomic.Uint64
	increments atomic.Uint64
	errors     atomic.Uint64
}

func (c *clientStatsCollector) recordGet(found bool) {
	c.gets.Add(1)
	if found {
		c.getHits.Add(1)
	}
}

func (c *clientStatsCollector) recordSet()       { c.sets.Add(1) }
func (c *clientStatsCollector) recordAdd()       { c.adds.Add(1) }
func (c *clientStatsCollector) recordDelete()    { c.deletes.Add(1) }
func (c *clientStatsCollector) recordIncrement() { c.increments.Add(1) }
func (c *clientStatsCollector) recordError()     { c.errors.Add(1) }

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:       c.gets.Load(),
		GetHits:    c.getHits.Load(),
		Sets:       c.sets.Load(),
		Adds:       c.adds.Load(),
		Deletes:    c.deletes.Load(),
		Increments: c.increments.Load(),
		Errors:     c.errors.Load(),
	}
}

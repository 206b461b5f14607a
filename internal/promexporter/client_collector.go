package promexporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pior/linebuf/memcache"
)

// StatsSource is implemented by *memcache.Client.
type StatsSource interface {
	Stats() memcache.ClientStats
	AllPoolStats() []memcache.ServerPoolStats
}

var (
	opsDesc = prometheus.NewDesc(
		"memcache_operations_total",
		"Total number of client operations.",
		[]string{"operation"}, nil,
	)
	getHitsDesc = prometheus.NewDesc(
		"memcache_get_hits_total",
		"Get operations that found the key.",
		nil, nil,
	)
	errorsDesc = prometheus.NewDesc(
		"memcache_errors_total",
		"Failed client operations.",
		nil, nil,
	)
	poolConnsDesc = prometheus.NewDesc(
		"memcache_pool_connections",
		"Connections in the pool of a server.",
		[]string{"server", "state"}, nil, // state: total, active, idle
	)
	poolCreatedDesc = prometheus.NewDesc(
		"memcache_pool_connections_created_total",
		"Connections dialed.",
		[]string{"server"}, nil,
	)
	poolDestroyedDesc = prometheus.NewDesc(
		"memcache_pool_connections_destroyed_total",
		"Connections closed.",
		[]string{"server"}, nil,
	)
	poolAcquiresDesc = prometheus.NewDesc(
		"memcache_pool_acquires_total",
		"Connection acquire attempts.",
		[]string{"server"}, nil,
	)
	poolAcquireErrorsDesc = prometheus.NewDesc(
		"memcache_pool_acquire_errors_total",
		"Canceled acquires and dial failures.",
		[]string{"server"}, nil,
	)
	poolWaitDesc = prometheus.NewDesc(
		"memcache_pool_acquire_wait_seconds_total",
		"Time spent waiting for a connection.",
		[]string{"server"}, nil,
	)
	circuitStateDesc = prometheus.NewDesc(
		"memcache_circuit_breaker_state",
		"Circuit breaker state (0=closed, 1=half-open, 2=open).",
		[]string{"server"}, nil,
	)
	circuitFailuresDesc = prometheus.NewDesc(
		"memcache_circuit_breaker_failures",
		"Failures counted in the current circuit breaker interval.",
		[]string{"server", "type"}, nil, // type: total, consecutive
	)
)

// ClientCollector reads the client stats at scrape time.
type ClientCollector struct {
	source StatsSource
}

func NewClientCollector(source StatsSource) *ClientCollector {
	return &ClientCollector{source: source}
}

var _ prometheus.Collector = (*ClientCollector)(nil)

func (c *ClientCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range []*prometheus.Desc{
		opsDesc, getHitsDesc, errorsDesc,
		poolConnsDesc, poolCreatedDesc, poolDestroyedDesc, poolAcquiresDesc, poolAcquireErrorsDesc, poolWaitDesc,
		circuitStateDesc, circuitFailuresDesc,
	} {
		ch <- desc
	}
}

func (c *ClientCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	for op, count := range map[string]uint64{
		"get":       stats.Gets,
		"set":       stats.Sets,
		"add":       stats.Adds,
		"delete":    stats.Deletes,
		"increment": stats.Increments,
	} {
		ch <- prometheus.MustNewConstMetric(opsDesc, prometheus.CounterValue, float64(count), op)
	}
	ch <- prometheus.MustNewConstMetric(getHitsDesc, prometheus.CounterValue, float64(stats.GetHits))
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(stats.Errors))

	for _, s := range c.source.AllPoolStats() {
		p := s.PoolStats

		ch <- prometheus.MustNewConstMetric(poolConnsDesc, prometheus.GaugeValue, float64(p.TotalConns), s.Addr, "total")
		ch <- prometheus.MustNewConstMetric(poolConnsDesc, prometheus.GaugeValue, float64(p.ActiveConns), s.Addr, "active")
		ch <- prometheus.MustNewConstMetric(poolConnsDesc, prometheus.GaugeValue, float64(p.IdleConns), s.Addr, "idle")
		ch <- prometheus.MustNewConstMetric(poolCreatedDesc, prometheus.CounterValue, float64(p.CreatedConns), s.Addr)
		ch <- prometheus.MustNewConstMetric(poolDestroyedDesc, prometheus.CounterValue, float64(p.DestroyedConns), s.Addr)
		ch <- prometheus.MustNewConstMetric(poolAcquiresDesc, prometheus.CounterValue, float64(p.AcquireCount), s.Addr)
		ch <- prometheus.MustNewConstMetric(poolAcquireErrorsDesc, prometheus.CounterValue, float64(p.AcquireErrors), s.Addr)
		ch <- prometheus.MustNewConstMetric(poolWaitDesc, prometheus.CounterValue, float64(p.AcquireWaitTimeNs)/1e9, s.Addr)

		ch <- prometheus.MustNewConstMetric(circuitStateDesc, prometheus.GaugeValue, float64(s.CircuitBreakerState), s.Addr)
		ch <- prometheus.MustNewConstMetric(circuitFailuresDesc, prometheus.GaugeValue, float64(s.CircuitBreakerCounts.TotalFailures), s.Addr, "total")
		ch <- prometheus.MustNewConstMetric(circuitFailuresDesc, prometheus.GaugeValue, float64(s.CircuitBreakerCounts.ConsecutiveFailures), s.Addr, "consecutive")
	}
}

package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// FleetStats gives the collector access to live in-process state that
// isn't naturally a counter/histogram: connected worker count and the
// admin API's active event-stream subscriber count.
type FleetStats interface {
	ConnectedWorkers() int
	StreamSubscriberCount() int
}

// Collector implements prometheus.Collector, reading live gauges at
// scrape time: the memory corpus's pgx pool stats and whatever
// FleetStats the admin API wires in. pool and stats may be nil.
type Collector struct {
	pool  *pgxpool.Pool
	stats FleetStats

	connectedWorkers *prometheus.Desc
	streamSubscribers *prometheus.Desc
	dbTotalConns     *prometheus.Desc
	dbAcquiredConns  *prometheus.Desc
	dbIdleConns      *prometheus.Desc
}

func NewCollector(pool *pgxpool.Pool, stats FleetStats) *Collector {
	return &Collector{
		pool:  pool,
		stats: stats,
		connectedWorkers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "connected_workers"),
			"Current number of workers with a fresh system/health record.",
			nil, nil,
		),
		streamSubscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "stream_subscribers_active"),
			"Current number of admin live-event-stream subscribers.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory_db_pool", "total_conns"),
			"Total memory corpus database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory_db_pool", "acquired_conns"),
			"Memory corpus database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory_db_pool", "idle_conns"),
			"Memory corpus database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connectedWorkers
	ch <- c.streamSubscribers
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats != nil {
		ch <- prometheus.MustNewConstMetric(c.connectedWorkers, prometheus.GaugeValue, float64(c.stats.ConnectedWorkers()))
		ch <- prometheus.MustNewConstMetric(c.streamSubscribers, prometheus.GaugeValue, float64(c.stats.StreamSubscriberCount()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.connectedWorkers, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.streamSubscribers, prometheus.GaugeValue, 0)
	}

	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}

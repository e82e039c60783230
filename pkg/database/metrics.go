package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// PoolStatsCollector implements prometheus.Collector for pgxpool statistics.
type PoolStatsCollector struct {
	pool    *pgxpool.Pool
	service string

	acquiredConns    *prometheus.Desc
	idleConns        *prometheus.Desc
	totalConns       *prometheus.Desc
	maxConns         *prometheus.Desc
	acquireCount     *prometheus.Desc
	acquireDuration  *prometheus.Desc
	canceledAcquires *prometheus.Desc
	emptyAcquires    *prometheus.Desc
}

func poolDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc("tableorder_"+name, help, []string{"service"}, nil)
}

// NewPoolStatsCollector creates a collector exporting pgxpool statistics.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	return &PoolStatsCollector{
		pool:             pool,
		service:          service,
		acquiredConns:    poolDesc("db_pool_acquired_connections", "Number of currently acquired connections"),
		idleConns:        poolDesc("db_pool_idle_connections", "Number of currently idle connections"),
		totalConns:       poolDesc("db_pool_total_connections", "Total number of connections in the pool"),
		maxConns:         poolDesc("db_pool_max_connections", "Maximum number of connections allowed"),
		acquireCount:     poolDesc("db_pool_acquire_count_total", "Total number of connection acquires"),
		acquireDuration:  poolDesc("db_pool_acquire_duration_seconds_total", "Total time spent acquiring connections in seconds"),
		canceledAcquires: poolDesc("db_pool_canceled_acquire_count_total", "Total number of canceled connection acquires"),
		emptyAcquires:    poolDesc("db_pool_empty_acquire_count_total", "Total number of acquires that had to wait for a connection"),
	}
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredConns
	ch <- c.idleConns
	ch <- c.totalConns
	ch <- c.maxConns
	ch <- c.acquireCount
	ch <- c.acquireDuration
	ch <- c.canceledAcquires
	ch <- c.emptyAcquires
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	stat := c.pool.Stat()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, c.service)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, c.service)
	}

	gauge(c.acquiredConns, float64(stat.AcquiredConns()))
	gauge(c.idleConns, float64(stat.IdleConns()))
	gauge(c.totalConns, float64(stat.TotalConns()))
	gauge(c.maxConns, float64(stat.MaxConns()))
	counter(c.acquireCount, float64(stat.AcquireCount()))
	counter(c.acquireDuration, stat.AcquireDuration().Seconds())
	counter(c.canceledAcquires, float64(stat.CanceledAcquireCount()))
	counter(c.emptyAcquires, float64(stat.EmptyAcquireCount()))
}

// RedisPoolStats is satisfied by *redis.Client.
type RedisPoolStats interface {
	PoolStats() *redis.PoolStats
}

// RedisStatsCollector implements prometheus.Collector for go-redis pool statistics.
type RedisStatsCollector struct {
	client  RedisPoolStats
	service string

	hits       *prometheus.Desc
	misses     *prometheus.Desc
	timeouts   *prometheus.Desc
	totalConns *prometheus.Desc
	idleConns  *prometheus.Desc
	staleConns *prometheus.Desc
}

// NewRedisStatsCollector creates a collector exporting go-redis pool statistics.
func NewRedisStatsCollector(client RedisPoolStats, service string) *RedisStatsCollector {
	return &RedisStatsCollector{
		client:     client,
		service:    service,
		hits:       poolDesc("redis_pool_hits_total", "Number of times a free connection was found in the pool"),
		misses:     poolDesc("redis_pool_misses_total", "Number of times a free connection was not found in the pool"),
		timeouts:   poolDesc("redis_pool_timeouts_total", "Number of times a wait timeout occurred"),
		totalConns: poolDesc("redis_pool_total_connections", "Number of connections in the pool"),
		idleConns:  poolDesc("redis_pool_idle_connections", "Number of idle connections in the pool"),
		staleConns: poolDesc("redis_pool_stale_connections_total", "Number of stale connections removed from the pool"),
	}
}

func (c *RedisStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.timeouts
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.staleConns
}

func (c *RedisStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.client == nil {
		return
	}
	s := c.client.PoolStats()
	if s == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), c.service)
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), c.service)
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts), c.service)
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(s.TotalConns), c.service)
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(s.IdleConns), c.service)
	ch <- prometheus.MustNewConstMetric(c.staleConns, prometheus.CounterValue, float64(s.StaleConns), c.service)
}

// RegisterPoolMetrics registers the pgxpool collector with the default registry.
func RegisterPoolMetrics(pool *pgxpool.Pool, service string) {
	prometheus.MustRegister(NewPoolStatsCollector(pool, service))
}

// RegisterRedisMetrics registers the go-redis collector with the default registry.
func RegisterRedisMetrics(client RedisPoolStats, service string) {
	prometheus.MustRegister(NewRedisStatsCollector(client, service))
}

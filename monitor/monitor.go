package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/platform"
)

type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationLatency  *prometheus.HistogramVec
	MintedTokens      prometheus.Counter
	NotifyFailures    prometheus.Counter
	FeedSubscribers   prometheus.Gauge
	EventsPublished   prometheus.Counter
	EventsDropped     prometheus.Counter
	Games             prometheus.Gauge
	OpenSessions      prometheus.Gauge
	ActiveTournaments prometheus.Gauge
	Players           prometheus.Gauge
	ConsumedNonces    prometheus.Gauge
	Validators        prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Platform operations by outcome class",
		}, []string{"operation", "class"}),
		OperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Platform operation latency including the commit",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"operation"}),
		MintedTokens:      counter("minted_base_units_total", "Reward base units minted through the ledger"),
		NotifyFailures:    counter("level_up_notify_failures_total", "Level-up notifications the ledger rejected"),
		FeedSubscribers:   gauge("feed_subscribers", "Connected event feed subscribers"),
		EventsPublished:   counter("events_published_total", "Events fanned out to the feed"),
		EventsDropped:     counter("events_dropped_total", "Events dropped for slow subscribers"),
		Games:             gauge("games", "Registered games"),
		OpenSessions:      gauge("open_sessions", "Sessions started and not yet finished"),
		ActiveTournaments: gauge("active_tournaments", "Tournaments accepting entries or awaiting settlement"),
		Players:           gauge("players", "Players with recorded stats"),
		ConsumedNonces:    gauge("consumed_nonces", "Attestation nonces consumed"),
		Validators:        gauge("validators", "Authorized validators"),
	}
}

func (m *Metrics) all() []prometheus.Collector {
	return []prometheus.Collector{
		m.Operations,
		m.OperationLatency,
		m.MintedTokens,
		m.NotifyFailures,
		m.FeedSubscribers,
		m.EventsPublished,
		m.EventsDropped,
		m.Games,
		m.OpenSessions,
		m.ActiveTournaments,
		m.Players,
		m.ConsumedNonces,
		m.Validators,
	}
}

// Monitor owns a registry so several instances can coexist in one process.
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

func NewMonitor(namespace string) *Monitor {
	m := &Monitor{
		metrics:   NewMetrics(namespace),
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}
	m.registry.MustRegister(m.metrics.all()...)
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the monitor started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	}))
	m.registry.MustRegister(collectors.NewGoCollector())
	return m
}

func (m *Monitor) Metrics() *Metrics { return m.metrics }

func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Monitor) ObserveOperation(op string, class platform.Class, d time.Duration) {
	m.metrics.Operations.WithLabelValues(op, string(class)).Inc()
	m.metrics.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Monitor) AddMinted(amount models.Amount) {
	m.metrics.MintedTokens.Add(float64(amount))
}

func (m *Monitor) IncNotifyFailures() {
	m.metrics.NotifyFailures.Inc()
}

func (m *Monitor) IncSubscribers() {
	m.metrics.FeedSubscribers.Inc()
}

func (m *Monitor) DecSubscribers() {
	m.metrics.FeedSubscribers.Dec()
}

func (m *Monitor) IncEventsPublished() {
	m.metrics.EventsPublished.Inc()
}

func (m *Monitor) IncEventsDropped() {
	m.metrics.EventsDropped.Inc()
}

// SetCounts refreshes the registry gauges.
func (m *Monitor) SetCounts(c platform.Counts) {
	m.metrics.Games.Set(float64(c.Games))
	m.metrics.OpenSessions.Set(float64(c.OpenSessions))
	m.metrics.ActiveTournaments.Set(float64(c.ActiveTournaments))
	m.metrics.Players.Set(float64(c.Players))
	m.metrics.ConsumedNonces.Set(float64(c.ConsumedNonces))
	m.metrics.Validators.Set(float64(c.Validators))
}

var _ platform.Metrics = (*Monitor)(nil)

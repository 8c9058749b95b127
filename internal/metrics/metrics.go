// Package metrics exposes the service's Prometheus collectors. All methods
// are safe to call on a nil *Collector, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeReplayed = "replayed"
)

type Collector struct {
	registry          *prometheus.Registry
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	discrepancies     prometheus.Gauge
	unbalanced        prometheus.Gauge
	outboxDelivered   *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	panics            *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_operations_total",
			Help: "Money movements by operation and outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_ledger_operation_duration_seconds",
			Help:    "Time spent executing a money movement, including commit",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		discrepancies: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_ledger_discrepancies",
			Help: "Wallets whose cached balance disagreed with the ledger at the last full verification",
		}),
		unbalanced: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_ledger_unbalanced_currencies",
			Help: "Currencies whose total debits and credits differed at the last system-wide verification",
		}),
		outboxDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_outbox_events_total",
			Help: "Outbox delivery attempts by result",
		}, []string{"result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_http_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_ledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		panics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_http_panics_total",
			Help: "Handler panics recovered by method",
		}, []string{"method"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RecordOperation(operation, outcome string, started time.Time) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (c *Collector) SetDiscrepancies(n int) {
	if c == nil {
		return
	}
	c.discrepancies.Set(float64(n))
}

func (c *Collector) SetUnbalancedCurrencies(n int) {
	if c == nil {
		return
	}
	c.unbalanced.Set(float64(n))
}

func (c *Collector) RecordOutbox(result string) {
	if c == nil {
		return
	}
	c.outboxDelivered.WithLabelValues(result).Inc()
}

func (c *Collector) RecordHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (c *Collector) RecordPanic(method string) {
	if c == nil {
		return
	}
	c.panics.WithLabelValues(method).Inc()
}

// Package metrics exposes Prometheus collectors for the limiter, the top feed
// cache and HTTP requests.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serroba/bookmarks-go/internal/bookmark"
	"github.com/serroba/bookmarks-go/internal/ratelimit"
)

const namespace = "bookmarks"

// Metrics holds the service collectors.
type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	Requests           *prometheus.CounterVec
	Duration           *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New constructs the collectors and registers them with reg. Collectors that
// are already registered are reused.
func New(reg *prometheus.Registry) (*Metrics, error) {
	decisions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limit decisions partitioned by limiter scope and outcome.",
	}, []string{"scope", "outcome"}))
	if err != nil {
		return nil, err
	}

	lookups, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Top feed cache lookups partitioned by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RateLimitDecisions: decisions,
		CacheLookups:       lookups,
		Requests:           requests,
		Duration:           duration,
		gatherer:           reg,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return c, fmt.Errorf("register collector: %w", err)
	}

	existing, ok := already.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
	}

	return existing, nil
}

type decisionRecorder struct {
	decisions *prometheus.CounterVec
	scope     string
}

func (r decisionRecorder) RecordDecision(outcome string) {
	r.decisions.WithLabelValues(r.scope, outcome).Inc()
}

// RateLimitRecorder returns a recorder counting decisions under scope.
func (m *Metrics) RateLimitRecorder(scope string) ratelimit.Recorder {
	return decisionRecorder{decisions: m.RateLimitDecisions, scope: scope}
}

// RecordCacheLookup implements bookmark.CacheRecorder.
func (m *Metrics) RecordCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// Middleware returns a Huma middleware that records request counts and latencies
// labeled by the operation's path template.
func (m *Metrics) Middleware() func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()

		next(ctx)

		route := ctx.URL().Path
		if op := ctx.Operation(); op != nil {
			route = op.Path
		}

		status := ctx.Status()
		if status == 0 {
			status = http.StatusOK
		}

		labels := prometheus.Labels{
			"method": ctx.Method(),
			"route":  route,
			"status": strconv.Itoa(status),
		}

		m.Requests.With(labels).Inc()
		m.Duration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registered collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

var _ bookmark.CacheRecorder = (*Metrics)(nil)

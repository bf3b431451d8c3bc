package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

const namespace = "meravakil"

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	ragQueries      *prometheus.CounterVec
	ragMatches      prometheus.Histogram
	ragLatency      prometheus.Histogram
	vectorOps       *prometheus.CounterVec
	vectorLatency   *prometheus.HistogramVec
	vectorItems     *prometheus.HistogramVec
	ingestChunks    *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	redisUp         prometheus.Gauge
	redisPingSecond prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total",
			Help: "Model API calls by model, endpoint and status.",
		}, []string{"model", "endpoint", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_request_duration_seconds",
			Help:    "Model API latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"model", "endpoint"}),
		ragQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rag_answers_total",
			Help: "Answered queries by prompt path (grounded or general).",
		}, []string{"path"}),
		ragMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rag_retrieved_documents",
			Help:    "Documents kept per query after score filtering.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		ragLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rag_retrieval_duration_seconds",
			Help:    "Embedding plus vector query latency.",
			Buckets: prometheus.DefBuckets,
		}),
		vectorOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "vector_store_operations_total",
			Help: "Vector store calls by provider, operation and status.",
		}, []string{"provider", "operation", "status"}),
		vectorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "vector_store_operation_duration_seconds",
			Help:    "Vector store call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		vectorItems: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "vector_store_items",
			Help:    "Vectors sent or ids returned per successful vector store call.",
			Buckets: []float64{0, 1, 5, 10, 25, 64, 100, 250, 1000},
		}, []string{"provider", "operation"}),
		ingestChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingest_chunks_total",
			Help: "Corpus chunks processed by the ingester.",
		}, []string{"status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"backend"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "identity_webhook_events_total",
			Help: "Identity webhook deliveries by event type and outcome.",
		}, []string{"type", "status"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_up",
			Help: "1 when the last Redis ping succeeded.",
		}),
		redisPingSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_ping_seconds",
			Help: "Latency of the last Redis ping.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.ragQueries, m.ragMatches, m.ragLatency,
		m.vectorOps, m.vectorLatency, m.vectorItems,
		m.ingestChunks, m.rateLimited, m.webhookEvents,
		m.breakerState, m.redisUp, m.redisPingSecond,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(model, endpoint, status).Inc()
	m.llmLatency.WithLabelValues(model, endpoint).Observe(dur.Seconds())
}

// ObserveRetrieval records one retrieval step and the prompt path it selected.
func (m *Metrics) ObserveRetrieval(docs int, dur time.Duration) {
	if m == nil {
		return
	}
	path := "general"
	if docs > 0 {
		path = "grounded"
	}
	m.ragQueries.WithLabelValues(path).Inc()
	m.ragMatches.Observe(float64(docs))
	m.ragLatency.Observe(dur.Seconds())
}

// ObserveVectorStoreOperation records one call; items is only recorded when
// the call succeeded.
func (m *Metrics) ObserveVectorStoreOperation(provider, operation, status string, items int, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.WithLabelValues(provider, operation, status).Inc()
	m.vectorLatency.WithLabelValues(provider, operation).Observe(dur.Seconds())
	if status == "ok" {
		m.vectorItems.WithLabelValues(provider, operation).Observe(float64(items))
	}
}

func (m *Metrics) AddIngestChunks(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestChunks.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) IncRateLimited(backend string) {
	if m != nil {
		m.rateLimited.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) IncWebhookEvent(eventType, status string) {
	if m == nil {
		return
	}
	if strings.TrimSpace(eventType) == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m != nil {
		m.breakerState.WithLabelValues(name).Set(float64(state))
	}
}

// RegisterDB exports database/sql pool stats for db.
func (m *Metrics) RegisterDB(log *logger.Logger, db *gorm.DB, name string) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
		}
		return
	}
	if err := m.registry.Register(collectors.NewDBStatsCollector(sqlDB, name)); err != nil && log != nil {
		log.Warn("metrics: db stats collector not registered", "error", err)
	}
}

// StartRedisCollector pings rdb every interval until ctx is done.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient, interval time.Duration) {
	if m == nil || rdb == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPingSecond.Set(time.Since(start).Seconds())
			}
		}
	}()
}

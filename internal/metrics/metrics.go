package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "compete"

// Collector exposes Prometheus metrics for inbound HTTP requests and the
// monitoring pipeline.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	itemsIngested *prometheus.CounterVec
	cardsCreated  prometheus.Counter
	llmCalls      *prometheus.CounterVec
	checkDuration prometheus.Histogram
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	itemsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "items_ingested_total",
		Help:      "New items stored per source type.",
	}, []string{"source_type"})

	cardsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "cards_created_total",
		Help:      "Analysis cards created.",
	})

	llmCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "llm_calls_total",
		Help:      "Model calls by purpose and outcome.",
	}, []string{"purpose", "outcome"})

	checkDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "check_run_duration_seconds",
		Help:      "Wall-clock duration of full check runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	for _, c := range []prometheus.Collector{
		requestDuration, requestTotal, itemsIngested, cardsCreated, llmCalls, checkDuration,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		itemsIngested:   itemsIngested,
		cardsCreated:    cardsCreated,
		llmCalls:        llmCalls,
		checkDuration:   checkDuration,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// RecordItemsIngested adds new-item counts for one source type.
func (c *Collector) RecordItemsIngested(sourceType string, count int) {
	if count <= 0 {
		return
	}
	c.itemsIngested.WithLabelValues(sourceType).Add(float64(count))
}

// RecordCardCreated counts one analysis card.
func (c *Collector) RecordCardCreated() {
	c.cardsCreated.Inc()
}

// RecordLLMCall counts one model call. Outcome is "ok" or "error".
func (c *Collector) RecordLLMCall(purpose string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.llmCalls.WithLabelValues(purpose, outcome).Inc()
}

// RecordCheckRunDuration observes one completed check run.
func (c *Collector) RecordCheckRunDuration(d time.Duration) {
	c.checkDuration.Observe(d.Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

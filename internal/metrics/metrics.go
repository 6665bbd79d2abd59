// Package metrics exposes Prometheus instrumentation for the solving loop.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leetforge/pkg/models"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leetforge_attempts_total",
			Help: "Total number of judged attempts by verdict",
		},
		[]string{"verdict"},
	)

	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leetforge_sessions_total",
			Help: "Total number of finished sessions by terminal state",
		},
		[]string{"state"},
	)

	generationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leetforge_generation_duration_seconds",
			Help:    "Model generation call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~500s
		},
	)

	submissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leetforge_submission_duration_seconds",
			Help:    "Judge submission round-trip duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	tokensUsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leetforge_tokens_used_total",
			Help: "Total model tokens consumed",
		},
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct{}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{}
}

// AttemptJudged counts one judged attempt by verdict kind.
func (c *Collector) AttemptJudged(kind models.VerdictKind) {
	attemptsTotal.WithLabelValues(string(kind)).Inc()
}

// SessionFinished counts one terminal session by state.
func (c *Collector) SessionFinished(state models.SessionState) {
	sessionsTotal.WithLabelValues(string(state)).Inc()
}

// GenerationObserved records one generation call duration.
func (c *Collector) GenerationObserved(d time.Duration) {
	generationDuration.Observe(d.Seconds())
}

// SubmissionObserved records one submission round-trip duration.
func (c *Collector) SubmissionObserved(d time.Duration) {
	submissionDuration.Observe(d.Seconds())
}

// AddTokens accumulates model token usage.
func (c *Collector) AddTokens(n int) {
	tokensUsed.Add(float64(n))
}

// Server is the optional Prometheus scrape endpoint.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer starts serving /metrics on addr in the background.
func NewServer(addr string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		srv:    &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
	go func() {
		logger.Info("Metrics listener started", "addr", addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics listener failed", "error", err)
		}
	}()
	return s
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Package metrics exposes playback and cache counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "readaloud"

var (
	unitsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_units_started_total",
		Help:      "Sentence playback units started",
	}, []string{"backend"})

	unitsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_units_completed_total",
		Help:      "Sentence playback units that played to the end",
	}, []string{"backend"})

	unitsCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_units_canceled_total",
		Help:      "Sentence playback units superseded or stopped",
	}, []string{"backend"})

	staleResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_stale_results_total",
		Help:      "Synthesis results dropped because their sentence was no longer current",
	}, []string{"backend"})

	playbackErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_errors_total",
		Help:      "Playback units that ended in a genuine failure",
	}, []string{"backend"})

	synthesisLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "synthesis_seconds",
		Help:      "Time to produce playable audio for one sentence",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"backend"})

	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clip_cache_hits_total",
		Help:      "Sentence audio served from cache",
	}, []string{"tier"})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clip_cache_misses_total",
		Help:      "Sentence audio lookups that missed every tier",
	})
)

// UnitStarted records a new playback unit.
func UnitStarted(backend string) { unitsStarted.WithLabelValues(backend).Inc() }

// UnitCompleted records a unit that played to the end.
func UnitCompleted(backend string) { unitsCompleted.WithLabelValues(backend).Inc() }

// UnitCanceled records a unit ended by cancellation.
func UnitCanceled(backend string) { unitsCanceled.WithLabelValues(backend).Inc() }

// StaleResult records a synthesis result dropped for a superseded sentence.
func StaleResult(backend string) { staleResults.WithLabelValues(backend).Inc() }

// PlaybackError records a unit that failed.
func PlaybackError(backend string) { playbackErrors.WithLabelValues(backend).Inc() }

// ObserveSynthesis records how long synthesis took since start.
func ObserveSynthesis(backend string, start time.Time) {
	synthesisLatency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

// CacheHit records a hit in the named tier.
func CacheHit(tier string) { cacheHits.WithLabelValues(tier).Inc() }

// CacheMiss records a full miss.
func CacheMiss() { cacheMisses.Inc() }

// Serve exposes /metrics on addr until ctx is done. An empty addr disables
// the endpoint.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("Prometheus metrics enabled", "addr", ln.Addr().String(), "path", "/metrics")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Metrics server stopped", "err", err)
		}
	}()
	return nil
}

// Package metrics exports dictation controller metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/recognition"
	"github.com/rbright/murmur/internal/version"
	"github.com/rbright/murmur/internal/voice"
)

const (
	namespace         = "murmur"
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 2 * time.Second
)

var states = []fsm.State{fsm.StateIdle, fsm.StateListening, fsm.StateProcessing}

var _ voice.Metrics = (*Collector)(nil)

// Collector implements voice.Metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	attempts  prometheus.Counter
	delivered prometheus.Counter
	autoFinal prometheus.Counter
	errors    *prometheus.CounterVec
	state     *prometheus.GaugeVec
	utterance prometheus.Histogram
}

// New registers the controller metrics, Go runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Dictation attempts that reached the listening state.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_delivered_total",
			Help:      "Transcripts handed to the output committer.",
		}),
		autoFinal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_finalized_total",
			Help:      "Attempts stopped by the silence timeout.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors surfaced to the user by kind.",
		}, []string{"kind"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the controller's current state, 0 otherwise.",
		}, []string{"state"}),
		utterance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_duration_seconds",
			Help:      "Time from start of listening to transcript delivery.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
	}

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata; always 1.",
	}, []string{"version", "commit"})
	buildInfo.WithLabelValues(version.Version, version.Commit).Set(1)

	c.registry.MustRegister(
		c.attempts,
		c.delivered,
		c.autoFinal,
		c.errors,
		c.state,
		c.utterance,
		buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.StateChanged(fsm.StateIdle)
	return c
}

func (c *Collector) AttemptStarted() { c.attempts.Inc() }

func (c *Collector) StateChanged(current fsm.State) {
	for _, state := range states {
		value := 0.0
		if state == current {
			value = 1
		}
		c.state.WithLabelValues(string(state)).Set(value)
	}
}

func (c *Collector) TranscriptDelivered(elapsed time.Duration) {
	c.delivered.Inc()
	c.utterance.Observe(elapsed.Seconds())
}

func (c *Collector) AutoFinalized() { c.autoFinal.Inc() }

func (c *Collector) ErrorSurfaced(kind recognition.ErrorKind) {
	c.errors.WithLabelValues(string(kind)).Inc()
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on listener until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}

// Package metrics exposes client counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ai_live"

// Metrics holds the client's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	UtterancesSent      prometheus.Counter
	UtterancesDiscarded prometheus.Counter
	UtteranceSeconds    prometheus.Histogram
	ServerEvents        *prometheus.CounterVec
	Playbacks           *prometheus.CounterVec
	SendFailures        prometheus.Counter
	ConnectionOpen      prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		UtterancesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_sent_total",
			Help:      "Utterances transmitted to the backend",
		}),
		UtterancesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_discarded_total",
			Help:      "Recordings dropped for being shorter than the minimum or empty",
		}),
		UtteranceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_seconds",
			Help:      "Length of transmitted utterances in seconds",
			Buckets:   []float64{.6, 1, 2, 3, 5, 8, 13, 21, 34},
		}),
		ServerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_events_total",
			Help:      "Structured events received from the backend",
		}, []string{"type"}),
		Playbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Audio replies rendered, by path",
		}, []string{"path"}), // path: primary, fallback, failed
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Frames that could not be sent",
		}),
		ConnectionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_open",
			Help:      "1 while the backend connection is open",
		}),
	}
	m.Registry.MustRegister(
		m.UtterancesSent,
		m.UtterancesDiscarded,
		m.UtteranceSeconds,
		m.ServerEvents,
		m.Playbacks,
		m.SendFailures,
		m.ConnectionOpen,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve listens on addr and serves /metrics until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

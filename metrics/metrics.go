// Package metrics exposes gateway counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	registerOnce sync.Once

	connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supctl",
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "Control connections by outcome.",
		},
		[]string{"result"},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "supctl",
			Subsystem: "gateway",
			Name:      "active_connections",
			Help:      "Control connections currently open.",
		},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supctl",
			Subsystem: "gateway",
			Name:      "handshakes_total",
			Help:      "Handshake attempts by outcome.",
		},
		[]string{"result"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supctl",
			Subsystem: "manager",
			Name:      "commands_total",
			Help:      "Commands executed by the manager.",
		},
		[]string{"message_id", "result"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "supctl",
			Subsystem: "manager",
			Name:      "command_duration_seconds",
			Help:      "Command execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"message_id"},
	)
	replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supctl",
			Subsystem: "gateway",
			Name:      "replies_total",
			Help:      "Replies written to control clients.",
		},
		[]string{"message_id"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supctl",
			Subsystem: "transport",
			Name:      "frame_bytes_total",
			Help:      "Encoded frame bytes read and written.",
		},
		[]string{"direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connections, activeConnections, handshakes, commands, commandDuration, replies, frameBytes)
	})
}

// ConnectionOpened must be paired with ConnectionClosed.
func ConnectionOpened() {
	RegisterMetrics()
	activeConnections.Inc()
}

func ConnectionClosed(result string) {
	RegisterMetrics()
	activeConnections.Dec()
	connections.WithLabelValues(result).Inc()
}

func RecordHandshake(result string) {
	RegisterMetrics()
	handshakes.WithLabelValues(result).Inc()
}

func RecordCommand(messageID, result string, duration time.Duration) {
	RegisterMetrics()
	commands.WithLabelValues(messageID, result).Inc()
	commandDuration.WithLabelValues(messageID).Observe(duration.Seconds())
}

func RecordReply(messageID string) {
	RegisterMetrics()
	replies.WithLabelValues(messageID).Inc()
}

func RecordFrame(direction string, n int) {
	RegisterMetrics()
	frameBytes.WithLabelValues(direction).Add(float64(n))
}

func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

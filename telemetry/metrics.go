// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TicksStarted       prometheus.Counter
	ChannelSyncFailed  prometheus.Counter
	CredentialFailures prometheus.Counter
	ClipsDiscovered    prometheus.Counter
	ClipsIngested      prometheus.Counter
	ClipsDeleted       prometheus.Counter
	WebhooksSent       prometheus.Counter
	WebhooksFailed     prometheus.Counter

	// Histograms (seconds)
	TickDuration prometheus.Observer

	// Gauges
	WatchedChannelsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TicksStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "clipherald_ticks_total", Help: "Number of sync ticks started"})
		ChannelSyncFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "clipherald_channel_sync_failures_total", Help: "Number of per-channel sync failures"})
		CredentialFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "clipherald_credential_failures_total", Help: "Number of ticks aborted because no valid access token could be obtained"})
		ClipsDiscovered = promauto.NewCounter(prometheus.CounterOpts{Name: "clipherald_clips_discovered_total", Help: "Number of raw clips returned by the upstream"})
		ClipsIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "clipherald_clips_ingested_total", Help: "Number of clips newly persisted"})
		ClipsDeleted = promauto.NewCounter(prometheus.CounterOpts{Name: "clipherald_clips_deleted_total", Help: "Number of clips deleted after failed webhook delivery"})
		WebhooksSent = promauto.NewCounter(prometheus.CounterOpts{Name: "clipherald_webhook_messages_sent_total", Help: "Number of webhook messages delivered"})
		WebhooksFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "clipherald_webhook_messages_failed_total", Help: "Number of webhook messages that failed to deliver"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clipherald_tick_duration_seconds", Help: "Sync tick duration seconds", Buckets: prometheus.DefBuckets})
		WatchedChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "clipherald_watched_channels", Help: "Number of configured channels"})
	})
}

// AddClipsDiscovered records raw clips returned by a fetch.
func AddClipsDiscovered(n int) {
	if ClipsDiscovered != nil {
		ClipsDiscovered.Add(float64(n))
	}
}

// AddClipsIngested records newly persisted clips.
func AddClipsIngested(n int) {
	if ClipsIngested != nil {
		ClipsIngested.Add(float64(n))
	}
}

// AddClipsDeleted records compensating deletions.
func AddClipsDeleted(n int) {
	if ClipsDeleted != nil {
		ClipsDeleted.Add(float64(n))
	}
}

// SetWatchedChannels records the configured channel count.
func SetWatchedChannels(n int) {
	if WatchedChannelsGauge != nil {
		WatchedChannelsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

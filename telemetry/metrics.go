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
	FeedLines          prometheus.Counter
	FeedDecodeFailures prometheus.Counter
	ItemsPublished     prometheus.Counter
	ItemsDuplicate     prometheus.Counter
	ItemsRateLimited   prometheus.Counter
	StreamFaults       *prometheus.CounterVec // label: class
	StreamConnects     prometheus.Counter
	CommandsHandled    *prometheus.CounterVec // labels: command, outcome
	ChatMessagesSent   prometheus.Counter
	JournalWrites      *prometheus.CounterVec // label: result

	// Histograms (seconds)
	StreamSessionDuration prometheus.Observer
	RuleCallDuration      prometheus.Observer

	// Gauges
	DedupEntriesGauge prometheus.Gauge
	BucketTokensGauge prometheus.Gauge
	StreamUpGauge     prometheus.Gauge // 1=connected,0=down
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		FeedLines = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_feed_lines_total", Help: "Number of complete lines read from the feed"})
		FeedDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_feed_decode_failures_total", Help: "Number of feed lines that looked like JSON but could not be decoded"})
		ItemsPublished = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_items_published_total", Help: "Number of feed items sent to chat"})
		ItemsDuplicate = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_items_duplicate_total", Help: "Number of feed items suppressed as duplicates"})
		ItemsRateLimited = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_items_rate_limited_total", Help: "Number of feed items dropped by the token bucket"})
		StreamFaults = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_stream_faults_total", Help: "Number of stream transport faults by class"}, []string{"class"})
		StreamConnects = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_stream_connects_total", Help: "Number of stream connection attempts"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_commands_total", Help: "Number of chat commands handled"}, []string{"command", "outcome"})
		ChatMessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_chat_messages_sent_total", Help: "Number of messages written to the chat channel"})
		JournalWrites = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_journal_writes_total", Help: "Journal writes by result (ok, error, dropped)"}, []string{"result"})
		StreamSessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_stream_session_duration_seconds", Help: "Lifetime of a single stream connection", Buckets: []float64{1, 10, 60, 300, 600, 1800, 3600}})
		RuleCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_rule_call_duration_seconds", Help: "Rule-management API call duration seconds", Buckets: prometheus.DefBuckets})
		DedupEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_dedup_entries", Help: "Current number of entries in the dedup cache"})
		BucketTokensGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_bucket_tokens", Help: "Tokens left in the publish bucket after the last decision"})
		StreamUpGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_stream_up", Help: "Stream connected=1 disconnected=0"})
	})
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncFault records a stream fault of the given class.
func IncFault(class string) {
	if StreamFaults != nil {
		StreamFaults.WithLabelValues(class).Inc()
	}
}

// IncCommand records a handled chat command.
func IncCommand(command, outcome string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(command, outcome).Inc()
	}
}

// IncJournal records a journal write outcome.
func IncJournal(result string) {
	if JournalWrites != nil {
		JournalWrites.WithLabelValues(result).Inc()
	}
}

// UpdateStreamGauge sets gauge to 1 if connected else 0.
func UpdateStreamGauge(up bool) {
	if StreamUpGauge != nil {
		if up {
			StreamUpGauge.Set(1)
		} else {
			StreamUpGauge.Set(0)
		}
	}
}

// SetGateState records dedup cache size and bucket level.
func SetGateState(entries int, tokens float64) {
	if DedupEntriesGauge != nil {
		DedupEntriesGauge.Set(float64(entries))
	}
	if BucketTokensGauge != nil {
		BucketTokensGauge.Set(tokens)
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

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

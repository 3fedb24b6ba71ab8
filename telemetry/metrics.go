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
	MessagesReceived prometheus.Counter
	MessagesSent     prometheus.Counter
	ParseErrors      prometheus.Counter
	Reconnects       prometheus.Counter
	QueueDrops       prometheus.Counter
	RateLimitWaits   prometheus.Counter
	QuestionsAsked   prometheus.Counter
	AnswersCorrect   prometheus.Counter
	AnswersIncorrect prometheus.Counter
	LLMRequests      prometheus.Counter
	LLMFailures      prometheus.Counter

	// Histograms (seconds)
	QuestionFetchDuration prometheus.Observer
	HandlerDuration       prometheus.Observer

	// Gauges
	SendQueueDepthGauge prometheus.Gauge
	ActiveSessionsGauge prometheus.Gauge
	ConnectedGauge      prometheus.Gauge // 1=authenticated,0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_received_total", Help: "Inbound chat lines parsed"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_sent_total", Help: "Outbound chat messages written to the wire"})
		ParseErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_parse_errors_total", Help: "Malformed inbound lines dropped"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_reconnects_total", Help: "Reconnection attempts after transport failure"})
		QueueDrops = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_send_queue_drops_total", Help: "Outbound messages dropped due to queue overflow"})
		RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_rate_limit_waits_total", Help: "Sends delayed by the sliding rate window"})
		QuestionsAsked = promauto.NewCounter(prometheus.CounterOpts{Name: "trivia_questions_asked_total", Help: "Trivia questions posed"})
		AnswersCorrect = promauto.NewCounter(prometheus.CounterOpts{Name: "trivia_answers_correct_total", Help: "Correct trivia answers"})
		AnswersIncorrect = promauto.NewCounter(prometheus.CounterOpts{Name: "trivia_answers_incorrect_total", Help: "Incorrect trivia answers"})
		LLMRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "llm_requests_total", Help: "Requests forwarded to the LLM collaborator"})
		LLMFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "llm_failures_total", Help: "Failed LLM collaborator requests"})
		QuestionFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "trivia_question_fetch_duration_seconds", Help: "Question source fetch duration seconds", Buckets: prometheus.DefBuckets})
		HandlerDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_handler_duration_seconds", Help: "Command handler duration seconds", Buckets: prometheus.DefBuckets})
		SendQueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_send_queue_depth", Help: "Current outbound queue depth"})
		ActiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "trivia_active_sessions", Help: "Channels with an active trivia question"})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_connected", Help: "Authenticated to chat=1, otherwise 0"})
	})
}

// UpdateConnectedGauge sets gauge to 1 if authenticated else 0.
func UpdateConnectedGauge(connected bool) {
	if ConnectedGauge != nil {
		if connected {
			ConnectedGauge.Set(1)
		} else {
			ConnectedGauge.Set(0)
		}
	}
}

// SetSendQueueDepth records the current outbound queue depth.
func SetSendQueueDepth(n int) {
	if SendQueueDepthGauge != nil {
		SendQueueDepthGauge.Set(float64(n))
	}
}

// SetActiveSessions records the number of channels with a question in play.
func SetActiveSessions(n int) {
	if ActiveSessionsGauge != nil {
		ActiveSessionsGauge.Set(float64(n))
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
	if s, ok := ctx.Value(corrKey).(string); ok {
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

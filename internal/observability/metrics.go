package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sidebar"

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	activeSessions        prometheus.Gauge
	sessionsOpenedTotal   prometheus.Counter
	sessionsClosedTotal   *prometheus.CounterVec
	transcriptLoadSeconds prometheus.Histogram
	transcriptSaveSeconds prometheus.Histogram

	messagesRoutedTotal *prometheus.CounterVec
	chunksSentTotal     prometheus.Counter
	commandsTotal       *prometheus.CounterVec
	platformErrorsTotal *prometheus.CounterVec

	backendCallsTotal   *prometheus.CounterVec
	backendCallDuration *prometheus.HistogramVec
	backendErrorsTotal  *prometheus.CounterVec
	promptReloadsTotal  *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "queue_size",
					Help:      "Current queue size by lane class.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "enqueue_total",
					Help:      "Total enqueue operations by lane class.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "dequeue_total",
					Help:      "Total task completions by lane class and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "task_duration_seconds",
					Help:      "Task execution duration in seconds by lane class.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "active_sessions",
					Help:      "Current number of open AI channels.",
				},
			),
			sessionsOpenedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "sessions_opened_total",
					Help:      "Total AI channels opened.",
				},
			),
			sessionsClosedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "sessions_closed_total",
					Help:      "Total AI channels closed by reason.",
				},
				[]string{"reason"},
			),
			transcriptLoadSeconds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "transcript_load_duration_seconds",
					Help:      "Transcript load duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			transcriptSaveSeconds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "transcript_save_duration_seconds",
					Help:      "Transcript append duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			messagesRoutedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "messages_routed_total",
					Help:      "Inbound messages by routing outcome.",
				},
				[]string{"outcome"},
			),
			chunksSentTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "chunks_sent_total",
					Help:      "Reply chunks posted to channels.",
				},
			),
			commandsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "commands_total",
					Help:      "Commands handled by name and status.",
				},
				[]string{"command", "status"},
			),
			platformErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "platform_errors_total",
					Help:      "Chat platform API errors by operation.",
				},
				[]string{"operation"},
			),
			backendCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "backend_calls_total",
					Help:      "Total backend calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			backendCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "backend_call_duration_seconds",
					Help:      "Backend call duration in seconds by provider.",
					Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"provider"},
			),
			backendErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "backend_errors_total",
					Help:      "Total backend errors by provider.",
				},
				[]string{"provider"},
			),
			promptReloadsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "prompt_reloads_total",
					Help:      "System prompt template reloads by status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.activeSessions,
			m.sessionsOpenedTotal,
			m.sessionsClosedTotal,
			m.transcriptLoadSeconds,
			m.transcriptSaveSeconds,
			m.messagesRoutedTotal,
			m.chunksSentTotal,
			m.commandsTotal,
			m.platformErrorsTotal,
			m.backendCallsTotal,
			m.backendCallDuration,
			m.backendErrorsTotal,
			m.promptReloadsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// laneClass strips the per-channel id from a lane name so label cardinality
// stays bounded: "channel:123" becomes "channel".
func laneClass(lane string) string {
	if i := strings.IndexByte(lane, ':'); i >= 0 {
		return lane[:i]
	}
	return lane
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	class := laneClass(lane)
	m.enqueueTotal.WithLabelValues(class).Inc()
	m.queueSize.WithLabelValues(class).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(laneClass(lane)).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	class := laneClass(lane)
	m.dequeueTotal.WithLabelValues(class, statusLabel(success)).Inc()
	m.taskDuration.WithLabelValues(class).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(class).Set(float64(queueSize))
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionOpened() {
	getMetrics().sessionsOpenedTotal.Inc()
}

// RecordSessionClosed counts a closed session. reason is one of "command",
// "expired" or "channel_deleted".
func RecordSessionClosed(reason string) {
	getMetrics().sessionsClosedTotal.WithLabelValues(reason).Inc()
}

func RecordTranscriptLoad(duration time.Duration) {
	getMetrics().transcriptLoadSeconds.Observe(duration.Seconds())
}

func RecordTranscriptSave(duration time.Duration) {
	getMetrics().transcriptSaveSeconds.Observe(duration.Seconds())
}

// RecordMessageRouted counts an inbound message by what the router did with it.
func RecordMessageRouted(outcome string) {
	getMetrics().messagesRoutedTotal.WithLabelValues(outcome).Inc()
}

func RecordChunksSent(n int) {
	getMetrics().chunksSentTotal.Add(float64(n))
}

func RecordCommand(command string, success bool) {
	getMetrics().commandsTotal.WithLabelValues(command, statusLabel(success)).Inc()
}

func RecordPlatformError(operation string) {
	getMetrics().platformErrorsTotal.WithLabelValues(operation).Inc()
}

func RecordBackendCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.backendCallsTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.backendCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if !success {
		m.backendErrorsTotal.WithLabelValues(provider).Inc()
	}
}

func RecordPromptReload(success bool) {
	getMetrics().promptReloadsTotal.WithLabelValues(statusLabel(success)).Inc()
}

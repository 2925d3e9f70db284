package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roslink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total control API HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roslink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Control API HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roslink",
			Subsystem: "sub",
			Name:      "frames_received_total",
			Help:      "Message frames drained from publisher links.",
		},
		[]string{"topic"},
	)
	bytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roslink",
			Subsystem: "sub",
			Name:      "bytes_received_total",
			Help:      "Wire bytes drained from publisher links.",
		},
		[]string{"topic"},
	)
	messagesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roslink",
			Subsystem: "sub",
			Name:      "messages_dispatched_total",
			Help:      "Listener deliveries that completed.",
		},
		[]string{"topic"},
	)
	dispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roslink",
			Subsystem: "sub",
			Name:      "dispatch_errors_total",
			Help:      "Listener deliveries that reported an error.",
		},
		[]string{"topic"},
	)
	linkRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roslink",
			Subsystem: "sub",
			Name:      "link_retries_total",
			Help:      "Publisher link failures that scheduled a retry.",
		},
		[]string{"topic"},
	)
	linksLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "roslink",
			Subsystem: "sub",
			Name:      "links_live",
			Help:      "Publisher links currently tracked for a topic.",
		},
		[]string{"topic"},
	)
	linksStreaming = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "roslink",
			Subsystem: "sub",
			Name:      "links_streaming",
			Help:      "Publisher links in steady-state reception.",
		},
		[]string{"topic"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesReceived, bytesReceived,
			messagesDispatched, dispatchErrors,
			linkRetries, linksLive, linksStreaming,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrames(topic string, frames int, bytes uint64) {
	RegisterMetrics()
	framesReceived.WithLabelValues(topic).Add(float64(frames))
	bytesReceived.WithLabelValues(topic).Add(float64(bytes))
}

func RecordDispatch(topic string, delivered, failed int) {
	RegisterMetrics()
	messagesDispatched.WithLabelValues(topic).Add(float64(delivered))
	dispatchErrors.WithLabelValues(topic).Add(float64(failed))
}

func RecordLinkRetry(topic string) {
	RegisterMetrics()
	linkRetries.WithLabelValues(topic).Inc()
}

func SetLinkCounts(topic string, live, streaming int) {
	RegisterMetrics()
	linksLive.WithLabelValues(topic).Set(float64(live))
	linksStreaming.WithLabelValues(topic).Set(float64(streaming))
}

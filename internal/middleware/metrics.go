package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fullsong_bot_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"chat_type"})

	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fullsong_bot_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	// Download metrics
	downloadRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fullsong_bot_download_requests_total",
		Help: "Total number of download requests",
	})

	downloadOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fullsong_bot_download_outcomes_total",
		Help: "Download outcomes by failure kind (or success)",
	}, []string{"outcome"})

	downloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fullsong_bot_download_duration_seconds",
		Help:    "Duration of end-to-end download requests",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"outcome"})

	quotaDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fullsong_bot_quota_denied_total",
		Help: "Total number of requests denied by the daily quota",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fullsong_bot_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	// Active downloads gauge
	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fullsong_bot_active_downloads",
		Help: "Number of downloads currently in flight",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(chatType string) {
	messagesReceived.WithLabelValues(chatType).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordDownloadRequest records the start of a download request
func (m *Metrics) RecordDownloadRequest() {
	downloadRequests.Inc()
	activeDownloads.Inc()
}

// RecordDownloadOutcome records how a download request ended
func (m *Metrics) RecordDownloadOutcome(outcome string, duration time.Duration) {
	downloadOutcomes.WithLabelValues(outcome).Inc()
	downloadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	activeDownloads.Dec()
}

// RecordQuotaDenied records a quota denial
func (m *Metrics) RecordQuotaDenied() {
	quotaDenied.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}

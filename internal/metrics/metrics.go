// Package metrics exposes Prometheus collectors for the status service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll results recorded by ObservePoll.
const (
	PollOK             = "ok"
	PollParseError     = "parse_error"
	PollTransportError = "transport_error"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	pollsTotal                 *prometheus.CounterVec
	pollDurationSeconds        prometheus.Histogram
	upstreamRequestsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		pollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cnstatus_polls_total",
				Help: "Total number of verification progress polls, labeled by result.",
			},
			[]string{"result"},
		)

		pollDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cnstatus_poll_duration_seconds",
				Help:    "Histogram of verification progress poll latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cnstatus_upstream_requests_total",
				Help: "Total number of proxied gatekeeper requests, labeled by host and code.",
			},
			[]string{"host", "code"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePoll records one poll outcome. It is a no-op before Init.
func ObservePoll(result string, duration time.Duration) {
	if pollsTotal == nil {
		return
	}
	pollsTotal.WithLabelValues(result).Inc()
	pollDurationSeconds.Observe(duration.Seconds())
}

// ObserveUpstream records a proxied gatekeeper request. A code of 0 denotes a
// transport failure.
func ObserveUpstream(rawURL string, code int) {
	if upstreamRequestsTotal == nil {
		return
	}
	label := strconv.Itoa(code)
	if code == 0 {
		label = "error"
	}
	upstreamRequestsTotal.WithLabelValues(SanitizeSite(rawURL), label).Inc()
}

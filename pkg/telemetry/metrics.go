// Package telemetry exposes the gateway's Prometheus metrics.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_auth_requests_total",
			Help: "Authentication attempts on protected routes, by outcome.",
		},
		[]string{"outcome"},
	)

	forwardedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_forwarded_requests_total",
			Help: "Requests forwarded to downstream services, by service and status code.",
		},
		[]string{"service", "status"},
	)

	logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_logins_total",
			Help: "Completed login callbacks, by outcome.",
		},
		[]string{"outcome"},
	)
)

// RecordAuthOutcome counts one authentication attempt. The outcome is
// "success" or "failure" only; failure reasons are never labels.
func RecordAuthOutcome(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	authRequests.WithLabelValues(outcome).Inc()
}

// RecordForwardedRequest counts one forwarded downstream call.
func RecordForwardedRequest(service string, statusCode int) {
	forwardedRequests.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
}

// RecordLogin counts one completed login callback.
func RecordLogin(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	logins.WithLabelValues(outcome).Inc()
}

// Handler returns the HTTP handler that serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

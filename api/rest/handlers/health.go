package handlers

import (
	"context"
	"net/http"
)

// MetricsSource renders metrics in the Prometheus text format
type MetricsSource interface {
	GetPrometheusMetrics(ctx context.Context) (string, error)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Metrics handles GET /metrics
func Metrics(source MetricsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := source.GetPrometheusMetrics(r.Context())
		if err != nil {
			http.Error(w, "Failed to collect metrics: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(body))
	}
}

// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// HTTPRequests counts handled requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questlog_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPDuration records request latency by method and route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "questlog_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// ImagesProcessed counts image pipeline runs by folder and outcome.
	ImagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questlog_images_processed_total",
		Help: "Total number of uploaded images run through the pipeline",
	}, []string{"folder", "outcome"})

	// EventsPublished counts domain events by type and outcome.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questlog_events_published_total",
		Help: "Total number of domain events published",
	}, []string{"type", "outcome"})

	// EventsProcessed counts events handled by the processor.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questlog_events_processed_total",
		Help: "Total number of domain events processed",
	}, []string{"type", "outcome"})
)

// Outcome maps an error to a metric label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Middleware records HTTPRequests and HTTPDuration for every request.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			HTTPRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			HTTPDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Serve exposes /metrics on its own port until ctx is cancelled.
func Serve(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("port", port).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics listener stopped")
	}
}

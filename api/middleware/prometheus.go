package middleware

import (
	"errors"
	"strconv"
	"time"

	"agrochat/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status", "service"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	messageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_operations_total",
			Help: "Total number of message operations processed",
		},
		[]string{"operation", "status", "service"},
	)

	messageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_operation_duration_seconds",
			Help:    "Duration of message operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "service"},
	)

	messageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_errors_total",
			Help: "Total number of message operation errors",
		},
		[]string{"operation", "error_type", "service"},
	)
)

func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
			serviceName,
		).Inc()

		httpRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			serviceName,
		).Observe(duration)
	}
}

// errorClass сводит ошибку к фиксированному набору значений метки:
// в error_type нельзя класть текст ошибки, метка должна быть конечной
func errorClass(err error) string {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return "validation"
	}
	var notFoundErr *services.NotFoundError
	if errors.As(err, &notFoundErr) {
		return "not_found"
	}
	return "internal"
}

func RecordMessageOperation(operation, status, serviceName string, duration time.Duration, err error) {
	messageOperationsTotal.WithLabelValues(operation, status, serviceName).Inc()
	messageOperationDuration.WithLabelValues(operation, serviceName).Observe(duration.Seconds())

	if err != nil {
		messageErrors.WithLabelValues(operation, errorClass(err), serviceName).Inc()
	}
}

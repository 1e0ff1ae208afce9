// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector tracks API call outcomes, transfer volume, and authorization
// refresh activity. A nil *Collector is valid and records nothing, so call
// sites never have to branch on whether metrics are enabled.
type Collector struct {
	apiCallsTotal   *prometheus.CounterVec
	apiCallDuration *prometheus.HistogramVec

	bytesUploaded   prometheus.Counter
	bytesDownloaded prometheus.Counter

	authRefreshTotal *prometheus.CounterVec

	streamElementsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the metric families with reg under the given
// namespace. Passing nil for reg uses the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.apiCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_calls_total",
			Help:      "Total number of API calls",
		},
		[]string{"operation", "status"},
	)

	c.apiCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_call_duration_seconds",
			Help:      "API call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.bytesUploaded = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_uploaded_total",
			Help:      "Total payload bytes uploaded",
		},
	)

	c.bytesDownloaded = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_downloaded_total",
			Help:      "Total payload bytes downloaded",
		},
	)

	c.authRefreshTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_refresh_total",
			Help:      "Total authorization refresh attempts",
		},
		[]string{"outcome"},
	)

	c.streamElementsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_elements_total",
			Help:      "Total elements decoded from streaming list responses",
		},
		[]string{"operation"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordAPICall records one finished API call.
func (c *Collector) RecordAPICall(operation, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.apiCallsTotal.WithLabelValues(operation, status).Inc()
	c.apiCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordUpload adds to the uploaded-bytes counter.
func (c *Collector) RecordUpload(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.bytesUploaded.Add(float64(bytes))
}

// RecordDownload adds to the downloaded-bytes counter.
func (c *Collector) RecordDownload(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.bytesDownloaded.Add(float64(bytes))
}

// RecordAuthRefresh records one refresh attempt with outcome "success",
// "failure", or "aborted".
func (c *Collector) RecordAuthRefresh(outcome string) {
	if c == nil {
		return
	}
	c.authRefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordStreamElement counts one decoded list element for the operation.
func (c *Collector) RecordStreamElement(operation string) {
	if c == nil {
		return
	}
	c.streamElementsTotal.WithLabelValues(operation).Inc()
}

package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

var (
	tlRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatlens_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	tlRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "threatlens_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	tlAnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatlens_analyses_total",
		Help: "Total analyses by methodology and outcome.",
	}, []string{"methodology", "outcome"})

	tlAnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "threatlens_analysis_duration_seconds",
		Help:    "End-to-end analysis duration in seconds.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"methodology"})

	tlThreatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatlens_threats_total",
		Help: "Threats reported by completed analyses, by severity.",
	}, []string{"severity"})

	tlRiskLevelTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threatlens_risk_level_total",
		Help: "Completed analyses by overall risk level.",
	}, []string{"level"})

	tlPatternsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "threatlens_patterns",
		Help: "Number of patterns in the shared catalog.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		tlRequestsTotal.WithLabelValues(method, path, status).Inc()
		tlRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAnalysis matches analysis.MetricsRecordFunc. Threat and risk level
// counters only move for analyses that produced a response.
func RecordAnalysis(m tm.Methodology, outcome string, elapsed time.Duration, resp *tm.Response) {
	label := string(m)
	if label == "" {
		label = "unknown"
	}
	tlAnalysesTotal.WithLabelValues(label, outcome).Inc()
	if resp == nil {
		return
	}
	tlAnalysisDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	for sev, n := range resp.RiskAssessment.RiskDistribution {
		tlThreatsTotal.WithLabelValues(string(sev)).Add(float64(n))
	}
	tlRiskLevelTotal.WithLabelValues(string(resp.RiskAssessment.RiskLevel)).Inc()
}

// SetPatternsGauge records the catalog size.
func SetPatternsGauge(n int) {
	tlPatternsGauge.Set(float64(n))
}

var tlDependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "threatlens_dependency_up",
	Help: "1 when the last readiness probe of a dependency succeeded.",
}, []string{"dependency"})

// RecordProbe matches health.MetricsRecordFunc.
func RecordProbe(name string, success bool) {
	v := 0.0
	if success {
		v = 1
	}
	tlDependencyUp.WithLabelValues(name).Set(v)
}

var tlWebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "threatlens_webhook_deliveries_total",
	Help: "Webhook delivery attempts by outcome.",
}, []string{"outcome"})

// RecordWebhookDelivery matches events.DeliveryRecorder.
func RecordWebhookDelivery(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	tlWebhookDeliveries.WithLabelValues(outcome).Inc()
}

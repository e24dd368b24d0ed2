package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AttemptsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_attempts_started_total",
			Help: "Total number of attempts started",
		},
	)

	// 交卷按来源区分：client（考生主动）、violation（违规超限）、expiry（到期强制）
	AttemptsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_attempts_submitted_total",
			Help: "Total number of attempts submitted, by cause",
		},
		[]string{"cause"},
	)

	ViolationsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_violations_recorded_total",
			Help: "Total number of integrity violations recorded, by type",
		},
		[]string{"type"},
	)

	SchedulerFires = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_expiry_scheduler_fires_total",
			Help: "Total number of expiry schedules fired successfully",
		},
	)

	SchedulerFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_expiry_scheduler_failures_total",
			Help: "Total number of expiry schedules that exhausted their retries",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(AttemptsStarted)
	prometheus.MustRegister(AttemptsSubmitted)
	prometheus.MustRegister(ViolationsRecorded)
	prometheus.MustRegister(SchedulerFires)
	prometheus.MustRegister(SchedulerFailures)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

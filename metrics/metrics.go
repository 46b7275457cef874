package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedPath = "unmatched"

var (
	registry = prometheus.DefaultRegisterer

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by path/method/code.",
		},
		[]string{"path", "method", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by path/method/code.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "code"},
	)

	taskOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasker_operations_total",
			Help: "Domain operations by name and result.",
		},
		[]string{"op", "result"},
	)

	taskOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tasker_operation_duration_seconds",
			Help:    "Duration of domain operations by name and result.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "result"},
	)

	joinCodeRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasker_join_code_collisions_total",
			Help: "Join code collisions resolved by drawing a new code.",
		},
	)
)

// Middleware records request counts and latency per route template.
func Middleware(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	// unknown URLs share one series
	path := c.Route().Path
	if path == "" || path == "/" {
		path = unmatchedPath
	}
	if path == "/metrics" {
		return err
	}

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	code := strconv.Itoa(status)
	// c.Method() points into the reused request buffer
	method := utils.CopyString(c.Method())

	httpRequests.WithLabelValues(path, method, code).Inc()
	httpDuration.WithLabelValues(path, method, code).Observe(time.Since(start).Seconds())
	return err
}

// Handler exposes the default registry.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

func ObserveOp(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	taskOps.WithLabelValues(op, result).Inc()
	taskOpDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func AddJoinCodeCollision() {
	joinCodeRetries.Inc()
}

func init() {
	collectors := []prometheus.Collector{
		httpRequests,
		httpDuration,
		taskOps,
		taskOpDuration,
		joinCodeRetries,
	}

	for _, c := range collectors {
		_ = registry.Register(c)
	}
}

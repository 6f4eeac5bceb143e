package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoulbike",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "seoulbike",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "seoulbike",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Poller metrics
	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "seoulbike",
		Subsystem: "poller",
		Name:      "poll_duration_seconds",
		Help:      "Duration of one refresh cycle",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"mode"})

	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoulbike",
		Subsystem: "poller",
		Name:      "poll_errors_total",
		Help:      "Refresh cycles that failed, by error kind",
	}, []string{"mode", "kind"})

	ValidationStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seoulbike",
		Subsystem: "poller",
		Name:      "validation_status",
		Help:      "1 for the current session validation status, 0 for the others",
	}, []string{"status"})

	Relogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoulbike",
		Subsystem: "session",
		Name:      "relogin_total",
		Help:      "Credential re-login attempts by result",
	}, []string{"result"})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoulbike",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Requests sent to the bike-share service",
	}, []string{"method", "status"})

	NearbyBikes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seoulbike",
		Subsystem: "nearby",
		Name:      "bikes",
		Help:      "Bikes around the center: all qualifying stations or the recommended subset",
	}, []string{"set"})

	EntitiesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoulbike",
		Subsystem: "entities",
		Name:      "published_total",
		Help:      "Entity state and removal messages sent to the home-automation broker",
	}, []string{"op"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seoulbike",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoulbike",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seoulbike",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seoulbike",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seoulbike",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seoulbike",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

var validationStatuses = []string{"unknown", "ok", "login_page", "error"}

// SetValidationStatus flips the validation gauge to the given status.
func SetValidationStatus(status string) {
	for _, s := range validationStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		ValidationStatus.WithLabelValues(s).Set(v)
	}
}

// ObserveUpstream counts one upstream request. status 0 means no response.
func ObserveUpstream(method string, status int) {
	label := "none"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequests.WithLabelValues(method, label).Inc()
}

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}

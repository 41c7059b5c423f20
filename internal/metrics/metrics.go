package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the band engine.
type Metrics struct {
	ComputeDur        prometheus.Histogram
	ComputationsTotal *prometheus.CounterVec // labels: result=ok|no_data|error
	PointsTotal       prometheus.Counter
	CandlesRead       *prometheus.CounterVec // labels: source
	PublishErrors     prometheus.Counter
	WSClients         prometheus.Gauge
	WSDropped         prometheus.Counter // messages not queued for a slow client
	SettingsChanges   *prometheus.CounterVec // labels: origin=http|redis
	HTTPRequests      *prometheus.CounterVec // labels: route, code

	// Redis breaker (0=closed, 1=open, 2=half-open)
	RedisBreakerState prometheus.Gauge
	RedisBreakerTrips prometheus.Counter
}

// NewMetrics creates all metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bandengine_compute_duration_seconds",
			Help:    "Bollinger computation latency per request (excluding candle reads)",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		ComputationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandengine_computations_total",
			Help: "Band computations by result",
		}, []string{"result"}),
		PointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandengine_points_total",
			Help: "Total band points produced",
		}),
		CandlesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandengine_candles_read_total",
			Help: "Candles read per store",
		}, []string{"source"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandengine_publish_errors_total",
			Help: "Failed band publications to Redis PubSub",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandengine_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandengine_ws_dropped_messages_total",
			Help: "WebSocket messages dropped because the client send buffer was full",
		}),
		SettingsChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandengine_settings_changes_total",
			Help: "Indicator settings updates by origin",
		}, []string{"origin"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandengine_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandengine_redis_breaker_state",
			Help: "Redis breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandengine_redis_breaker_trips_total",
			Help: "Times the Redis breaker opened",
		}),
	}

	reg.MustRegister(
		m.ComputeDur,
		m.ComputationsTotal,
		m.PointsTotal,
		m.CandlesRead,
		m.PublishErrors,
		m.WSClients,
		m.WSDropped,
		m.SettingsChanges,
		m.HTTPRequests,
		m.RedisBreakerState,
		m.RedisBreakerTrips,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool
	RedisConnected bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// RunLivenessChecker probes the dependencies every interval until ctx is done.
// Either dependency may be nil.
func (h *HealthStatus) RunLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// ServeHTTP handles the /healthz endpoint.
// Degraded when one store is down, unhealthy when no store answers.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	redisUp := h.RedisEnabled && h.RedisConnected
	overallStatus := "healthy"
	httpCode := http.StatusOK

	switch {
	case !redisUp && !h.SQLiteOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case (h.RedisEnabled && !h.RedisConnected) || !h.SQLiteOK:
		overallStatus = "degraded"
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer is what
// /metrics exposes.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks serving until Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.Printf("[metrics] server listening on %s", s.addr)
	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

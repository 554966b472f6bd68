package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the ROC engine.
type Metrics struct {
	ObservationsTotal   prometheus.Counter
	DroppedObservations prometheus.Counter
	FeedReconnects      prometheus.Counter

	// Indicator engine metrics
	ResultsTotal        *prometheus.CounterVec // labels: indicator
	WarmupResultsTotal  *prometheus.CounterVec // labels: indicator
	DegenerateTotal     *prometheus.CounterVec // labels: indicator
	IndicatorComputeDur prometheus.Histogram
	TrackedInstruments  prometheus.Gauge
	ConfigReloads       *prometheus.CounterVec // labels: outcome=ok|error
	InstrumentResets    prometheus.Counter

	// Publishing
	RedisWriteDur      prometheus.Histogram
	PublishErrors      prometheus.Counter
	PublishedResults   prometheus.Counter
	DroppedBatches     prometheus.Counter
	PELMessagesClaimed prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Backpressure
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber
	FanoutQueueDepth *prometheus.GaugeVec   // labels: subscriber

	// Recording
	RecordedObservations prometheus.Counter
	RecordCommitDur      prometheus.Histogram

	// Warm-up
	WarmupObservations prometheus.Counter
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	computeBuckets := []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001}

	m := &Metrics{
		ObservationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_observations_total",
			Help: "Total observations received from the feed",
		}),
		DroppedObservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_dropped_observations_total",
			Help: "Observations dropped as malformed",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_feed_reconnects_total",
			Help: "Total feed reconnection attempts",
		}),

		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rocengine_results_total",
			Help: "Indicator results computed (by indicator)",
		}, []string{"indicator"}),
		WarmupResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rocengine_warmup_results_total",
			Help: "Results emitted while the indicator was still warming up",
		}, []string{"indicator"}),
		DegenerateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rocengine_degenerate_results_total",
			Help: "Results with a non-finite value (zero divisor)",
		}, []string{"indicator"}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rocengine_compute_duration_seconds",
			Help:    "Engine compute latency per observation",
			Buckets: computeBuckets,
		}),
		TrackedInstruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocengine_tracked_instruments",
			Help: "Instruments with live indicator state",
		}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rocengine_config_reloads_total",
			Help: "Indicator config reloads (by outcome)",
		}, []string{"outcome"}),
		InstrumentResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_instrument_resets_total",
			Help: "Instruments whose indicator state was reset",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rocengine_redis_write_duration_seconds",
			Help:    "Redis result batch write latency",
			Buckets: prometheus.DefBuckets,
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_publish_errors_total",
			Help: "Failed Redis result batch writes",
		}),
		PublishedResults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_published_results_total",
			Help: "Ready results written to Redis",
		}),
		DroppedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_dropped_batches_total",
			Help: "Result batches dropped while the circuit breaker was open",
		}),
		PELMessagesClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_pel_messages_claimed_total",
			Help: "Pending observation messages reclaimed via XCLAIM",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rocengine_fanout_drops_total",
			Help: "Values dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		FanoutQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rocengine_fanout_queue_depth",
			Help: "Buffered values waiting in each fan-out subscriber channel",
		}, []string{"subscriber"}),

		RecordedObservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_recorded_observations_total",
			Help: "Observations committed to the SQLite archive",
		}),
		RecordCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rocengine_record_commit_duration_seconds",
			Help:    "SQLite archive batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		WarmupObservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rocengine_warmup_observations_total",
			Help: "Historical observations replayed at startup",
		}),
	}

	reg.MustRegister(
		m.ObservationsTotal,
		m.DroppedObservations,
		m.FeedReconnects,
		m.ResultsTotal,
		m.WarmupResultsTotal,
		m.DegenerateTotal,
		m.IndicatorComputeDur,
		m.TrackedInstruments,
		m.ConfigReloads,
		m.InstrumentResets,
		m.RedisWriteDur,
		m.PublishErrors,
		m.PublishedResults,
		m.DroppedBatches,
		m.PELMessagesClaimed,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.FanoutDropsTotal,
		m.FanoutQueueDepth,
		m.RecordedObservations,
		m.RecordCommitDur,
		m.WarmupObservations,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	sqliteRequired bool

	FeedConnected       bool      `json:"feed_connected"`
	LastObservationTime time.Time `json:"last_observation_time"`
	RedisConnected      bool      `json:"redis_connected"`
	SQLiteOK            bool      `json:"sqlite_ok"`
	WarmupDone          bool      `json:"warmup_done"`
	Indicators          []string  `json:"indicators"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status. SQLite only counts
// towards overall health when sqliteRequired is set.
func NewHealthStatus(sqliteRequired bool) *HealthStatus {
	return &HealthStatus{
		sqliteRequired: sqliteRequired,
		StartedAt:      time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastObservationTime(t time.Time) {
	h.mu.Lock()
	h.LastObservationTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetWarmupDone(v bool) {
	h.mu.Lock()
	h.WarmupDone = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetIndicators(names []string) {
	h.mu.Lock()
	h.Indicators = names
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
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

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// HealthReport is the /healthz response body.
type HealthReport struct {
	Status              string   `json:"status"`
	Uptime              string   `json:"uptime"`
	FeedConnected       bool     `json:"feed_connected"`
	LastObservationTime string   `json:"last_observation_time,omitempty"`
	ObservationAge      string   `json:"observation_age,omitempty"`
	RedisConnected      bool     `json:"redis_connected"`
	RedisLatencyMs      float64  `json:"redis_latency_ms"`
	SQLiteOK            bool     `json:"sqlite_ok"`
	SQLiteLatencyMs     float64  `json:"sqlite_latency_ms"`
	WarmupDone          bool     `json:"warmup_done"`
	Indicators          []string `json:"indicators"`
	LastCheckAt         string   `json:"last_check_at,omitempty"`
}

// Report summarizes current health and the HTTP status code to serve it with.
func (h *HealthStatus) Report() (HealthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "ok"
	httpCode := http.StatusOK

	sqliteOK := h.SQLiteOK || !h.sqliteRequired
	if !h.FeedConnected || !h.RedisConnected || !sqliteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.FeedConnected && !h.RedisConnected {
		overallStatus = "unhealthy"
	}

	r := HealthReport{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		WarmupDone:      h.WarmupDone,
		Indicators:      append([]string(nil), h.Indicators...),
	}
	if !h.LastObservationTime.IsZero() {
		r.LastObservationTime = h.LastObservationTime.Format(time.RFC3339)
		r.ObservationAge = time.Since(h.LastObservationTime).Round(time.Millisecond).String()
	}
	if !h.LastCheckAt.IsZero() {
		r.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}
	return r, httpCode
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(report)
}
